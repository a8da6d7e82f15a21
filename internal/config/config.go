// Package config loads svcrunner settings from svcrunner.yml, SVCRUNNER_*
// environment variables and flags, through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SVCRUNNER_ROOT.
const EnvPrefix = "SVCRUNNER"

type Config struct {
	Root       string  `mapstructure:"root" validate:"required"`
	UtilsImage string  `mapstructure:"utils_image" validate:"required"`
	Launcher   string  `mapstructure:"launcher" validate:"required"`
	Log        Log     `mapstructure:"log"`
	Hooks      Hooks   `mapstructure:"hooks"`
	Proxy      Proxy   `mapstructure:"proxy"`
	Backup     Backup  `mapstructure:"backup"`
	Runtime    Runtime `mapstructure:"runtime"`
	Lock       Lock    `mapstructure:"lock"`
	Metrics    Metrics `mapstructure:"metrics"`
}

type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type Hooks struct {
	ShowOutput bool `mapstructure:"show_output"`
}

type Proxy struct {
	Mode      string `mapstructure:"mode" validate:"oneof=none caddy"`
	Container string `mapstructure:"container"`
}

type Backup struct {
	PassphraseEnv string `mapstructure:"passphrase_env" validate:"required"`
	WorkFactor    int    `mapstructure:"work_factor" validate:"min=10,max=22"`
}

type Runtime struct {
	DockerBinary    string `mapstructure:"docker_binary" validate:"required"`
	PullParallelism int    `mapstructure:"pull_parallelism" validate:"min=1,max=8"`
}

type Lock struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type Metrics struct {
	// Textfile is a node_exporter textfile collector path; empty disables.
	Textfile string `mapstructure:"textfile"`
}

// SetDefaults registers every key with its default, which also makes each
// key reachable through AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", "/opt/svcrunner")
	v.SetDefault("utils_image", "svcrunner/rootutils")
	v.SetDefault("launcher", "svcrunner")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("hooks.show_output", false)
	v.SetDefault("proxy.mode", "none")
	v.SetDefault("proxy.container", "")
	v.SetDefault("backup.passphrase_env", "PASS")
	v.SetDefault("backup.work_factor", 18)
	v.SetDefault("runtime.docker_binary", "docker")
	v.SetDefault("runtime.pull_parallelism", 2)
	v.SetDefault("lock.timeout", 30*time.Second)
	v.SetDefault("metrics.textfile", "")
}

// ConfigureEnv enables SVCRUNNER_ overrides on v, mapping "." to "_".
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates the settings held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, svcerr.Newf(svcerr.Validation, "", "invalid config: %s", strings.Join(msgs, "; "))
	}
	return cfg, nil
}

// Decode fills a Config from v and its defaults without validating it.
func Decode(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, svcerr.New(svcerr.Validation, "", fmt.Errorf("decoding config: %w", err))
	}
	return cfg, nil
}

// ValidationError reports a config problem with a suggested fix.
type ValidationError struct {
	Field      string // dotted key, e.g. "backup.work_factor"
	Message    string
	Suggestion string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every setting and returns one entry per problem.
func (c *Config) Validate() []ValidationError {
	var out []ValidationError
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []ValidationError{{Field: "config", Message: err.Error()}}
		}
		for _, fe := range verrs {
			out = append(out, describe(fe))
		}
	}
	if c.Lock.Timeout < 0 {
		out = append(out, ValidationError{
			Field:      "lock.timeout",
			Message:    "must not be negative",
			Suggestion: "use a duration such as 30s",
		})
	}
	return out
}

func describe(fe validator.FieldError) ValidationError {
	// Namespace is "Config.backup.work_factor"; drop the struct name.
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	ve := ValidationError{Field: field}
	switch fe.Tag() {
	case "required":
		ve.Message = "is required"
		ve.Suggestion = fmt.Sprintf("set %s in svcrunner.yml or %s", field, EnvName(field))
	case "oneof":
		ve.Message = fmt.Sprintf("%v is not one of: %s", fe.Value(), fe.Param())
		ve.Suggestion = "use one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "max":
		ve.Message = fmt.Sprintf("%v is out of range (%s %s)", fe.Value(), fe.Tag(), fe.Param())
	default:
		ve.Message = fmt.Sprintf("failed %s check", fe.Tag())
	}
	return ve
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Passphrase returns the backup passphrase from the configured environment
// variable. An unset or empty variable is a Validation error.
func (c *Config) Passphrase() (string, error) {
	pass := os.Getenv(c.Backup.PassphraseEnv)
	if pass == "" {
		return "", svcerr.Newf(svcerr.Validation, "", "backup passphrase is empty; set %s", c.Backup.PassphraseEnv)
	}
	return pass, nil
}
