package wizard

import (
	"strings"
	"testing"

	"github.com/ThomasCrouzet/svcrunner/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateConfigFull(t *testing.T) {
	answers := WizardAnswers{
		Root:           "/srv/svcrunner",
		UtilsImage:     "registry.local/rootutils:3",
		DockerBinary:   "/usr/local/bin/docker",
		ProxyMode:      "caddy",
		ProxyContainer: "edge",
		PassphraseEnv:  "BACKUP_PASS",
		WorkFactor:     20,
		LogLevel:       "debug",
		ShowHookOutput: true,
		MetricsFile:    "/var/lib/node_exporter/svcrunner.prom",
	}

	out, err := GenerateConfig(answers)
	require.NoError(t, err)

	assert.Contains(t, out, "root: /srv/svcrunner")
	assert.Contains(t, out, "docker_binary: /usr/local/bin/docker")
	assert.Contains(t, out, "mode: caddy")
	assert.Contains(t, out, "container: edge")
	assert.Contains(t, out, "passphrase_env: BACKUP_PASS")
	assert.Contains(t, out, "work_factor: 20")
	assert.Contains(t, out, "show_output: true")
	assert.Contains(t, out, "textfile: /var/lib/node_exporter/svcrunner.prom")
}

func TestGenerateConfigDefaults(t *testing.T) {
	out, err := GenerateConfig(WizardAnswers{})
	require.NoError(t, err)

	assert.Contains(t, out, "root: /opt/svcrunner")
	assert.Contains(t, out, "mode: none")
	assert.Contains(t, out, "work_factor: 18")
	assert.Contains(t, out, "show_output: false")
	assert.NotContains(t, out, "container:")
	assert.NotContains(t, out, "metrics:")
}

func TestGeneratedConfigLoads(t *testing.T) {
	out, err := GenerateConfig(WizardAnswers{ProxyMode: "caddy", LogLevel: "warn", WorkFactor: 12})
	require.NoError(t, err)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(out)))

	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "caddy", cfg.Proxy.Mode)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 12, cfg.Backup.WorkFactor)
	assert.Equal(t, "PASS", cfg.Backup.PassphraseEnv)
}

func TestValidateWorkFactor(t *testing.T) {
	assert.NoError(t, validateWorkFactor("18"))
	assert.NoError(t, validateWorkFactor(" 10 "))
	assert.Error(t, validateWorkFactor("9"))
	assert.Error(t, validateWorkFactor("23"))
	assert.Error(t, validateWorkFactor("fast"))
}
