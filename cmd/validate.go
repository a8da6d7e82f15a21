package cmd

import (
	"fmt"
	"os"

	"github.com/ThomasCrouzet/svcrunner/internal/config"
	"github.com/ThomasCrouzet/svcrunner/internal/lifecycle"
	"github.com/ThomasCrouzet/svcrunner/internal/ui"
	"github.com/ThomasCrouzet/svcrunner/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var validateCmd = &cobra.Command{
	Use:   "validate [service]",
	Short: "Check the configuration and, optionally, one service",
	Long: `Check that every config setting is valid, docker is available, the root
exists and the backup passphrase is set. With a service name, also resolve that
service's definition.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		fmt.Fprint(os.Stderr, ui.FormatError("Failed to load config", err.Error(), "run 'svcrunner init' to create a config file"))
		return &reportedError{err: err}
	}

	fmt.Println(ui.Bold("Validating configuration..."))
	passed, failed := 0, 0

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, ve := range errs {
			ui.ValidationErr(ve.Field, ve.Message, ve.Suggestion)
			failed++
		}
	} else {
		ui.ValidationOK("config", "all settings valid")
		passed++
	}

	if path, err := findExecutable(cfg.Runtime.DockerBinary); err != nil {
		ui.ValidationErr("runtime.docker_binary", cfg.Runtime.DockerBinary+" not found in PATH", "install docker or set runtime.docker_binary")
		failed++
	} else {
		ui.ValidationOK("runtime.docker_binary", path)
		passed++
	}

	root := util.ExpandPath(cfg.Root)
	if util.IsDir(root) {
		ui.ValidationOK("root", root)
		passed++
	} else {
		ui.ValidationErr("root", root+" does not exist", "run 'svcrunner setup'")
		failed++
	}

	if _, err := cfg.Passphrase(); err != nil {
		// only backup and restore need it
		ui.Warn(fmt.Sprintf("%s is not set; backup and restore will fail", cfg.Backup.PassphraseEnv))
	} else {
		ui.ValidationOK("backup.passphrase_env", cfg.Backup.PassphraseEnv+" is set")
		passed++
	}

	if len(args) == 1 && failed == 0 {
		if validateService(cmd, args[0]) {
			passed++
		} else {
			failed++
		}
	}

	fmt.Println()
	if failed == 0 {
		ui.Success(fmt.Sprintf("%d checks passed, 0 errors", passed))
		return nil
	}
	fmt.Printf("%d checks passed, %d errors\n", passed, failed)
	return &reportedError{err: fmt.Errorf("%d validation errors", failed)}
}

func validateService(cmd *cobra.Command, name string) bool {
	a, err := newApp()
	if err != nil {
		return false
	}
	defer a.close()

	st, err := a.engine.Status(cmd.Context(), name)
	if err != nil {
		ui.ValidationErr(name, err.Error(), "")
		return false
	}
	switch st.State {
	case lifecycle.Installed:
		ui.ValidationOK(name, fmt.Sprintf("%s definition, %d subservices, %d volumes",
			st.Model.Source, len(st.Model.Subservices), len(st.Model.VolumeNames())))
		return true
	case lifecycle.Absent:
		ui.ValidationErr(name, "not installed", "svcrunner install "+name+" <image>")
	default:
		ui.ValidationErr(name, st.Err.Error(), "svcrunner recover "+name)
	}
	return false
}
