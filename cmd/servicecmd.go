package cmd

import (
	"errors"
	"os/exec"

	"github.com/ThomasCrouzet/svcrunner/internal/lifecycle"
	"github.com/spf13/cobra"
)

var servicecmdCmd = &cobra.Command{
	Use:   "servicecmd <service> <command> [args...]",
	Short: "Run a command of a service's servicerunner script",
	Long: `Run the service's servicerunner script with the given command. Launch
scripts in <root>/bin call this, so "blog start" is "svcrunner servicecmd blog
start". The built-in command dstop stops and removes one container.

The script's exit code is passed through; 127 means the command is not
implemented.`,
	Hidden:             true,
	DisableFlagParsing: true,
	Args:               cobra.MinimumNArgs(2),
	RunE:               runServicecmd,
}

func init() {
	rootCmd.AddCommand(servicecmdCmd)
}

func runServicecmd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.engine.ServiceCmd(cmd.Context(), args[0], args[1], args[2:])
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr) && exitErr.ExitCode() > 0:
		a.logger.Debug().Err(err).Msg("service command failed")
		return &ExitError{Code: exitErr.ExitCode()}
	case err != nil:
		return report(args[0]+" "+args[1]+" failed", err)
	case res == lifecycle.NotImplemented:
		return &ExitError{Code: exitNotImplemented}
	}
	return nil
}

// exitNotImplemented tells launch scripts the command is unknown.
const exitNotImplemented = 127
