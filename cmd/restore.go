package cmd

import (
	"fmt"

	"github.com/ThomasCrouzet/svcrunner/internal/ui"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <service> <file>",
	Short: "Install a service from a backup",
	Long: `Install the image recorded in the backup, then load each volume, the host
volume and the custom directory from the archive. The service must not be
installed; uninstall it first.`,
	Args: cobra.ExactArgs(2),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	name, path := args[0], args[1]
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.pipeline()
	if err != nil {
		return report("Cannot start restore", err)
	}

	ui.StepStarted(fmt.Sprintf("Restoring %s from %s", name, path))
	if err := p.Restore(cmd.Context(), name, path); err != nil {
		return report("Restore of "+name+" failed", err)
	}
	ui.Success("Restored " + name)
	return nil
}
