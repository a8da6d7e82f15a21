package cmd

import (
	"fmt"

	"github.com/ThomasCrouzet/svcrunner/internal/ui"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <service>",
	Short: "Re-install a service from a fresh pull of its image",
	Long: `Pull the recorded image again and rebuild the service directory from it.
Volumes and the host volume are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	name := args[0]
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ui.StepStarted("Updating " + name)
	res, err := a.engine.Update(cmd.Context(), name)
	if err != nil {
		return report("Update of "+name+" failed", err)
	}
	printResult(fmt.Sprintf("Updated %s", name), "", res)
	return nil
}
