package cmd

import (
	"fmt"

	"github.com/ThomasCrouzet/svcrunner/internal/ui"
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install <service> <image>",
	Short: "Install a service from a container image",
	Long: `Pull the image, copy its /svcrunner payload, resolve the service
definition, create its volumes and write its launch script.

The service must not already be installed.`,
	Example: `  svcrunner install blog example/blog:2`,
	Args:    cobra.ExactArgs(2),
	RunE:    runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	name, image := args[0], args[1]
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ui.StepStarted(fmt.Sprintf("Installing %s from %s", name, image))
	res, err := a.engine.Install(cmd.Context(), name, image)
	if err != nil {
		return report("Install of "+name+" failed", err)
	}
	printResult(fmt.Sprintf("Installed %s", name), "", res)
	fmt.Printf("Start it with: %s\n", ui.Bold(name+" start"))
	return nil
}
