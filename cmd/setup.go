package cmd

import (
	"fmt"

	"github.com/ThomasCrouzet/svcrunner/internal/lifecycle"
	"github.com/ThomasCrouzet/svcrunner/internal/ui"
	"github.com/spf13/cobra"
)

var setupForce bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the svcrunner directory tree",
	Long: `Create the installation root and its services, bin, temp, hostVolumes,
locks and support directories, then pull the utility image.

An existing root is left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "re-create directories and permissions on an existing root")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ui.StepStarted("Setting up " + a.layout.Root)
	res, err := a.engine.Setup(cmd.Context(), setupForce)
	if err != nil {
		return report("Setup failed", err)
	}
	printResult(fmt.Sprintf("Root ready at %s", a.layout.Root),
		fmt.Sprintf("%s already exists (use --force to redo)", a.layout.Root), res)
	if res == lifecycle.Success {
		fmt.Printf("Add %s to your PATH to use launch scripts.\n", ui.Bold(a.layout.Bin()))
	}
	return nil
}
