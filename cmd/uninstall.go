package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <service>",
	Short: "Remove a service but keep its data",
	Long: `Remove the service directory and launch script. Docker volumes and the
host volume are kept, so installing the same image again picks the data up.

Use obliterate to remove the data as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	name := args[0]
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.engine.Uninstall(cmd.Context(), name)
	if err != nil {
		return report("Uninstall of "+name+" failed", err)
	}
	printResult(fmt.Sprintf("Uninstalled %s (volumes kept)", name),
		fmt.Sprintf("%s is not installed", name), res)
	return nil
}
