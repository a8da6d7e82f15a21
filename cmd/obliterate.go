package cmd

import (
	"fmt"

	"github.com/ThomasCrouzet/svcrunner/internal/ui"
	"github.com/ThomasCrouzet/svcrunner/internal/wizard"
	"github.com/spf13/cobra"
)

var obliterateYes bool

var obliterateCmd = &cobra.Command{
	Use:   "obliterate <service>",
	Short: "Remove a service and all of its data",
	Long: `Remove the service directory, launch script, host volume and every
Docker volume the service declares. This cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: runObliterate,
}

func init() {
	obliterateCmd.Flags().BoolVarP(&obliterateYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(obliterateCmd)
}

func runObliterate(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !obliterateYes {
		ok, err := wizard.Confirm(
			fmt.Sprintf("Obliterate %s?", name),
			"Its volumes and host volume are deleted. Take a backup first if you need the data.",
		)
		if err != nil {
			return fmt.Errorf("confirmation: %w", err)
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.engine.Obliterate(cmd.Context(), name)
	if err != nil {
		return report("Obliterate of "+name+" failed", err)
	}
	printResult(fmt.Sprintf("Obliterated %s", name), fmt.Sprintf("nothing found for %s", ui.Bold(name)), res)
	return nil
}
