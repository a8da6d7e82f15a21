package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <service> [image]",
	Short: "Re-install a broken service, keeping its volumes",
	Long: `Uninstall whatever is left of the service, ignoring hook failures, and
install it again. The image defaults to the one recorded at install time.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, args []string) error {
	name := args[0]
	var image string
	if len(args) > 1 {
		image = args[1]
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.engine.Recover(cmd.Context(), name, image)
	if err != nil {
		return report("Recover of "+name+" failed", err)
	}
	printResult(fmt.Sprintf("Recovered %s", name), "", res)
	return nil
}
