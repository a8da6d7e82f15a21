package cmd

import (
	"fmt"
	"os"

	"github.com/ThomasCrouzet/svcrunner/internal/render"
	"github.com/ThomasCrouzet/svcrunner/internal/ui"
	"github.com/spf13/cobra"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed services",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(listOutput)
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sts, err := a.engine.List(cmd.Context())
	if err != nil {
		return report("Listing services failed", err)
	}
	if len(sts) == 0 && format == render.FormatTable {
		fmt.Println(ui.Dim("No services installed under " + a.layout.Root))
		return nil
	}
	return render.Print(os.Stdout, format, render.NewServiceList(sts))
}
