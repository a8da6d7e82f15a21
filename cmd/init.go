package cmd

import (
	"fmt"
	"os"

	"github.com/ThomasCrouzet/svcrunner/internal/ui"
	"github.com/ThomasCrouzet/svcrunner/internal/wizard"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an svcrunner.yml config file interactively",
	Long: `Look for docker, an existing installation root and a proxy container, then
generate a config file through an interactive wizard.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := "svcrunner.yml"

	if _, err := os.Stat(configPath); err == nil {
		ok, err := wizard.Confirm(configPath+" already exists.", "Overwrite it?")
		if err != nil {
			return fmt.Errorf("confirmation: %w", err)
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println(ui.Bold("Scanning environment..."))
	detection := wizard.Detect(nil)

	answers, err := wizard.Run(detection)
	if err != nil {
		return fmt.Errorf("wizard: %w", err)
	}

	content, err := wizard.GenerateConfig(*answers)
	if err != nil {
		return fmt.Errorf("generating config: %w", err)
	}

	// the file names the passphrase variable, never the passphrase
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	ui.Success(fmt.Sprintf("Created %s", configPath))
	fmt.Println()
	fmt.Printf("Next step: %s\n", ui.Bold("svcrunner setup"))
	fmt.Printf("           %s\n", ui.Hint("then svcrunner validate to check docker and the passphrase"))
	return nil
}
