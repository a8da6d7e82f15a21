package cmd

import (
	"fmt"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/ui"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup <service> <file>",
	Short: "Write an encrypted backup of a service",
	Long: `Export every volume and the host volume of an installed service into a
single archive, compressed with zstd and encrypted with the passphrase held in
the environment variable named by backup.passphrase_env.

The service's backup hooks run around the export so it can dump databases into
the archive's custom directory. The destination must not exist.

A volume that no longer exists when the backup runs is stored as an empty
archive, with a warning, and is restored empty.`,
	Example: `  PASS=secret svcrunner backup blog /backups/blog-2026-05-01.tar.zst.age`,
	Args:    cobra.ExactArgs(2),
	RunE:    runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	name, dest := args[0], args[1]
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.pipeline()
	if err != nil {
		return report("Cannot start backup", err)
	}

	ui.StepStarted("Backing up " + name)
	sum, err := p.Backup(cmd.Context(), name, dest)
	if err != nil {
		return report("Backup of "+name+" failed", err)
	}
	ui.StepDone("Archive written", fmt.Sprintf("%s, %d volumes, %s", humanize.Bytes(uint64(sum.Size)), sum.Volumes, sum.Elapsed.Round(time.Millisecond)))
	fmt.Printf("  %s %s\n", ui.Dim("path:"), sum.Path)
	fmt.Printf("  %s %s\n", ui.Dim("id:  "), sum.BackupID)
	return nil
}
