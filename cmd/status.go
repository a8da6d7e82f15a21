package cmd

import (
	"os"

	"github.com/ThomasCrouzet/svcrunner/internal/render"
	"github.com/ThomasCrouzet/svcrunner/internal/util"
	"github.com/spf13/cobra"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status <service>",
	Short: "Show the state of one service",
	Long: `Show whether a service is installed, absent or broken, with its image,
subservices, volumes and host volume.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(statusOutput)
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.engine.Status(cmd.Context(), args[0])
	if err != nil {
		return report("Status failed", err)
	}
	view := render.NewServiceView(st)

	svc, err := a.layout.Service(st.Name)
	if err == nil && util.IsDir(svc.HostVolume()) {
		view.HostVolume = svc.HostVolume()
		if size, err := util.DirSize(svc.HostVolume()); err == nil {
			view.HostVolumeSize = size
		} else {
			a.logger.Debug().Err(err).Msg("measuring host volume failed")
		}
	}
	return render.Print(os.Stdout, format, view)
}
