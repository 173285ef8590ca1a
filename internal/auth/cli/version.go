package cli

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/hoa/internal/auth/app"
)

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.printer(cmd.OutOrStdout()).PrintVersion(map[string]string{
				"version":    app.BuildVersion,
				"go_version": runtime.Version(),
				"os":         runtime.GOOS,
				"arch":       runtime.GOARCH,
			})
		},
	}
}
