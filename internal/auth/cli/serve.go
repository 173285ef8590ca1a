package cli

import (
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/hoa/internal/auth/app"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			application, err := app.New(cfg)
			if err != nil {
				return err
			}
			return application.Run()
		},
	}
}
