package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/hoa/internal/auth/app"
	"github.com/aussiebroadwan/hoa/internal/auth/service"
)

func newIdentitiesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identities",
		Short: "Administer identities",
	}
	cmd.AddCommand(newIdentitiesListCmd(opts))
	cmd.AddCommand(newIdentitiesBootstrapCmd(opts))
	cmd.AddCommand(newIdentitiesChangeCmd(opts, "enable", func(a *app.Application) changeFunc {
		return func(cmd *cobra.Command, id string) error { return a.Identities().SetEnabled(cmd.Context(), id, true) }
	}))
	cmd.AddCommand(newIdentitiesChangeCmd(opts, "disable", func(a *app.Application) changeFunc {
		return func(cmd *cobra.Command, id string) error { return a.Identities().SetEnabled(cmd.Context(), id, false) }
	}))
	cmd.AddCommand(newIdentitiesChangeCmd(opts, "promote", func(a *app.Application) changeFunc {
		return func(cmd *cobra.Command, id string) error { return a.Identities().SetAdmin(cmd.Context(), id, true) }
	}))
	cmd.AddCommand(newIdentitiesChangeCmd(opts, "demote", func(a *app.Application) changeFunc {
		return func(cmd *cobra.Command, id string) error { return a.Identities().SetAdmin(cmd.Context(), id, false) }
	}))
	return cmd
}

func newIdentitiesListCmd(opts *options) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List identities, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.openApp()
			if err != nil {
				return err
			}
			defer application.Close()

			idents, err := application.Identities().List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).PrintIdentityList(idents)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", service.DefaultIdentityLimit, "maximum number of identities to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of identities to skip")
	return cmd
}

// newIdentitiesBootstrapCmd runs the bootstrap with the configured token, for
// operators with access to the host.
func newIdentitiesBootstrapCmd(opts *options) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create or promote the first admin (requires AUTH_BOOTSTRAP_TOKEN)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.openApp()
			if err != nil {
				return err
			}
			defer application.Close()

			svc := application.Identities()
			ident, err := svc.Bootstrap(cmd.Context(), svc.BootstrapToken, username)
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).PrintIdentity(ident)
		},
	}
	cmd.Flags().StringVar(&username, "username", service.DefaultBootstrapUsername, "username of the admin")
	return cmd
}

type changeFunc func(cmd *cobra.Command, id string) error

func newIdentitiesChangeCmd(opts *options, action string, bind func(*app.Application) changeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <identity-id>",
		Short: fmt.Sprintf("%s an identity", capitalize(action)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.openApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if err := bind(application)(cmd, args[0]); err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).PrintSuccess(fmt.Sprintf("identity %s %sd", args[0], action))
		},
	}
}
