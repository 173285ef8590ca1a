package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
)

func newKeysCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage token signing keys",
	}
	cmd.AddCommand(newKeysRotateCmd(opts))
	cmd.AddCommand(newKeysListCmd(opts))
	return cmd
}

func newKeysRotateCmd(opts *options) *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Generate a new active signing key",
		Long: `Generate a new signing key for a family and make it active. The previous
key keeps verifying tokens until its own expiry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.openApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if application.Keys().Sealer.Ephemeral() {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: no master key configured; the running service will not be able to open this key")
			}

			key, err := application.Keys().Rotate(cmd.Context(), domain.KeyFamily(family))
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).PrintKey(key)
		},
	}
	cmd.Flags().StringVar(&family, "family", string(domain.FamilyAsymmetric), "key family (asymmetric, symmetric)")
	return cmd
}

func newKeysListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored signing keys, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.openApp()
			if err != nil {
				return err
			}
			defer application.Close()

			keys, err := application.Keys().List(cmd.Context())
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).PrintKeyList(keys)
		},
	}
}
