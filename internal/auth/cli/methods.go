package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/hoa/internal/auth/service"
)

func newMethodsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "Review auth methods awaiting approval",
	}
	cmd.AddCommand(newMethodsPendingCmd(opts))
	cmd.AddCommand(newMethodsDecisionCmd(opts, "approve"))
	cmd.AddCommand(newMethodsDecisionCmd(opts, "reject"))
	return cmd
}

func newMethodsPendingCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List auth methods awaiting approval, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.openApp()
			if err != nil {
				return err
			}
			defer application.Close()

			methods, err := application.Methods().ListPendingApprovals(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).PrintMethodList(methods)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", service.DefaultPendingLimit, "maximum number of methods to list")
	return cmd
}

// newMethodsDecisionCmd builds "approve" or "reject". Both act on behalf of
// an admin identity.
func newMethodsDecisionCmd(opts *options, action string) *cobra.Command {
	var approver string

	cmd := &cobra.Command{
		Use:   action + " <method-id>",
		Short: fmt.Sprintf("%s a pending auth method", capitalize(action)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.openApp()
			if err != nil {
				return err
			}
			defer application.Close()

			decide := application.Methods().Approve
			if action == "reject" {
				decide = application.Methods().Reject
			}
			if err := decide(cmd.Context(), args[0], approver); err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).PrintSuccess(fmt.Sprintf("method %s %sd", args[0], action))
		},
	}
	cmd.Flags().StringVar(&approver, "approver", "", "identity id of the approving admin")
	_ = cmd.MarkFlagRequired("approver")
	return cmd
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
