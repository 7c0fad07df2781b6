package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sakif/snippethub/internal/model"
)

func newAccountCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the signed-in account",
	}
	cmd.AddCommand(newAccountRenameCommand(opts), newAccountPasswordCommand(opts), newAccountDeleteCommand(opts))
	return cmd
}

func newAccountRenameCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename USERNAME",
		Short: "Change your username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			user, err := a.Auth.UpdateUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(user, func(w io.Writer) {
				fmt.Fprintf(w, "you are now %s\n", user.Username)
			})
		},
	}
}

func newAccountPasswordCommand(opts *RootOptions) *cobra.Command {
	var in model.PasswordChange
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Auth.UpdatePassword(cmd.Context(), in); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]bool{"passwordChanged": true}, func(w io.Writer) {
				fmt.Fprintln(w, "password changed")
			})
		},
	}
	cmd.Flags().StringVar(&in.OldPassword, "old", "", "current password")
	cmd.Flags().StringVar(&in.NewPassword, "new", "", "new password")
	return cmd
}

func newAccountDeleteCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete your account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitUsage, "refusing to delete the account without --yes")
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Auth.DeleteAccount(cmd.Context()); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]bool{"deleted": true}, func(w io.Writer) {
				fmt.Fprintln(w, "account deleted")
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}
