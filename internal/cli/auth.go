package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sakif/snippethub/internal/model"
)

func bindCredentials(cmd *cobra.Command, creds *model.Credentials) {
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "password")
}

func newLoginCommand(opts *RootOptions) *cobra.Command {
	var creds model.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in; the session is kept for later runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			user, err := a.Auth.Login(cmd.Context(), creds)
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(user, func(w io.Writer) {
				fmt.Fprintf(w, "signed in as %s\n", user.Username)
			})
		},
	}
	bindCredentials(cmd, &creds)
	return cmd
}

func newLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]bool{"signedIn": false}, func(w io.Writer) {
				fmt.Fprintln(w, "signed out")
			})
		},
	}
}

func newRegisterCommand(opts *RootOptions) *cobra.Command {
	var creds model.Credentials
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account (sign in afterwards with login)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Auth.Register(cmd.Context(), creds); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]string{"registered": creds.Username}, func(w io.Writer) {
				fmt.Fprintf(w, "registered %s\n", creds.Username)
			})
		},
	}
	bindCredentials(cmd, &creds)
	return cmd
}
