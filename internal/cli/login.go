package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herdbook/herdbook/internal/herd"
)

func newLoginCmd(a *app) *cobra.Command {
	var creds herd.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the herd API",
		Long: `Sign in with an email and password. The session token is saved next to the
config file and used by every other command until it expires or you log out.

Example:
  herdctl login --email me@example.com --password secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			resp, err := svc.Login().Run(cmd.Context(), svc.Cache(), creds)
			if err != nil {
				return err
			}

			if a.jsonOutput {
				a.printResult(map[string]any{"user": resp.User})
				return nil
			}
			a.printOK("Signed in as %s (%s)", displayName(resp.User), resp.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Password")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			if !a.store.IsSignedIn() {
				if a.jsonOutput {
					a.printResult(map[string]any{"signed_in": false})
				} else {
					fmt.Fprintln(a.out, "Not signed in.")
				}
				return nil
			}
			// the local session is gone even when the server call fails
			if _, err := svc.Logout().Run(cmd.Context(), svc.Cache(), struct{}{}); err != nil {
				hintLabel.Fprintf(a.errOut, "The server did not confirm the logout: %s\n", messageOf(err))
			}
			if a.jsonOutput {
				a.printResult(map[string]any{"signed_in": false})
				return nil
			}
			a.printOK("Signed out")
			return nil
		},
	}
}

func displayName(u herd.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
