package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/herdbook/herdbook/internal/session"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the API endpoint and the current session",
		Long: `Show the configured API endpoint, whether you are signed in, when the session
token expires and which user it belongs to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}

			out := map[string]any{
				"api_url":   a.cfg.APIURL,
				"signed_in": a.store.IsSignedIn(),
			}
			token := a.store.Token()
			if token != "" {
				if exp, err := session.TokenExpiry(token); err == nil && !exp.IsZero() {
					out["expires_at"] = exp.Format(time.RFC3339)
				}
				user, err := svc.Me(cmd.Context())
				if err != nil {
					return err
				}
				out["user"] = user
			}

			if a.jsonOutput {
				a.printResult(out)
				return nil
			}
			fmt.Fprintf(a.out, "API URL: %s\n", a.cfg.APIURL)
			if token == "" {
				fmt.Fprintln(a.out, "Not signed in.")
				return nil
			}
			if exp, ok := out["expires_at"].(string); ok {
				fmt.Fprintf(a.out, "Session expires: %s\n", exp)
			}
			fmt.Fprintln(a.out, "Signed in.")
			printFields(a.out, "User", out["user"], userColumns)
			return nil
		},
	}
}
