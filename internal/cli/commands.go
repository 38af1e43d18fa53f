// Package cli implements herdctl, the command line client for the herd API.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/herdbook/herdbook/internal/common/apperrors"
	"github.com/herdbook/herdbook/internal/common/httpclient"
	"github.com/herdbook/herdbook/internal/common/logtrace"
	"github.com/herdbook/herdbook/internal/config"
	"github.com/herdbook/herdbook/internal/herd"
	"github.com/herdbook/herdbook/internal/query"
	"github.com/herdbook/herdbook/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// cliVersion is set at build time with -ldflags "-X ...cli.cliVersion=..."
var cliVersion = "dev"

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)
var hintLabel = color.New(color.FgYellow)

// app is the state shared by the commands of one invocation.
type app struct {
	configFile string
	jsonOutput bool

	out    io.Writer
	errOut io.Writer

	// httpClient replaces the transport's default client when set.
	httpClient *http.Client

	cfg   config.Config
	store *session.Store
	svc   *herd.Service

	expired bool
}

// newRootCmd builds the command tree around a.
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "herdctl [command] [flags]",
		Short: "herdctl - manage a dairy herd from the command line",
		Long: `herdctl is a command line client for the herd management API.
It lists, shows, creates, updates and deletes animals and their breeding,
heat detection, milking and health records, and manages users.

Examples:
  # Point herdctl at the API and sign in
  herdctl config set --api-url https://herd.example.com/api
  herdctl login --email me@example.com --password secret

  # List lactating animals
  herdctl list animals --status lactating

  # Record a milking from a file, overriding the quantity
  herdctl create milking -f milking.yaml --set quantity=18.5`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.preRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.errOut)

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "", "", "Path to configuration file to override default")
	rootCmd.PersistentFlags().BoolVarP(&a.jsonOutput, "json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(
		newConfigCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newListCmd(a),
		newGetCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newSetStatusCmd(a),
		newAnalyticsCmd(a),
		newSummariesCmd(a),
		newVersionCmd(a),
	)
	return rootCmd
}

// Execute runs herdctl with the process arguments and returns the exit code.
func Execute(ctx context.Context) int {
	a := &app{out: os.Stdout, errOut: os.Stderr}
	if err := run(ctx, a, os.Args[1:]); err != nil {
		return 1
	}
	return 0
}

// run executes one command line. Errors are reported to the user before they are
// returned.
func run(ctx context.Context, a *app, args []string) error {
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	a.close()
	if err == nil || errors.Is(err, ErrAlreadyHandled) {
		return err
	}
	a.reportError(err)
	return err
}

// preRun loads the configuration and sets up logging before any command runs.
func (a *app) preRun(cmd *cobra.Command, _ []string) error {
	if a.configFile == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		a.configFile = path
	}
	cfg, err := config.Load(cmd.Context(), a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logtrace.InitLoggerTo(a.errOut, cfg.LogLevel, true)
	return nil
}

// service returns the herd service, creating the transport, session and cache on
// first use.
func (a *app) service() (*herd.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	a.store = session.NewStore(
		session.NewFilePersister(config.SessionPath(a.configFile)),
		func(string) { a.expired = true },
	)

	opts := []httpclient.ClientOption{
		httpclient.WithUserAgent("herdctl/" + cliVersion),
	}
	if a.cfg.LoginPath != "" {
		opts = append(opts, httpclient.WithLoginPath(a.cfg.LoginPath))
	}
	if a.httpClient != nil {
		opts = append(opts, httpclient.WithHTTPClient(a.httpClient))
	}
	hc, err := httpclient.New(a.cfg.APIURL, a.store, opts...)
	if err != nil {
		return nil, err
	}

	cache := query.NewClient(query.WithStaleTime(a.cfg.StaleTime))
	a.svc = herd.NewService(herd.NewAPI(hc), cache, a.store)
	return a.svc, nil
}

// close ends any observers left on the cache once a command finishes.
func (a *app) close() {
	if a.svc != nil {
		a.svc.Cache().Close()
	}
}

// signedIn returns the service after checking that a session exists.
func (a *app) signedIn() (*herd.Service, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	if err := a.store.RequireSession(); err != nil {
		return nil, err
	}
	return svc, nil
}

// reportError prints err for the user. Classified API errors print their user
// message; anything else prints as is.
func (a *app) reportError(err error) {
	msg := messageOf(err)
	if a.jsonOutput {
		a.printJSON(map[string]any{"result": 0, "error": msg})
		return
	}
	errorLabel.Fprintf(a.errOut, "Error: %s\n", msg)
	if a.expired || errors.Is(err, session.ErrNotSignedIn) {
		hintLabel.Fprintf(a.errOut, "Sign in again with \"herdctl login\".\n")
	}
}

func (a *app) printJSON(data any) {
	b, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		fmt.Fprintf(a.errOut, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(a.out, string(b))
}

func (a *app) printResult(v any) {
	a.printJSON(map[string]any{"result": 1, "value": v})
}

func (a *app) printOK(format string, args ...any) {
	okLabel.Fprintf(a.out, "✓ "+format+"\n", args...)
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the herdctl version and the API version of the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := map[string]any{
				"version_cli": cliVersion,
				"config_file": a.configFile,
			}
			var serverErr error
			if svc, err := a.service(); err != nil {
				serverErr = err
			} else if v, err := svc.Version(cmd.Context()); err != nil {
				serverErr = err
			} else {
				out["server_version"] = v.Version
				out["api_version"] = v.APIVersion
				out["api_compatible"] = herd.IsAPICompatible(v.APIVersion)
			}

			if a.jsonOutput {
				if serverErr != nil {
					out["error"] = httpclient.UserMessage(serverErr)
				}
				a.printResult(out)
				return nil
			}
			fmt.Fprintf(a.out, "herdctl %s\n", cliVersion)
			fmt.Fprintf(a.out, "Config file: %s\n", a.configFile)
			if serverErr != nil {
				fmt.Fprintf(a.out, "Server: unavailable (%s)\n", messageOf(serverErr))
				return nil
			}
			fmt.Fprintf(a.out, "Server version: %s\n", out["server_version"])
			fmt.Fprintf(a.out, "API version: %s\n", out["api_version"])
			if !out["api_compatible"].(bool) {
				hintLabel.Fprintf(a.out, "This herdctl supports API versions %s.\n", herd.SupportedAPIVersions)
			}
			return nil
		},
	}
}

// messageOf prefers the user message of classified errors.
func messageOf(err error) string {
	if httpclient.KindOf(err) != apperrors.KindUnknown {
		return httpclient.UserMessage(err)
	}
	return err.Error()
}
