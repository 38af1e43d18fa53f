package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/herdbook/herdbook/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  `Manage CLI configuration settings like the API URL, login path and cache staleness.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigSetCmd(a), newConfigShowCmd(a))
	return cmd
}

func newConfigSetCmd(a *app) *cobra.Command {
	var (
		apiURL    string
		loginPath string
		staleTime time.Duration
		logLevel  string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Write settings to the config file",
		Long: `Write settings to the config file. Only the flags given are changed.

Examples:
  herdctl config set --api-url https://herd.example.com/api
  herdctl config set --stale-time 1m --log-level info`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.NFlag() == 0 {
				return fmt.Errorf("nothing to set; see \"herdctl config set --help\"")
			}

			cfg, err := config.ReadFile(a.configFile)
			if err != nil {
				return err
			}
			if flags.Changed("api-url") {
				cfg.APIURL = config.NormalizeURL(apiURL)
			}
			if flags.Changed("login-path") {
				cfg.LoginPath = loginPath
			}
			if flags.Changed("stale-time") {
				cfg.StaleTime = staleTime
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Write(a.configFile); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			if a.jsonOutput {
				a.printResult(map[string]any{"config": cfg, "config_file": a.configFile})
				return nil
			}
			a.printOK("Configuration saved")
			fmt.Fprintf(a.out, "Config file: %s\n", a.configFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "", "Base URL of the herd API (e.g. https://herd.example.com/api)")
	cmd.Flags().StringVar(&loginPath, "login-path", "", "Path of the login endpoint")
	cmd.Flags().DurationVar(&staleTime, "stale-time", config.DefaultStaleTime, "How long fetched data is considered fresh")
	cmd.Flags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after the config file, .env and HERD_* environment variables are applied.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonOutput {
				a.printResult(map[string]any{
					"api_url":      a.cfg.APIURL,
					"login_path":   a.cfg.LoginPath,
					"stale_time":   a.cfg.StaleTime.String(),
					"log_level":    a.cfg.LogLevel,
					"config_file":  a.configFile,
					"session_file": config.SessionPath(a.configFile),
				})
				return nil
			}
			apiURL := a.cfg.APIURL
			if apiURL == "" {
				apiURL = "(not set)"
			}
			fmt.Fprintf(a.out, "API URL: %s\n", apiURL)
			fmt.Fprintf(a.out, "Login path: %s\n", a.cfg.LoginPath)
			fmt.Fprintf(a.out, "Stale time: %s\n", a.cfg.StaleTime)
			fmt.Fprintf(a.out, "Log level: %s\n", a.cfg.LogLevel)
			fmt.Fprintf(a.out, "Config file: %s\n", a.configFile)
			fmt.Fprintf(a.out, "Session file: %s\n", config.SessionPath(a.configFile))
			return nil
		},
	}
}
