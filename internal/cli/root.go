// Package cli provides the filebrowser command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/filebrowser/internal/config"
	"github.com/fruitsalade/filebrowser/internal/logging"
	"github.com/fruitsalade/filebrowser/pkg/policy"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// appKey is used to store the app in the command context.
type appKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "filebrowser",
		Short: "Browse and manage a remote file store",
		Long: `filebrowser is a client for a hierarchical file store served over HTTP.

It lists directories, uploads files with a local size and type policy,
creates directories, deletes entries and downloads files. Run "filebrowser
shell" for an interactive session.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			if cfg.FileUsed != "" {
				logging.Debug("using config file", logging.String("path", cfg.FileUsed))
			}

			useSaved := cmd.Name() != "login" && cmd.Name() != "logout"
			a, err := newApp(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), useSaved)
			if err != nil {
				return err
			}
			a.startMetrics()
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a := appFrom(cmd); a != nil {
				a.close()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./filebrowser.yaml)")
	pf.String("base-url", config.DefaultBaseURL, "File store base URL")
	pf.Duration("timeout", config.DefaultTimeout, "Time to wait for response headers")
	pf.Int("retry-attempts", config.DefaultRetryAttempts, "Attempts for reads and deletes on network errors")
	pf.Int64("max-file-size", policy.DefaultMaxFileSize, "Largest file accepted for upload, in bytes")
	pf.StringSlice("allowed-types", nil, "MIME types accepted for upload (default: built-in list)")
	pf.Int("upload-concurrency", config.DefaultUploadConcurrency, "Files uploaded in parallel")
	pf.StringP("username", "u", "", "Basic auth username")
	pf.String("token", "", "Bearer token")
	pf.String("token-file", "", "Saved token location (default: user config dir)")
	pf.String("log-level", config.DefaultLogLevel, "Log level (debug|info|warn|error)")
	pf.String("log-format", config.DefaultLogFormat, "Log format (console|json)")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address")

	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newLsCommand())
	rootCmd.AddCommand(newStatCommand())
	rootCmd.AddCommand(newGetCommand())
	rootCmd.AddCommand(newPutCommand())
	rootCmd.AddCommand(newMkdirCommand())
	rootCmd.AddCommand(newRmCommand())
	rootCmd.AddCommand(newLoginCommand())
	rootCmd.AddCommand(newLogoutCommand())
	rootCmd.AddCommand(newShellCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func appFrom(cmd *cobra.Command) *app {
	if cmd.Context() == nil {
		return nil
	}
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}
