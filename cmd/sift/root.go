package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/FranksOps/sift/internal/config"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sift",
	Short: "Search, read and summarize articles from Telegram",
	Long: `sift answers /find queries by searching several sites at once, reading the
top articles and summarizing them. Subscriptions are re-checked on a schedule.

Without a subcommand sift runs the bot (same as "sift serve").`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default ./sift.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	l, err := newLogger(c, os.Stderr)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	slog.SetDefault(l)
	return nil
}

// newLogger builds the process logger from log.level and log.format.
func newLogger(c *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := c.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch c.Log.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Log.Format)
	}
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print version information",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sift %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
