// Package main is the entry point for the taskstatus CLI.
//
// Usage:
//
//	taskstatus watch https://lms.example.com/tasks/12 # Poll one page and print the result
//	taskstatus watch -c config.yaml                   # Poll every configured page once
//	taskstatus serve -c config.yaml                   # Poll and mirror results on a dashboard
//	taskstatus validate -c config.yaml                # Validate configuration
//	taskstatus version                                # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "taskstatus",
	Short: "Poll a task's status route and render the result",
	Long: `taskstatus polls the status route of a page that reports on a
long-running server-side task.

The status route is the page URL followed by "/status". While the task is
running the backend answers 418; taskstatus waits and asks again. Once the
backend answers with a success status the response body is the result. Any
other status ends polling quietly.

Quick start:
  taskstatus watch https://lms.example.com/tasks/12

Example config:
  retry_delay: 2s
  pages:
    - name: lab 1
      url: https://lms.example.com/tasks/12
      headers:
        Cookie: ${SESSION_COOKIE}`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// a missing .env is fine; the environment may already be set
		_ = godotenv.Load()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already prints the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this taskstatus binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "taskstatus %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger on stderr at the level given by --log-level.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	name, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", name)
	}

	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}
