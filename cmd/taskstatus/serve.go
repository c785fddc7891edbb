package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/taskstatus"
	"github.com/jpalmerr/taskstatus/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd polls every configured page once and serves a live dashboard.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll configured pages and serve a live dashboard",
	Long: `Poll every configured page and mirror the results on a dashboard.

The server will:
  - Load configuration from the specified YAML file
  - Start one polling chain per configured page
  - Serve the dashboard UI on the configured port
  - Serve each page's latest state at /watches/{name} and /watches/{name}/status

The server keeps running after every chain has finished and stops when
interrupted (Ctrl+C) or on SIGTERM.

Example:
  taskstatus serve -c config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"pages", len(cfg.Pages),
		"grids", len(cfg.Grids),
		"retry_delay", cfg.RetryDelay.Duration().String(),
	)

	var targets config.Targets
	if cfg.Redis != nil {
		client := config.NewRedisClient(cfg.Redis)
		defer func() { _ = client.Close() }()

		targets = func(name string) taskstatus.Target {
			return config.RedisTarget(cfg.Redis, client, name)
		}
		logger.Info("mirroring results to redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	watches, err := config.BuildWatches(cfg, logger, targets)
	if err != nil {
		return fmt.Errorf("failed to build watches: %w", err)
	}

	opts := append(config.BoardOptions(cfg),
		taskstatus.WithWatches(watches...),
		taskstatus.WithBoardLogger(logger),
	)
	board, err := taskstatus.NewBoard(opts...)
	if err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start board - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- board.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
