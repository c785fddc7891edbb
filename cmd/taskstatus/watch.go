package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jpalmerr/taskstatus"
	"github.com/jpalmerr/taskstatus/config"
	"github.com/jpalmerr/taskstatus/sink"
	"github.com/spf13/cobra"
)

// watchCmd polls one page, or every configured page, until each chain ends.
var watchCmd = &cobra.Command{
	Use:   "watch [page-url]",
	Short: "Poll a page's status route until the task finishes",
	Long: `Poll the status route of a page and print the result.

The status route is the page URL followed by "/status". Polling repeats
after --retry-delay while the backend answers 418. The body of a success
response is written to stdout, or to --output. Any other status ends
polling without output.

With -c, every page in the config file is polled concurrently and each
result on stdout is preceded by a "==> name <==" line.

Exit codes:
  0 - Every chain rendered or stopped
  1 - A request failed, the output could not be written, or polling was interrupted

Example:
  taskstatus watch https://lms.example.com/tasks/12
  taskstatus watch https://lms.example.com/tasks/12 -H "Cookie: session=abc" -o result.html
  taskstatus watch -c config.yaml --redis-addr localhost:6379`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	f := watchCmd.Flags()
	f.StringP("config", "c", "", "path to config file")
	f.StringP("output", "o", "", "write the result to this file instead of stdout")
	f.String("element-id", taskstatus.DefaultElementID, "element the result is rendered into")
	f.Duration("retry-delay", taskstatus.DefaultRetryDelay, "wait after a not-ready response")
	f.Duration("timeout", 30*time.Second, "per-request timeout")
	f.StringArrayP("header", "H", nil, `request header as "Name: value", repeatable`)
	f.String("redis-addr", "", "also store results in Redis at host:port")
	f.String("redis-password", "", "Redis password (defaults to $REDIS_PASSWORD)")
	f.Int("redis-db", 0, "Redis database number")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	if (configFile == "") == (len(args) == 0) {
		return errors.New("provide either a page URL or --config")
	}

	redisCfg, err := redisFromFlags(cmd)
	if err != nil {
		return err
	}

	var watches []taskstatus.Watch
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if redisCfg == nil {
			redisCfg = cfg.Redis
		}

		targets, closeTargets := watchTargets(cmd, redisCfg, true)
		defer closeTargets()

		watches, err = config.BuildWatches(cfg, logger, targets)
		if err != nil {
			return fmt.Errorf("failed to build watches: %w", err)
		}

		// counted after grids expand
		output, _ := cmd.Flags().GetString("output")
		if output != "" && len(watches) > 1 {
			return fmt.Errorf("--output needs a single page, config has %d; several pages would overwrite each other", len(watches))
		}
	} else {
		targets, closeTargets := watchTargets(cmd, redisCfg, false)
		defer closeTargets()

		w, err := watchFromFlags(cmd, args[0], logger, targets)
		if err != nil {
			return err
		}
		watches = append(watches, w)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return pollAll(ctx, watches, logger)
}

// watchFromFlags builds the poller for a page URL given on the command line.
func watchFromFlags(cmd *cobra.Command, pageURL string, logger *slog.Logger, targets config.Targets) (taskstatus.Watch, error) {
	elementID, _ := cmd.Flags().GetString("element-id")
	retryDelay, _ := cmd.Flags().GetDuration("retry-delay")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	rawHeaders, _ := cmd.Flags().GetStringArray("header")

	headers, err := parseHeaders(rawHeaders)
	if err != nil {
		return taskstatus.Watch{}, err
	}

	p, err := taskstatus.New(pageURL,
		taskstatus.WithElementID(elementID),
		taskstatus.WithRetryDelay(retryDelay),
		taskstatus.WithTimeout(timeout),
		taskstatus.WithHeaders(headers...),
		taskstatus.WithLogger(logger),
		taskstatus.WithTarget(targets(pageURL)),
	)
	if err != nil {
		return taskstatus.Watch{}, fmt.Errorf("invalid page: %w", err)
	}
	return taskstatus.Watch{Name: pageURL, Poller: p}, nil
}

// parseHeaders turns "Name: value" strings into key-value pairs.
func parseHeaders(raw []string) ([]string, error) {
	pairs := make([]string, 0, len(raw)*2)
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Name: value\"", h)
		}
		pairs = append(pairs, name, strings.TrimSpace(value))
	}
	return pairs, nil
}

// redisFromFlags returns the Redis settings given on the command line, or
// nil if --redis-addr is not set.
func redisFromFlags(cmd *cobra.Command) (*config.RedisConfig, error) {
	addr, _ := cmd.Flags().GetString("redis-addr")
	if addr == "" {
		return nil, nil
	}
	password, _ := cmd.Flags().GetString("redis-password")
	if password == "" {
		password = os.Getenv("REDIS_PASSWORD")
	}
	db, _ := cmd.Flags().GetInt("redis-db")

	rc := &config.RedisConfig{Addr: addr, Password: password, DB: db}
	if err := rc.Prepare(); err != nil {
		return nil, err
	}
	return rc, nil
}

// watchTargets returns the per-watch render targets for watch: the result
// goes to stdout or --output, and to Redis when configured. With labeled
// set, stdout results are headed by the watch name.
func watchTargets(cmd *cobra.Command, rc *config.RedisConfig, labeled bool) (config.Targets, func()) {
	output, _ := cmd.Flags().GetString("output")
	stdout := sink.Writer(cmd.OutOrStdout())

	base := func(name string) taskstatus.Target {
		switch {
		case output != "":
			return sink.File(output)
		case labeled:
			return stdout.Labeled(name)
		default:
			return stdout
		}
	}

	if rc == nil {
		return base, func() {}
	}

	client := config.NewRedisClient(rc)
	targets := func(name string) taskstatus.Target {
		return sink.Multi(base(name), config.RedisTarget(rc, client, name))
	}
	return targets, func() { _ = client.Close() }
}

// pollAll runs one chain per watch concurrently and waits for all of them.
// Stopped chains are not failures.
func pollAll(ctx context.Context, watches []taskstatus.Watch, logger *slog.Logger) error {
	runs := make([]*taskstatus.Run, len(watches))
	for i, w := range watches {
		runs[i] = w.Poller.Start(ctx)
	}

	var errs []error
	for i, r := range runs {
		outcome, err := r.Wait()
		watches[i].Poller.Close()

		logAttrs := []any{
			"watch", watches[i].Name,
			"state", outcome.State,
			"attempts", outcome.Attempts,
		}
		if err != nil {
			logger.Error("watch failed", append(logAttrs, "error", err.Error())...)
			errs = append(errs, fmt.Errorf("%s: %w", watches[i].Name, err))
			continue
		}
		logger.Debug("watch done", logAttrs...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d watches failed: %w", len(errs), len(watches), errors.Join(errs...))
	}
	return nil
}
