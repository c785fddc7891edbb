package config

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/jpalmerr/taskstatus"
	"github.com/jpalmerr/taskstatus/sink"
	"github.com/redis/go-redis/v9"
)

// Targets returns the render target for a watch. A nil Targets, or a nil
// result, keeps the poller's own blank document.
type Targets func(watchName string) taskstatus.Target

// BuildWatches converts parsed configuration into named pollers.
//
// It processes both pages and grids, returning a combined slice. Grid
// dimensions are expanded via cartesian product.
func BuildWatches(cfg *Config, logger *slog.Logger, targets Targets) ([]taskstatus.Watch, error) {
	var watches []taskstatus.Watch

	for _, pc := range cfg.Pages {
		opts := pollerOptions(cfg, logger, pc.ElementID, pc.Timeout, pc.Headers)
		opts = append(opts, targetOption(targets, pc.Name)...)

		p, err := taskstatus.New(pc.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("page (%s): %w", pc.Name, err)
		}
		watches = append(watches, taskstatus.Watch{Name: pc.Name, Poller: p})
	}

	for _, gc := range cfg.Grids {
		gridWatches, err := buildGridWatches(cfg, logger, targets, gc)
		if err != nil {
			return nil, err
		}
		watches = append(watches, gridWatches...)
	}

	return watches, nil
}

// buildGridWatches expands a GridConfig into one watch per combination.
func buildGridWatches(cfg *Config, logger *slog.Logger, targets Targets, gc GridConfig) ([]taskstatus.Watch, error) {
	opts := pollerOptions(cfg, logger, gc.ElementID, gc.Timeout, gc.Headers)

	expanded, err := taskstatus.NewWatchGrid(gc.Name, gc.URLTemplate, gc.Dimensions, opts...)
	if err != nil {
		return nil, fmt.Errorf("grid (%s): %w", gc.Name, err)
	}
	if targets == nil {
		return expanded, nil
	}

	// rebuild with a target per generated name
	watches := make([]taskstatus.Watch, 0, len(expanded))
	for _, w := range expanded {
		p, err := taskstatus.New(w.Poller.PageURL(), append(opts, targetOption(targets, w.Name)...)...)
		if err != nil {
			return nil, fmt.Errorf("grid (%s): %w", w.Name, err)
		}
		watches = append(watches, taskstatus.Watch{Name: w.Name, Poller: p})
	}
	return watches, nil
}

func pollerOptions(cfg *Config, logger *slog.Logger, elementID string, timeout Duration, headers map[string]string) []taskstatus.Option {
	opts := []taskstatus.Option{
		taskstatus.WithRetryDelay(cfg.RetryDelay.Duration()),
	}
	if logger != nil {
		opts = append(opts, taskstatus.WithLogger(logger))
	}
	if elementID != "" {
		opts = append(opts, taskstatus.WithElementID(elementID))
	}
	if timeout != 0 {
		opts = append(opts, taskstatus.WithTimeout(timeout.Duration()))
	}
	if len(headers) > 0 {
		opts = append(opts, taskstatus.WithHeaders(mapToKeyValuePairs(headers)...))
	}
	return opts
}

func targetOption(targets Targets, name string) []taskstatus.Option {
	if targets == nil {
		return nil
	}
	if t := targets(name); t != nil {
		return []taskstatus.Option{taskstatus.WithTarget(t)}
	}
	return nil
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// BoardOptions returns the board settings from cfg.
func BoardOptions(cfg *Config) []taskstatus.BoardOption {
	opts := []taskstatus.BoardOption{
		taskstatus.WithTitle(cfg.Title),
		taskstatus.WithPort(cfg.Port),
	}
	if cfg.MaxConcurrency > 0 {
		opts = append(opts, taskstatus.WithMaxConcurrency(cfg.MaxConcurrency))
	}
	return opts
}

// NewRedisClient creates a go-redis client from rc.
func NewRedisClient(rc *RedisConfig) *redis.Client {
	return sink.NewRedisClient(rc.Addr, rc.Password, rc.DB)
}

// RedisTarget returns a Redis render target for one watch. Keys have the
// form "<key_prefix>:<watch name>:<element id>".
func RedisTarget(rc *RedisConfig, client sink.RedisClient, watchName string) *sink.RedisTarget {
	return sink.Redis(client, sink.RedisOptions{
		KeyPrefix: rc.KeyPrefix + ":" + watchName,
		Channel:   rc.Channel,
		TTL:       rc.TTL.Duration(),
	})
}
