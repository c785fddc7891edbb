package taskstatus

import (
	"errors"
	"log/slog"
)

// boardConfig holds mutable state during Board construction.
type boardConfig struct {
	title            string
	watches          []Watch
	port             int
	maxConcurrency   int
	logger           *slog.Logger
	outcomeCallbacks []func(string, Outcome, error)
}

// BoardOption is a function that configures a [Board] during construction.
type BoardOption func(*boardConfig) error

// WithWatch adds a named [Poller] to the board.
//
// Can be called multiple times. Returns an error if name is empty or p is nil.
//
// Example:
//
//	b, err := taskstatus.NewBoard(
//	    taskstatus.WithWatch("lab 1", p1),
//	    taskstatus.WithWatch("lab 2", p2),
//	)
func WithWatch(name string, p *Poller) BoardOption {
	return func(cfg *boardConfig) error {
		if name == "" {
			return errors.New("watch name cannot be empty")
		}
		if p == nil {
			return errors.New("watch poller cannot be nil")
		}
		cfg.watches = append(cfg.watches, Watch{Name: name, Poller: p})
		return nil
	}
}

// WithWatches adds several watches, for example the result of
// [NewWatchGrid]. Returns an error if any watch has an empty name or a nil
// poller.
func WithWatches(watches ...Watch) BoardOption {
	return func(cfg *boardConfig) error {
		for _, w := range watches {
			if err := WithWatch(w.Name, w.Poller)(cfg); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) BoardOption {
	return func(cfg *boardConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency sets how many status requests may be in flight at
// once across all watches. Every watch still runs its own chain; a chain
// waiting out a retry delay does not hold a slot. Defaults to 10.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) BoardOption {
	return func(cfg *boardConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithBoardLogger sets a custom [slog.Logger] for board events.
// Chain events are logged by each poller's own logger.
//
// Returns an error if the logger is nil.
func WithBoardLogger(logger *slog.Logger) BoardOption {
	return func(cfg *boardConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and
// header. Defaults to "Task status".
func WithTitle(title string) BoardOption {
	return func(cfg *boardConfig) error {
		cfg.title = title
		return nil
	}
}

// WithOutcomeCallback registers a function called when a watch's chain
// finishes, with the watch name, the outcome and the chain's error.
//
// Callbacks run on a single goroutine and must not block. Panics are
// recovered and logged. Nil callbacks are silently ignored.
func WithOutcomeCallback(cb func(name string, outcome Outcome, err error)) BoardOption {
	return func(cfg *boardConfig) error {
		if cb == nil {
			return nil
		}
		cfg.outcomeCallbacks = append(cfg.outcomeCallbacks, cb)
		return nil
	}
}
