package taskstatus

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// pollerConfig holds mutable state during Poller construction.
type pollerConfig struct {
	elementID  string
	retryDelay time.Duration
	timeout    time.Duration
	headers    map[string]string
	target     Target
	logger     *slog.Logger
	httpClient *http.Client
	callbacks  []func(Attempt)
}

// Option is a function that configures a [Poller] during construction.
//
// Options return an error if validation fails.
type Option func(*pollerConfig) error

// WithElementID sets the id of the element the status body is rendered into.
// Defaults to "task-status".
//
// Returns an error if id is empty.
func WithElementID(id string) Option {
	return func(cfg *pollerConfig) error {
		if id == "" {
			return errors.New("element id cannot be empty")
		}
		cfg.elementID = id
		return nil
	}
}

// WithRetryDelay sets the fixed wait between a not-ready response and the
// next request. Defaults to 2 seconds. There is no backoff.
//
// Returns an error if the duration is zero or negative.
func WithRetryDelay(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("retry delay must be positive")
		}
		cfg.retryDelay = d
		return nil
	}
}

// WithTimeout sets the timeout of each status request. Defaults to 30
// seconds. A request that times out ends the chain with an error.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithHeaders adds HTTP headers sent with every status request, for
// example a session cookie.
//
// Accepts variadic key-value pairs. Returns an error if an odd number of
// arguments is provided.
func WithHeaders(keyValues ...string) Option {
	return func(cfg *pollerConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string, len(keyValues)/2)
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTarget sets where the body of a ready response is rendered.
// If not specified, each Poller renders into its own blank page.Document,
// available through [Poller.Target].
//
// Returns an error if the target is nil.
func WithTarget(t Target) Option {
	return func(cfg *pollerConfig) error {
		if t == nil {
			return errors.New("target cannot be nil")
		}
		cfg.target = t
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pollerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHTTPClient sets the *http.Client used for status requests.
// Redirects are followed according to the client's policy.
//
// Returns an error if the client is nil.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *pollerConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = hc
		return nil
	}
}

// WithAttemptCallback registers a function called after every status
// request of every chain.
//
// Callbacks run synchronously on the chain's goroutine in registration
// order and must not block. Panics are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithAttemptCallback(cb func(Attempt)) Option {
	return func(cfg *pollerConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}
