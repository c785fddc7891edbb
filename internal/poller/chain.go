package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Chain states. Polling is initial; Stopped and Rendered are terminal.
const (
	StatePolling  = "polling"
	StateStopped  = "stopped"
	StateRendered = "rendered"
)

// DefaultNotReadyCode is the status a backend answers with while the task
// is still being processed.
const DefaultNotReadyCode = http.StatusTeapot

var (
	// ErrRequest wraps failures to obtain a status response.
	ErrRequest = errors.New("status request failed")

	// ErrRender wraps failures returned by a chain's Renderer.
	ErrRender = errors.New("render failed")
)

// Renderer receives the body of the first ready response.
type Renderer func(ctx context.Context, body []byte) error

// Transition describes one attempt of a chain and the state it led to.
type Transition struct {
	Attempt    int
	From       string
	To         string
	StatusCode int
	Latency    time.Duration
	At         time.Time
	Error      error
}

// ChainConfig contains everything a [Chain] needs to run.
type ChainConfig struct {
	// StatusURL is requested on every attempt, verbatim.
	StatusURL string

	// Headers are sent with every request.
	Headers map[string]string

	// Timeout bounds each request. Zero means only the run context applies.
	Timeout time.Duration

	// RetryDelay is the fixed wait after a not-ready response.
	RetryDelay time.Duration

	// NotReadyCode is the status that triggers a retry.
	// If 0, DefaultNotReadyCode is used.
	NotReadyCode int

	// Render is called once with the body of the ready response.
	Render Renderer

	// Observe, if set, is called after every attempt.
	Observe func(Transition)

	// Limiter, if set, is held for the duration of each request.
	// Retry waits do not hold it.
	Limiter *Limiter
}

// Result is the outcome of [Chain.Run].
//
// A non-nil Err means the chain was aborted before reaching a terminal
// state; State is then StatePolling.
type Result struct {
	State      string
	Attempts   int
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
	Err        error
}

// Chain polls a status URL until the backend reports ready or failed.
//
// A Chain is an explicit state machine: each iteration performs one request
// and the next transition is driven by a timer, so waiting never grows the
// call stack. A Chain has no shared state with other chains; running the
// same Chain twice produces two independent runs.
type Chain struct {
	cfg    ChainConfig
	client *Client
}

// NewChain creates a [Chain]. A nil client gets a fresh [NewClient].
func NewChain(client *Client, cfg ChainConfig) *Chain {
	if client == nil {
		client = NewClient()
	}
	if cfg.NotReadyCode == 0 {
		cfg.NotReadyCode = DefaultNotReadyCode
	}
	return &Chain{cfg: cfg, client: client}
}

// Run executes the chain until it reaches a terminal state, a request
// fails, rendering fails or ctx is done.
func (c *Chain) Run(ctx context.Context) Result {
	start := time.Now()
	result := Result{State: StatePolling}

	for {
		if err := ctx.Err(); err != nil {
			result.Err = err
			result.Elapsed = time.Since(start)
			return result
		}

		if err := c.cfg.Limiter.Acquire(ctx); err != nil {
			result.Err = err
			result.Elapsed = time.Since(start)
			return result
		}
		result.Attempts++
		resp := c.client.Fetch(ctx, c.cfg.StatusURL, c.cfg.Headers, c.cfg.Timeout)
		c.cfg.Limiter.Release()
		result.StatusCode = resp.StatusCode

		next := StatePolling
		var err error
		if resp.Error != nil {
			err = fmt.Errorf("%w: %w", ErrRequest, resp.Error)
		} else {
			next = Classify(resp.StatusCode, c.cfg.NotReadyCode)
			if next == StateRendered {
				if rerr := c.render(ctx, resp.Body); rerr != nil {
					next = StatePolling
					err = rerr
				} else {
					result.Body = resp.Body
				}
			}
		}

		c.observe(Transition{
			Attempt:    result.Attempts,
			From:       StatePolling,
			To:         next,
			StatusCode: resp.StatusCode,
			Latency:    resp.Latency,
			At:         time.Now(),
			Error:      err,
		})

		if err != nil {
			result.Err = err
			result.Elapsed = time.Since(start)
			return result
		}

		if next != StatePolling {
			result.State = next
			result.Elapsed = time.Since(start)
			return result
		}

		if err := c.wait(ctx); err != nil {
			result.Err = err
			result.Elapsed = time.Since(start)
			return result
		}
	}
}

func (c *Chain) render(ctx context.Context, body []byte) error {
	if c.cfg.Render == nil {
		return nil
	}
	if err := c.cfg.Render(ctx, body); err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}
	return nil
}

func (c *Chain) observe(t Transition) {
	if c.cfg.Observe != nil {
		c.cfg.Observe(t)
	}
}

// wait blocks for the retry delay on a timer, returning early if ctx ends.
func (c *Chain) wait(ctx context.Context) error {
	if c.cfg.RetryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.cfg.RetryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Classify maps a response status code to the next chain state.
//
// The not-ready code is checked first; after that any code outside
// 200-399 stops the chain.
func Classify(code, notReady int) string {
	switch {
	case code == notReady:
		return StatePolling
	case code >= 200 && code < 400:
		return StateRendered
	default:
		return StateStopped
	}
}
