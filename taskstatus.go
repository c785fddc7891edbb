package taskstatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jpalmerr/taskstatus/internal/poller"
	"github.com/jpalmerr/taskstatus/page"
)

const (
	// DefaultElementID is the id of the element status content is rendered into.
	DefaultElementID = page.DefaultElementID

	// DefaultRetryDelay is the fixed wait after a not-ready response.
	DefaultRetryDelay = 2000 * time.Millisecond

	// NotReadyCode is the status a backend uses to say "not finished yet".
	NotReadyCode = poller.DefaultNotReadyCode

	statusSuffix          = "/status"
	defaultRequestTimeout = 30 * time.Second
)

var (
	// ErrRequest is returned when a status request gets no response,
	// for example when the connection is refused or times out.
	ErrRequest = poller.ErrRequest

	// ErrRender is returned when the target rejects the content, for
	// example because the element does not exist.
	ErrRender = poller.ErrRender
)

// StatusPath returns the status URL for a page: pageURL followed by
// "/status". The page URL is not normalized, so a trailing slash yields
// "//status".
func StatusPath(pageURL string) string {
	return pageURL + statusSuffix
}

// Poller polls the status URL of a page and renders the result.
//
// Poller is immutable after creation via [New]; every call to
// [Poller.Poll] or [Poller.Start] runs a new, independent chain.
type Poller struct {
	pageURL    string
	statusPath string
	elementID  string
	retryDelay time.Duration
	timeout    time.Duration
	headers    map[string]string
	target     Target
	logger     *slog.Logger
	callbacks  []func(Attempt)
	client     *poller.Client
}

// New creates a [Poller] for the page at pageURL.
//
// The status path is computed once, here. pageURL must be an absolute
// http or https URL.
//
// Example:
//
//	doc := page.NewDocument()
//	p, err := taskstatus.New("https://lms.example.com/tasks/12",
//	    taskstatus.WithTarget(doc),
//	)
func New(pageURL string, opts ...Option) (*Poller, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("page URL must have an http:// or https:// scheme")
	}
	if parsed.Host == "" {
		return nil, errors.New("page URL must have a host")
	}

	cfg := &pollerConfig{
		elementID:  DefaultElementID,
		retryDelay: DefaultRetryDelay,
		timeout:    defaultRequestTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	target := cfg.target
	if target == nil {
		target = page.NewDocument()
	}

	return &Poller{
		pageURL:    pageURL,
		statusPath: StatusPath(pageURL),
		elementID:  cfg.elementID,
		retryDelay: cfg.retryDelay,
		timeout:    cfg.timeout,
		headers:    copyMap(cfg.headers),
		target:     target,
		logger:     logger,
		callbacks:  cfg.callbacks,
		client:     poller.NewClientWith(cfg.httpClient),
	}, nil
}

// PageURL returns the page URL the poller was created with.
func (p *Poller) PageURL() string {
	return p.pageURL
}

// StatusPath returns the URL requested on every attempt.
func (p *Poller) StatusPath() string {
	return p.statusPath
}

// ElementID returns the id of the element content is rendered into.
func (p *Poller) ElementID() string {
	return p.elementID
}

// RetryDelay returns the wait between a not-ready response and the next request.
func (p *Poller) RetryDelay() time.Duration {
	return p.retryDelay
}

// Target returns the render target.
func (p *Poller) Target() Target {
	return p.target
}

// Close releases idle connections held by the poller.
func (p *Poller) Close() {
	p.client.Close()
}

// Poll runs one chain to completion and returns its [Outcome].
//
// The chain requests the status path. A not-ready (418) response is
// followed by a fixed wait and another request, with no retry limit. Any
// other status outside 200-399 stops the chain silently: the outcome is
// [StateStopped] and the error is nil. A successful response is rendered
// into the target element and ends the chain in [StateRendered].
//
// Request failures are returned wrapped in [ErrRequest] and are not
// retried. Target failures are returned wrapped in [ErrRender]. If ctx is
// cancelled the chain ends with ctx's error.
func (p *Poller) Poll(ctx context.Context) (Outcome, error) {
	return p.run(ctx, uuid.NewString())
}

// Start launches a chain in a background goroutine and returns a handle
// to it. Each call starts a new chain; chains share no state.
func (p *Poller) Start(ctx context.Context) *Run {
	r := &Run{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		r.outcome, r.err = p.run(ctx, r.id)
	}()
	return r
}

func (p *Poller) run(ctx context.Context, chainID string) (Outcome, error) {
	logger := p.chainLogger(chainID)
	result := p.newChain(chainID, logger).Run(ctx)
	return p.finish(logger, chainID, result)
}

func (p *Poller) chainLogger(chainID string) *slog.Logger {
	return p.logger.With("chain_id", chainID, "status_path", p.statusPath)
}

// newChain builds the state machine for one chain run.
func (p *Poller) newChain(chainID string, logger *slog.Logger) *poller.Chain {
	logger.Debug("poll chain started", "element_id", p.elementID)

	return poller.NewChain(p.client, poller.ChainConfig{
		StatusURL:    p.statusPath,
		Headers:      p.headers,
		Timeout:      p.timeout,
		RetryDelay:   p.retryDelay,
		NotReadyCode: NotReadyCode,
		Render: func(ctx context.Context, body []byte) error {
			return p.target.SetInnerHTML(ctx, p.elementID, body)
		},
		Observe: func(t poller.Transition) {
			p.observe(logger, chainID, t)
		},
	})
}

// finish converts a chain result to an Outcome and logs it.
func (p *Poller) finish(logger *slog.Logger, chainID string, result poller.Result) (Outcome, error) {
	outcome := Outcome{
		ChainID:    chainID,
		StatusPath: p.statusPath,
		State:      State(result.State),
		Attempts:   result.Attempts,
		StatusCode: result.StatusCode,
		Body:       result.Body,
		Elapsed:    result.Elapsed,
	}

	logAttrs := []any{
		"state", outcome.State,
		"attempts", outcome.Attempts,
		"status_code", outcome.StatusCode,
		"elapsed_ms", outcome.Elapsed.Milliseconds(),
	}
	if result.Err != nil {
		logger.Warn("poll chain aborted", append(logAttrs, "error", result.Err.Error())...)
		return outcome, result.Err
	}
	logger.Info("poll chain finished", logAttrs...)
	return outcome, nil
}

// observe logs a transition and hands it to the attempt callbacks.
func (p *Poller) observe(logger *slog.Logger, chainID string, t poller.Transition) {
	logger.Debug("status attempt",
		"attempt", t.Attempt,
		"status_code", t.StatusCode,
		"next_state", t.To,
		"latency_ms", t.Latency.Milliseconds(),
	)

	if len(p.callbacks) == 0 {
		return
	}
	attempt := Attempt{
		ChainID:    chainID,
		StatusPath: p.statusPath,
		Number:     t.Attempt,
		StatusCode: t.StatusCode,
		State:      State(t.To),
		Latency:    t.Latency,
		At:         t.At,
		Error:      t.Error,
	}
	for _, cb := range p.callbacks {
		invokeCallbackSafe(cb, attempt, logger)
	}
}

// invokeCallbackSafe calls an attempt callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe(cb func(Attempt), attempt Attempt, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("attempt callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", r,
				"attempt", attempt.Number,
			)
		}
	}()
	cb(attempt)
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Run is a handle to a chain started with [Poller.Start].
type Run struct {
	id      string
	done    chan struct{}
	outcome Outcome
	err     error
}

// ID returns the chain id.
func (r *Run) ID() string {
	return r.id
}

// Done returns a channel that is closed when the chain has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the chain has finished and returns its result.
func (r *Run) Wait() (Outcome, error) {
	<-r.done
	return r.outcome, r.err
}
