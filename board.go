package taskstatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpalmerr/taskstatus/dashboard"
	"github.com/jpalmerr/taskstatus/internal/poller"
	"github.com/jpalmerr/taskstatus/internal/server"
	"github.com/jpalmerr/taskstatus/internal/store"
)

const (
	defaultPort           = 8080
	defaultMaxConcurrency = 10
)

// Board runs one chain for each of several named pollers and mirrors
// their progress on a live dashboard.
//
// The typical lifecycle is:
//
//	b, err := taskstatus.NewBoard(
//	    taskstatus.WithWatch("lab 1", p1),
//	    taskstatus.WithWatch("lab 2", p2),
//	)
//	if err != nil {
//	    slog.Error("failed to create board", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	b.Start(ctx) // blocks until context cancelled
type Board struct {
	title            string
	watches          []Watch
	port             int
	maxConcurrency   int
	logger           *slog.Logger
	outcomeCallbacks []func(string, Outcome, error)
}

// Watch is a named [Poller] shown on a [Board].
type Watch struct {
	Name   string
	Poller *Poller
}

// NewBoard creates a [Board] with the given options.
//
// At least one watch must be configured via [WithWatch]. Watch names must
// be unique. Defaults: port 8080, max concurrency 10.
func NewBoard(opts ...BoardOption) (*Board, error) {
	cfg := &boardConfig{
		port:           defaultPort,
		maxConcurrency: defaultMaxConcurrency,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.watches) == 0 {
		return nil, errors.New("at least one watch is required")
	}

	seen := make(map[string]bool, len(cfg.watches))
	for _, w := range cfg.watches {
		if seen[w.Name] {
			return nil, fmt.Errorf("duplicate watch name: %q", w.Name)
		}
		seen[w.Name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Board{
		title:            cfg.title,
		watches:          cfg.watches,
		port:             cfg.port,
		maxConcurrency:   cfg.maxConcurrency,
		logger:           logger,
		outcomeCallbacks: cfg.outcomeCallbacks,
	}, nil
}

// Watches returns a copy of the configured watches.
func (b *Board) Watches() []Watch {
	cp := make([]Watch, len(b.watches))
	copy(cp, b.watches)
	return cp
}

// Port returns the configured HTTP port for the dashboard server.
func (b *Board) Port() int {
	return b.port
}

// Start runs every watch's chain once and serves the dashboard.
//
// Start blocks until ctx is cancelled, even after all chains have
// finished, so the final results stay visible. Cancelling ctx also ends
// chains that are still polling.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server
// fails to start.
func (b *Board) Start(ctx context.Context) error {
	b.logger.Info("board starting", "watch_count", len(b.watches))
	b.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", b.port))

	if ctx.Err() != nil {
		return nil
	}

	statusStore := store.NewMemoryStore()
	infos, byName := b.prepare(statusStore)

	scheduler := poller.NewScheduler(infos, b.maxConcurrency, b.logger)
	scheduler.Start(ctx)

	// track the event consumer to ensure clean shutdown
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range scheduler.Events() {
			b.apply(statusStore, byName[ev.WatchName], ev)
		}
		b.logger.Debug("all chains finished")
	}()

	cleanup := func() {
		scheduler.Stop()
		wg.Wait()
	}

	httpServer := server.NewServer(statusStore, b.port, dashboard.Assets, b.title, b.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	b.logger.Info("board stopped")
	return nil
}

// boardWatch is the per-run state of a watch.
type boardWatch struct {
	Watch
	chainID string
	logger  *slog.Logger
}

// prepare builds one chain per watch and seeds the store with its
// initial polling state.
func (b *Board) prepare(st store.Store) ([]poller.WatchInfo, map[string]*boardWatch) {
	infos := make([]poller.WatchInfo, 0, len(b.watches))
	byName := make(map[string]*boardWatch, len(b.watches))

	for _, w := range b.watches {
		chainID := uuid.NewString()
		logger := w.Poller.chainLogger(chainID).With("watch", w.Name)

		byName[w.Name] = &boardWatch{Watch: w, chainID: chainID, logger: logger}
		infos = append(infos, poller.WatchInfo{
			Name:    w.Name,
			ChainID: chainID,
			Chain:   w.Poller.newChain(chainID, logger),
		})
		st.Update(b.baseStatus(w, chainID))
	}
	return infos, byName
}

func (b *Board) baseStatus(w Watch, chainID string) store.WatchStatus {
	return store.WatchStatus{
		Name:       w.Name,
		PageURL:    w.Poller.PageURL(),
		StatusPath: w.Poller.StatusPath(),
		ElementID:  w.Poller.ElementID(),
		ChainID:    chainID,
		State:      string(StatePolling),
		UpdatedAt:  time.Now(),
	}
}

// apply mirrors a scheduler event into the store. Final events also
// produce the chain's outcome and fire the outcome callbacks.
func (b *Board) apply(st store.Store, w *boardWatch, ev poller.Event) {
	if w == nil {
		return
	}
	status := b.baseStatus(w.Watch, w.chainID)
	status.UpdatedAt = ev.CheckedAt

	if !ev.Final {
		// the body arrives with the final event
		if ev.Transition.To == poller.StateRendered {
			return
		}
		status.State = ev.Transition.To
		status.Attempts = ev.Transition.Attempt
		status.StatusCode = ev.Transition.StatusCode
		st.Update(status)
		return
	}

	outcome, err := w.Poller.finish(w.logger, w.chainID, ev.Result)
	status.State = string(outcome.State)
	status.Attempts = outcome.Attempts
	status.StatusCode = outcome.StatusCode
	if outcome.State == StateRendered {
		status.Content = string(outcome.Body)
	}
	if err != nil {
		msg := err.Error()
		status.Error = &msg
	}
	st.Update(status)

	for _, cb := range b.outcomeCallbacks {
		invokeOutcomeCallbackSafe(cb, w.Name, outcome, err, b.logger)
	}
}

// invokeOutcomeCallbackSafe calls an outcome callback with panic recovery.
func invokeOutcomeCallbackSafe(cb func(string, Outcome, error), name string, outcome Outcome, err error, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("outcome callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", r,
				"watch", name,
			)
		}
	}()
	cb(name, outcome, err)
}
