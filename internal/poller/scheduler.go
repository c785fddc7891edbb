package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WatchInfo contains the configuration needed to run one named chain.
type WatchInfo struct {
	// Name identifies the watch in results and logs.
	Name string

	// ChainID identifies the chain run. A random ID is used if empty.
	ChainID string

	// Chain is the chain to run for this watch.
	Chain *Chain
}

// Event is emitted by a [Scheduler] for every attempt and for the end of
// each chain. Final is set on the last event of a chain.
type Event struct {
	WatchName  string
	ChainID    string
	Transition Transition
	Final      bool
	Result     Result
	CheckedAt  time.Time
}

// Scheduler runs many independent chains concurrently.
//
// Every watch gets exactly one chain run, each in its own goroutine, so a
// chain that keeps retrying never delays another. maxConcurrency bounds
// the number of status requests in flight across all chains. Events are emitted to a channel
// that is closed once all chains have finished or the scheduler is stopped.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	watches        []WatchInfo
	limiter        *Limiter
	events         chan Event
	logger         *slog.Logger
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewScheduler creates a new [Scheduler].
//
// The scheduler must be started with [Scheduler.Start]. Events are
// available via [Scheduler.Events].
func NewScheduler(watches []WatchInfo, maxConcurrency int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		watches:        watches,
		limiter:        NewLimiter(maxConcurrency),
		events:         make(chan Event, len(watches)+1),
		logger:         logger,
	}
}

// Events returns a receive-only channel of [Event] values. It is closed
// when every chain has finished or the scheduler stops.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Start launches all chains in the background and returns immediately.
//
// If ctx is nil, context.Background() is used. Start is idempotent, and a
// no-op after Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.events) })
		s.runWatches(runCtx)
	}()
}

// Stop cancels all running chains and waits for them to return.
//
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.events) })
}

// Wait blocks until all chains have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// runWatches runs every watch in its own goroutine and waits for all of
// them. Requests share the scheduler's limiter.
func (s *Scheduler) runWatches(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range s.watches {
		wg.Add(1)
		go func(w WatchInfo) {
			defer wg.Done()
			s.runWatch(ctx, w)
		}(w)
	}
	wg.Wait()
}

// runWatch runs one chain, forwarding its transitions as events.
func (s *Scheduler) runWatch(ctx context.Context, w WatchInfo) {
	chainID := w.ChainID
	if chainID == "" {
		chainID = uuid.NewString()
	}

	observed := *w.Chain
	if observed.cfg.Limiter == nil {
		observed.cfg.Limiter = s.limiter
	}
	userObserve := observed.cfg.Observe
	observed.cfg.Observe = func(t Transition) {
		s.safeObserve(userObserve, t, w.Name)
		s.emit(ctx, Event{
			WatchName:  w.Name,
			ChainID:    chainID,
			Transition: t,
			CheckedAt:  t.At,
		})
	}

	result := s.safeRun(ctx, &observed, w.Name, chainID)
	s.emit(ctx, Event{
		WatchName: w.Name,
		ChainID:   chainID,
		Final:     true,
		Result:    result,
		CheckedAt: time.Now(),
	})
}

// emit sends an event unless ctx is done.
func (s *Scheduler) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// safeRun runs the chain with panic recovery. A panic is logged with a
// correlation ID and reported as the chain's error.
func (s *Scheduler) safeRun(ctx context.Context, c *Chain, name, chainID string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("chain panic",
				"correlation_id", correlationID,
				"watch", name,
				"chain_id", chainID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			result = Result{
				State: StatePolling,
				Err:   fmt.Errorf("chain panic (correlation_id: %s)", correlationID),
			}
		}
	}()
	return c.Run(ctx)
}

// safeObserve calls a user observer with panic recovery.
func (s *Scheduler) safeObserve(fn func(Transition), t Transition, name string) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("observer panicked", "panic", r, "watch", name)
		}
	}()
	fn(t)
}
