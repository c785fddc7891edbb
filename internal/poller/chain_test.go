package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedServer answers with the given status codes in order, repeating the
// last one, and records the time of every request.
type scriptedServer struct {
	*httptest.Server
	mu    sync.Mutex
	times []time.Time
	paths []string
}

func newScriptedServer(t *testing.T, body string, codes ...int) *scriptedServer {
	t.Helper()
	s := &scriptedServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		n := len(s.times)
		s.times = append(s.times, time.Now())
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()

		code := codes[len(codes)-1]
		if n < len(codes) {
			code = codes[n]
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *scriptedServer) requests() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.times...)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{418, StatePolling},
		{200, StateRendered},
		{204, StateRendered},
		{302, StateRendered},
		{399, StateRendered},
		{199, StateStopped},
		{400, StateStopped},
		{404, StateStopped},
		{500, StateStopped},
		{503, StateStopped},
	}
	for _, tt := range tests {
		if got := Classify(tt.code, DefaultNotReadyCode); got != tt.want {
			t.Errorf("Classify(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestClassify_CustomNotReadyCode(t *testing.T) {
	if got := Classify(202, 202); got != StatePolling {
		t.Errorf("Classify(202, 202) = %q, want %q", got, StatePolling)
	}
	if got := Classify(418, 202); got != StateStopped {
		t.Errorf("Classify(418, 202) = %q, want %q", got, StateStopped)
	}
}

func TestChain_RetriesUntilReady(t *testing.T) {
	const delay = 40 * time.Millisecond
	srv := newScriptedServer(t, "done", 418, 418, 418, 200)

	var rendered []byte
	chain := NewChain(nil, ChainConfig{
		StatusURL:  srv.URL + "/status",
		RetryDelay: delay,
		Render: func(ctx context.Context, body []byte) error {
			rendered = body
			return nil
		},
	})

	result := chain.Run(context.Background())
	if result.Err != nil {
		t.Fatalf("Run() error = %v", result.Err)
	}
	if result.State != StateRendered {
		t.Errorf("State = %q, want %q", result.State, StateRendered)
	}
	if result.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", result.Attempts)
	}
	if string(rendered) != "done" {
		t.Errorf("rendered = %q, want %q", rendered, "done")
	}
	if result.Elapsed < 3*delay {
		t.Errorf("Elapsed = %v, want at least %v", result.Elapsed, 3*delay)
	}

	times := srv.requests()
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < delay {
			t.Errorf("gap between request %d and %d = %v, want >= %v", i-1, i, gap, delay)
		}
	}

	// no further requests after rendering
	time.Sleep(3 * delay)
	if n := len(srv.requests()); n != 4 {
		t.Errorf("requests = %d after render, want 4", n)
	}
}

func TestChain_StopsOnFailure(t *testing.T) {
	srv := newScriptedServer(t, "missing", 404)

	var renders atomic.Int32
	chain := NewChain(nil, ChainConfig{
		StatusURL:  srv.URL + "/status",
		RetryDelay: 10 * time.Millisecond,
		Render: func(ctx context.Context, body []byte) error {
			renders.Add(1)
			return nil
		},
	})

	result := chain.Run(context.Background())
	if result.Err != nil {
		t.Fatalf("Run() error = %v", result.Err)
	}
	if result.State != StateStopped {
		t.Errorf("State = %q, want %q", result.State, StateStopped)
	}
	if renders.Load() != 0 {
		t.Errorf("Render called %d times, want 0", renders.Load())
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(srv.requests()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestChain_RenderError(t *testing.T) {
	srv := newScriptedServer(t, "ok", 200)
	boom := errors.New("no such element")

	chain := NewChain(nil, ChainConfig{
		StatusURL: srv.URL,
		Render: func(ctx context.Context, body []byte) error {
			return boom
		},
	})

	result := chain.Run(context.Background())
	if !errors.Is(result.Err, ErrRender) {
		t.Errorf("Err = %v, want ErrRender", result.Err)
	}
	if !errors.Is(result.Err, boom) {
		t.Errorf("Err = %v, want it to wrap the render error", result.Err)
	}
	if result.State != StatePolling {
		t.Errorf("State = %q, want %q", result.State, StatePolling)
	}
}

func TestChain_NetworkErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	result := NewChain(nil, ChainConfig{StatusURL: url, RetryDelay: time.Millisecond}).Run(context.Background())
	if result.Err == nil {
		t.Fatal("Err = nil, want network error")
	}
	if !errors.Is(result.Err, ErrRequest) {
		t.Errorf("Err = %v, want ErrRequest", result.Err)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 (network errors are not retried)", result.Attempts)
	}
}

func TestChain_OversizedBodyIsNotRendered(t *testing.T) {
	srv := newScriptedServer(t, "<p>"+strings.Repeat("x", maxResponseBodySize)+"</p><b>end</b>", 200)

	var rendered atomic.Bool
	chain := NewChain(nil, ChainConfig{
		StatusURL: srv.URL,
		Render: func(context.Context, []byte) error {
			rendered.Store(true)
			return nil
		},
	})

	result := chain.Run(context.Background())
	if !errors.Is(result.Err, ErrRequest) || !errors.Is(result.Err, ErrBodyTooLarge) {
		t.Errorf("Err = %v, want ErrRequest wrapping ErrBodyTooLarge", result.Err)
	}
	if result.State != StatePolling {
		t.Errorf("State = %q, want %q", result.State, StatePolling)
	}
	if rendered.Load() {
		t.Error("a truncated body was rendered")
	}
}

func TestChain_LimiterIsReleasedBetweenAttempts(t *testing.T) {
	srv := newScriptedServer(t, "ok", 418, 418, 200)
	limiter := NewLimiter(1)

	result := NewChain(nil, ChainConfig{
		StatusURL:  srv.URL,
		RetryDelay: time.Millisecond,
		Limiter:    limiter,
	}).Run(context.Background())
	if result.State != StateRendered || result.Attempts != 3 {
		t.Fatalf("result = %+v, want rendered after 3 attempts", result)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := limiter.Acquire(ctx); err != nil {
		t.Errorf("limiter still held after the chain ended: %v", err)
	}
}

func TestChain_ContextCancelledDuringWait(t *testing.T) {
	srv := newScriptedServer(t, "", 418)

	ctx, cancel := context.WithCancel(context.Background())
	chain := NewChain(nil, ChainConfig{
		StatusURL:  srv.URL,
		RetryDelay: time.Hour,
		Observe: func(tr Transition) {
			cancel()
		},
	})

	done := make(chan Result, 1)
	go func() { done <- chain.Run(ctx) }()

	select {
	case result := <-done:
		if !errors.Is(result.Err, context.Canceled) {
			t.Errorf("Err = %v, want context.Canceled", result.Err)
		}
		if result.Attempts != 1 {
			t.Errorf("Attempts = %d, want 1", result.Attempts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestChain_ObserveSeesEveryAttempt(t *testing.T) {
	srv := newScriptedServer(t, "done", 418, 418, 200)

	var transitions []Transition
	chain := NewChain(nil, ChainConfig{
		StatusURL:  srv.URL,
		RetryDelay: 5 * time.Millisecond,
		Observe: func(tr Transition) {
			transitions = append(transitions, tr)
		},
	})

	if result := chain.Run(context.Background()); result.Err != nil {
		t.Fatalf("Run() error = %v", result.Err)
	}

	want := []string{StatePolling, StatePolling, StateRendered}
	if len(transitions) != len(want) {
		t.Fatalf("got %d transitions, want %d", len(transitions), len(want))
	}
	for i, tr := range transitions {
		if tr.To != want[i] {
			t.Errorf("transition %d To = %q, want %q", i, tr.To, want[i])
		}
		if tr.Attempt != i+1 {
			t.Errorf("transition %d Attempt = %d, want %d", i, tr.Attempt, i+1)
		}
		if tr.From != StatePolling {
			t.Errorf("transition %d From = %q, want %q", i, tr.From, StatePolling)
		}
	}
}

func TestChain_RunTwiceIsIndependent(t *testing.T) {
	srv := newScriptedServer(t, "done", 418, 200, 418, 200)

	chain := NewChain(nil, ChainConfig{StatusURL: srv.URL, RetryDelay: 5 * time.Millisecond})

	first := chain.Run(context.Background())
	second := chain.Run(context.Background())

	if first.Attempts != 2 || second.Attempts != 2 {
		t.Errorf("attempts = %d and %d, want 2 and 2", first.Attempts, second.Attempts)
	}
	if first.State != StateRendered || second.State != StateRendered {
		t.Errorf("states = %q and %q, want rendered", first.State, second.State)
	}
}
