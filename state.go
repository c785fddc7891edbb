package taskstatus

import "time"

// State is the position of a poll chain in its state machine.
//
// A chain starts in [StatePolling] and ends in either [StateStopped] or
// [StateRendered]:
//
//	Polling -> Polling  (not ready, wait and retry)
//	Polling -> Stopped  (any other non-success status)
//	Polling -> Rendered (success, body rendered into the target element)
type State string

const (
	// StatePolling is the initial state. A chain that returns an error
	// never left it.
	StatePolling State = "polling"

	// StateStopped means the backend answered with a failure status.
	// Nothing was rendered and no retry follows.
	StateStopped State = "stopped"

	// StateRendered means the response body was rendered into the target
	// element. No further requests follow.
	StateRendered State = "rendered"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateRendered
}

// Attempt describes one status request of a chain.
//
// Attempts are passed to callbacks registered with [WithAttemptCallback].
type Attempt struct {
	// ChainID identifies the chain this attempt belongs to.
	ChainID string

	// StatusPath is the URL that was requested.
	StatusPath string

	// Number counts attempts within the chain, starting at 1.
	Number int

	// StatusCode is zero if the request failed before a response arrived.
	StatusCode int

	// State is the state the chain moved to after this attempt.
	State State

	// Latency is the time taken by the request.
	Latency time.Duration

	// At is when the attempt completed.
	At time.Time

	// Error is set if the request or the render failed.
	Error error
}

// Outcome is the result of one poll chain.
type Outcome struct {
	// ChainID is a random identifier for the chain.
	ChainID string

	// StatusPath is the URL the chain polled.
	StatusPath string

	// State is the final state. It is [StatePolling] when the chain
	// ended with an error.
	State State

	// Attempts is the number of requests issued.
	Attempts int

	// StatusCode is the code of the last response, or zero.
	StatusCode int

	// Body is the rendered content when State is [StateRendered].
	Body []byte

	// Elapsed is the total duration of the chain including retry waits.
	Elapsed time.Duration
}
