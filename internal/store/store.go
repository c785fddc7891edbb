package store

import "time"

// WatchStatus is the latest known state of one watched page.
//
// WatchStatus is the storage representation used by the REST API and SSE.
// It is decoupled from the poller's internal types.
type WatchStatus struct {
	// Name identifies the watch.
	Name string `json:"name"`

	// PageURL is the page the status belongs to.
	PageURL string `json:"page_url"`

	// StatusPath is the URL being polled.
	StatusPath string `json:"status_path"`

	// ElementID is the id of the element the content belongs in.
	ElementID string `json:"element_id"`

	// ChainID identifies the poll chain that produced this status.
	ChainID string `json:"chain_id"`

	// State is "polling", "stopped" or "rendered".
	State string `json:"state"`

	// Attempts counts the status requests made so far.
	Attempts int `json:"attempts"`

	// StatusCode is the code of the latest response.
	StatusCode int `json:"status_code"`

	// Content is the rendered markup once State is "rendered".
	Content string `json:"content"`

	// UpdatedAt is the time of the latest change.
	UpdatedAt time.Time `json:"updated_at"`

	// Error contains the error message if the chain was aborted.
	Error *string `json:"error"`
}

// Store defines the interface for storing and subscribing to watch updates.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores a status and notifies all subscribers.
	// Statuses are keyed by Name.
	Update(status WatchStatus)

	// Get returns the status stored under name.
	Get(name string) (WatchStatus, bool)

	// GetAll returns all stored statuses ordered by name.
	GetAll() []WatchStatus

	// Subscribe returns a channel that receives updates.
	// Slow consumers may miss updates. Call Unsubscribe when done.
	Subscribe() <-chan WatchStatus

	// Unsubscribe removes a subscription and closes the channel.
	Unsubscribe(ch <-chan WatchStatus)
}
