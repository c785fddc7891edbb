// Package taskstatus polls the status of a long-running server-side task
// and renders the result into a page element once it is ready.
//
// A page at some URL has a companion status route at the same URL followed
// by "/status". The backend answers that route with 418 (I'm a teapot)
// while the task is still running, with a failure status if it cannot
// report, and with 2xx or 3xx plus an HTML fragment once the task is done.
// A [Poller] requests the status route, waits a fixed delay after every
// 418 and requests again, and renders the fragment, unescaped, into the
// element "task-status" of its [Target].
//
// # Quick Start
//
//	doc := page.NewDocument()
//	p, err := taskstatus.New("https://lms.example.com/tasks/12",
//	    taskstatus.WithTarget(doc),
//	)
//	if err != nil {
//	    return err
//	}
//
//	outcome, err := p.Poll(ctx) // blocks until rendered, stopped or failed
//
// [Poller.Start] runs the same chain in the background. Every call starts
// a new chain; two calls poll twice.
//
// # Chains
//
// A chain is a small state machine:
//
//	Polling --418--> Polling (after the retry delay)
//	Polling --2xx/3xx--> Rendered
//	Polling --other--> Stopped
//
// Stopped is silent: [Poller.Poll] returns a nil error and the target is
// not touched. Request failures and target failures end the chain with an
// error wrapping [ErrRequest] or [ErrRender]. There is no retry limit and
// no backoff; use a context deadline to bound a chain.
//
// # Boards
//
// A [Board] runs one chain for each of several named pollers and serves a
// live dashboard mirroring their progress. [NewWatchGrid] builds many
// pollers from a page URL template.
//
// # Architecture
//
//   - internal/poller: HTTP client, chain state machine, request limiter and scheduler
//   - internal/store: In-memory watch status storage with pub/sub
//   - internal/server: dashboard, REST API, Server-Sent Events and watch mirrors
//   - page: HTML documents with addressable elements
//   - sink: render targets for writers, files and Redis
//   - dashboard: Embedded web UI assets
package taskstatus
