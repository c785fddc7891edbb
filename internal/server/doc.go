// Package server provides the HTTP server for the taskstatus mirror.
//
// It serves the embedded dashboard, a JSON snapshot of all watches, a
// Server-Sent Events stream, and per-watch page and status routes. The
// per-watch status route answers with the same 418-while-not-ready
// contract as the backends being watched, so one mirror can be polled by
// another.
//
// The server shuts down gracefully on context cancellation, with a
// 5-second timeout for in-flight requests.
package server
