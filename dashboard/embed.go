// Package dashboard provides the embedded web UI for a task status board.
//
// The page lists every watch with its own "task-status" element and keeps
// it current from the server's SSE stream. Assets are embedded at compile
// time so the binary needs no external files.
package dashboard

import "embed"

// Assets holds the dashboard page:
//
//	assets/
//	  index.html    - dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
