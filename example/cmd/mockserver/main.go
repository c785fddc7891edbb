// Standalone mock task backend for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/taskstatus watch http://localhost:9999/tasks/1
//	go run ./cmd/taskstatus serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/taskstatus/example/mocktask"
)

const (
	addr      = ":9999"
	taskCount = 6
	taskStep  = 5 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	fmt.Println("Mock task backend starting on", addr)
	fmt.Printf("Tasks 1-%d finish checking %s apart; every third fails\n", taskCount, taskStep)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	backend := mocktask.New(mocktask.Seed(taskCount, taskStep), logger)

	srv := &http.Server{
		Addr:              addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
