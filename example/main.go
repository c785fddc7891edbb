package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/taskstatus"
	"github.com/jpalmerr/taskstatus/example/mocktask"
)

func main() {
	// in-process task backend: 4 tasks finishing 5s apart
	backend := mocktask.New(mocktask.Seed(4, 5*time.Second), slog.Default())
	go func() {
		if err := http.ListenAndServe(":9999", backend.Handler()); err != nil {
			slog.Error("mock backend error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	// one watch per task from a single template
	watches, err := taskstatus.NewWatchGrid("Task",
		"http://localhost:9999/tasks/{{.id}}",
		map[string][]string{"id": {"1", "2", "3", "4"}},
		taskstatus.WithRetryDelay(time.Second),
	)
	if err != nil {
		slog.Error("failed to create watches", "error", err)
		os.Exit(1)
	}

	board, err := taskstatus.NewBoard(
		taskstatus.WithWatches(watches...),
		taskstatus.WithTitle("Task status demo"),
		taskstatus.WithPort(8080),
		taskstatus.WithOutcomeCallback(func(name string, o taskstatus.Outcome, err error) {
			slog.Info("task finished", "watch", name, "state", o.State, "attempts", o.Attempts)
		}),
	)
	if err != nil {
		slog.Error("failed to create board", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Task status demo")
	fmt.Println("  Dashboard:  http://localhost:8080")
	fmt.Println("  Task pages: http://localhost:9999/tasks/1 .. /tasks/4")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := board.Start(ctx); err != nil {
		slog.Error("board error", "error", err)
		os.Exit(1)
	}
}
