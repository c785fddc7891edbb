// Package mocktask is a fake task backend for demos and tests.
//
// Every task moves Submitted -> Checking -> Checked or Failed on a fixed
// schedule. The backend serves:
//
//	GET /tasks/{id}         a page with a "task-status" element
//	GET /tasks/{id}/status  418 until the task is checked, then an HTML fragment
//
// Unknown task ids get 404 on both routes.
package mocktask

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Status is the checking state of a task.
type Status int

const (
	Submitted Status = iota
	Checking
	Checked
	Failed
	NotSubmitted
)

// String returns the label shown to users.
func (s Status) String() string {
	switch s {
	case Submitted:
		return "Submitted"
	case Checking:
		return "Checking"
	case Checked:
		return "Accepted"
	case Failed:
		return "Failed"
	case NotSubmitted:
		return "Not submitted"
	default:
		return "Unknown"
	}
}

// Done reports whether checking has finished.
func (s Status) Done() bool {
	return s == Checked || s == Failed
}

// Task is a seeded task and its checking schedule.
type Task struct {
	ID int

	// CheckAfter is when checking starts, relative to the backend start.
	CheckAfter time.Duration

	// DoneAfter is when checking ends.
	DoneAfter time.Duration

	// Fails makes the task end in Failed instead of Checked.
	Fails bool
}

// Backend serves the task routes.
type Backend struct {
	mu      sync.Mutex
	tasks   map[int]Task
	started time.Time
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a backend for tasks. The schedule starts now.
func New(tasks []Task, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		tasks:  make(map[int]Task, len(tasks)),
		now:    time.Now,
		logger: logger,
	}
	b.started = b.now()
	for _, t := range tasks {
		b.tasks[t.ID] = t
	}
	return b
}

// Seed returns n tasks whose checks finish one after another, step apart.
// Every third task fails.
func Seed(n int, step time.Duration) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{
			ID:         i + 1,
			CheckAfter: step / 2,
			DoneAfter:  time.Duration(i+1) * step,
			Fails:      (i+1)%3 == 0,
		}
	}
	return tasks
}

// Status returns the current status of task id.
func (b *Backend) Status(id int) (Status, bool) {
	b.mu.Lock()
	t, ok := b.tasks[id]
	elapsed := b.now().Sub(b.started)
	b.mu.Unlock()

	if !ok {
		return NotSubmitted, false
	}
	switch {
	case elapsed >= t.DoneAfter && t.Fails:
		return Failed, true
	case elapsed >= t.DoneAfter:
		return Checked, true
	case elapsed >= t.CheckAfter:
		return Checking, true
	default:
		return Submitted, true
	}
}

// Handler returns the task routes.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks/{id}", b.handlePage)
	mux.HandleFunc("GET /tasks/{id}/status", b.handleStatus)
	return mux
}

func (b *Backend) task(w http.ResponseWriter, r *http.Request) (int, Status, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return 0, 0, false
	}
	status, ok := b.Status(id)
	if !ok {
		http.NotFound(w, r)
		return 0, 0, false
	}
	return id, status, true
}

func (b *Backend) handlePage(w http.ResponseWriter, r *http.Request) {
	id, status, ok := b.task(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, pageTemplate, id, id, html.EscapeString(status.String()))
}

func (b *Backend) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, status, ok := b.task(w, r)
	if !ok {
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	if !status.Done() {
		w.WriteHeader(http.StatusTeapot)
		return
	}

	b.logger.Debug("task status served", "task", id, "status", status.String())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<span class="status status-%d">%s</span>`, int(status), html.EscapeString(status.String()))
}

// pageTemplate polls its own status route from the browser.
const pageTemplate = `<!DOCTYPE html>
<html>
<head><title>Task %d</title></head>
<body>
<h1>Task %d</h1>
<div id="task-status">%s</div>
<script>
const statusPath = window.location.href + "/status";
async function poll() {
  for (;;) {
    const res = await fetch(statusPath);
    if (res.status === 418) {
      await new Promise(r => setTimeout(r, 2000));
      continue;
    }
    if (res.ok) {
      document.getElementById("task-status").innerHTML = await res.text();
    }
    return;
  }
}
poll();
</script>
</body>
</html>
`
