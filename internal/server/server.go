package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/taskstatus/internal/store"
	"github.com/jpalmerr/taskstatus/page"
)

const (
	// sseWriteTimeout bounds a single SSE write so slow or gone clients
	// cannot pin a handler goroutine. Must be <= shutdownTimeout.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Task status"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"

	stateRendered = "rendered"
	statePolling  = "polling"
)

// Server handles HTTP requests for the mirror dashboard and API.
//
// Routes:
//   - GET /: embedded dashboard HTML
//   - GET /api/status: all watch statuses as JSON
//   - GET /api/sse: Server-Sent Events stream of watch updates
//   - GET /watches/{name}: a page with the watch's content in its target element
//   - GET /watches/{name}/status: the watch's content, 418 while still polling
type Server struct {
	store      store.Store
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// assets may be nil, in which case the dashboard route is not served.
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	return &Server{
		store:  st,
		port:   port,
		assets: assets,
		title:  title,
		logger: logger,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("GET /watches/{name}", s.handleWatchPage)
	mux.HandleFunc("GET /watches/{name}/status", s.handleWatchStatus)

	if s.assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start returns once the listener is bound. The server shuts down
// gracefully when ctx is cancelled. Returns an error if the port cannot
// be bound.
func (s *Server) Start(ctx context.Context) error {
	// bind first to report port problems synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// the title is user supplied; escape it
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleStatus returns all current statuses as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(s.store.GetAll()); err != nil {
		s.logger.Error("failed to encode status response", "error", err)
	}
}

// handleWatchPage serves a page whose target element holds the watch's
// current content.
func (s *Server) handleWatchPage(w http.ResponseWriter, r *http.Request) {
	status, ok := s.store.Get(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	elementID := status.ElementID
	if elementID == "" {
		elementID = page.DefaultElementID
	}

	doc, err := page.Parse(strings.NewReader(
		`<!DOCTYPE html><html><head><title>` + html.EscapeString(status.Name) + `</title></head>` +
			`<body><div id="` + html.EscapeString(elementID) + `"></div></body></html>`))
	if err != nil {
		http.Error(w, "failed to build page", http.StatusInternalServerError)
		return
	}
	if status.State == stateRendered {
		if err := doc.SetInnerHTML(r.Context(), elementID, []byte(status.Content)); err != nil {
			s.logger.Warn("failed to render watch page", "watch", status.Name, "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := doc.Render(w); err != nil {
		s.logger.Error("failed to write watch page", "watch", status.Name, "error", err)
	}
}

// handleWatchStatus re-serves a watch's state with the same contract the
// watched backend uses: 418 while polling, the content once rendered and
// a failure status otherwise.
func (s *Server) handleWatchStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.store.Get(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")

	switch {
	case status.Error != nil:
		http.Error(w, *status.Error, http.StatusBadGateway)
	case status.State == statePolling:
		w.WriteHeader(http.StatusTeapot)
	case status.State == stateRendered:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(status.Content)); err != nil {
			s.logger.Error("failed to write watch status", "watch", status.Name, "error", err)
		}
	default:
		http.Error(w, fmt.Sprintf("upstream answered %d", status.StatusCode), http.StatusBadGateway)
	}
}

// handleSSE streams status updates via Server-Sent Events.
//
// Writes carry a deadline so a blocked write cannot hide context
// cancellation or channel closure from the handler.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, status := range s.store.GetAll() {
		data, err := json.Marshal(status)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case status, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(status)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown (BaseContext)
			return
		}
	}
}
