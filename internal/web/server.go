// Package web serves the status page, the counts-only status API and the
// public directory holding the pairing QR code.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/klytics/rosterbot/internal/bot"
	"github.com/klytics/rosterbot/internal/logging"
	"github.com/klytics/rosterbot/internal/watch"
)

// RootMessage is the plain-text body of GET /.
const RootMessage = "Le bot WhatsApp est en cours d'exécution."

// StatusSource provides the status snapshot.
type StatusSource interface {
	Snapshot() bot.Snapshot
}

// WatchSource reports on the dataset file watcher.
type WatchSource interface {
	GetStatus() watch.Status
	GetEvents() []watch.Event
}

// Server is the HTTP server.
type Server struct {
	addr      string
	publicDir string
	status    StatusSource
	watch     WatchSource
	version   string
	started   time.Time
	router    *chi.Mux
	server    *http.Server
}

// NewServer creates a Server listening on addr.
func NewServer(addr, publicDir string, status StatusSource, version string) *Server {
	s := &Server{
		addr:      addr,
		publicDir: publicDir,
		status:    status,
		version:   version,
		started:   time.Now(),
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// WithWatcher adds the dataset watcher to /api/status.
func (s *Server) WithWatcher(w WatchSource) *Server {
	s.watch = w
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Handle("/*", http.FileServer(http.Dir(s.publicDir)))
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("web server starting", "addr", s.addr)
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	slog.Info("web server stopped")
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, RootMessage)
}

type statusResponse struct {
	bot.Snapshot
	Version string       `json:"version"`
	Uptime  string       `json:"uptime"`
	Watch   *watchStatus `json:"watch,omitempty"`
}

type watchStatus struct {
	Running    bool       `json:"running"`
	Reloads    int        `json:"reloads"`
	LastReload *time.Time `json:"last_reload,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Snapshot: s.status.Snapshot(),
		Version:  s.version,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}
	if s.watch != nil {
		st := s.watch.GetStatus()
		resp.Watch = &watchStatus{Running: st.Running, Reloads: st.EventCount}
		if events := s.watch.GetEvents(); len(events) > 0 {
			last := events[len(events)-1]
			resp.Watch.LastReload = &last.Time
			resp.Watch.LastStatus = last.Status
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.FromContext(r.Context()).Error("encoding status", "error", err)
	}
}
