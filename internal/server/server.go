// Package server exposes the activity stream, the search dataset and
// full-text queries over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/kbpulse/internal/activity"
	"github.com/Aman-CERP/kbpulse/internal/content"
	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
	"github.com/Aman-CERP/kbpulse/internal/search"
	"github.com/Aman-CERP/kbpulse/internal/stream"
	"github.com/Aman-CERP/kbpulse/internal/telemetry"
	"github.com/Aman-CERP/kbpulse/pkg/version"
)

// ShutdownGrace bounds how long Shutdown waits for handlers.
const ShutdownGrace = 5 * time.Second

// datasetCacheControl lets shared caches keep the dataset for a minute.
const datasetCacheControl = "public, max-age=0, s-maxage=60"

// StatsSource provides the telemetry snapshot for /api/stats.
type StatsSource interface {
	Snapshot() *telemetry.Snapshot
}

// Deps are the collaborators the server routes to. Stats may be nil.
type Deps struct {
	Activity *activity.Service
	Cache    *search.Cache
	Searcher *search.Searcher
	Store    content.Store
	Stats    StatsSource
}

// Server serves the HTTP API.
type Server struct {
	addr         string
	deps         Deps
	writeTimeout time.Duration
	logger       *slog.Logger
	mux          *http.ServeMux
	started      time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithWriteTimeout bounds each stream write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// New creates a server listening on addr once ListenAndServe is called.
func New(addr string, deps Deps, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		deps:         deps,
		writeTimeout: 10 * time.Second,
		logger:       slog.Default(),
		started:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events", s.handleStream(true))
	mux.HandleFunc("GET /api/activity/stream", s.handleStream(false))
	mux.HandleFunc("GET /api/search/index", s.handleDataset)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/articles/{slug...}", s.handleArticle)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux = mux
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down. Streams
// end when ctx ends because every request context derives from it.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Streams never finish on their own; end them before waiting.
	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown incomplete", slog.String("error", err.Error()))
		_ = srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return ctx.Err()
}

func (s *Server) handleStream(replay bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sse, err := stream.NewSSEWriter(w, s.writeTimeout)
		if err != nil {
			// Headers are already out, so there is no error body to send.
			s.logger.Error("event stream not supported", slog.String("error", err.Error()))
			return
		}

		conn, err := s.deps.Activity.Connect(sse, activity.ConnectOptions{Replay: replay})
		if err != nil {
			s.logger.Warn("event stream rejected", slog.String("error", err.Error()))
			return
		}
		defer conn.Close()

		select {
		case <-r.Context().Done():
		case <-conn.Done():
		}
	}
}

type datasetResponse struct {
	Data        *search.Dataset `json:"data"`
	Cached      bool            `json:"cached"`
	GeneratedAt int64           `json:"generatedAt"`
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	rebuild := r.URL.Query().Get("rebuild") == "true"

	res, err := s.deps.Cache.Get(r.Context(), rebuild)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", datasetCacheControl)
	s.writeJSON(w, http.StatusOK, datasetResponse{
		Data:        res.Dataset,
		Cached:      res.Cached,
		GeneratedAt: res.GeneratedAt,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, kberrors.ValidationError("limit must be a non-negative integer", err).
				WithDetail("limit", raw))
			return
		}
		limit = n
	}

	results, err := s.deps.Searcher.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	slug, err := content.NormalizeSlug(r.PathValue("slug"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.deps.Store.Get(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

type statsResponse struct {
	Uptime      string              `json:"uptime"`
	Version     string              `json:"version"`
	CacheState  string              `json:"cacheState"`
	GeneratedAt *int64              `json:"generatedAt,omitempty"`
	Streams     int                 `json:"streams"`
	Backlog     int                 `json:"backlog"`
	Telemetry   *telemetry.Snapshot `json:"telemetry,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Version:    version.Version,
		CacheState: s.deps.Cache.State().String(),
		Streams:    s.deps.Activity.Connections(),
		Backlog:    len(s.deps.Activity.Backlog()),
	}
	if gen, ok := s.deps.Cache.Peek(); ok {
		resp.GeneratedAt = &gen
	}
	if s.deps.Stats != nil {
		resp.Telemetry = s.deps.Stats.Snapshot()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"pid":    os.Getpid(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response write failed", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		// Client went away.
		return
	}
	status := kberrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", append([]any{"path", r.URL.Path}, kberrors.LogAttrs(err)...)...)
	}
	body, ferr := kberrors.FormatJSON(err)
	if ferr != nil {
		http.Error(w, strings.TrimSpace(err.Error()), status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
