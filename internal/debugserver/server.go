// Package debugserver exposes read-only engine state over HTTP.
//
// Routes:
//
//	GET /healthz          liveness and the current view sequence
//	GET /view             the latest View as JSON
//	GET /view/posts/{id}  one displayed post with its comments
//	GET /metrics          Prometheus exposition
package debugserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/murmur/internal/engine"
)

// ViewSource supplies the latest view. Implemented by engine.Engine.
type ViewSource interface {
	Snapshot() *engine.View
}

// Server serves the debug routes.
type Server struct {
	views    ViewSource
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// New creates a Server. A nil gatherer serves the default registry.
func New(views ViewSource, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{views: views, gatherer: gatherer, logger: logger}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.Register(r)
	return r
}

// Register mounts the debug routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Get("/view", s.handleView)
	r.Get("/view/posts/{id}", s.handlePost)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("debug server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Seq    int64  `json:"seq"`
	City   string `json:"city,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	v := s.views.Snapshot()
	resp := healthResponse{Status: "ok", Seq: v.Seq}
	if v.City != nil {
		resp.City = v.City.Slug
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.views.Snapshot())
}

type postResponse struct {
	Post     engine.PostView      `json:"post"`
	Open     bool                 `json:"open"`
	Comments []engine.CommentView `json:"comments"`
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v := s.views.Snapshot()
	p, ok := v.Post(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "post not in view", "id": id})
		return
	}
	comments := v.Comments[id]
	if comments == nil {
		comments = []engine.CommentView{}
	}
	s.writeJSON(w, http.StatusOK, postResponse{Post: p, Open: v.IsOpen(id), Comments: comments})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("debug response write failed", "error", err)
	}
}
