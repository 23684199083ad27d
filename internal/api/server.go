// Package api serves the microblog JSON API over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/microblog/internal/app"
	merrors "github.com/Aman-CERP/microblog/internal/errors"
)

// Server routes HTTP requests to the application.
type Server struct {
	app    *app.App
	logger *slog.Logger
	router chi.Router
}

// NewServer builds the router for a.
func NewServer(a *app.App) *Server {
	s := &Server{app: a, logger: a.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.Metrics.Middleware())

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", a.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", s.createUser)
		r.Post("/posts", s.createPost)
		r.Get("/posts/search", s.searchPosts)
		r.Get("/posts/{id}", s.getPost)
		r.Put("/posts/{id}", s.updatePost)
		r.Delete("/posts/{id}", s.deletePost)
		r.Post("/admin/reindex", s.reindex)
		r.Post("/admin/reindex/{collection}", s.reindex)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests for up to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, read, write, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      write,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return merrors.NetworkError("http server failed", err).WithDetail("addr", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http_shutdown", "addr", addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return merrors.NetworkError("http shutdown failed", err)
	}
	return nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case merrors.ErrCodeInvalidInput, merrors.ErrCodeInvalidQuery:
		return http.StatusBadRequest
	case merrors.ErrCodeNotFound, merrors.ErrCodeUnknownIndex:
		return http.StatusNotFound
	case merrors.ErrCodeSearchFailed, merrors.ErrCodeIndexFailed:
		return http.StatusBadGateway
	case merrors.ErrCodeLocked:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err as a JSON error. Messages of unclassified errors
// are not exposed.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	code := merrors.GetCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		if code == "" {
			err = merrors.InternalError("unexpected failure", err)
			code = merrors.ErrCodeInternal
		}
		s.logger.Error("http_internal_error", "path", r.URL.Path, "error", err)
		writeError(w, status, code, "internal error")
		return
	}

	s.logger.Warn("http_request_failed", "path", r.URL.Path, "status", status, "error", err)
	msg := err.Error()
	var e *merrors.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	writeError(w, status, code, msg)
}
