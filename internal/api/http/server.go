package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/domain/ports"
	"moviecatalog/internal/session"
)

// SessionRegistry is the subset of the session manager the API needs.
type SessionRegistry interface {
	Open(ctx context.Context, id string) (*session.Session, bool, error)
	Get(id string) (*session.Session, bool)
	Remove(id string) bool
	Len() int
}

type Server struct {
	sessions SessionRegistry
	details  ports.DetailSource
	logger   *slog.Logger
	hub      *wsHub
	rps      float64
	burst    int
}

const (
	serviceName  = "moviesync"
	maxBodyBytes = 64 << 10
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithDetails(details ports.DetailSource) ServerOption {
	return func(s *Server) {
		s.details = details
	}
}

// WithRateLimit sets the global request budget. A non-positive rps keeps
// the default.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rps = rps
		}
		if burst > 0 {
			s.burst = burst
		}
	}
}

func NewServer(sessions SessionRegistry, options ...ServerOption) *Server {
	server := &Server{
		sessions: sessions,
		logger:   slog.Default(),
		rps:      50,
		burst:    100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	server.hub = newWSHub(server.logger)
	go server.hub.run()
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /movies/{id}", s.handleMovieDetail)

	mux.HandleFunc("POST /sessions", s.handleOpenSession)
	mux.HandleFunc("GET /sessions/{id}", s.withSession(s.handleView))
	mux.HandleFunc("DELETE /sessions/{id}", s.handleRemoveSession)
	mux.HandleFunc("PUT /sessions/{id}/query", s.withSession(s.handleSetQuery))
	mux.HandleFunc("PUT /sessions/{id}/show-favorites", s.withSession(s.handleShowFavorites))
	mux.HandleFunc("POST /sessions/{id}/username", s.withSession(s.handleSubmitUsername))
	mux.HandleFunc("POST /sessions/{id}/change-user", s.withSession(s.handleChangeUser))
	mux.HandleFunc("DELETE /sessions/{id}/username-prompt", s.withSession(s.handleCloseUsernamePrompt))

	mux.HandleFunc("POST /sessions/{id}/movies/{movieID}/favorite", s.withSession(s.handleFavorite))
	mux.HandleFunc("POST /sessions/{id}/movies/{movieID}/edit", s.withSession(s.handleEdit))
	mux.HandleFunc("POST /sessions/{id}/movies/{movieID}/delete", s.withSession(s.handleDelete))
	mux.HandleFunc("POST /sessions/{id}/create", s.withSession(s.handleCreate))
	mux.HandleFunc("PUT /sessions/{id}/editor", s.withSession(s.handleSave))
	mux.HandleFunc("DELETE /sessions/{id}/editor", s.withSession(s.handleCloseEditor))
	mux.HandleFunc("POST /sessions/{id}/delete-confirm", s.withSession(s.handleConfirmDelete))
	mux.HandleFunc("DELETE /sessions/{id}/delete-confirm", s.withSession(s.handleCloseDeleteConfirm))

	mux.HandleFunc("GET /sessions/{id}/ws", s.withSession(s.handleWS))

	traced := otelhttp.NewHandler(mux, serviceName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(s.rps, s.burst, observeMiddleware(s.logger, traced)))
}

// Close disconnects every websocket client.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"sessions":  s.sessions.Len(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleMovieDetail(w http.ResponseWriter, r *http.Request) {
	if s.details == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog detail is not configured")
		return
	}
	id := r.PathValue("id")
	if err := domain.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "movie id is required")
		return
	}
	detail, err := s.details.MovieByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "movie not found")
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("movie detail failed", slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
