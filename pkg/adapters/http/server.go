// Package http carries messenger calls between execution contexts over HTTP.
//
// The server side forwards calls to an in-process router (usually a
// messenger.Hub); the Client implements ports.Messenger and ports.FrameLister
// against it. Bodies are JSON and errors travel as domain.SerializedError.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aretw0/brickrt/internal/logging"
	"github.com/aretw0/brickrt/pkg/domain"
	"github.com/aretw0/brickrt/pkg/messenger"
	"github.com/aretw0/brickrt/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// MaxBodyBytes bounds the size of an invoke request.
const MaxBodyBytes = 10 << 20

const noReceiverName = "NoReceiverError"

// Router is the in-process side of the transport.
type Router interface {
	ports.Messenger
	ports.FrameLister
}

type invokeRequest struct {
	Args []any `json:"args"`
}

type envelope struct {
	Result any                     `json:"result,omitempty"`
	Error  *domain.SerializedError `json:"error,omitempty"`
}

// Server exposes a Router over HTTP.
type Server struct {
	router  Router
	logger  *slog.Logger
	metrics http.Handler
	tp      trace.TracerProvider
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithTracerProvider sets the provider for server spans. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) ServerOption {
	return func(s *Server) {
		s.tp = tp
	}
}

// NewHandler creates the HTTP handler serving router.
//
//	POST /rpc/{tabID}/{frameID}/{method}  {"args": [...]}
//	GET  /frames/{tabID}
//	GET  /health
func NewHandler(router Router, opts ...ServerOption) http.Handler {
	s := &Server{router: router}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/rpc/{tabID}/{frameID}/{method}", s.Invoke)
	r.Get("/frames/{tabID}", s.Frames)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	var otelOpts []otelhttp.Option
	if s.tp != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(s.tp))
	}
	return otelhttp.NewHandler(r, "brickrt.messenger", otelOpts...)
}

// Invoke handles POST /rpc/{tabID}/{frameID}/{method}.
func (s *Server) Invoke(w http.ResponseWriter, r *http.Request) {
	tabID, err1 := strconv.Atoi(chi.URLParam(r, "tabID"))
	frameID, err2 := strconv.Atoi(chi.URLParam(r, "frameID"))
	if err := errors.Join(err1, err2); err != nil {
		http.Error(w, "Invalid target", http.StatusBadRequest)
		return
	}
	target := domain.Target{TabID: tabID, FrameID: frameID}
	method := chi.URLParam(r, "method")

	var body invokeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Invoke: Invalid request body", "err", err, "method", method)
		return
	}

	result, err := s.router.Invoke(r.Context(), method, target, body.Args...)
	if err != nil {
		s.logger.Debug("Invoke failed", "method", method, "tab_id", tabID, "frame_id", frameID, "err", err)
		env := envelope{Error: messenger.SerializeError(err)}
		if errors.Is(err, messenger.ErrNoReceiver) {
			env.Error = &domain.SerializedError{Name: noReceiverName, Message: err.Error()}
		}
		writeJSON(w, statusFor(err), env, s.logger)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Result: result}, s.logger)
}

// Frames handles GET /frames/{tabID}.
func (s *Server) Frames(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tabID"))
	if err != nil {
		http.Error(w, "Invalid tab id", http.StatusBadRequest)
		return
	}
	frames, err := s.router.Frames(r.Context(), tabID)
	if err != nil {
		writeJSON(w, statusFor(err), envelope{Error: messenger.SerializeError(err)}, s.logger)
		return
	}
	if frames == nil {
		frames = []domain.Target{}
	}
	writeJSON(w, http.StatusOK, frames, s.logger)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, messenger.ErrNoReceiver):
		return http.StatusNotFound
	case domain.IsCancel(err):
		return http.StatusRequestTimeout
	case domain.IsConfigurationError(err):
		return http.StatusBadRequest
	case domain.IsBusinessError(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Response encode failed", "err", err)
	}
}
