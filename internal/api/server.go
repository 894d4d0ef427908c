package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/tripsync/internal/config"
	"github.com/JakeFAU/tripsync/internal/consult"
	"github.com/JakeFAU/tripsync/internal/extract"
	"github.com/JakeFAU/tripsync/internal/metrics"
	"github.com/JakeFAU/tripsync/internal/service"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// DefaultRequestTimeout bounds a request when the config leaves it unset.
const DefaultRequestTimeout = 90 * time.Second

// Service is the set of pipeline operations the HTTP layer exposes.
type Service interface {
	FetchContent(ctx context.Context, url string) (service.FetchedContent, error)
	FetchAndAnalyze(ctx context.Context, url string) (trip.ConfirmationDocument, error)
	AnalyzeProvided(ctx context.Context, in extract.Input) (trip.ConfirmationDocument, error)
	GetDocument(ctx context.Context, id string) (trip.ConfirmationDocument, error)
	UpdateDocument(ctx context.Context, id string, patch trip.DocumentPatch) (trip.ConfirmationDocument, error)
	StageConsultation(ctx context.Context, rec trip.ConsultationRecord) error
	SyncConsultation(ctx context.Context, visitorID string) (trip.RowAddress, error)
	SetRowStatus(ctx context.Context, addr trip.RowAddress, status string) error
	ToggleBot(ctx context.Context, visitorID string, enabled bool) error
	CleanupStale(ctx context.Context, visitorIDs []string) (consult.CleanupResult, error)
	GetRate(ctx context.Context, from, to string) (float64, error)
}

// ReadyFunc reports whether downstream dependencies are usable.
type ReadyFunc func(ctx context.Context) error

// Server wires HTTP handlers to the pipeline service.
type Server struct {
	router   chi.Router
	svc      Service
	validate *validator.Validate
	ready    ReadyFunc
	logger   *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithReadiness installs a readiness probe used by GET /readyz.
func WithReadiness(fn ReadyFunc) Option {
	return func(s *Server) { s.ready = fn }
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Service, cfg config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:      svc,
		validate: validator.New(),
		logger:   logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/pages/fetch", s.fetchPage)
		r.Route("/confirmations", func(r chi.Router) {
			r.Post("/analyze", s.analyzeURL)
			r.Post("/analyze-provided", s.analyzeProvided)
			r.Get("/{id}", s.getConfirmation)
			r.Patch("/{id}", s.patchConfirmation)
		})
		r.Route("/consultations", func(r chi.Router) {
			r.Post("/cleanup", s.cleanup)
			r.Put("/{visitor_id}", s.stageConsultation)
			r.Post("/{visitor_id}/sync", s.syncConsultation)
			r.Put("/{visitor_id}/bot", s.toggleBot)
		})
		r.Put("/ledger/{sheet}/rows/{row}/status", s.setRowStatus)
		r.Get("/rates", s.getRate)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps a service error to a status and a user-facing message.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
	}
	s.writeJSON(w, status, resp)
}

type errorResponse struct {
	Error     string `json:"error"`
	Stage     string `json:"stage,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func classify(err error) (int, errorResponse) {
	var syncErr *consult.SyncError
	switch {
	case errors.Is(err, trip.ErrRowNotFound):
		return http.StatusConflict, errorResponse{Error: "ledger row no longer matches; refresh and retry"}
	case errors.As(err, &syncErr):
		return http.StatusBadGateway, errorResponse{
			Error:     "consultation sync failed",
			Stage:     syncErr.Stage,
			Retryable: syncErr.Retryable(),
		}
	case errors.Is(err, trip.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "not found"}
	case errors.Is(err, trip.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "upstream service unavailable", Retryable: true}
	case errors.Is(err, trip.ErrFetchFailure), errors.Is(err, trip.ErrExtractionEmpty):
		return http.StatusUnprocessableEntity, errorResponse{Error: "could not extract information from this page"}
	case errors.Is(err, consult.ErrInvalidStatus), errors.Is(err, consult.ErrVisitorRequired):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return "invalid field " + fe.Field() + ": " + fe.Tag()
}
