package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/causas-crawler/internal/config"
	"github.com/JakeFAU/causas-crawler/internal/crawler"
	"github.com/JakeFAU/causas-crawler/internal/handler"
	"github.com/JakeFAU/causas-crawler/internal/metrics"
	"github.com/JakeFAU/causas-crawler/internal/runs"
	"github.com/JakeFAU/causas-crawler/internal/store"
)

const readyTimeout = 2 * time.Second

// Processor runs crawl-and-persist for one litigant.
type Processor interface {
	ProcessLitigant(ctx context.Context, nationalID string, role crawler.Role, opts ...handler.ProcessOption) (*handler.ProcessResult, error)
}

// Reader serves the read projections.
type Reader interface {
	Ping(ctx context.Context) error
	Litigant(ctx context.Context, nationalID string) (store.LitigantRow, error)
	CaseIDs(ctx context.Context, nationalID string, role crawler.Role) ([]string, error)
	Cases(ctx context.Context, nationalID string, role crawler.Role) ([]store.CaseRow, error)
	MovementsByLitigant(ctx context.Context, nationalID string, role crawler.Role) ([]store.MovementRow, error)
	ActionsByMovement(ctx context.Context, nationalID string, role crawler.Role, movementID int64) ([]store.ActionRow, error)
	ActionsByIncident(ctx context.Context, incidentID int64) ([]store.ActionRow, error)
	CaseDetail(ctx context.Context, caseID string) (*store.CaseDetail, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Server wires HTTP handlers to the handler, the store and the run ledger.
type Server struct {
	router    chi.Router
	processor Processor
	reader    Reader
	cache     *readCache
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. A nil runRepo
// leaves the run endpoints answering 503.
func NewServer(
	processor Processor,
	reader Reader,
	runRepo runs.Repository,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		processor: processor,
		reader:    reader,
		cache:     newReadCache(cfg.Cache.TTL),
		cfg:       cfg,
		logger:    logger.Named("api"),
	}
	runHandler := NewRunHandler(runRepo, s.logger)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Server.RequestTimeout > 0 {
			r.Use(timeoutMiddleware(cfg.Server.RequestTimeout))
		}
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/litigants/{national_id}", func(r chi.Router) {
			r.Get("/", s.getLitigant)
			r.Post("/process", s.processLitigant)
			r.Get("/cases", s.listCases)
			r.Get("/cases/ids", s.listCaseIDs)
			r.Get("/movements", s.listMovements)
			r.Get("/movements/{movement_id}/actions", s.listMovementActions)
		})
		r.Get("/cases/{case_id}", s.getCase)
		r.Get("/incidents/{incident_id}/actions", s.listIncidentActions)
		r.Get("/stats", s.stats)
		r.Get("/runs", runHandler.ListRuns)
		r.Get("/runs/{run_id}", runHandler.GetRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.reader.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the ID assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
