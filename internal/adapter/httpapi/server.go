// Package httpapi exposes the calculation service over HTTP: submission
// and history endpoints behind bearer authentication, plus health,
// readiness, and metrics routes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/geo-index-service/internal/auth"
	"github.com/couchcryptid/geo-index-service/internal/domain"
	"github.com/couchcryptid/geo-index-service/internal/orchestrator"
)

// Calculator runs submissions and serves history. Implemented by
// orchestrator.Orchestrator.
type Calculator interface {
	Calculate(ctx context.Context, ownerID string, geometry json.RawMessage, years []int) (orchestrator.Outcome, error)
	History(ctx context.Context, ownerID string) ([]domain.CalculationRecord, error)
}

// Verifier resolves bearer tokens to identities.
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

// Server exposes the calculation API.
type Server struct {
	httpServer *http.Server
	calc       Calculator
	verifier   Verifier
	logger     *slog.Logger
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(addr string, calc Calculator, verifier Verifier, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
			// The calculate route waits on the engine, so the write timeout
			// must exceed the engine timeout; reads stay tight.
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		calc:     calc,
		verifier: verifier,
		logger:   logger,
	}

	mux.HandleFunc("POST /api/calculate", s.authenticated(s.handleCalculate))
	mux.HandleFunc("GET /api/calculate/history", s.authenticated(s.handleHistory))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// authenticated wraps a handler with bearer verification. No engine or
// store work happens before the credential checks out.
func (s *Server) authenticated(next func(http.ResponseWriter, *http.Request, auth.Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		identity, err := s.verifier.Verify(token)
		if err != nil {
			writeFailure(w, err)
			return
		}
		next(w, r, identity)
	}
}

// calculateRequest accepts either an explicit year list or an inclusive
// startYear/endYear span.
type calculateRequest struct {
	Geometry  json.RawMessage `json:"geometry"`
	Years     []int           `json:"years"`
	StartYear *int            `json:"startYear"`
	EndYear   *int            `json:"endYear"`
}

type calculateResponse struct {
	ID        string                   `json:"id"`
	Geometry  json.RawMessage          `json:"geometry"`
	Results   domain.CalculationResult `json:"results"`
	Years     []int                    `json:"years"`
	CreatedAt time.Time                `json:"createdAt"`
}

type historyEntry struct {
	ID        string                   `json:"id"`
	CreatedAt time.Time                `json:"createdAt"`
	Geometry  json.RawMessage          `json:"geometry"`
	Results   domain.CalculationResult `json:"results"`
	Years     []int                    `json:"years"`
}

type errorResponse struct {
	Error   string                   `json:"error"`
	Kind    domain.FailureKind       `json:"kind,omitempty"`
	Details string                   `json:"details,omitempty"`
	Saved   *bool                    `json:"saved,omitempty"`
	Results domain.CalculationResult `json:"results,omitempty"`
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	years, err := requestedYears(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if len(req.Geometry) == 0 || string(req.Geometry) == "null" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "geometry is required"})
		return
	}

	outcome, err := s.calc.Calculate(r.Context(), identity.UserID, req.Geometry, years)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; there is nobody left to answer.
			return
		}
		s.writeCalculateFailure(w, outcome, err)
		return
	}

	writeJSON(w, http.StatusOK, calculateResponse{
		ID:        outcome.Record.ID,
		Geometry:  outcome.Record.Geometry,
		Results:   outcome.Record.Result,
		Years:     outcome.Record.Years,
		CreatedAt: outcome.Record.CreatedAt,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	records, err := s.calc.History(r.Context(), identity.UserID)
	if err != nil {
		writeFailure(w, err)
		return
	}

	entries := make([]historyEntry, len(records))
	for i, rec := range records {
		entries[i] = historyEntry{
			ID:        rec.ID,
			CreatedAt: rec.CreatedAt,
			Geometry:  rec.Geometry,
			Results:   rec.Result,
			Years:     rec.Years,
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// writeCalculateFailure distinguishes the persist-failed-after-compute case:
// the caller is told explicitly that the computation succeeded but was not
// saved, and receives the computed result.
func (s *Server) writeCalculateFailure(w http.ResponseWriter, outcome orchestrator.Outcome, err error) {
	var f *domain.Failure
	if errors.As(err, &f) && f.Kind == domain.KindPersistenceFailure {
		saved := false
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "calculation completed but the result could not be saved; retry the save, not the computation",
			Kind:    f.Kind,
			Details: f.Detail,
			Saved:   &saved,
			Results: outcome.Record.Result,
		})
		return
	}
	writeFailure(w, err)
}

// writeFailure maps a tagged failure to its status code and envelope.
func writeFailure(w http.ResponseWriter, err error) {
	var f *domain.Failure
	if !errors.As(err, &f) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	resp := errorResponse{Error: f.Detail, Kind: f.Kind}
	if len(f.Raw) > 0 {
		resp.Details = string(f.Raw)
	}
	writeJSON(w, statusFor(f.Kind), resp)
}

func statusFor(kind domain.FailureKind) int {
	switch kind {
	case domain.KindUnauthenticated, domain.KindInvalidCredential:
		return http.StatusUnauthorized
	case domain.KindEngineTimeout:
		return http.StatusGatewayTimeout
	case domain.KindEngineExecutionFailed, domain.KindEngineEmptyOutput,
		domain.KindMalformedOutput, domain.KindEngineReportedError, domain.KindIncompleteResult:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requestedYears(req calculateRequest) ([]int, error) {
	years := req.Years
	if len(years) == 0 && req.StartYear != nil && req.EndYear != nil {
		expanded, err := domain.ExpandYearSpan(*req.StartYear, *req.EndYear)
		if err != nil {
			return nil, err
		}
		years = expanded
	}
	return domain.NewYearRange(years)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}
