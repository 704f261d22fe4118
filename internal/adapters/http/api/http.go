// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	service "github.com/okian/drivescore/internal/app"
	"github.com/okian/drivescore/internal/domain/behavior"
	"github.com/okian/drivescore/internal/domain/model"
	"github.com/okian/drivescore/internal/domain/telemetry"
	"github.com/okian/drivescore/internal/domain/types"
)

const (
	defaultMaxBodyBytes   = 1 << 20
	defaultRequestTimeout = 5 * time.Second
)

// SessionDependencies covers the session lifecycle operations.
type SessionDependencies interface {
	CreateSession(ctx context.Context, req service.CreateSessionRequest) (model.Session, error)
	EndSession(ctx context.Context, sessionID, status string) (service.EndResult, error)
	GetSession(ctx context.Context, sessionID string) (model.Session, error)
	GetActiveSession(ctx context.Context, userID string) (model.Session, error)
	ListUserSessions(ctx context.Context, userID string, page, limit int) ([]types.SessionSummary, error)
	UserStats(ctx context.Context, userID string, days int) (types.UserStats, error)
}

// TelemetryDependencies covers ingestion and telemetry reads.
type TelemetryDependencies interface {
	Ingest(ctx context.Context, sessionID string, raw telemetry.Raw) (types.IngestResult, error)
	IngestBatch(ctx context.Context, sessionID string, raws []telemetry.Raw) (types.IngestResult, error)
	Flush(ctx context.Context, sessionID string) (types.IngestResult, error)
	ListTelemetry(ctx context.Context, sessionID string, limit, offset int) ([]model.TelemetrySample, error)
	LatestTelemetry(ctx context.Context, sessionID string, window time.Duration) ([]model.TelemetrySample, error)
	TelemetryStats(ctx context.Context, sessionID string) (types.TelemetryStats, error)
}

// EvaluationDependencies covers scoring, analysis and the live check.
type EvaluationDependencies interface {
	AnalyzeBehavior(ctx context.Context, sessionID string) (behavior.Metrics, error)
	GetEvaluation(ctx context.Context, sessionID string) (model.Evaluation, error)
	Reevaluate(ctx context.Context, sessionID string) (model.Evaluation, error)
	ReevaluateAsync(ctx context.Context, sessionIDs ...string) error
	LiveCheck(ctx context.Context, req service.LiveCheckRequest) (service.LiveCheckResult, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	TelemetryDependencies
	EvaluationDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	sessionsHandler   *SessionsHandler
	telemetryHandler  *TelemetryHandler
	evaluationHandler *EvaluationHandler

	requestTimeout time.Duration
	maxBodyBytes   int64
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		requestTimeout: defaultRequestTimeout,
		maxBodyBytes:   defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.sessionsHandler = NewSessionsHandler(deps, s.maxBodyBytes)
	s.telemetryHandler = NewTelemetryHandler(deps, s.maxBodyBytes)
	s.evaluationHandler = NewEvaluationHandler(deps, s.maxBodyBytes)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(TimeoutMiddleware(h, s.requestTimeout), endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("POST /sessions", "sessions", s.sessionsHandler.HandleCreate)
	route("GET /sessions/{id}", "session", s.sessionsHandler.HandleGet)
	route("POST /sessions/{id}/end", "session_end", s.sessionsHandler.HandleEnd)
	route("GET /users/{id}/sessions", "user_sessions", s.sessionsHandler.HandleListUser)
	route("GET /users/{id}/active-session", "user_active_session", s.sessionsHandler.HandleActive)
	route("GET /users/{id}/stats", "user_stats", s.sessionsHandler.HandleUserStats)

	route("POST /sessions/{id}/telemetry", "telemetry_ingest", s.telemetryHandler.HandleIngest)
	route("POST /sessions/{id}/telemetry/batch", "telemetry_batch", s.telemetryHandler.HandleBatch)
	route("POST /sessions/{id}/telemetry/flush", "telemetry_flush", s.telemetryHandler.HandleFlush)
	route("GET /sessions/{id}/telemetry", "telemetry_list", s.telemetryHandler.HandleList)
	route("GET /sessions/{id}/telemetry/latest", "telemetry_latest", s.telemetryHandler.HandleLatest)
	route("GET /sessions/{id}/telemetry/stats", "telemetry_stats", s.telemetryHandler.HandleStats)

	route("GET /sessions/{id}/behavior", "behavior", s.evaluationHandler.HandleBehavior)
	route("GET /sessions/{id}/evaluation", "evaluation", s.evaluationHandler.HandleGet)
	route("POST /sessions/{id}/evaluation", "evaluation_rerun", s.evaluationHandler.HandleReevaluate)
	route("POST /live-check", "live_check", s.evaluationHandler.HandleLiveCheck)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dataResponse struct {
	Data any `json:"data"`
}

type listResponse struct {
	Data  any `json:"data"`
	Count int `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeBody reads a single JSON document from r into v.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, op string, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return WrapKind(op, ErrUnsupported, errors.New(ct))
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return NewKind(op, ErrBodyTooBig)
		}
		return WrapKind(op, ErrBadRequest, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return WrapKind(op, ErrBadRequest, errors.New("empty body"))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string, fallback int, op string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, WrapKind(op, model.ErrInvalidParameter, errors.New("invalid "+key))
	}
	return n, nil
}

// pathID returns the {id} wildcard, rejecting blanks.
func pathID(r *http.Request, op string) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", WrapKind(op, model.ErrInvalidParameter, errors.New("missing id"))
	}
	return id, nil
}
