// Package api provides HTTP handlers for the ingestion and management API.
//
// # Endpoints
//
// Ingestion API (authenticated):
//   - POST /api/v1/reports - Ingest an agent metrics report
//   - POST /data - Legacy ingestion alias
//
// Management API (authenticated):
//   - GET /api/v1/agents - List registered agents with liveness
//   - GET /api/v1/agents/{name}/history - Get metrics history for an agent
//   - PUT /api/v1/agents/{name}/config - Set or clear threshold overrides
//   - GET /api/v1/alerts - List alerts
//   - GET /api/v1/alerts/stats - Alert summary counts
//   - POST /api/v1/alerts/{id}/acknowledge - Acknowledge an alert
//
// Health:
//   - GET /api/v1/health - Health check (no auth)
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sentora/sentora/internal/cache"
	"github.com/sentora/sentora/internal/service"
	"github.com/sentora/sentora/pkg/types"
)

// Cache TTLs for read-heavy endpoints.
const (
	cacheTTLAgentList  = 15 * time.Second
	cacheTTLAlertStats = 30 * time.Second
)

const (
	cacheKeyAgentList  = "agent_list"
	cacheKeyAlertStats = "alert_stats"
)

// Service is the application surface the API depends on.
type Service interface {
	IngestReport(ctx context.Context, report *types.MetricsReport) error
	ListAgents(ctx context.Context) ([]types.AgentRecord, error)
	History(ctx context.Context, agentName string, window time.Duration) ([]types.MetricsReport, error)
	UpdateAgentThresholds(ctx context.Context, agentName string, overrides *types.Thresholds) error
	ListAlerts(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error)
	AlertStats(ctx context.Context) (*types.AlertStats, error)
	AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string) error
}

// Server is the HTTP API server.
type Server struct {
	svc    Service
	auth   *KeyAuth
	cache  *cache.Cache
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates a new API server. responseCache may be nil.
func NewServer(svc Service, auth *KeyAuth, responseCache *cache.Cache, logger *slog.Logger) *Server {
	s := &Server{
		svc:    svc,
		auth:   auth,
		cache:  responseCache,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"duration", time.Since(start))
}

func (s *Server) registerRoutes() {
	authed := s.auth.Middleware()

	// Health (open)
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	// Ingestion
	s.mux.HandleFunc("POST /api/v1/reports", wrapHandler(s.handleIngestReport, authed))
	s.mux.HandleFunc("POST /data", wrapHandler(s.handleIngestReport, authed))

	// Agents
	s.mux.HandleFunc("GET /api/v1/agents", wrapHandler(s.handleListAgents, authed))
	s.mux.HandleFunc("GET /api/v1/agents/{name}/history", wrapHandler(s.handleAgentHistory, authed))
	s.mux.HandleFunc("PUT /api/v1/agents/{name}/config", wrapHandler(s.handleUpdateAgentConfig, authed))

	// Alerts - static routes must come before wildcard {id} routes
	s.mux.HandleFunc("GET /api/v1/alerts", wrapHandler(s.handleListAlerts, authed))
	s.mux.HandleFunc("GET /api/v1/alerts/stats", wrapHandler(s.handleAlertStats, authed))
	s.mux.HandleFunc("POST /api/v1/alerts/{id}/acknowledge", wrapHandler(s.handleAcknowledgeAlert, authed))
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// INGESTION
// =============================================================================

func (s *Server) handleIngestReport(w http.ResponseWriter, r *http.Request) {
	var report types.MetricsReport
	if err := s.readJSON(r, &report); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.svc.IngestReport(r.Context(), &report); err != nil {
		s.writeServiceError(w, "report ingestion failed", err,
			"agent", report.AgentName)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
	})
}

// =============================================================================
// AGENT ENDPOINTS
// =============================================================================

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if s.serveCached(w, r, cacheKeyAgentList) {
		return
	}

	agents, err := s.svc.ListAgents(r.Context())
	if err != nil {
		s.writeServiceError(w, "list agents failed", err)
		return
	}

	response := map[string]any{
		"agents": agents,
		"count":  len(agents),
	}
	s.cacheResponse(r.Context(), cacheKeyAgentList, response, cacheTTLAgentList)
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleAgentHistory(w http.ResponseWriter, r *http.Request) {
	agentName := r.PathValue("name")
	if agentName == "" {
		s.writeError(w, http.StatusBadRequest, "agent name required")
		return
	}

	// Window from query param in hours, default 24, capped at 7 days.
	hours := 24
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		parsed, err := strconv.Atoi(hoursStr)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid hours parameter")
			return
		}
		hours = parsed
	}
	if hours > 168 {
		hours = 168
	}
	window := time.Duration(hours) * time.Hour

	history, err := s.svc.History(r.Context(), agentName, window)
	if err != nil {
		s.writeServiceError(w, "get agent history failed", err, "agent", agentName)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"agent_name": agentName,
		"hours":      hours,
		"reports":    history,
		"count":      len(history),
	})
}

type updateAgentConfigRequest struct {
	Thresholds *types.Thresholds `json:"thresholds"`
}

func (s *Server) handleUpdateAgentConfig(w http.ResponseWriter, r *http.Request) {
	agentName := r.PathValue("name")
	if agentName == "" {
		s.writeError(w, http.StatusBadRequest, "agent name required")
		return
	}

	var req updateAgentConfigRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.svc.UpdateAgentThresholds(r.Context(), agentName, req.Thresholds); err != nil {
		s.writeServiceError(w, "update agent config failed", err, "agent", agentName)
		return
	}

	s.invalidate(r.Context(), cacheKeyAgentList)

	status := "overrides set"
	if req.Thresholds == nil {
		status = "overrides cleared"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"agent_name": agentName,
		"status":     status,
	})
}

// =============================================================================
// ALERT ENDPOINTS
// =============================================================================

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := types.AlertFilter{
		AgentName: query.Get("agent"),
	}

	if hoursStr := query.Get("hours"); hoursStr != "" {
		hours, err := strconv.Atoi(hoursStr)
		if err != nil || hours <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid hours parameter")
			return
		}
		since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		filter.Since = &since
	}

	if ackStr := query.Get("acknowledged"); ackStr != "" {
		acked, err := strconv.ParseBool(ackStr)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid acknowledged parameter")
			return
		}
		filter.Acknowledged = &acked
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	alerts, err := s.svc.ListAlerts(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, "list alerts failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	if s.serveCached(w, r, cacheKeyAlertStats) {
		return
	}

	stats, err := s.svc.AlertStats(r.Context())
	if err != nil {
		s.writeServiceError(w, "get alert stats failed", err)
		return
	}

	s.cacheResponse(r.Context(), cacheKeyAlertStats, stats, cacheTTLAlertStats)
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := r.PathValue("id")
	if alertID == "" {
		s.writeError(w, http.StatusBadRequest, "alert ID required")
		return
	}

	var req struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	if err := s.readJSON(r, &req); err != nil {
		req.AcknowledgedBy = "api"
	}

	if err := s.svc.AcknowledgeAlert(r.Context(), alertID, req.AcknowledgedBy); err != nil {
		s.writeServiceError(w, "acknowledge alert failed", err, "alert", alertID)
		return
	}

	s.invalidate(r.Context(), cacheKeyAlertStats)

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "acknowledged",
		"message": "alert acknowledged",
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps service errors to HTTP status codes. Validation
// failures and missing resources surface their message to the client;
// everything else logs and returns a generic 500.
func (s *Server) writeServiceError(w http.ResponseWriter, msg string, err error, args ...any) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		s.writeError(w, http.StatusBadRequest, verr.Error())
		return
	}

	var nfe *service.NotFoundError
	if errors.As(err, &nfe) {
		s.writeError(w, http.StatusNotFound, nfe.Error())
		return
	}

	s.logger.Error(msg, append(args, "error", err)...)
	s.writeError(w, http.StatusInternalServerError, msg)
}

// serveCached writes the cached response for key if present.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, key string) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(r.Context(), key)
	if err != nil || data == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
	return true
}

func (s *Server) cacheResponse(ctx context.Context, key string, v any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, key, v, ttl); err != nil {
		s.logger.Warn("failed to cache response", "key", key, "error", err)
	}
}

func (s *Server) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate cache", "error", err)
	}
}

// wrapHandler converts an http.HandlerFunc to use middleware.
func wrapHandler(h http.HandlerFunc, middleware func(http.Handler) http.Handler) http.HandlerFunc {
	return middleware(h).ServeHTTP
}
