package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sentora/sentora/internal/service"
	"github.com/sentora/sentora/internal/testutil"
	"github.com/sentora/sentora/pkg/types"
)

const testAPIKey = "test-key-123"

// mockService implements Service for handler tests.
type mockService struct {
	mu         sync.Mutex
	ingested   []types.MetricsReport
	ingestErr  error
	agents     []types.AgentRecord
	history    []types.MetricsReport
	historyErr error
	alerts     []types.Alert
	stats      types.AlertStats
	acked      []string
	ackErr     error
	updateErr  error
	lastWindow time.Duration
	lastFilter types.AlertFilter
}

func (m *mockService) IngestReport(ctx context.Context, report *types.MetricsReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ingestErr != nil {
		return m.ingestErr
	}
	m.ingested = append(m.ingested, *report)
	return nil
}

func (m *mockService) ListAgents(ctx context.Context) ([]types.AgentRecord, error) {
	return m.agents, nil
}

func (m *mockService) History(ctx context.Context, agentName string, window time.Duration) ([]types.MetricsReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	m.lastWindow = window
	return m.history, nil
}

func (m *mockService) UpdateAgentThresholds(ctx context.Context, agentName string, overrides *types.Thresholds) error {
	return m.updateErr
}

func (m *mockService) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	return m.alerts, nil
}

func (m *mockService) AlertStats(ctx context.Context) (*types.AlertStats, error) {
	return &m.stats, nil
}

func (m *mockService) AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ackErr != nil {
		return m.ackErr
	}
	m.acked = append(m.acked, id)
	return nil
}

func newTestServer(svc *mockService) *Server {
	logger := testutil.NewTestLogger()
	auth := NewKeyAuth([]string{testAPIKey}, logger)
	return NewServer(svc, auth, nil, logger)
}

func doRequest(t *testing.T, srv *Server, method, path string, body any, key string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthNoAuth(t *testing.T) {
	srv := newTestServer(&mockService{})

	rec := doRequest(t, srv, "GET", "/api/v1/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(&mockService{})

	paths := []struct {
		method, path string
	}{
		{"POST", "/api/v1/reports"},
		{"POST", "/data"},
		{"GET", "/api/v1/agents"},
		{"GET", "/api/v1/alerts"},
		{"GET", "/api/v1/alerts/stats"},
	}
	for _, p := range paths {
		rec := doRequest(t, srv, p.method, p.path, nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without key returned %d, want 401", p.method, p.path, rec.Code)
		}
		rec = doRequest(t, srv, p.method, p.path, nil, "wrong-key")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s with bad key returned %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestKeyAuthBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	auth := NewKeyAuth([]string{string(hash)}, testutil.NewTestLogger())

	if !auth.Valid("secret-key") {
		t.Error("valid key rejected against bcrypt hash")
	}
	if auth.Valid("wrong") {
		t.Error("wrong key accepted")
	}
	if auth.Valid("") {
		t.Error("empty key accepted")
	}
}

func TestIngestReport(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc)

	report := testutil.FixtureReport()
	rec := doRequest(t, srv, "POST", "/api/v1/reports", report, testAPIKey)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ingest returned %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.ingested) != 1 {
		t.Errorf("service received %d reports, want 1", len(svc.ingested))
	}

	// Legacy alias reaches the same handler.
	rec = doRequest(t, srv, "POST", "/data", report, testAPIKey)
	if rec.Code != http.StatusAccepted {
		t.Errorf("legacy alias returned %d", rec.Code)
	}
}

func TestIngestReportValidationMapsTo400(t *testing.T) {
	svc := &mockService{ingestErr: &service.ValidationError{Field: "cpu_pct", Reason: "must be between 0 and 100"}}
	srv := newTestServer(svc)

	rec := doRequest(t, srv, "POST", "/api/v1/reports", testutil.FixtureReport(), testAPIKey)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] == "" {
		t.Error("400 response missing error message")
	}
}

func TestIngestReportBadJSON(t *testing.T) {
	srv := newTestServer(&mockService{})

	req := httptest.NewRequest("POST", "/api/v1/reports", bytes.NewBufferString("{not json"))
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rec.Code)
	}
}

func TestListAgents(t *testing.T) {
	svc := &mockService{agents: []types.AgentRecord{
		*testutil.FixtureAgentRecord(),
		*testutil.FixtureAgentOffline(func(a *types.AgentRecord) { a.AgentName = "stale-agent" }),
	}}
	srv := newTestServer(svc)

	rec := doRequest(t, srv, "GET", "/api/v1/agents", nil, testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}

	var body struct {
		Agents []types.AgentRecord `json:"agents"`
		Count  int                 `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || len(body.Agents) != 2 {
		t.Errorf("got count=%d agents=%d, want 2", body.Count, len(body.Agents))
	}
}

func TestAgentHistory(t *testing.T) {
	svc := &mockService{history: []types.MetricsReport{*testutil.FixtureReport()}}
	srv := newTestServer(svc)

	rec := doRequest(t, srv, "GET", "/api/v1/agents/test-agent/history?hours=6", nil, testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastWindow != 6*time.Hour {
		t.Errorf("window %v, want 6h", svc.lastWindow)
	}

	// Window capped at 7 days.
	doRequest(t, srv, "GET", "/api/v1/agents/test-agent/history?hours=10000", nil, testAPIKey)
	if svc.lastWindow != 168*time.Hour {
		t.Errorf("window %v, want capped 168h", svc.lastWindow)
	}

	rec = doRequest(t, srv, "GET", "/api/v1/agents/test-agent/history?hours=bogus", nil, testAPIKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus hours returned %d, want 400", rec.Code)
	}
}

func TestAgentHistoryNotFound(t *testing.T) {
	svc := &mockService{historyErr: &service.NotFoundError{Resource: "agent", ID: "ghost"}}
	srv := newTestServer(svc)

	rec := doRequest(t, srv, "GET", "/api/v1/agents/ghost/history", nil, testAPIKey)
	if rec.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rec.Code)
	}
}

func TestUpdateAgentConfig(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc)

	overrides := types.DefaultThresholds()
	overrides.CPUPct = 70
	rec := doRequest(t, srv, "PUT", "/api/v1/agents/test-agent/config",
		updateAgentConfigRequest{Thresholds: &overrides}, testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	// Validation failures from the service map to 400.
	svc.updateErr = &service.ValidationError{Field: "disk_pct", Reason: "must be between 0 and 100"}
	rec = doRequest(t, srv, "PUT", "/api/v1/agents/test-agent/config",
		updateAgentConfigRequest{Thresholds: &overrides}, testAPIKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rec.Code)
	}
}

func TestListAlertsFilters(t *testing.T) {
	svc := &mockService{alerts: []types.Alert{*testutil.FixtureAlert()}}
	srv := newTestServer(svc)

	rec := doRequest(t, srv, "GET", "/api/v1/alerts?hours=12&acknowledged=false&agent=test-agent", nil, testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}

	if svc.lastFilter.AgentName != "test-agent" {
		t.Errorf("agent filter %q", svc.lastFilter.AgentName)
	}
	if svc.lastFilter.Since == nil {
		t.Error("hours filter not translated to since")
	}
	if svc.lastFilter.Acknowledged == nil || *svc.lastFilter.Acknowledged {
		t.Error("acknowledged filter not applied")
	}

	rec = doRequest(t, srv, "GET", "/api/v1/alerts?hours=-1", nil, testAPIKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative hours returned %d, want 400", rec.Code)
	}
}

func TestAlertStats(t *testing.T) {
	svc := &mockService{stats: types.AlertStats{OpenCount: 3, CriticalCount: 1}}
	srv := newTestServer(svc)

	rec := doRequest(t, srv, "GET", "/api/v1/alerts/stats", nil, testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}

	var stats types.AlertStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.OpenCount != 3 || stats.CriticalCount != 1 {
		t.Errorf("stats %+v", stats)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	svc := &mockService{}
	srv := newTestServer(svc)

	rec := doRequest(t, srv, "POST", "/api/v1/alerts/abc-123/acknowledge",
		map[string]string{"acknowledged_by": "operator"}, testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.acked) != 1 || svc.acked[0] != "abc-123" {
		t.Errorf("acked %v", svc.acked)
	}

	svc.ackErr = &service.NotFoundError{Resource: "alert", ID: "missing"}
	rec = doRequest(t, srv, "POST", "/api/v1/alerts/missing/acknowledge", nil, testAPIKey)
	if rec.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rec.Code)
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	svc := &mockService{ingestErr: fmt.Errorf("pgx: connection refused")}
	srv := newTestServer(svc)

	rec := doRequest(t, srv, "POST", "/api/v1/reports", testutil.FixtureReport(), testAPIKey)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("pgx")) {
		t.Error("internal error detail leaked to client")
	}
}
