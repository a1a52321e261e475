package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/Harshitk-cp/healthmem/internal/embedding"
	"github.com/Harshitk-cp/healthmem/internal/llm"
	"github.com/Harshitk-cp/healthmem/internal/localstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T) (*App, *localstore.Store) {
	t.Helper()
	t.Setenv("API_KEY", "")
	t.Setenv("RETENTION_DAYS", "")

	s := localstore.New(embedding.NewMockClient(256), zap.NewNop())
	app := NewApp(Deps{Backend: s, Summarizer: llm.NewMockClient(), Pruner: s}, zap.NewNop())
	return app, s
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)

	rec := do(t, app.Router, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "dev", body["version"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

type downBackend struct{ domain.MemoryBackend }

func (downBackend) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestHealth_BackendDown(t *testing.T) {
	app := NewApp(Deps{Backend: downBackend{}}, zap.NewNop())

	rec := do(t, app.Router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "connection refused", body["backend"])
}

func TestContextFlow(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.Router

	rec := do(t, h, http.MethodPut, "/v1/users/user-1/preferences", domain.UserPreferences{
		FocusAreas:         []string{"sleep"},
		CommunicationStyle: "concise",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/conversations", map[string]any{
		"user_id":            "user-1",
		"session_id":         "session-1",
		"user_message":       "My knee hurts after running",
		"assistant_response": "I recommend resting the knee for a few days.\nOk.",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	update := decode[map[string]any](t, rec)
	assert.Equal(t, true, update["success"])
	assert.NotEmpty(t, update["turn_id"])
	assert.Equal(t, []any{"I recommend resting the knee for a few days."}, update["recommendations"])

	rec = do(t, h, http.MethodPost, "/v1/context", map[string]any{
		"user_id":            "user-1",
		"session_id":         "session-1",
		"query":              "knee pain",
		"max_context_length": 1000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	hc := decode[domain.HealthContext](t, rec)
	require.Len(t, hc.RelevantHistory, 1)
	assert.Contains(t, hc.RelevantHistory[0].Content, "My knee hurts")
	assert.Equal(t, []string{"sleep"}, hc.UserPreferences.FocusAreas)
	assert.Empty(t, hc.HealthGoals)
	assert.Empty(t, hc.DegradedSources, "missing goals are not a failure")
	assert.Contains(t, hc.ConversationSummary, "My knee hurts")
}

func TestContext_NewTurnIsVisibleAfterUpdate(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.Router
	req := map[string]any{"user_id": "u", "session_id": "s", "query": "sleep"}

	rec := do(t, h, http.MethodPost, "/v1/context", req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[domain.HealthContext](t, rec).RelevantHistory)

	rec = do(t, h, http.MethodPost, "/v1/conversations", map[string]any{
		"user_id": "u", "session_id": "s",
		"user_message": "I sleep badly", "assistant_response": "Keep a regular bedtime",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/context", req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[domain.HealthContext](t, rec).RelevantHistory, 1)
}

func TestContext_Validation(t *testing.T) {
	app, _ := newTestApp(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing user", map[string]any{"session_id": "s"}},
		{"missing session", map[string]any{"user_id": "u"}},
		{"unknown field", map[string]any{"user_id": "u", "session_id": "s", "bogus": 1}},
		{"negative limit", map[string]any{"user_id": "u", "session_id": "s", "history_limit": -1}},
		{"empty body", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, app.Router, http.MethodPost, "/v1/context", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestConversation_Async(t *testing.T) {
	app, s := newTestApp(t)

	rec := do(t, app.Router, http.MethodPost, "/v1/conversations", map[string]any{
		"user_id": "u", "session_id": "s",
		"user_message": "hello", "assistant_response": "hi there",
		"async": true,
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool {
		results, err := s.Search(context.Background(), "u", "s", "hello", domain.SearchOptions{Limit: 1})
		return err == nil && len(results) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestConversation_Validation(t *testing.T) {
	app, _ := newTestApp(t)

	rec := do(t, app.Router, http.MethodPost, "/v1/conversations", map[string]any{"user_id": "u", "session_id": "s"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheStatsAndInvalidation(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.Router

	rec := do(t, h, http.MethodPost, "/v1/context", map[string]any{"user_id": "u", "session_id": "s", "query": "q"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), stats["size"])

	rec = do(t, h, http.MethodDelete, "/v1/cache/sessions/u/s", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"invalidated": float64(2)}, decode[map[string]any](t, rec))
	assert.Equal(t, 0, app.Cache.Len())
}

func TestPutGoals(t *testing.T) {
	app, s := newTestApp(t)

	rec := do(t, app.Router, http.MethodPut, "/v1/users/u/goals", []map[string]any{
		{"id": "g-1", "description": "Walk daily", "status": "active"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	goals, err := s.GetGoals(context.Background(), "u", "s")
	require.NoError(t, err)
	assert.Len(t, goals, 1)

	rec = do(t, app.Router, http.MethodPut, "/v1/users/u/goals", []map[string]any{
		{"id": "g-2", "description": "Swim", "status": "someday"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutPreferences_InvalidatesCachedContext(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.Router
	req := map[string]any{"user_id": "u", "session_id": "s", "query": "q"}

	rec := do(t, h, http.MethodPost, "/v1/context", req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[domain.HealthContext](t, rec).UserPreferences.FocusAreas)

	rec = do(t, h, http.MethodPut, "/v1/users/u/preferences", domain.UserPreferences{FocusAreas: []string{"fitness"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/context", req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"fitness"}, decode[domain.HealthContext](t, rec).UserPreferences.FocusAreas)
}

func TestAPIKeyRequiredOnV1(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	s := localstore.New(embedding.NewMockClient(64), zap.NewNop())
	app := NewApp(Deps{Backend: s}, zap.NewNop())

	rec := do(t, app.Router, http.MethodGet, "/v1/cache/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, app.Router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	do(t, app.Router, http.MethodGet, "/health", nil)

	rec := do(t, app.Router, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "healthmem_cache_entries"))
	assert.True(t, strings.Contains(body, `healthmem_http_requests_total{method="GET",route="/health",status="200"} 1`))
}

func TestRetentionOnlyWhenConfigured(t *testing.T) {
	app, _ := newTestApp(t)
	assert.Nil(t, app.Retention)

	t.Setenv("RETENTION_DAYS", "30")
	s := localstore.New(embedding.NewMockClient(64), zap.NewNop())
	app = NewApp(Deps{Backend: s, Pruner: s}, zap.NewNop())
	require.NotNil(t, app.Retention)

	app.Start()
	app.Stop()
}

func TestRecordAnalysis_FeedsLastAnalysisAndRiskFactors(t *testing.T) {
	app, _ := newTestApp(t)
	h := app.Router

	rec := do(t, h, http.MethodPost, "/v1/analyses", map[string]any{
		"user_id": "u", "session_id": "s",
		"id":              "lab-42",
		"severity":        "critical",
		"findings":        []string{"Elevated glucose"},
		"recommendations": []string{"Reduce sugar intake"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/context", map[string]any{
		"user_id": "u", "session_id": "s", "query": "glucose", "max_context_length": 1000,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	hc := decode[domain.HealthContext](t, rec)
	require.NotNil(t, hc.LastAnalysis)
	assert.Equal(t, "lab-42", hc.LastAnalysis.ID)
	assert.Equal(t, domain.SeverityCritical, hc.LastAnalysis.Severity)
	assert.Equal(t, []string{"Elevated glucose"}, hc.RiskFactors)

	rec = do(t, h, http.MethodPost, "/v1/analyses", map[string]any{
		"user_id": "u", "session_id": "s", "severity": "dire", "findings": []string{"x"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
