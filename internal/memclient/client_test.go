package memclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, APIKey: "mem-key", RPS: 1000, Burst: 1000}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sessions/session-1/search", r.URL.Path)
		assert.Equal(t, "Bearer mem-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "knee pain", body["query"])
		assert.Equal(t, "user-1", body["user_id"])
		assert.Equal(t, float64(2), body["limit"])
		assert.Equal(t, []any{map[string]any{"category": map[string]any{"$in": []any{"conversation", "analysis"}}}}, body["metadata_filter"])

		_, _ = w.Write([]byte(`[
			{"content":"user: knee hurts","relevance_score":0.9,"timestamp":"2025-07-01T09:00:00Z","category":"conversation"},
			{"content":"a preference","score":0.8,"timestamp":"2025-07-01T09:00:00","category":"preference"},
			{"content":"analysis","score":0.7,"timestamp":"2025-07-02T09:00:00.123456","category":"analysis","metadata":{"severity":"high"}},
			{"content":"older","relevance_score":0.6,"category":"conversation"}
		]`))
	}))

	results, err := c.Search(context.Background(), "user-1", "session-1", "knee pain", domain.SearchOptions{
		Limit:   2,
		Filters: []domain.Filter{domain.CategoryIn(domain.CategoryConversation, domain.CategoryAnalysis)},
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "user: knee hurts", results[0].Content)
	assert.Equal(t, 0.9, results[0].RelevanceScore)
	assert.Equal(t, time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC), results[0].Timestamp)
	assert.Equal(t, "analysis", results[1].Content, "non-matching categories are dropped")
	assert.Equal(t, 0.7, results[1].RelevanceScore)
	assert.Equal(t, 2025, results[1].Timestamp.Year())
}

func TestGetPreferencesAndGoals(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "session-1", r.URL.Query().Get("session_id"))
		switch r.URL.Path {
		case "/users/user-1/preferences":
			_, _ = w.Write([]byte(`{"focus_areas":["sleep"],"health_goals":["run"],"communication_style":"concise"}`))
		case "/users/user-1/goals":
			_, _ = w.Write([]byte(`[{"id":"g-1","description":"Walk daily","status":"active"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	ctx := context.Background()

	prefs, err := c.GetPreferences(ctx, "user-1", "session-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sleep"}, prefs.FocusAreas)
	assert.Equal(t, "concise", prefs.CommunicationStyle)

	goals, err := c.GetGoals(ctx, "user-1", "session-1")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, domain.GoalActive, goals[0].Status)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   domain.ErrorCode
	}{
		{http.StatusNotFound, domain.CodeNotFound},
		{http.StatusServiceUnavailable, domain.CodeClientNotAvailable},
		{http.StatusTooManyRequests, domain.CodeClientNotAvailable},
		{http.StatusUnauthorized, domain.CodeClientNotAvailable},
		{http.StatusInternalServerError, domain.CodeRetrievalFailed},
		{http.StatusBadRequest, domain.CodeRetrievalFailed},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			_, err := c.GetGoals(context.Background(), "user-1", "session-1")

			require.Error(t, err)
			assert.Equal(t, tt.want, domain.CodeOf(err))
		})
	}
}

func TestUnreachableServiceIsClientNotAvailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.GetPreferences(context.Background(), "user-1", "session-1")

	assert.Equal(t, domain.CodeClientNotAvailable, domain.CodeOf(err))
}

func TestAppendTurn(t *testing.T) {
	var (
		mu       sync.Mutex
		sessions int
		messages []messageRequest
	)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/sessions":
			sessions++
			if sessions > 1 {
				w.WriteHeader(http.StatusConflict)
				return
			}
			w.WriteHeader(http.StatusCreated)
		case "/sessions/session-1/messages":
			var m messageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
			messages = append(messages, m)
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	turn := &domain.ConversationTurn{
		ID:                uuid.New(),
		UserID:            "user-1",
		SessionID:         "session-1",
		UserMessage:       "I slept badly",
		AssistantResponse: "Try a consistent bedtime.",
		Type:              domain.CategoryConversation,
		Metadata:          map[string]any{"source": "chat"},
		CreatedAt:         time.Now().UTC(),
	}

	require.NoError(t, c.AppendTurn(context.Background(), turn))
	require.NoError(t, c.AppendTurn(context.Background(), turn))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, sessions, "session is created once")
	require.Len(t, messages, 4)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "I slept badly", messages[0].Content)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, turn.ID.String(), messages[1].Metadata["turn_id"])
	assert.Equal(t, "chat", messages[1].Metadata["source"])
}

func TestAppendTurn_ExistingSessionConflictIsOK(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	err := c.AppendTurn(context.Background(), &domain.ConversationTurn{ID: uuid.New(), UserID: "u", SessionID: "s"})
	assert.NoError(t, err)
}

func TestAppendTurn_FailureIsStorageFailed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := c.AppendTurn(context.Background(), &domain.ConversationTurn{ID: uuid.New(), UserID: "u", SessionID: "s"})

	assert.Equal(t, domain.CodeStorageFailed, domain.CodeOf(err))
}

func TestRateLimiterRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, RPS: 0.1, Burst: 1}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Ping(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.GetGoals(ctx, "u", "s")

	require.Error(t, err)
	assert.Equal(t, domain.CodeRetrievalFailed, domain.CodeOf(err))
}

func TestSetPreferencesAndGoals(t *testing.T) {
	var paths []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/users/user-1/goals" {
			var goals []domain.HealthGoal
			require.NoError(t, json.NewDecoder(r.Body).Decode(&goals))
			assert.NotNil(t, goals)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	ctx := context.Background()

	require.NoError(t, c.SetPreferences(ctx, "user-1", domain.UserPreferences{FocusAreas: []string{"sleep"}}))

	err := c.SetGoals(ctx, "user-1", nil)
	assert.Equal(t, domain.CodeStorageFailed, domain.CodeOf(err))
	assert.Equal(t, []string{"/users/user-1/preferences", "/users/user-1/goals"}, paths)
}

func TestAddMemory(t *testing.T) {
	var got messageRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sessions" {
			w.WriteHeader(http.StatusCreated)
			return
		}
		assert.Equal(t, "/sessions/s/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))

	err := c.AddMemory(context.Background(), "u", "s", "entry-1", domain.MemorySearchResult{
		Content:  "analysis (high): Hypertension",
		Category: domain.CategoryAnalysis,
		Metadata: map[string]any{domain.MetaSeverity: "high"},
	})

	require.NoError(t, err)
	assert.Equal(t, "assistant", got.Role)
	assert.Equal(t, "analysis", got.Metadata["category"])
	assert.Equal(t, "high", got.Metadata[domain.MetaSeverity])
	assert.Equal(t, "entry-1", got.Metadata["entry_id"])
}
