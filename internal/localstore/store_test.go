package localstore

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/Harshitk-cp/healthmem/internal/embedding"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore() *Store {
	return New(embedding.NewMockClient(256), zap.NewNop())
}

func turn(userID, sessionID, userMsg, reply string, at time.Time) *domain.ConversationTurn {
	return &domain.ConversationTurn{
		ID:                uuid.New(),
		UserID:            userID,
		SessionID:         sessionID,
		UserMessage:       userMsg,
		AssistantResponse: reply,
		Type:              domain.CategoryConversation,
		CreatedAt:         at,
	}
}

func TestSearch_ScopedToSessionAndRanked(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.AppendTurn(ctx, turn("user-1", "s1", "my knee pain is worse after running", "rest the knee", now)))
	require.NoError(t, s.AppendTurn(ctx, turn("user-1", "s1", "what should I eat for breakfast", "eggs and fruit", now)))
	require.NoError(t, s.AppendTurn(ctx, turn("user-1", "s2", "knee pain again", "see a physio", now)))

	results, err := s.Search(ctx, "user-1", "s1", "knee pain", domain.SearchOptions{Limit: 5})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Content, "knee pain is worse")
	assert.GreaterOrEqual(t, results[0].RelevanceScore, results[1].RelevanceScore)
	assert.Equal(t, domain.CategoryConversation, results[0].Category)
	assert.False(t, results[0].Timestamp.IsZero())
	for _, r := range results {
		assert.NotContains(t, r.Content, "physio")
	}
}

func TestSearch_UnknownUserIsEmpty(t *testing.T) {
	s := newTestStore()

	results, err := s.Search(context.Background(), "nobody", "s1", "anything", domain.SearchOptions{Limit: 5})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_FiltersAndMetadataRoundTrip(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, turn("user-1", "s1", "blood pressure question", "let us check", time.Now())))
	require.NoError(t, s.AddMemory(ctx, "user-1", "s1", "analysis-1", domain.MemorySearchResult{
		Content:  "analysis: blood pressure elevated",
		Category: domain.CategoryAnalysis,
		Metadata: map[string]any{
			domain.MetaSeverity: "high",
			domain.MetaFindings: []string{"Hypertension"},
			"score":             0.8,
		},
	}))

	results, err := s.Search(ctx, "user-1", "s1", "blood pressure", domain.SearchOptions{
		Limit:   5,
		Filters: []domain.Filter{domain.CategoryIn(domain.CategoryAnalysis)},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	a, ok := domain.AnalysisFromResult(results[0])
	require.True(t, ok)
	assert.Equal(t, domain.SeverityHigh, a.Severity)
	assert.Equal(t, []string{"Hypertension"}, a.Findings)
	assert.Equal(t, 0.8, results[0].Metadata["score"])
	assert.NotContains(t, results[0].Metadata, metaSessionID)

	minScore := 0.9
	results, err = s.Search(ctx, "user-1", "s1", "blood pressure", domain.SearchOptions{
		Limit:   5,
		Filters: []domain.Filter{domain.Range("score", &minScore, nil)},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_RespectsLimit(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		require.NoError(t, s.AppendTurn(ctx, turn("user-1", "s1", "sleep question", "sleep answer", time.Now())))
	}

	results, err := s.Search(ctx, "user-1", "s1", "sleep", domain.SearchOptions{Limit: 3})

	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestPreferencesAndGoals(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_, err := s.GetPreferences(ctx, "user-1", "s1")
	assert.True(t, domain.IsNotFound(err))
	_, err = s.GetGoals(ctx, "user-1", "s1")
	assert.True(t, domain.IsNotFound(err))

	prefs := domain.UserPreferences{FocusAreas: []string{"sleep"}}
	require.NoError(t, s.SetPreferences(ctx, "user-1", prefs))
	require.NoError(t, s.SetGoals(ctx, "user-1", []domain.HealthGoal{{ID: "g-1", Description: "Walk", Status: domain.GoalActive}}))

	prefs.FocusAreas[0] = "mutated"

	got, err := s.GetPreferences(ctx, "user-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sleep"}, got.FocusAreas)

	goals, err := s.GetGoals(ctx, "user-1", "s1")
	require.NoError(t, err)
	assert.Len(t, goals, 1)
}

func TestDeleteTurnsBefore(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.AppendTurn(ctx, turn("user-1", "s1", "old sleep note", "ok", now.AddDate(0, 0, -40))))
	require.NoError(t, s.AppendTurn(ctx, turn("user-1", "s1", "new sleep note", "ok", now)))

	deleted, err := s.DeleteTurnsBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	results, err := s.Search(ctx, "user-1", "s1", "sleep note", domain.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "new sleep note")

	deleted, err = s.DeleteTurnsBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestMetadataRoundTrip(t *testing.T) {
	in := map[string]any{
		"plain":   "plain",
		"zeros":   "007",
		"exp":     "1e5",
		"boolish": "true",
		"listish": `["a"]`,
		"tagged":  jsonTag + "1",
		"number":  1.5,
		"flag":    true,
		"list":    []string{"a"},
		"nested":  map[string]any{"k": "v"},
	}

	encoded := encodeMetadata(in)
	out := make(map[string]any, len(encoded))
	for k, v := range encoded {
		out[k] = decodeValue(v)
	}

	assert.Equal(t, "plain", out["plain"])
	assert.Equal(t, "007", out["zeros"])
	assert.Equal(t, "1e5", out["exp"])
	assert.Equal(t, "true", out["boolish"])
	assert.Equal(t, `["a"]`, out["listish"])
	assert.Equal(t, jsonTag+"1", out["tagged"])
	assert.Equal(t, 1.5, out["number"])
	assert.Equal(t, true, out["flag"])
	assert.Equal(t, []any{"a"}, out["list"])
	assert.Equal(t, map[string]any{"k": "v"}, out["nested"])
}
