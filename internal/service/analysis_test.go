package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) AddMemory(ctx context.Context, userID, sessionID, id string, r domain.MemorySearchResult) error {
	args := m.Called(ctx, userID, sessionID, id, r)
	return args.Error(0)
}

func TestRecordAnalysis_StoresAndInvalidates(t *testing.T) {
	fixed := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return fixed }
	t.Cleanup(func() { timeNow = time.Now })

	idx := new(MockIndexer)
	inv := &countingInvalidator{}
	rec := NewAnalysisRecorder(idx, inv, testLogger())

	var stored domain.MemorySearchResult
	idx.On("AddMemory", mock.Anything, "user-1", "session-1", mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(4).(domain.MemorySearchResult) }).
		Return(nil)

	a, err := rec.Record(context.Background(), "user-1", "session-1", domain.AnalysisSummary{
		Severity:        domain.SeverityHigh,
		Findings:        []string{"Hypertension", "Low sleep"},
		Recommendations: []string{"Reduce sodium"},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, fixed, a.Timestamp)
	assert.Equal(t, 1, len(inv.calls))

	assert.Equal(t, domain.CategoryAnalysis, stored.Category)
	assert.Equal(t, "analysis (high): Hypertension; Low sleep\nrecommendations: Reduce sodium", stored.Content)

	decoded, ok := domain.AnalysisFromResult(stored)
	require.True(t, ok)
	assert.Equal(t, a.ID, decoded.ID)
	assert.Equal(t, []string{"Hypertension", "Low sleep"}, decoded.Findings)
	idx.AssertExpectations(t)
}

func TestRecordAnalysis_Validation(t *testing.T) {
	rec := NewAnalysisRecorder(new(MockIndexer), nil, testLogger())
	ctx := context.Background()
	valid := domain.AnalysisSummary{Severity: domain.SeverityLow, Findings: []string{"ok"}}

	_, err := rec.Record(ctx, "", "s", valid)
	assert.ErrorIs(t, err, ErrUserIDMissing)

	_, err = rec.Record(ctx, "u", "", valid)
	assert.ErrorIs(t, err, ErrSessionIDMissing)

	_, err = rec.Record(ctx, "u", "s", domain.AnalysisSummary{Severity: "severe", Findings: []string{"x"}})
	assert.ErrorIs(t, err, ErrInvalidSeverity)

	_, err = rec.Record(ctx, "u", "s", domain.AnalysisSummary{Severity: domain.SeverityLow})
	assert.ErrorIs(t, err, ErrFindingsEmpty)
}

func TestRecordAnalysis_StoreFailureSkipsInvalidation(t *testing.T) {
	idx := new(MockIndexer)
	inv := &countingInvalidator{}
	idx.On("AddMemory", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.NewProviderError(domain.CodeStorageFailed, "add_memory", assert.AnError))

	_, err := NewAnalysisRecorder(idx, inv, testLogger()).Record(context.Background(), "u", "s",
		domain.AnalysisSummary{Severity: domain.SeverityLow, Findings: []string{"fine"}})

	assert.Equal(t, domain.CodeStorageFailed, domain.CodeOf(err))
	assert.Equal(t, 0, len(inv.calls))
}

func TestRecordAnalysis_NoIndexer(t *testing.T) {
	_, err := NewAnalysisRecorder(nil, nil, testLogger()).Record(context.Background(), "u", "s",
		domain.AnalysisSummary{Severity: domain.SeverityLow, Findings: []string{"fine"}})

	assert.ErrorIs(t, err, domain.ErrClientNotAvailable)
}
