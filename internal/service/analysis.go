package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidSeverity = errors.New("invalid severity")
	ErrFindingsEmpty   = errors.New("at least one finding is required")
)

// AnalysisRecorder indexes completed health analyses into session memory so
// later contexts can report them as LastAnalysis and derive risk factors.
type AnalysisRecorder struct {
	indexer     domain.MemoryIndexer
	invalidator Invalidator
	logger      *zap.Logger
}

func NewAnalysisRecorder(indexer domain.MemoryIndexer, invalidator Invalidator, logger *zap.Logger) *AnalysisRecorder {
	return &AnalysisRecorder{indexer: indexer, invalidator: invalidator, logger: logger}
}

// Record stores the analysis and invalidates the session's cached context.
// A missing ID or timestamp is filled in; the stored summary is returned.
func (r *AnalysisRecorder) Record(ctx context.Context, userID, sessionID string, a domain.AnalysisSummary) (*domain.AnalysisSummary, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}
	if sessionID == "" {
		return nil, ErrSessionIDMissing
	}
	if !domain.ValidSeverity(string(a.Severity)) {
		return nil, ErrInvalidSeverity
	}
	if len(a.Findings) == 0 {
		return nil, ErrFindingsEmpty
	}
	if r.indexer == nil {
		return nil, domain.NewProviderError(domain.CodeClientNotAvailable, "add_memory", nil)
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = timeNow().UTC()
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}

	entry := domain.MemorySearchResult{
		Content:   analysisContent(a),
		Timestamp: a.Timestamp,
		Category:  domain.CategoryAnalysis,
		Metadata:  a.Metadata(),
	}

	// Entry IDs are always UUIDs; the caller's analysis ID travels in metadata.
	if err := r.indexer.AddMemory(ctx, userID, sessionID, uuid.NewString(), entry); err != nil {
		r.logger.Warn("failed to store analysis",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.String("code", string(domain.CodeOf(err))),
			zap.Error(err))
		return nil, err
	}

	if r.invalidator != nil {
		r.invalidator.Invalidate(userID, sessionID)
	}
	return &a, nil
}

// analysisContent renders the searchable text of an analysis.
func analysisContent(a domain.AnalysisSummary) string {
	var sb strings.Builder
	sb.WriteString("analysis (")
	sb.WriteString(string(a.Severity))
	sb.WriteString("): ")
	sb.WriteString(strings.Join(a.Findings, "; "))
	if len(a.Recommendations) > 0 {
		sb.WriteString("\nrecommendations: ")
		sb.WriteString(strings.Join(a.Recommendations, "; "))
	}
	return sb.String()
}
