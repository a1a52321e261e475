package domain

import (
	"time"

	"github.com/google/uuid"
)

// MemoryCategory classifies an entry held by the memory service.
type MemoryCategory string

const (
	CategoryConversation MemoryCategory = "conversation"
	CategoryAnalysis     MemoryCategory = "analysis"
	CategoryPreference   MemoryCategory = "preference"
	CategoryGoal         MemoryCategory = "goal"
)

func ValidMemoryCategory(c string) bool {
	switch MemoryCategory(c) {
	case CategoryConversation, CategoryAnalysis, CategoryPreference, CategoryGoal:
		return true
	}
	return false
}

// Severity of a health analysis.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ValidSeverity(s string) bool {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Elevated reports whether findings at this severity count as risk factors.
func (s Severity) Elevated() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// MemorySearchResult is one scored hit returned by the search provider.
type MemorySearchResult struct {
	Content        string         `json:"content"`
	RelevanceScore float64        `json:"relevance_score"`
	Timestamp      time.Time      `json:"timestamp"`
	Category       MemoryCategory `json:"category"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// AnalysisSummary is a prior health-analysis record.
type AnalysisSummary struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Severity        Severity  `json:"severity"`
	Findings        []string  `json:"findings"`
	Recommendations []string  `json:"recommendations"`
}

// UserPreferences is the latest preference snapshot for a user.
type UserPreferences struct {
	FocusAreas         []string `json:"focus_areas"`
	HealthGoals        []string `json:"health_goals"`
	CommunicationStyle string   `json:"communication_style,omitempty"`
	ReminderFrequency  string   `json:"reminder_frequency,omitempty"`
	PrivacyLevel       string   `json:"privacy_level,omitempty"`
}

// Clone returns a deep copy so callers never share slices with a provider.
func (p UserPreferences) Clone() UserPreferences {
	p.FocusAreas = cloneStrings(p.FocusAreas)
	p.HealthGoals = cloneStrings(p.HealthGoals)
	return p
}

// GoalStatus tracks progress on a health goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalAchieved  GoalStatus = "achieved"
	GoalAbandoned GoalStatus = "abandoned"
)

type HealthGoal struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	TargetDate  *time.Time `json:"target_date,omitempty"`
	Status      GoalStatus `json:"status"`
}

// HealthContext is the per-request personalization snapshot. It is built fresh on
// every cache miss and never mutated after being returned.
type HealthContext struct {
	UserID              string               `json:"user_id"`
	SessionID           string               `json:"session_id"`
	RelevantHistory     []MemorySearchResult `json:"relevant_history"`
	UserPreferences     UserPreferences      `json:"user_preferences"`
	HealthGoals         []HealthGoal         `json:"health_goals"`
	ConversationSummary string               `json:"conversation_summary"`
	LastAnalysis        *AnalysisSummary     `json:"last_analysis"`
	RiskFactors         []string             `json:"risk_factors"`
	DegradedSources     []string             `json:"degraded_sources,omitempty"`
	Timestamp           time.Time            `json:"timestamp"`
}

// ContextOptions selects which lookups the aggregator performs.
type ContextOptions struct {
	IncludeHistory     bool `json:"include_history"`
	IncludePreferences bool `json:"include_preferences"`
	IncludeGoals       bool `json:"include_goals"`
	MaxContextLength   int  `json:"max_context_length"`
	HistoryLimit       int  `json:"history_limit"`
}

const (
	DefaultMaxContextLength = 500
	DefaultHistoryLimit     = 5
)

func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		IncludeHistory:     true,
		IncludePreferences: true,
		IncludeGoals:       true,
		MaxContextLength:   DefaultMaxContextLength,
		HistoryLimit:       DefaultHistoryLimit,
	}
}

// ConversationTurn is one user/assistant exchange persisted to the memory service.
type ConversationTurn struct {
	ID                uuid.UUID      `json:"id"`
	UserID            string         `json:"user_id"`
	SessionID         string         `json:"session_id"`
	UserMessage       string         `json:"user_message"`
	AssistantResponse string         `json:"assistant_response"`
	Type              MemoryCategory `json:"type"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Content renders the turn as the text indexed for search.
func (t ConversationTurn) Content() string {
	return "user: " + t.UserMessage + "\nassistant: " + t.AssistantResponse
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
