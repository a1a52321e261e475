package domain

import "context"

// SearchProvider performs semantic search over a session's stored memories.
// Results are returned in relevance order.
type SearchProvider interface {
	Search(ctx context.Context, userID, sessionID, query string, opts SearchOptions) ([]MemorySearchResult, error)
}

type PreferencesProvider interface {
	GetPreferences(ctx context.Context, userID, sessionID string) (*UserPreferences, error)
}

type GoalsProvider interface {
	GetGoals(ctx context.Context, userID, sessionID string) ([]HealthGoal, error)
}

// ConversationWriter persists conversation turns.
type ConversationWriter interface {
	AppendTurn(ctx context.Context, turn *ConversationTurn) error
}

// ProfileWriter replaces a user's stored preferences or goals.
type ProfileWriter interface {
	SetPreferences(ctx context.Context, userID string, p UserPreferences) error
	SetGoals(ctx context.Context, userID string, goals []HealthGoal) error
}

// MemoryIndexer stores entries other than conversation turns, such as
// completed analyses, so they show up in search.
type MemoryIndexer interface {
	AddMemory(ctx context.Context, userID, sessionID, id string, r MemorySearchResult) error
}

// MemoryBackend is everything a backend implementation provides to the engine.
type MemoryBackend interface {
	SearchProvider
	PreferencesProvider
	GoalsProvider
	ConversationWriter
	Ping(ctx context.Context) error
}

// Summarizer compresses text to at most maxLength characters.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxLength int) (string, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
