package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Backend serves every memory provider role from Postgres.
type Backend struct {
	db            *pgxpool.Pool
	conversations *ConversationStore
	profiles      *ProfileStore
	embedder      domain.EmbeddingClient
	logger        *zap.Logger
}

func NewBackend(db *pgxpool.Pool, embedder domain.EmbeddingClient, logger *zap.Logger) *Backend {
	return &Backend{
		db:            db,
		conversations: NewConversationStore(db),
		profiles:      NewProfileStore(db),
		embedder:      embedder,
		logger:        logger,
	}
}

func (b *Backend) Profiles() *ProfileStore {
	return b.profiles
}

func (b *Backend) Search(ctx context.Context, userID, sessionID, query string, opts domain.SearchOptions) ([]domain.MemorySearchResult, error) {
	emb, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.NewProviderError(domain.CodeRetrievalFailed, "search", fmt.Errorf("embed query: %w", err))
	}

	results, err := b.conversations.Search(ctx, emb, userID, sessionID, opts)
	if err != nil {
		return nil, domain.NewProviderError(domain.CodeRetrievalFailed, "search", err)
	}
	return results, nil
}

func (b *Backend) GetPreferences(ctx context.Context, userID, sessionID string) (*domain.UserPreferences, error) {
	p, err := b.profiles.GetPreferences(ctx, userID)
	if err != nil {
		return nil, wrapRead("preferences", err)
	}
	return p, nil
}

func (b *Backend) GetGoals(ctx context.Context, userID, sessionID string) ([]domain.HealthGoal, error) {
	goals, err := b.profiles.GetGoals(ctx, userID)
	if err != nil {
		return nil, wrapRead("goals", err)
	}
	return goals, nil
}

// AppendTurn stores the turn with an embedding of its content. A failed
// embedding still stores the turn; it just won't be searchable.
func (b *Backend) AppendTurn(ctx context.Context, t *domain.ConversationTurn) error {
	emb, err := b.embedder.Embed(ctx, t.Content())
	if err != nil {
		b.logger.Warn("failed to embed conversation turn",
			zap.String("turn_id", t.ID.String()),
			zap.Error(err))
		emb = nil
	}

	if err := b.conversations.Create(ctx, t, emb); err != nil {
		return domain.NewProviderError(domain.CodeStorageFailed, "append_turn", err)
	}
	return nil
}

func (b *Backend) SetPreferences(ctx context.Context, userID string, p domain.UserPreferences) error {
	if err := b.profiles.UpsertPreferences(ctx, userID, p); err != nil {
		return domain.NewProviderError(domain.CodeStorageFailed, "set_preferences", err)
	}
	return nil
}

func (b *Backend) SetGoals(ctx context.Context, userID string, goals []domain.HealthGoal) error {
	if err := b.profiles.UpsertGoals(ctx, userID, goals); err != nil {
		return domain.NewProviderError(domain.CodeStorageFailed, "set_goals", err)
	}
	return nil
}

// AddMemory indexes an arbitrary entry, such as a prior analysis, for search.
func (b *Backend) AddMemory(ctx context.Context, userID, sessionID, id string, r domain.MemorySearchResult) error {
	const op = "add_memory"

	entryID, err := uuid.Parse(id)
	if err != nil {
		return domain.NewProviderError(domain.CodeStorageFailed, op, fmt.Errorf("invalid entry id %q: %w", id, err))
	}
	if r.Category == "" {
		r.Category = domain.CategoryConversation
	}

	emb, err := b.embedder.Embed(ctx, r.Content)
	if err != nil {
		return domain.NewProviderError(domain.CodeStorageFailed, op, fmt.Errorf("embed: %w", err))
	}

	if err := b.conversations.CreateEntry(ctx, entryID, userID, sessionID, r, emb); err != nil {
		return domain.NewProviderError(domain.CodeStorageFailed, op, err)
	}
	return nil
}

func (b *Backend) DeleteTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return b.conversations.DeleteBefore(ctx, cutoff)
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.db.Ping(ctx)
}

func wrapRead(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return domain.NewProviderError(domain.CodeNotFound, op, err)
	}
	return domain.NewProviderError(domain.CodeRetrievalFailed, op, err)
}

var (
	_ domain.MemoryBackend = (*Backend)(nil)
	_ domain.ProfileWriter = (*Backend)(nil)
	_ domain.MemoryIndexer = (*Backend)(nil)
)
