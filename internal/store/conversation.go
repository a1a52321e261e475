package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

const defaultSearchLimit = 10

type ConversationStore struct {
	db *pgxpool.Pool
}

func NewConversationStore(db *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{db: db}
}

// Create inserts a turn. The embedding may be nil; such turns are stored but
// never returned by Search.
func (s *ConversationStore) Create(ctx context.Context, t *domain.ConversationTurn, embedding []float32) error {
	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}

	if t.Type == "" {
		t.Type = domain.CategoryConversation
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO conversation_turns (id, user_id, session_id, category, user_message, assistant_response, content, embedding, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, '{}'::jsonb))
		 RETURNING created_at`,
		t.ID, t.UserID, t.SessionID, string(t.Type), t.UserMessage, t.AssistantResponse, t.Content(), vec, t.Metadata,
	).Scan(&t.CreatedAt)
}

// CreateEntry inserts a non-conversation entry, such as an analysis, whose
// content is indexed as given.
func (s *ConversationStore) CreateEntry(ctx context.Context, id uuid.UUID, userID, sessionID string, r domain.MemorySearchResult, embedding []float32) error {
	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}
	createdAt := r.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO conversation_turns (id, user_id, session_id, category, content, embedding, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, '{}'::jsonb), $8)`,
		id, userID, sessionID, string(r.Category), r.Content, vec, r.Metadata, createdAt,
	)
	return err
}

// Search returns the session's turns nearest to the query embedding, most
// similar first.
func (s *ConversationStore) Search(ctx context.Context, embedding []float32, userID, sessionID string, opts domain.SearchOptions) ([]domain.MemorySearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	b := &whereBuilder{}
	b.add(fmt.Sprintf("user_id = %s", b.arg(userID)))
	b.add(fmt.Sprintf("session_id = %s", b.arg(sessionID)))
	b.add("embedding IS NOT NULL")
	if err := b.addFilters(opts.Filters); err != nil {
		return nil, err
	}

	embeddingParam := b.arg(pgvector.NewVector(embedding))
	limitParam := b.arg(limit)

	query := fmt.Sprintf(
		`SELECT content, category, metadata, created_at, 1 - (embedding <=> %s) AS score
		 FROM conversation_turns
		 WHERE %s
		 ORDER BY embedding <=> %s, created_at DESC
		 LIMIT %s`,
		embeddingParam, b.sql(), embeddingParam, limitParam,
	)

	rows, err := s.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	results := []domain.MemorySearchResult{}
	for rows.Next() {
		var (
			r        domain.MemorySearchResult
			category string
		)
		if err := rows.Scan(&r.Content, &category, &r.Metadata, &r.Timestamp, &r.RelevanceScore); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.Category = domain.MemoryCategory(category)
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteBefore removes turns created before cutoff and returns how many were deleted.
func (s *ConversationStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM conversation_turns WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *ConversationStore) CountBySession(ctx context.Context, userID, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversation_turns WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID,
	).Scan(&n)
	return n, err
}
