// Package localstore is an in-process memory backend built on chromem-go.
// It keeps everything in memory and is meant for development and tests.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Metadata keys reserved by the store.
const (
	metaUserID    = "user_id"
	metaSessionID = "session_id"
	metaCategory  = "category"
	metaCreatedAt = "created_at"
)

const minQueryResults = 20

type turnRef struct {
	id        string
	sessionID string
	createdAt time.Time
}

type Store struct {
	db       *chromem.DB
	embedder domain.EmbeddingClient
	logger   *zap.Logger

	mu          sync.RWMutex
	collections map[string]*chromem.Collection // per user
	turns       map[string][]turnRef           // per user, insertion order
	perSession  map[string]int                 // user\x00session -> entries
	preferences map[string]domain.UserPreferences
	goals       map[string][]domain.HealthGoal
}

func New(embedder domain.EmbeddingClient, logger *zap.Logger) *Store {
	return &Store{
		db:          chromem.NewDB(),
		embedder:    embedder,
		logger:      logger,
		collections: make(map[string]*chromem.Collection),
		turns:       make(map[string][]turnRef),
		perSession:  make(map[string]int),
		preferences: make(map[string]domain.UserPreferences),
		goals:       make(map[string][]domain.HealthGoal),
	}
}

func (s *Store) collection(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[userID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[userID]; ok {
		return col, nil
	}

	// Embeddings are always supplied, so no embedding func is needed.
	col, err := s.db.CreateCollection("user_"+userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

// AddMemory indexes an arbitrary entry, such as a prior analysis, for search.
func (s *Store) AddMemory(ctx context.Context, userID, sessionID, id string, r domain.MemorySearchResult) error {
	return s.add(ctx, "add_memory", userID, sessionID, id, r)
}

func (s *Store) add(ctx context.Context, op, userID, sessionID, id string, r domain.MemorySearchResult) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if r.Category == "" {
		r.Category = domain.CategoryConversation
	}

	emb, err := s.embedder.Embed(ctx, r.Content)
	if err != nil {
		return domain.NewProviderError(domain.CodeStorageFailed, op, fmt.Errorf("embed: %w", err))
	}

	col, err := s.collection(userID)
	if err != nil {
		return domain.NewProviderError(domain.CodeStorageFailed, op, err)
	}

	md := encodeMetadata(r.Metadata)
	md[metaUserID] = userID
	md[metaSessionID] = sessionID
	md[metaCategory] = string(r.Category)
	md[metaCreatedAt] = r.Timestamp.UTC().Format(time.RFC3339Nano)

	if err := col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   r.Content,
		Embedding: emb,
		Metadata:  md,
	}); err != nil {
		return domain.NewProviderError(domain.CodeStorageFailed, op, err)
	}

	s.mu.Lock()
	s.turns[userID] = append(s.turns[userID], turnRef{id: id, sessionID: sessionID, createdAt: r.Timestamp})
	s.perSession[sessionKey(userID, sessionID)]++
	s.mu.Unlock()

	s.logger.Debug("indexed memory entry",
		zap.String("id", id),
		zap.String("user_id", userID),
		zap.String("category", string(r.Category)))
	return nil
}

func (s *Store) AppendTurn(ctx context.Context, t *domain.ConversationTurn) error {
	category := t.Type
	if category == "" {
		category = domain.CategoryConversation
	}
	return s.add(ctx, "append_turn", t.UserID, t.SessionID, t.ID.String(), domain.MemorySearchResult{
		Content:   t.Content(),
		Timestamp: t.CreatedAt,
		Category:  category,
		Metadata:  t.Metadata,
	})
}

func (s *Store) Search(ctx context.Context, userID, sessionID, query string, opts domain.SearchOptions) ([]domain.MemorySearchResult, error) {
	s.mu.RLock()
	col, ok := s.collections[userID]
	inSession := s.perSession[sessionKey(userID, sessionID)]
	s.mu.RUnlock()
	if !ok || inSession == 0 {
		return []domain.MemorySearchResult{}, nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.NewProviderError(domain.CodeRetrievalFailed, "search", fmt.Errorf("embed query: %w", err))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}
	// Over-fetch since metadata filters are applied after the vector query.
	n := limit * 4
	if n < minQueryResults {
		n = minQueryResults
	}
	// chromem rejects nResults above the number of matching documents.
	if n > inSession {
		n = inSession
	}

	raw, err := col.QueryEmbedding(ctx, emb, n, map[string]string{metaSessionID: sessionID}, nil)
	if err != nil {
		return nil, domain.NewProviderError(domain.CodeRetrievalFailed, "search", err)
	}

	results := make([]domain.MemorySearchResult, 0, limit)
	for _, doc := range raw {
		r := decodeResult(doc)
		if !domain.MatchAll(opts.Filters, r) {
			continue
		}
		results = append(results, r)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (s *Store) GetPreferences(ctx context.Context, userID, sessionID string) (*domain.UserPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[userID]
	if !ok {
		return nil, domain.NewProviderError(domain.CodeNotFound, "preferences", nil)
	}
	cp := p.Clone()
	return &cp, nil
}

func (s *Store) GetGoals(ctx context.Context, userID, sessionID string) ([]domain.HealthGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	goals, ok := s.goals[userID]
	if !ok {
		return nil, domain.NewProviderError(domain.CodeNotFound, "goals", nil)
	}
	out := make([]domain.HealthGoal, len(goals))
	copy(out, goals)
	return out, nil
}

func (s *Store) SetPreferences(ctx context.Context, userID string, p domain.UserPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[userID] = p.Clone()
	return nil
}

func (s *Store) SetGoals(ctx context.Context, userID string, goals []domain.HealthGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]domain.HealthGoal, len(goals))
	copy(cp, goals)
	s.goals[userID] = cp
	return nil
}

// DeleteTurnsBefore drops indexed entries created before cutoff.
func (s *Store) DeleteTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for userID, refs := range s.turns {
		var expired []turnRef
		kept := make([]turnRef, 0, len(refs))
		for _, ref := range refs {
			if ref.createdAt.Before(cutoff) {
				expired = append(expired, ref)
			} else {
				kept = append(kept, ref)
			}
		}
		if len(expired) == 0 {
			continue
		}
		ids := make([]string, len(expired))
		for i, ref := range expired {
			ids[i] = ref.id
		}
		col := s.collections[userID]
		if err := col.Delete(ctx, nil, nil, ids...); err != nil {
			return deleted, fmt.Errorf("delete expired entries for %s: %w", userID, err)
		}
		for _, ref := range expired {
			s.perSession[sessionKey(userID, ref.sessionID)]--
		}
		s.turns[userID] = kept
		deleted += int64(len(expired))
	}
	return deleted, nil
}

func sessionKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// jsonTag marks metadata values stored as JSON. Plain strings are stored as
// is unless they start with the tag themselves.
const jsonTag = "\x1fjson:"

// encodeMetadata flattens metadata to the string map chromem stores.
func encodeMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in)+4)
	for k, v := range in {
		if str, ok := v.(string); ok && !strings.HasPrefix(str, jsonTag) {
			out[k] = str
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		out[k] = jsonTag + string(b)
	}
	return out
}

func decodeResult(doc chromem.Result) domain.MemorySearchResult {
	r := domain.MemorySearchResult{
		Content:        doc.Content,
		RelevanceScore: float64(doc.Similarity),
		Category:       domain.MemoryCategory(doc.Metadata[metaCategory]),
		Metadata:       make(map[string]any, len(doc.Metadata)),
	}
	r.Timestamp, _ = time.Parse(time.RFC3339Nano, doc.Metadata[metaCreatedAt])

	for k, v := range doc.Metadata {
		switch k {
		case metaUserID, metaSessionID, metaCategory, metaCreatedAt:
			continue
		}
		r.Metadata[k] = decodeValue(v)
	}
	return r
}

// decodeValue reverses encodeMetadata.
func decodeValue(v string) any {
	raw, ok := strings.CutPrefix(v, jsonTag)
	if !ok {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return v
	}
	return out
}

var (
	_ domain.MemoryBackend = (*Store)(nil)
	_ domain.ProfileWriter = (*Store)(nil)
	_ domain.MemoryIndexer = (*Store)(nil)
)
