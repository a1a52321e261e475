package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Harshitk-cp/healthmem/internal/cache"
	"github.com/Harshitk-cp/healthmem/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUserIDMissing    = errors.New("user_id is required")
	ErrSessionIDMissing = errors.New("session_id is required")
)

// Cache operation names. Keys are operation:user:session:digest so that one
// session's entries share a prefix.
const (
	OpHealthContext = "health_context"
	OpMemorySearch  = "memory_search"
)

const (
	DefaultContextTTL      = 2 * time.Minute
	DefaultSearchTTL       = 5 * time.Minute
	DefaultProviderTimeout = 3 * time.Second
)

// Branch names reported in HealthContext.DegradedSources.
const (
	SourceHistory     = "history"
	SourcePreferences = "preferences"
	SourceGoals       = "goals"
	SourceSummary     = "summary"
)

// historySeparator joins history entries before summarization.
const historySeparator = "\n"

var timeNow = time.Now

type ContextService struct {
	cache       *cache.Cache
	search      domain.SearchProvider
	preferences domain.PreferencesProvider
	goals       domain.GoalsProvider
	summarizer  domain.Summarizer
	logger      *zap.Logger

	contextTTL      time.Duration
	searchTTL       time.Duration
	providerTimeout time.Duration
	maxContextLen   int
}

// ContextOption customizes a ContextService.
type ContextOption func(*ContextService)

func WithContextTTL(d time.Duration) ContextOption {
	return func(s *ContextService) {
		if d > 0 {
			s.contextTTL = d
		}
	}
}

func WithSearchTTL(d time.Duration) ContextOption {
	return func(s *ContextService) {
		if d > 0 {
			s.searchTTL = d
		}
	}
}

func WithProviderTimeout(d time.Duration) ContextOption {
	return func(s *ContextService) {
		if d > 0 {
			s.providerTimeout = d
		}
	}
}

// WithDefaultMaxContextLength sets the summarization threshold used when a
// request does not specify one.
func WithDefaultMaxContextLength(n int) ContextOption {
	return func(s *ContextService) {
		if n > 0 {
			s.maxContextLen = n
		}
	}
}

// NewContextService wires the aggregator. Any provider may be nil; a nil
// provider is treated as CLIENT_NOT_AVAILABLE and its branch degrades.
func NewContextService(
	c *cache.Cache,
	search domain.SearchProvider,
	preferences domain.PreferencesProvider,
	goals domain.GoalsProvider,
	summarizer domain.Summarizer,
	logger *zap.Logger,
	opts ...ContextOption,
) *ContextService {
	s := &ContextService{
		cache:           c,
		search:          search,
		preferences:     preferences,
		goals:           goals,
		summarizer:      summarizer,
		logger:          logger,
		contextTTL:      DefaultContextTTL,
		searchTTL:       DefaultSearchTTL,
		providerTimeout: DefaultProviderTimeout,
		maxContextLen:   domain.DefaultMaxContextLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetIntelligentContext returns the personalization snapshot for a request.
// Provider failures never surface here: each failed branch degrades to its
// empty default. The only errors are input validation errors.
func (s *ContextService) GetIntelligentContext(ctx context.Context, userID, sessionID, query string, opts domain.ContextOptions) (*domain.HealthContext, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}
	if sessionID == "" {
		return nil, ErrSessionIDMissing
	}
	if opts.MaxContextLength <= 0 {
		opts.MaxContextLength = s.maxContextLen
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = domain.DefaultHistoryLimit
	}

	key := cache.Key(OpHealthContext, userID, sessionID, cache.Digest(query, opts))

	// Provider failures, caller cancellation included, degrade branches instead
	// of failing the request.
	return cache.WithCache(context.WithoutCancel(ctx), s.cache, key, s.contextTTL, func(ctx context.Context) (*domain.HealthContext, error) {
		return s.assemble(ctx, userID, sessionID, query, opts), nil
	})
}

// Invalidate drops every cached context and search result for the session.
func (s *ContextService) Invalidate(userID, sessionID string) int {
	n := s.cache.DeletePrefix(cache.SessionPrefix(OpHealthContext, userID, sessionID))
	n += s.cache.DeletePrefix(cache.SessionPrefix(OpMemorySearch, userID, sessionID))
	return n
}

// InvalidateUser drops cached contexts for every session of the user. Used
// when preferences or goals change, since those are not session scoped.
func (s *ContextService) InvalidateUser(userID string) int {
	return s.cache.DeletePrefix(cache.UserPrefix(OpHealthContext, userID))
}

func (s *ContextService) assemble(ctx context.Context, userID, sessionID, query string, opts domain.ContextOptions) *domain.HealthContext {
	var (
		history  []domain.MemorySearchResult
		prefs    domain.UserPreferences
		goals    []domain.HealthGoal
		degraded = make([]bool, 3)
	)

	// Branches outlive a cancelled caller; each is bounded by its own timeout.
	base := context.WithoutCancel(ctx)

	var g errgroup.Group

	if opts.IncludeHistory {
		g.Go(func() error {
			res, err := s.fetchHistory(base, userID, sessionID, query, opts.HistoryLimit)
			if err != nil {
				s.logDegraded(SourceHistory, userID, sessionID, err)
				degraded[0] = true
				return nil
			}
			history = res
			return nil
		})
	}

	if opts.IncludePreferences {
		g.Go(func() error {
			res, err := s.fetchPreferences(base, userID, sessionID)
			if err != nil {
				if !domain.IsNotFound(err) {
					s.logDegraded(SourcePreferences, userID, sessionID, err)
					degraded[1] = true
				}
				return nil
			}
			prefs = res.Clone()
			return nil
		})
	}

	if opts.IncludeGoals {
		g.Go(func() error {
			res, err := s.fetchGoals(base, userID, sessionID)
			if err != nil {
				if !domain.IsNotFound(err) {
					s.logDegraded(SourceGoals, userID, sessionID, err)
					degraded[2] = true
				}
				return nil
			}
			goals = cloneGoals(res)
			return nil
		})
	}

	// Branch functions never return errors; Wait is a pure join.
	_ = g.Wait()

	if history == nil {
		history = []domain.MemorySearchResult{}
	}
	if goals == nil {
		goals = []domain.HealthGoal{}
	}
	if prefs.FocusAreas == nil {
		prefs.FocusAreas = []string{}
	}
	if prefs.HealthGoals == nil {
		prefs.HealthGoals = []string{}
	}

	var sources []string
	for i, name := range []string{SourceHistory, SourcePreferences, SourceGoals} {
		if degraded[i] {
			sources = append(sources, name)
		}
	}

	summary, summarized := s.summarize(base, history, opts.MaxContextLength)
	if !summarized {
		sources = append(sources, SourceSummary)
	}

	return &domain.HealthContext{
		UserID:              userID,
		SessionID:           sessionID,
		RelevantHistory:     history,
		UserPreferences:     prefs,
		HealthGoals:         goals,
		ConversationSummary: summary,
		LastAnalysis:        lastAnalysis(history),
		RiskFactors:         riskFactors(history),
		DegradedSources:     sources,
		Timestamp:           timeNow(),
	}
}

func (s *ContextService) fetchHistory(ctx context.Context, userID, sessionID, query string, limit int) ([]domain.MemorySearchResult, error) {
	if s.search == nil {
		return nil, domain.NewProviderError(domain.CodeClientNotAvailable, "search", nil)
	}

	searchOpts := domain.SearchOptions{
		Limit:   limit,
		Filters: []domain.Filter{domain.CategoryIn(domain.CategoryConversation, domain.CategoryAnalysis)},
	}
	key := cache.Key(OpMemorySearch, userID, sessionID, cache.Digest(query, limit))

	cached, err := cache.WithCache(ctx, s.cache, key, s.searchTTL, func(ctx context.Context) ([]domain.MemorySearchResult, error) {
		ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
		defer cancel()

		results, err := callWithTimeout(ctx, func(ctx context.Context) ([]domain.MemorySearchResult, error) {
			return s.search.Search(ctx, userID, sessionID, query, searchOpts)
		})
		if err != nil {
			return nil, err
		}
		return copyResults(results, limit), nil
	})
	if err != nil {
		return nil, err
	}
	// The cached slice is shared; each context gets its own copy.
	return copyResults(cached, 0), nil
}

func (s *ContextService) fetchPreferences(ctx context.Context, userID, sessionID string) (domain.UserPreferences, error) {
	if s.preferences == nil {
		return domain.UserPreferences{}, domain.NewProviderError(domain.CodeClientNotAvailable, "preferences", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	p, err := callWithTimeout(ctx, func(ctx context.Context) (*domain.UserPreferences, error) {
		return s.preferences.GetPreferences(ctx, userID, sessionID)
	})
	if err != nil {
		return domain.UserPreferences{}, err
	}
	if p == nil {
		return domain.UserPreferences{}, domain.NewProviderError(domain.CodeNotFound, "preferences", nil)
	}
	return *p, nil
}

func (s *ContextService) fetchGoals(ctx context.Context, userID, sessionID string) ([]domain.HealthGoal, error) {
	if s.goals == nil {
		return nil, domain.NewProviderError(domain.CodeClientNotAvailable, "goals", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	return callWithTimeout(ctx, func(ctx context.Context) ([]domain.HealthGoal, error) {
		return s.goals.GetGoals(ctx, userID, sessionID)
	})
}

// callWithTimeout runs fn and returns early with a RETRIEVAL_FAILED error when
// ctx expires first, even if fn ignores its context.
func callWithTimeout[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, domain.NewProviderError(domain.CodeRetrievalFailed, "timeout", ctx.Err())
	}
}

// summarize returns the conversation summary and whether it was produced
// without falling back. Content within maxLen is returned verbatim.
func (s *ContextService) summarize(ctx context.Context, history []domain.MemorySearchResult, maxLen int) (string, bool) {
	parts := make([]string, 0, len(history))
	for _, h := range history {
		parts = append(parts, h.Content)
	}
	text := strings.Join(parts, historySeparator)

	if utf8.RuneCountInString(text) <= maxLen {
		return text, true
	}

	if s.summarizer == nil {
		return truncateRunes(text, maxLen), false
	}

	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	summary, err := callWithTimeout(ctx, func(ctx context.Context) (string, error) {
		return s.summarizer.Summarize(ctx, text, maxLen)
	})
	if err != nil {
		s.logger.Warn("summarization failed, truncating context", zap.Error(err))
		return truncateRunes(text, maxLen), false
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return truncateRunes(text, maxLen), false
	}
	return truncateRunes(summary, maxLen), true
}

func (s *ContextService) logDegraded(source, userID, sessionID string, err error) {
	s.logger.Warn("context source degraded",
		zap.String("source", source),
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.String("code", string(domain.CodeOf(err))),
		zap.Error(err))
}

// lastAnalysis picks the most recent analysis entry; on equal timestamps the
// more relevant (earlier) one wins.
func lastAnalysis(history []domain.MemorySearchResult) *domain.AnalysisSummary {
	var latest *domain.AnalysisSummary
	for _, h := range history {
		a, ok := domain.AnalysisFromResult(h)
		if !ok {
			continue
		}
		if latest == nil || a.Timestamp.After(latest.Timestamp) {
			latest = a
		}
	}
	return latest
}

// riskFactors collects findings of high and critical analyses in relevance
// order, without duplicates.
func riskFactors(history []domain.MemorySearchResult) []string {
	seen := make(map[string]bool)
	factors := []string{}
	for _, h := range history {
		a, ok := domain.AnalysisFromResult(h)
		if !ok || !a.Severity.Elevated() {
			continue
		}
		for _, f := range a.Findings {
			key := strings.ToLower(strings.TrimSpace(f))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			factors = append(factors, f)
		}
	}
	return factors
}

func copyResults(in []domain.MemorySearchResult, limit int) []domain.MemorySearchResult {
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	out := make([]domain.MemorySearchResult, len(in))
	for i, r := range in {
		out[i] = r
		if r.Metadata != nil {
			md := make(map[string]any, len(r.Metadata))
			for k, v := range r.Metadata {
				md[k] = v
			}
			out[i].Metadata = md
		}
	}
	return out
}

func cloneGoals(in []domain.HealthGoal) []domain.HealthGoal {
	out := make([]domain.HealthGoal, len(in))
	for i, g := range in {
		out[i] = g
		if g.TargetDate != nil {
			t := *g.TargetDate
			out[i].TargetDate = &t
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
