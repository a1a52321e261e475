// Package memclient is the HTTP client for the remote memory service.
package memclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRPS     = 10
	defaultBurst   = 20

	// Results below this score are dropped by the service.
	defaultRelevanceThreshold = 0.6

	maxErrorBody = 4 << 10
)

type Config struct {
	BaseURL string
	APIKey  string
	RPS     float64
	Burst   int
	Timeout time.Duration
}

// Client implements domain.MemoryBackend against the remote service. All
// outbound calls share one token bucket.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	ensured sync.Map // user:session -> struct{}
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("MEMORY_SERVICE_URL is required for the remote memory backend")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse memory service url: %w", err)
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		logger:     logger,
	}, nil
}

type searchRequest struct {
	Query              string          `json:"query"`
	UserID             string          `json:"user_id"`
	SessionID          string          `json:"session_id"`
	Limit              int             `json:"limit"`
	RelevanceThreshold float64         `json:"relevance_threshold"`
	MetadataFilter     []domain.Filter `json:"metadata_filter,omitempty"`
}

type searchResult struct {
	Content        string         `json:"content"`
	RelevanceScore float64        `json:"relevance_score"`
	Score          float64        `json:"score"`
	Timestamp      flexTime       `json:"timestamp"`
	Category       string         `json:"category"`
	Metadata       map[string]any `json:"metadata"`
}

func (c *Client) Search(ctx context.Context, userID, sessionID, query string, opts domain.SearchOptions) ([]domain.MemorySearchResult, error) {
	const op = "search"

	body := searchRequest{
		Query:              query,
		UserID:             userID,
		SessionID:          sessionID,
		Limit:              opts.Limit,
		RelevanceThreshold: defaultRelevanceThreshold,
		MetadataFilter:     opts.Filters,
	}

	var raw []searchResult
	path := "/sessions/" + url.PathEscape(sessionID) + "/search"
	if err := c.do(ctx, op, http.MethodPost, path, body, &raw); err != nil {
		return nil, err
	}

	results := make([]domain.MemorySearchResult, 0, len(raw))
	for _, r := range raw {
		score := r.RelevanceScore
		if score == 0 {
			score = r.Score
		}
		category := domain.MemoryCategory(r.Category)
		if category == "" {
			category = domain.CategoryConversation
		}
		res := domain.MemorySearchResult{
			Content:        r.Content,
			RelevanceScore: score,
			Timestamp:      time.Time(r.Timestamp),
			Category:       category,
			Metadata:       r.Metadata,
		}
		// The service applies filters too; re-check so a lenient server
		// cannot widen the result set.
		if !domain.MatchAll(opts.Filters, res) {
			continue
		}
		results = append(results, res)
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (c *Client) GetPreferences(ctx context.Context, userID, sessionID string) (*domain.UserPreferences, error) {
	var p domain.UserPreferences
	path := "/users/" + url.PathEscape(userID) + "/preferences?session_id=" + url.QueryEscape(sessionID)
	if err := c.do(ctx, "preferences", http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetGoals(ctx context.Context, userID, sessionID string) ([]domain.HealthGoal, error) {
	var goals []domain.HealthGoal
	path := "/users/" + url.PathEscape(userID) + "/goals?session_id=" + url.QueryEscape(sessionID)
	if err := c.do(ctx, "goals", http.MethodGet, path, nil, &goals); err != nil {
		return nil, err
	}
	if goals == nil {
		goals = []domain.HealthGoal{}
	}
	return goals, nil
}

// SetPreferences replaces the user's preferences on the service.
func (c *Client) SetPreferences(ctx context.Context, userID string, p domain.UserPreferences) error {
	path := "/users/" + url.PathEscape(userID) + "/preferences"
	return c.do(ctx, "set_preferences", http.MethodPut, path, p, nil)
}

func (c *Client) SetGoals(ctx context.Context, userID string, goals []domain.HealthGoal) error {
	if goals == nil {
		goals = []domain.HealthGoal{}
	}
	path := "/users/" + url.PathEscape(userID) + "/goals"
	return c.do(ctx, "set_goals", http.MethodPut, path, goals, nil)
}

type sessionRequest struct {
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type messageRequest struct {
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AppendTurn stores both sides of the turn as session messages, creating the
// session on first use.
func (c *Client) AppendTurn(ctx context.Context, t *domain.ConversationTurn) error {
	const op = "append_turn"

	if err := c.ensureSession(ctx, t.UserID, t.SessionID); err != nil {
		return err
	}

	md := make(map[string]any, len(t.Metadata)+3)
	for k, v := range t.Metadata {
		md[k] = v
	}
	md["turn_id"] = t.ID.String()
	md["user_id"] = t.UserID
	md["timestamp"] = t.CreatedAt.Format(time.RFC3339Nano)

	path := "/sessions/" + url.PathEscape(t.SessionID) + "/messages"
	for _, msg := range []messageRequest{
		{Role: "user", Content: t.UserMessage, Metadata: md},
		{Role: "assistant", Content: t.AssistantResponse, Metadata: md},
	} {
		if err := c.do(ctx, op, http.MethodPost, path, msg, nil); err != nil {
			return err
		}
	}
	return nil
}

// AddMemory stores an entry such as an analysis as an assistant message whose
// metadata carries its category, so service-side search can filter on it.
func (c *Client) AddMemory(ctx context.Context, userID, sessionID, id string, r domain.MemorySearchResult) error {
	const op = "add_memory"

	if err := c.ensureSession(ctx, userID, sessionID); err != nil {
		return err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if r.Category == "" {
		r.Category = domain.CategoryConversation
	}

	md := make(map[string]any, len(r.Metadata)+4)
	for k, v := range r.Metadata {
		md[k] = v
	}
	md["entry_id"] = id
	md["user_id"] = userID
	md["category"] = string(r.Category)
	md["timestamp"] = r.Timestamp.Format(time.RFC3339Nano)

	path := "/sessions/" + url.PathEscape(sessionID) + "/messages"
	return c.do(ctx, op, http.MethodPost, path, messageRequest{Role: "assistant", Content: r.Content, Metadata: md}, nil)
}

func (c *Client) ensureSession(ctx context.Context, userID, sessionID string) error {
	key := userID + ":" + sessionID
	if _, ok := c.ensured.Load(key); ok {
		return nil
	}

	err := c.do(ctx, "append_turn", http.MethodPost, "/sessions", sessionRequest{
		SessionID: sessionID,
		UserID:    userID,
		Metadata:  map[string]any{"ensured_by": "healthmem"},
	}, nil)
	if err != nil && !errors.Is(err, errConflict) {
		return err
	}
	c.ensured.Store(key, struct{}{})
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/health", nil, nil)
}

// flexTime accepts RFC 3339 timestamps as well as the zone-less ISO form
// some services emit. Unparseable values decode to the zero time.
type flexTime time.Time

var flexLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range flexLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = flexTime(parsed)
			return nil
		}
	}
	return nil
}

// errConflict marks a 409 so callers can treat "already exists" as success.
var errConflict = errors.New("conflict")

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.NewProviderError(domain.CodeRetrievalFailed, op, fmt.Errorf("rate limiter: %w", err))
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return domain.NewProviderError(failureCode(op), op, fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return domain.NewProviderError(domain.CodeClientNotAvailable, op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewProviderError(failureCode(op), op, ctx.Err())
		}
		return domain.NewProviderError(domain.CodeClientNotAvailable, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("memory service call",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(op, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewProviderError(failureCode(op), op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// statusError maps an HTTP status to the provider error taxonomy.
func statusError(op string, status int, body string) error {
	cause := errors.New("status " + strconv.Itoa(status))
	if body != "" {
		cause = fmt.Errorf("status %d: %s", status, body)
	}

	switch {
	case status == http.StatusNotFound:
		return domain.NewProviderError(domain.CodeNotFound, op, cause)
	case status == http.StatusConflict:
		return domain.NewProviderError(failureCode(op), op, fmt.Errorf("%w: %v", errConflict, cause))
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		status == http.StatusTooManyRequests,
		status == http.StatusBadGateway, status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return domain.NewProviderError(domain.CodeClientNotAvailable, op, cause)
	default:
		return domain.NewProviderError(failureCode(op), op, cause)
	}
}

func failureCode(op string) domain.ErrorCode {
	switch op {
	case "append_turn", "add_memory", "set_preferences", "set_goals":
		return domain.CodeStorageFailed
	}
	return domain.CodeRetrievalFailed
}

var (
	_ domain.MemoryBackend = (*Client)(nil)
	_ domain.ProfileWriter = (*Client)(nil)
	_ domain.MemoryIndexer = (*Client)(nil)
)
