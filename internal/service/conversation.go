package service

import (
	"context"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultAsyncUpdateTimeout = 10 * time.Second

// Invalidator drops cached state for a session.
type Invalidator interface {
	Invalidate(userID, sessionID string) int
}

// UpdateResult reports the outcome of a conversation update. Err is set only
// when Success is false.
type UpdateResult struct {
	Success     bool
	TurnID      uuid.UUID
	Invalidated int
	Err         error
}

type ConversationService struct {
	writer       domain.ConversationWriter
	invalidator  Invalidator
	logger       *zap.Logger
	asyncTimeout time.Duration
}

func NewConversationService(writer domain.ConversationWriter, invalidator Invalidator, logger *zap.Logger) *ConversationService {
	return &ConversationService{
		writer:       writer,
		invalidator:  invalidator,
		logger:       logger,
		asyncTimeout: defaultAsyncUpdateTimeout,
	}
}

func (s *ConversationService) SetAsyncTimeout(d time.Duration) {
	if d > 0 {
		s.asyncTimeout = d
	}
}

// UpdateConversationContext stores one exchange and, once it is stored,
// drops the session's cached context so the next read sees it.
func (s *ConversationService) UpdateConversationContext(ctx context.Context, userID, sessionID, userMessage, assistantResponse string, metadata map[string]any) UpdateResult {
	if userID == "" {
		return UpdateResult{Err: ErrUserIDMissing}
	}
	if sessionID == "" {
		return UpdateResult{Err: ErrSessionIDMissing}
	}
	if s.writer == nil {
		return UpdateResult{Err: domain.NewProviderError(domain.CodeClientNotAvailable, "append_turn", nil)}
	}

	md := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md[domain.MetaType] = string(domain.CategoryConversation)

	turn := &domain.ConversationTurn{
		ID:                uuid.New(),
		UserID:            userID,
		SessionID:         sessionID,
		UserMessage:       userMessage,
		AssistantResponse: assistantResponse,
		Type:              domain.CategoryConversation,
		Metadata:          md,
		CreatedAt:         timeNow().UTC(),
	}

	if err := s.writer.AppendTurn(ctx, turn); err != nil {
		s.logger.Warn("failed to store conversation turn",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.String("code", string(domain.CodeOf(err))),
			zap.Error(err))
		return UpdateResult{TurnID: turn.ID, Err: err}
	}

	invalidated := 0
	if s.invalidator != nil {
		invalidated = s.invalidator.Invalidate(userID, sessionID)
	}

	s.logger.Debug("conversation turn stored",
		zap.String("turn_id", turn.ID.String()),
		zap.String("session_id", sessionID),
		zap.Int("invalidated", invalidated))

	return UpdateResult{Success: true, TurnID: turn.ID, Invalidated: invalidated}
}

// UpdateAsync runs the update in the background on a context detached from
// the caller. The channel is buffered and may be ignored.
func (s *ConversationService) UpdateAsync(ctx context.Context, userID, sessionID, userMessage, assistantResponse string, metadata map[string]any) <-chan UpdateResult {
	out := make(chan UpdateResult, 1)
	bg := context.WithoutCancel(ctx)

	go func() {
		defer close(out)
		ctx, cancel := context.WithTimeout(bg, s.asyncTimeout)
		defer cancel()
		out <- s.UpdateConversationContext(ctx, userID, sessionID, userMessage, assistantResponse, metadata)
	}()

	return out
}
