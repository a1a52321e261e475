package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultRetentionInterval = 1 * time.Hour

// TurnPruner deletes stored conversation turns older than a cutoff.
type TurnPruner interface {
	DeleteTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionService periodically removes conversation history that is past
// the configured retention window.
type RetentionService struct {
	pruner        TurnPruner
	retentionDays int
	logger        *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewRetentionService(p TurnPruner, retentionDays int, logger *zap.Logger) *RetentionService {
	return &RetentionService{
		pruner:        p,
		retentionDays: retentionDays,
		logger:        logger,
		interval:      defaultRetentionInterval,
		stopCh:        make(chan struct{}),
	}
}

func (s *RetentionService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs retention on a periodic schedule in a background goroutine.
func (s *RetentionService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("retention service started",
			zap.Duration("interval", s.interval),
			zap.Int("retention_days", s.retentionDays))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.RunOnce(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("retention service stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the service.
func (s *RetentionService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce prunes once and returns the number of deleted turns.
func (s *RetentionService) RunOnce(ctx context.Context) int64 {
	if s.retentionDays <= 0 {
		return 0
	}
	cutoff := timeNow().UTC().AddDate(0, 0, -s.retentionDays)

	deleted, err := s.pruner.DeleteTurnsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to delete expired conversation turns", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		s.logger.Info("deleted conversation turns past retention",
			zap.Time("cutoff", cutoff),
			zap.Int64("count", deleted))
	}
	return deleted
}
