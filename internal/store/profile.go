package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileStore holds per-user preferences and goals in user_profiles.
type ProfileStore struct {
	db *pgxpool.Pool
}

func NewProfileStore(db *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) GetPreferences(ctx context.Context, userID string) (*domain.UserPreferences, error) {
	var p *domain.UserPreferences
	err := s.db.QueryRow(ctx,
		`SELECT preferences FROM user_profiles WHERE user_id = $1`,
		userID,
	).Scan(&p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *ProfileStore) GetGoals(ctx context.Context, userID string) ([]domain.HealthGoal, error) {
	var goals []domain.HealthGoal
	err := s.db.QueryRow(ctx,
		`SELECT goals FROM user_profiles WHERE user_id = $1`,
		userID,
	).Scan(&goals)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if goals == nil {
		goals = []domain.HealthGoal{}
	}
	return goals, nil
}

func (s *ProfileStore) UpsertPreferences(ctx context.Context, userID string, p domain.UserPreferences) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_profiles (user_id, preferences, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET preferences = EXCLUDED.preferences, updated_at = NOW()`,
		userID, p,
	)
	return err
}

func (s *ProfileStore) UpsertGoals(ctx context.Context, userID string, goals []domain.HealthGoal) error {
	if goals == nil {
		goals = []domain.HealthGoal{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_profiles (user_id, goals, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET goals = EXCLUDED.goals, updated_at = NOW()`,
		userID, goals,
	)
	return err
}
