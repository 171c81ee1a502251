package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tribe-quiz-service/internal/domain"
)

// ErrProfileNotFound is returned when no profile row exists for a user.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository stores each user's quiz tribe on their profile row.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// SaveTribe upserts the tribe keyed by user id. Repeating the same write is
// harmless, and a write for an older completion never replaces a newer one.
func (r *ProfileRepository) SaveTribe(ctx context.Context, profile domain.ProfileTribe) error {
	if profile.UserID == "" {
		return domain.ErrMissingUser
	}
	query := `
		INSERT INTO profiles (user_id, tribe, tribe_completed_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			tribe = EXCLUDED.tribe,
			tribe_completed_at = EXCLUDED.tribe_completed_at,
			updated_at = EXCLUDED.updated_at
		WHERE profiles.tribe_completed_at <= EXCLUDED.tribe_completed_at
	`
	_, err := r.pool.Exec(ctx, query, profile.UserID, string(profile.Tribe), profile.CompletedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save profile tribe: %w", err)
	}
	return nil
}

// GetTribe reads back the stored tribe for a user.
func (r *ProfileRepository) GetTribe(ctx context.Context, userID string) (domain.ProfileTribe, error) {
	var (
		tribe       string
		completedAt time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT tribe, tribe_completed_at FROM profiles WHERE user_id = $1`, userID,
	).Scan(&tribe, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProfileTribe{}, ErrProfileNotFound
		}
		return domain.ProfileTribe{}, fmt.Errorf("get profile tribe: %w", err)
	}
	return domain.ProfileTribe{UserID: userID, Tribe: domain.Tribe(tribe), CompletedAt: completedAt}, nil
}
