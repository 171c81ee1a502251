package memory

import (
	"context"
	"sync"

	"tribe-quiz-service/internal/domain"
)

// ProfileRepository keeps profile tribes in memory; upserts are keyed by user id.
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]domain.ProfileTribe
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[string]domain.ProfileTribe)}
}

func (r *ProfileRepository) SaveTribe(_ context.Context, profile domain.ProfileTribe) error {
	if profile.UserID == "" {
		return domain.ErrMissingUser
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.profiles[profile.UserID]; ok && current.CompletedAt.After(profile.CompletedAt) {
		return nil
	}
	r.profiles[profile.UserID] = profile
	return nil
}

// Get returns the stored tribe for a user.
func (r *ProfileRepository) Get(userID string) (domain.ProfileTribe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	return p, ok
}
