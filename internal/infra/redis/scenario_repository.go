package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"tribe-quiz-service/internal/domain"
)

// ScenarioLoader fetches a scenario set from a backing store (file, Postgres, built-in).
type ScenarioLoader interface {
	LoadScenarioSet(ctx context.Context, version string) (domain.ScenarioSet, error)
}

// ScenarioRepository caches scenario sets in Redis as JSON and falls back to a loader on cache miss.
// Sets are stored as: SET scenarios:{version} <json> EX ttl
type ScenarioRepository struct {
	client *redis.Client
	loader ScenarioLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewScenarioRepository(client *redis.Client, loader ScenarioLoader, ttl time.Duration) *ScenarioRepository {
	return &ScenarioRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ScenarioRepository) GetScenarioSet(ctx context.Context, version string) (domain.ScenarioSet, error) {
	if set, ok := r.fromCache(ctx, version); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(version, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if set, ok := r.fromCache(ctx, version); ok {
			return set, nil
		}

		set, err := r.loader.LoadScenarioSet(ctx, version)
		if err != nil {
			return domain.ScenarioSet{}, err
		}
		if err := set.Validate(); err != nil {
			return domain.ScenarioSet{}, err
		}

		if data, err := json.Marshal(set); err == nil {
			_ = r.client.Set(ctx, r.key(version), data, r.ttlWithJitter()).Err()
		}
		return set, nil
	})
	if err != nil {
		return domain.ScenarioSet{}, err
	}
	return result.(domain.ScenarioSet), nil
}

func (r *ScenarioRepository) fromCache(ctx context.Context, version string) (domain.ScenarioSet, bool) {
	raw, err := r.client.Get(ctx, r.key(version)).Bytes()
	if err != nil {
		return domain.ScenarioSet{}, false
	}
	var set domain.ScenarioSet
	if err := json.Unmarshal(raw, &set); err != nil || set.Validate() != nil {
		// stale or foreign payload, reload from source
		_ = r.client.Del(ctx, r.key(version)).Err()
		return domain.ScenarioSet{}, false
	}
	return set, true
}

func (r *ScenarioRepository) key(version string) string {
	if version == "" {
		version = "default"
	}
	return "scenarios:" + version
}

func (r *ScenarioRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
