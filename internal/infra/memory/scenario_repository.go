package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tribe-quiz-service/internal/domain"
)

// ScenarioLoader fetches a scenario set from a backing store (file, Postgres, built-in).
type ScenarioLoader interface {
	LoadScenarioSet(ctx context.Context, version string) (domain.ScenarioSet, error)
}

// ScenarioRepository caches validated scenario sets with TTL to avoid repeated loads.
type ScenarioRepository struct {
	loader ScenarioLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	set       domain.ScenarioSet
	expiresAt time.Time
}

func NewScenarioRepository(loader ScenarioLoader, ttl time.Duration) *ScenarioRepository {
	return &ScenarioRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

func (r *ScenarioRepository) GetScenarioSet(ctx context.Context, version string) (domain.ScenarioSet, error) {
	if set, ok := r.cached(version, r.clock()); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(version, func() (interface{}, error) {
		now := r.clock()
		if set, ok := r.cached(version, now); ok {
			return set, nil
		}

		set, err := r.loader.LoadScenarioSet(ctx, version)
		if err != nil {
			return domain.ScenarioSet{}, err
		}
		if err := set.Validate(); err != nil {
			return domain.ScenarioSet{}, err
		}

		r.mu.Lock()
		r.cache[version] = cachedSet{
			set:       set,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.ScenarioSet{}, err
	}
	return result.(domain.ScenarioSet), nil
}

func (r *ScenarioRepository) cached(version string, now time.Time) (domain.ScenarioSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[version]
	if !ok || (r.ttl > 0 && !entry.expiresAt.After(now)) {
		return domain.ScenarioSet{}, false
	}
	return entry.set, true
}

func (r *ScenarioRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticScenarioLoader serves scenario sets held in memory (built-in catalog, tests).
// An empty version resolves to the first set it was given.
type StaticScenarioLoader struct {
	sets     map[string]domain.ScenarioSet
	fallback string
}

func NewStaticScenarioLoader(sets ...domain.ScenarioSet) *StaticScenarioLoader {
	l := &StaticScenarioLoader{sets: make(map[string]domain.ScenarioSet, len(sets))}
	for i, set := range sets {
		if i == 0 {
			l.fallback = set.Version
		}
		l.sets[set.Version] = set
	}
	return l
}

func (l *StaticScenarioLoader) LoadScenarioSet(_ context.Context, version string) (domain.ScenarioSet, error) {
	if version == "" {
		version = l.fallback
	}
	if set, ok := l.sets[version]; ok {
		return set, nil
	}
	return domain.ScenarioSet{}, domain.ErrScenarioSetNotFound
}
