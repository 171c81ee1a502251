package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tribe-quiz-service/internal/domain"
)

// ScenarioLoader loads scenario set JSONB from Postgres.
type ScenarioLoader struct {
	pool *pgxpool.Pool
}

func NewScenarioLoader(pool *pgxpool.Pool) *ScenarioLoader {
	return &ScenarioLoader{pool: pool}
}

// LoadScenarioSet reads a set by version; an empty version picks the newest.
func (l *ScenarioLoader) LoadScenarioSet(ctx context.Context, version string) (domain.ScenarioSet, error) {
	var row pgx.Row
	if version == "" {
		row = l.pool.QueryRow(ctx, `SELECT data FROM scenario_sets ORDER BY created_at DESC LIMIT 1`)
	} else {
		row = l.pool.QueryRow(ctx, `SELECT data FROM scenario_sets WHERE version=$1`, version)
	}

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ScenarioSet{}, domain.ErrScenarioSetNotFound
		}
		return domain.ScenarioSet{}, fmt.Errorf("load scenario set: %w", err)
	}
	var set domain.ScenarioSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return domain.ScenarioSet{}, fmt.Errorf("unmarshal scenario set: %w", err)
	}
	return set, nil
}

// SaveScenarioSet upserts a set under its version.
func (l *ScenarioLoader) SaveScenarioSet(ctx context.Context, set domain.ScenarioSet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal scenario set: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO scenario_sets (version, data)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (version) DO UPDATE SET data = EXCLUDED.data`,
		set.Version, string(data))
	if err != nil {
		return fmt.Errorf("save scenario set: %w", err)
	}
	return nil
}
