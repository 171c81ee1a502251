package file

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tribe-quiz-service/internal/domain"
)

// ScenarioLoader reads a scenario set from a YAML file.
type ScenarioLoader struct {
	path string
}

func NewScenarioLoader(path string) *ScenarioLoader {
	return &ScenarioLoader{path: path}
}

// LoadScenarioSet parses the file; a non-empty version must match the file's.
func (l *ScenarioLoader) LoadScenarioSet(_ context.Context, version string) (domain.ScenarioSet, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return domain.ScenarioSet{}, fmt.Errorf("read scenarios: %w", err)
	}
	var set domain.ScenarioSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return domain.ScenarioSet{}, fmt.Errorf("parse scenarios: %w", err)
	}
	if version != "" && set.Version != version {
		return domain.ScenarioSet{}, fmt.Errorf("%w: %s has version %q", domain.ErrScenarioSetNotFound, l.path, set.Version)
	}
	return set, nil
}
