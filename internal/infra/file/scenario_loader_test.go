package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"tribe-quiz-service/internal/catalog"
	"tribe-quiz-service/internal/domain"
)

func TestScenarioLoaderReadsYAML(t *testing.T) {
	path := writeScenarios(t, catalog.Default())
	loader := NewScenarioLoader(path)

	set, err := loader.LoadScenarioSet(context.Background(), catalog.DefaultVersion)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := set.Validate(); err != nil {
		t.Fatalf("loaded set invalid: %v", err)
	}
	if set.Scenarios[3].Options[1].Tribe != domain.TribeFox {
		t.Fatalf("unexpected tribe mapping %+v", set.Scenarios[3].Options[1])
	}
}

func TestScenarioLoaderVersionMismatch(t *testing.T) {
	loader := NewScenarioLoader(writeScenarios(t, catalog.Default()))
	if _, err := loader.LoadScenarioSet(context.Background(), "other"); !errors.Is(err, domain.ErrScenarioSetNotFound) {
		t.Fatalf("expected ErrScenarioSetNotFound, got %v", err)
	}
}

func writeScenarios(t *testing.T, set domain.ScenarioSet) string {
	t.Helper()
	data, err := yaml.Marshal(set)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestShippedScenariosMatchBuiltIn(t *testing.T) {
	loader := NewScenarioLoader(filepath.Join("..", "..", "..", "config", "scenarios.yaml"))
	set, err := loader.LoadScenarioSet(context.Background(), "")
	if err != nil {
		t.Fatalf("load shipped scenarios: %v", err)
	}
	if diff := cmp.Diff(catalog.Default(), set); diff != "" {
		t.Fatalf("config/scenarios.yaml drifted from the built-in catalog (-want +got):\n%s", diff)
	}
}
