package logger

import (
	"testing"

	"tribe-quiz-service/internal/config"
)

func TestNewPicksEncoderByEnv(t *testing.T) {
	for _, env := range []string{"production", "development", ""} {
		l, err := New(config.Config{Env: env})
		if err != nil {
			t.Fatalf("env %q: %v", env, err)
		}
		if l == nil {
			t.Fatalf("env %q: nil logger", env)
		}
		_ = l.Sync()
	}
}
