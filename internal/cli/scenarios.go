package cli

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tribe-quiz-service/internal/config"
	"tribe-quiz-service/internal/infra/memory"
)

// NewScenariosCmd prints the active scenario set as YAML.
func NewScenariosCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "Print the active scenario set",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			var pool *pgxpool.Pool
			if cfg.Postgres.URL != "" && cfg.Quiz.ScenariosPath == "" {
				pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
				if err != nil {
					return err
				}
				defer pool.Close()
			}
			set, err := memory.NewScenarioRepository(scenarioLoader(cfg, pool), time.Minute).GetScenarioSet(ctx, cfg.Quiz.Version)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(set)
		},
	}
}
