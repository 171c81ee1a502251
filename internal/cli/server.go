package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tribe-quiz-service/internal/app"
	"tribe-quiz-service/internal/catalog"
	"tribe-quiz-service/internal/config"
	"tribe-quiz-service/internal/domain"
	"tribe-quiz-service/internal/infra/file"
	"tribe-quiz-service/internal/infra/memory"
	"tribe-quiz-service/internal/infra/postgres"
	redisinfra "tribe-quiz-service/internal/infra/redis"
	"tribe-quiz-service/internal/logger"
	transport "tribe-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	if pool != nil && cfg.Quiz.ScenariosPath == "" {
		if err := seedScenarios(ctx, postgres.NewScenarioLoader(pool), cfg.Quiz.Version, log); err != nil {
			return err
		}
	}
	loader := scenarioLoader(cfg, pool)

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var scenarioRepo app.ScenarioRepository
	if redisClient != nil {
		scenarioRepo = redisinfra.NewScenarioRepository(redisClient, loader, quizTTL)
	} else {
		scenarioRepo = memory.NewScenarioRepository(loader, quizTTL)
	}

	kv, err := kvStore(cfg, redisClient, redisTTL)
	if err != nil {
		return err
	}

	var profiles app.ProfileRepository
	if pool != nil {
		profiles = postgres.NewProfileRepository(pool)
	} else {
		log.Warn("postgres not configured, profiles are kept in memory")
		profiles = memory.NewProfileRepository()
	}

	opts := []app.Option{
		app.WithScenarioVersion(cfg.Quiz.Version),
		app.WithRetryPolicy(cfg.RetryPolicy()),
		app.WithLogger(log),
	}
	if redisClient != nil {
		opts = append(opts, app.WithSaveLease(redisinfra.NewSaveLease(redisClient)))
	}
	service := app.NewQuizService(memory.NewSessionStore(), scenarioRepo, kv, profiles, opts...)
	if _, err := service.Scenarios(ctx); err != nil {
		return fmt.Errorf("load scenarios: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/scenarios", transport.NewScenariosHandler(service, log))
	mux.HandleFunc("/ws", transport.NewWSHandler(service, log).ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("addr", server.Addr), zap.String("store", cfg.StoreDriver()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		log.Warn("profile saves interrupted, pending markers kept", zap.Error(err))
	}
	return nil
}

// scenarioLoader picks the backing store for scenario sets: a YAML file when
// configured, Postgres when available, the built-in catalog otherwise.
func scenarioLoader(cfg config.Config, pool *pgxpool.Pool) memory.ScenarioLoader {
	switch {
	case cfg.Quiz.ScenariosPath != "":
		return file.NewScenarioLoader(cfg.Quiz.ScenariosPath)
	case pool != nil:
		return postgres.NewScenarioLoader(pool)
	default:
		return memory.NewStaticScenarioLoader(catalog.Default())
	}
}

// seedScenarios stores the built-in catalog when the database has no set yet.
func seedScenarios(ctx context.Context, loader *postgres.ScenarioLoader, version string, log *zap.Logger) error {
	_, err := loader.LoadScenarioSet(ctx, version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrScenarioSetNotFound) {
		return err
	}
	set := catalog.Default()
	if version != "" && version != set.Version {
		return fmt.Errorf("scenario set %q: %w", version, domain.ErrScenarioSetNotFound)
	}
	log.Info("seeding built-in scenario set", zap.String("version", set.Version))
	return loader.SaveScenarioSet(ctx, set)
}

func kvStore(cfg config.Config, client *redis.Client, ttl time.Duration) (app.KeyValueStore, error) {
	switch cfg.StoreDriver() {
	case config.DriverMemory:
		return memory.NewKVStore(), nil
	case config.DriverRedis:
		if client == nil {
			return nil, fmt.Errorf("store driver redis requires redis.addr")
		}
		return redisinfra.NewKVStore(client, ttl), nil
	case config.DriverFile:
		dir := cfg.Store.Dir
		if dir == "" {
			dir = "data/sessions"
		}
		store, err := file.NewKVStore(dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
