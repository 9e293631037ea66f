package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"SocialMonitor/internal/api"
	"SocialMonitor/internal/collect"
	"SocialMonitor/internal/config"
	"SocialMonitor/internal/infrastructure/ml"
	"SocialMonitor/internal/infrastructure/notify"
	"SocialMonitor/internal/infrastructure/reddit"
	cronsched "SocialMonitor/internal/infrastructure/scheduler"
	"SocialMonitor/internal/infrastructure/storage"
	"SocialMonitor/internal/logging"
	"SocialMonitor/internal/ports"
	"SocialMonitor/internal/rules"
	"SocialMonitor/internal/usecase"
)

const shutdownGrace = 15 * time.Second

// Application wires configuration to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	db         *sql.DB
	repository *storage.PostgresRepository
	scheduler  *usecase.Scheduler
	server     *api.Server
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	repository := storage.NewPostgresRepository(db)

	registry := collect.NewRegistry()
	registry.Register(reddit.NewCollector(nil, "", baseLogger.With("component", "source.reddit")))
	collector := collect.NewMultiCollector(registry, cfg.Monitoring, baseLogger.With("component", "collector"))

	enricher := ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey, cfg.ML.ModelVersion)
	engine := rules.New(cfg.Alerts)

	var notifiers []ports.Notifier
	if cfg.Notifications.Slack.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.Slack.WebhookURL))
	}
	if cfg.Notifications.Email.SMTPHost != "" {
		notifiers = append(notifiers, notify.NewEmailNotifier(cfg.Notifications.Email))
	}

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Collector:  collector,
		Enricher:   enricher,
		Repository: repository,
		Engine:     engine,
		Notifiers:  notifiers,
		Logger:     baseLogger.With("component", "orchestrator"),
		Config:     cfg,
	})

	driver := cronsched.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())
	scheduler := usecase.NewScheduler(driver, orchestrator, baseLogger.With("component", "scheduler"))

	server := api.NewServer(cfg.API.ListenAddr, repository, baseLogger.With("component", "api"))

	return &Application{
		cfg:        cfg,
		logger:     baseLogger,
		db:         db,
		repository: repository,
		scheduler:  scheduler,
		server:     server,
	}, nil
}

// Run initializes the schema, starts the scheduler and admin API, and blocks
// until ctx is canceled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.repository.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression)

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("admin api listening", "addr", a.cfg.API.ListenAddr)
		serverErr <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("admin api: %w", err)
		}
	}

	return a.shutdown()
}

func (a *Application) shutdown() error {
	a.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := a.scheduler.Stop(ctx); err != nil {
		a.logger.Error("scheduler stop", "error", err)
	}
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("api shutdown", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("database close", "error", err)
	}
	return nil
}
