// Package bootstrap wires storage, the GitHub client and the spar and stats services from Config.
// Both the HTTP server and the sparsync CLI start from here.
package bootstrap

import (
	"context"
	"fmt"

	"buildinpublic-hub/config"
	"buildinpublic-hub/githubapi"
	"buildinpublic-hub/metrics"
	"buildinpublic-hub/repository"
	"buildinpublic-hub/services"
	"buildinpublic-hub/utils"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type App struct {
	DB       *gorm.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Admins   services.AdminPolicy
	Clock    clockwork.Clock
	Spars    *services.SparService
	Stats    *services.StatsSyncer
}

// New connects to Postgres, migrates the schema and builds the spar service.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repository.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	github := githubapi.NewClient(cfg.GitHub.APIURL, cfg.GitHub.Token, log,
		githubapi.WithHTTPClient(utils.NewHTTPClient(cfg.GitHub.Timeout)),
		githubapi.WithPerPage(cfg.GitHub.EventsPerPage),
	)

	var archiver services.ResultArchiver
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Archiver(ctx, cfg.R2, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize R2 client: %w", err)
		}
		archiver = r2
	} else {
		log.Info("R2 not configured, spar results will not be archived")
	}

	admins := services.NewAllowlistPolicy(cfg.AdminHandles)
	clock := clockwork.NewRealClock()

	spars := services.NewSparService(services.SparDeps{
		Spars:    repository.NewSparRepo(db),
		Users:    repository.NewUserRepo(db),
		Commits:  repository.NewCommitRepo(db),
		Source:   github,
		Archiver: archiver,
		Admins:   admins,
		Clock:    clock,
		Log:      log,
		Metrics:  m,
		Settings: services.SparSettings{
			GracePeriod:     cfg.Spar.GracePeriod,
			PaymentsEnabled: cfg.Spar.PaymentsEnabled,
			EntryFeeCents:   cfg.Spar.EntryFeeCents,
		},
	})

	stats := services.NewStatsSyncer(repository.NewDeveloperRepo(db), github, clock, cfg.Stats.Pause, log, m)

	return &App{
		DB:       db,
		Registry: reg,
		Metrics:  m,
		Admins:   admins,
		Clock:    clock,
		Spars:    spars,
		Stats:    stats,
	}, nil
}

// Ping checks the database connection.
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
