// Package app assembles the dialer services from config. The api and worker
// binaries share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"outreach-dialer/internal/callflow"
	"outreach-dialer/internal/config"
	"outreach-dialer/internal/credits"
	"outreach-dialer/internal/dialer"
	"outreach-dialer/internal/outbox"
	"outreach-dialer/internal/outreach"
	"outreach-dialer/internal/queue"
	"outreach-dialer/internal/realtime"
	"outreach-dialer/internal/reporting"
	"outreach-dialer/internal/scheduler"
	"outreach-dialer/internal/telephony"
	"outreach-dialer/migrations"
	"outreach-dialer/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

type App struct {
	DB    *sql.DB
	Redis *redis.Client

	Repo        *outreach.PostgresRepo
	Queue       *queue.Manager
	Credits     *credits.Service
	Gateway     telephony.Gateway
	Notifier    *realtime.RedisNotifier
	Coordinator *dialer.Coordinator
	Processor   *callflow.Processor
	Scheduler   *scheduler.Client
	Reporting   *reporting.Service
	URLs        telephony.URLs
}

// Open connects to Postgres and Redis and wires the services. Callers must Close.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{
		MaxOpenConns: cfg.DB.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if cfg.App.MigrateOnStart {
		if err := utils.Migrate(ctx, db, migrations.FS); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("migrations applied")
	}

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	a := &App{
		DB:       db,
		Redis:    rdb,
		Repo:     outreach.NewPostgresRepo(db),
		Notifier: realtime.NewRedisNotifier(rdb),
		URLs:     telephony.URLs{Base: cfg.Dialer.PublicBaseURL},
	}
	a.Queue = queue.NewManager(a.Repo)
	a.Credits = credits.NewService(credits.NewPostgresRepo(db))
	a.Reporting = reporting.NewService(a.Repo)
	a.Scheduler = scheduler.NewClient(cfg)

	if cfg.Twilio.AccountSID != "" {
		a.Gateway = telephony.NewTwilioGateway(telephony.TwilioConfig{
			AccountSID:     cfg.Twilio.AccountSID,
			AuthToken:      cfg.Twilio.AuthToken,
			CallsPerSecond: cfg.Twilio.CallsPerSecond,
		})
	} else {
		log.Warn("twilio credentials missing, calls go to the in-memory gateway")
		a.Gateway = telephony.NewMemoryGateway()
	}

	a.Coordinator = dialer.NewCoordinator(dialer.Deps{
		Repo:        a.Repo,
		Queue:       a.Queue,
		Credits:     a.Credits,
		Gateway:     a.Gateway,
		Notifier:    a.Notifier,
		Guard:       dialer.NewRedisGuard(rdb, cfg.Dialer.MaxInFlightPerAgent, cfg.Dialer.InFlightTTL, cfg.Dialer.StopTTL),
		URLs:        a.URLs,
		PhoneRegion: cfg.Dialer.PhoneRegion,
	})
	a.Processor = callflow.NewProcessor(callflow.Deps{
		Repo:        a.Repo,
		Queue:       a.Queue,
		Gateway:     a.Gateway,
		Notifier:    a.Notifier,
		Outbox:      outbox.NewService(outbox.NewPostgresRepo(db)),
		Conferences: a.Coordinator,
		Redialer:    a.Scheduler,
		PhoneRegion: cfg.Dialer.PhoneRegion,
	})
	a.Coordinator.SetSettler(a.Processor)
	return a, nil
}

// Health pings both stores.
func (a *App) Health(ctx context.Context) error {
	if err := utils.HealthCheck(ctx, a.DB, 2*time.Second); err != nil {
		return err
	}
	return a.Redis.Ping(ctx).Err()
}

func (a *App) Close() error {
	return errors.Join(a.Scheduler.Close(), a.Redis.Close(), a.DB.Close())
}
