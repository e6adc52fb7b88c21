package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okian/dosewatch/internal/adapters/http/api"
	"github.com/okian/dosewatch/internal/adapters/ledger"
	"github.com/okian/dosewatch/internal/adapters/notify"
	"github.com/okian/dosewatch/internal/adapters/repository"
	app "github.com/okian/dosewatch/internal/app"
	"github.com/okian/dosewatch/internal/config"
	"github.com/okian/dosewatch/internal/domain/dedupe"
	"github.com/okian/dosewatch/internal/domain/window"
	"github.com/okian/dosewatch/pkg/logger"
)

// components holds everything built from configuration.
type components struct {
	store     repository.Store
	ledger    dedupe.Ledger
	transport notify.Transport
	svc       *app.Service
	checks    []api.Check
	closers   []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg *config.Config) (*components, error) {
	log := logger.Get()
	c := &components{}
	built := false
	defer func() {
		if !built {
			_ = c.Close()
		}
	}()

	var err error
	if c.store, err = buildStore(ctx, cfg, c); err != nil {
		return nil, err
	}
	if c.ledger, err = buildLedger(ctx, cfg, c); err != nil {
		return nil, err
	}
	if c.transport, err = buildTransport(cfg, c); err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	notifier := notify.New(c.transport,
		notify.WithTimeout(cfg.NotifyTimeout),
		notify.WithLogger(log.Named("notify")),
	)

	c.svc = app.New(c.store, notifier,
		app.WithLogger(log.Named("engine")),
		app.WithLedger(c.ledger),
		app.WithEvaluator(window.New(
			window.WithGracePeriod(cfg.GracePeriod),
			window.WithUpperBound(cfg.UpperBound),
			window.WithLocation(loc),
		)),
		app.WithPollInterval(cfg.PollInterval),
		app.WithQueueSize(cfg.QueueSize),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithRecheckIntake(cfg.RecheckIntake),
	)

	log.Info(ctx, "engine assembled",
		logger.String("store", cfg.StoreBackend),
		logger.String("ledger", cfg.LedgerBackend),
		logger.String("transport", notify.NameOf(c.transport)),
		logger.String("timezone", loc.String()),
	)
	built = true
	return c, nil
}

func buildStore(ctx context.Context, cfg *config.Config, c *components) (repository.Store, error) {
	if cfg.StoreBackend == config.BackendPostgres {
		db, err := repository.Open(cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		c.closers = append(c.closers, db.Close)
		c.checks = append(c.checks, api.Check{Name: "postgres", Probe: db.PingContext})
		return repository.NewPostgresStore(db, repository.WithLogger(logger.Get().Named("postgres"))), nil
	}

	store := repository.NewMemoryStore()
	if cfg.FixturesFile != "" {
		n, err := repository.LoadFixtures(store, cfg.FixturesFile)
		if err != nil {
			return nil, err
		}
		logger.Get().Info(ctx, "loaded fixtures",
			logger.String("path", cfg.FixturesFile),
			logger.Int("medications", n),
		)
	}
	return store, nil
}

// ledgerCapacityHint sizes the in-memory ledger for two days of marks, each
// day bounded by what one cycle can enqueue.
func ledgerCapacityHint(cfg *config.Config) int {
	return 2 * cfg.QueueSize
}

func buildLedger(ctx context.Context, cfg *config.Config, c *components) (dedupe.Ledger, error) {
	if cfg.LedgerBackend != config.BackendRedis {
		return dedupe.NewInMemoryLedger(dedupe.WithCapacityHint(ledgerCapacityHint(cfg))), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	c.closers = append(c.closers, client.Close)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	c.checks = append(c.checks, api.Check{
		Name:  "redis",
		Probe: func(ctx context.Context) error { return client.Ping(ctx).Err() },
	})
	return ledger.NewRedisLedger(client, ledger.WithLogger(logger.Get().Named("ledger"))), nil
}

// buildTransport routes by address shape when e-mail or SMS is enabled and
// falls back to the file outbox otherwise.
func buildTransport(cfg *config.Config, c *components) (notify.Transport, error) {
	if !cfg.EmailEnabled && !cfg.SMSEnabled {
		outbox := notify.NewFileTransport(cfg.OutboxFile)
		c.closers = append(c.closers, outbox.Close)
		return outbox, nil
	}

	router := &notify.Router{Region: cfg.SMSDefaultRegion}
	if cfg.EmailEnabled {
		router.Email = notify.NewEmailTransport(notify.EmailConfig{
			Enabled:  true,
			From:     cfg.EmailFrom,
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			UseTLS:   cfg.SMTPUseTLS,
			Timeout:  cfg.NotifyTimeout,
		})
	}
	if cfg.SMSEnabled {
		sms, err := notify.NewSMSTransport(notify.SMSConfig{
			Enabled:       true,
			APIKey:        cfg.SMSAPIKey,
			SecretKey:     cfg.SMSSecretKey,
			TemplateID:    cfg.SMSTemplateID,
			DefaultRegion: cfg.SMSDefaultRegion,
		})
		if err != nil {
			return nil, fmt.Errorf("sms transport: %w", err)
		}
		router.SMS = sms
	}
	return router, nil
}
