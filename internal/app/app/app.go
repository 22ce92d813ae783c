package app

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/go-redis/redis/v8"

	"settlement/internal/app/config"
	"settlement/internal/app/consumer"
	"settlement/internal/app/hooks"
	"settlement/internal/app/logger"
	"settlement/internal/app/service/confirmgate"
	"settlement/internal/app/service/ledger"
	"settlement/internal/app/service/pipeline"
	"settlement/internal/app/service/riskgate"
	"settlement/internal/app/storage/postgres"
	"settlement/pkg/balances"
	"settlement/pkg/platform"
	"settlement/pkg/riskengine"
)

type App struct {
	config   config.Config
	logger   logger.Logger
	pipeline *pipeline.Pipeline
	consumer *consumer.Consumer
	stopCh   chan struct{}
}

func New(cfg config.Config, l logger.Logger, e embed.FS) (*App, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := applyMigrations(e, db); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	transactions, err := postgres.NewTransactionRepository(db)
	if err != nil {
		return nil, fmt.Errorf("transaction repository init: %w", err)
	}

	riskClient, err := riskengine.NewService(cfg.Risk.RemoteURL,
		riskengine.WithLogger(l.Logger),
		riskengine.WithTimeout(cfg.Risk.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("risk client init: %w", err)
	}

	balanceClient, err := balances.NewService(cfg.Balances.RemoteURL,
		balances.WithLogger(l.Logger),
		balances.WithTimeout(cfg.Balances.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("balance client init: %w", err)
	}

	platformClient, err := platform.NewService(cfg.Platform.RemoteURL,
		platform.WithLogger(l.Logger),
		platform.WithTimeout(cfg.Platform.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("platform client init: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	confirms := confirmgate.New(cfg.Assets.Thresholds(), cfg.Assets.DefaultConfirmations)
	risk := riskgate.New(riskClient, cfg.Risk.Timeout)
	ledgerAdapter := ledger.New(ledger.NewRedisLocker(rdb), balanceClient)

	registry := hooks.NewRegistry(
		hooks.NewBitcoinHook(platformClient, risk, platformClient),
		hooks.NewEthereumHook(platformClient, risk, platformClient),
	)
	for _, name := range cfg.Webhook.ProviderNames() {
		registry.Register(hooks.NewCashHook(name, cfg.Webhook.RequiredFields(name), platformClient, risk, platformClient, confirms))
	}

	p := pipeline.New(transactions, registry, confirms, ledgerAdapter)

	a := &App{
		config:   cfg,
		logger:   l,
		pipeline: p,
		consumer: consumer.New(cfg.Queue, p),
		stopCh:   make(chan struct{}),
	}

	go func() {
		<-a.stopCh
		a.logger.Info().Msg("Shutting down application")
	}()

	return a, nil
}

// Consumer returns the queue ingress adapter.
func (a *App) Consumer() *consumer.Consumer {
	return a.consumer
}

func (a *App) Stop() {
	close(a.stopCh)
}
