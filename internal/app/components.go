package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/config"
	"github.com/Dhoini/findxo-settlement/internal/db"
	"github.com/Dhoini/findxo-settlement/internal/kafka"
	"github.com/Dhoini/findxo-settlement/internal/ledger"
	"github.com/Dhoini/findxo-settlement/internal/ledger/solana"
	"github.com/Dhoini/findxo-settlement/internal/metrics"
	"github.com/Dhoini/findxo-settlement/internal/payment"
	"github.com/Dhoini/findxo-settlement/internal/rate"
	"github.com/Dhoini/findxo-settlement/internal/repository"
	"github.com/Dhoini/findxo-settlement/internal/services"
	"github.com/Dhoini/findxo-settlement/internal/subscription"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Components инфраструктура и доменные сервисы, собранные из конфигурации.
type Components struct {
	Registry *prometheus.Registry
	DB       *sqlx.DB
	Cache    *repository.RedisCacheRepository
	Producer kafka.Producer
	Ledger   ledger.Client
	Oracle   *rate.Oracle
	Service  *services.SettlementService
	Probes   map[string]func(ctx context.Context) error

	closers []func() error
	log     *logger.Logger
}

// Build собирает компоненты. PostgreSQL, Redis и Kafka необязательны:
// без DSN используются хранилища в памяти, без Redis - без кеша, без брокеров - без событий.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Components, error) {
	c := &Components{
		Probes: make(map[string]func(ctx context.Context) error),
		log:    log,
	}

	paymentMetrics := metrics.NewNop()
	if cfg.Metrics.Enabled {
		c.Registry = metrics.NewRegistry(log)
		paymentMetrics = metrics.NewPaymentMetrics(c.Registry, log)
	}

	subs, plans, settlements, err := c.buildRepositories(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.buildProducer(ctx, cfg)

	if cfg.Solana.MerchantWallet == "" {
		log.Warnw("Merchant wallet is not configured, payments will be rejected")
	}
	solanaClient := solana.NewClient(cfg.Solana.RPCURL, log)
	c.closers = append(c.closers, solanaClient.Close)
	c.Ledger = solanaClient
	c.Probes["ledger"] = func(ctx context.Context) error {
		_, err := solanaClient.LatestBlockhash(ctx, ledger.Commitment(cfg.Solana.Commitment))
		return err
	}

	c.Oracle = rate.NewOracle(
		rate.NewCoinGeckoSource(cfg.Rates.URL, cfg.Rates.CoinID, cfg.Rates.VsCurrency, cfg.Rates.Timeout),
		log,
		rate.WithTTL(cfg.Rates.TTL),
		rate.WithFallback(decimal.NewFromFloat(cfg.Rates.Fallback)),
		rate.WithFetchTimeout(cfg.Rates.Timeout),
		rate.WithMetrics(paymentMetrics),
	)

	recipient := cfg.Solana.MerchantWallet
	builder := payment.NewBuilder(c.Oracle, solanaClient, solanaClient, recipient, log)
	verifier := payment.NewVerifier(solanaClient, payment.DefaultTolerance(), log)
	monitor := payment.NewMonitor(solanaClient, verifier, recipient, payment.MonitorConfig{
		ReferenceInterval: cfg.Monitor.ReferenceInterval,
		ScanInterval:      cfg.Monitor.ScanInterval,
		ErrorBackoff:      cfg.Monitor.ErrorBackoff,
		Timeout:           cfg.Monitor.Timeout,
		ScanLimit:         cfg.Monitor.ScanLimit,
	}, paymentMetrics, log)
	reconciler := subscription.NewReconciler(subs, plans, log)

	c.Service = services.NewSettlementService(
		solanaClient,
		c.Oracle,
		builder,
		verifier,
		monitor,
		reconciler,
		settlements,
		c.Producer,
		paymentMetrics,
		services.Config{
			ConfirmTimeout: cfg.Monitor.ConfirmTimeout,
			Retry: subscription.RetryPolicy{
				MaxAttempts: cfg.Reconcile.MaxAttempts,
				Step:        cfg.Reconcile.BackoffStep,
			},
		},
		log,
	)
	return c, nil
}

func (c *Components) buildRepositories(ctx context.Context, cfg *config.Config) (repository.SubscriptionRepository, repository.PlanRepository, repository.SettlementRepository, error) {
	var (
		subs        repository.SubscriptionRepository
		plans       repository.PlanRepository
		settlements repository.SettlementRepository
	)

	if cfg.Database.DSN == "" {
		c.log.Warnw("Database DSN is not set, using in-memory storage")
		subs = repository.NewInMemorySubscriptionRepository(c.log)
		plans = repository.NewInMemoryPlanRepository()
		settlements = repository.NewInMemorySettlementRepository()
	} else {
		conn, err := db.Connect(ctx, cfg.Database.DSN, db.DefaultPoolConfig(), c.log)
		if err != nil {
			return nil, nil, nil, err
		}
		c.DB = conn
		c.closers = append(c.closers, conn.Close)
		c.Probes["database"] = conn.PingContext

		if cfg.Database.Migrate {
			if err := db.Migrate(conn, c.log); err != nil {
				return nil, nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
			}
		}

		subs = repository.NewPostgresSubscriptionRepository(conn, c.log)
		plans = repository.NewPostgresPlanRepository(conn, c.log)
		settlements = repository.NewPostgresSettlementRepository(conn, c.log)
	}

	if cfg.Redis.Addr != "" {
		cache, err := repository.NewRedisCacheRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, c.log)
		if err != nil {
			// Не фатально, но предупреждаем
			c.log.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
		} else {
			c.Cache = cache
			c.closers = append(c.closers, cache.Close)
			c.Probes["redis"] = cache.Ping
			subs = repository.NewCachedSubscriptionRepository(subs, cache, c.log)
			c.log.Infow("Using cached subscription repository")
		}
	}

	return subs, plans, settlements, nil
}

func (c *Components) buildProducer(ctx context.Context, cfg *config.Config) {
	if len(cfg.Kafka.Brokers) == 0 {
		c.log.Warnw("Kafka brokers are not configured, event publishing disabled")
		return
	}

	if cfg.Kafka.EnsureTopics {
		topicCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		if err := kafka.EnsureKafkaTopics(topicCtx, cfg.Kafka.Brokers, c.log); err != nil {
			c.log.Warnw("Failed to ensure Kafka topics", "error", err)
		}
		cancel()
	}

	producer, err := kafka.NewProducer(cfg.Kafka.Driver, cfg.Kafka.Brokers, c.log)
	if err != nil {
		// Можно сделать не фатальным, если отправка событий не критична для основного флоу
		c.log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		return
	}
	c.Producer = producer
	c.closers = append(c.closers, producer.Close)
}

// Shutdown останавливает фоновые наблюдения сервиса.
func (c *Components) Shutdown(ctx context.Context) error {
	if c.Service == nil {
		return nil
	}
	return c.Service.Shutdown(ctx)
}

// Close закрывает соединения в обратном порядке открытия.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if len(errs) > 0 {
		c.log.Errorw("Errors while closing components", "error", errors.Join(errs...))
	}
	return errors.Join(errs...)
}
