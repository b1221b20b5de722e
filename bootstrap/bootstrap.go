package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-limiter/memorystore"

	"github.com/Straits-AI/straits-agents-sub001/api"
	"github.com/Straits-AI/straits-agents-sub001/config"
	"github.com/Straits-AI/straits-agents-sub001/metrics"
	"github.com/Straits-AI/straits-agents-sub001/services/requester"
	"github.com/Straits-AI/straits-agents-sub001/storage"
	"github.com/Straits-AI/straits-agents-sub001/storage/memory"
	"github.com/Straits-AI/straits-agents-sub001/storage/redis"
	"github.com/Straits-AI/straits-agents-sub001/tracing"
)

// transportRequestsPerSecond caps requests per remote address before any
// request parsing, independent of the per-caller submission quota.
const transportRequestsPerSecond = 50

type Bootstrap struct {
	logger         zerolog.Logger
	config         *config.Config
	registry       *config.ChainRegistry
	store          storage.Store
	collector      metrics.Collector
	pool           *requester.ClientPool
	bundler        *requester.Bundler
	resolver       *requester.ReceiptResolver
	server         *api.Server
	metrics        *metrics.Server
	tracerShutdown func(context.Context) error
}

func New(cfg *config.Config) (*Bootstrap, error) {
	logger := zerolog.New(cfg.LogWriter).With().Timestamp().Logger()
	logger = logger.Level(cfg.LogLevel)
	logger.Info().Msg("starting up the bundler gateway")

	registry := config.NewChainRegistry(cfg.ChainOverrides)

	var store storage.Store
	if cfg.RedisURL != "" {
		redisStore, err := redis.New(context.Background(), cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store = redisStore
	} else {
		logger.Warn().Msg("no redis configured, using in-memory store")
		store = memory.New(cfg.OperationTTL)
	}

	collector := metrics.NewCollector(logger)
	pool := requester.NewClientPool(registry, logger)

	var relayer *requester.Relayer
	if cfg.RelayerKey != nil {
		relayer = requester.NewRelayer(cfg.RelayerKey, logger)
	} else {
		logger.Warn().Msg("no relayer key configured, submissions will be rejected")
	}

	beneficiary := cfg.Beneficiary
	if beneficiary == (common.Address{}) && relayer != nil {
		beneficiary = relayer.Address()
	}

	bundler := requester.NewBundler(logger, pool, relayer, beneficiary, collector)
	resolver := requester.NewReceiptResolver(logger, store, pool, cfg.OperationTTL)

	return &Bootstrap{
		logger:    logger,
		config:    cfg,
		registry:  registry,
		store:     store,
		collector: collector,
		pool:      pool,
		bundler:   bundler,
		resolver:  resolver,
	}, nil
}

func (b *Bootstrap) StartAPIServer(ctx context.Context) error {
	b.logger.Info().Msg("bootstrap starting API server")

	if err := b.pool.WarmUp(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("chain client warm-up failed, connecting lazily")
	}

	shutdown, err := tracing.InitTracer(ctx, "bundler-gateway", b.config.TracesEndpoint)
	if err != nil {
		b.logger.Warn().Err(err).Msg("tracing disabled, exporter setup failed")
	}
	b.tracerShutdown = shutdown

	transport, err := memorystore.New(&memorystore.Config{
		Tokens:   transportRequestsPerSecond,
		Interval: time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create transport rate limiter: %w", err)
	}

	quota := api.NewQuota(
		b.logger,
		b.store,
		b.config.RateLimit,
		b.config.RateLimitWindow,
		b.collector,
	)
	bundlerAPI := api.NewBundlerAPI(b.logger, b.bundler, b.resolver, b.collector)

	b.server = api.NewServer(
		b.logger,
		b.config,
		b.registry,
		bundlerAPI,
		api.NewHMACVerifier(b.config.SessionSecret),
		quota,
		transport,
		b.collector,
		tracing.Tracer(),
	)
	<-b.server.Ready()

	return nil
}

func (b *Bootstrap) StopAPIServer() {
	if b.server == nil {
		return
	}
	b.logger.Warn().Msg("shutting down API server")
	<-b.server.Done()

	if b.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.tracerShutdown(ctx); err != nil {
			b.logger.Err(err).Msg("error shutting down tracer")
		}
	}
}

func (b *Bootstrap) StartMetricsServer(_ context.Context) error {
	b.logger.Info().Msg("bootstrap starting metrics server")

	b.metrics = metrics.NewServer(b.logger, b.config.MetricsPort)
	<-b.metrics.Ready()

	return nil
}

func (b *Bootstrap) StopMetricsServer() {
	if b.metrics == nil {
		return
	}
	b.logger.Warn().Msg("shutting down metrics server")
	<-b.metrics.Done()
}

// Run will run a complete bootstrap of the bundler gateway.
// Run is a blocking call, but it does signal readiness of the service
// through a channel provided as an argument.
func Run(ctx context.Context, cfg *config.Config, ready chan struct{}) error {
	boot, err := New(cfg)
	if err != nil {
		return err
	}

	if err := boot.StartAPIServer(ctx); err != nil {
		return err
	}

	if err := boot.StartMetricsServer(ctx); err != nil {
		return err
	}

	close(ready)

	<-ctx.Done()
	boot.logger.Warn().Msg("bootstrap received context cancellation, stopping services")

	boot.StopAPIServer()
	boot.StopMetricsServer()

	var result *multierror.Error
	if err := boot.store.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
