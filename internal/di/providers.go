package di

import (
	"context"
	"fmt"
	"time"

	"SentinelX/internal/domain/repository"
	"SentinelX/internal/handler/api"
	internalrepo "SentinelX/internal/repository"
	"SentinelX/internal/service/ratelimit"
	"SentinelX/internal/service/sentinel"
	"SentinelX/internal/usecase"
	"SentinelX/pkg/cache"
	pkgch "SentinelX/pkg/clickhouse"
	"SentinelX/pkg/clock"
	"SentinelX/pkg/config"
	xhttp "SentinelX/pkg/http"
	pkgkafka "SentinelX/pkg/kafka"
	applogger "SentinelX/pkg/logger"
	"SentinelX/pkg/metrics"
	"SentinelX/pkg/server"
)

// mirrorBuffer bounds the pending cache writes of the slot mirror.
const mirrorBuffer = 256

// ProvideKafkaProducer creates a Kafka producer, nil when no brokers are
// configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger creates the application logger. Error digests are published
// to log.digest_topic when set.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.DigestTopic != "" && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Log.DigestEvery,
			Topic:        cfg.Log.DigestTopic,
			Levels:       []string{"error", "warn"},
			Publisher:    internalrepo.NewLogDigestPublisher(producer),
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func ProvideClock() clock.Clock {
	return clock.SystemClock{}
}

// ProvideBackend creates the instrumented backend client.
func ProvideBackend(cfg *config.Config, m repository.Metrics, l *applogger.Logger) repository.Backend {
	client := sentinel.New(cfg.API.BaseURL, sentinel.WithTimeout(cfg.API.Timeout))
	return sentinel.NewInstrumented(client, m, l.With(applogger.String("component", "backend")))
}

// ProvideCache creates the cache backing the slot mirror.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	c, err := cache.New(cache.Config{
		Backend:       cache.Backend(cfg.Cache.Type),
		MemoryMaxSize: cfg.Cache.MemoryMaxSize,
		Redis: cache.RedisConfig{
			Host:     cfg.Cache.Redis.Host,
			Port:     cfg.Cache.Redis.Port,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s cache: %w", cfg.Cache.Type, err)
	}
	return c, nil
}

func ProvideSnapshotMirror(c cache.Service, cfg *config.Config) repository.SnapshotMirror {
	return internalrepo.NewCacheMirror(c, cfg.Cache.TTL)
}

func ProvideSlotMirror(mirror repository.SnapshotMirror, m repository.Metrics, l *applogger.Logger, cfg *config.Config) *usecase.SlotMirror {
	return usecase.NewSlotMirror(mirror, m, l, mirrorBuffer, cfg.Cache.DropOnUnmount)
}

// ProvideClickHouseClient creates a ClickHouse client, nil when history is
// disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.HistoryEnabled() {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ClickHouse.DialTimeout+5*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideHistoryStore creates the commit history table, nil without a
// ClickHouse client.
func ProvideHistoryStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.HistoryStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewCHHistoryStore(ch, cfg.ClickHouse.Table, cfg.ClickHouse.Retention, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvidePublisher creates the commit publisher, nil without a producer.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideCommitSink creates the commit sink, nil when sink.type is none.
func ProvideCommitSink(
	pub repository.Publisher,
	store repository.HistoryStore,
	m repository.Metrics,
	l *applogger.Logger,
	clk clock.Clock,
	cfg *config.Config,
) *usecase.CommitSink {
	if cfg.Sink.Type == usecase.SinkNone {
		return nil
	}
	return usecase.NewCommitSink(pub, store, m, l, clk, cfg.Sink.Type, cfg.Sink.BatchSize, cfg.Sink.BatchTimeout)
}

// ProvideKafkaConsumer creates a consumer that moves published commits into
// ClickHouse, nil unless sink.consume is set.
func ProvideKafkaConsumer(cfg *config.Config, store repository.HistoryStore, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Sink.Consume || store == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l.With(applogger.String("component", "kafka_consumer"))),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaCommitsHandler(cfg.Kafka.Topic, store, m))
	return consumer, nil
}

// ProvideViewManager creates the view manager with every configured commit
// observer. Nil components are left out.
func ProvideViewManager(
	cfg *config.Config,
	backend repository.Backend,
	m repository.Metrics,
	l *applogger.Logger,
	clk clock.Clock,
	store repository.HistoryStore,
	mirror repository.SnapshotMirror,
	slotMirror *usecase.SlotMirror,
	sink *usecase.CommitSink,
) *usecase.ViewManager {
	catalog := usecase.DefaultCatalog(usecase.CatalogOptions{
		OverviewInterval: cfg.Views.OverviewInterval,
		LiveInterval:     cfg.Views.LiveInterval,
		ExplorerInterval: cfg.Views.ExplorerInterval,
		BlocksLimit:      cfg.Views.BlocksLimit,
		TxLimit:          cfg.Views.TxLimit,
		DefaultAsset:     cfg.Views.DefaultAsset,
	})

	var observers []usecase.CommitObserver
	if slotMirror != nil {
		observers = append(observers, slotMirror)
	}
	if sink != nil {
		observers = append(observers, sink)
	}
	opts := []usecase.ManagerOption{
		usecase.WithClock(clk),
		usecase.WithObservers(observers...),
	}
	if mirror != nil {
		opts = append(opts, usecase.WithMirror(mirror))
	}
	if store != nil {
		opts = append(opts, usecase.WithHistory(store, cfg.ClickHouse.BaselineWindow))
	}
	return usecase.NewViewManager(catalog, backend, m, l.With(applogger.String("component", "views")), opts...)
}

func ProvideRateLimiter(cfg *config.Config, clk clock.Clock) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond, clk)
}

// ProvideHTTPServer creates the API server with the view and stream routes.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	views *usecase.ViewManager,
	rl *ratelimit.Limiter,
	store repository.HistoryStore,
) *xhttp.Server {
	var checks []api.HealthCheck
	if store != nil {
		checks = append(checks, api.HealthCheck{Name: "clickhouse", Check: store.Health})
	}
	handlers := []xhttp.Handler{
		api.NewViewsHandler(l, views, rl, checks...),
		api.NewStreamHandler(l, views, cfg.Server.StreamPing),
	}

	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(config.Enabled(cfg.Server.CORS)),
	}
	if config.Enabled(cfg.Metrics.Enabled) {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, nil, nil))
	}
	return xhttp.NewServer(l, handlers, opts...)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	views *usecase.ViewManager,
	srv *xhttp.Server,
	sink *usecase.CommitSink,
	slotMirror *usecase.SlotMirror,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	c cache.Service,
	ch *pkgch.Client,
) *server.App {
	return server.New(cfg, l, views, srv,
		server.WithCommitSink(sink),
		server.WithSlotMirror(slotMirror),
		server.WithConsumer(consumer),
		server.WithProducer(producer),
		server.WithCache(c),
		server.WithClickHouse(ch),
	)
}
