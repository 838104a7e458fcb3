package di

import (
	"fmt"

	"RoundPull/internal/domain/repository"
	"RoundPull/internal/domain/service"
	"RoundPull/internal/handler/api"
	"RoundPull/internal/handler/ws"
	mid "RoundPull/internal/middleware"
	internalrepo "RoundPull/internal/repository"
	icache "RoundPull/internal/service/cache"
	"RoundPull/internal/service/feed"
	"RoundPull/internal/services/ensemble"
	"RoundPull/internal/usecase"
	pkgcache "RoundPull/pkg/cache"
	pkgch "RoundPull/pkg/clickhouse"
	"RoundPull/pkg/config"
	xhttp "RoundPull/pkg/http"
	pkgkafka "RoundPull/pkg/kafka"
	applogger "RoundPull/pkg/logger"
	"RoundPull/pkg/metrics"
	"RoundPull/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer when the kafka backend or log collection needs one.
// It returns nil otherwise.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != config.BackendKafka && !cfg.Log.Collect {
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

// ProvideLogger builds the application logger and attaches the log collector when enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collect && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			Topic:     cfg.Log.Topic,
			Source:    "roundpull",
			Publisher: producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideCacheService returns Redis behind an in-process layer when redis.addr is set,
// otherwise a memory cache.
func ProvideCacheService(cfg *config.Config) (pkgcache.Service, error) {
	if cfg.Redis.Addr == "" {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(10000)), nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 2, 0),
		pkgcache.WithRedisTimeouts(cfg.Redis.DialTimeout, cfg.Redis.DialTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemoryTTL(cfg.Server.HistoryCacheTTL)), nil
}

// ProvideClickHouseClient connects to ClickHouse when the clickhouse backend or the archiver
// consumer needs it. It returns nil otherwise. Tables are created by the storage Init.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Backend.Type != config.BackendClickHouse && !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideStorage creates the ClickHouse archive, or nil without a client.
func ProvideStorage(ch *pkgch.Client, l *applogger.Logger) repository.Storage {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseStorage(ch.DB(), ch.Database(), l.With(applogger.String("component", "clickhouse")))
}

// ProvidePublisher creates the Kafka publisher for the kafka backend, or nil.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil || cfg.Backend.Type != config.BackendKafka {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.RoundsTopic, cfg.Kafka.PredictionsTopic)
}

// ProvideLedgerStore picks the ledger persistence configured by ledger.store.
func ProvideLedgerStore(cfg *config.Config, c pkgcache.Service) repository.LedgerStore {
	if cfg.Ledger.Store == config.LedgerRedis {
		return internalrepo.NewCacheLedgerStore(c, cfg.Ledger.Key, cfg.Ledger.TTL)
	}
	return internalrepo.NewFileLedgerStore(cfg.Ledger.Path)
}

func ProvideSessionStore(cfg *config.Config, c pkgcache.Service) repository.SessionStore {
	return internalrepo.NewCacheSessionStore(c, cfg.Sessions.TTL)
}

func ProvideEngine(cfg *config.Config) service.Predictor {
	return ensemble.NewEngine(cfg.EngineOptions())
}

func ProvideFeed(cfg *config.Config) repository.FeedSource {
	return feed.New(cfg.Feed.URL,
		feed.WithTimeout(cfg.Feed.Timeout),
		feed.WithHeaders(cfg.Feed.Headers),
		feed.WithRetry(cfg.Feed.Retries+1, cfg.Feed.RetryBackoff),
	)
}

// ProvideRoundProcessor creates the round processor use case.
func ProvideRoundProcessor(
	engine service.Predictor,
	ledger repository.LedgerStore,
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.RoundProcessor {
	return usecase.NewRoundProcessor(engine, ledger, pub, store, m, cfg.Backend.Type,
		l.With(applogger.String("component", "processor")))
}

// ProvidePipeline builds the page pipeline between the feed poller and the processor.
func ProvidePipeline(proc *usecase.RoundProcessor, m repository.Metrics) *mid.RoundPipeline {
	return mid.NewRoundPipeline(proc, m)
}

// ProvideRoundCollector creates the feed poller.
func ProvideRoundCollector(
	src repository.FeedSource,
	pipe *mid.RoundPipeline,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.RoundCollector {
	return usecase.NewRoundCollector(src, pipe, m, l.With(applogger.String("component", "collector")), usecase.CollectorConfig{
		Interval:   cfg.Feed.Interval,
		Timeout:    cfg.Feed.Timeout,
		StallAfter: cfg.Feed.StallAfter,
	})
}

func ProvideSessionService(engine service.Predictor, store repository.SessionStore, cfg *config.Config, l *applogger.Logger) *usecase.SessionService {
	return usecase.NewSessionService(engine, store, cfg.Sessions.MaxLevel, l.With(applogger.String("component", "sessions")))
}

// ProvideHub creates the prediction websocket hub and subscribes it to the processor.
func ProvideHub(proc *usecase.RoundProcessor, l *applogger.Logger) *ws.Hub {
	hub := ws.NewHub(l.With(applogger.String("component", "ws")))
	proc.AddSink(hub)
	return hub
}

// ProvideBytesCache shares the history cache through Redis when configured.
func ProvideBytesCache(cfg *config.Config, c pkgcache.Service) icache.BytesCache {
	if cfg.Redis.Addr != "" {
		return icache.NewServiceCache(c)
	}
	return icache.NewTTLCache()
}

// ProvideHandlers collects every HTTP route group.
func ProvideHandlers(
	cfg *config.Config,
	l *applogger.Logger,
	proc *usecase.RoundProcessor,
	collector *usecase.RoundCollector,
	bc icache.BytesCache,
	sessions *usecase.SessionService,
	hub *ws.Hub,
) []xhttp.Handler {
	return []xhttp.Handler{
		api.NewRoundsEchoHandler(l, proc, collector, bc).WithHistoryTTL(cfg.Server.HistoryCacheTTL),
		api.NewSessionsEchoHandler(l, sessions),
		hub,
	}
}

// ProvideKafkaHandlers returns the archiver handlers, or nil when the consumer is disabled.
func ProvideKafkaHandlers(cfg *config.Config, store repository.Storage, m repository.Metrics, l *applogger.Logger) []pkgkafka.MessageHandler {
	if !cfg.Kafka.Consumer.Enabled || store == nil {
		return nil
	}
	handlers := []pkgkafka.MessageHandler{
		usecase.NewKafkaRoundsHandler(cfg.Kafka.RoundsTopic, store, m, l),
	}
	if cfg.Kafka.PredictionsTopic != "" {
		handlers = append(handlers, usecase.NewKafkaPredictionsHandler(cfg.Kafka.PredictionsTopic, store, m))
	}
	return handlers
}

// ProvideKafkaConsumer creates the archiver consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	cl := l.With(applogger.String("component", "kafka_consumer"))
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(cl),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.RejectEmpty(), pkgkafka.LogErrors(cl)))
	return consumer, nil
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	proc *usecase.RoundProcessor,
	pipe *mid.RoundPipeline,
	collector *usecase.RoundCollector,
	hub *ws.Hub,
	handlers []xhttp.Handler,
	store repository.Storage,
	consumer *pkgkafka.Consumer,
	kafkaHandlers []pkgkafka.MessageHandler,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	c pkgcache.Service,
) *server.App {
	return server.New(cfg, l, server.Components{
		Processor:     proc,
		Pipeline:      pipe,
		Collector:     collector,
		Hub:           hub,
		Handlers:      handlers,
		Storage:       store,
		Consumer:      consumer,
		KafkaHandlers: kafkaHandlers,
		Producer:      producer,
		ClickHouse:    chClient,
		Cache:         c,
	})
}
