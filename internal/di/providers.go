package di

import (
	"context"
	"fmt"
	"io"
	"time"

	"DualSignal/internal/domain/models"
	"DualSignal/internal/domain/repository"
	"DualSignal/internal/handler/api"
	mid "DualSignal/internal/middleware"
	internalrepo "DualSignal/internal/repository"
	icache "DualSignal/internal/service/cache"
	"DualSignal/internal/service/feed"
	"DualSignal/internal/usecase"
	pkgch "DualSignal/pkg/clickhouse"
	"DualSignal/pkg/config"
	xhttp "DualSignal/pkg/http"
	pkgkafka "DualSignal/pkg/kafka"
	applogger "DualSignal/pkg/logger"
	"DualSignal/pkg/metrics"
	"DualSignal/pkg/objstore"
	"DualSignal/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideWatchlist builds the immutable watchlist shared by every component.
func ProvideWatchlist(cfg *config.Config) models.Watchlist {
	return models.NewWatchlist(cfg.Watchlist)
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideObjectStore opens the configured storage backend. The cleanup closes it.
func ProvideObjectStore(cfg *config.Config, log *applogger.Logger) (objstore.Store, func(), error) {
	sc := cfg.Store
	switch sc.Backend {
	case "redis":
		s, err := objstore.NewRedisStore(
			objstore.WithRedisAddr(sc.Redis.Addr),
			objstore.WithRedisAuth(sc.Redis.Password, sc.Redis.DB),
			objstore.WithRedisPool(sc.Redis.PoolSize, sc.Redis.PoolSize/2, 4*time.Second),
			objstore.WithRedisPrefix(sc.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}
		log.Info("object store ready", applogger.String("backend", "redis"), applogger.String("addr", sc.Redis.Addr))
		return s, closeWithLog(s, "object store", log), nil
	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithHost(sc.ClickHouse.Host, sc.ClickHouse.Port),
			pkgch.WithDatabase(sc.ClickHouse.Database),
			pkgch.WithCredentials(sc.ClickHouse.User, sc.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(sc.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(sc.ClickHouse.DialTimeout, sc.ClickHouse.ReadTimeout, sc.ClickHouse.WriteTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := objstore.NewClickHouseStore(ctx, client, objstore.WithClickHouseTable(sc.ClickHouse.Table))
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse store: %w", err)
		}
		log.Info("object store ready", applogger.String("backend", "clickhouse"), applogger.String("host", sc.ClickHouse.Host))
		return s, closeWithLog(s, "object store", log), nil
	default:
		log.Warn("using in-memory object store; data is lost on exit")
		s := objstore.NewMemoryStore()
		return s, closeWithLog(s, "object store", log), nil
	}
}

// closeWithLog adapts an io.Closer to a wire cleanup.
func closeWithLog(c io.Closer, name string, log *applogger.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Warn("close error", applogger.String("component", name), applogger.Error(err))
		}
	}
}

// ProvideLocker uses the store's own locking when it has one.
func ProvideLocker(store objstore.Store, log *applogger.Logger) repository.Locker {
	if l, ok := store.(objstore.Locker); ok {
		return l
	}
	log.Warn("object store has no advisory locks; overlapping worker runs rely on merge idempotency")
	return objstore.NopLocker{}
}

func ProvideRawBarStore(store objstore.Store, log *applogger.Logger) repository.RawBarStore {
	return internalrepo.NewRawBarStore(store, log)
}

func ProvideComputeSeriesStore(store objstore.Store, log *applogger.Logger) repository.ComputeSeriesStore {
	return internalrepo.NewComputeSeriesStore(store, log)
}

func ProvideLearningResultStore(store objstore.Store, log *applogger.Logger) repository.LearningResultStore {
	return internalrepo.NewLearningResultStore(store, log)
}

// ProvideEventPublisher publishes window events to Kafka when enabled. The cleanup flushes and closes the producer.
func ProvideEventPublisher(cfg *config.Config, log *applogger.Logger) (repository.EventPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopPublisher{}, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaWindowPublisher(producer, cfg.Kafka.WindowClosedTopic)
	return pub, closeWithLog(pub, "event publisher", log), nil
}

// ProvideMarketStream selects the feed provider.
func ProvideMarketStream(cfg *config.Config, log *applogger.Logger, m repository.Metrics, watchlist models.Watchlist) repository.MarketStream {
	if cfg.Feed.Provider == "kafka" {
		kc := cfg.Kafka.Consumer
		return feed.NewKafkaSource(cfg.Feed.KafkaTopic, log, m,
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerGroupID(cfg.Feed.KafkaGroupID),
			pkgkafka.WithConsumerWorkers(kc.Workers),
			pkgkafka.WithConsumerBufferSize(kc.BufferSize),
			pkgkafka.WithConsumerRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
			pkgkafka.WithConsumerDLQ(kc.DLQTopic),
			pkgkafka.WithConsumerFetch(kc.MinBytes, kc.MaxBytes),
		)
	}
	return feed.New(feed.Options{
		APIKey:       cfg.Feed.APIKey,
		URL:          cfg.Feed.WebSocketURL,
		Channel:      cfg.Feed.Channel,
		Symbols:      watchlist.Instruments(),
		PingInterval: cfg.Feed.PingInterval,
		ReadTimeout:  cfg.Feed.ReadTimeout,
		BufferSize:   cfg.Feed.BufferSize,
	}, log, m)
}

// ProvideWindowAggregator creates the window aggregator.
func ProvideWindowAggregator(cfg *config.Config, store repository.RawBarStore, events repository.EventPublisher, m repository.Metrics, log *applogger.Logger) *usecase.WindowAggregator {
	ac := cfg.Aggregator
	return usecase.NewWindowAggregator(store, events, m, log, usecase.AggregatorOptions{
		Window:           ac.Window,
		FlushInterval:    ac.FlushInterval,
		Grace:            ac.Grace,
		MaxFlushAttempts: ac.MaxFlushAttempts,
		WriteTimeout:     ac.WriteTimeout,
		BackoffInitial:   cfg.Feed.Backoff.Initial,
		BackoffMax:       cfg.Feed.Backoff.Max,
		Location:         cfg.Location(),
	})
}

// ProvideBarPipeline puts validation, watchlist filtering and throttling in front of the aggregator.
func ProvideBarPipeline(cfg *config.Config, agg *usecase.WindowAggregator, watchlist models.Watchlist, m repository.Metrics) mid.Proc {
	return mid.NewBarPipeline(agg, watchlist, m, mid.WithMaxBarsPerSecond(cfg.Aggregator.MaxBarsPerSecond))
}

// ProvideComputeWorker creates the compute worker.
func ProvideComputeWorker(cfg *config.Config, raw repository.RawBarStore, series repository.ComputeSeriesStore, locker repository.Locker, watchlist models.Watchlist, m repository.Metrics, log *applogger.Logger) *usecase.ComputeWorker {
	wc := cfg.Workers.Compute
	return usecase.NewComputeWorker(raw, series, locker, watchlist, m, log, usecase.ComputeOptions{
		Timeout:          wc.Timeout,
		VolatilityWindow: wc.VolatilityWindow,
		Epsilon:          wc.Epsilon,
		Location:         cfg.Location(),
	})
}

// ProvideLearningWorker creates the learning worker.
func ProvideLearningWorker(cfg *config.Config, series repository.ComputeSeriesStore, results repository.LearningResultStore, locker repository.Locker, watchlist models.Watchlist, m repository.Metrics, log *applogger.Logger) *usecase.LearningWorker {
	lc := cfg.Workers.Learning
	return usecase.NewLearningWorker(series, results, locker, watchlist, m, log, usecase.LearningOptions{
		Timeout:         lc.Timeout,
		MinObservations: lc.MinObservations,
		LookbackDays:    lc.LookbackDays,
		Ridge:           lc.Ridge,
		Rules: usecase.ConvergenceRules{
			MAEThreshold:    lc.MAEThreshold,
			MAEStreakTarget: lc.MAEStreakTarget,
			R2Threshold:     lc.R2Threshold,
			RunsPerDay:      lc.RunsPerDay,
		},
		Location: cfg.Location(),
	})
}

// ProvideDualSignalService creates the read-side aggregation service.
func ProvideDualSignalService(cfg *config.Config, series repository.ComputeSeriesStore, results repository.LearningResultStore, watchlist models.Watchlist, m repository.Metrics, log *applogger.Logger) *usecase.DualSignalService {
	return usecase.NewDualSignalService(series, results, watchlist, m, log, cfg.Aggregation.ReadTimeout, cfg.Location())
}

// ProvideResponseCache shares the Redis pool when asked and available, else caches in process.
func ProvideResponseCache(cfg *config.Config, store objstore.Store, log *applogger.Logger) icache.BytesCache {
	if cfg.Aggregation.CacheStore == "redis" {
		if rs, ok := store.(*objstore.RedisStore); ok {
			return icache.NewRedisCache(rs.Client(), cfg.Store.Redis.Prefix)
		}
		log.Warn("redis response cache needs the redis store backend; using in-process cache")
	}
	return icache.NewTTLCache()
}

// ProvideDualSignalHandler creates the Echo handler.
func ProvideDualSignalHandler(cfg *config.Config, log *applogger.Logger, svc *usecase.DualSignalService, store objstore.Store, cache icache.BytesCache) *api.DualSignalHandler {
	h := api.NewDualSignalHandler(log, svc, store)
	if cfg.Aggregation.CacheTTL > 0 {
		h.SetCache(cache, cfg.Aggregation.CacheTTL)
	}
	return h
}

// ProvideHTTPServer creates the Echo server with metrics exposed when enabled.
func ProvideHTTPServer(cfg *config.Config, log *applogger.Logger, h *api.DualSignalHandler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, cfg.Metrics.Path))
	}
	return xhttp.NewServer(log, []xhttp.Handler{h}, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	stream repository.MarketStream,
	agg *usecase.WindowAggregator,
	pipe mid.Proc,
	compute *usecase.ComputeWorker,
	learning *usecase.LearningWorker,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(cfg, log, server.Components{
		Aggregator: agg,
		Stream:     stream,
		Pipeline:   pipe,
		Compute:    compute,
		Learning:   learning,
		HTTPServer: httpServer,
	})
}
