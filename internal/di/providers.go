package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	"github.com/predeshen/yfinance-trading-signal/internal/handler/api"
	"github.com/predeshen/yfinance-trading-signal/internal/lifecycle"
	mid "github.com/predeshen/yfinance-trading-signal/internal/middleware"
	internalrepo "github.com/predeshen/yfinance-trading-signal/internal/repository"
	"github.com/predeshen/yfinance-trading-signal/internal/risk"
	"github.com/predeshen/yfinance-trading-signal/internal/service/quotes"
	"github.com/predeshen/yfinance-trading-signal/internal/service/telegram"
	"github.com/predeshen/yfinance-trading-signal/internal/service/yahoo"
	"github.com/predeshen/yfinance-trading-signal/internal/strategy"
	"github.com/predeshen/yfinance-trading-signal/internal/usecase"
	pkgcache "github.com/predeshen/yfinance-trading-signal/pkg/cache"
	pkgch "github.com/predeshen/yfinance-trading-signal/pkg/clickhouse"
	"github.com/predeshen/yfinance-trading-signal/pkg/config"
	xhttp "github.com/predeshen/yfinance-trading-signal/pkg/http"
	pkgkafka "github.com/predeshen/yfinance-trading-signal/pkg/kafka"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
	"github.com/predeshen/yfinance-trading-signal/pkg/metrics"
	pkgqueue "github.com/predeshen/yfinance-trading-signal/pkg/queue"
	"github.com/predeshen/yfinance-trading-signal/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "info", Format: "json", Output: "stdout"}
	if cfg.Environment == "development" {
		lc.Level = "debug"
		lc.Format = "console"
	}
	l, err := applogger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideClickHouseClient creates a ClickHouse client. The outcome
// store applies the schema during its Init.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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

// ProvideOutcomeStore creates the ClickHouse-backed signal and trade
// store and warms its open-trade set.
func ProvideOutcomeStore(chClient *pkgch.Client, log *applogger.Logger) (repository.OutcomeStore, error) {
	store := internalrepo.NewCHOutcomeStore(chClient)
	store.SetLogger(log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("outcome store init: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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

// ProvideNotificationSink publishes lifecycle events to the events topic.
func ProvideNotificationSink(producer *pkgkafka.Producer, cfg *config.Config) repository.NotificationSink {
	return internalrepo.NewKafkaSink(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisClient creates the shared Redis client used by the job
// queue.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideCache creates the Redis cache service used for candle caching
// and scan locks.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr %q: %w", cfg.Redis.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port %q: %w", portStr, err)
	}

	cache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(10, 2, 5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache, nil
}

// ProvideCandleProvider wraps the Yahoo chart client with the Redis
// candle cache.
func ProvideCandleProvider(cfg *config.Config, cache pkgcache.Service, m repository.Metrics, log *applogger.Logger) repository.CandleProvider {
	client := yahoo.NewClient(yahoo.Config{
		BaseURL:           cfg.Yahoo.BaseURL,
		UserAgent:         cfg.Yahoo.UserAgent,
		Timeout:           cfg.Yahoo.Timeout,
		RequestsPerMinute: cfg.Yahoo.RateLimit.RequestsPerMinute,
		Burst:             cfg.Yahoo.RateLimit.Burst,
	}, log)

	ttls := make(map[repository.Timeframe]time.Duration, len(cfg.Yahoo.CacheTTL))
	for tf, ttl := range cfg.Yahoo.CacheTTL {
		ttls[repository.Timeframe(tf)] = ttl
	}
	return internalrepo.NewCachingCandleProvider(client, cache, ttls, m, log)
}

// ProvidePriceStream creates the WebSocket quote stream, or nil when
// streaming is disabled.
func ProvidePriceStream(cfg *config.Config, log *applogger.Logger) repository.PriceStream {
	if !cfg.Stream.Enabled {
		return nil
	}
	providers := make([]string, 0, len(cfg.Scanner.Symbols))
	for _, s := range cfg.Scanner.Symbols {
		providers = append(providers, s.Provider)
	}
	return quotes.New(
		cfg.Stream.APIKey,
		cfg.Stream.WebSocketURL,
		providers,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
		log,
	)
}

// ProvideStrategy creates the multi-timeframe H4 FVG strategy.
func ProvideStrategy(cfg *config.Config, log *applogger.Logger) strategy.Strategy {
	sc := strategy.Config{
		SwingWindow:       cfg.Scanner.SwingWindow,
		StructureLookback: cfg.Scanner.StructureLookback,
		EntryWickRatio:    cfg.Scanner.EntryWickRatio,
		MinBars:           cfg.Scanner.MinBars,
	}
	if cfg.Scanner.ATRPeriod > 0 && cfg.Scanner.OrderBlockMult > 0 {
		sc.OrderBlock.ATRPeriod = cfg.Scanner.ATRPeriod
		sc.OrderBlock.StrengthMult = cfg.Scanner.OrderBlockMult
	}
	return strategy.NewH4FvgStrategy(sc, log)
}

// ProvideEstimator creates the outcome-driven risk estimator.
func ProvideEstimator(cfg *config.Config, store repository.OutcomeStore, log *applogger.Logger) risk.Estimator {
	return risk.NewDynamicEstimator(risk.Config{
		ATRPeriod:    cfg.Scanner.ATRPeriod,
		StopATRMult:  cfg.Risk.StopATRMult,
		FallbackRR:   cfg.Risk.FallbackRR,
		MinSamples:   cfg.Risk.MinSamples,
		Equity:       cfg.Risk.Equity,
		RiskFraction: cfg.Risk.RiskFraction,
		PointValue:   cfg.Risk.PointValue,
		BreakEvenR:   cfg.Risk.BreakEvenR,
		TrailR:       cfg.Risk.TrailR,
		TrailATRFrac: cfg.Risk.TrailATRFrac,
		StaleFactor:  cfg.Risk.StaleFactor,
	}, store, log)
}

// ProvideMachine creates the trade lifecycle state machine.
func ProvideMachine(
	store repository.OutcomeStore,
	sink repository.NotificationSink,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *lifecycle.Machine {
	return lifecycle.NewMachine(store, sink, m, log, lifecycle.Policy{
		TPFirst:    cfg.Risk.TPFirst,
		MaxHolding: cfg.Risk.MaxHolding,
	})
}

// ProvideContextBuilder creates the multi-timeframe context builder.
func ProvideContextBuilder(provider repository.CandleProvider) *usecase.ContextBuilder {
	return usecase.NewContextBuilder(provider)
}

func symbolMappings(cfg *config.Config) []usecase.SymbolMapping {
	out := make([]usecase.SymbolMapping, 0, len(cfg.Scanner.Symbols))
	for _, s := range cfg.Scanner.Symbols {
		out = append(out, usecase.SymbolMapping{Name: s.Name, Provider: s.Provider})
	}
	return out
}

// ProvideScanner creates the per-cycle signal scanner.
func ProvideScanner(
	cfg *config.Config,
	builder *usecase.ContextBuilder,
	strat strategy.Strategy,
	estimator risk.Estimator,
	machine *lifecycle.Machine,
	store repository.OutcomeStore,
	sink repository.NotificationSink,
	locks pkgcache.Service,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.Scanner {
	return usecase.NewScanner(usecase.ScannerConfig{
		Symbols:     symbolMappings(cfg),
		MinBars:     cfg.Scanner.MinBars,
		SwingWindow: cfg.Scanner.SwingWindow,
		LockTTL:     cfg.Scanner.LockTTL,
	}, builder, strat, estimator, machine, store, sink, locks, m, log)
}

// ProvideCandlesUseCase creates the candle query use case.
func ProvideCandlesUseCase(provider repository.CandleProvider, cfg *config.Config) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(provider, symbolMappings(cfg))
}

// ProvidePriceTracker creates the live price tracker.
func ProvidePriceTracker(cfg *config.Config, m repository.Metrics) *usecase.PriceTracker {
	return usecase.NewPriceTracker(symbolMappings(cfg), m)
}

// ProvideTickPipeline builds the middleware pipeline between the
// WebSocket stream and the price tracker.
func ProvideTickPipeline(tracker *usecase.PriceTracker, m repository.Metrics) *mid.TickPipeline {
	return mid.NewTickPipeline(tracker, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideNotifier creates the Telegram notifier, or nil when disabled.
func ProvideNotifier(cfg *config.Config, log *applogger.Logger) (usecase.EventNotifier, error) {
	if !cfg.Telegram.Enabled {
		return nil, nil
	}
	n, err := telegram.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
	if err != nil {
		return nil, fmt.Errorf("telegram notifier: %w", err)
	}
	return n, nil
}

// ProvideEventsHandler consumes lifecycle events and forwards them to
// the notifier.
func ProvideEventsHandler(cfg *config.Config, notifier usecase.EventNotifier, m repository.Metrics, log *applogger.Logger) *usecase.EventsHandler {
	return usecase.NewEventsHandler(cfg.Kafka.Topic, notifier, m, log)
}

// ScanQueues bundles the Redis job queue endpoints: one publisher used
// by the scan ticker, one consumer pool running the scan jobs.
type ScanQueues struct {
	Publisher *pkgqueue.RedisQueue
	Consumer  *pkgqueue.RedisQueue
}

// ProvideScanQueues creates the Redis-backed scan job queue.
func ProvideScanQueues(cfg *config.Config, client *redis.Client, scanner *usecase.Scanner, log *applogger.Logger) *ScanQueues {
	workers := cfg.Scanner.Workers
	if workers <= 0 {
		workers = 4
	}
	qc := &pkgqueue.QueueConfig{
		Workers:    workers,
		QueueSize:  1000,
		RetryLimit: 3,
		RetryDelay: 10 * time.Second,
	}
	return &ScanQueues{
		Publisher: pkgqueue.NewRedisPublisher(log, client),
		Consumer:  pkgqueue.NewRedisConsumer(log, qc, client, []pkgqueue.Job{usecase.NewScanJob(scanner)}),
	}
}

// ProvideHTTPHandler creates the scanner HTTP API handler.
func ProvideHTTPHandler(
	log *applogger.Logger,
	store repository.OutcomeStore,
	machine *lifecycle.Machine,
	candles *usecase.CandlesUseCase,
	tracker *usecase.PriceTracker,
	scanner *usecase.Scanner,
	stream repository.PriceStream,
) xhttp.Handler {
	return api.NewScannerHandler(log, store, machine, candles, tracker, scanner, stream)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	scanner *usecase.Scanner,
	pipeline *mid.TickPipeline,
	stream repository.PriceStream,
	consumer *pkgkafka.Consumer,
	events *usecase.EventsHandler,
	producer *pkgkafka.Producer,
	queues *ScanQueues,
	store repository.OutcomeStore,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, log, handler, scanner, pipeline, stream, consumer, events, producer, queues.Publisher, queues.Consumer, store, chClient)
}
