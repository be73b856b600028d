package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/predeshen/yfinance-trading-signal/internal/domain/repository"
	mid "github.com/predeshen/yfinance-trading-signal/internal/middleware"
	"github.com/predeshen/yfinance-trading-signal/internal/usecase"
	pkgch "github.com/predeshen/yfinance-trading-signal/pkg/clickhouse"
	"github.com/predeshen/yfinance-trading-signal/pkg/config"
	xhttp "github.com/predeshen/yfinance-trading-signal/pkg/http"
	pkgkafka "github.com/predeshen/yfinance-trading-signal/pkg/kafka"
	applogger "github.com/predeshen/yfinance-trading-signal/pkg/logger"
	pkgqueue "github.com/predeshen/yfinance-trading-signal/pkg/queue"
)

// App encapsulates the entire application lifecycle: the HTTP API, the
// periodic scan loop, the live quote stream, and the event consumer.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	scanner    *usecase.Scanner
	pipeline   *mid.TickPipeline
	stream     repository.PriceStream
	consumer   *pkgkafka.Consumer
	events     *usecase.EventsHandler
	producer   *pkgkafka.Producer
	scanPub    *pkgqueue.RedisQueue
	scanCons   *pkgqueue.RedisQueue
	store      repository.OutcomeStore
	chClient   *pkgch.Client
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	scanner *usecase.Scanner,
	pipeline *mid.TickPipeline,
	stream repository.PriceStream,
	consumer *pkgkafka.Consumer,
	events *usecase.EventsHandler,
	producer *pkgkafka.Producer,
	scanPub *pkgqueue.RedisQueue,
	scanCons *pkgqueue.RedisQueue,
	store repository.OutcomeStore,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		handler:  handler,
		scanner:  scanner,
		pipeline: pipeline,
		stream:   stream,
		consumer: consumer,
		events:   events,
		producer: producer,
		scanPub:  scanPub,
		scanCons: scanCons,
		store:    store,
		chClient: chClient,
	}
}

// kafkaLogPublisher adapts the Kafka producer to the log collector's
// publisher interface.
type kafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func (k kafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return k.producer.Publish(ctx, topic, nil, payload)
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.cfg.Kafka.LogsTopic != "" && a.producer != nil {
		a.log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Kafka.LogsTopic,
			Publisher:      kafkaLogPublisher{producer: a.producer},
		})
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Scan job workers
	if a.scanCons != nil {
		if err := a.scanCons.Start(); err != nil {
			a.log.Error("scan queue start error", applogger.Error(err))
			return err
		}
		a.scanCons.StartRetryProcessor()
	}

	// Event consumer (Telegram and any future sinks ride Kafka)
	if a.consumer != nil && a.events != nil {
		a.consumer.RegisterHandler(a.events)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.events.Topic()))
	}

	// Live quote stream feeding the tick pipeline
	if a.stream != nil {
		a.pipeline.Start(ctx)
		go a.streamLoop(ctx)
	}

	// Periodic scan loop
	go a.scanLoop(ctx)
	symbols := make([]string, 0, len(a.scanner.Symbols()))
	for _, s := range a.scanner.Symbols() {
		symbols = append(symbols, s.Name)
	}
	a.log.Info("scanner started",
		applogger.Strings("symbols", symbols),
		applogger.String("interval", a.cfg.Scanner.Interval.String()))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx, cancel)
}

// scanLoop enqueues one scan job per symbol every interval. Workers
// pick the jobs up from the Redis queue, so a slow symbol never delays
// the rest of the cycle.
func (a *App) scanLoop(ctx context.Context) {
	a.publishScanJobs(ctx)

	ticker := time.NewTicker(a.cfg.Scanner.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.publishScanJobs(ctx)
		}
	}
}

func (a *App) publishScanJobs(ctx context.Context) {
	if a.scanPub == nil {
		a.scanner.ScanCycle(ctx)
		return
	}
	for _, sym := range a.scanner.Symbols() {
		if err := a.scanPub.PublishMessage(ctx, usecase.ScanJobType, sym); err != nil {
			a.log.Error("scan job publish error",
				applogger.String("symbol", sym.Name),
				applogger.Error(err))
		}
	}
}

// streamLoop keeps the WebSocket connection alive and forwards ticks
// into the pipeline.
func (a *App) streamLoop(ctx context.Context) {
	if err := a.connectStream(ctx); err != nil {
		a.log.Error("stream connect error", applogger.Error(err))
		return
	}

	ticks, errs := a.stream.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			if err := a.pipeline.Process(ctx, t); err != nil {
				a.log.Warn("tick pipeline error", applogger.Error(err))
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			a.log.Warn("stream error, reconnecting", applogger.Error(err))
			if err := a.stream.Reconnect(ctx); err != nil {
				a.log.Error("stream reconnect error", applogger.Error(err))
				return
			}
			ticks, errs = a.stream.Read(ctx)
		}
	}
}

func (a *App) connectStream(ctx context.Context) error {
	if err := a.stream.Connect(ctx); err != nil {
		return err
	}
	return a.stream.Subscribe(ctx)
}

// shutdown gracefully stops all services in dependency order.
func (a *App) shutdown(ctx context.Context, cancel context.CancelFunc) error {
	cancel()

	if a.stream != nil {
		a.pipeline.Stop()
		if err := a.stream.Close(); err != nil {
			a.log.Warn("stream close error", applogger.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if a.scanCons != nil {
		if err := a.scanCons.Stop(shutdownCtx); err != nil {
			a.log.Warn("scan queue stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	a.log.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
