//go:build wireinject
// +build wireinject

package di

import (
	"github.com/predeshen/yfinance-trading-signal/pkg/config"
	"github.com/predeshen/yfinance-trading-signal/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,
		ProvideCache,

		// Repositories
		ProvideOutcomeStore,
		ProvideNotificationSink,
		ProvideCandleProvider,
		ProvidePriceStream,

		// Core engine
		ProvideStrategy,
		ProvideEstimator,
		ProvideMachine,
		ProvideContextBuilder,

		// Use cases
		ProvideScanner,
		ProvideCandlesUseCase,
		ProvidePriceTracker,
		ProvideTickPipeline,
		ProvideNotifier,
		ProvideEventsHandler,
		ProvideScanQueues,

		// HTTP and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
