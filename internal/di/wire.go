//go:build wireinject
// +build wireinject

package di

import (
	"RoundPull/pkg/config"
	"RoundPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideCacheService,
		ProvideClickHouseClient,

		// Repositories
		ProvideStorage,
		ProvidePublisher,
		ProvideLedgerStore,
		ProvideSessionStore,
		ProvideFeed,

		// Engine and use cases
		ProvideEngine,
		ProvideRoundProcessor,
		ProvidePipeline,
		ProvideRoundCollector,
		ProvideSessionService,

		// Transport
		ProvideHub,
		ProvideBytesCache,
		ProvideHandlers,
		ProvideKafkaHandlers,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
