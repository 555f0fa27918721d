//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"PumpWatch/pkg/config"
	"PumpWatch/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideRedisClient,

		// Stores and publishers
		ProvideMarketStore,
		ProvideResultStore,
		ProvideAlertPublisher,
		ProvideStateStore,

		// Use cases
		ProvidePipeline,
		ProvideRunner,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
