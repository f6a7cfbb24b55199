//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SentinelX/pkg/config"
	"SentinelX/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideClock,

		// Infrastructure clients
		ProvideBackend,
		ProvideCache,
		ProvideClickHouseClient,

		// Repositories
		ProvideSnapshotMirror,
		ProvideHistoryStore,
		ProvidePublisher,

		// Use cases
		ProvideSlotMirror,
		ProvideCommitSink,
		ProvideKafkaConsumer,
		ProvideViewManager,

		// HTTP surface
		ProvideRateLimiter,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
