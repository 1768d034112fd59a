//go:build wireinject
// +build wireinject

package di

import (
	"DualSignal/pkg/config"
	"DualSignal/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function. The cleanup releases the store and the event publisher.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideWatchlist,
		ProvideMetrics,

		// Storage
		ProvideObjectStore,
		ProvideLocker,
		ProvideRawBarStore,
		ProvideComputeSeriesStore,
		ProvideLearningResultStore,

		// Feed and events
		ProvideEventPublisher,
		ProvideMarketStream,

		// Use cases
		ProvideWindowAggregator,
		ProvideBarPipeline,
		ProvideComputeWorker,
		ProvideLearningWorker,
		ProvideDualSignalService,

		// HTTP
		ProvideResponseCache,
		ProvideDualSignalHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
