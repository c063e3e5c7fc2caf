// Package di provides dependency injection configuration for the CodeDrip server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/di/providers"
	"github.com/codedrip/codedrip-server/internal/logger"
	"github.com/codedrip/codedrip-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Outbound mail
	do.Provide(injector, providers.ProvideSender)

	// Business services
	do.Provide(injector, providers.ProvideTagService)
	do.Provide(injector, providers.ProvideSelectorService)
	do.Provide(injector, providers.ProvideDeliveryService)
	do.Provide(injector, providers.ProvideSolutionService)
	do.Provide(injector, providers.ProvideDispatchService)
	do.Provide(injector, providers.ProvideWebhookService)
	do.Provide(injector, providers.ProvideReportService)

	// Workers
	do.Provide(injector, providers.ProvideDeliveryBatchJob)
	do.Provide(injector, providers.ProvideSolutionSweepJob)
	do.Provide(injector, providers.ProvideQueueDrainJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SenderHandle](injector)

	// Business services
	_ = do.MustInvoke[*service.TagService](injector)
	_ = do.MustInvoke[*service.SelectorService](injector)
	_ = do.MustInvoke[*service.DeliveryService](injector)
	_ = do.MustInvoke[*service.SolutionService](injector)
	_ = do.MustInvoke[*service.DispatchService](injector)
	_ = do.MustInvoke[*service.WebhookService](injector)
	_ = do.MustInvoke[*service.ReportService](injector)

	// Workers
	_ = do.MustInvoke[*providers.DeliveryBatchJob](injector)
	_ = do.MustInvoke[*providers.SolutionSweepJob](injector)
	_ = do.MustInvoke[*providers.QueueDrainJob](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
