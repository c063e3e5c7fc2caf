package providers

import (
	"github.com/samber/do/v2"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/logger"
	"github.com/codedrip/codedrip-server/internal/service"
)

// ProvideTagService provides the tag graph service.
func ProvideTagService(i do.Injector) (*service.TagService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewTagService(storeHandle.Store, log.Logger), nil
}

// ProvideSelectorService provides the problem selection service.
func ProvideSelectorService(i do.Injector) (*service.SelectorService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tagService := do.MustInvoke[*service.TagService](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSelectorService(storeHandle.Store, tagService, cfg.Delivery, log.Logger), nil
}

// ProvideDeliveryService provides the daily batch scheduling service.
func ProvideDeliveryService(i do.Injector) (*service.DeliveryService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	selectorService := do.MustInvoke[*service.SelectorService](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewDeliveryService(storeHandle.Store, selectorService, cfg.App, cfg.Delivery, cfg.Dispatch, log.Logger), nil
}

// ProvideSolutionService provides the solution follow-up service.
func ProvideSolutionService(i do.Injector) (*service.SolutionService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSolutionService(storeHandle.Store, cfg.App, cfg.Delivery, cfg.Dispatch, log.Logger), nil
}

// ProvideDispatchService provides the email queue dispatch service.
func ProvideDispatchService(i do.Injector) (*service.DispatchService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	senderHandle := do.MustInvoke[*SenderHandle](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewDispatchService(storeHandle.Store, senderHandle.Sender, cfg.Dispatch, log.Logger), nil
}

// ProvideWebhookService provides the provider event ingestion service.
func ProvideWebhookService(i do.Injector) (*service.WebhookService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewWebhookService(storeHandle.Store, cfg.Webhook, log.Logger), nil
}

// ProvideReportService provides the engine status reporting service.
func ProvideReportService(i do.Injector) (*service.ReportService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewReportService(storeHandle.Store, log.Logger), nil
}
