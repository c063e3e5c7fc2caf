package api

import (
	"github.com/codedrip/codedrip-server/internal/service"
)

// Services groups all business logic services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Tag      *service.TagService
	Delivery *service.DeliveryService
	Solution *service.SolutionService
	Dispatch *service.DispatchService
	Webhook  *service.WebhookService
	Report   *service.ReportService
}
