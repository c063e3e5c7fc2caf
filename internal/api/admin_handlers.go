package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/codedrip/codedrip-server/internal/service"
)

// defaultRecentDeliveries bounds the recent-activity slice in status reports.
const defaultRecentDeliveries = 25

func (s *Server) registerAdminRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getEngineStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/status",
		Summary:     "Engine status",
		Description: "Returns delivery, email and problem counts plus recent activity",
		Tags:        []string{"Admin"},
	}, s.handleGetEngineStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "triggerDeliveryBatch",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/batches/delivery",
		Summary:     "Trigger delivery batch",
		Description: "Runs the daily challenge batch immediately",
		Tags:        []string{"Admin"},
	}, s.handleTriggerDeliveryBatch)

	huma.Register(s.api, huma.Operation{
		OperationID: "triggerSolutionBatch",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/batches/solutions",
		Summary:     "Trigger solution batch",
		Description: "Runs the solution sweep immediately",
		Tags:        []string{"Admin"},
	}, s.handleTriggerSolutionBatch)

	huma.Register(s.api, huma.Operation{
		OperationID: "triggerQueueDrain",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/queue/drain",
		Summary:     "Drain email queue",
		Description: "Runs one drain pass over the outbound email queue",
		Tags:        []string{"Admin"},
	}, s.handleTriggerQueueDrain)
}

// === DTOs ===

type EngineStatusOutput struct {
	Body service.StatusReport
}

type BatchResultOutput struct {
	Body service.BatchResult
}

type DrainResultOutput struct {
	Body service.DrainResult
}

// === Handlers ===

func (s *Server) handleGetEngineStatus(ctx context.Context, _ *struct{}) (*EngineStatusOutput, error) {
	report, err := s.services.Report.Snapshot(ctx, defaultRecentDeliveries)
	if err != nil {
		return nil, err
	}

	return &EngineStatusOutput{Body: *report}, nil
}

func (s *Server) handleTriggerDeliveryBatch(ctx context.Context, _ *struct{}) (*BatchResultOutput, error) {
	result, err := s.services.Delivery.RunDailyBatch(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.Info("delivery batch triggered via api",
		"scheduled", result.Scheduled,
		"skipped", result.Skipped,
	)
	return &BatchResultOutput{Body: *result}, nil
}

func (s *Server) handleTriggerSolutionBatch(ctx context.Context, _ *struct{}) (*BatchResultOutput, error) {
	result, err := s.services.Solution.RunPendingSolutions(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.Info("solution batch triggered via api",
		"scheduled", result.Scheduled,
		"skipped", result.Skipped,
	)
	return &BatchResultOutput{Body: *result}, nil
}

func (s *Server) handleTriggerQueueDrain(ctx context.Context, _ *struct{}) (*DrainResultOutput, error) {
	result, err := s.services.Dispatch.DrainBatch(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.Info("queue drain triggered via api",
		"sent", result.Sent,
		"retrying", result.Retrying,
		"failed", result.Failed,
	)
	return &DrainResultOutput{Body: *result}, nil
}
