package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/store"
)

// StatusReport is the read-only snapshot exposed to admin surfaces.
type StatusReport struct {
	Deliveries map[domain.DeliveryStatus]int `json:"deliveries"`
	Emails     map[domain.EmailStatus]int    `json:"emails"`
	Problems   map[domain.ProblemStatus]int  `json:"problems"`
	Recent     []*domain.DeliveryRecord      `json:"recent"`
}

// ReportService aggregates engine state for reporting. Read-only.
type ReportService struct {
	store  store.Store
	logger *slog.Logger
}

// NewReportService creates a new report service.
func NewReportService(store store.Store, logger *slog.Logger) *ReportService {
	return &ReportService{
		store:  store,
		logger: logger,
	}
}

// Snapshot returns per-status counts and recent delivery activity.
func (s *ReportService) Snapshot(ctx context.Context, recentLimit int) (*StatusReport, error) {
	deliveries, err := s.store.CountDeliveriesByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	emails, err := s.store.CountEmailsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count emails: %w", err)
	}
	problems, err := s.store.CountProblemsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count problems: %w", err)
	}
	recent, err := s.store.ListRecentDeliveries(ctx, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent deliveries: %w", err)
	}

	return &StatusReport{
		Deliveries: deliveries,
		Emails:     emails,
		Problems:   problems,
		Recent:     recent,
	}, nil
}
