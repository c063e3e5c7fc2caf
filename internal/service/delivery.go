package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/id"
	"github.com/codedrip/codedrip-server/internal/store"
)

// Skip reasons reported in batch results.
const (
	SkipNoSuitableProblem      = "no_suitable_problem"
	SkipAlreadyScheduled       = "already_scheduled_or_sent"
	SkipUserNotDeliverable     = "user_not_deliverable"
	SkipSolutionHandled        = "solution_already_handled"
	SkipProblemWithoutSolution = "problem_has_no_solution"
)

// BatchResult summarizes one batch run. Per-item skip reasons are kept for
// observability; one item's failure never aborts the batch.
type BatchResult struct {
	Scheduled int               `json:"scheduled"`
	Skipped   int               `json:"skipped"`
	Errors    int               `json:"errors"`
	Reasons   map[string]string `json:"reasons,omitempty"` // item id -> skip reason
}

func newBatchResult() *BatchResult {
	return &BatchResult{Reasons: make(map[string]string)}
}

func (r *BatchResult) skip(itemID, reason string) {
	r.Skipped++
	r.Reasons[itemID] = reason
}

// DeliveryService owns the daily challenge batch: per user, select a problem,
// create the delivery record and enqueue the challenge email.
type DeliveryService struct {
	store       store.Store
	selector    *SelectorService
	appCfg      config.AppConfig
	cfg         config.DeliveryConfig
	dispatchCfg config.DispatchConfig
	logger      *slog.Logger
}

// NewDeliveryService creates a new delivery scheduler.
func NewDeliveryService(store store.Store, selector *SelectorService, appCfg config.AppConfig, cfg config.DeliveryConfig, dispatchCfg config.DispatchConfig, logger *slog.Logger) *DeliveryService {
	return &DeliveryService{
		store:       store,
		selector:    selector,
		appCfg:      appCfg,
		cfg:         cfg,
		dispatchCfg: dispatchCfg,
		logger:      logger,
	}
}

// RunDailyBatch schedules today's challenge for every deliverable user.
// Safe to retrigger: users whose (user, problem) pair already has a live
// record are skipped, so a rerun creates no duplicates.
func (s *DeliveryService) RunDailyBatch(ctx context.Context, now time.Time) (*BatchResult, error) {
	users, err := s.store.ListDeliverableUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list deliverable users: %w", err)
	}

	result := newBatchResult()
	batchTime := s.deliveryTime(now)

	for _, user := range users {
		if err := s.scheduleForUser(ctx, user, now, batchTime, result); err != nil {
			result.Errors++
			s.logger.Error("daily batch user failed",
				"user_id", user.ID,
				"error", err,
			)
		}
	}

	s.logger.Info("daily batch complete",
		"users", len(users),
		"scheduled", result.Scheduled,
		"skipped", result.Skipped,
		"errors", result.Errors,
	)
	return result, nil
}

// scheduleForUser handles one user within the batch.
func (s *DeliveryService) scheduleForUser(ctx context.Context, user *domain.User, now, batchTime time.Time, result *BatchResult) error {
	problem, err := s.selector.SelectProblem(ctx, user, now)
	if errors.Is(err, ErrUserNotDeliverable) {
		result.skip(user.ID, SkipUserNotDeliverable)
		return nil
	}
	if errors.Is(err, ErrNoSuitableProblem) {
		result.skip(user.ID, SkipNoSuitableProblem)
		return nil
	}
	if err != nil {
		return fmt.Errorf("select problem: %w", err)
	}

	// Idempotency guard: one live attempt per (user, problem).
	_, err = s.store.GetActiveDeliveryForUserProblem(ctx, user.ID, problem.ID)
	if err == nil {
		result.skip(user.ID, SkipAlreadyScheduled)
		return nil
	}
	if !errors.Is(err, store.ErrDeliveryNotFound) {
		return fmt.Errorf("check existing delivery: %w", err)
	}

	deliveryID, err := id.Generate("dlv")
	if err != nil {
		return fmt.Errorf("generate delivery id: %w", err)
	}
	emailID, err := id.Generate("eml")
	if err != nil {
		return fmt.Errorf("generate email id: %w", err)
	}

	record := &domain.DeliveryRecord{
		ID:          deliveryID,
		UserID:      user.ID,
		ProblemID:   problem.ID,
		Channel:     domain.ChannelEmail,
		Status:      domain.DeliveryStatusScheduled,
		ScheduledAt: batchTime,
		Meta:        domain.DeliveryMeta{CorrelationID: emailID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateDelivery(ctx, record); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// The unique index caught a concurrent batch run.
			result.skip(user.ID, SkipAlreadyScheduled)
			return nil
		}
		return fmt.Errorf("create delivery: %w", err)
	}

	subject, bodyHTML, bodyText := buildChallengeEmail(
		s.appCfg.BaseURL, problem.Title, problem.Description, problem.Difficulty, problem.ID)

	email := &domain.EmailQueueItem{
		ID:           emailID,
		Recipient:    user.Email,
		Subject:      subject,
		BodyHTML:     bodyHTML,
		BodyText:     bodyText,
		ProblemID:    problem.ID,
		DeliveryID:   deliveryID,
		Kind:         domain.EmailKindChallenge,
		Status:       domain.EmailStatusPending,
		MaxRetries:   s.dispatchCfg.MaxRetries,
		ScheduledFor: batchTime,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateEmail(ctx, email); err != nil {
		return fmt.Errorf("enqueue challenge email: %w", err)
	}

	if err := s.store.UpdateUserLastProblem(ctx, user.ID, problem.ID, batchTime); err != nil {
		// The record and email exist; the cache is a hint, so log and move on.
		s.logger.Warn("update last problem cache failed",
			"user_id", user.ID,
			"error", err,
		)
	}

	result.Scheduled++
	s.logger.Debug("challenge scheduled",
		"user_id", user.ID,
		"problem_id", problem.ID,
		"delivery_id", deliveryID,
	)
	return nil
}

// deliveryTime pins the batch to the configured hour of day.
func (s *DeliveryService) deliveryTime(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), s.cfg.Hour, 0, 0, 0, now.Location())
}
