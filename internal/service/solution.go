package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/id"
	"github.com/codedrip/codedrip-server/internal/store"
)

// Solution window bounds. The sweep is periodic, so due records are matched
// against a tolerance window centered on now - delay rather than an instant.
const (
	minSolutionWindow = 30 * time.Minute
	maxSolutionWindow = 3 * time.Hour
)

// SolutionService enqueues solution emails for challenges delivered roughly
// one solution-delay ago.
type SolutionService struct {
	store       store.Store
	appCfg      config.AppConfig
	cfg         config.DeliveryConfig
	dispatchCfg config.DispatchConfig
	logger      *slog.Logger
}

// NewSolutionService creates a new solution scheduler.
func NewSolutionService(store store.Store, appCfg config.AppConfig, cfg config.DeliveryConfig, dispatchCfg config.DispatchConfig, logger *slog.Logger) *SolutionService {
	return &SolutionService{
		store:       store,
		appCfg:      appCfg,
		cfg:         cfg,
		dispatchCfg: dispatchCfg,
		logger:      logger,
	}
}

// solutionWindow returns the tolerance width: 5% of the delay, clamped to
// [30min, 3h].
func solutionWindow(delay time.Duration) time.Duration {
	w := delay / 20
	if w < minSolutionWindow {
		return minSolutionWindow
	}
	if w > maxSolutionWindow {
		return maxSolutionWindow
	}
	return w
}

// RunPendingSolutions enqueues solution emails for every delivery whose
// challenge went out about one delay ago. Records with a solution already
// scheduled or delivered are skipped, so reruns are harmless.
func (s *SolutionService) RunPendingSolutions(ctx context.Context, now time.Time) (*BatchResult, error) {
	center := now.Add(-s.cfg.SolutionDelay)
	width := solutionWindow(s.cfg.SolutionDelay)
	windowStart := center.Add(-width / 2)
	windowEnd := center.Add(width / 2)

	due, err := s.store.ListDeliveriesDueForSolution(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list due deliveries: %w", err)
	}

	result := newBatchResult()
	for _, record := range due {
		if err := s.scheduleSolution(ctx, record, now, result); err != nil {
			result.Errors++
			s.logger.Error("solution scheduling failed",
				"delivery_id", record.ID,
				"error", err,
			)
		}
	}

	if len(due) > 0 || result.Errors > 0 {
		s.logger.Info("solution sweep complete",
			"due", len(due),
			"scheduled", result.Scheduled,
			"skipped", result.Skipped,
			"errors", result.Errors,
		)
	}
	return result, nil
}

// scheduleSolution handles one due delivery record.
func (s *SolutionService) scheduleSolution(ctx context.Context, record *domain.DeliveryRecord, now time.Time, result *BatchResult) error {
	// The query filters on meta, but re-check after the read in case a
	// concurrent sweep got here first.
	if record.Meta.SolutionHandled() {
		result.skip(record.ID, SkipSolutionHandled)
		return nil
	}

	user, err := s.store.GetUser(ctx, record.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !user.Deliverable() {
		result.skip(record.ID, SkipUserNotDeliverable)
		return nil
	}

	problem, err := s.store.GetProblem(ctx, record.ProblemID)
	if err != nil {
		return fmt.Errorf("load problem: %w", err)
	}
	if !problem.HasSolution() {
		result.skip(record.ID, SkipProblemWithoutSolution)
		return nil
	}

	emailID, err := id.Generate("eml")
	if err != nil {
		return fmt.Errorf("generate email id: %w", err)
	}

	subject, bodyHTML, bodyText := buildSolutionEmail(
		s.appCfg.BaseURL, problem.Title, problem.Solution, problem.ID)

	email := &domain.EmailQueueItem{
		ID:           emailID,
		Recipient:    user.Email,
		Subject:      subject,
		BodyHTML:     bodyHTML,
		BodyText:     bodyText,
		ProblemID:    problem.ID,
		DeliveryID:   record.ID,
		Kind:         domain.EmailKindSolution,
		Status:       domain.EmailStatusPending,
		MaxRetries:   s.dispatchCfg.MaxRetries,
		ScheduledFor: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateEmail(ctx, email); err != nil {
		return fmt.Errorf("enqueue solution email: %w", err)
	}

	t := now
	record.Meta.SolutionScheduledAt = &t
	record.UpdatedAt = now
	if err := s.store.UpdateDelivery(ctx, record); err != nil {
		return fmt.Errorf("stamp solution scheduled: %w", err)
	}

	result.Scheduled++
	s.logger.Debug("solution scheduled",
		"delivery_id", record.ID,
		"problem_id", problem.ID,
	)
	return nil
}
