package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/mailer"
	"github.com/codedrip/codedrip-server/internal/store"
)

// DrainResult summarizes one drain pass over the email queue.
type DrainResult struct {
	Sent     int `json:"sent"`
	Retrying int `json:"retrying"`
	Failed   int `json:"failed"`
}

// DispatchService drains the durable email queue through the mail provider.
// It is the only bounded-retry mechanism in the system: every item ends at
// sent or terminal failed within MaxRetries attempts.
type DispatchService struct {
	store  store.Store
	sender mailer.Sender
	cfg    config.DispatchConfig
	logger *slog.Logger
}

// NewDispatchService creates a new dispatch worker.
func NewDispatchService(store store.Store, sender mailer.Sender, cfg config.DispatchConfig, logger *slog.Logger) *DispatchService {
	return &DispatchService{
		store:  store,
		sender: sender,
		cfg:    cfg,
		logger: logger,
	}
}

// DrainBatch attempts every currently eligible queue item, up to the batch
// size. Item failures are absorbed into the result; the pass never aborts.
func (s *DispatchService) DrainBatch(ctx context.Context, now time.Time) (*DrainResult, error) {
	items, err := s.store.ListDispatchableEmails(ctx, now, s.cfg.RetryCooldown, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list dispatchable emails: %w", err)
	}

	result := &DrainResult{}
	for _, item := range items {
		s.attempt(ctx, item, now, result)
	}

	if len(items) > 0 {
		s.logger.Info("queue drain complete",
			"attempted", len(items),
			"sent", result.Sent,
			"retrying", result.Retrying,
			"failed", result.Failed,
		)
	}
	return result, nil
}

// attempt sends one queue item and records the outcome.
func (s *DispatchService) attempt(ctx context.Context, item *domain.EmailQueueItem, now time.Time, result *DrainResult) {
	providerID, sendErr := s.sender.Send(ctx, item)
	if sendErr == nil {
		item.MarkSent(now, providerID)
		if err := s.store.UpdateEmail(ctx, item); err != nil {
			s.logger.Error("persist sent email failed", "email_id", item.ID, "error", err)
			result.Failed++
			return
		}
		result.Sent++
		s.reconcileSend(ctx, item, providerID, now)
		return
	}

	if !mailer.Retryable(sendErr) {
		// The provider refused the message outright; retrying the same
		// payload cannot succeed.
		item.RetryCount = item.MaxRetries
	}
	item.MarkAttemptFailed(now, sendErr.Error(), s.cfg.RetryBackoff)

	if err := s.store.UpdateEmail(ctx, item); err != nil {
		s.logger.Error("persist failed attempt failed", "email_id", item.ID, "error", err)
		result.Failed++
		return
	}

	if item.Terminal() {
		result.Failed++
		s.logger.Warn("email permanently failed",
			"email_id", item.ID,
			"retry_count", item.RetryCount,
			"error", sendErr,
		)
		s.failDelivery(ctx, item, now, sendErr)
		return
	}

	result.Retrying++
	s.logger.Debug("email send retry scheduled",
		"email_id", item.ID,
		"retry_count", item.RetryCount,
		"next_attempt", item.ScheduledFor,
	)
}

// reconcileSend advances the correlated delivery record after a successful
// send. The provider's webhook remains the source of truth; this is the
// optimistic fast path.
func (s *DispatchService) reconcileSend(ctx context.Context, item *domain.EmailQueueItem, providerID string, now time.Time) {
	if item.DeliveryID == "" {
		return
	}

	record, err := s.store.GetDelivery(ctx, item.DeliveryID)
	if err != nil {
		s.logger.Warn("load delivery after send failed", "delivery_id", item.DeliveryID, "error", err)
		return
	}

	changed := false
	switch item.Kind {
	case domain.EmailKindChallenge:
		record.ApplyDelivered(now)
		record.Meta.ProviderResponse = providerID
		record.UpdatedAt = now
		changed = true
	case domain.EmailKindSolution:
		if record.Meta.SolutionDeliveredAt == nil {
			t := now
			record.Meta.SolutionDeliveredAt = &t
			record.UpdatedAt = now
			changed = true
		}
	}

	if changed {
		if err := s.store.UpdateDelivery(ctx, record); err != nil {
			s.logger.Warn("persist delivery after send failed", "delivery_id", record.ID, "error", err)
		}
	}
}

// failDelivery marks the correlated challenge delivery failed after retries
// are exhausted.
func (s *DispatchService) failDelivery(ctx context.Context, item *domain.EmailQueueItem, now time.Time, sendErr error) {
	if item.DeliveryID == "" || item.Kind != domain.EmailKindChallenge {
		return
	}

	record, err := s.store.GetDelivery(ctx, item.DeliveryID)
	if err != nil {
		if !errors.Is(err, store.ErrDeliveryNotFound) {
			s.logger.Warn("load delivery after terminal failure failed", "delivery_id", item.DeliveryID, "error", err)
		}
		return
	}

	if record.ApplyFailed(now, sendErr.Error()) {
		if err := s.store.UpdateDelivery(ctx, record); err != nil {
			s.logger.Warn("persist failed delivery failed", "delivery_id", record.ID, "error", err)
		}
	}
}
