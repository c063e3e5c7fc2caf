package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json/v2"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/errors"
	"github.com/codedrip/codedrip-server/internal/store"
	"github.com/codedrip/codedrip-server/internal/validation"
)

// WebhookEvent is the provider's event envelope.
type WebhookEvent struct {
	Type string           `json:"type" validate:"required"`
	Data WebhookEventData `json:"data"`
}

// WebhookEventData carries the event payload fields we consume.
type WebhookEventData struct {
	// EmailID is the provider's echo of our queue item id (the correlation
	// id sent with the message).
	EmailID string `json:"email_id"`
	To      string `json:"to" validate:"omitempty,email"`
	Subject string `json:"subject"`
	URL     string `json:"url,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Webhook outcome statuses.
const (
	WebhookUpdated  = "updated"  // a delivery record changed
	WebhookIgnored  = "ignored"  // matched but no state change (duplicate/out-of-order/unknown type)
	WebhookUnlinked = "unlinked" // no delivery record could be matched
)

// WebhookResult reports what an event did.
type WebhookResult struct {
	Status     string `json:"status"`
	DeliveryID string `json:"delivery_id,omitempty"`
}

// WebhookService reconciles provider delivery events into delivery record
// state. Transitions are monotonic: duplicate and out-of-order events can
// never move a record backward.
type WebhookService struct {
	store     store.Store
	cfg       config.WebhookConfig
	validator *validation.Validator
	logger    *slog.Logger
}

// NewWebhookService creates a new webhook reconciler.
func NewWebhookService(store store.Store, cfg config.WebhookConfig, logger *slog.Logger) *WebhookService {
	return &WebhookService{
		store:     store,
		cfg:       cfg,
		validator: validation.New(),
		logger:    logger,
	}
}

// VerifySignature checks the HMAC-SHA256 hex signature over the raw payload.
// Verification is skipped when no secret is configured. The comparison is
// constant-time.
func (s *WebhookService) VerifySignature(payload []byte, signature string) bool {
	if s.cfg.Secret == "" {
		return true
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HandleEvent verifies, parses and applies one provider event.
// Returns an Unauthorized error on signature mismatch and a Validation error
// on malformed JSON; an event that matches no delivery record is not an
// error and reports an unlinked result.
func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if !s.VerifySignature(payload, signature) {
		return nil, errors.Unauthorized("invalid webhook signature")
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errors.Validation("malformed webhook payload").WithCause(err)
	}
	if err := s.validator.Validate(&event); err != nil {
		return nil, err
	}

	record, err := s.matchDelivery(ctx, &event)
	if err != nil {
		return nil, err
	}
	if record == nil {
		s.logger.Info("webhook event unlinked",
			"type", event.Type,
			"to", event.Data.To,
		)
		return &WebhookResult{Status: WebhookUnlinked}, nil
	}

	now := time.Now().UTC()
	changed := s.applyEvent(record, &event, now)
	if !changed {
		return &WebhookResult{Status: WebhookIgnored, DeliveryID: record.ID}, nil
	}

	if err := s.store.UpdateDelivery(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("webhook event applied",
		"type", event.Type,
		"delivery_id", record.ID,
		"status", record.Status,
	)
	return &WebhookResult{Status: WebhookUpdated, DeliveryID: record.ID}, nil
}

// matchDelivery finds the delivery record an event refers to, best-effort.
// Match order: provider-echoed correlation id, then recipient email plus a
// problem id parsed from the clicked URL, then the recipient's most recent
// record. Returns (nil, nil) when nothing matches.
func (s *WebhookService) matchDelivery(ctx context.Context, event *WebhookEvent) (*domain.DeliveryRecord, error) {
	if event.Data.EmailID != "" {
		if item, err := s.store.GetEmail(ctx, event.Data.EmailID); err == nil && item.DeliveryID != "" {
			record, err := s.store.GetDelivery(ctx, item.DeliveryID)
			if err == nil {
				return record, nil
			}
			if !stderrors.Is(err, store.ErrDeliveryNotFound) {
				return nil, err
			}
		}
		// Older producers stored the correlation id only in delivery meta.
		if record, err := s.store.GetDeliveryByCorrelationID(ctx, event.Data.EmailID); err == nil {
			return record, nil
		}
	}

	if event.Data.To == "" {
		return nil, nil
	}
	user, err := s.store.GetUserByEmail(ctx, event.Data.To)
	if err != nil {
		if stderrors.Is(err, store.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}

	records, err := s.store.ListDeliveriesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	if problemID := problemIDFromURL(event.Data.URL); problemID != "" {
		for _, r := range records {
			if r.ProblemID == problemID {
				return r, nil
			}
		}
	}

	if title := titleFromSubject(event.Data.Subject); title != "" {
		for _, r := range records {
			problem, err := s.store.GetProblem(ctx, r.ProblemID)
			if err != nil {
				continue
			}
			if strings.EqualFold(problem.Title, title) {
				return r, nil
			}
		}
	}

	// Fall back to the most recent record for the recipient.
	return records[0], nil
}

// titleFromSubject strips our known subject prefixes to recover the problem
// title embedded in an outbound email subject.
func titleFromSubject(subject string) string {
	for _, prefix := range []string{"Daily challenge: ", "Solution: "} {
		if rest, ok := strings.CutPrefix(subject, prefix); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// applyEvent mutates the record per event type. Unknown types are accepted
// but change nothing.
func (s *WebhookService) applyEvent(record *domain.DeliveryRecord, event *WebhookEvent, now time.Time) bool {
	switch event.Type {
	case "delivered":
		return record.ApplyDelivered(now)
	case "opened":
		return record.ApplyOpened(now)
	case "clicked":
		record.RecordClick(now, event.Data.URL)
		if isSolveLink(event.Data.URL) {
			record.ApplyCompleted(now)
		}
		return true
	case "bounced", "failed":
		return record.ApplyFailed(now, event.Data.Reason)
	default:
		return false
	}
}
