package domain

import "time"

// DeliveryStatus represents the state of a challenge delivery.
//
// The state machine is strictly forward-moving:
//
//	scheduled → delivered → {opened → completed, failed}
//
// with delivered → completed allowed directly (a click without an
// intermediate open event). completed and failed are terminal.
type DeliveryStatus string

const (
	// DeliveryStatusScheduled is the initial state of every record.
	DeliveryStatusScheduled DeliveryStatus = "scheduled"
	// DeliveryStatusDelivered means the provider confirmed delivery.
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	// DeliveryStatusOpened means the recipient opened the email.
	DeliveryStatusOpened DeliveryStatus = "opened"
	// DeliveryStatusCompleted means the recipient engaged with the challenge.
	DeliveryStatusCompleted DeliveryStatus = "completed"
	// DeliveryStatusFailed means delivery permanently failed (e.g. bounce).
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// ChannelEmail is the only delivery channel currently implemented.
const ChannelEmail = "email"

// maxClickHistory bounds the click metadata kept per delivery.
const maxClickHistory = 20

// rank orders statuses for monotonicity checks. Terminal states share the
// top rank so neither can replace the other.
func (s DeliveryStatus) rank() int {
	switch s {
	case DeliveryStatusScheduled:
		return 0
	case DeliveryStatusDelivered:
		return 1
	case DeliveryStatusOpened:
		return 2
	case DeliveryStatusCompleted, DeliveryStatusFailed:
		return 3
	default:
		return -1
	}
}

// Terminal returns true if no further automatic transition occurs.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusCompleted || s == DeliveryStatusFailed
}

// ClickEvent records one click on a delivered email.
type ClickEvent struct {
	URL       string    `json:"url"`
	ClickedAt time.Time `json:"clicked_at"`
}

// DeliveryMeta holds idempotency markers and reconciliation bookkeeping for a
// delivery. It is a typed sub-record persisted as JSON alongside the row.
type DeliveryMeta struct {
	// CorrelationID links the record to the email queue item that carries
	// the challenge email.
	CorrelationID string `json:"correlation_id,omitempty"`
	// SolutionScheduledAt is stamped when the solution email is enqueued.
	SolutionScheduledAt *time.Time `json:"solution_scheduled_at,omitempty"`
	// SolutionDeliveredAt is stamped when the solution email is sent.
	SolutionDeliveredAt *time.Time `json:"solution_delivered_at,omitempty"`
	// ClickCount accumulates across all click events, regardless of status.
	ClickCount   int          `json:"click_count,omitempty"`
	ClickHistory []ClickEvent `json:"click_history,omitempty"`
	// FailureReason carries the provider's bounce/failure reason.
	FailureReason string `json:"failure_reason,omitempty"`
	// ProviderResponse stashes the provider message id from the send call.
	ProviderResponse string `json:"provider_response,omitempty"`
}

// SolutionHandled returns true if a solution email was already scheduled or
// sent for this delivery.
func (m *DeliveryMeta) SolutionHandled() bool {
	return m.SolutionScheduledAt != nil || m.SolutionDeliveredAt != nil
}

// DeliveryRecord tracks one (user, problem) challenge delivery attempt.
// Created once by a scheduler, mutated by the webhook reconciler and the
// dispatch worker, never deleted in normal operation.
type DeliveryRecord struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	ProblemID   string         `json:"problem_id"`
	Channel     string         `json:"channel"`
	Status      DeliveryStatus `json:"status"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	OpenedAt    *time.Time     `json:"opened_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Meta        DeliveryMeta   `json:"meta"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CanAdvanceTo reports whether moving to the target status is a forward
// transition. Equal or backward moves are rejected, as is leaving a terminal
// state.
func (d *DeliveryRecord) CanAdvanceTo(target DeliveryStatus) bool {
	if d.Status.Terminal() {
		return false
	}
	return target.rank() > d.Status.rank()
}

// ApplyDelivered records a provider delivered event. DeliveredAt is set on
// first occurrence even when the status cannot move (out-of-order events).
// Returns true if anything changed.
func (d *DeliveryRecord) ApplyDelivered(now time.Time) bool {
	changed := false
	if d.DeliveredAt == nil {
		t := now
		d.DeliveredAt = &t
		changed = true
	}
	if d.CanAdvanceTo(DeliveryStatusDelivered) {
		d.Status = DeliveryStatusDelivered
		changed = true
	}
	if changed {
		d.UpdatedAt = now
	}
	return changed
}

// ApplyOpened records an opened event. OpenedAt is set on the first
// occurrence only; the status advances to opened only from scheduled, so an
// open that raced ahead of the delivered event is preserved and never
// regressed afterwards.
func (d *DeliveryRecord) ApplyOpened(now time.Time) bool {
	changed := false
	if d.OpenedAt == nil {
		t := now
		d.OpenedAt = &t
		changed = true
	}
	if d.Status == DeliveryStatusScheduled {
		d.Status = DeliveryStatusOpened
		changed = true
	}
	if changed {
		d.UpdatedAt = now
	}
	return changed
}

// ApplyCompleted records challenge completion (e.g. a solve-link click).
// CompletedAt is set once; the status moves to completed unless the record
// already failed or completed.
func (d *DeliveryRecord) ApplyCompleted(now time.Time) bool {
	if d.CompletedAt != nil || d.Status.Terminal() {
		return false
	}
	t := now
	d.CompletedAt = &t
	d.Status = DeliveryStatusCompleted
	d.UpdatedAt = now
	return true
}

// ApplyFailed records a bounce or permanent provider failure.
func (d *DeliveryRecord) ApplyFailed(now time.Time, reason string) bool {
	if d.Status.Terminal() {
		return false
	}
	d.Status = DeliveryStatusFailed
	d.Meta.FailureReason = reason
	d.UpdatedAt = now
	return true
}

// RecordClick accumulates click metadata. Clicks always count, regardless of
// status; history is capped to bound meta growth.
func (d *DeliveryRecord) RecordClick(now time.Time, url string) {
	d.Meta.ClickCount++
	if len(d.Meta.ClickHistory) < maxClickHistory {
		d.Meta.ClickHistory = append(d.Meta.ClickHistory, ClickEvent{URL: url, ClickedAt: now})
	}
	d.UpdatedAt = now
}
