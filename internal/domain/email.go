package domain

import "time"

// EmailStatus represents the state of an outbound email queue item.
type EmailStatus string

const (
	// EmailStatusPending means the item is waiting to be sent.
	EmailStatusPending EmailStatus = "pending"
	// EmailStatusSent means the provider accepted the message. Terminal.
	EmailStatusSent EmailStatus = "sent"
	// EmailStatusFailed means the last attempt failed. Terminal once
	// RetryCount reaches MaxRetries.
	EmailStatusFailed EmailStatus = "failed"
	// EmailStatusCancelled means an operator neutralized the item. Terminal.
	EmailStatusCancelled EmailStatus = "cancelled"
)

// EmailKind distinguishes what a queue item carries.
type EmailKind string

const (
	// EmailKindChallenge is the daily problem email.
	EmailKindChallenge EmailKind = "challenge"
	// EmailKindSolution is the follow-up solution email.
	EmailKindSolution EmailKind = "solution"
)

// DefaultMaxRetries bounds send attempts when the producer does not override it.
const DefaultMaxRetries = 3

// EmailQueueItem is a durable outbound email. Items are consumed exactly once
// to sent or terminal failed by the dispatch workers; retries are bounded by
// MaxRetries with a backoff schedule owned by the dispatcher.
type EmailQueueItem struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	BodyHTML  string `json:"body_html"`
	BodyText  string `json:"body_text,omitempty"`

	// Correlation back to the delivery engine. ProblemID is optional;
	// DeliveryID links the item to the DeliveryRecord it serves.
	ProblemID  string    `json:"problem_id,omitempty"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	Kind       EmailKind `json:"kind"`

	Status       EmailStatus `json:"status"`
	RetryCount   int         `json:"retry_count"`
	MaxRetries   int         `json:"max_retries"`
	LastRetryAt  *time.Time  `json:"last_retry_at,omitempty"`
	ScheduledFor time.Time   `json:"scheduled_for"` // Supports future/delayed delivery
	SentAt       *time.Time  `json:"sent_at,omitempty"`
	ProviderID   string      `json:"provider_id,omitempty"` // Provider message id from the send call
	ErrorMessage string      `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal returns true if the item will never be attempted again.
func (e *EmailQueueItem) Terminal() bool {
	switch e.Status {
	case EmailStatusSent, EmailStatusCancelled:
		return true
	case EmailStatusFailed:
		return e.RetryCount >= e.MaxRetries
	default:
		return false
	}
}

// MarkSent transitions the item to sent with the provider's message id.
func (e *EmailQueueItem) MarkSent(now time.Time, providerID string) {
	e.Status = EmailStatusSent
	e.ProviderID = providerID
	t := now
	e.SentAt = &t
	e.UpdatedAt = now
}

// MarkAttemptFailed records a failed send attempt. An item that had retries
// left goes back to pending with ScheduledFor pushed out by backoff; an item
// that fails with RetryCount already at MaxRetries becomes terminally failed.
// RetryCount never exceeds MaxRetries.
func (e *EmailQueueItem) MarkAttemptFailed(now time.Time, sendErr string, backoff []time.Duration) {
	hadRetriesLeft := e.RetryCount < e.MaxRetries

	if hadRetriesLeft {
		e.RetryCount++
	}
	t := now
	e.LastRetryAt = &t
	e.ErrorMessage = sendErr
	e.UpdatedAt = now

	if hadRetriesLeft {
		e.Status = EmailStatusPending
		e.ScheduledFor = now.Add(BackoffFor(e.RetryCount, backoff))
		return
	}
	e.Status = EmailStatusFailed
}

// BackoffFor returns the wait before the next attempt after retryCount
// failures. The index clamps to the last entry beyond the table's length.
func BackoffFor(retryCount int, backoff []time.Duration) time.Duration {
	if len(backoff) == 0 {
		return 0
	}
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoff) {
		idx = len(backoff) - 1
	}
	return backoff[idx]
}
