package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/store"
)

func makeTestEmail(id, recipient string, scheduledFor time.Time) *domain.EmailQueueItem {
	now := time.Now()
	return &domain.EmailQueueItem{
		ID:           id,
		Recipient:    recipient,
		Subject:      "Your daily challenge",
		BodyHTML:     "<p>solve it</p>",
		Kind:         domain.EmailKindChallenge,
		Status:       domain.EmailStatusPending,
		MaxRetries:   domain.DefaultMaxRetries,
		ScheduledFor: scheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestCreateAndGetEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := makeTestEmail("eml-1", "q@example.com", time.Now())
	if err := s.CreateEmail(ctx, e); err != nil {
		t.Fatalf("CreateEmail: %v", err)
	}

	got, err := s.GetEmail(ctx, "eml-1")
	if err != nil {
		t.Fatalf("GetEmail: %v", err)
	}
	if got.Recipient != "q@example.com" {
		t.Errorf("Recipient: got %q", got.Recipient)
	}
	if got.Status != domain.EmailStatusPending {
		t.Errorf("Status: got %q, want pending", got.Status)
	}
	if got.RetryCount != 0 {
		t.Errorf("RetryCount: got %d, want 0", got.RetryCount)
	}
	if got.MaxRetries != domain.DefaultMaxRetries {
		t.Errorf("MaxRetries: got %d, want %d", got.MaxRetries, domain.DefaultMaxRetries)
	}
}

func TestGetEmail_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetEmail(ctx, "nonexistent")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *store.Error, got %T: %v", err, err)
	}
}

func TestUpdateEmail_SentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := makeTestEmail("eml-2", "s@example.com", time.Now())
	if err := s.CreateEmail(ctx, e); err != nil {
		t.Fatalf("CreateEmail: %v", err)
	}

	e.MarkSent(time.Now(), "provider-msg-123")
	if err := s.UpdateEmail(ctx, e); err != nil {
		t.Fatalf("UpdateEmail: %v", err)
	}

	got, err := s.GetEmail(ctx, "eml-2")
	if err != nil {
		t.Fatalf("GetEmail: %v", err)
	}
	if got.Status != domain.EmailStatusSent {
		t.Errorf("Status: got %q, want sent", got.Status)
	}
	if got.ProviderID != "provider-msg-123" {
		t.Errorf("ProviderID: got %q", got.ProviderID)
	}
	if got.SentAt == nil {
		t.Error("SentAt: expected non-nil")
	}
}

func TestUpdateEmail_FailedAttemptRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := makeTestEmail("eml-3", "f@example.com", time.Now())
	if err := s.CreateEmail(ctx, e); err != nil {
		t.Fatalf("CreateEmail: %v", err)
	}

	backoff := []time.Duration{5 * time.Minute, 30 * time.Minute, 2 * time.Hour}
	e.MarkAttemptFailed(time.Now(), "connection refused", backoff)
	if err := s.UpdateEmail(ctx, e); err != nil {
		t.Fatalf("UpdateEmail: %v", err)
	}

	got, err := s.GetEmail(ctx, "eml-3")
	if err != nil {
		t.Fatalf("GetEmail: %v", err)
	}
	if got.Status != domain.EmailStatusPending {
		t.Errorf("Status: got %q, want pending", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount: got %d, want 1", got.RetryCount)
	}
	if got.ErrorMessage != "connection refused" {
		t.Errorf("ErrorMessage: got %q", got.ErrorMessage)
	}
	if got.LastRetryAt == nil {
		t.Error("LastRetryAt: expected non-nil")
	}
}

func TestListDispatchableEmails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()

	// Due pending items, out of insertion order.
	late := makeTestEmail("eml-late", "late@example.com", now.Add(-1*time.Minute))
	early := makeTestEmail("eml-early", "early@example.com", now.Add(-10*time.Minute))

	// Not yet due.
	future := makeTestEmail("eml-future", "future@example.com", now.Add(1*time.Hour))

	// Terminal statuses never match.
	sent := makeTestEmail("eml-sent", "sent@example.com", now.Add(-5*time.Minute))
	sent.MarkSent(now, "pid-1")
	cancelled := makeTestEmail("eml-cancelled", "c@example.com", now.Add(-5*time.Minute))
	cancelled.Status = domain.EmailStatusCancelled

	for _, e := range []*domain.EmailQueueItem{late, early, future, sent, cancelled} {
		if err := s.CreateEmail(ctx, e); err != nil {
			t.Fatalf("CreateEmail %s: %v", e.ID, err)
		}
	}

	got, err := s.ListDispatchableEmails(ctx, now, 5*time.Minute, 10)
	if err != nil {
		t.Fatalf("ListDispatchableEmails: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 dispatchable items, got %d", len(got))
	}
	// Oldest scheduled_for first.
	if got[0].ID != "eml-early" {
		t.Errorf("order: got %q first, want eml-early", got[0].ID)
	}
	if got[1].ID != "eml-late" {
		t.Errorf("order: got %q second, want eml-late", got[1].ID)
	}
}

func TestListDispatchableEmails_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	for i, id := range []string{"eml-a", "eml-b", "eml-c"} {
		e := makeTestEmail(id, id+"@example.com", now.Add(time.Duration(-i)*time.Minute))
		if err := s.CreateEmail(ctx, e); err != nil {
			t.Fatalf("CreateEmail %s: %v", id, err)
		}
	}

	got, err := s.ListDispatchableEmails(ctx, now, 5*time.Minute, 2)
	if err != nil {
		t.Fatalf("ListDispatchableEmails: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items with limit, got %d", len(got))
	}
}

func TestListDispatchableEmails_FailedWithRetriesLeft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()

	// Failed with retries left and a stale last attempt: eligible again.
	stale := makeTestEmail("eml-stale", "stale@example.com", now.Add(-1*time.Hour))
	stale.Status = domain.EmailStatusFailed
	stale.RetryCount = 1
	staleAt := now.Add(-10 * time.Minute)
	stale.LastRetryAt = &staleAt

	// Failed moments ago: still cooling down.
	hot := makeTestEmail("eml-hot", "hot@example.com", now.Add(-1*time.Hour))
	hot.Status = domain.EmailStatusFailed
	hot.RetryCount = 1
	hotAt := now.Add(-1 * time.Minute)
	hot.LastRetryAt = &hotAt

	// Terminally failed: retries exhausted.
	dead := makeTestEmail("eml-dead", "dead@example.com", now.Add(-1*time.Hour))
	dead.Status = domain.EmailStatusFailed
	dead.RetryCount = dead.MaxRetries

	for _, e := range []*domain.EmailQueueItem{stale, hot, dead} {
		if err := s.CreateEmail(ctx, e); err != nil {
			t.Fatalf("CreateEmail %s: %v", e.ID, err)
		}
	}

	got, err := s.ListDispatchableEmails(ctx, now, 5*time.Minute, 10)
	if err != nil {
		t.Fatalf("ListDispatchableEmails: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 eligible item, got %d", len(got))
	}
	if got[0].ID != "eml-stale" {
		t.Errorf("eligible: got %q, want eml-stale", got[0].ID)
	}
}

func TestGetEmailForDelivery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	challenge := makeTestEmail("eml-ch", "u@example.com", time.Now())
	challenge.DeliveryID = "dlv-link"
	solution := makeTestEmail("eml-sol", "u@example.com", time.Now())
	solution.DeliveryID = "dlv-link"
	solution.Kind = domain.EmailKindSolution

	if err := s.CreateEmail(ctx, challenge); err != nil {
		t.Fatalf("CreateEmail challenge: %v", err)
	}
	if err := s.CreateEmail(ctx, solution); err != nil {
		t.Fatalf("CreateEmail solution: %v", err)
	}

	got, err := s.GetEmailForDelivery(ctx, "dlv-link", domain.EmailKindSolution)
	if err != nil {
		t.Fatalf("GetEmailForDelivery: %v", err)
	}
	if got.ID != "eml-sol" {
		t.Errorf("ID: got %q, want eml-sol", got.ID)
	}

	_, err = s.GetEmailForDelivery(ctx, "dlv-none", domain.EmailKindChallenge)
	if err == nil {
		t.Fatal("expected error for unlinked delivery, got nil")
	}
}

func TestCountEmailsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	pending := makeTestEmail("eml-cp", "p@example.com", now)
	sent := makeTestEmail("eml-cs", "s@example.com", now)
	sent.MarkSent(now, "pid-2")

	if err := s.CreateEmail(ctx, pending); err != nil {
		t.Fatalf("CreateEmail pending: %v", err)
	}
	if err := s.CreateEmail(ctx, sent); err != nil {
		t.Fatalf("CreateEmail sent: %v", err)
	}

	counts, err := s.CountEmailsByStatus(ctx)
	if err != nil {
		t.Fatalf("CountEmailsByStatus: %v", err)
	}
	if counts[domain.EmailStatusPending] != 1 {
		t.Errorf("pending: got %d, want 1", counts[domain.EmailStatusPending])
	}
	if counts[domain.EmailStatusSent] != 1 {
		t.Errorf("sent: got %d, want 1", counts[domain.EmailStatusSent])
	}
}
