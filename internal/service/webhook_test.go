package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/errors"
	"github.com/codedrip/codedrip-server/internal/store"
)

func newWebhookService(t *testing.T, secret string) (*WebhookService, store.Store) {
	t.Helper()
	s := newTestStore(t)
	svc := NewWebhookService(s, config.WebhookConfig{Secret: secret}, testServiceLogger())
	return svc, s
}

// seedWebhookFixture creates a user, a problem, a scheduled delivery record
// and its correlated challenge queue item.
func seedWebhookFixture(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	createTag(t, s, "tag-py", "python")
	createProblem(t, s, "prob-1", "Two Sum", "tag-py")
	createUser(t, s, "user-1", "alice@example.com", "tag-py")

	require.NoError(t, s.CreateDelivery(ctx, &domain.DeliveryRecord{
		ID:          "dlv-1",
		UserID:      "user-1",
		ProblemID:   "prob-1",
		Channel:     domain.ChannelEmail,
		Status:      domain.DeliveryStatusScheduled,
		ScheduledAt: now,
		Meta:        domain.DeliveryMeta{CorrelationID: "eml-1"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
	require.NoError(t, s.CreateEmail(ctx, &domain.EmailQueueItem{
		ID:           "eml-1",
		Recipient:    "alice@example.com",
		Subject:      "Daily challenge: Two Sum",
		BodyHTML:     "<p>body</p>",
		ProblemID:    "prob-1",
		DeliveryID:   "dlv-1",
		Kind:         domain.EmailKindChallenge,
		Status:       domain.EmailStatusSent,
		MaxRetries:   domain.DefaultMaxRetries,
		ScheduledFor: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
}

func eventPayload(t *testing.T, eventType string, data WebhookEventData) []byte {
	t.Helper()
	payload, err := json.Marshal(WebhookEvent{Type: eventType, Data: data})
	require.NoError(t, err)
	return payload
}

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	svc, _ := newWebhookService(t, "hunter2")
	payload := []byte(`{"type":"delivered"}`)
	sig := signPayload("hunter2", payload)

	assert.True(t, svc.VerifySignature(payload, sig))
	assert.True(t, svc.VerifySignature(payload, "sha256="+sig))
	assert.False(t, svc.VerifySignature(payload, signPayload("wrong", payload)))
	assert.False(t, svc.VerifySignature([]byte(`{"type":"opened"}`), sig))
}

func TestVerifySignature_NoSecretSkipsCheck(t *testing.T) {
	svc, _ := newWebhookService(t, "")
	assert.True(t, svc.VerifySignature([]byte("anything"), ""))
}

func TestHandleEvent_RejectsTamperedPayload(t *testing.T) {
	svc, s := newWebhookService(t, "hunter2")
	seedWebhookFixture(t, s)

	payload := eventPayload(t, "delivered", WebhookEventData{EmailID: "eml-1"})
	sig := signPayload("hunter2", payload)
	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'x'

	_, err := svc.HandleEvent(context.Background(), tampered, sig)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestHandleEvent_RejectsMalformedJSON(t *testing.T) {
	svc, _ := newWebhookService(t, "")

	_, err := svc.HandleEvent(context.Background(), []byte("{not json"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestHandleEvent_RejectsMissingType(t *testing.T) {
	svc, _ := newWebhookService(t, "")

	_, err := svc.HandleEvent(context.Background(), []byte(`{"data":{"email_id":"eml-1"}}`), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestHandleEvent_DeliveredByCorrelationID(t *testing.T) {
	svc, s := newWebhookService(t, "")
	seedWebhookFixture(t, s)
	ctx := context.Background()

	payload := eventPayload(t, "delivered", WebhookEventData{EmailID: "eml-1"})
	result, err := svc.HandleEvent(ctx, payload, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookUpdated, result.Status)
	assert.Equal(t, "dlv-1", result.DeliveryID)

	record, err := s.GetDelivery(ctx, "dlv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusDelivered, record.Status)
	require.NotNil(t, record.DeliveredAt)
}

func TestHandleEvent_DuplicateDeliveredIgnored(t *testing.T) {
	svc, s := newWebhookService(t, "")
	seedWebhookFixture(t, s)
	ctx := context.Background()

	payload := eventPayload(t, "delivered", WebhookEventData{EmailID: "eml-1"})
	_, err := svc.HandleEvent(ctx, payload, "")
	require.NoError(t, err)

	result, err := svc.HandleEvent(ctx, payload, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, result.Status)
}

func TestHandleEvent_OutOfOrderOpenedThenDelivered(t *testing.T) {
	svc, s := newWebhookService(t, "")
	seedWebhookFixture(t, s)
	ctx := context.Background()

	// The open beats the delivery confirmation to the webhook.
	opened := eventPayload(t, "opened", WebhookEventData{EmailID: "eml-1"})
	result, err := svc.HandleEvent(ctx, opened, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookUpdated, result.Status)

	delivered := eventPayload(t, "delivered", WebhookEventData{EmailID: "eml-1"})
	result, err = svc.HandleEvent(ctx, delivered, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookUpdated, result.Status)

	// The late delivered event fills in DeliveredAt without regressing the
	// status.
	record, err := s.GetDelivery(ctx, "dlv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusOpened, record.Status)
	require.NotNil(t, record.OpenedAt)
	require.NotNil(t, record.DeliveredAt)
}

func TestHandleEvent_ClickOnSolveLinkCompletes(t *testing.T) {
	svc, s := newWebhookService(t, "")
	seedWebhookFixture(t, s)
	ctx := context.Background()

	payload := eventPayload(t, "clicked", WebhookEventData{
		EmailID: "eml-1",
		URL:     "https://codedrip.dev/p/prob-1",
	})
	result, err := svc.HandleEvent(ctx, payload, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookUpdated, result.Status)

	record, err := s.GetDelivery(ctx, "dlv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusCompleted, record.Status)
	require.NotNil(t, record.CompletedAt)
	assert.Equal(t, 1, record.Meta.ClickCount)
	require.Len(t, record.Meta.ClickHistory, 1)
	assert.Equal(t, "https://codedrip.dev/p/prob-1", record.Meta.ClickHistory[0].URL)
}

func TestHandleEvent_ClickOnOtherLinkOnlyCounts(t *testing.T) {
	svc, s := newWebhookService(t, "")
	seedWebhookFixture(t, s)
	ctx := context.Background()

	payload := eventPayload(t, "clicked", WebhookEventData{
		EmailID: "eml-1",
		URL:     "https://codedrip.dev/unsubscribe",
	})
	_, err := svc.HandleEvent(ctx, payload, "")
	require.NoError(t, err)

	record, err := s.GetDelivery(ctx, "dlv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusScheduled, record.Status)
	assert.Nil(t, record.CompletedAt)
	assert.Equal(t, 1, record.Meta.ClickCount)
}

func TestHandleEvent_BouncedFailsDelivery(t *testing.T) {
	svc, s := newWebhookService(t, "")
	seedWebhookFixture(t, s)
	ctx := context.Background()

	payload := eventPayload(t, "bounced", WebhookEventData{
		EmailID: "eml-1",
		Reason:  "mailbox full",
	})
	result, err := svc.HandleEvent(ctx, payload, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookUpdated, result.Status)

	record, err := s.GetDelivery(ctx, "dlv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusFailed, record.Status)
	assert.Equal(t, "mailbox full", record.Meta.FailureReason)
}

func TestHandleEvent_UnknownTypeIgnored(t *testing.T) {
	svc, s := newWebhookService(t, "")
	seedWebhookFixture(t, s)

	payload := eventPayload(t, "complained", WebhookEventData{EmailID: "eml-1"})
	result, err := svc.HandleEvent(context.Background(), payload, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, result.Status)
}

func TestHandleEvent_UnlinkedEvent(t *testing.T) {
	svc, s := newWebhookService(t, "")
	seedWebhookFixture(t, s)

	payload := eventPayload(t, "delivered", WebhookEventData{
		EmailID: "eml-ghost",
		To:      "stranger@example.com",
	})
	result, err := svc.HandleEvent(context.Background(), payload, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookUnlinked, result.Status)
	assert.Empty(t, result.DeliveryID)
}

func TestHandleEvent_MatchesByRecipientAndURL(t *testing.T) {
	svc, s := newWebhookService(t, "")
	seedWebhookFixture(t, s)
	ctx := context.Background()
	now := time.Now()

	// A second record for the same user; the URL should disambiguate.
	createProblem(t, s, "prob-2", "Three Sum", "tag-py")
	require.NoError(t, s.CreateDelivery(ctx, &domain.DeliveryRecord{
		ID:          "dlv-2",
		UserID:      "user-1",
		ProblemID:   "prob-2",
		Channel:     domain.ChannelEmail,
		Status:      domain.DeliveryStatusScheduled,
		ScheduledAt: now.Add(time.Minute),
		CreatedAt:   now,
		UpdatedAt:   now,
	}))

	payload := eventPayload(t, "delivered", WebhookEventData{
		To:  "alice@example.com",
		URL: "https://codedrip.dev/p/prob-1",
	})
	result, err := svc.HandleEvent(ctx, payload, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookUpdated, result.Status)
	assert.Equal(t, "dlv-1", result.DeliveryID)
}

func TestHandleEvent_MatchesBySubjectTitle(t *testing.T) {
	svc, s := newWebhookService(t, "")
	seedWebhookFixture(t, s)
	ctx := context.Background()

	payload := eventPayload(t, "opened", WebhookEventData{
		To:      "alice@example.com",
		Subject: "Daily challenge: Two Sum",
	})
	result, err := svc.HandleEvent(ctx, payload, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookUpdated, result.Status)
	assert.Equal(t, "dlv-1", result.DeliveryID)
}
