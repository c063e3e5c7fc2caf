package mailer

import (
	"context"
	"encoding/json/v2"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testItem() *domain.EmailQueueItem {
	now := time.Now()
	return &domain.EmailQueueItem{
		ID:           "eml-test",
		Recipient:    "dev@example.com",
		Subject:      "Your daily challenge",
		BodyHTML:     "<p>solve it</p>",
		Kind:         domain.EmailKindChallenge,
		Status:       domain.EmailStatusPending,
		MaxRetries:   domain.DefaultMaxRetries,
		ScheduledFor: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newTestClient(baseURL string) *Client {
	return NewClient(config.MailerConfig{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		FromEmail: "challenges@codedrip.dev",
		FromName:  "CodeDrip",
		RPS:       100,
		Burst:     100,
	}, testLogger())
}

func TestClientSend(t *testing.T) {
	var gotAuth string
	var gotPayload sendRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.UnmarshalRead(r.Body, &gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message_id":"msg-42"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	defer c.Close()

	providerID, err := c.Send(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if providerID != "msg-42" {
		t.Errorf("providerID: got %q, want msg-42", providerID)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization: got %q", gotAuth)
	}
	if gotPayload.To != "dev@example.com" {
		t.Errorf("To: got %q", gotPayload.To)
	}
	if gotPayload.CorrelationID != "eml-test" {
		t.Errorf("CorrelationID: got %q, want the queue item id", gotPayload.CorrelationID)
	}
}

func TestClientSend_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	defer c.Close()

	_, err := c.Send(context.Background(), testItem())
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if !Retryable(err) {
		t.Error("rate limited sends should be retryable")
	}
}

func TestClientSend_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"invalid recipient"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	defer c.Close()

	_, err := c.Send(context.Background(), testItem())
	if !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected, got %v", err)
	}
	if Retryable(err) {
		t.Error("rejected sends should not be retryable")
	}
}

func TestClientSend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	defer c.Close()

	_, err := c.Send(context.Background(), testItem())
	if !errors.Is(err, ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}
	if !Retryable(err) {
		t.Error("provider errors should be retryable")
	}
}

func TestMockSender(t *testing.T) {
	m := NewMock()

	id, err := m.Send(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id == "" {
		t.Error("expected non-empty provider id")
	}
	if m.SentCount() != 1 {
		t.Errorf("SentCount: got %d, want 1", m.SentCount())
	}

	m.FailFor["dev@example.com"] = ErrProvider
	if _, err := m.Send(context.Background(), testItem()); !errors.Is(err, ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}

	m.Reset()
	if m.SentCount() != 0 {
		t.Errorf("SentCount after reset: got %d, want 0", m.SentCount())
	}
}
