package api

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/mailer"
	"github.com/codedrip/codedrip-server/internal/service"
	"github.com/codedrip/codedrip-server/internal/store"
	"github.com/codedrip/codedrip-server/internal/store/sqlite"
)

// testWebhookSecret signs provider events in webhook tests.
const testWebhookSecret = "test-webhook-secret"

// testEnvelope mirrors the response envelope for decoding in tests.
type testEnvelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// testServer wraps the API server for handler tests.
type testServer struct {
	*Server
	api    humatest.TestAPI
	store  store.Store
	sender *mailer.Mock
}

// setupTestServer builds a server over a fresh sqlite store with real
// services and a mock mail sender.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := sqlite.Open(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := slog.New(slog.DiscardHandler)

	appCfg := config.AppConfig{Environment: "development", BaseURL: "https://codedrip.dev"}
	deliveryCfg := config.DeliveryConfig{
		Hour:                  9,
		CooldownDays:          30,
		SolutionDelay:         24 * time.Hour,
		SolutionSweepInterval: 5 * time.Minute,
	}
	dispatchCfg := config.DispatchConfig{
		DrainInterval: 30 * time.Second,
		BatchSize:     50,
		MaxRetries:    domain.DefaultMaxRetries,
		RetryBackoff:  config.DefaultRetryBackoff,
		RetryCooldown: 5 * time.Minute,
	}

	sender := mailer.NewMock()
	tagService := service.NewTagService(st, logger)
	selectorService := service.NewSelectorService(st, tagService, deliveryCfg, logger)

	services := &Services{
		Tag:      tagService,
		Delivery: service.NewDeliveryService(st, selectorService, appCfg, deliveryCfg, dispatchCfg, logger),
		Solution: service.NewSolutionService(st, appCfg, deliveryCfg, dispatchCfg, logger),
		Dispatch: service.NewDispatchService(st, sender, dispatchCfg, logger),
		Webhook:  service.NewWebhookService(st, config.WebhookConfig{Secret: testWebhookSecret}, logger),
		Report:   service.NewReportService(st, logger),
	}

	s := NewServer(st, services, logger)

	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.api),
		store:  st,
		sender: sender,
	}
}

// === Fixture helpers ===

func (ts *testServer) createTag(t *testing.T, id, name string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, ts.store.CreateTag(context.Background(), &domain.Tag{
		ID:        id,
		Name:      name,
		Slug:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func (ts *testServer) createUser(t *testing.T, id, email string, tagIDs ...string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, ts.store.CreateUser(context.Background(), &domain.User{
		ID:            id,
		Email:         email,
		Active:        true,
		EmailVerified: true,
		TagIDs:        tagIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))
}

func (ts *testServer) createProblem(t *testing.T, id, title string, tagIDs ...string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, ts.store.CreateProblem(context.Background(), &domain.Problem{
		ID:        id,
		Title:     title,
		Status:    domain.ProblemStatusApproved,
		TagIDs:    tagIDs,
		Solution:  "solution for " + title,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}
