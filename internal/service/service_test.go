package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/store"
	"github.com/codedrip/codedrip-server/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := sqlite.Open(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testServiceLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testDeliveryConfig() config.DeliveryConfig {
	return config.DeliveryConfig{
		Hour:                  9,
		CooldownDays:          30,
		SolutionDelay:         24 * time.Hour,
		SolutionSweepInterval: 5 * time.Minute,
	}
}

func testDispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{
		DrainInterval: 30 * time.Second,
		BatchSize:     50,
		MaxRetries:    domain.DefaultMaxRetries,
		RetryBackoff:  config.DefaultRetryBackoff,
		RetryCooldown: 5 * time.Minute,
	}
}

func testAppConfig() config.AppConfig {
	return config.AppConfig{
		Environment: "development",
		BaseURL:     "https://codedrip.dev",
	}
}

func createTag(t *testing.T, s store.Store, id, name string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, s.CreateTag(context.Background(), &domain.Tag{
		ID:        id,
		Name:      name,
		Slug:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func createUser(t *testing.T, s store.Store, id, email string, tagIDs ...string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, s.CreateUser(context.Background(), &domain.User{
		ID:            id,
		Email:         email,
		Active:        true,
		EmailVerified: true,
		TagIDs:        tagIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))
}

func createProblem(t *testing.T, s store.Store, id, title string, tagIDs ...string) {
	t.Helper()
	createProblemAt(t, s, id, title, time.Now(), tagIDs...)
}

func createProblemAt(t *testing.T, s store.Store, id, title string, createdAt time.Time, tagIDs ...string) {
	t.Helper()
	require.NoError(t, s.CreateProblem(context.Background(), &domain.Problem{
		ID:        id,
		Title:     title,
		Status:    domain.ProblemStatusApproved,
		TagIDs:    tagIDs,
		Solution:  "solution for " + title,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}))
}

func addEdge(t *testing.T, s store.Store, parentID, childID string) {
	t.Helper()
	require.NoError(t, s.AddTagEdge(context.Background(), &domain.TagEdge{
		ParentID:     parentID,
		ChildID:      childID,
		Relationship: domain.EdgeRelationshipHierarchy,
		CreatedAt:    time.Now(),
	}))
}

func createDeliveredRecord(t *testing.T, s store.Store, id, userID, problemID string, deliveredAt time.Time) {
	t.Helper()
	now := time.Now()
	require.NoError(t, s.CreateDelivery(context.Background(), &domain.DeliveryRecord{
		ID:          id,
		UserID:      userID,
		ProblemID:   problemID,
		Channel:     domain.ChannelEmail,
		Status:      domain.DeliveryStatusDelivered,
		ScheduledAt: deliveredAt,
		DeliveredAt: &deliveredAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}
