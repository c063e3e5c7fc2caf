package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/store"
)

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestTag(t, s, "tag-u1", "graphs")
	insertTestTag(t, s, "tag-u2", "greedy")

	now := time.Now()
	u := &domain.User{
		ID:            "user-1",
		Email:         "dev@example.com",
		Active:        true,
		EmailVerified: true,
		TagIDs:        []string{"tag-u1", "tag-u2"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := s.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != "dev@example.com" {
		t.Errorf("Email: got %q, want %q", got.Email, "dev@example.com")
	}
	if !got.Active || !got.EmailVerified {
		t.Errorf("flags: got active=%v verified=%v, want both true", got.Active, got.EmailVerified)
	}
	if len(got.TagIDs) != 2 {
		t.Fatalf("expected 2 tag IDs, got %d", len(got.TagIDs))
	}
	if got.TagIDs[0] != "tag-u1" || got.TagIDs[1] != "tag-u2" {
		t.Errorf("TagIDs: got %v", got.TagIDs)
	}
	if got.LastProblemID != "" {
		t.Errorf("LastProblemID: got %q, want empty", got.LastProblemID)
	}
	if got.LastProblemSentAt != nil {
		t.Errorf("LastProblemSentAt: got %v, want nil", got.LastProblemSentAt)
	}
}

func TestGetUserByEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestUser(t, s, "user-e1", "alice@example.com")

	got, err := s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != "user-e1" {
		t.Errorf("ID: got %q, want %q", got.ID, "user-e1")
	}
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, "nonexistent")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *store.Error, got %T: %v", err, err)
	}
	if storeErr.Code != store.ErrNotFound.Code {
		t.Errorf("expected status %d, got %d", store.ErrNotFound.Code, storeErr.Code)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestUser(t, s, "user-d1", "dup@example.com")

	now := time.Now()
	u2 := &domain.User{
		ID:        "user-d2",
		Email:     "dup@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.CreateUser(ctx, u2)
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestListDeliverableUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	users := []*domain.User{
		{ID: "user-a", Email: "a@example.com", Active: true, EmailVerified: true, CreatedAt: now, UpdatedAt: now},
		{ID: "user-b", Email: "b@example.com", Active: false, EmailVerified: true, CreatedAt: now, UpdatedAt: now},
		{ID: "user-c", Email: "c@example.com", Active: true, EmailVerified: false, CreatedAt: now, UpdatedAt: now},
		{ID: "user-d", Email: "d@example.com", Active: true, EmailVerified: true, CreatedAt: now.Add(time.Second), UpdatedAt: now},
	}
	for _, u := range users {
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser %s: %v", u.ID, err)
		}
	}

	got, err := s.ListDeliverableUsers(ctx)
	if err != nil {
		t.Fatalf("ListDeliverableUsers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deliverable users, got %d", len(got))
	}
	if got[0].ID != "user-a" || got[1].ID != "user-d" {
		t.Errorf("order: got %s, %s", got[0].ID, got[1].ID)
	}
}

func TestUpdateUserLastProblem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestUser(t, s, "user-lp", "lp@example.com")
	insertTestProblem(t, s, "prob-lp", "Two Sum")

	sentAt := time.Now().Truncate(time.Second)
	if err := s.UpdateUserLastProblem(ctx, "user-lp", "prob-lp", sentAt); err != nil {
		t.Fatalf("UpdateUserLastProblem: %v", err)
	}

	got, err := s.GetUser(ctx, "user-lp")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.LastProblemID != "prob-lp" {
		t.Errorf("LastProblemID: got %q, want %q", got.LastProblemID, "prob-lp")
	}
	if got.LastProblemSentAt == nil || got.LastProblemSentAt.Unix() != sentAt.Unix() {
		t.Errorf("LastProblemSentAt: got %v, want %v", got.LastProblemSentAt, sentAt)
	}

	// Unknown user should report not found.
	err = s.UpdateUserLastProblem(ctx, "nonexistent", "prob-lp", sentAt)
	if err == nil {
		t.Fatal("expected error for unknown user, got nil")
	}
}

func TestSubscribeUserToTag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestUser(t, s, "user-st", "st@example.com")
	insertTestTag(t, s, "tag-st", "bit manipulation")

	if err := s.SubscribeUserToTag(ctx, "user-st", "tag-st"); err != nil {
		t.Fatalf("SubscribeUserToTag: %v", err)
	}
	// Re-subscribing is a no-op.
	if err := s.SubscribeUserToTag(ctx, "user-st", "tag-st"); err != nil {
		t.Fatalf("SubscribeUserToTag (repeat): %v", err)
	}

	got, err := s.GetUser(ctx, "user-st")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if len(got.TagIDs) != 1 || got.TagIDs[0] != "tag-st" {
		t.Errorf("TagIDs: got %v, want [tag-st]", got.TagIDs)
	}
}
