package sqlite

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codedrip/codedrip-server/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)

	// Verify WAL mode is set.
	var journalMode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected wal, got %s", journalMode)
	}

	// Verify foreign keys are enabled.
	var fk int
	err = s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk)
	if err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("expected foreign_keys=1, got %d", fk)
	}

	// Verify tables exist.
	tables := []string{
		"users", "tags", "tag_edges", "user_tags",
		"problems", "problem_tags", "deliveries", "email_queue",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestOpenClose(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	s, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// Re-open should work (schema is idempotent).
	s2, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("re-open store: %v", err)
	}
	defer s2.Close()
}

// insertTestUser creates a deliverable user with no tag subscriptions.
func insertTestUser(t *testing.T, s *Store, id, email string) {
	t.Helper()
	now := time.Now()
	u := &domain.User{
		ID:            id,
		Email:         email,
		Active:        true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("insert test user %s: %v", id, err)
	}
}

// insertTestProblem creates an approved problem with the given tags.
func insertTestProblem(t *testing.T, s *Store, id, title string, tagIDs ...string) {
	t.Helper()
	now := time.Now()
	p := &domain.Problem{
		ID:        id,
		Title:     title,
		Status:    domain.ProblemStatusApproved,
		TagIDs:    tagIDs,
		Solution:  "solution for " + title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateProblem(context.Background(), p); err != nil {
		t.Fatalf("insert test problem %s: %v", id, err)
	}
}

// insertTestTag creates a tag with a normalized name and matching slug.
func insertTestTag(t *testing.T, s *Store, id, name string) {
	t.Helper()
	now := time.Now()
	tag := &domain.Tag{
		ID:        id,
		Name:      name,
		Slug:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateTag(context.Background(), tag); err != nil {
		t.Fatalf("insert test tag %s: %v", id, err)
	}
}
