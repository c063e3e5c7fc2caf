package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/store"
)

// userColumns is the ordered list of columns selected in user queries.
// Must match the scan order in scanUser.
const userColumns = `id, email, active, email_verified, last_problem_id, last_problem_sent_at, created_at, updated_at`

// scanUser scans a sql.Row (or sql.Rows via its Scan method) into a domain.User.
// TagIDs are left nil; the caller loads them separately.
func scanUser(scanner interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var u domain.User

	var (
		active        int
		emailVerified int
		lastProblemID sql.NullString
		lastSentAt    sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := scanner.Scan(
		&u.ID,
		&u.Email,
		&active,
		&emailVerified,
		&lastProblemID,
		&lastSentAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Active = active != 0
	u.EmailVerified = emailVerified != 0
	if lastProblemID.Valid {
		u.LastProblemID = lastProblemID.String
	}
	u.LastProblemSentAt, err = parseNullableTime(lastSentAt)
	if err != nil {
		return nil, err
	}

	u.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	return &u, nil
}

// CreateUser inserts a new user together with its tag subscriptions.
// Returns store.ErrAlreadyExists on duplicate email.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, active, email_verified, last_problem_id, last_problem_sent_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Email,
		boolToInt(u.Active),
		boolToInt(u.EmailVerified),
		nullableString(u.LastProblemID),
		formatNullableTime(u.LastProblemSentAt),
		formatTime(u.CreatedAt),
		formatTime(u.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}

	for _, tagID := range u.TagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_tags (user_id, tag_id, created_at)
			VALUES (?, ?, ?)`,
			u.ID, tagID, formatTime(u.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert user tag %s: %w", tagID, err)
		}
	}

	return tx.Commit()
}

// GetUser retrieves a user by ID, including tag subscriptions.
// Returns store.ErrUserNotFound if the user does not exist.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, userID)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if u.TagIDs, err = s.getUserTagIDs(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email, including tag subscriptions.
// Returns store.ErrUserNotFound if no user has that email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if u.TagIDs, err = s.getUserTagIDs(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// ListDeliverableUsers returns all active, email-verified users with their
// tag subscriptions, ordered by creation time.
func (s *Store) ListDeliverableUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE active = 1 AND email_verified = 1 ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, u := range users {
		if u.TagIDs, err = s.getUserTagIDs(ctx, u.ID); err != nil {
			return nil, err
		}
	}

	if users == nil {
		users = []*domain.User{}
	}
	return users, nil
}

// UpdateUserLastProblem updates the denormalized last-delivery cache.
func (s *Store) UpdateUserLastProblem(ctx context.Context, userID, problemID string, sentAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET last_problem_id = ?, last_problem_sent_at = ?, updated_at = ?
		WHERE id = ?`,
		problemID,
		formatTime(sentAt),
		formatTime(time.Now()),
		userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

// SubscribeUserToTag adds a tag subscription. Adding an existing
// subscription is a no-op.
func (s *Store) SubscribeUserToTag(ctx context.Context, userID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_tags (user_id, tag_id, created_at)
		VALUES (?, ?, ?)`,
		userID, tagID, formatTime(time.Now()),
	)
	return err
}

// getUserTagIDs loads the subscribed tag ids for a user.
func (s *Store) getUserTagIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag_id FROM user_tags WHERE user_id = ? ORDER BY tag_id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// boolToInt converts a bool for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableString converts an empty string to NULL for storage.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
