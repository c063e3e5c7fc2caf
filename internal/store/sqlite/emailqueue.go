package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/store"
)

const emailColumns = `id, recipient, subject, body_html, body_text, problem_id, delivery_id, kind, status, retry_count, max_retries, last_retry_at, scheduled_for, sent_at, provider_id, error_message, created_at, updated_at`

// scanEmail scans a row into a domain.EmailQueueItem.
func scanEmail(scanner interface{ Scan(dest ...any) error }) (*domain.EmailQueueItem, error) {
	var e domain.EmailQueueItem

	var (
		problemID    sql.NullString
		deliveryID   sql.NullString
		kind         string
		status       string
		lastRetryAt  sql.NullString
		scheduledFor string
		sentAt       sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := scanner.Scan(
		&e.ID,
		&e.Recipient,
		&e.Subject,
		&e.BodyHTML,
		&e.BodyText,
		&problemID,
		&deliveryID,
		&kind,
		&status,
		&e.RetryCount,
		&e.MaxRetries,
		&lastRetryAt,
		&scheduledFor,
		&sentAt,
		&e.ProviderID,
		&e.ErrorMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if problemID.Valid {
		e.ProblemID = problemID.String
	}
	if deliveryID.Valid {
		e.DeliveryID = deliveryID.String
	}
	e.Kind = domain.EmailKind(kind)
	e.Status = domain.EmailStatus(status)
	if e.LastRetryAt, err = parseNullableTime(lastRetryAt); err != nil {
		return nil, err
	}
	if e.ScheduledFor, err = parseTime(scheduledFor); err != nil {
		return nil, err
	}
	if e.SentAt, err = parseNullableTime(sentAt); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &e, nil
}

// CreateEmail inserts a new email queue item.
func (s *Store) CreateEmail(ctx context.Context, e *domain.EmailQueueItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_queue (id, recipient, subject, body_html, body_text, problem_id, delivery_id, kind, status, retry_count, max_retries, last_retry_at, scheduled_for, sent_at, provider_id, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Recipient,
		e.Subject,
		e.BodyHTML,
		e.BodyText,
		nullableString(e.ProblemID),
		nullableString(e.DeliveryID),
		string(e.Kind),
		string(e.Status),
		e.RetryCount,
		e.MaxRetries,
		formatNullableTime(e.LastRetryAt),
		formatTime(e.ScheduledFor),
		formatNullableTime(e.SentAt),
		e.ProviderID,
		e.ErrorMessage,
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetEmail retrieves a queue item by ID.
// Returns store.ErrEmailNotFound if the item does not exist.
func (s *Store) GetEmail(ctx context.Context, emailID string) (*domain.EmailQueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM email_queue WHERE id = ?`, emailID)

	e, err := scanEmail(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrEmailNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateEmail persists the mutable state of a queue item.
// Returns store.ErrEmailNotFound if the item does not exist.
func (s *Store) UpdateEmail(ctx context.Context, e *domain.EmailQueueItem) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_queue
		SET status = ?, retry_count = ?, last_retry_at = ?, scheduled_for = ?, sent_at = ?, provider_id = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		string(e.Status),
		e.RetryCount,
		formatNullableTime(e.LastRetryAt),
		formatTime(e.ScheduledFor),
		formatNullableTime(e.SentAt),
		e.ProviderID,
		e.ErrorMessage,
		formatTime(e.UpdatedAt),
		e.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrEmailNotFound
	}
	return nil
}

// ListDispatchableEmails returns items eligible for a send attempt, oldest
// first, up to limit: due pending items, plus failed items with retries left
// whose last attempt is older than retryCooldown. Sent and cancelled items
// never match.
func (s *Store) ListDispatchableEmails(ctx context.Context, now time.Time, retryCooldown time.Duration, limit int) ([]*domain.EmailQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	retryFloor := now.Add(-retryCooldown)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+emailColumns+` FROM email_queue
		WHERE (status = 'pending' AND scheduled_for <= ?)
		   OR (status = 'failed' AND retry_count < max_retries
		       AND (last_retry_at IS NULL OR last_retry_at <= ?))
		ORDER BY scheduled_for ASC, id ASC
		LIMIT ?`, formatTime(now), formatTime(retryFloor), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.EmailQueueItem
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if items == nil {
		items = []*domain.EmailQueueItem{}
	}
	return items, nil
}

// GetEmailForDelivery returns the queue item of the given kind linked to a
// delivery record, if one exists.
func (s *Store) GetEmailForDelivery(ctx context.Context, deliveryID string, kind domain.EmailKind) (*domain.EmailQueueItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+emailColumns+` FROM email_queue
		WHERE delivery_id = ? AND kind = ?
		ORDER BY created_at DESC
		LIMIT 1`, deliveryID, string(kind))

	e, err := scanEmail(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrEmailNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// CountEmailsByStatus returns per-status queue item counts.
func (s *Store) CountEmailsByStatus(ctx context.Context) (map[domain.EmailStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM email_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.EmailStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.EmailStatus(status)] = n
	}
	return counts, rows.Err()
}
