package sqlite

import (
	"context"
	"database/sql"
	"encoding/json/v2"
	"fmt"
	"strings"
	"time"

	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/store"
)

const deliveryColumns = `id, user_id, problem_id, channel, status, scheduled_at, delivered_at, opened_at, completed_at, meta, created_at, updated_at`

// scanDelivery scans a row into a domain.DeliveryRecord, decoding the meta
// JSON blob.
func scanDelivery(scanner interface{ Scan(dest ...any) error }) (*domain.DeliveryRecord, error) {
	var d domain.DeliveryRecord

	var (
		status      string
		scheduledAt string
		deliveredAt sql.NullString
		openedAt    sql.NullString
		completedAt sql.NullString
		meta        string
		createdAt   string
		updatedAt   string
	)

	err := scanner.Scan(
		&d.ID,
		&d.UserID,
		&d.ProblemID,
		&d.Channel,
		&status,
		&scheduledAt,
		&deliveredAt,
		&openedAt,
		&completedAt,
		&meta,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = domain.DeliveryStatus(status)
	if d.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return nil, err
	}
	if d.DeliveredAt, err = parseNullableTime(deliveredAt); err != nil {
		return nil, err
	}
	if d.OpenedAt, err = parseNullableTime(openedAt); err != nil {
		return nil, err
	}
	if d.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return nil, err
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &d.Meta); err != nil {
			return nil, fmt.Errorf("decode delivery meta: %w", err)
		}
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &d, nil
}

// encodeMeta serializes delivery meta for storage.
func encodeMeta(m domain.DeliveryMeta) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode delivery meta: %w", err)
	}
	return string(b), nil
}

// CreateDelivery inserts a new delivery record. A violation of the live
// attempt uniqueness (one non-terminal-success attempt per user/problem pair)
// maps to store.ErrAlreadyExists so a rerun batch can skip instead of abort.
func (s *Store) CreateDelivery(ctx context.Context, d *domain.DeliveryRecord) error {
	meta, err := encodeMeta(d.Meta)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, user_id, problem_id, channel, status, scheduled_at, delivered_at, opened_at, completed_at, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.UserID,
		d.ProblemID,
		d.Channel,
		string(d.Status),
		formatTime(d.ScheduledAt),
		formatNullableTime(d.DeliveredAt),
		formatNullableTime(d.OpenedAt),
		formatNullableTime(d.CompletedAt),
		meta,
		formatTime(d.CreatedAt),
		formatTime(d.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return store.ErrInvalidInput.WithCause(err)
		}
		return err
	}
	return nil
}

// GetDelivery retrieves a delivery record by ID.
// Returns store.ErrDeliveryNotFound if the record does not exist.
func (s *Store) GetDelivery(ctx context.Context, deliveryID string) (*domain.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`, deliveryID)

	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrDeliveryNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetActiveDeliveryForUserProblem returns the live attempt for a user/problem
// pair, if any. Live means scheduled, delivered or failed; completed records
// do not block a fresh attempt.
// Returns store.ErrDeliveryNotFound when no live attempt exists.
func (s *Store) GetActiveDeliveryForUserProblem(ctx context.Context, userID, problemID string) (*domain.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE user_id = ? AND problem_id = ?
		  AND status IN ('scheduled', 'delivered', 'failed')
		LIMIT 1`, userID, problemID)

	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrDeliveryNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDeliveryByCorrelationID finds the record whose meta correlation id
// matches. The reconciler uses this to match provider events back to a
// delivery when the provider echoes our queue item id.
func (s *Store) GetDeliveryByCorrelationID(ctx context.Context, correlationID string) (*domain.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE json_extract(meta, '$.correlation_id') = ?
		LIMIT 1`, correlationID)

	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrDeliveryNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateDelivery persists the full mutable state of a delivery record.
// Returns store.ErrDeliveryNotFound if the record does not exist.
func (s *Store) UpdateDelivery(ctx context.Context, d *domain.DeliveryRecord) error {
	meta, err := encodeMeta(d.Meta)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET status = ?, delivered_at = ?, opened_at = ?, completed_at = ?, meta = ?, updated_at = ?
		WHERE id = ?`,
		string(d.Status),
		formatNullableTime(d.DeliveredAt),
		formatNullableTime(d.OpenedAt),
		formatNullableTime(d.CompletedAt),
		meta,
		formatTime(d.UpdatedAt),
		d.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrDeliveryNotFound
	}
	return nil
}

// ListDeliveriesDueForSolution returns unsolved records whose delivered_at
// falls inside [windowStart, windowEnd] and whose meta shows no solution
// handled yet. Completed and failed records are excluded.
func (s *Store) ListDeliveriesDueForSolution(ctx context.Context, windowStart, windowEnd time.Time) ([]*domain.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE status IN ('delivered', 'opened')
		  AND delivered_at IS NOT NULL
		  AND delivered_at >= ? AND delivered_at <= ?
		  AND json_extract(meta, '$.solution_scheduled_at') IS NULL
		  AND json_extract(meta, '$.solution_delivered_at') IS NULL
		ORDER BY delivered_at ASC`, formatTime(windowStart), formatTime(windowEnd))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// ListRecentDeliveries returns the newest records first, up to limit.
func (s *Store) ListRecentDeliveries(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// ListDeliveriesForUser returns all records for one user, newest first.
func (s *Store) ListDeliveriesForUser(ctx context.Context, userID string) ([]*domain.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE user_id = ?
		ORDER BY scheduled_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// CountDeliveriesByStatus returns per-status record counts.
func (s *Store) CountDeliveriesByStatus(ctx context.Context) (map[domain.DeliveryStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM deliveries GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.DeliveryStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.DeliveryStatus(status)] = n
	}
	return counts, rows.Err()
}

func collectDeliveries(rows *sql.Rows) ([]*domain.DeliveryRecord, error) {
	var records []*domain.DeliveryRecord
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.DeliveryRecord{}
	}
	return records, nil
}
