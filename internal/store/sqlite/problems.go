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

const problemColumns = `id, title, description, difficulty, status, solution, created_at, updated_at`

// scanProblem scans a row into a domain.Problem. TagIDs are left nil; the
// caller loads them separately.
func scanProblem(scanner interface{ Scan(dest ...any) error }) (*domain.Problem, error) {
	var p domain.Problem

	var (
		status    string
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Difficulty,
		&status,
		&p.Solution,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = domain.ProblemStatus(status)
	p.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	p.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// CreateProblem inserts a new problem together with its tag assignments.
func (s *Store) CreateProblem(ctx context.Context, p *domain.Problem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO problems (id, title, description, difficulty, status, solution, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Title,
		p.Description,
		p.Difficulty,
		string(p.Status),
		p.Solution,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}

	for _, tagID := range p.TagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO problem_tags (problem_id, tag_id, created_at)
			VALUES (?, ?, ?)`,
			p.ID, tagID, formatTime(p.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert problem tag %s: %w", tagID, err)
		}
	}

	return tx.Commit()
}

// GetProblem retrieves a problem by ID, including its tag assignments.
// Returns store.ErrProblemNotFound if the problem does not exist.
func (s *Store) GetProblem(ctx context.Context, problemID string) (*domain.Problem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+problemColumns+` FROM problems WHERE id = ?`, problemID)

	p, err := scanProblem(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrProblemNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.TagIDs, err = s.getProblemTagIDs(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// ListCandidateProblems returns approved problems that carry at least one of
// the given tags and have not been delivered to the user within the cooldown
// window. Results are ordered newest-first with rowid as a stable tiebreak.
// cooldownFloor is the earliest delivered_at that still blocks re-selection.
func (s *Store) ListCandidateProblems(ctx context.Context, userID string, tagIDs []string, cooldownFloor time.Time) ([]*domain.Problem, error) {
	if len(tagIDs) == 0 {
		return []*domain.Problem{}, nil
	}

	placeholders := strings.Repeat("?,", len(tagIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(tagIDs)+2)
	for _, tagID := range tagIDs {
		args = append(args, tagID)
	}
	args = append(args, userID, formatTime(cooldownFloor))

	query := `
		SELECT DISTINCT p.id, p.title, p.description, p.difficulty, p.status, p.solution, p.created_at, p.updated_at
		FROM problems p
		JOIN problem_tags pt ON pt.problem_id = p.id
		WHERE p.status = 'approved'
		  AND pt.tag_id IN (` + placeholders + `)
		  AND NOT EXISTS (
			SELECT 1 FROM deliveries d
			WHERE d.user_id = ?
			  AND d.problem_id = p.id
			  AND d.delivered_at IS NOT NULL
			  AND d.delivered_at >= ?
		  )
		ORDER BY p.created_at DESC, p.rowid ASC`

	return s.queryProblems(ctx, query, args...)
}

// ListUnseenProblems returns approved problems never delivered to the user,
// ignoring tags. First fallback when tag matching yields nothing.
func (s *Store) ListUnseenProblems(ctx context.Context, userID string) ([]*domain.Problem, error) {
	query := `
		SELECT ` + prefixedProblemColumns("p") + `
		FROM problems p
		WHERE p.status = 'approved'
		  AND NOT EXISTS (
			SELECT 1 FROM deliveries d
			WHERE d.user_id = ? AND d.problem_id = p.id
		  )
		ORDER BY p.created_at DESC, p.rowid ASC`

	return s.queryProblems(ctx, query, userID)
}

// GetLeastRecentlyDeliveredProblem returns the approved problem whose most
// recent delivery to the user is oldest, provided that delivery predates
// cooldownFloor. Last-resort fallback when every problem has been seen.
// Returns store.ErrProblemNotFound when nothing qualifies.
func (s *Store) GetLeastRecentlyDeliveredProblem(ctx context.Context, userID string, cooldownFloor time.Time) (*domain.Problem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+prefixedProblemColumns("p")+`
		FROM problems p
		JOIN deliveries d ON d.problem_id = p.id AND d.user_id = ?
		WHERE p.status = 'approved'
		GROUP BY p.id
		HAVING MAX(COALESCE(d.delivered_at, d.scheduled_at)) < ?
		ORDER BY MAX(COALESCE(d.delivered_at, d.scheduled_at)) ASC, p.rowid ASC
		LIMIT 1`, userID, formatTime(cooldownFloor))

	p, err := scanProblem(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrProblemNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.TagIDs, err = s.getProblemTagIDs(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// CountProblemsByStatus returns the number of problems per editorial status.
func (s *Store) CountProblemsByStatus(ctx context.Context) (map[domain.ProblemStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM problems GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.ProblemStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.ProblemStatus(status)] = n
	}
	return counts, rows.Err()
}

// queryProblems runs a problem query and loads tag ids for each result.
func (s *Store) queryProblems(ctx context.Context, query string, args ...any) ([]*domain.Problem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var problems []*domain.Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range problems {
		if p.TagIDs, err = s.getProblemTagIDs(ctx, p.ID); err != nil {
			return nil, err
		}
	}

	if problems == nil {
		problems = []*domain.Problem{}
	}
	return problems, nil
}

// getProblemTagIDs loads the assigned tag ids for a problem.
func (s *Store) getProblemTagIDs(ctx context.Context, problemID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag_id FROM problem_tags WHERE problem_id = ? ORDER BY tag_id ASC`, problemID)
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

// prefixedProblemColumns qualifies problemColumns with a table alias.
func prefixedProblemColumns(alias string) string {
	cols := strings.Split(problemColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
