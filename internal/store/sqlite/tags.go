package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/id"
	"github.com/codedrip/codedrip-server/internal/store"
	"github.com/codedrip/codedrip-server/internal/tag"
)

// tagColumns is the ordered list of columns selected in tag queries.
// Must match the scan order in scanTag.
const tagColumns = `id, name, slug, parent_id, created_at, updated_at`

// scanTag scans a sql.Row (or sql.Rows via its Scan method) into a domain.Tag.
func scanTag(scanner interface{ Scan(dest ...any) error }) (*domain.Tag, error) {
	var t domain.Tag

	var (
		parentID  sql.NullString
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&t.ID,
		&t.Name,
		&t.Slug,
		&parentID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		t.ParentID = parentID.String
	}

	t.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// CreateTag inserts a new tag into the database.
// Returns store.ErrAlreadyExists on duplicate name or slug.
func (s *Store) CreateTag(ctx context.Context, t *domain.Tag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, name, slug, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Name,
		t.Slug,
		nullableString(t.ParentID),
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetTagByID retrieves a tag by its ID.
// Returns store.ErrTagNotFound if the tag does not exist.
func (s *Store) GetTagByID(ctx context.Context, tagID string) (*domain.Tag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE id = ?`, tagID)

	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrTagNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTagByName retrieves a tag by its case-normalized name.
// Returns store.ErrTagNotFound if the tag does not exist.
func (s *Store) GetTagByName(ctx context.Context, name string) (*domain.Tag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE name = ?`, tag.NormalizeName(name))

	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrTagNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []*domain.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if tags == nil {
		tags = []*domain.Tag{}
	}
	return tags, nil
}

// FindOrCreateTagByName finds an existing tag by normalized name or creates
// a new one. Returns (tag, created, error) where created is true if a new
// tag was made.
func (s *Store) FindOrCreateTagByName(ctx context.Context, name string) (*domain.Tag, bool, error) {
	existing, err := s.GetTagByName(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if err != store.ErrTagNotFound {
		return nil, false, err
	}

	tagID, err := id.Generate("tag")
	if err != nil {
		return nil, false, fmt.Errorf("generate tag id: %w", err)
	}

	now := time.Now().UTC()
	normalized := tag.NormalizeName(name)
	t := &domain.Tag{
		ID:        tagID,
		Name:      normalized,
		Slug:      tag.Slugify(normalized),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.CreateTag(ctx, t); err != nil {
		if err == store.ErrAlreadyExists {
			// Race: another goroutine created it between lookup and insert.
			existing, err := s.GetTagByName(ctx, name)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	return t, true, nil
}

// AddTagEdge inserts a parent -> child edge and refreshes the child's
// denormalized parent cache. Callers must run the cycle check first.
// Returns store.ErrAlreadyExists on duplicate edge.
func (s *Store) AddTagEdge(ctx context.Context, e *domain.TagEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tag_edges (parent_id, child_id, relationship_type, created_at)
		VALUES (?, ?, ?, ?)`,
		e.ParentID,
		e.ChildID,
		string(e.Relationship),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return store.ErrTagNotFound
		}
		return err
	}

	// Keep the legacy single-parent field in sync for readers that still
	// consume it. Traversal never reads it.
	_, err = tx.ExecContext(ctx,
		`UPDATE tags SET parent_id = ?, updated_at = ? WHERE id = ?`,
		e.ParentID, formatTime(time.Now()), e.ChildID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// RemoveTagEdge deletes a parent -> child edge and clears the child's parent
// cache if it pointed at this parent.
// Returns store.ErrEdgeNotFound if the edge does not exist.
func (s *Store) RemoveTagEdge(ctx context.Context, parentID, childID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM tag_edges WHERE parent_id = ? AND child_id = ?`,
		parentID, childID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrEdgeNotFound
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tags SET parent_id = NULL, updated_at = ? WHERE id = ? AND parent_id = ?`,
		formatTime(time.Now()), childID, parentID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ListTagEdges returns every edge in the hierarchy.
func (s *Store) ListTagEdges(ctx context.Context) ([]*domain.TagEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT parent_id, child_id, relationship_type, created_at FROM tag_edges ORDER BY parent_id, child_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*domain.TagEdge
	for rows.Next() {
		var e domain.TagEdge
		var rel, createdAt string
		if err := rows.Scan(&e.ParentID, &e.ChildID, &rel, &createdAt); err != nil {
			return nil, err
		}
		e.Relationship = domain.EdgeRelationship(rel)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if edges == nil {
		edges = []*domain.TagEdge{}
	}
	return edges, nil
}
