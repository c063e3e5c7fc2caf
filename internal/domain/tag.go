package domain

import "time"

// Tag represents a topic label for categorizing problems.
// Tags are shared across all users and form a directed hierarchy through
// TagEdge rows; "Programming" may have children "Python" and "JavaScript".
//
// ParentID is a denormalized cache of one parent edge kept for legacy
// consumers. The edge table is the source of truth for hierarchy traversal:
// it supports multiple parents and is cycle-checked on insert.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"` // Case-normalized, unique
	Slug      string    `json:"slug"` // URL-safe form: "dynamic-programming"
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp.
func (t *Tag) Touch() {
	t.UpdatedAt = time.Now()
}

// EdgeRelationship describes the kind of parent/child relation an edge carries.
type EdgeRelationship string

const (
	// EdgeRelationshipHierarchy is a plain parent/child containment edge.
	EdgeRelationshipHierarchy EdgeRelationship = "hierarchy"
	// EdgeRelationshipRelated is a looser association, still traversed for closure.
	EdgeRelationshipRelated EdgeRelationship = "related"
)

// TagEdge is a directed parent -> child edge in the tag hierarchy.
// The (ParentID, ChildID) pair is unique and the edge set must stay acyclic.
type TagEdge struct {
	ParentID     string           `json:"parent_id"`
	ChildID      string           `json:"child_id"`
	Relationship EdgeRelationship `json:"relationship_type"`
	CreatedAt    time.Time        `json:"created_at"`
}
