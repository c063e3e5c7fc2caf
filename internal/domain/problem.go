package domain

import "time"

// ProblemStatus represents a problem's editorial state.
type ProblemStatus string

const (
	// ProblemStatusDraft indicates the problem is being authored.
	ProblemStatusDraft ProblemStatus = "draft"
	// ProblemStatusApproved indicates the problem may be delivered.
	ProblemStatusApproved ProblemStatus = "approved"
	// ProblemStatusArchived indicates the problem has been retired.
	ProblemStatusArchived ProblemStatus = "archived"
	// ProblemStatusPending indicates the problem awaits review.
	ProblemStatusPending ProblemStatus = "pending"
)

// Problem represents a coding challenge.
// Problems are owned by the CRUD layer; the engine only reads them.
type Problem struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Difficulty  string        `json:"difficulty,omitempty"`
	Status      ProblemStatus `json:"status"`
	TagIDs      []string      `json:"tag_ids"`
	Solution    string        `json:"solution,omitempty"` // Optional solution text
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Selectable returns true if the problem may be chosen for delivery.
// Only approved problems are selectable.
func (p *Problem) Selectable() bool {
	return p.Status == ProblemStatusApproved
}

// HasSolution returns true if a solution email can be sent for this problem.
func (p *Problem) HasSolution() bool {
	return p.Solution != ""
}
