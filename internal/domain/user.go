package domain

import "time"

// User represents a challenge subscriber.
// User accounts are owned by the CRUD layer; the delivery engine reads them
// and writes only the last-problem cache fields.
type User struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Active        bool     `json:"active"`
	EmailVerified bool     `json:"email_verified"`
	TagIDs        []string `json:"tag_ids"` // Subscribed tag ids

	// Denormalized cache of the most recent delivery. A fast-path hint only;
	// DeliveryRecord rows are the source of truth.
	LastProblemID     string     `json:"last_problem_id,omitempty"`
	LastProblemSentAt *time.Time `json:"last_problem_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Deliverable returns true if the user is eligible to receive challenges.
func (u *User) Deliverable() bool {
	return u.Active && u.EmailVerified
}

// Touch updates the UpdatedAt timestamp.
func (u *User) Touch() {
	u.UpdatedAt = time.Now()
}
