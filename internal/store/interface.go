// Package store defines the persistence interface for the CodeDrip delivery engine.
package store

import (
	"context"
	"time"

	"github.com/codedrip/codedrip-server/internal/domain"
)

// Store defines the interface for all persistence operations.
type Store interface {
	// Lifecycle
	Close() error

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListDeliverableUsers(ctx context.Context) ([]*domain.User, error)
	UpdateUserLastProblem(ctx context.Context, userID, problemID string, sentAt time.Time) error
	SubscribeUserToTag(ctx context.Context, userID, tagID string) error

	// Tags
	CreateTag(ctx context.Context, tag *domain.Tag) error
	GetTagByID(ctx context.Context, id string) (*domain.Tag, error)
	GetTagByName(ctx context.Context, name string) (*domain.Tag, error)
	ListTags(ctx context.Context) ([]*domain.Tag, error)
	FindOrCreateTagByName(ctx context.Context, name string) (*domain.Tag, bool, error)

	// Tag edges
	AddTagEdge(ctx context.Context, edge *domain.TagEdge) error
	RemoveTagEdge(ctx context.Context, parentID, childID string) error
	ListTagEdges(ctx context.Context) ([]*domain.TagEdge, error)

	// Problems
	CreateProblem(ctx context.Context, problem *domain.Problem) error
	GetProblem(ctx context.Context, id string) (*domain.Problem, error)
	ListCandidateProblems(ctx context.Context, userID string, tagIDs []string, cooldownFloor time.Time) ([]*domain.Problem, error)
	ListUnseenProblems(ctx context.Context, userID string) ([]*domain.Problem, error)
	GetLeastRecentlyDeliveredProblem(ctx context.Context, userID string, cooldownFloor time.Time) (*domain.Problem, error)
	CountProblemsByStatus(ctx context.Context) (map[domain.ProblemStatus]int, error)

	// Deliveries
	CreateDelivery(ctx context.Context, record *domain.DeliveryRecord) error
	GetDelivery(ctx context.Context, id string) (*domain.DeliveryRecord, error)
	GetActiveDeliveryForUserProblem(ctx context.Context, userID, problemID string) (*domain.DeliveryRecord, error)
	GetDeliveryByCorrelationID(ctx context.Context, correlationID string) (*domain.DeliveryRecord, error)
	UpdateDelivery(ctx context.Context, record *domain.DeliveryRecord) error
	ListDeliveriesDueForSolution(ctx context.Context, windowStart, windowEnd time.Time) ([]*domain.DeliveryRecord, error)
	ListRecentDeliveries(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error)
	ListDeliveriesForUser(ctx context.Context, userID string) ([]*domain.DeliveryRecord, error)
	CountDeliveriesByStatus(ctx context.Context) (map[domain.DeliveryStatus]int, error)

	// Email queue
	CreateEmail(ctx context.Context, item *domain.EmailQueueItem) error
	GetEmail(ctx context.Context, id string) (*domain.EmailQueueItem, error)
	UpdateEmail(ctx context.Context, item *domain.EmailQueueItem) error
	ListDispatchableEmails(ctx context.Context, now time.Time, retryCooldown time.Duration, limit int) ([]*domain.EmailQueueItem, error)
	GetEmailForDelivery(ctx context.Context, deliveryID string, kind domain.EmailKind) (*domain.EmailQueueItem, error)
	CountEmailsByStatus(ctx context.Context) (map[domain.EmailStatus]int, error)
}
