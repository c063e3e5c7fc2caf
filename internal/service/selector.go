package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/store"
)

// Selector service errors.
var (
	// ErrNoSuitableProblem means no problem could be chosen for the user.
	ErrNoSuitableProblem = errors.New("no suitable problem for user")
	// ErrUserNotDeliverable means the user is inactive or unverified.
	ErrUserNotDeliverable = errors.New("user is not deliverable")
)

// SelectorService picks the next problem for a user. It is strictly
// read-only; writes happen in the delivery scheduler.
type SelectorService struct {
	store  store.Store
	tags   *TagService
	cfg    config.DeliveryConfig
	logger *slog.Logger
}

// NewSelectorService creates a new problem selector.
func NewSelectorService(store store.Store, tags *TagService, cfg config.DeliveryConfig, logger *slog.Logger) *SelectorService {
	return &SelectorService{
		store:  store,
		tags:   tags,
		cfg:    cfg,
		logger: logger,
	}
}

// SelectProblem chooses the next problem for the user at the given instant.
//
// Order of preference:
//  1. Approved problems matching the user's tag closure, not delivered to
//     them inside the cooldown window, freshest first.
//  2. Any approved problem they have never seen, freshest first.
//  3. The approved problem delivered to them longest ago, if that delivery
//     is outside the cooldown.
//
// Returns ErrUserNotDeliverable for inactive/unverified users and
// ErrNoSuitableProblem when nothing qualifies.
func (s *SelectorService) SelectProblem(ctx context.Context, user *domain.User, now time.Time) (*domain.Problem, error) {
	if !user.Deliverable() {
		return nil, ErrUserNotDeliverable
	}

	cooldownFloor := now.Add(-s.cfg.Cooldown())

	if len(user.TagIDs) > 0 {
		closure, err := s.tags.Closure(ctx, user.TagIDs)
		if err != nil {
			return nil, err
		}

		candidates, err := s.store.ListCandidateProblems(ctx, user.ID, closure, cooldownFloor)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			return candidates[0], nil
		}
	}

	// Fallback 1: any approved problem this user has never seen.
	unseen, err := s.store.ListUnseenProblems(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(unseen) > 0 {
		return unseen[0], nil
	}

	// Fallback 2: the problem they saw longest ago, cooldown permitting.
	p, err := s.store.GetLeastRecentlyDeliveredProblem(ctx, user.ID, cooldownFloor)
	if errors.Is(err, store.ErrProblemNotFound) {
		return nil, ErrNoSuitableProblem
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
