// Package service contains the delivery engine's business logic.
package service

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/errors"
	"github.com/codedrip/codedrip-server/internal/store"
)

// TagService owns the tag hierarchy graph: edge maintenance with cycle
// rejection, and the closure expansion the problem selector depends on.
type TagService struct {
	store  store.Store
	logger *slog.Logger
}

// NewTagService creates a new tag service.
func NewTagService(store store.Store, logger *slog.Logger) *TagService {
	return &TagService{
		store:  store,
		logger: logger,
	}
}

// ListTags returns all tags ordered by name.
func (s *TagService) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	return s.store.ListTags(ctx)
}

// GetTag returns a tag by id.
func (s *TagService) GetTag(ctx context.Context, tagID string) (*domain.Tag, error) {
	return s.store.GetTagByID(ctx, tagID)
}

// FindOrCreateTag finds a tag by normalized name, creating it if absent.
func (s *TagService) FindOrCreateTag(ctx context.Context, name string) (*domain.Tag, bool, error) {
	if strings.TrimSpace(name) == "" {
		return nil, false, errors.Validation("tag name is empty")
	}
	return s.store.FindOrCreateTagByName(ctx, name)
}

// adjacency loads the full parent -> children edge map.
func (s *TagService) adjacency(ctx context.Context) (map[string][]string, error) {
	edges, err := s.store.ListTagEdges(ctx)
	if err != nil {
		return nil, err
	}
	adj := make(map[string][]string, len(edges))
	for _, e := range edges {
		adj[e.ParentID] = append(adj[e.ParentID], e.ChildID)
	}
	return adj, nil
}

// WouldCreateCycle reports whether inserting parentID -> childID would close
// a loop, with the path from childID back to parentID when it would. The
// degenerate self-edge counts as a cycle.
//
// Traversal is iterative BFS with a visited set, so it terminates even if a
// cycle already slipped into the store.
func (s *TagService) WouldCreateCycle(ctx context.Context, parentID, childID string) (bool, []string, error) {
	if parentID == childID {
		return true, []string{parentID}, nil
	}

	adj, err := s.adjacency(ctx)
	if err != nil {
		return false, nil, err
	}

	// Walk child edges from childID; reaching parentID means the new edge
	// would complete a loop.
	visited := map[string]bool{childID: true}
	cameFrom := map[string]string{}
	queue := []string{childID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range adj[current] {
			if visited[next] {
				continue
			}
			visited[next] = true
			cameFrom[next] = current

			if next == parentID {
				// Reconstruct childID -> ... -> parentID.
				path := []string{parentID}
				for at := parentID; at != childID; at = cameFrom[at] {
					path = append(path, cameFrom[at])
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return true, path, nil
			}
			queue = append(queue, next)
		}
	}

	return false, nil, nil
}

// Descendants returns the transitive closure over child edges, excluding the
// tag itself.
func (s *TagService) Descendants(ctx context.Context, tagID string) (map[string]bool, error) {
	adj, err := s.adjacency(ctx)
	if err != nil {
		return nil, err
	}
	return descendantsOf(adj, tagID), nil
}

// descendantsOf walks child edges breadth-first from tagID. The start tag is
// never part of its own result.
func descendantsOf(adj map[string][]string, tagID string) map[string]bool {
	result := make(map[string]bool)
	visited := map[string]bool{tagID: true}
	queue := []string{tagID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range adj[current] {
			if visited[next] {
				continue
			}
			visited[next] = true
			result[next] = true
			queue = append(queue, next)
		}
	}
	return result
}

// Closure expands a set of tag ids to include every descendant of each.
// The result is sorted for stable downstream queries.
func (s *TagService) Closure(ctx context.Context, tagIDs []string) ([]string, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}

	adj, err := s.adjacency(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(tagIDs))
	for _, id := range tagIDs {
		set[id] = true
		for desc := range descendantsOf(adj, id) {
			set[desc] = true
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// AddEdge inserts a cycle-checked parent -> child edge.
// Returns a CycleDetected error naming the offending path.
func (s *TagService) AddEdge(ctx context.Context, parentID, childID string, rel domain.EdgeRelationship) (*domain.TagEdge, error) {
	if rel == "" {
		rel = domain.EdgeRelationshipHierarchy
	}

	parent, err := s.store.GetTagByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	child, err := s.store.GetTagByID(ctx, childID)
	if err != nil {
		return nil, err
	}

	cyclic, path, err := s.WouldCreateCycle(ctx, parentID, childID)
	if err != nil {
		return nil, err
	}
	if cyclic {
		return nil, errors.CycleDetectedf("adding edge %q -> %q would create a cycle: %s",
			parent.Name, child.Name, s.describePath(ctx, path, childID))
	}

	edge := &domain.TagEdge{
		ParentID:     parentID,
		ChildID:      childID,
		Relationship: rel,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.AddTagEdge(ctx, edge); err != nil {
		if stderrors.Is(err, store.ErrAlreadyExists) {
			return nil, errors.AlreadyExists("edge already exists")
		}
		return nil, err
	}

	s.logger.Info("tag edge added",
		"parent", parent.Slug,
		"child", child.Slug,
		"relationship", rel,
	)
	return edge, nil
}

// RemoveEdge deletes a parent -> child edge.
func (s *TagService) RemoveEdge(ctx context.Context, parentID, childID string) error {
	if err := s.store.RemoveTagEdge(ctx, parentID, childID); err != nil {
		if stderrors.Is(err, store.ErrEdgeNotFound) {
			return errors.NotFound("tag edge not found")
		}
		return err
	}

	s.logger.Info("tag edge removed",
		"parent_id", parentID,
		"child_id", childID,
	)
	return nil
}

// describePath renders a cycle path with tag names where available. The new
// edge's child starts the loop, so it is appended to show the closure.
func (s *TagService) describePath(ctx context.Context, path []string, loopStart string) string {
	names := make([]string, 0, len(path)+1)
	for _, id := range path {
		names = append(names, s.tagLabel(ctx, id))
	}
	names = append(names, s.tagLabel(ctx, loopStart))
	return strings.Join(names, " -> ")
}

func (s *TagService) tagLabel(ctx context.Context, id string) string {
	if t, err := s.store.GetTagByID(ctx, id); err == nil {
		return t.Name
	}
	return id
}
