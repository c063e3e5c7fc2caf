package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/codedrip/codedrip-server/internal/domain"
)

func (s *Server) registerTagRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags",
		Summary:     "List tags",
		Description: "Returns all tags ordered by name",
		Tags:        []string{"Tags"},
	}, s.handleListTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "createTag",
		Method:      http.MethodPost,
		Path:        "/api/v1/tags",
		Summary:     "Create tag",
		Description: "Finds or creates a tag by normalized name",
		Tags:        []string{"Tags"},
	}, s.handleCreateTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTag",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/{id}",
		Summary:     "Get tag",
		Description: "Returns a tag by ID",
		Tags:        []string{"Tags"},
	}, s.handleGetTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTagDescendants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/{id}/descendants",
		Summary:     "Get tag descendants",
		Description: "Returns the transitive closure of child tags",
		Tags:        []string{"Tags"},
	}, s.handleGetTagDescendants)

	huma.Register(s.api, huma.Operation{
		OperationID: "addTagEdge",
		Method:      http.MethodPost,
		Path:        "/api/v1/tag-edges",
		Summary:     "Add tag edge",
		Description: "Adds a parent -> child edge; rejected with 409 if it would create a cycle",
		Tags:        []string{"Tags"},
	}, s.handleAddTagEdge)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeTagEdge",
		Method:      http.MethodDelete,
		Path:        "/api/v1/tag-edges/{parentID}/{childID}",
		Summary:     "Remove tag edge",
		Description: "Removes a parent -> child edge",
		Tags:        []string{"Tags"},
	}, s.handleRemoveTagEdge)
}

// === DTOs ===

type TagResponse struct {
	ID        string    `json:"id" doc:"Tag ID"`
	Name      string    `json:"name" doc:"Normalized tag name"`
	Slug      string    `json:"slug" doc:"URL-safe slug"`
	ParentID  string    `json:"parent_id,omitempty" doc:"Cached parent tag ID"`
	CreatedAt time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt time.Time `json:"updated_at" doc:"Last update time"`
}

type ListTagsResponse struct {
	Tags []TagResponse `json:"tags" doc:"List of tags"`
}

type ListTagsOutput struct {
	Body ListTagsResponse
}

type CreateTagRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100" doc:"Tag name"`
}

type CreateTagInput struct {
	Body CreateTagRequest
}

type TagOutput struct {
	Body TagResponse
}

type GetTagInput struct {
	ID string `path:"id" doc:"Tag ID"`
}

type TagDescendantsResponse struct {
	TagIDs []string `json:"tag_ids" doc:"Descendant tag IDs, sorted"`
}

type TagDescendantsOutput struct {
	Body TagDescendantsResponse
}

type AddTagEdgeRequest struct {
	ParentID     string `json:"parent_id" validate:"required" doc:"Parent tag ID"`
	ChildID      string `json:"child_id" validate:"required" doc:"Child tag ID"`
	Relationship string `json:"relationship_type,omitempty" doc:"Edge relationship (hierarchy or related)"`
}

type AddTagEdgeInput struct {
	Body AddTagEdgeRequest
}

type TagEdgeResponse struct {
	ParentID     string    `json:"parent_id" doc:"Parent tag ID"`
	ChildID      string    `json:"child_id" doc:"Child tag ID"`
	Relationship string    `json:"relationship_type" doc:"Edge relationship"`
	CreatedAt    time.Time `json:"created_at" doc:"Creation time"`
}

type TagEdgeOutput struct {
	Body TagEdgeResponse
}

type RemoveTagEdgeInput struct {
	ParentID string `path:"parentID" doc:"Parent tag ID"`
	ChildID  string `path:"childID" doc:"Child tag ID"`
}

// MessageResponse contains a simple message.
type MessageResponse struct {
	Message string `json:"message" doc:"Status message"`
}

// MessageOutput wraps the message response for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// === Handlers ===

func (s *Server) handleListTags(ctx context.Context, _ *struct{}) (*ListTagsOutput, error) {
	tags, err := s.services.Tag.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]TagResponse, len(tags))
	for i, t := range tags {
		resp[i] = mapTagResponse(t)
	}

	return &ListTagsOutput{Body: ListTagsResponse{Tags: resp}}, nil
}

func (s *Server) handleCreateTag(ctx context.Context, input *CreateTagInput) (*TagOutput, error) {
	tag, _, err := s.services.Tag.FindOrCreateTag(ctx, input.Body.Name)
	if err != nil {
		return nil, err
	}

	return &TagOutput{Body: mapTagResponse(tag)}, nil
}

func (s *Server) handleGetTag(ctx context.Context, input *GetTagInput) (*TagOutput, error) {
	tag, err := s.services.Tag.GetTag(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	return &TagOutput{Body: mapTagResponse(tag)}, nil
}

func (s *Server) handleGetTagDescendants(ctx context.Context, input *GetTagInput) (*TagDescendantsOutput, error) {
	// Surface a 404 for unknown tags rather than an empty set.
	if _, err := s.services.Tag.GetTag(ctx, input.ID); err != nil {
		return nil, err
	}

	desc, err := s.services.Tag.Descendants(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(desc))
	for id := range desc {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &TagDescendantsOutput{Body: TagDescendantsResponse{TagIDs: ids}}, nil
}

func (s *Server) handleAddTagEdge(ctx context.Context, input *AddTagEdgeInput) (*TagEdgeOutput, error) {
	edge, err := s.services.Tag.AddEdge(ctx, input.Body.ParentID, input.Body.ChildID,
		domain.EdgeRelationship(input.Body.Relationship))
	if err != nil {
		return nil, err
	}

	return &TagEdgeOutput{Body: TagEdgeResponse{
		ParentID:     edge.ParentID,
		ChildID:      edge.ChildID,
		Relationship: string(edge.Relationship),
		CreatedAt:    edge.CreatedAt,
	}}, nil
}

func (s *Server) handleRemoveTagEdge(ctx context.Context, input *RemoveTagEdgeInput) (*MessageOutput, error) {
	if err := s.services.Tag.RemoveEdge(ctx, input.ParentID, input.ChildID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Tag edge removed"}}, nil
}

// === Mappers ===

func mapTagResponse(t *domain.Tag) TagResponse {
	return TagResponse{
		ID:        t.ID,
		Name:      t.Name,
		Slug:      t.Slug,
		ParentID:  t.ParentID,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
