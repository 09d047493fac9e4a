package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/store"
)

func (s *Server) registerResourceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listResources",
		Method:      http.MethodGet,
		Path:        "/api/v1/resources",
		Summary:     "List resources",
		Description: "Returns catalogued resources ordered by location, one page at a time",
		Tags:        []string{"Resources"},
	}, s.handleListResources)

	huma.Register(s.api, huma.Operation{
		OperationID: "getResource",
		Method:      http.MethodGet,
		Path:        "/api/v1/resources/{id}",
		Summary:     "Get resource",
		Description: "Returns a resource by ID. The location query parameter takes precedence when set.",
		Tags:        []string{"Resources"},
	}, s.handleGetResource)

	huma.Register(s.api, huma.Operation{
		OperationID: "getResourceTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/resources/{id}/tags",
		Summary:     "Get resource tags",
		Description: "Returns every tag assigned to the resource across all engines",
		Tags:        []string{"Resources"},
	}, s.handleGetResourceTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "rescanResource",
		Method:      http.MethodPost,
		Path:        "/api/v1/resources/rescan",
		Summary:     "Force rescan",
		Description: "Marks the resource so the next run re-tags it. Existing tags stay visible until then.",
		Tags:        []string{"Resources"},
	}, s.handleRescanResource)
}

// ListResourcesInput contains parameters for listing resources.
type ListResourcesInput struct {
	Limit  int    `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Items per page"`
	Cursor string `query:"cursor" doc:"Cursor returned by the previous page"`
}

// ResourcePage is one page of resources.
type ResourcePage struct {
	Items      []*domain.Resource `json:"items" doc:"Resources on this page"`
	NextCursor string             `json:"next_cursor,omitempty" doc:"Cursor for the next page"`
	HasMore    bool               `json:"has_more" doc:"Whether another page exists"`
}

// ListResourcesOutput wraps a resource page for Huma.
type ListResourcesOutput struct {
	Body ResourcePage
}

// GetResourceInput identifies a resource by ID or location.
type GetResourceInput struct {
	ID       string `path:"id" doc:"Resource ID"`
	Location string `query:"location" doc:"Resource location; overrides the ID when set"`
}

func (in *GetResourceInput) key() string {
	if in.Location != "" {
		return in.Location
	}
	return in.ID
}

// ResourceOutput wraps a resource for Huma.
type ResourceOutput struct {
	Body *domain.Resource
}

// ResourceTagsResponse lists a resource's tags.
type ResourceTagsResponse struct {
	ResourceID string               `json:"resource_id" doc:"Resource ID"`
	Location   string               `json:"location" doc:"Resource location"`
	Tags       []domain.AssignedTag `json:"tags" doc:"Tags ordered by engine then name"`
}

// ResourceTagsOutput wraps the tag listing for Huma.
type ResourceTagsOutput struct {
	Body ResourceTagsResponse
}

// RescanRequest is the body of a rescan request.
type RescanRequest struct {
	Location string `json:"location" minLength:"1" doc:"Location of the resource to rescan"`
}

// RescanInput wraps the rescan request for Huma.
type RescanInput struct {
	Body RescanRequest
}

func (s *Server) handleListResources(ctx context.Context, input *ListResourcesInput) (*ListResourcesOutput, error) {
	params := store.PaginationParams{Limit: input.Limit, Cursor: input.Cursor}
	params.Validate()

	offset, err := params.Offset()
	if err != nil {
		return nil, huma.Error400BadRequest("invalid cursor", err)
	}

	// One extra row tells us whether another page exists.
	fetched, err := s.catalog.ListResources(ctx, params.Limit+1, offset)
	if err != nil {
		return nil, err
	}
	page := store.Paginate(fetched, params, offset)

	return &ListResourcesOutput{Body: ResourcePage{
		Items:      page.Items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}}, nil
}

func (s *Server) handleGetResource(ctx context.Context, input *GetResourceInput) (*ResourceOutput, error) {
	res, err := s.catalog.GetResource(ctx, input.key())
	if err != nil {
		return nil, err
	}
	return &ResourceOutput{Body: res}, nil
}

func (s *Server) handleGetResourceTags(ctx context.Context, input *GetResourceInput) (*ResourceTagsOutput, error) {
	res, err := s.catalog.GetResource(ctx, input.key())
	if err != nil {
		return nil, err
	}
	tags, err := s.catalog.GetTagsForResource(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []domain.AssignedTag{}
	}
	return &ResourceTagsOutput{Body: ResourceTagsResponse{
		ResourceID: res.ID,
		Location:   res.Location,
		Tags:       tags,
	}}, nil
}

func (s *Server) handleRescanResource(ctx context.Context, input *RescanInput) (*ResourceOutput, error) {
	if err := s.catalog.ForceRescan(ctx, input.Body.Location); err != nil {
		return nil, err
	}
	s.logger.Info("rescan requested", "location", input.Body.Location)

	res, err := s.catalog.GetResource(ctx, input.Body.Location)
	if err != nil {
		return nil, err
	}
	return &ResourceOutput{Body: res}, nil
}
