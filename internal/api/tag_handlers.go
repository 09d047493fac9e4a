package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tigertag/tigertag-server/internal/domain"
)

func (s *Server) registerTagRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listEngineTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/engines/{engine}/tags",
		Summary:     "List engine tags",
		Description: "Returns every tag the engine has produced, ordered by name",
		Tags:        []string{"Tags"},
	}, s.handleListEngineTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "getEngineTag",
		Method:      http.MethodGet,
		Path:        "/api/v1/engines/{engine}/tags/{name}",
		Summary:     "Get engine tag",
		Description: "Returns one tag by its prefixed name",
		Tags:        []string{"Tags"},
	}, s.handleGetEngineTag)
}

// EngineTagsInput selects an engine.
type EngineTagsInput struct {
	Engine string `path:"engine" doc:"Engine identifier, e.g. IMAGGA"`
}

// EngineTagsResponse lists the tags of one engine.
type EngineTagsResponse struct {
	Engine string        `json:"engine" doc:"Engine identifier"`
	Tags   []*domain.Tag `json:"tags" doc:"Tags ordered by name"`
}

// EngineTagsOutput wraps the engine tag listing for Huma.
type EngineTagsOutput struct {
	Body EngineTagsResponse
}

// EngineTagInput identifies one tag.
type EngineTagInput struct {
	Engine string `path:"engine" doc:"Engine identifier"`
	Name   string `path:"name" doc:"Prefixed tag name, e.g. imga_dog"`
}

// TagOutput wraps a tag for Huma.
type TagOutput struct {
	Body *domain.Tag
}

func (s *Server) handleListEngineTags(ctx context.Context, input *EngineTagsInput) (*EngineTagsOutput, error) {
	tags, err := s.catalog.ListTagsByEngine(ctx, input.Engine)
	if err != nil {
		return nil, err
	}
	return &EngineTagsOutput{Body: EngineTagsResponse{Engine: input.Engine, Tags: tags}}, nil
}

func (s *Server) handleGetEngineTag(ctx context.Context, input *EngineTagInput) (*TagOutput, error) {
	tag, err := s.catalog.GetTag(ctx, input.Name, input.Engine)
	if err != nil {
		return nil, err
	}
	return &TagOutput{Body: tag}, nil
}
