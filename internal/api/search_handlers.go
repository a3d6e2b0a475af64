package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mymapsapp/mymaps-server/internal/domain"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search posts and people",
		Description: "Matches public posts by place, city, caption or tag and users by name. Queries shorter than two characters return nothing",
		Tags:        []string{"Search"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "listTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags",
		Summary:     "List tags",
		Description: "Returns the tags of public posts with their counts, most used first",
		Tags:        []string{"Search"},
	}, s.handleListTags)
}

// SearchInput contains the search query.
type SearchInput struct {
	Query string `query:"q" maxLength:"100" doc:"Search text"`
}

// SearchOutput wraps the search result for Huma.
type SearchOutput struct {
	Body domain.SearchResult
}

// TagListOutput wraps the tag counts for Huma.
type TagListOutput struct {
	Body []domain.TagCount
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	result, err := s.appFor(ctx).Search.Search(ctx, input.Query)
	if err != nil {
		return nil, err
	}
	return &SearchOutput{Body: result}, nil
}

func (s *Server) handleListTags(ctx context.Context, _ *struct{}) (*TagListOutput, error) {
	tags, err := s.appFor(ctx).Tags.AllTags(ctx)
	if err != nil {
		return nil, err
	}
	return &TagListOutput{Body: tags}, nil
}
