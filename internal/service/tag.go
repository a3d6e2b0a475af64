package service

import (
	"context"
	"log/slog"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// TagService serves the tag directory.
type TagService struct {
	cache  *querycache.Cache
	reader Reader
	logger *slog.Logger
}

// NewTagService creates a tag service.
func NewTagService(cache *querycache.Cache, reader Reader, logger *slog.Logger) *TagService {
	return &TagService{
		cache:  cache,
		reader: reader,
		logger: logger,
	}
}

// AllTags counts the tags of recent public posts, most used first.
func (s *TagService) AllTags(ctx context.Context) ([]domain.TagCount, error) {
	return fetch(ctx, s.cache, querykey.AllTags(), func(ctx context.Context) ([]domain.TagCount, error) {
		lists, err := s.reader.PublicPostTags(ctx)
		if err != nil {
			return nil, err
		}
		return domain.CountTags(lists), nil
	})
}
