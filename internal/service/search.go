package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// SearchService finds posts by text or tag and people by name.
type SearchService struct {
	cache  *querycache.Cache
	reader Reader
	logger *slog.Logger
}

// NewSearchService creates a search service.
func NewSearchService(cache *querycache.Cache, reader Reader, logger *slog.Logger) *SearchService {
	return &SearchService{
		cache:  cache,
		reader: reader,
		logger: logger,
	}
}

// Search runs the text, tag and people queries concurrently. Posts matching both text and
// tag appear once, in text-match order. Queries shorter than domain.MinSearchLength after
// normalization return an empty result without reaching the backend.
func (s *SearchService) Search(ctx context.Context, query string) (domain.SearchResult, error) {
	q := domain.NormalizeSearchQuery(query)
	if len([]rune(q)) < domain.MinSearchLength {
		return domain.SearchResult{Posts: []domain.PostWithAuthor{}, Users: []domain.UserProfile{}}, nil
	}
	return fetch(ctx, s.cache, querykey.Search(q), func(ctx context.Context) (domain.SearchResult, error) {
		return s.load(ctx, q)
	})
}

func (s *SearchService) load(ctx context.Context, q string) (domain.SearchResult, error) {
	var byText, byTag []domain.PostWithAuthor
	var users []domain.UserProfile

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byText, err = s.reader.SearchPostsText(gctx, q, domain.SearchTextLimit)
		return err
	})
	g.Go(func() error {
		var err error
		byTag, err = s.reader.SearchPostsByTag(gctx, domain.NormalizeTag(q), domain.SearchTagLimit)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.reader.SearchUsers(gctx, q, domain.SearchUsersLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.SearchResult{}, err
	}

	if users == nil {
		users = []domain.UserProfile{}
	}
	result := domain.SearchResult{Posts: domain.MergePosts(byText, byTag), Users: users}
	s.logger.Debug("search", "query", q, "posts", len(result.Posts), "users", len(result.Users))
	return result, nil
}
