package service

import (
	"context"
	"log/slog"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// PostService serves the post list and detail families.
type PostService struct {
	cache    *querycache.Cache
	reader   Reader
	viewerID string
	logger   *slog.Logger
}

// NewPostService creates a post service. viewerID is "" for anonymous sessions.
func NewPostService(cache *querycache.Cache, reader Reader, viewerID string, logger *slog.Logger) *PostService {
	return &PostService{
		cache:    cache,
		reader:   reader,
		viewerID: viewerID,
		logger:   logger,
	}
}

// Explore returns a page of public posts, newest first.
func (s *PostService) Explore(ctx context.Context, page int) ([]domain.PostWithAuthor, error) {
	if page < 0 {
		return nil, errors.Validationf("page must not be negative, got %d", page)
	}
	return s.list(ctx, querykey.Explore(page), func(ctx context.Context) ([]domain.PostWithAuthor, error) {
		return s.reader.ExplorePosts(ctx, page)
	})
}

// Feed returns a page of the viewer's home feed.
func (s *PostService) Feed(ctx context.Context, page int) ([]domain.PostWithAuthor, error) {
	if s.viewerID == "" {
		return nil, errors.Unauthorized("sign in to see your feed")
	}
	if page < 0 {
		return nil, errors.Validationf("page must not be negative, got %d", page)
	}
	return s.list(ctx, querykey.Feed(page), func(ctx context.Context) ([]domain.PostWithAuthor, error) {
		return s.reader.Feed(ctx, page)
	})
}

// UserPosts returns every post of userID the viewer may read.
func (s *PostService) UserPosts(ctx context.Context, userID string) ([]domain.PostWithAuthor, error) {
	if userID == "" {
		return nil, errors.Validation("user id is required")
	}
	return s.list(ctx, querykey.UserPosts(userID), func(ctx context.Context) ([]domain.PostWithAuthor, error) {
		return s.reader.UserPosts(ctx, userID)
	})
}

// PlacePosts returns the public posts about placeID.
func (s *PostService) PlacePosts(ctx context.Context, placeID string) ([]domain.PostWithAuthor, error) {
	if placeID == "" {
		return nil, errors.Validation("place id is required")
	}
	return s.list(ctx, querykey.PlacePosts(placeID), func(ctx context.Context) ([]domain.PostWithAuthor, error) {
		return s.reader.PlacePosts(ctx, placeID)
	})
}

// Post returns one post with its author.
func (s *PostService) Post(ctx context.Context, postID string) (domain.PostWithAuthor, error) {
	if postID == "" {
		return domain.PostWithAuthor{}, errors.Validation("post id is required")
	}
	return fetch(ctx, s.cache, querykey.Post(postID), func(ctx context.Context) (domain.PostWithAuthor, error) {
		return deref(func() (*domain.PostWithAuthor, error) { return s.reader.Post(ctx, postID) })
	})
}

// list fetches a post list and seeds the detail entry of every post in it.
func (s *PostService) list(ctx context.Context, key querykey.Key, loader func(context.Context) ([]domain.PostWithAuthor, error)) ([]domain.PostWithAuthor, error) {
	posts, err := fetch(ctx, s.cache, key, loader)
	if err != nil {
		return nil, err
	}
	e, ok := s.cache.Read(key)
	if !ok || e.FetchedAt.IsZero() {
		return posts, nil
	}
	for _, p := range posts {
		s.cache.SetData(querykey.Post(p.ID), p, querycache.SeededAt(e.FetchedAt))
	}
	return posts, nil
}
