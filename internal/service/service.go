// Package service binds the read-side query families to a session's query cache.
//
// Each method addresses one family: it builds the key, supplies the loader and the
// family's stale time, and returns whatever the cache serves. Values are stored by value
// (domain.UserProfile, []domain.PostWithAuthor, ...) so the mutation coordinator can
// rewrite them copy-on-write.
package service

import (
	"context"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// Reader is the read half of the gateway.
type Reader interface {
	ExplorePosts(ctx context.Context, page int) ([]domain.PostWithAuthor, error)
	Feed(ctx context.Context, page int) ([]domain.PostWithAuthor, error)
	UserPosts(ctx context.Context, userID string) ([]domain.PostWithAuthor, error)
	Post(ctx context.Context, postID string) (*domain.PostWithAuthor, error)
	PlacePosts(ctx context.Context, placeID string) ([]domain.PostWithAuthor, error)
	SearchPostsText(ctx context.Context, query string, limit int) ([]domain.PostWithAuthor, error)
	SearchPostsByTag(ctx context.Context, tag string, limit int) ([]domain.PostWithAuthor, error)
	PublicPostTags(ctx context.Context) ([][]string, error)

	UserByUsername(ctx context.Context, username string) (*domain.UserProfile, error)
	UserByID(ctx context.Context, userID string) (*domain.UserProfile, error)
	OnboardedUsers(ctx context.Context) ([]domain.UserProfile, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]domain.UserProfile, error)
	FollowList(ctx context.Context, userID string, dir domain.FollowDirection) ([]domain.UserProfile, error)
	IsFollowing(ctx context.Context, viewerID, targetID string) (bool, error)
	UsernameOwner(ctx context.Context, username string) (string, bool, error)
}

// fetch reads key through the cache with the family's stale time.
func fetch[T any](ctx context.Context, c *querycache.Cache, key querykey.Key, loader func(context.Context) (T, error)) (T, error) {
	return querycache.Get(ctx, c, key, loader, key.Family.StaleTime())
}

// deref adapts a single-row gateway read to a by-value loader.
func deref[T any](load func() (*T, error)) (T, error) {
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	return *v, nil
}
