package mutation

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/gateway"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// uploadConcurrency bounds parallel photo uploads of one post.
const uploadConcurrency = 3

// CreatePost uploads the photos of in, inserts the post and refreshes the author's lists.
// Uploaded photos are deleted again if the insert fails.
func (c *Coordinator) CreatePost(ctx context.Context, in domain.CreatePostInput) (*domain.Post, error) {
	viewer, err := c.requireViewer()
	if err != nil {
		return nil, err
	}
	if err := c.validator.Validate(in); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	urls, err := c.uploadPhotos(ctx, viewer, in.Photos)
	if err != nil {
		c.fail("create post", nil, in.PlaceID, err)
		return nil, err
	}

	visibility := in.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPublic
	}
	post, err := c.backend.InsertPost(ctx, domain.NewPost{
		UserID:       viewer,
		PlaceID:      in.PlaceID,
		PlaceName:    in.PlaceName,
		PlaceAddress: in.PlaceAddress,
		Lat:          in.Lat,
		Lng:          in.Lng,
		City:         in.City,
		Caption:      in.Caption,
		Rating:       in.Rating,
		Tags:         domain.NormalizeTags(slices.Concat(in.Tags, domain.AutoTags(in.PlaceTypes, in.City))),
		VisitedAt:    c.now().UTC(),
		PhotoURLs:    urls,
		Visibility:   visibility,
	})
	if err != nil {
		c.deletePhotos(ctx, urls)
		c.fail("create post", nil, in.PlaceID, err)
		return nil, err
	}

	if c.places != nil {
		c.goBackground(func(ctx context.Context) {
			c.places.Warm(ctx, post.PlaceID)
		})
	}

	c.cache.Invalidate(querykey.Any(
		querykey.Exact(querykey.UserPosts(viewer)),
		querykey.Prefix(querykey.FamilyExplore),
		querykey.Prefix(querykey.FamilyFeed),
		querykey.Exact(querykey.PlacePosts(post.PlaceID)),
		querykey.Exact(querykey.Profile(viewer)),
		querykey.Exact(querykey.AllTags()),
	))
	c.logger.Info("post created", "post_id", post.ID, "user_id", viewer, "place_id", post.PlaceID, "photos", len(urls))
	return post, nil
}

func (c *Coordinator) uploadPhotos(ctx context.Context, userID string, photos []domain.Photo) ([]string, error) {
	urls := make([]string, len(photos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, photo := range photos {
		g.Go(func() error {
			u, err := c.backend.UploadPhoto(gctx, gateway.PhotoPath(userID), photo)
			if err != nil {
				return err
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.deletePhotos(ctx, urls)
		return nil, err
	}
	return urls, nil
}

// deletePhotos removes stored photos. Failures leave orphans behind and are only logged.
func (c *Coordinator) deletePhotos(ctx context.Context, urls []string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := c.backend.DeletePhoto(ctx, u); err != nil {
			c.logger.Warn("delete photo failed", "url", u, "error", err)
		}
	}
}

// UpdatePost edits caption, rating or tags of one of the viewer's posts.
func (c *Coordinator) UpdatePost(ctx context.Context, postID string, u domain.PostUpdate) (*domain.Post, error) {
	viewer, err := c.requireViewer()
	if err != nil {
		return nil, err
	}
	if err := c.validator.Validate(u); err != nil {
		return nil, err
	}
	if _, err := c.ownedPost(ctx, viewer, postID); err != nil {
		return nil, err
	}

	post, err := c.backend.UpdatePost(context.WithoutCancel(ctx), postID, u)
	if err != nil {
		key := querykey.Post(postID)
		c.fail("update post", &key, postID, err)
		return nil, err
	}

	c.cache.Invalidate(querykey.Any(
		querykey.Exact(querykey.Post(postID)),
		querykey.Exact(querykey.UserPosts(viewer)),
		querykey.Exact(querykey.AllTags()),
	))
	c.logger.Info("post updated", "post_id", postID, "user_id", viewer)
	return post, nil
}

// DeletePost removes one of the viewer's posts and, best effort, its photos.
func (c *Coordinator) DeletePost(ctx context.Context, postID string) error {
	viewer, err := c.requireViewer()
	if err != nil {
		return err
	}
	post, err := c.ownedPost(ctx, viewer, postID)
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	c.deletePhotos(ctx, post.PhotoURLs)
	if err := c.backend.DeletePost(ctx, postID); err != nil {
		key := querykey.Post(postID)
		c.fail("delete post", &key, postID, err)
		return err
	}

	c.cache.Remove(querykey.Post(postID))
	c.cache.Invalidate(querykey.Any(
		querykey.Exact(querykey.UserPosts(viewer)),
		querykey.Prefix(querykey.FamilyExplore),
		querykey.Prefix(querykey.FamilyFeed),
		querykey.Exact(querykey.PlacePosts(post.PlaceID)),
		querykey.Exact(querykey.Profile(viewer)),
		querykey.Exact(querykey.AllTags()),
	))
	c.logger.Info("post deleted", "post_id", postID, "user_id", viewer)
	return nil
}

// ownedPost returns postID from the cache or the backend and checks the viewer wrote it.
func (c *Coordinator) ownedPost(ctx context.Context, viewer, postID string) (domain.PostWithAuthor, error) {
	var (
		post domain.PostWithAuthor
		ok   bool
	)
	if e, found := c.cache.Read(querykey.Post(postID)); found {
		post, ok = querycache.DataAs[domain.PostWithAuthor](e)
	}
	if !ok {
		fetched, err := c.backend.Post(ctx, postID)
		if err != nil {
			return domain.PostWithAuthor{}, err
		}
		post = *fetched
	}
	if post.UserID != viewer {
		return domain.PostWithAuthor{}, errors.Permission("only the author can change this post")
	}
	return post, nil
}
