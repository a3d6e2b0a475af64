package service

import (
	"context"
	"log/slog"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// UserService serves profiles, follow relations and the people directory.
type UserService struct {
	cache    *querycache.Cache
	reader   Reader
	viewerID string
	logger   *slog.Logger
}

// NewUserService creates a user service. viewerID is "" for anonymous sessions.
func NewUserService(cache *querycache.Cache, reader Reader, viewerID string, logger *slog.Logger) *UserService {
	return &UserService{
		cache:    cache,
		reader:   reader,
		viewerID: viewerID,
		logger:   logger,
	}
}

// User returns the profile with the given username. The profile(id) entry is seeded
// from the result.
func (s *UserService) User(ctx context.Context, username string) (domain.UserProfile, error) {
	username = domain.NormalizeUsername(username)
	if username == "" {
		return domain.UserProfile{}, errors.Validation("username is required")
	}
	key := querykey.User(username)
	u, err := fetch(ctx, s.cache, key, func(ctx context.Context) (domain.UserProfile, error) {
		return deref(func() (*domain.UserProfile, error) { return s.reader.UserByUsername(ctx, username) })
	})
	if err != nil {
		return domain.UserProfile{}, err
	}
	if e, ok := s.cache.Read(key); ok && !e.FetchedAt.IsZero() {
		s.cache.SetData(querykey.Profile(u.ID), u, querycache.SeededAt(e.FetchedAt))
	}
	return u, nil
}

// Profile returns the profile with the given id.
func (s *UserService) Profile(ctx context.Context, userID string) (domain.UserProfile, error) {
	if userID == "" {
		return domain.UserProfile{}, errors.Validation("user id is required")
	}
	return fetch(ctx, s.cache, querykey.Profile(userID), func(ctx context.Context) (domain.UserProfile, error) {
		return deref(func() (*domain.UserProfile, error) { return s.reader.UserByID(ctx, userID) })
	})
}

// Me returns the viewer's own profile.
func (s *UserService) Me(ctx context.Context) (domain.UserProfile, error) {
	if s.viewerID == "" {
		return domain.UserProfile{}, errors.Unauthorized("sign in required")
	}
	return s.Profile(ctx, s.viewerID)
}

// IsFollowing reports whether the viewer follows targetID. Anonymous viewers and the
// viewer's own profile always get false without a backend call.
func (s *UserService) IsFollowing(ctx context.Context, targetID string) (bool, error) {
	if targetID == "" {
		return false, errors.Validation("target user id is required")
	}
	if s.viewerID == "" || s.viewerID == targetID {
		return false, nil
	}
	return fetch(ctx, s.cache, querykey.Following(s.viewerID, targetID), func(ctx context.Context) (bool, error) {
		return s.reader.IsFollowing(ctx, s.viewerID, targetID)
	})
}

// UsernameAvailable reports whether username can be claimed by the viewer: nobody holds
// it, or the viewer already does. The answer is read live and never cached.
func (s *UserService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = domain.NormalizeUsername(username)
	if !domain.ValidUsername(username) {
		return false, errors.Validation("username must be 3-20 lowercase letters, digits or underscores")
	}
	owner, taken, err := s.reader.UsernameOwner(ctx, username)
	if err != nil {
		return false, err
	}
	return !taken || (s.viewerID != "" && owner == s.viewerID), nil
}

// Followers returns the followers of userID, or the users userID follows.
func (s *UserService) Followers(ctx context.Context, userID string, dir domain.FollowDirection) ([]domain.UserProfile, error) {
	if userID == "" {
		return nil, errors.Validation("user id is required")
	}
	if !dir.Valid() {
		return nil, errors.Validationf("unknown direction %q", dir)
	}
	return fetch(ctx, s.cache, querykey.Followers(userID, string(dir)), func(ctx context.Context) ([]domain.UserProfile, error) {
		return s.reader.FollowList(ctx, userID, dir)
	})
}

// AllUsers returns the people directory: onboarded users with the most posts first.
func (s *UserService) AllUsers(ctx context.Context) ([]domain.UserProfile, error) {
	return fetch(ctx, s.cache, querykey.AllUsers(), s.reader.OnboardedUsers)
}
