package mutation

import (
	"context"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// UpdateProfile applies u to the viewer's own profile. A username held by someone else
// fails with a validation error and leaves the cache untouched.
func (c *Coordinator) UpdateProfile(ctx context.Context, u domain.ProfileUpdate) (domain.UserProfile, error) {
	viewer, err := c.requireViewer()
	if err != nil {
		return domain.UserProfile{}, err
	}
	if err := c.validator.Validate(u); err != nil {
		return domain.UserProfile{}, err
	}

	if u.Username != nil {
		name := domain.NormalizeUsername(*u.Username)
		owner, taken, err := c.backend.UsernameOwner(ctx, name)
		if err != nil {
			return domain.UserProfile{}, err
		}
		if taken && owner != viewer {
			return domain.UserProfile{}, errors.ValidationWithDetails("username is taken",
				map[string]string{"username": "is already taken"})
		}
	}

	updated, err := c.backend.UpdateUser(context.WithoutCancel(ctx), viewer, u, c.now().UTC())
	if err != nil {
		key := querykey.Profile(viewer)
		c.fail("update profile", &key, viewer, err)
		return domain.UserProfile{}, err
	}

	c.cache.SetData(querykey.Profile(viewer), *updated)
	if name := updated.UsernameOrEmpty(); name != "" {
		c.cache.SetData(querykey.User(name), *updated)
	}
	c.cache.Invalidate(querykey.Any(
		func(k querykey.Key) bool {
			return k.Family == querykey.FamilyUser && k.ID != updated.UsernameOrEmpty()
		},
		querykey.Exact(querykey.AllUsers()),
	))
	c.logger.Info("profile updated", "user_id", viewer)
	return *updated, nil
}
