package mutation

import (
	"context"
	"slices"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

type pairKey struct {
	viewer, target string
}

// MutationAttempt is one follow toggle between its optimistic write and its resolution.
type MutationAttempt struct {
	Seq      uint64
	Key      querykey.Key
	ViewerID string
	TargetID string
	// Intended is the follow state the attempt asks the backend for.
	Intended bool
	// Rollback is the follow state the cache held when the attempt began.
	Rollback bool
	// Adjusted lists the entries whose follower counts were shifted optimistically.
	Adjusted []querykey.Key
}

func (a *MutationAttempt) delta() int {
	if a.Intended {
		return 1
	}
	return -1
}

// ToggleFollow flips the viewer's follow relation to targetID and waits for the backend.
// The cache shows the new state immediately; a failure restores the previous one. When a
// newer toggle of the same pair was issued meanwhile, this call's outcome is discarded
// and the returned state is whatever the cache holds.
func (c *Coordinator) ToggleFollow(ctx context.Context, targetID string) (domain.FollowState, error) {
	a, err := c.begin(ctx, targetID)
	if err != nil {
		return domain.FollowState{}, err
	}

	// A client that disconnects must not leave the optimistic state unresolved.
	err = c.send(context.WithoutCancel(ctx), a)
	applied := c.resolve(a, err)

	state := c.followState(targetID)
	if applied && err != nil {
		return state, err
	}
	return state, nil
}

// ToggleFollowAsync applies the optimistic state and returns it with Pending set. The
// backend call runs in the background; the outcome reaches the view through cache changes
// and, on failure, OnFailure. ctx bounds only the load of an uncached relation.
func (c *Coordinator) ToggleFollowAsync(ctx context.Context, targetID string) (domain.FollowState, error) {
	a, err := c.begin(ctx, targetID)
	if err != nil {
		return domain.FollowState{}, err
	}

	c.goBackground(func(ctx context.Context) {
		c.resolve(a, c.send(ctx, a))
	})

	state := c.followState(targetID)
	state.Pending = true
	return state, nil
}

// begin validates the toggle, assigns its sequence number and writes the optimistic state.
// A relation the cache does not hold is loaded first; the toggle fails without any write
// when that load fails.
func (c *Coordinator) begin(ctx context.Context, targetID string) (*MutationAttempt, error) {
	viewer, err := c.requireViewer()
	if err != nil {
		return nil, err
	}
	if targetID == "" {
		return nil, errors.Validation("target user id is required")
	}
	if targetID == viewer {
		return nil, errors.Validation("cannot follow yourself")
	}

	key := querykey.Following(viewer, targetID)

	current, known := c.cachedFollowing(key)
	if !known {
		loaded, err := querycache.Get(ctx, c.cache, key, func(ctx context.Context) (bool, error) {
			return c.backend.IsFollowing(ctx, viewer, targetID)
		}, key.Family.StaleTime())
		if err != nil {
			return nil, err
		}
		current = loaded
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another toggle may have written the entry while the relation was loading.
	if v, ok := c.cachedFollowing(key); ok {
		current = v
	}

	c.nextSeq++
	a := &MutationAttempt{
		Seq:      c.nextSeq,
		Key:      key,
		ViewerID: viewer,
		TargetID: targetID,
		Intended: !current,
		Rollback: current,
	}
	c.latest[pairKey{viewer, targetID}] = a.Seq

	c.cache.SetData(key, a.Intended, querycache.Optimistic())
	a.Adjusted = c.cache.Update(followerCountHolders(targetID), adjustFollowerCount(targetID, a.delta()), querycache.Optimistic())

	c.logger.Debug("follow toggle started", "viewer_id", viewer, "target_id", targetID, "seq", a.Seq, "following", a.Intended)
	return a, nil
}

func (c *Coordinator) send(ctx context.Context, a *MutationAttempt) error {
	if a.Intended {
		return c.backend.FollowUser(ctx, a.TargetID)
	}
	return c.backend.UnfollowUser(ctx, a.TargetID)
}

// resolve applies the backend outcome of a if it is still the latest attempt for its pair
// and reports whether it did. Older attempts are dropped without touching the cache.
func (c *Coordinator) resolve(a *MutationAttempt, err error) bool {
	pair := pairKey{a.ViewerID, a.TargetID}

	c.mu.Lock()
	if c.latest[pair] != a.Seq {
		c.mu.Unlock()
		c.logger.Debug("superseded follow toggle dropped", "target_id", a.TargetID, "seq", a.Seq)
		return false
	}
	delete(c.latest, pair)

	if err == nil {
		c.cache.MarkFresh(append([]querykey.Key{a.Key}, a.Adjusted...)...)
	} else {
		c.cache.SetData(a.Key, a.Rollback, querycache.Unconfirmed())
		c.cache.Invalidate(querykey.Any(
			keysIn(a.Adjusted...),
			querykey.Exact(querykey.Profile(a.TargetID)),
		))
	}

	c.cache.Invalidate(querykey.Any(
		querykey.Exact(a.Key),
		querykey.Prefix(querykey.FamilyFollowers, a.TargetID),
		querykey.Exact(querykey.Followers(a.ViewerID, string(domain.DirectionFollowing))),
		querykey.Exact(querykey.Profile(a.ViewerID)),
	))
	c.mu.Unlock()

	if err != nil {
		c.fail("follow", &a.Key, a.TargetID, err)
		return true
	}
	c.logger.Info("follow toggled", "viewer_id", a.ViewerID, "target_id", a.TargetID, "following", a.Intended)
	return true
}

// cachedFollowing returns the follow relation held under key, if any.
func (c *Coordinator) cachedFollowing(key querykey.Key) (bool, bool) {
	e, ok := c.cache.Read(key)
	if !ok {
		return false, false
	}
	return querycache.DataAs[bool](e)
}

func (c *Coordinator) followState(targetID string) domain.FollowState {
	state := domain.FollowState{TargetID: targetID}
	if e, ok := c.cache.Read(querykey.Following(c.viewerID, targetID)); ok {
		state.Following, _ = querycache.DataAs[bool](e)
	}
	if e, ok := c.cache.Read(querykey.Profile(targetID)); ok {
		if p, ok := querycache.DataAs[domain.UserProfile](e); ok {
			state.FollowerCount = &p.FollowerCount
		}
	}
	return state
}

// followerCountHolders selects the families whose data can embed targetID's profile.
func followerCountHolders(targetID string) querykey.Predicate {
	return querykey.Any(
		querykey.Prefix(querykey.FamilyProfile, targetID),
		querykey.Prefix(querykey.FamilyUser),
		querykey.Prefix(querykey.FamilyFollowers),
		querykey.Exact(querykey.AllUsers()),
		querykey.Prefix(querykey.FamilySearch),
	)
}

// adjustFollowerCount shifts follower_count of targetID wherever its profile appears.
// Cached values are shared, so slices are copied before they are changed.
func adjustFollowerCount(targetID string, delta int) func(querykey.Key, any) (any, bool) {
	shiftList := func(users []domain.UserProfile) ([]domain.UserProfile, bool) {
		i := slices.IndexFunc(users, func(u domain.UserProfile) bool { return u.ID == targetID })
		if i < 0 {
			return users, false
		}
		out := slices.Clone(users)
		out[i] = out[i].WithFollowerDelta(delta)
		return out, true
	}

	return func(_ querykey.Key, data any) (any, bool) {
		switch v := data.(type) {
		case domain.UserProfile:
			if v.ID != targetID {
				return nil, false
			}
			return v.WithFollowerDelta(delta), true
		case []domain.UserProfile:
			return shiftList(v)
		case domain.SearchResult:
			users, ok := shiftList(v.Users)
			if !ok {
				return nil, false
			}
			v.Users = users
			return v, true
		default:
			return nil, false
		}
	}
}
