package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mymapsapp/mymaps-server/internal/domain"
)

const (
	tableUsers   = "users"
	tableFollows = "follows"

	// AllUsersLimit caps the people directory.
	AllUsersLimit = 50
)

// UserByUsername returns the profile with the given (normalized) username.
func (c *Client) UserByUsername(ctx context.Context, username string) (*domain.UserProfile, error) {
	return c.oneUser(ctx, "user by username", "username", username)
}

// UserByID returns the profile with the given id.
func (c *Client) UserByID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	return c.oneUser(ctx, "user by id", "id", userID)
}

func (c *Client) oneUser(ctx context.Context, op, column, value string) (*domain.UserProfile, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set(column, eq(value))

	var out domain.UserProfile
	if err := c.do(ctx, request{op: op, method: http.MethodGet, path: tablePath(tableUsers), query: q, single: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UsernameOwner returns the id of the user holding username, if any.
func (c *Client) UsernameOwner(ctx context.Context, username string) (string, bool, error) {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("username", eq(username))
	q.Set("limit", "1")

	var rows []struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, request{op: "username owner", method: http.MethodGet, path: tablePath(tableUsers), query: q}, &rows); err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].ID, true, nil
}

// profilePatch is a ProfileUpdate with the server-side update time.
type profilePatch struct {
	domain.ProfileUpdate
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateUser applies u to the user row and returns the stored profile.
func (c *Client) UpdateUser(ctx context.Context, userID string, u domain.ProfileUpdate, now time.Time) (*domain.UserProfile, error) {
	if u.Username != nil {
		name := domain.NormalizeUsername(*u.Username)
		u.Username = &name
	}
	q := url.Values{}
	q.Set("id", eq(userID))

	var out domain.UserProfile
	err := c.do(ctx, request{
		op:     "update user",
		method: http.MethodPatch,
		path:   tablePath(tableUsers),
		query:  q,
		body:   profilePatch{ProfileUpdate: u, UpdatedAt: now.UTC()},
		single: true,
		prefer: []string{"return=representation"},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// OnboardedUsers returns onboarded users, most active first.
func (c *Client) OnboardedUsers(ctx context.Context) ([]domain.UserProfile, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("onboarded", "eq.true")
	q.Set("order", "post_count.desc")
	q.Set("limit", strconv.Itoa(AllUsersLimit))

	var out []domain.UserProfile
	err := c.do(ctx, request{op: "all users", method: http.MethodGet, path: tablePath(tableUsers), query: q}, &out)
	return out, err
}

// SearchUsers matches a normalized query against onboarded users' public fields.
func (c *Client) SearchUsers(ctx context.Context, query string, limit int) ([]domain.UserProfile, error) {
	pattern := quote("*" + query + "*")
	q := url.Values{}
	q.Set("select", "*")
	q.Set("onboarded", "eq.true")
	q.Set("or", "(display_name.ilike."+pattern+",username.ilike."+pattern+",bio.ilike."+pattern+",home_city.ilike."+pattern+")")
	q.Set("limit", strconv.Itoa(limit))

	var out []domain.UserProfile
	err := c.do(ctx, request{op: "search users", method: http.MethodGet, path: tablePath(tableUsers), query: q}, &out)
	return out, err
}

// FollowList returns the users on one side of userID's follow edges.
func (c *Client) FollowList(ctx context.Context, userID string, dir domain.FollowDirection) ([]domain.UserProfile, error) {
	q := url.Values{}
	switch dir {
	case domain.DirectionFollowers:
		q.Set("select", "follower_id,users!follows_follower_id_fkey(*)")
		q.Set("following_id", eq(userID))
	default:
		q.Set("select", "following_id,users!follows_following_id_fkey(*)")
		q.Set("follower_id", eq(userID))
	}
	q.Set("order", "created_at.desc")

	var rows []struct {
		User *domain.UserProfile `json:"users"`
	}
	if err := c.do(ctx, request{op: "follow list", method: http.MethodGet, path: tablePath(tableFollows), query: q}, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.UserProfile, 0, len(rows))
	for _, r := range rows {
		if r.User != nil {
			out = append(out, *r.User)
		}
	}
	return out, nil
}

// IsFollowing reports whether viewerID follows targetID.
func (c *Client) IsFollowing(ctx context.Context, viewerID, targetID string) (bool, error) {
	q := url.Values{}
	q.Set("select", "follower_id")
	q.Set("follower_id", eq(viewerID))
	q.Set("following_id", eq(targetID))
	q.Set("limit", "1")

	var rows []domain.Follow
	if err := c.do(ctx, request{op: "is following", method: http.MethodGet, path: tablePath(tableFollows), query: q}, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// FollowUser makes the caller follow targetID.
func (c *Client) FollowUser(ctx context.Context, targetID string) error {
	return c.do(ctx, request{op: "follow", method: http.MethodPost, path: rpcPath("follow_user"), body: map[string]string{"target_uid": targetID}}, nil)
}

// UnfollowUser makes the caller stop following targetID.
func (c *Client) UnfollowUser(ctx context.Context, targetID string) error {
	return c.do(ctx, request{op: "unfollow", method: http.MethodPost, path: rpcPath("unfollow_user"), body: map[string]string{"target_uid": targetID}}, nil)
}
