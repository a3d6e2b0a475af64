package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mymapsapp/mymaps-server/internal/domain"
)

const (
	tablePosts      = "posts"
	viewPostsAuthor = "posts_with_author"

	// ExplorePageSize is the page size of the public explore grid.
	ExplorePageSize = 12
	// FeedPageSize is the page size of the following feed.
	FeedPageSize = 20

	publicTagsLimit = 500

	authorEmbed      = "users(display_name,photo_url,username)"
	authorInnerEmbed = "users!inner(display_name,photo_url,username)"
)

// postRow is a posts row with the author embedded by PostgREST.
type postRow struct {
	domain.Post
	Users *struct {
		DisplayName string  `json:"display_name"`
		PhotoURL    string  `json:"photo_url"`
		Username    *string `json:"username"`
	} `json:"users"`
}

func (r postRow) flatten() domain.PostWithAuthor {
	p := domain.PostWithAuthor{Post: r.Post}
	if r.Users != nil {
		p.AuthorName = r.Users.DisplayName
		p.AuthorPhoto = r.Users.PhotoURL
		if r.Users.Username != nil {
			p.AuthorUsername = *r.Users.Username
		}
	}
	return p
}

func flattenRows(rows []postRow) []domain.PostWithAuthor {
	out := make([]domain.PostWithAuthor, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.flatten())
	}
	return out
}

func newestFirst(q url.Values) url.Values {
	q.Set("order", "created_at.desc")
	return q
}

// ExplorePosts returns one page of public posts, newest first.
func (c *Client) ExplorePosts(ctx context.Context, page int) ([]domain.PostWithAuthor, error) {
	q := newestFirst(url.Values{})
	q.Set("select", "*")
	q.Set("visibility", eq(string(domain.VisibilityPublic)))
	q.Set("offset", strconv.Itoa(page*ExplorePageSize))
	q.Set("limit", strconv.Itoa(ExplorePageSize))

	var out []domain.PostWithAuthor
	err := c.do(ctx, request{op: "explore posts", method: http.MethodGet, path: tablePath(viewPostsAuthor), query: q}, &out)
	return out, err
}

// Feed returns one page of posts by users the caller follows.
func (c *Client) Feed(ctx context.Context, page int) ([]domain.PostWithAuthor, error) {
	body := map[string]int{
		"page_size":   FeedPageSize,
		"page_offset": page * FeedPageSize,
	}
	var out []domain.PostWithAuthor
	err := c.do(ctx, request{op: "feed", method: http.MethodPost, path: rpcPath("get_feed"), body: body}, &out)
	return out, err
}

// UserPosts returns every post of userID the caller may see, newest first.
func (c *Client) UserPosts(ctx context.Context, userID string) ([]domain.PostWithAuthor, error) {
	q := newestFirst(url.Values{})
	q.Set("select", "*,"+authorInnerEmbed)
	q.Set("user_id", eq(userID))

	var rows []postRow
	if err := c.do(ctx, request{op: "user posts", method: http.MethodGet, path: tablePath(tablePosts), query: q}, &rows); err != nil {
		return nil, err
	}
	return flattenRows(rows), nil
}

// Post returns one post with its author.
func (c *Client) Post(ctx context.Context, postID string) (*domain.PostWithAuthor, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", eq(postID))

	var out domain.PostWithAuthor
	if err := c.do(ctx, request{op: "post", method: http.MethodGet, path: tablePath(viewPostsAuthor), query: q, single: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PlacePosts returns public posts about one place, newest first.
func (c *Client) PlacePosts(ctx context.Context, placeID string) ([]domain.PostWithAuthor, error) {
	q := newestFirst(url.Values{})
	q.Set("select", "*")
	q.Set("place_id", eq(placeID))
	q.Set("visibility", eq(string(domain.VisibilityPublic)))

	var out []domain.PostWithAuthor
	err := c.do(ctx, request{op: "place posts", method: http.MethodGet, path: tablePath(viewPostsAuthor), query: q}, &out)
	return out, err
}

// SearchPostsText matches query against place name, city and caption of public posts.
// The query must already be normalized.
func (c *Client) SearchPostsText(ctx context.Context, query string, limit int) ([]domain.PostWithAuthor, error) {
	pattern := quote("*" + query + "*")
	q := newestFirst(url.Values{})
	q.Set("select", "*,"+authorEmbed)
	q.Set("visibility", eq(string(domain.VisibilityPublic)))
	q.Set("or", "(place_name.ilike."+pattern+",city.ilike."+pattern+",caption.ilike."+pattern+")")
	q.Set("limit", strconv.Itoa(limit))

	var rows []postRow
	if err := c.do(ctx, request{op: "search posts", method: http.MethodGet, path: tablePath(tablePosts), query: q}, &rows); err != nil {
		return nil, err
	}
	return flattenRows(rows), nil
}

// SearchPostsByTag returns public posts whose tags contain tag.
func (c *Client) SearchPostsByTag(ctx context.Context, tag string, limit int) ([]domain.PostWithAuthor, error) {
	q := newestFirst(url.Values{})
	q.Set("select", "*,"+authorEmbed)
	q.Set("visibility", eq(string(domain.VisibilityPublic)))
	q.Set("tags", "cs.{"+quote(tag)+"}")
	q.Set("limit", strconv.Itoa(limit))

	var rows []postRow
	if err := c.do(ctx, request{op: "search tags", method: http.MethodGet, path: tablePath(tablePosts), query: q}, &rows); err != nil {
		return nil, err
	}
	return flattenRows(rows), nil
}

// PublicPostTags returns the tag arrays of recent public posts.
func (c *Client) PublicPostTags(ctx context.Context) ([][]string, error) {
	q := url.Values{}
	q.Set("select", "tags")
	q.Set("visibility", eq(string(domain.VisibilityPublic)))
	q.Set("limit", strconv.Itoa(publicTagsLimit))

	var rows []struct {
		Tags []string `json:"tags"`
	}
	if err := c.do(ctx, request{op: "public tags", method: http.MethodGet, path: tablePath(tablePosts), query: q}, &rows); err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Tags)
	}
	return out, nil
}

// InsertPost creates a post row and returns it as stored.
func (c *Client) InsertPost(ctx context.Context, p domain.NewPost) (*domain.Post, error) {
	var out domain.Post
	err := c.do(ctx, request{
		op:     "insert post",
		method: http.MethodPost,
		path:   tablePath(tablePosts),
		body:   p,
		single: true,
		prefer: []string{"return=representation"},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePost applies u to the post and returns the stored row.
func (c *Client) UpdatePost(ctx context.Context, postID string, u domain.PostUpdate) (*domain.Post, error) {
	if u.Tags != nil {
		u.Tags = domain.NormalizeTags(u.Tags)
	}
	q := url.Values{}
	q.Set("id", eq(postID))

	var out domain.Post
	err := c.do(ctx, request{
		op:     "update post",
		method: http.MethodPatch,
		path:   tablePath(tablePosts),
		query:  q,
		body:   u,
		single: true,
		prefer: []string{"return=representation"},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePost deletes the post row.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	q := url.Values{}
	q.Set("id", eq(postID))
	return c.do(ctx, request{op: "delete post", method: http.MethodDelete, path: tablePath(tablePosts), query: q}, nil)
}
