package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/logger"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// fakeReader serves canned data and counts calls per method.
type fakeReader struct {
	mu    sync.Mutex
	calls map[string]int

	posts    []domain.PostWithAuthor
	byText   []domain.PostWithAuthor
	byTag    []domain.PostWithAuthor
	users    map[string]domain.UserProfile
	tagLists [][]string
}

func newFakeReader() *fakeReader {
	ben := "ben"
	return &fakeReader{
		calls: make(map[string]int),
		posts: []domain.PostWithAuthor{
			{Post: domain.Post{ID: "p1", UserID: "u2", PlaceID: "pl1"}, AuthorName: "Ben"},
			{Post: domain.Post{ID: "p2", UserID: "u2", PlaceID: "pl2"}, AuthorName: "Ben"},
		},
		users: map[string]domain.UserProfile{
			"u2": {ID: "u2", Username: &ben, DisplayName: "Ben", FollowerCount: 10},
		},
	}
}

func (f *fakeReader) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeReader) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeReader) ExplorePosts(_ context.Context, _ int) ([]domain.PostWithAuthor, error) {
	f.hit("explore")
	return f.posts, nil
}

func (f *fakeReader) Feed(_ context.Context, _ int) ([]domain.PostWithAuthor, error) {
	f.hit("feed")
	return f.posts, nil
}

func (f *fakeReader) UserPosts(_ context.Context, _ string) ([]domain.PostWithAuthor, error) {
	f.hit("user posts")
	return f.posts, nil
}

func (f *fakeReader) Post(_ context.Context, postID string) (*domain.PostWithAuthor, error) {
	f.hit("post")
	for _, p := range f.posts {
		if p.ID == postID {
			return &p, nil
		}
	}
	return nil, errors.NotFoundf("post %s", postID)
}

func (f *fakeReader) PlacePosts(_ context.Context, _ string) ([]domain.PostWithAuthor, error) {
	f.hit("place posts")
	return f.posts[:1], nil
}

func (f *fakeReader) SearchPostsText(_ context.Context, _ string, _ int) ([]domain.PostWithAuthor, error) {
	f.hit("search text")
	return f.byText, nil
}

func (f *fakeReader) SearchPostsByTag(_ context.Context, _ string, _ int) ([]domain.PostWithAuthor, error) {
	f.hit("search tag")
	return f.byTag, nil
}

func (f *fakeReader) PublicPostTags(_ context.Context) ([][]string, error) {
	f.hit("tags")
	return f.tagLists, nil
}

func (f *fakeReader) UserByUsername(_ context.Context, username string) (*domain.UserProfile, error) {
	f.hit("user by username")
	for _, u := range f.users {
		if u.UsernameOrEmpty() == username {
			return &u, nil
		}
	}
	return nil, errors.NotFoundf("user %s", username)
}

func (f *fakeReader) UserByID(_ context.Context, userID string) (*domain.UserProfile, error) {
	f.hit("user by id")
	if u, ok := f.users[userID]; ok {
		return &u, nil
	}
	return nil, errors.NotFoundf("user %s", userID)
}

func (f *fakeReader) OnboardedUsers(_ context.Context) ([]domain.UserProfile, error) {
	f.hit("all users")
	return []domain.UserProfile{f.users["u2"]}, nil
}

func (f *fakeReader) SearchUsers(_ context.Context, _ string, _ int) ([]domain.UserProfile, error) {
	f.hit("search users")
	return nil, nil
}

func (f *fakeReader) FollowList(_ context.Context, _ string, _ domain.FollowDirection) ([]domain.UserProfile, error) {
	f.hit("follow list")
	return []domain.UserProfile{}, nil
}

func (f *fakeReader) IsFollowing(_ context.Context, _, _ string) (bool, error) {
	f.hit("is following")
	return true, nil
}

func (f *fakeReader) UsernameOwner(_ context.Context, username string) (string, bool, error) {
	f.hit("username owner")
	for _, u := range f.users {
		if u.UsernameOrEmpty() == username {
			return u.ID, true, nil
		}
	}
	return "", false, nil
}

func newTestCache(t *testing.T) *querycache.Cache {
	t.Helper()
	c := querycache.New(querycache.Options{Logger: logger.Discard()})
	t.Cleanup(c.Close)
	return c
}

func TestPostService_ListSeedsDetails(t *testing.T) {
	reader := newFakeReader()
	svc := NewPostService(newTestCache(t), reader, "", logger.Discard())
	ctx := context.Background()

	posts, err := svc.Explore(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	post, err := svc.Post(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "pl2", post.PlaceID)
	assert.Zero(t, reader.count("post"), "detail should come from the seeded entry")

	_, err = svc.Explore(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, reader.count("explore"), "fresh list should not be refetched")
}

func TestPostService_Errors(t *testing.T) {
	svc := NewPostService(newTestCache(t), newFakeReader(), "", logger.Discard())
	ctx := context.Background()

	_, err := svc.Explore(ctx, -1)
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))

	_, err = svc.Feed(ctx, 0)
	assert.Equal(t, errors.CodeUnauthorized, errors.CodeOf(err))

	_, err = svc.Post(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = svc.UserPosts(ctx, "")
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
}

func TestPostService_FeedForViewer(t *testing.T) {
	reader := newFakeReader()
	svc := NewPostService(newTestCache(t), reader, "u1", logger.Discard())

	posts, err := svc.Feed(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
	assert.Equal(t, 1, reader.count("feed"))
}

func TestUserService_UserSeedsProfile(t *testing.T) {
	reader := newFakeReader()
	svc := NewUserService(newTestCache(t), reader, "u1", logger.Discard())
	ctx := context.Background()

	u, err := svc.User(ctx, "  BEN ")
	require.NoError(t, err)
	assert.Equal(t, "u2", u.ID)

	p, err := svc.Profile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 10, p.FollowerCount)
	assert.Zero(t, reader.count("user by id"))
}

func TestUserService_IsFollowing(t *testing.T) {
	reader := newFakeReader()
	ctx := context.Background()

	anon := NewUserService(newTestCache(t), reader, "", logger.Discard())
	following, err := anon.IsFollowing(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, following)

	viewer := NewUserService(newTestCache(t), reader, "u1", logger.Discard())
	following, err = viewer.IsFollowing(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, following)
	assert.Zero(t, reader.count("is following"))

	following, err = viewer.IsFollowing(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, following)
	assert.Equal(t, 1, reader.count("is following"))
}

func TestUserService_UsernameAvailable(t *testing.T) {
	reader := newFakeReader()
	ctx := context.Background()

	viewer := NewUserService(newTestCache(t), reader, "u1", logger.Discard())
	available, err := viewer.UsernameAvailable(ctx, " BEN ")
	require.NoError(t, err)
	assert.False(t, available)

	available, err = viewer.UsernameAvailable(ctx, "cleo")
	require.NoError(t, err)
	assert.True(t, available)

	owner := NewUserService(newTestCache(t), reader, "u2", logger.Discard())
	available, err = owner.UsernameAvailable(ctx, "ben")
	require.NoError(t, err)
	assert.True(t, available)

	_, err = viewer.UsernameAvailable(ctx, "a.b")
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	assert.Equal(t, 3, reader.count("username owner"))
}

func TestUserService_Me(t *testing.T) {
	reader := newFakeReader()

	_, err := NewUserService(newTestCache(t), reader, "", logger.Discard()).Me(context.Background())
	assert.Equal(t, errors.CodeUnauthorized, errors.CodeOf(err))

	me, err := NewUserService(newTestCache(t), reader, "u2", logger.Discard()).Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ben", me.DisplayName)
}

func TestUserService_Followers(t *testing.T) {
	svc := NewUserService(newTestCache(t), newFakeReader(), "u1", logger.Discard())
	ctx := context.Background()

	_, err := svc.Followers(ctx, "u2", "sideways")
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))

	list, err := svc.Followers(ctx, "u2", domain.DirectionFollowers)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSearchService_ShortQuerySkipsBackend(t *testing.T) {
	reader := newFakeReader()
	cache := newTestCache(t)
	svc := NewSearchService(cache, reader, logger.Discard())

	result, err := svc.Search(context.Background(), " a% ")
	require.NoError(t, err)
	assert.Empty(t, result.Posts)
	assert.NotNil(t, result.Users)
	assert.Zero(t, reader.count("search text"))
	assert.Empty(t, cache.Entries(querykey.Prefix(querykey.FamilySearch)))
}

func TestSearchService_MergesTextAndTagMatches(t *testing.T) {
	reader := newFakeReader()
	p := func(id string) domain.PostWithAuthor { return domain.PostWithAuthor{Post: domain.Post{ID: id}} }
	reader.byText = []domain.PostWithAuthor{p("p1"), p("p2")}
	reader.byTag = []domain.PostWithAuthor{p("p2"), p("p3")}
	svc := NewSearchService(newTestCache(t), reader, logger.Discard())

	result, err := svc.Search(context.Background(), "Pizza")
	require.NoError(t, err)

	ids := make([]string, 0, len(result.Posts))
	for _, post := range result.Posts {
		ids = append(ids, post.ID)
	}
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids)
	assert.NotNil(t, result.Users)
	assert.Equal(t, 1, reader.count("search users"))
}

func TestTagService_AllTags(t *testing.T) {
	reader := newFakeReader()
	reader.tagLists = [][]string{{"wine", "brunch"}, {"wine"}}
	svc := NewTagService(newTestCache(t), reader, logger.Discard())

	tags, err := svc.AllTags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.TagCount{{Tag: "wine", Count: 2}, {Tag: "brunch", Count: 1}}, tags)
}

type fakeDetailer struct {
	calls int
}

func (f *fakeDetailer) Details(_ context.Context, placeID string) (*domain.PlaceDetails, error) {
	f.calls++
	if placeID == "missing" {
		return nil, errors.NotFoundf("place %s", placeID)
	}
	return &domain.PlaceDetails{PlaceID: placeID, Name: "Cafe Luz"}, nil
}

func TestPlaceService_Place(t *testing.T) {
	details := &fakeDetailer{}
	svc := NewPlaceService(newTestCache(t), details, logger.Discard())
	ctx := context.Background()

	p, err := svc.Place(ctx, "pl1")
	require.NoError(t, err)
	assert.Equal(t, "Cafe Luz", p.Name)

	_, err = svc.Place(ctx, "pl1")
	require.NoError(t, err)
	assert.Equal(t, 1, details.calls)

	_, err = svc.Place(ctx, "missing")
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))

	_, err = svc.Place(ctx, "")
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
}
