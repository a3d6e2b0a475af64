// Package mutation executes writes against the backend and reconciles the query cache
// afterwards. Follow toggles are applied optimistically and rolled back on failure; the
// other writes invalidate the queries they affect once the backend confirms them.
package mutation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
	"github.com/mymapsapp/mymaps-server/internal/validation"
)

// Backend is the slice of the gateway the coordinator writes through.
type Backend interface {
	IsFollowing(ctx context.Context, viewerID, targetID string) (bool, error)
	FollowUser(ctx context.Context, targetID string) error
	UnfollowUser(ctx context.Context, targetID string) error

	Post(ctx context.Context, postID string) (*domain.PostWithAuthor, error)
	InsertPost(ctx context.Context, p domain.NewPost) (*domain.Post, error)
	UpdatePost(ctx context.Context, postID string, u domain.PostUpdate) (*domain.Post, error)
	DeletePost(ctx context.Context, postID string) error
	UploadPhoto(ctx context.Context, path string, photo domain.Photo) (string, error)
	DeletePhoto(ctx context.Context, publicURL string) error

	UsernameOwner(ctx context.Context, username string) (string, bool, error)
	UpdateUser(ctx context.Context, userID string, u domain.ProfileUpdate, now time.Time) (*domain.UserProfile, error)
}

// PlaceWarmer preloads place details after a post about the place is created.
type PlaceWarmer interface {
	Warm(ctx context.Context, placeID string)
}

// Failure describes a write that did not go through, for push to view clients.
type Failure struct {
	Op       string        `json:"op"`
	Key      *querykey.Key `json:"key,omitempty"`
	TargetID string        `json:"target_id,omitempty"`
	Code     errors.Code   `json:"code"`
	Message  string        `json:"message"`
}

// Options configures a Coordinator.
type Options struct {
	// ViewerID is the signed-in user. Empty means anonymous; every write then fails
	// with Unauthorized.
	ViewerID  string
	Places    PlaceWarmer
	Validator *validation.Validator
	Logger    *slog.Logger
	// OnFailure, if set, is called after a write fails. It must not block.
	OnFailure func(Failure)
	Now       func() time.Time
}

// Coordinator runs the writes of one application session.
type Coordinator struct {
	cache     *querycache.Cache
	backend   Backend
	viewerID  string
	places    PlaceWarmer
	validator *validation.Validator
	logger    *slog.Logger
	onFailure func(Failure)
	now       func() time.Time

	// mu orders the optimistic and resolution phases of follow attempts.
	mu      sync.Mutex
	latest  map[pairKey]uint64
	nextSeq uint64

	bg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Coordinator over cache and backend.
func New(cache *querycache.Cache, backend Backend, opts Options) *Coordinator {
	if opts.Validator == nil {
		opts.Validator = validation.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cache:     cache,
		backend:   backend,
		viewerID:  opts.ViewerID,
		places:    opts.Places,
		validator: opts.Validator,
		logger:    opts.Logger,
		onFailure: opts.OnFailure,
		now:       opts.Now,
		latest:    make(map[pairKey]uint64),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close cancels background writes and waits for them to return.
func (c *Coordinator) Close() {
	c.cancel()
	c.bg.Wait()
}

// ViewerID returns the signed-in user, or "" for anonymous sessions.
func (c *Coordinator) ViewerID() string {
	return c.viewerID
}

func (c *Coordinator) requireViewer() (string, error) {
	if c.viewerID == "" {
		return "", errors.Unauthorized("sign in required")
	}
	return c.viewerID, nil
}

func (c *Coordinator) fail(op string, key *querykey.Key, targetID string, err error) {
	c.logger.Warn("mutation failed", "op", op, "target_id", targetID, "kind", errors.CodeOf(err), "error", err)
	if c.onFailure == nil {
		return
	}
	c.onFailure(Failure{
		Op:       op,
		Key:      key,
		TargetID: targetID,
		Code:     errors.CodeOf(err),
		Message:  err.Error(),
	})
}

// goBackground runs fn in the background for the lifetime of the coordinator.
func (c *Coordinator) goBackground(fn func(ctx context.Context)) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn(c.ctx)
	}()
}

// keysIn matches exactly the given keys.
func keysIn(keys ...querykey.Key) querykey.Predicate {
	set := make(map[querykey.Key]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(k querykey.Key) bool {
		_, ok := set[k]
		return ok
	}
}
