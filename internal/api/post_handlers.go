package api

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/http/response"
)

func (s *Server) registerPostRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "explorePosts",
		Method:      http.MethodGet,
		Path:        "/api/v1/explore",
		Summary:     "Explore public posts",
		Description: "Returns one page of public posts, newest first",
		Tags:        []string{"Posts"},
	}, s.handleExplore)

	huma.Register(s.api, huma.Operation{
		OperationID: "getFeed",
		Method:      http.MethodGet,
		Path:        "/api/v1/feed",
		Summary:     "Get feed",
		Description: "Returns one page of posts by users the caller follows",
		Tags:        []string{"Posts"},
		Security:    []map[string][]string{{"bearer": {}}, {"cookie": {}}},
	}, s.handleFeed)

	huma.Register(s.api, huma.Operation{
		OperationID: "getUserPosts",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{userId}/posts",
		Summary:     "List a user's posts",
		Tags:        []string{"Posts"},
	}, s.handleUserPosts)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPlacePosts",
		Method:      http.MethodGet,
		Path:        "/api/v1/places/{placeId}/posts",
		Summary:     "List public posts about a place",
		Tags:        []string{"Posts"},
	}, s.handlePlacePosts)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPost",
		Method:      http.MethodGet,
		Path:        "/api/v1/posts/{postId}",
		Summary:     "Get post",
		Tags:        []string{"Posts"},
	}, s.handleGetPost)

	huma.Register(s.api, huma.Operation{
		OperationID: "updatePost",
		Method:      http.MethodPatch,
		Path:        "/api/v1/posts/{postId}",
		Summary:     "Update post",
		Description: "Edits caption, rating or tags of one of the caller's posts",
		Tags:        []string{"Posts"},
		Security:    []map[string][]string{{"bearer": {}}, {"cookie": {}}},
	}, s.handleUpdatePost)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deletePost",
		Method:        http.MethodDelete,
		Path:          "/api/v1/posts/{postId}",
		Summary:       "Delete post",
		Description:   "Deletes one of the caller's posts and its photos",
		Tags:          []string{"Posts"},
		Security:      []map[string][]string{{"bearer": {}}, {"cookie": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeletePost)

	// Multipart uploads are served by chi directly.
	s.router.Post("/api/v1/posts", s.handleCreatePost)
}

// === DTOs ===

// PageInput selects a page of a paginated list.
type PageInput struct {
	Page int `query:"page" doc:"Zero-based page number"`
}

// UserIDInput identifies a user.
type UserIDInput struct {
	UserID string `path:"userId" doc:"User ID"`
}

// PlaceIDInput identifies a place.
type PlaceIDInput struct {
	PlaceID string `path:"placeId" doc:"Place ID"`
}

// PostIDInput identifies a post.
type PostIDInput struct {
	PostID string `path:"postId" doc:"Post ID"`
}

// UpdatePostInput contains the edit of a post.
type UpdatePostInput struct {
	PostID string `path:"postId" doc:"Post ID"`
	Body   domain.PostUpdate
}

// PostListOutput wraps a list of posts for Huma.
type PostListOutput struct {
	Body []domain.PostWithAuthor
}

// PostOutput wraps a post with its author for Huma.
type PostOutput struct {
	Body domain.PostWithAuthor
}

// StoredPostOutput wraps a stored post row for Huma.
type StoredPostOutput struct {
	Body *domain.Post
}

// === Handlers ===

func (s *Server) handleExplore(ctx context.Context, input *PageInput) (*PostListOutput, error) {
	posts, err := s.appFor(ctx).Posts.Explore(ctx, input.Page)
	if err != nil {
		return nil, err
	}
	return &PostListOutput{Body: posts}, nil
}

func (s *Server) handleFeed(ctx context.Context, input *PageInput) (*PostListOutput, error) {
	posts, err := s.appFor(ctx).Posts.Feed(ctx, input.Page)
	if err != nil {
		return nil, err
	}
	return &PostListOutput{Body: posts}, nil
}

func (s *Server) handleUserPosts(ctx context.Context, input *UserIDInput) (*PostListOutput, error) {
	posts, err := s.appFor(ctx).Posts.UserPosts(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	return &PostListOutput{Body: posts}, nil
}

func (s *Server) handlePlacePosts(ctx context.Context, input *PlaceIDInput) (*PostListOutput, error) {
	posts, err := s.appFor(ctx).Posts.PlacePosts(ctx, input.PlaceID)
	if err != nil {
		return nil, err
	}
	return &PostListOutput{Body: posts}, nil
}

func (s *Server) handleGetPost(ctx context.Context, input *PostIDInput) (*PostOutput, error) {
	post, err := s.appFor(ctx).Posts.Post(ctx, input.PostID)
	if err != nil {
		return nil, err
	}
	return &PostOutput{Body: post}, nil
}

func (s *Server) handleUpdatePost(ctx context.Context, input *UpdatePostInput) (*StoredPostOutput, error) {
	if _, err := requireSession(ctx); err != nil {
		return nil, err
	}
	post, err := s.appFor(ctx).Mutations.UpdatePost(ctx, input.PostID, input.Body)
	if err != nil {
		return nil, err
	}
	return &StoredPostOutput{Body: post}, nil
}

func (s *Server) handleDeletePost(ctx context.Context, input *PostIDInput) (*struct{}, error) {
	if _, err := requireSession(ctx); err != nil {
		return nil, err
	}
	if err := s.appFor(ctx).Mutations.DeletePost(ctx, input.PostID); err != nil {
		return nil, err
	}
	return nil, nil
}

// handleCreatePost logs a visit. The request is multipart: a "post" field holding the
// JSON CreatePostInput and one to MaxPhotos "photos" files.
// POST /api/v1/posts
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := requireSession(ctx); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxCreatePostSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		response.BadRequest(w, "Failed to parse form data", s.logger)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var in domain.CreatePostInput
	raw := r.FormValue("post")
	if raw == "" {
		response.BadRequest(w, "Missing 'post' field in multipart form", s.logger)
		return
	}
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		response.BadRequest(w, "Invalid 'post' JSON", s.logger)
		return
	}

	files := r.MultipartForm.File["photos"]
	if len(files) > MaxPhotos {
		response.BadRequest(w, "Too many photos", s.logger)
		return
	}
	for _, fh := range files {
		photo, msg := readPhoto(fh)
		if msg != "" {
			response.BadRequest(w, msg, s.logger)
			return
		}
		in.Photos = append(in.Photos, photo)
	}

	post, err := s.appFor(ctx).Mutations.CreatePost(ctx, in)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.logger.Debug("create post served", "post_id", post.ID, "form_photos", len(files))
	response.JSON(w, http.StatusCreated, post, s.logger)
}

// readPhoto reads one uploaded image. The returned message is non-empty when the file
// is rejected.
func readPhoto(fh *multipart.FileHeader) (domain.Photo, string) {
	if fh.Size > MaxPhotoSize {
		return domain.Photo{}, "Photo too large. Maximum size is 10MB"
	}
	f, err := fh.Open()
	if err != nil {
		return domain.Photo{}, "Failed to read uploaded photo"
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxPhotoSize+1))
	if err != nil {
		return domain.Photo{}, "Failed to read uploaded photo"
	}
	if len(data) > MaxPhotoSize {
		return domain.Photo{}, "Photo too large. Maximum size is 10MB"
	}

	contentType := detectImageType(data)
	if contentType == "" {
		return domain.Photo{}, "Invalid image format. Supported formats: JPEG, PNG, WebP, GIF"
	}
	return domain.Photo{ContentType: contentType, Data: data}, ""
}

// detectImageType sniffs the image type of data, or returns "" for anything else.
func detectImageType(data []byte) string {
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return ct
	default:
		return ""
	}
}
