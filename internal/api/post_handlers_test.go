package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func TestExplore(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/explore")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decodeEnvelope[[]domain.PostWithAuthor](t, resp.Body.Bytes())
	require.Len(t, env.Data, 1)
	assert.Equal(t, "p1", env.Data[0].ID)
	assert.Equal(t, "ben", env.Data[0].AuthorUsername)
}

func TestGetPost(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/posts/p1")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Taberna", decodeEnvelope[domain.PostWithAuthor](t, resp.Body.Bytes()).Data.PlaceName)
}

func TestPlacePosts(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/places/pl1/posts")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decodeEnvelope[[]domain.PostWithAuthor](t, resp.Body.Bytes()).Data, 1)

	resp = ts.api.Get("/api/v1/places/other/posts")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decodeEnvelope[[]domain.PostWithAuthor](t, resp.Body.Bytes()).Data)
}

func TestPlaceDetails_NoProvider(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/places/pl1")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, string(errors.CodeNotFound), decodeEnvelope[any](t, resp.Body.Bytes()).Code)
}

func TestSearch(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/search?q=x")
	require.Equal(t, http.StatusOK, resp.Code)
	short := decodeEnvelope[domain.SearchResult](t, resp.Body.Bytes()).Data
	assert.Empty(t, short.Posts)
	assert.Empty(t, short.Users)

	resp = ts.api.Get("/api/v1/search?q=" + strings.Repeat("a", 101))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, string(errors.CodeValidation), decodeEnvelope[any](t, resp.Body.Bytes()).Code)
}

func TestListTags(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/tags")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []domain.TagCount{{Tag: "wine", Count: 1}}, decodeEnvelope[[]domain.TagCount](t, resp.Body.Bytes()).Data)
}

type photoPart struct {
	name string
	data []byte
}

func createPostRequest(t *testing.T, auth string, post map[string]any, photos ...photoPart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if post != nil {
		raw, err := json.Marshal(post)
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("post", string(raw)))
	}
	for _, p := range photos {
		fw, err := mw.CreateFormFile("photos", p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if auth != "" {
		req.Header.Set("Authorization", strings.TrimPrefix(auth, "Authorization: "))
	}
	return req
}

func validPost() map[string]any {
	return map[string]any{
		"place_id":    "pl9",
		"place_name":  "Cafe Luz",
		"place_types": []string{"cafe"},
		"city":        "Porto",
		"rating":      4,
		"tags":        []string{"Brunch"},
	}
}

func TestCreatePost(t *testing.T) {
	ts := setupTestServer(t)
	header := ts.signIn(t)

	w := httptest.NewRecorder()
	ts.ServeHTTP(w, createPostRequest(t, header, validPost(), photoPart{"a.png", pngData}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := decodeEnvelope[domain.Post](t, w.Body.Bytes())
	assert.True(t, env.Success)
	assert.Equal(t, "p-new", env.Data.ID)
	assert.Equal(t, viewerID, env.Data.UserID)
	assert.Equal(t, domain.VisibilityPublic, env.Data.Visibility)
	assert.Contains(t, env.Data.Tags, "brunch")
	require.Len(t, env.Data.PhotoURLs, 1)
	assert.Contains(t, env.Data.PhotoURLs[0], "/storage/v1/object/public/photos/"+viewerID+"/")

	ts.backend.mu.Lock()
	defer ts.backend.mu.Unlock()
	assert.Len(t, ts.backend.uploads, 1)
	assert.Len(t, ts.backend.inserts, 1)
}

func TestCreatePost_Rejected(t *testing.T) {
	ts := setupTestServer(t)
	header := ts.signIn(t)

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   errors.Code
	}{
		{
			name:   "anonymous",
			req:    createPostRequest(t, "", validPost(), photoPart{"a.png", pngData}),
			status: http.StatusUnauthorized,
			code:   errors.CodeUnauthorized,
		},
		{
			name:   "missing post field",
			req:    createPostRequest(t, header, nil, photoPart{"a.png", pngData}),
			status: http.StatusBadRequest,
			code:   errors.CodeValidation,
		},
		{
			name:   "not an image",
			req:    createPostRequest(t, header, validPost(), photoPart{"a.txt", []byte("plain text, not a photo")}),
			status: http.StatusBadRequest,
			code:   errors.CodeValidation,
		},
		{
			name:   "no photos",
			req:    createPostRequest(t, header, validPost()),
			status: http.StatusBadRequest,
			code:   errors.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ts.ServeHTTP(w, tt.req)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			env := decodeEnvelope[any](t, w.Body.Bytes())
			assert.False(t, env.Success)
			assert.Equal(t, string(tt.code), env.Code)
		})
	}

	ts.backend.mu.Lock()
	defer ts.backend.mu.Unlock()
	assert.Empty(t, ts.backend.inserts)
}
