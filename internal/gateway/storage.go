package gateway

import (
	"context"
	"net/http"
	"net/url"
	"regexp"

	"github.com/google/uuid"

	"github.com/mymapsapp/mymaps-server/internal/domain"
)

// PhotoPath returns a fresh object path for one of userID's photos.
func PhotoPath(userID string) string {
	return userID + "/" + uuid.NewString() + ".jpg"
}

// PublicURL returns the public URL of an object in the photo bucket.
func (c *Client) PublicURL(path string) string {
	return c.baseURL + "/storage/v1/object/public/" + c.bucket + "/" + path
}

// UploadPhoto stores photo at path and returns its public URL. Existing objects are
// never overwritten.
func (c *Client) UploadPhoto(ctx context.Context, path string, photo domain.Photo) (string, error) {
	ct := photo.ContentType
	if ct == "" {
		ct = "image/jpeg"
	}
	header := http.Header{}
	header.Set("x-upsert", "false")
	header.Set("Cache-Control", "max-age=3600")

	err := c.do(ctx, request{
		op:          "upload photo",
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + c.bucket + "/" + path,
		raw:         photo.Data,
		contentType: ct,
		header:      header,
	}, nil)
	if err != nil {
		return "", err
	}
	return c.PublicURL(path), nil
}

// ObjectPath extracts the object path from a public URL of the photo bucket.
func (c *Client) ObjectPath(publicURL string) (string, bool) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return "", false
	}
	m := regexp.MustCompile(`/` + regexp.QuoteMeta(c.bucket) + `/(.+)$`).FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// DeletePhoto removes the object behind publicURL. URLs outside the photo bucket are
// ignored.
func (c *Client) DeletePhoto(ctx context.Context, publicURL string) error {
	path, ok := c.ObjectPath(publicURL)
	if !ok {
		c.logger.Debug("skipping photo outside bucket", "url", publicURL)
		return nil
	}
	return c.do(ctx, request{
		op:     "delete photo",
		method: http.MethodDelete,
		path:   "/storage/v1/object/" + c.bucket,
		body:   map[string][]string{"prefixes": {path}},
	}, nil)
}
