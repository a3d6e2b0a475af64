package domain

import "time"

// Visibility controls who can read a post.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

// Valid checks if the visibility is one of the known values.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFollowers, VisibilityPrivate:
		return true
	default:
		return false
	}
}

// Limits on user-authored post content.
const (
	MaxRating = 5
	MaxTags   = 8
	MaxPhotos = 5
)

// Post is a user's logged visit to a place.
type Post struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	PlaceID      string     `json:"place_id"`
	PlaceName    string     `json:"place_name"`
	PlaceAddress string     `json:"place_address"`
	Lat          float64    `json:"lat"`
	Lng          float64    `json:"lng"`
	City         string     `json:"city"`
	Caption      string     `json:"caption"`
	Rating       int        `json:"rating"`
	Tags         []string   `json:"tags"`
	VisitedAt    time.Time  `json:"visited_at"`
	CreatedAt    time.Time  `json:"created_at"`
	PhotoURLs    []string   `json:"photo_urls"`
	Visibility   Visibility `json:"visibility"`
}

// PostWithAuthor is a row of the posts_with_author view.
type PostWithAuthor struct {
	Post
	AuthorName     string `json:"author_name"`
	AuthorPhoto    string `json:"author_photo"`
	AuthorUsername string `json:"author_username"`
}

// NewPost is the insert payload for the posts table. The backend assigns id and created_at.
type NewPost struct {
	UserID       string     `json:"user_id"`
	PlaceID      string     `json:"place_id"`
	PlaceName    string     `json:"place_name"`
	PlaceAddress string     `json:"place_address"`
	Lat          float64    `json:"lat"`
	Lng          float64    `json:"lng"`
	City         string     `json:"city"`
	Caption      string     `json:"caption"`
	Rating       int        `json:"rating"`
	Tags         []string   `json:"tags"`
	VisitedAt    time.Time  `json:"visited_at"`
	PhotoURLs    []string   `json:"photo_urls"`
	Visibility   Visibility `json:"visibility"`
}

// Photo is an uploaded image awaiting storage.
type Photo struct {
	ContentType string
	Data        []byte
}

// CreatePostInput is what a client submits to log a visit.
type CreatePostInput struct {
	PlaceID      string   `json:"place_id" validate:"required"`
	PlaceName    string   `json:"place_name" validate:"required,max=200"`
	PlaceAddress string   `json:"place_address" validate:"max=300"`
	PlaceTypes   []string `json:"place_types,omitempty"`
	Lat          float64  `json:"lat" validate:"gte=-90,lte=90"`
	Lng          float64  `json:"lng" validate:"gte=-180,lte=180"`
	City         string   `json:"city" validate:"max=100"`
	Caption      string   `json:"caption" validate:"max=2000"`
	Rating       int      `json:"rating" validate:"gte=0,lte=5"`
	Tags         []string `json:"tags" validate:"max=8"`
	// Visibility defaults to public.
	Visibility Visibility `json:"visibility,omitempty" validate:"omitempty,visibility"`
	Photos     []Photo    `json:"-" validate:"min=1,max=5"`
}

// PostUpdate is an owner's edit of caption, rating or tags. Nil fields are left alone.
type PostUpdate struct {
	Caption *string  `json:"caption,omitempty" validate:"omitempty,max=2000"`
	Rating  *int     `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	Tags    []string `json:"tags,omitempty" validate:"omitempty,max=8"`
}

// Apply returns a copy of p with the update's non-nil fields.
func (u PostUpdate) Apply(p PostWithAuthor) PostWithAuthor {
	if u.Caption != nil {
		p.Caption = *u.Caption
	}
	if u.Rating != nil {
		p.Rating = *u.Rating
	}
	if u.Tags != nil {
		p.Tags = NormalizeTags(u.Tags)
	}
	return p
}
