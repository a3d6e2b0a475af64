package domain

import (
	"regexp"
	"strings"
	"time"
)

// UserProfile is a row of the backend users table.
type UserProfile struct {
	ID             string    `json:"id"`
	Username       *string   `json:"username"`
	DisplayName    string    `json:"display_name"`
	PhotoURL       string    `json:"photo_url"`
	Bio            string    `json:"bio"`
	HomeCity       string    `json:"home_city"`
	IsPublic       bool      `json:"is_public"`
	FollowerCount  int       `json:"follower_count"`
	FollowingCount int       `json:"following_count"`
	PostCount      int       `json:"post_count"`
	Onboarded      bool      `json:"onboarded"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UsernameOrEmpty returns the username, or "" for users who have not picked one.
func (u *UserProfile) UsernameOrEmpty() string {
	if u == nil || u.Username == nil {
		return ""
	}
	return *u.Username
}

// WithFollowerDelta returns a copy with follower_count shifted by delta, clamped at 0.
func (u UserProfile) WithFollowerDelta(delta int) UserProfile {
	u.FollowerCount = max(u.FollowerCount+delta, 0)
	return u
}

// ProfileUpdate is a partial update of the caller's own profile. Nil fields are left alone.
type ProfileUpdate struct {
	Username    *string `json:"username,omitempty" validate:"omitempty,username"`
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,min=1,max=60"`
	Bio         *string `json:"bio,omitempty" validate:"omitempty,max=300"`
	HomeCity    *string `json:"home_city,omitempty" validate:"omitempty,max=80"`
	PhotoURL    *string `json:"photo_url,omitempty" validate:"omitempty,url"`
	IsPublic    *bool   `json:"is_public,omitempty"`
	Onboarded   *bool   `json:"onboarded,omitempty"`
}

// Apply returns a copy of u with the non-nil fields of p and the given update time.
func (p ProfileUpdate) Apply(u UserProfile, now time.Time) UserProfile {
	if p.Username != nil {
		name := NormalizeUsername(*p.Username)
		u.Username = &name
	}
	if p.DisplayName != nil {
		u.DisplayName = strings.TrimSpace(*p.DisplayName)
	}
	if p.Bio != nil {
		u.Bio = strings.TrimSpace(*p.Bio)
	}
	if p.HomeCity != nil {
		u.HomeCity = strings.TrimSpace(*p.HomeCity)
	}
	if p.PhotoURL != nil {
		u.PhotoURL = *p.PhotoURL
	}
	if p.IsPublic != nil {
		u.IsPublic = *p.IsPublic
	}
	if p.Onboarded != nil {
		u.Onboarded = *p.Onboarded
	}
	u.UpdatedAt = now
	return u
}

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// NormalizeUsername lower-cases and trims a username.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidUsername reports whether s (already normalized) is 3-20 chars of [a-z0-9_].
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}
