package domain

import "time"

// Follow is a row of the follows table: follower_id follows following_id.
type Follow struct {
	FollowerID  string    `json:"follower_id"`
	FollowingID string    `json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// FollowDirection selects which side of a user's follow edges a list shows.
type FollowDirection string

const (
	// DirectionFollowers lists users who follow the subject.
	DirectionFollowers FollowDirection = "followers"
	// DirectionFollowing lists users the subject follows.
	DirectionFollowing FollowDirection = "following"
)

// Valid checks if the direction is known.
func (d FollowDirection) Valid() bool {
	return d == DirectionFollowers || d == DirectionFollowing
}

// FollowState is the viewer's relation to a target after a toggle.
type FollowState struct {
	TargetID      string `json:"target_id"`
	Following     bool   `json:"following"`
	FollowerCount *int   `json:"follower_count,omitempty"`
	// Pending is true while the backend call has not settled.
	Pending bool `json:"pending"`
}
