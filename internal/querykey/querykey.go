// Package querykey defines the structural identifiers of cached query results.
//
// A Key is a comparable value: two keys built from the same family and parts are equal
// and address the same cache slot. Each query family has its own constructor, so the set
// of families is closed and switches over Family can be checked for exhaustiveness.
package querykey

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Family is the query family a key belongs to.
type Family uint8

// Query families.
const (
	FamilyExplore Family = iota + 1
	FamilyFeed
	FamilyUserPosts
	FamilyPost
	FamilyPlacePosts
	FamilyUser
	FamilyProfile
	FamilyFollowing
	FamilyFollowers
	FamilyPlaceCache
	FamilySearch
	FamilyAllUsers
	FamilyAllTags
)

// Families lists every family in declaration order.
var Families = []Family{
	FamilyExplore, FamilyFeed, FamilyUserPosts, FamilyPost, FamilyPlacePosts,
	FamilyUser, FamilyProfile, FamilyFollowing, FamilyFollowers, FamilyPlaceCache,
	FamilySearch, FamilyAllUsers, FamilyAllTags,
}

var familyNames = map[Family]string{
	FamilyExplore:    "explore",
	FamilyFeed:       "feed",
	FamilyUserPosts:  "user-posts",
	FamilyPost:       "post",
	FamilyPlacePosts: "place-posts",
	FamilyUser:       "user",
	FamilyProfile:    "profile",
	FamilyFollowing:  "following",
	FamilyFollowers:  "followers",
	FamilyPlaceCache: "place-cache",
	FamilySearch:     "search",
	FamilyAllUsers:   "all-users",
	FamilyAllTags:    "all-tags",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return "family(" + strconv.Itoa(int(f)) + ")"
}

// ParseFamily is the inverse of Family.String.
func ParseFamily(s string) (Family, bool) {
	for f, name := range familyNames {
		if name == s {
			return f, true
		}
	}
	return 0, false
}

// StaleTime is the freshness window of a family's results.
func (f Family) StaleTime() time.Duration {
	switch f {
	case FamilyFeed, FamilySearch:
		return 30 * time.Second
	case FamilyExplore, FamilyUserPosts, FamilyFollowing, FamilyFollowers:
		return 60 * time.Second
	case FamilyPost, FamilyPlacePosts, FamilyUser, FamilyProfile, FamilyAllUsers, FamilyAllTags:
		return 120 * time.Second
	case FamilyPlaceCache:
		return 24 * time.Hour
	default:
		panic(fmt.Sprintf("querykey: unknown family %d", f))
	}
}

// Key identifies one cached query result. Unused parts are zero.
type Key struct {
	Family Family
	// ID is the primary part: a post, user, place id, a username, a search query,
	// or the viewer id of a following key.
	ID string
	// Sub is the secondary part: the target of a following key or the direction of a
	// followers key.
	Sub  string
	Page int
}

// Explore is a page of the public explore grid.
func Explore(page int) Key { return Key{Family: FamilyExplore, Page: page} }

// Feed is a page of the viewer's home feed.
func Feed(page int) Key { return Key{Family: FamilyFeed, Page: page} }

// UserPosts is every post authored by userID.
func UserPosts(userID string) Key { return Key{Family: FamilyUserPosts, ID: userID} }

// Post is a single post with its author.
func Post(postID string) Key { return Key{Family: FamilyPost, ID: postID} }

// PlacePosts is the public posts about one place.
func PlacePosts(placeID string) Key { return Key{Family: FamilyPlacePosts, ID: placeID} }

// User is a profile looked up by username.
func User(username string) Key { return Key{Family: FamilyUser, ID: username} }

// Profile is a profile looked up by id.
func Profile(userID string) Key { return Key{Family: FamilyProfile, ID: userID} }

// Following is whether viewerID follows targetID.
func Following(viewerID, targetID string) Key {
	return Key{Family: FamilyFollowing, ID: viewerID, Sub: targetID}
}

// Followers is the followers or following list of userID.
func Followers(userID, direction string) Key {
	return Key{Family: FamilyFollowers, ID: userID, Sub: direction}
}

// PlaceCache is the cached provider details of a place.
func PlaceCache(placeID string) Key { return Key{Family: FamilyPlaceCache, ID: placeID} }

// Search is the result of a normalized search query.
func Search(query string) Key { return Key{Family: FamilySearch, ID: query} }

// AllUsers is the default people directory.
func AllUsers() Key { return Key{Family: FamilyAllUsers} }

// AllTags is the tag directory with counts.
func AllTags() Key { return Key{Family: FamilyAllTags} }

// Parts returns the key as its ordered tuple, family name first.
func (k Key) Parts() []string {
	switch k.Family {
	case FamilyExplore, FamilyFeed:
		return []string{k.Family.String(), strconv.Itoa(k.Page)}
	case FamilyUserPosts, FamilyPost, FamilyPlacePosts, FamilyUser, FamilyProfile,
		FamilyPlaceCache, FamilySearch:
		return []string{k.Family.String(), k.ID}
	case FamilyFollowing, FamilyFollowers:
		return []string{k.Family.String(), k.ID, k.Sub}
	case FamilyAllUsers, FamilyAllTags:
		return []string{k.Family.String()}
	default:
		return []string{k.Family.String()}
	}
}

func (k Key) String() string {
	parts := k.Parts()
	out := parts[0]
	for _, p := range parts[1:] {
		out += "/" + p
	}
	return out
}

// MarshalJSON encodes the key as its tuple, e.g. ["following","u1","u2"].
func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Parts())
}

// Predicate selects keys for invalidation and bulk updates.
type Predicate func(Key) bool

// Exact matches one key.
func Exact(k Key) Predicate {
	return func(other Key) bool { return other == k }
}

// Prefix matches keys of family whose tuple starts with the given parts.
// Prefix(FamilyFollowers, "u1") matches both followers lists of u1.
func Prefix(family Family, parts ...string) Predicate {
	return func(k Key) bool {
		if k.Family != family {
			return false
		}
		tuple := k.Parts()[1:]
		return len(parts) <= len(tuple) && slices.Equal(tuple[:len(parts)], parts)
	}
}

// Any matches keys accepted by at least one of preds.
func Any(preds ...Predicate) Predicate {
	return func(k Key) bool {
		for _, p := range preds {
			if p(k) {
				return true
			}
		}
		return false
	}
}

// All matches every key.
func All() Predicate {
	return func(Key) bool { return true }
}
