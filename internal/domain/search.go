package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MinSearchLength is the shortest normalized query that reaches the backend.
const MinSearchLength = 2

// Search result limits per backend query.
const (
	SearchTextLimit  = 50
	SearchTagLimit   = 50
	SearchUsersLimit = 30
)

// SearchResult holds matching posts and people.
type SearchResult struct {
	Posts []PostWithAuthor `json:"posts"`
	Users []UserProfile    `json:"users"`
}

// NormalizeSearchQuery lower-cases and trims q and strips the LIKE wildcards % and _.
func NormalizeSearchQuery(q string) string {
	q = cases.Lower(language.Und).String(strings.TrimSpace(q))
	q = strings.NewReplacer("%", "", "_", "").Replace(q)
	return strings.TrimSpace(q)
}

// MergePosts concatenates lists, keeping the first occurrence of each post id.
func MergePosts(lists ...[]PostWithAuthor) []PostWithAuthor {
	seen := make(map[string]struct{})
	out := make([]PostWithAuthor, 0)
	for _, list := range lists {
		for _, p := range list {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
