package domain

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// TagCount is a tag and the number of public posts carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

var (
	// Matches a leading emoji or punctuation label such as "🍕 " in "🍕 pizza".
	tagPrefixRe = regexp.MustCompile(`^[^\p{L}\p{N}]+\s+`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// NormalizeTag strips a decorative prefix, case-folds and trims a tag.
//
//	"🍕 pizza"     -> "pizza"
//	"  Date-Night" -> "date-night"
//	"New   York"   -> "new york"
func NormalizeTag(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = tagPrefixRe.ReplaceAllString(s, "")
	s = cases.Fold().String(s) // Casers are stateful; one per call.
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeTags normalizes each tag, drops empties and duplicates, and keeps at most MaxTags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, min(len(tags), MaxTags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

var placeTypeTags = map[string]string{
	"restaurant":    "restaurant",
	"food":          "food",
	"cafe":          "cafe",
	"bar":           "bar",
	"bakery":        "bakery",
	"meal_delivery": "delivery",
	"meal_takeaway": "takeaway",
	"night_club":    "nightlife",
}

// AutoTags derives up to five tags from a place's provider types and city.
func AutoTags(placeTypes []string, city string) []string {
	var tags []string
	for _, t := range placeTypes {
		if tag, ok := placeTypeTags[t]; ok && !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	if city != "" {
		tags = append(tags, NormalizeTag(city))
	}
	if len(tags) > 5 {
		tags = tags[:5]
	}
	return tags
}

// CountTags tallies tags across posts, sorted by count descending then tag.
func CountTags(tagLists [][]string) []TagCount {
	counts := make(map[string]int)
	for _, tags := range tagLists {
		for _, t := range tags {
			counts[t]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	slices.SortFunc(out, func(a, b TagCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Tag, b.Tag)
	})
	return out
}
