package problem

import (
	"strconv"

	"github.com/gosimple/slug"

	"codeduel/pkg/types"
)

type catalogEntry struct {
	id    int
	title string
	level int
}

// Used when the remote feed cannot produce a candidate. Every level must
// keep at least one entry.
var builtinCatalog = []catalogEntry{
	{1, "Two Sum", 1},
	{20, "Valid Parentheses", 1},
	{21, "Merge Two Sorted Lists", 1},
	{121, "Best Time to Buy and Sell Stock", 1},
	{242, "Valid Anagram", 1},
	{2, "Add Two Numbers", 2},
	{3, "Longest Substring Without Repeating Characters", 2},
	{11, "Container With Most Water", 2},
	{15, "3Sum", 2},
	{49, "Group Anagrams", 2},
	{4, "Median of Two Sorted Arrays", 3},
	{10, "Regular Expression Matching", 3},
	{23, "Merge k Sorted Lists", 3},
	{42, "Trapping Rain Water", 3},
}

// Catalog returns the offline problem catalog with slugs derived from titles.
func Catalog() []types.FeedEntry {
	entries := make([]types.FeedEntry, 0, len(builtinCatalog))
	for _, c := range builtinCatalog {
		entries = append(entries, types.FeedEntry{
			ExternalID: strconv.Itoa(c.id),
			Title:      c.title,
			Slug:       slug.Make(c.title),
			Level:      c.level,
		})
	}
	return entries
}
