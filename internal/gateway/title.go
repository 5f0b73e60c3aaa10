package gateway

import "strings"

// Playlist title constants
const (
	MinPrefixLength      = 10
	PlaylistSuffix       = " Playlist"
	DefaultPlaylistTitle = "Unknown Playlist"
)

// playlistTitleFromEntries derives a title for listings that carry none:
// a long enough common prefix of the first two titles, else the first title.
func playlistTitleFromEntries(entries []Entry) string {
	if len(entries) == 0 {
		return DefaultPlaylistTitle
	}
	if len(entries) > 1 {
		commonPrefix := findCommonPrefix(entries[0].Title, entries[1].Title)
		if len(commonPrefix) > MinPrefixLength {
			return strings.TrimSpace(commonPrefix) + PlaylistSuffix
		}
	}
	return entries[0].Title + PlaylistSuffix
}

// findCommonPrefix finds the common prefix between two strings
func findCommonPrefix(s1, s2 string) string {
	minLen := min(len(s1), len(s2))
	for i := 0; i < minLen; i++ {
		if s1[i] != s2[i] {
			return s1[:i]
		}
	}
	return s1[:minLen]
}
