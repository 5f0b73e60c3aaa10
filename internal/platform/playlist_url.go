package platform

import (
	"errors"
	"strings"
)

// URL parameters
const (
	PlaylistURLParam       = "list="
	PlaylistParamSeparator = "&"
)

// ErrNotPlaylistURL is returned for URLs that carry no playlist ID
var ErrNotPlaylistURL = errors.New("not a playlist URL")

// IsPlaylistURL checks if the URL is a YouTube playlist URL
func IsPlaylistURL(url string) bool {
	id, err := ExtractPlaylistID(url)
	return err == nil && id != ""
}

// ExtractPlaylistID extracts the playlist ID from a YouTube playlist URL.
// Supported formats:
//   - https://www.youtube.com/playlist?list=PLAYLIST_ID
//   - https://www.youtube.com/watch?v=VIDEO_ID&list=PLAYLIST_ID
//   - https://www.youtube.com/watch?v=VIDEO_ID&list=PLAYLIST_ID&start_radio=1
func ExtractPlaylistID(url string) (string, error) {
	_, after, found := strings.Cut(url, PlaylistURLParam)
	if !found {
		return "", ErrNotPlaylistURL
	}

	playlistID, _, _ := strings.Cut(after, PlaylistParamSeparator)
	if playlistID == "" {
		return "", ErrNotPlaylistURL
	}

	return playlistID, nil
}
