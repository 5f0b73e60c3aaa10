// Package model defines the domain data structures shared across the app:
// playlists, their videos, and the transient download progress attached to a
// video while an operation runs. Structures guard their own state so the
// coordinator, the API and UI observers can read them concurrently.
package model
