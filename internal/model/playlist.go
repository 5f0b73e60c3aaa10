package model

import (
	"maps"
	"slices"
	"sync"
)

// unorderedPosition sorts videos missing from the order map before every mapped one
const unorderedPosition = -1

// Playlist is a remote playlist mirrored locally.
// Storage order is the order videos were added; Videos returns them in remote order.
type Playlist struct {
	mu sync.RWMutex

	url    string
	id     string
	title  string
	state  PlaylistState
	videos []*Video
	order  map[string]int
}

// PlaylistRecord is the persisted form of a Playlist
type PlaylistRecord struct {
	URL    string         `json:"url"`
	ID     string         `json:"id,omitempty"`
	Title  string         `json:"title,omitempty"`
	Order  map[string]int `json:"order"`
	Videos []VideoRecord  `json:"videos"`
}

// NewPlaylist creates a new playlist instance
func NewPlaylist(url string) *Playlist {
	return &Playlist{
		url:    url,
		state:  PlaylistStateLoaded,
		videos: make([]*Video, 0),
		order:  make(map[string]int),
	}
}

// PlaylistFromRecord restores a playlist from its persisted form
func PlaylistFromRecord(r PlaylistRecord) *Playlist {
	p := NewPlaylist(r.URL)
	p.id = r.ID
	p.title = r.Title
	if r.Order != nil {
		p.order = maps.Clone(r.Order)
	}
	for _, vr := range r.Videos {
		p.AddVideo(VideoFromRecord(vr))
	}
	return p
}

// URL returns the source URL of the playlist
func (p *Playlist) URL() string {
	return p.url
}

// ID returns the remote playlist ID, empty before the first refresh
func (p *Playlist) ID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id
}

// Title returns the remote playlist title, empty before the first refresh
func (p *Playlist) Title() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.title
}

// State returns the loading state
func (p *Playlist) State() PlaylistState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// SetState updates the loading state
func (p *Playlist) SetState(state PlaylistState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

// Order returns a copy of the position-by-ID map
func (p *Playlist) Order() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.order)
}

// InOrder reports whether the ID is part of the current remote ordering
func (p *Playlist) InOrder(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.order[id]
	return ok
}

// SetRemote records the attributes returned by a playlist refresh
func (p *Playlist) SetRemote(id, title string, order map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
	p.title = title
	p.order = maps.Clone(order)
	if p.order == nil {
		p.order = make(map[string]int)
	}
}

// Videos returns the stored videos sorted by their remote position.
// Videos absent from the order map come first; ties keep storage order.
func (p *Playlist) Videos() []*Video {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sorted := slices.Clone(p.videos)
	slices.SortStableFunc(sorted, func(a, b *Video) int {
		return p.position(a.ID()) - p.position(b.ID())
	})
	return sorted
}

// Len returns the number of stored videos
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.videos)
}

// AddVideo appends a video unless one with the same ID is already stored.
// It returns false when the call was a no-op.
func (p *Playlist) AddVideo(video *Video) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findLocked(video.ID()) != nil {
		return false
	}
	p.videos = append(p.videos, video)
	return true
}

// AddOrderedVideo appends a video only if its ID is still part of the remote
// ordering and not yet stored. Used for metadata that arrives after a refresh.
func (p *Playlist) AddOrderedVideo(video *Video) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.order[video.ID()]; !ok {
		return false
	}
	if p.findLocked(video.ID()) != nil {
		return false
	}
	p.videos = append(p.videos, video)
	return true
}

// FindVideo returns the stored video with the given ID, or nil
func (p *Playlist) FindVideo(id string) *Video {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.findLocked(id)
}

// Prune removes stored videos that are absent from the order map and returns them
func (p *Playlist) Prune() []*Video {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []*Video
	kept := p.videos[:0]
	for _, v := range p.videos {
		if _, ok := p.order[v.ID()]; ok {
			kept = append(kept, v)
		} else {
			removed = append(removed, v)
		}
	}
	clear(p.videos[len(kept):])
	p.videos = kept
	return removed
}

// MissingEntries returns the IDs, in the given order, that have no stored video
func (p *Playlist) MissingEntries(ids []string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var missing []string
	for _, id := range ids {
		if p.findLocked(id) == nil {
			missing = append(missing, id)
		}
	}
	return missing
}

// Record returns the persisted form of the playlist
func (p *Playlist) Record() PlaylistRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	videos := make([]VideoRecord, 0, len(p.videos))
	for _, v := range p.videos {
		videos = append(videos, v.Record())
	}
	return PlaylistRecord{
		URL:    p.url,
		ID:     p.id,
		Title:  p.title,
		Order:  maps.Clone(p.order),
		Videos: videos,
	}
}

func (p *Playlist) position(id string) int {
	if pos, ok := p.order[id]; ok {
		return pos
	}
	return unorderedPosition
}

func (p *Playlist) findLocked(id string) *Video {
	for _, v := range p.videos {
		if v.ID() == id {
			return v
		}
	}
	return nil
}

// OrderFromIDs builds the position-by-ID map for an ordered list of IDs.
// A repeated ID keeps its last position.
func OrderFromIDs(ids []string) map[string]int {
	order := make(map[string]int, len(ids))
	for i, id := range ids {
		order[id] = i
	}
	return order
}
