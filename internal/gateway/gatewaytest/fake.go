// Package gatewaytest provides a scriptable in-memory gateway.Gateway.
package gatewaytest

import (
	"context"
	"errors"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/ytget/yt-offline/internal/gateway"
	"github.com/ytget/yt-offline/internal/model"
)

// ErrNotFound is returned for playlists and videos the fake does not know
var ErrNotFound = errors.New("gatewaytest: not found")

// Fake is an in-memory gateway. The zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	cb          func(gateway.Event)
	initCalls   int
	initErr     error
	playlists   map[string]*gateway.PlaylistInfo
	playlistErr map[string]error
	videos      map[string]*gateway.VideoInfo
	videoErr    map[string]error
	downloadErr map[string]error
	blocks      map[string]chan struct{}
	events      []gateway.Event
	writeFiles  bool

	requests      []gateway.DownloadRequest
	metadataCalls []string
	running       int
	maxRunning    int
	started       chan string
}

// New creates an empty fake
func New() *Fake {
	return &Fake{
		playlists:   make(map[string]*gateway.PlaylistInfo),
		playlistErr: make(map[string]error),
		videos:      make(map[string]*gateway.VideoInfo),
		videoErr:    make(map[string]error),
		downloadErr: make(map[string]error),
		blocks:      make(map[string]chan struct{}),
		started:     make(chan string, 64),
		events: []gateway.Event{
			{model.EventKeyStatus: model.EventStatusDownloading, model.EventKeyDownloadedBytes: 50, model.EventKeyTotalBytes: 100},
			{model.EventKeyStatus: model.EventStatusDownloading, model.EventKeyDownloadedBytes: 100, model.EventKeyTotalBytes: 100},
			{model.EventKeyStatus: model.EventStatusFinished},
		},
	}
}

// AddPlaylist registers a playlist listing under url
func (f *Fake) AddPlaylist(url, id, title string, entries ...gateway.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlists[url] = &gateway.PlaylistInfo{ID: id, Title: title, Entries: slices.Clone(entries)}
}

// AddVideo registers metadata for a video, reachable through model.VideoURL(id)
func (f *Fake) AddVideo(id, title string, duration int, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos[model.VideoURL(id)] = &gateway.VideoInfo{ID: id, Title: title, Duration: duration, Description: description}
}

// FailInitialize makes Initialize return err
func (f *Fake) FailInitialize(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initErr = err
}

// FailPlaylist makes FetchPlaylist for url return err
func (f *Fake) FailPlaylist(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlistErr[url] = err
}

// FailVideo makes FetchVideoMetadata for the video return err
func (f *Fake) FailVideo(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoErr[model.VideoURL(id)] = err
}

// FailDownload makes Download of the video emit an error event and return err
func (f *Fake) FailDownload(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadErr[model.VideoURL(id)] = err
}

// SetDownloadEvents replaces the events emitted by every successful download.
// The request token is added to each event.
func (f *Fake) SetDownloadEvents(events ...gateway.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
}

// WriteFiles makes successful downloads create the destination file
func (f *Fake) WriteFiles(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeFiles = enabled
}

// Block makes the next download of the video wait until the returned function is called.
// Metadata fetches of the video block as well.
func (f *Fake) Block(id string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.blocks[model.VideoURL(id)] = ch
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Started receives the URL of every download as it starts
func (f *Fake) Started() <-chan string {
	return f.started
}

// Emit delivers an event to the registered callback as is
func (f *Fake) Emit(ev gateway.Event) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// InitializeCalls returns how many times Initialize ran
func (f *Fake) InitializeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

// Requests returns the download requests in the order they started
func (f *Fake) Requests() []gateway.DownloadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// MetadataCalls returns the URLs passed to FetchVideoMetadata
func (f *Fake) MetadataCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.metadataCalls)
}

// MaxConcurrentDownloads returns the highest number of downloads seen running at once
func (f *Fake) MaxConcurrentDownloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxRunning
}

// Initialize implements gateway.Gateway
func (f *Fake) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.initErr
}

// SetProgressCallback implements gateway.Gateway
func (f *Fake) SetProgressCallback(cb func(gateway.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

// FetchPlaylist implements gateway.Gateway
func (f *Fake) FetchPlaylist(ctx context.Context, url string) (*gateway.PlaylistInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.playlistErr[url]; err != nil {
		return nil, err
	}
	pl, ok := f.playlists[url]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pl
	cp.Entries = slices.Clone(pl.Entries)
	return &cp, nil
}

// FetchVideoMetadata implements gateway.Gateway
func (f *Fake) FetchVideoMetadata(ctx context.Context, url string) (*gateway.VideoInfo, error) {
	f.mu.Lock()
	f.metadataCalls = append(f.metadataCalls, url)
	block := f.blocks[url]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.videoErr[url]; err != nil {
		return nil, err
	}
	v, ok := f.videos[url]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

// Download implements gateway.Gateway
func (f *Fake) Download(ctx context.Context, req gateway.DownloadRequest) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.running++
	f.maxRunning = max(f.maxRunning, f.running)
	block := f.blocks[req.URL]
	delete(f.blocks, req.URL)
	events := slices.Clone(f.events)
	failure := f.downloadErr[req.URL]
	writeFiles := f.writeFiles
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	select {
	case f.started <- req.URL:
	default:
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if failure != nil {
		f.Emit(gateway.Event{model.EventKeyStatus: model.EventStatusError, gateway.EventKeyToken: req.Token})
		return failure
	}

	for _, ev := range events {
		ev = maps.Clone(ev)
		ev[gateway.EventKeyToken] = req.Token
		f.Emit(ev)
	}

	if writeFiles {
		if err := os.WriteFile(req.Destination, []byte("video"), 0644); err != nil {
			return err
		}
	}
	return nil
}

var _ gateway.Gateway = (*Fake)(nil)
