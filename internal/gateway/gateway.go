package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ytget/yt-offline/internal/logger"
)

// Backend names
const (
	BackendYTDLP = "ytdlp"
	BackendKKDai = "kkdai"
)

// EventKeyToken carries the correlation token of the download an event belongs to
const EventKeyToken = "token"

// Timeout and retry constants
const (
	DefaultRequestTimeout   = 60 * time.Second
	DefaultProgressInterval = 500 * time.Millisecond
	DefaultMaxRetries       = 1
	DefaultRetryBackoff     = 2 * time.Second
)

var (
	// ErrUnknownBackend is returned by New for an unsupported backend name
	ErrUnknownBackend = errors.New("unknown gateway backend")
	// ErrNoFormat is returned when a video has no downloadable muxed format
	ErrNoFormat = errors.New("no downloadable format")
)

// Event is a progress record in the yt-dlp hook shape, see model.ProgressFromEvent
type Event map[string]any

// Token returns the correlation token carried by the event, if any
func (e Event) Token() (string, bool) {
	token, ok := e[EventKeyToken].(string)
	return token, ok && token != ""
}

// Entry is one item of a remote playlist
type Entry struct {
	ID    string
	Title string
}

// PlaylistInfo is the result of a playlist listing
type PlaylistInfo struct {
	ID      string
	Title   string
	Entries []Entry
}

// EntryIDs returns the entry IDs in playlist order
func (p *PlaylistInfo) EntryIDs() []string {
	ids := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		ids = append(ids, e.ID)
	}
	return ids
}

// VideoInfo is the metadata of a single video
type VideoInfo struct {
	ID          string
	Title       string
	Duration    int // seconds
	Description string
}

// DownloadRequest describes one download.
// The backend writes to Destination + platform.PartialExtension, resumes that
// file when it exists and renames it on success.
type DownloadRequest struct {
	URL         string
	Destination string
	Token       string
}

// Gateway is the remote extraction and download service.
// Only one progress callback is registered at a time.
type Gateway interface {
	Initialize(ctx context.Context) error
	SetProgressCallback(cb func(Event))
	FetchPlaylist(ctx context.Context, url string) (*PlaylistInfo, error)
	FetchVideoMetadata(ctx context.Context, url string) (*VideoInfo, error)
	Download(ctx context.Context, req DownloadRequest) error
}

// Option configures a backend
type Option func(*options)

type options struct {
	log              *logger.Manager
	httpClient       *http.Client
	requestTimeout   time.Duration
	progressInterval time.Duration
	maxRetries       int
	retryBackoff     time.Duration
}

func defaultOptions() options {
	return options{
		log:              logger.Default(),
		requestTimeout:   DefaultRequestTimeout,
		progressInterval: DefaultProgressInterval,
		maxRetries:       DefaultMaxRetries,
		retryBackoff:     DefaultRetryBackoff,
	}
}

// WithLogger sets the logger used by the backend
func WithLogger(l *logger.Manager) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithHTTPClient sets the HTTP client used for remote calls
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRequestTimeout bounds listing and metadata calls
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithProgressInterval sets the minimum time between two downloading events
func WithProgressInterval(d time.Duration) Option {
	return func(o *options) { o.progressInterval = d }
}

// WithRetry sets how many times a failed transfer is retried and the delay before each retry
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(o *options) {
		o.maxRetries = max(maxRetries, 0)
		o.retryBackoff = backoff
	}
}

// New creates the gateway for the named backend; empty selects ytdlp
func New(backend string, opts ...Option) (Gateway, error) {
	switch backend {
	case "", BackendYTDLP:
		return NewYTDLP(opts...), nil
	case BackendKKDai:
		return NewKKDai(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// emitter holds the registered progress callback
type emitter struct {
	mu sync.RWMutex
	cb func(Event)
}

func (e *emitter) SetProgressCallback(cb func(Event)) {
	e.mu.Lock()
	e.cb = cb
	e.mu.Unlock()
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	cb := e.cb
	e.mu.RUnlock()
	if cb != nil {
		cb(ev)
	}
}

// withTimeout applies the request timeout when one is configured
func (o options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.requestTimeout)
}
