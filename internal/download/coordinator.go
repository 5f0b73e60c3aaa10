package download

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ytget/yt-offline/internal/gateway"
	"github.com/ytget/yt-offline/internal/logger"
	"github.com/ytget/yt-offline/internal/model"
	"github.com/ytget/yt-offline/internal/platform"
	"github.com/ytget/yt-offline/internal/ui"
)

// Concurrency constants
const (
	DefaultMetadataConcurrency = 4
)

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the logger
func WithLogger(l *logger.Manager) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetadataConcurrency bounds the metadata fetches a refresh runs in parallel
func WithMetadataConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.metadataConcurrency = n
		}
	}
}

// WithProgressTap registers a tap receiving every progress change
func WithProgressTap(tap ProgressTap) Option {
	return func(c *Coordinator) { c.tap = tap }
}

// task is a unit of work for the serial worker. run executes on the worker;
// the returned follow-up, if any, runs off the worker and its error is joined
// into the job result. abort, if set, undoes the submission side effects of a
// task that never reaches the worker.
type task struct {
	job   *Job
	run   func(ctx context.Context) (follow func() error, err error)
	abort func()
}

// cancel settles the job of a task that will not run
func (t *task) cancel(err error) {
	if t.abort != nil {
		t.abort()
	}
	t.job.settle(err)
}

// activeDownload is the worker-owned slot of the download in flight
type activeDownload struct {
	job      *Job
	video    *model.Video
	observer ProgressObserver
}

// Coordinator serializes gateway work on a single worker goroutine.
// At most one task runs at a time; tasks run in submission order.
type Coordinator struct {
	gw       gateway.Gateway
	dispatch ui.Dispatcher
	layout   *platform.Layout
	log      *logger.Manager
	tap      ProgressTap

	metadataConcurrency int

	initOnce sync.Once
	initJob  *Job

	mu          sync.Mutex
	queue       []*task
	reentries   []func()
	started     bool
	initialized bool
	closed      bool
	loopDone    bool
	wake        chan struct{}
	stopped     chan struct{}

	currentMu sync.Mutex
	current   *activeDownload

	followUps sync.WaitGroup
}

// NewCoordinator creates a coordinator. Initialize must be called before use.
func NewCoordinator(gw gateway.Gateway, dispatch ui.Dispatcher, layout *platform.Layout, opts ...Option) *Coordinator {
	c := &Coordinator{
		gw:                  gw,
		dispatch:            dispatch,
		layout:              layout,
		log:                 logger.Default(),
		metadataConcurrency: DefaultMetadataConcurrency,
		wake:                make(chan struct{}, 1),
		stopped:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize starts the worker, registers the progress callback and sets up
// the gateway on the worker. Only the first call does the work; later calls
// wait for and return its outcome.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initJob = newJob(JobInitialize, "")

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			c.initJob.settle(ErrClosed)
			return
		}
		c.started = true
		c.queue = append(c.queue, &task{job: c.initJob, run: c.initialize})
		c.mu.Unlock()

		go c.loop()
		c.signal()
	})

	res, err := c.initJob.Wait(ctx)
	if err != nil {
		return err
	}
	return res.Err
}

func (c *Coordinator) initialize(ctx context.Context) (func() error, error) {
	c.gw.SetProgressCallback(c.handleEvent)
	if err := c.gw.Initialize(ctx); err != nil {
		c.log.Error().Printf("Gateway initialization failed: %v", err)
		return nil, &Error{Kind: KindGateway, Op: "initialize", Err: err}
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	c.log.Info().Printf("Download coordinator initialized")
	return nil, nil
}

// RefreshPlaylist re-syncs the playlist against the remote source.
// onUpdate, if not nil, is delivered through the dispatcher whenever the
// playlist changed. The job settles once every metadata fetch has finished.
func (c *Coordinator) RefreshPlaylist(p *model.Playlist, onUpdate func()) *Job {
	job := newJob(JobRefresh, p.URL())
	notify := func() {
		if onUpdate != nil {
			c.dispatch.Do(onUpdate)
		}
	}

	c.enqueue(&task{
		job: job,
		run: func(ctx context.Context) (func() error, error) {
			return c.refresh(ctx, p, notify)
		},
	})
	return job
}

func (c *Coordinator) refresh(ctx context.Context, p *model.Playlist, notify func()) (func() error, error) {
	p.SetState(model.PlaylistStateLoading)
	notify()

	info, err := c.gw.FetchPlaylist(ctx, p.URL())
	if err != nil {
		c.log.Error().Printf("Failed to refresh playlist %s: %v", p.URL(), err)
		p.SetState(model.PlaylistStateLoaded)
		notify()
		return nil, &Error{Kind: KindGateway, Op: "refresh " + p.URL(), Err: err}
	}

	ids := info.EntryIDs()
	p.SetRemote(info.ID, info.Title, model.OrderFromIDs(ids))
	for _, v := range p.Prune() {
		c.log.Info().Printf("Removed video %s no longer in playlist %s", v.ID(), info.ID)
	}
	notify()

	missing := p.MissingEntries(ids)
	follow := c.fetchMissing(ctx, p, missing, notify)

	p.SetState(model.PlaylistStateLoaded)
	notify()

	c.log.Info().Printf("Refreshed playlist %s (%d entries, %d new)", info.ID, len(ids), len(missing))
	return follow, nil
}

// fetchMissing returns a follow-up loading metadata for each missing entry in
// parallel. Each new video is appended back on the worker, ahead of queued tasks.
func (c *Coordinator) fetchMissing(ctx context.Context, p *model.Playlist, ids []string, notify func()) func() error {
	if len(ids) == 0 {
		return nil
	}

	return func() error {
		var (
			g    errgroup.Group
			mu   sync.Mutex
			errs []error
		)
		g.SetLimit(c.metadataConcurrency)

		for _, id := range ids {
			g.Go(func() error {
				meta, err := c.gw.FetchVideoMetadata(ctx, model.VideoURL(id))
				if err != nil {
					c.log.Error().Printf("Failed to load metadata for video %s: %v", id, err)
					mu.Lock()
					errs = append(errs, fmt.Errorf("video %s: %w", id, err))
					mu.Unlock()
					return nil
				}

				video := model.NewVideo(id, meta.Title)
				video.SetMetadata(meta.Title, meta.Duration, meta.Description)

				var added bool
				c.onWorker(func() { added = p.AddOrderedVideo(video) })
				if added {
					notify()
				}
				return nil
			})
		}
		_ = g.Wait()

		if len(errs) > 0 {
			return &Error{Kind: KindPartial, Op: "refresh " + p.URL(), Err: errors.Join(errs...)}
		}
		return nil
	}
}

// DownloadVideo queues a download of the video. The video shows Queued
// immediately; onProgress, if not nil, receives every later progress value
// through the dispatcher. The progress is cleared when the job settles.
func (c *Coordinator) DownloadVideo(v *model.Video, onProgress ProgressObserver) *Job {
	c.mu.Lock()
	ready, closed := c.initialized, c.closed
	c.mu.Unlock()

	switch {
	case closed:
		return failedJob(JobDownload, v.ID(), ErrClosed)
	case !ready:
		return failedJob(JobDownload, v.ID(), ErrNotInitialized)
	}

	job := newJob(JobDownload, v.ID())
	c.setProgress(v, model.Queued())

	c.enqueue(&task{
		job: job,
		run: func(ctx context.Context) (func() error, error) {
			return nil, c.download(ctx, job, v, onProgress)
		},
		abort: func() { c.clearProgress(v) },
	})
	return job
}

func (c *Coordinator) download(ctx context.Context, job *Job, v *model.Video, onProgress ProgressObserver) error {
	active := &activeDownload{job: job, video: v, observer: onProgress}

	c.currentMu.Lock()
	c.current = active
	c.setProgress(v, model.Preparing())
	c.currentMu.Unlock()
	c.notify(active, model.Preparing())

	defer func() {
		c.currentMu.Lock()
		c.current = nil
		c.clearProgress(v)
		c.currentMu.Unlock()
	}()
	c.log.Info().Printf("Download started for video %s (job %s)", v.ID(), job.ID)

	if err := c.layout.EnsureVideosDir(); err != nil {
		c.log.Error().Printf("Failed to prepare download directory: %v", err)
		return &Error{Kind: KindFilesystem, Op: "download " + v.ID(), Err: err}
	}

	err := c.gw.Download(ctx, gateway.DownloadRequest{
		URL:         v.URL(),
		Destination: c.layout.DownloadLocation(v.ID()),
		Token:       job.ID,
	})
	if err != nil {
		c.log.Error().Printf("Download failed for video %s: %v", v.ID(), err)
		return &Error{Kind: KindGateway, Op: "download " + v.ID(), Err: err}
	}

	c.log.Info().Printf("Download finished for video %s", v.ID())
	return nil
}

// handleEvent is the single progress callback registered with the gateway.
// Events are attributed to the download in the current slot; events without a
// current download or carrying another job's token are dropped.
// The progress is attached while the slot is held, so no event lands after the
// download has cleared it.
func (c *Coordinator) handleEvent(ev gateway.Event) {
	p := model.ProgressFromEvent(ev)

	c.currentMu.Lock()
	active := c.current
	if active == nil {
		c.currentMu.Unlock()
		c.log.Debug().Printf("Dropping progress event with no active download: %v", map[string]any(ev))
		return
	}
	if token, ok := ev.Token(); ok && token != active.job.ID {
		c.currentMu.Unlock()
		c.log.Debug().Printf("Dropping progress event for job %s, active job is %s", token, active.job.ID)
		return
	}
	c.setProgress(active.video, p)
	c.currentMu.Unlock()

	c.notify(active, p)
}

// notify delivers p to the observer of the download through the dispatcher
func (c *Coordinator) notify(active *activeDownload, p model.DownloadProgress) {
	if active.observer != nil {
		observer := active.observer
		c.dispatch.Do(func() { observer(p) })
	}
}

func (c *Coordinator) setProgress(v *model.Video, p model.DownloadProgress) {
	v.SetProgress(p)
	if c.tap != nil {
		c.tap(v.ID(), p, true)
	}
}

func (c *Coordinator) clearProgress(v *model.Video) {
	v.ClearProgress()
	if c.tap != nil {
		c.tap(v.ID(), model.DownloadProgress{}, false)
	}
}

// Active returns the ID of the video being downloaded, if any
func (c *Coordinator) Active() (string, bool) {
	c.currentMu.Lock()
	defer c.currentMu.Unlock()
	if c.current == nil {
		return "", false
	}
	return c.current.video.ID(), true
}

// Pending returns the number of queued tasks, excluding the running one
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close stops accepting work, fails queued jobs with ErrClosed and waits for
// the running task and outstanding metadata fetches. Nothing in flight is cancelled.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		started := c.started
		c.mu.Unlock()
		if started {
			return c.waitStopped(ctx)
		}
		return nil
	}
	c.closed = true
	dropped := c.queue
	c.queue = nil
	started := c.started
	c.mu.Unlock()

	for _, t := range dropped {
		t.cancel(ErrClosed)
	}
	if len(dropped) > 0 {
		c.log.Info().Printf("Coordinator closed, %d queued jobs cancelled", len(dropped))
	}

	if !started {
		return nil
	}
	c.signal()
	return c.waitStopped(ctx)
}

func (c *Coordinator) waitStopped(ctx context.Context) error {
	select {
	case <-c.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		c.followUps.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue appends a task, or settles its job when the coordinator cannot take it
func (c *Coordinator) enqueue(t *task) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		t.cancel(ErrClosed)
		return
	case !c.initialized:
		c.mu.Unlock()
		t.cancel(ErrNotInitialized)
		return
	}
	c.queue = append(c.queue, t)
	c.mu.Unlock()

	c.signal()
}

func (c *Coordinator) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// onWorker runs fn on the worker before the next queued task and waits for it.
// Once the worker has stopped, fn runs on the caller.
func (c *Coordinator) onWorker(fn func()) {
	done := make(chan struct{})

	c.mu.Lock()
	if c.loopDone {
		c.mu.Unlock()
		fn()
		return
	}
	c.reentries = append(c.reentries, func() {
		defer close(done)
		fn()
	})
	c.mu.Unlock()

	c.signal()
	<-done
}

func (c *Coordinator) loop() {
	defer close(c.stopped)

	ctx := context.Background()
	for {
		c.mu.Lock()
		if len(c.reentries) > 0 {
			reentries := c.reentries
			c.reentries = nil
			c.mu.Unlock()

			for _, fn := range reentries {
				fn()
			}
			continue
		}
		if len(c.queue) == 0 {
			if c.closed {
				c.loopDone = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
			<-c.wake
			continue
		}
		t := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		c.runTask(ctx, t)
	}
}

func (c *Coordinator) runTask(ctx context.Context, t *task) {
	follow, err := t.run(ctx)
	if err != nil || follow == nil {
		t.job.settle(err)
		return
	}

	c.followUps.Add(1)
	go func() {
		defer c.followUps.Done()
		t.job.settle(follow())
	}()
}
