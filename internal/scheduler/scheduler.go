// Package scheduler refreshes every known playlist on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/ytget/yt-offline/internal/download"
	"github.com/ytget/yt-offline/internal/library"
	"github.com/ytget/yt-offline/internal/logger"
)

// DefaultRunTimeout bounds one scheduled refresh including optional downloads
const DefaultRunTimeout = 2 * time.Hour

// Option configures a Scheduler
type Option func(*Scheduler)

// WithDownloadNew enables downloading videos that have no local file after each refresh
func WithDownloadNew(enabled bool) Option {
	return func(s *Scheduler) {
		s.downloadNew = enabled
	}
}

// WithRunTimeout overrides DefaultRunTimeout
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

// Scheduler manages the periodic refresh job
type Scheduler struct {
	cron       *cron.Cron
	downloader download.Downloader
	library    *library.Library
	schedule   string
	log        *logger.Manager

	downloadNew bool
	runTimeout  time.Duration

	running sync.Mutex
	initial sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler. schedule accepts 5-field or 6-field (with seconds) cron expressions.
func New(d download.Downloader, lib *library.Library, schedule string, log *logger.Manager, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		downloader: d,
		library:    lib,
		schedule:   normalizeSchedule(schedule),
		log:        log,
		runTimeout: DefaultRunTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the refresh job, starts the cron runner and runs the job once immediately
func (s *Scheduler) Start() error {
	jobID, err := s.cron.AddFunc(s.schedule, s.refreshJob)
	if err != nil {
		return fmt.Errorf("failed to schedule refresh job: %w", err)
	}
	s.log.Info().Printf("Scheduled refresh job with ID: %d, schedule: %s", jobID, s.schedule)

	s.cron.Start()
	s.log.Info().Println("Cron scheduler started")

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.refreshJob()
	}()
	return nil
}

// Stop stops the cron runner and waits for a running refresh job to return.
// Jobs already queued on the coordinator are not withdrawn.
func (s *Scheduler) Stop() {
	s.log.Info().Println("Stopping cron scheduler...")
	s.cancel()
	<-s.cron.Stop().Done()
	s.initial.Wait()
	s.log.Info().Println("Cron scheduler stopped")
}

// RefreshAll refreshes every playlist, waits for all refresh jobs and persists the library
func (s *Scheduler) RefreshAll(ctx context.Context) error {
	playlists := s.library.All()
	jobs := make([]*download.Job, 0, len(playlists))
	for _, p := range playlists {
		jobs = append(jobs, s.downloader.RefreshPlaylist(p, nil))
	}

	errs := waitAll(ctx, jobs)
	if err := s.library.SaveAll(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DownloadNew queues every video without a final or partial file and waits for the downloads
func (s *Scheduler) DownloadNew(ctx context.Context) error {
	var jobs []*download.Job
	for _, p := range s.library.All() {
		for _, v := range s.library.NotDownloaded(p) {
			jobs = append(jobs, s.downloader.DownloadVideo(v, nil))
		}
	}
	if len(jobs) > 0 {
		s.log.Info().Printf("Queued %d new videos for download", len(jobs))
	}
	return errors.Join(waitAll(ctx, jobs)...)
}

// refreshJob is the cron job function; overlapping runs are skipped
func (s *Scheduler) refreshJob() {
	if !s.running.TryLock() {
		s.log.Info().Println("Refresh job still running, skipping")
		return
	}
	defer s.running.Unlock()

	s.log.Info().Println("Starting refresh job...")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()

	if err := s.RefreshAll(ctx); err != nil {
		s.log.Error().Printf("Refresh job failed: %v", err)
	}
	if s.downloadNew {
		if err := s.DownloadNew(ctx); err != nil {
			s.log.Error().Printf("Downloading new videos failed: %v", err)
		}
	}

	s.log.Info().Printf("Refresh job completed in %v", time.Since(startTime))
}

// waitAll waits for every job and returns the failures. When ctx ends first
// the remaining jobs are left running and ctx's error is reported once.
func waitAll(ctx context.Context, jobs []*download.Job) []error {
	var errs []error
	for _, job := range jobs {
		res, err := job.Wait(ctx)
		if err != nil {
			return append(errs, err)
		}
		if !res.OK() {
			errs = append(errs, res.Err)
		}
	}
	return errs
}

// normalizeSchedule ensures cron expressions are compatible with cron.WithSeconds
func normalizeSchedule(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) == 5 {
		return "0 " + expr
	}
	return expr
}
