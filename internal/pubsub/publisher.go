// Package pubsub mirrors download progress to Redis so that other processes
// can follow it.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ytget/yt-offline/internal/logger"
	"github.com/ytget/yt-offline/internal/model"
)

// Channel and key layout
const (
	ProgressChannelPrefix = "ytoffline:progress:"
	ProgressAllChannel    = "ytoffline:progress:all"
	ProgressKeyPrefix     = "ytoffline:progress:last:"
)

// Timing and buffering
const (
	ProgressTTL       = 24 * time.Hour
	ConnectTimeout    = 10 * time.Second
	PublishTimeout    = 5 * time.Second
	DefaultTapBacklog = 256
	// ClearWaitTimeout bounds how long Tap waits for backlog space for a clear
	ClearWaitTimeout = time.Second
)

// Publisher sends progress updates to Redis
type Publisher struct {
	client *redis.Client
	log    *logger.Manager

	mu      sync.RWMutex
	closed  bool
	updates chan model.ProgressUpdate
	done    chan struct{}
}

// NewPublisher connects to the Redis server at redisURL
func NewPublisher(redisURL string, log *logger.Manager) (*Publisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ConnectTimeout)
	defer cancel()

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return newPublisher(client, log), nil
}

func newPublisher(client *redis.Client, log *logger.Manager) *Publisher {
	if log == nil {
		log = logger.Default()
	}
	p := &Publisher{
		client:  client,
		log:     log,
		updates: make(chan model.ProgressUpdate, DefaultTapBacklog),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// ChannelName returns the per-video channel
func ChannelName(videoID string) string {
	return ProgressChannelPrefix + videoID
}

// KeyName returns the key holding the latest progress of a video
func KeyName(videoID string) string {
	return ProgressKeyPrefix + videoID
}

// Publish sends the progress of a video and stores it as the latest value
func (p *Publisher) Publish(ctx context.Context, videoID string, progress model.DownloadProgress) error {
	return p.publish(ctx, model.NewProgressUpdate(videoID, progress, true))
}

// Clear removes the stored progress of a video and announces it as idle
func (p *Publisher) Clear(ctx context.Context, videoID string) error {
	if err := p.client.Del(ctx, KeyName(videoID)).Err(); err != nil {
		return fmt.Errorf("clear progress of %s: %w", videoID, err)
	}
	data, err := json.Marshal(model.NewProgressUpdate(videoID, model.DownloadProgress{}, false))
	if err != nil {
		return err
	}
	return p.broadcast(ctx, videoID, data)
}

// Latest returns the stored progress of a video; ok is false when none is stored
func (p *Publisher) Latest(ctx context.Context, videoID string) (update model.ProgressUpdate, ok bool, err error) {
	data, err := p.client.Get(ctx, KeyName(videoID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ProgressUpdate{}, false, nil
	}
	if err != nil {
		return model.ProgressUpdate{}, false, fmt.Errorf("read progress of %s: %w", videoID, err)
	}
	if err := json.Unmarshal(data, &update); err != nil {
		return model.ProgressUpdate{}, false, fmt.Errorf("decode progress of %s: %w", videoID, err)
	}
	return update, true, nil
}

// Tap queues a progress value for publishing. It has the shape of a
// download.ProgressTap. Progress values are dropped when the backlog is full;
// a clear is the last update of a download and waits up to ClearWaitTimeout
// for space instead. Nothing is queued once the publisher is closed.
func (p *Publisher) Tap(videoID string, progress model.DownloadProgress, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	update := model.NewProgressUpdate(videoID, progress, ok)
	if ok {
		select {
		case p.updates <- update:
		default:
			p.log.Debug().Printf("Progress backlog full, dropped update for video %s", videoID)
		}
		return
	}

	timer := time.NewTimer(ClearWaitTimeout)
	defer timer.Stop()
	select {
	case p.updates <- update:
	case <-timer.C:
		p.log.Error().Printf("Progress backlog stalled, dropped clear for video %s", videoID)
	}
}

// Close publishes what is still queued and closes the connection
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.updates)
	p.mu.Unlock()

	<-p.done
	return p.client.Close()
}

func (p *Publisher) run() {
	defer close(p.done)

	for update := range p.updates {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		var err error
		if update.Status == model.UpdateStatusIdle {
			err = p.Clear(ctx, update.VideoID)
		} else {
			err = p.publish(ctx, update)
		}
		cancel()
		if err != nil {
			p.log.Error().Printf("Failed to publish progress for video %s: %v", update.VideoID, err)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, update model.ProgressUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	if err := p.broadcast(ctx, update.VideoID, data); err != nil {
		return err
	}

	// Store latest progress with TTL
	if err := p.client.Set(ctx, KeyName(update.VideoID), data, ProgressTTL).Err(); err != nil {
		return fmt.Errorf("store progress of %s: %w", update.VideoID, err)
	}
	return nil
}

func (p *Publisher) broadcast(ctx context.Context, videoID string, data []byte) error {
	if err := p.client.Publish(ctx, ChannelName(videoID), data).Err(); err != nil {
		return fmt.Errorf("publish progress of %s: %w", videoID, err)
	}
	if err := p.client.Publish(ctx, ProgressAllChannel, data).Err(); err != nil {
		return fmt.Errorf("publish progress of %s: %w", videoID, err)
	}
	return nil
}
