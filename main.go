package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fyne.io/fyne/v2/app"

	"github.com/ytget/yt-offline/internal/config"
	"github.com/ytget/yt-offline/internal/download"
	"github.com/ytget/yt-offline/internal/gateway"
	"github.com/ytget/yt-offline/internal/httpapi"
	"github.com/ytget/yt-offline/internal/library"
	"github.com/ytget/yt-offline/internal/logger"
	"github.com/ytget/yt-offline/internal/platform"
	"github.com/ytget/yt-offline/internal/pubsub"
	"github.com/ytget/yt-offline/internal/scheduler"
	"github.com/ytget/yt-offline/internal/store"
	"github.com/ytget/yt-offline/internal/ui"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const (
	AppID   = "com.ytget.yt-offline"
	AppName = "yt-offline"

	ShutdownTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "path to the YAML configuration file")
	once := flag.Bool("once", false, "refresh every playlist once, then exit")
	downloadNew := flag.Bool("download", false, "download videos that have no local file after refreshing")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [playlist-url ...]\n", AppName)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*configPath, *once, *downloadNew, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func run(configPath string, once, downloadNew bool, urls []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Preferences fill whatever the file and environment leave unset
	fyneApp := app.NewWithID(AppID)
	config.NewSettings(fyneApp).Resolve(cfg)
	if downloadNew {
		cfg.DownloadNew = true
	}

	log, err := logger.Initialize(logger.Options{Directory: cfg.LogDirectory, Debug: cfg.LogDebug})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Close()
	log.Info().Printf("%s v%s starting (data: %s, backend: %s)", AppName, version, cfg.DataDir, cfg.Backend)

	if err := platform.CreateDirectoryIfNotExists(cfg.DataDir); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	layout := platform.NewLayout(cfg.DataDir)

	st, err := store.OpenSQLite(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib := library.New(st, layout, log)
	if err := lib.Load(ctx); err != nil {
		return err
	}
	for _, u := range append(cfg.Playlists, urls...) {
		if _, err := lib.Add(ctx, u); err != nil && !errors.Is(err, library.ErrExists) {
			log.Error().Printf("Skipping playlist %s: %v", u, err)
		}
	}

	gw, err := gateway.New(cfg.Backend, gateway.WithLogger(log))
	if err != nil {
		return err
	}

	dispatch := ui.NewSerialDispatcher()
	defer dispatch.Close()

	var taps []download.ProgressTap
	if cfg.RedisURL != "" {
		publisher, err := pubsub.NewPublisher(cfg.RedisURL, log)
		if err != nil {
			log.Error().Printf("Progress mirror disabled: %v", err)
		} else {
			defer publisher.Close()
			taps = append(taps, publisher.Tap)
		}
	}

	var hub *httpapi.Hub
	if cfg.HTTPAddr != "" && !once {
		hub = httpapi.NewHub(log)
		defer hub.Close()
		taps = append(taps, hub.Tap)
	}

	coord := download.NewCoordinator(gw, dispatch, layout,
		download.WithLogger(log),
		download.WithMetadataConcurrency(cfg.MetadataConcurrency),
		download.WithProgressTap(download.MultiTap(taps...)),
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := coord.Close(shutdownCtx); err != nil {
			log.Error().Printf("Coordinator did not stop cleanly: %v", err)
		}
	}()
	if err := coord.Initialize(ctx); err != nil {
		return err
	}

	sched := scheduler.New(coord, lib, cfg.RefreshSchedule, log, scheduler.WithDownloadNew(cfg.DownloadNew))

	if once {
		err := sched.RefreshAll(ctx)
		if cfg.DownloadNew {
			err = errors.Join(err, sched.DownloadNew(ctx))
		}
		return err
	}

	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(cfg.HTTPAddr, coord, lib, hub, log)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Printf("HTTP API shutdown failed: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info().Println("Shutting down...")
	return lib.SaveAll(context.Background())
}
