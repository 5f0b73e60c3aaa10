package config

import (
	"path/filepath"

	"fyne.io/fyne/v2"

	"github.com/ytget/yt-offline/internal/gateway"
	"github.com/ytget/yt-offline/internal/platform"
)

// Settings keys for Fyne preferences
const (
	KeyDataDir             = "data_directory"
	KeyGatewayBackend      = "gateway_backend"
	KeyRefreshSchedule     = "refresh_schedule"
	KeyMetadataConcurrency = "metadata_concurrency"
	KeyDownloadNew         = "download_new_videos"
)

// Default values
const (
	DefaultGatewayBackend      = gateway.BackendYTDLP
	DefaultRefreshSchedule     = "0 */6 * * *"
	DefaultMetadataConcurrency = 4
	DefaultDownloadNew         = false
	FallbackDataDir            = "/tmp/yt-offline"
)

// Metadata concurrency bounds
const (
	MinMetadataConcurrency = 1
	MaxMetadataConcurrency = 16
)

// Settings manages application configuration persisted in Fyne preferences
type Settings struct {
	app fyne.App
}

// NewSettings creates a new settings manager
func NewSettings(app fyne.App) *Settings {
	return &Settings{app: app}
}

// GetDataDirectory returns the configured data directory
func (s *Settings) GetDataDirectory() string {
	dir := s.app.Preferences().String(KeyDataDir)
	if dir == "" {
		defaultDir, err := platform.DefaultDataDir()
		if err != nil {
			defaultDir = FallbackDataDir
		}
		s.SetDataDirectory(defaultDir)
		return defaultDir
	}
	return dir
}

// SetDataDirectory sets the data directory
func (s *Settings) SetDataDirectory(dir string) {
	s.app.Preferences().SetString(KeyDataDir, dir)
}

// GetGatewayBackend returns the configured gateway backend
func (s *Settings) GetGatewayBackend() string {
	backend := s.app.Preferences().String(KeyGatewayBackend)
	if backend == "" {
		s.SetGatewayBackend(DefaultGatewayBackend)
		return DefaultGatewayBackend
	}
	return backend
}

// SetGatewayBackend sets the gateway backend; unknown names fall back to the default
func (s *Settings) SetGatewayBackend(backend string) {
	switch backend {
	case gateway.BackendYTDLP, gateway.BackendKKDai:
	default:
		backend = DefaultGatewayBackend
	}
	s.app.Preferences().SetString(KeyGatewayBackend, backend)
}

// GetGatewayBackendOptions returns available backends
func (s *Settings) GetGatewayBackendOptions() []string {
	return []string{gateway.BackendYTDLP, gateway.BackendKKDai}
}

// GetRefreshSchedule returns the cron expression for periodic refreshes
func (s *Settings) GetRefreshSchedule() string {
	schedule := s.app.Preferences().String(KeyRefreshSchedule)
	if schedule == "" {
		s.SetRefreshSchedule(DefaultRefreshSchedule)
		return DefaultRefreshSchedule
	}
	return schedule
}

// SetRefreshSchedule sets the refresh schedule
func (s *Settings) SetRefreshSchedule(schedule string) {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	s.app.Preferences().SetString(KeyRefreshSchedule, schedule)
}

// GetMetadataConcurrency returns how many metadata fetches a refresh runs at once
func (s *Settings) GetMetadataConcurrency() int {
	value := s.app.Preferences().Int(KeyMetadataConcurrency)
	if value <= 0 {
		s.SetMetadataConcurrency(DefaultMetadataConcurrency)
		return DefaultMetadataConcurrency
	}
	return value
}

// SetMetadataConcurrency sets the metadata concurrency
func (s *Settings) SetMetadataConcurrency(count int) {
	if count < MinMetadataConcurrency {
		count = MinMetadataConcurrency
	}
	if count > MaxMetadataConcurrency {
		count = MaxMetadataConcurrency
	}
	s.app.Preferences().SetInt(KeyMetadataConcurrency, count)
}

// GetDownloadNew returns whether new videos are downloaded after each refresh
func (s *Settings) GetDownloadNew() bool {
	return s.app.Preferences().BoolWithFallback(KeyDownloadNew, DefaultDownloadNew)
}

// SetDownloadNew sets whether new videos are downloaded after each refresh
func (s *Settings) SetDownloadNew(enabled bool) {
	s.app.Preferences().SetBool(KeyDownloadNew, enabled)
}

// Resolve fills the settings cfg leaves unset from the preferences and writes
// the resulting values back, so the next start without a file or environment
// behaves the same. Paths that depend on the data directory are derived last.
func (s *Settings) Resolve(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = s.GetDataDirectory()
	} else {
		s.SetDataDirectory(cfg.DataDir)
	}

	if cfg.Backend == "" {
		cfg.Backend = s.GetGatewayBackend()
	} else {
		s.SetGatewayBackend(cfg.Backend)
	}

	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = s.GetRefreshSchedule()
	} else {
		s.SetRefreshSchedule(cfg.RefreshSchedule)
	}

	if cfg.MetadataConcurrency <= 0 {
		cfg.MetadataConcurrency = s.GetMetadataConcurrency()
	} else {
		s.SetMetadataConcurrency(cfg.MetadataConcurrency)
		cfg.MetadataConcurrency = s.GetMetadataConcurrency()
	}

	if cfg.downloadNewSet {
		s.SetDownloadNew(cfg.DownloadNew)
	} else {
		cfg.DownloadNew = s.GetDownloadNew()
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "sqlite:" + filepath.Join(cfg.DataDir, DatabaseFileName)
	}
	if cfg.LogDirectory == "" {
		cfg.LogDirectory = filepath.Join(cfg.DataDir, LogDirName)
	}
}
