package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables
const (
	EnvDataDir     = "YTOFFLINE_DATA_DIR"
	EnvDatabaseURL = "YTOFFLINE_DATABASE_URL"
	EnvRedisURL    = "YTOFFLINE_REDIS_URL"
	EnvHTTPAddr    = "YTOFFLINE_HTTP_ADDR"
	EnvBackend     = "YTOFFLINE_BACKEND"
	EnvLogDebug    = "YTOFFLINE_LOG_DEBUG"
)

// File names derived from the data directory
const (
	DefaultConfigFile = "config.yaml"
	DatabaseFileName  = "yt-offline.db"
	LogDirName        = "logs"
)

// Config is the bootstrap configuration read from YAML and the environment.
// Empty values are resolved against the Fyne preferences by Settings.Resolve.
type Config struct {
	DataDir             string
	DatabaseURL         string
	Backend             string
	RefreshSchedule     string
	DownloadNew         bool
	MetadataConcurrency int
	LogDirectory        string
	LogDebug            bool
	RedisURL            string
	HTTPAddr            string
	Playlists           []string

	downloadNewSet bool
}

// configFile represents the YAML structure
type configFile struct {
	DataDir  string `yaml:"data_dir"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Gateway struct {
		Backend             string `yaml:"backend"`
		MetadataConcurrency int    `yaml:"metadata_concurrency"`
	} `yaml:"gateway"`
	Refresh struct {
		Schedule    string `yaml:"schedule"`
		DownloadNew *bool  `yaml:"download_new"`
	} `yaml:"refresh"`
	Logging struct {
		Directory string `yaml:"dir"`
		Debug     bool   `yaml:"debug"`
	} `yaml:"logging"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Playlists []string `yaml:"playlists"`
}

// Load reads the YAML file at path, then applies .env and environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	var cfgFile configFile
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfgFile); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{
		DataDir:             cfgFile.DataDir,
		DatabaseURL:         cfgFile.Database.URL,
		Backend:             cfgFile.Gateway.Backend,
		MetadataConcurrency: cfgFile.Gateway.MetadataConcurrency,
		RefreshSchedule:     cfgFile.Refresh.Schedule,
		LogDirectory:        cfgFile.Logging.Directory,
		LogDebug:            cfgFile.Logging.Debug,
		RedisURL:            cfgFile.Redis.URL,
		HTTPAddr:            cfgFile.HTTP.Addr,
		Playlists:           cfgFile.Playlists,
	}
	if cfgFile.Refresh.DownloadNew != nil {
		cfg.DownloadNew = *cfgFile.Refresh.DownloadNew
		cfg.downloadNewSet = true
	}

	// Load .env file if it exists
	godotenv.Load()

	cfg.DataDir = getEnvOrDefault(EnvDataDir, cfg.DataDir)
	cfg.DatabaseURL = getEnvOrDefault(EnvDatabaseURL, cfg.DatabaseURL)
	cfg.RedisURL = getEnvOrDefault(EnvRedisURL, cfg.RedisURL)
	cfg.HTTPAddr = getEnvOrDefault(EnvHTTPAddr, cfg.HTTPAddr)
	cfg.Backend = getEnvOrDefault(EnvBackend, cfg.Backend)
	cfg.LogDebug = getEnvAsBoolOrDefault(EnvLogDebug, cfg.LogDebug)

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
