package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all tool settings, populated from environment variables.
type Config struct {
	CMRBaseURL    string
	SearchTimeout time.Duration
	PageSize      int
	MaxPages      int

	// Earthdata login credentials for authenticated downloads.
	EarthdataUser     string
	EarthdataPassword string

	DownloadConcurrency int
	DownloadTimeout     time.Duration

	CacheDir     string
	CacheMaxSize int64 // bytes

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

const (
	defaultCMRBaseURL   = "https://cmr.earthdata.nasa.gov/search/granules.json"
	defaultCacheSizeGB  = 5.0
	defaultPageSize     = 100
	defaultMaxPages     = 10
	defaultConcurrency  = 4
	gigabyte            = 1 << 30
	maxAllowedPageSize  = 2000 // CMR hard limit
	defaultShutdownWait = 10 * time.Second
)

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	cacheDir := os.Getenv("QKUN_CACHE_DIR")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache", "qkun")
	}

	cacheSize, err := parseCacheSize()
	if err != nil {
		return nil, err
	}

	pageSize, err := parsePositiveInt("SEARCH_PAGE_SIZE", defaultPageSize)
	if err != nil {
		return nil, err
	}
	if pageSize > maxAllowedPageSize {
		return nil, fmt.Errorf("SEARCH_PAGE_SIZE %d exceeds the CMR limit of %d", pageSize, maxAllowedPageSize)
	}

	maxPages, err := parsePositiveInt("SEARCH_MAX_PAGES", defaultMaxPages)
	if err != nil {
		return nil, err
	}

	concurrency, err := parsePositiveInt("DOWNLOAD_CONCURRENCY", defaultConcurrency)
	if err != nil {
		return nil, err
	}

	searchTimeout, err := parseDuration("SEARCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	downloadTimeout, err := parseDuration("DOWNLOAD_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", defaultShutdownWait)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CMRBaseURL:    envOrDefault("CMR_BASE_URL", defaultCMRBaseURL),
		SearchTimeout: searchTimeout,
		PageSize:      pageSize,
		MaxPages:      maxPages,

		EarthdataUser:     os.Getenv("EARTHDATA_USERNAME"),
		EarthdataPassword: os.Getenv("EARTHDATA_PASSWORD"),

		DownloadConcurrency: concurrency,
		DownloadTimeout:     downloadTimeout,

		CacheDir:     cacheDir,
		CacheMaxSize: cacheSize,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ""),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "text"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.CMRBaseURL == "" {
		return nil, errors.New("CMR_BASE_URL is required")
	}
	if (cfg.EarthdataUser == "") != (cfg.EarthdataPassword == "") {
		return nil, errors.New("EARTHDATA_USERNAME and EARTHDATA_PASSWORD must be set together")
	}

	return cfg, nil
}

// HasCredentials reports whether Earthdata login credentials are configured.
func (c *Config) HasCredentials() bool {
	return c.EarthdataUser != "" && c.EarthdataPassword != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseCacheSize() (int64, error) {
	s := os.Getenv("QKUN_CACHE_SIZE_GB")
	if s == "" {
		return int64(defaultCacheSizeGB * gigabyte), nil
	}
	gb, err := strconv.ParseFloat(s, 64)
	if err != nil || gb <= 0 {
		return 0, fmt.Errorf("invalid QKUN_CACHE_SIZE_GB %q", s)
	}
	return int64(gb * gigabyte), nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}
