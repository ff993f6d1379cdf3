package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"server-browser/internal/constants"
	"server-browser/internal/domain"
	"server-browser/internal/servers"
)

type Config struct {
	MasterURL  string
	ServerPort string
	DBPath     string
	LogLevel   string

	// LocalBuildID classifies queried servers as outdated when their
	// build differs; 0 means no installed build to compare against.
	LocalBuildID uint32

	QueryConcurrency int
	QueryTimeout     time.Duration
	QueryRetries     int
	// QueryRate caps outbound status datagrams per second.
	QueryRate int

	// RefreshInterval enables periodic refreshes in the daemon; 0 keeps
	// refreshes manual.
	RefreshInterval time.Duration

	Browse BrowseDefaults
}

// BrowseDefaults carries the persisted browser preferences handed to the
// engine as plain data: default filter criteria, sort order and the UI
// scroll-lock flag (passed through untouched).
type BrowseDefaults struct {
	Type                     domain.TypeFilter
	Mode                     *domain.Mode
	Region                   *domain.Region
	BattlEyeRequired         *bool
	IncludeInvalid           bool
	IncludePasswordProtected bool
	IncludeModded            bool
	SortBy                   servers.SortCriteria
	ScrollLock               bool
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		MasterURL:  getEnv("MASTER_URL", ""),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		DBPath:     getEnv("DB_PATH", "browser.db"),
		LogLevel:   getEnv("LOG_LEVEL", "debug"),
	}

	if cfg.MasterURL == "" {
		return nil, fmt.Errorf("MASTER_URL is required")
	}

	var err error
	if cfg.LocalBuildID, err = getEnvUint32("LOCAL_BUILD_ID", 0); err != nil {
		return nil, err
	}
	if cfg.QueryConcurrency, err = getEnvInt("QUERY_CONCURRENCY", 32); err != nil {
		return nil, err
	}
	if cfg.QueryConcurrency < constants.MinQueryConcurrency || cfg.QueryConcurrency > constants.MaxQueryConcurrency {
		return nil, fmt.Errorf("QUERY_CONCURRENCY must be between %d and %d", constants.MinQueryConcurrency, constants.MaxQueryConcurrency)
	}
	if cfg.QueryTimeout, err = getEnvDuration("QUERY_TIMEOUT", time.Second); err != nil {
		return nil, err
	}
	if cfg.QueryRetries, err = getEnvInt("QUERY_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.QueryRetries < 0 || cfg.QueryRetries > constants.MaxQueryRetries {
		return nil, fmt.Errorf("QUERY_RETRIES must be between 0 and %d", constants.MaxQueryRetries)
	}
	if cfg.QueryRate, err = getEnvInt("QUERY_RATE", 256); err != nil {
		return nil, err
	}
	if cfg.QueryRate < 1 {
		return nil, fmt.Errorf("QUERY_RATE must be positive")
	}
	if cfg.RefreshInterval, err = getEnvDuration("REFRESH_INTERVAL", 0); err != nil {
		return nil, err
	}

	if cfg.Browse, err = loadBrowseDefaults(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("master_url", cfg.MasterURL).
		Str("server_port", cfg.ServerPort).
		Str("db_path", cfg.DBPath).
		Str("log_level", cfg.LogLevel).
		Uint32("local_build_id", cfg.LocalBuildID).
		Int("query_concurrency", cfg.QueryConcurrency).
		Dur("query_timeout", cfg.QueryTimeout).
		Int("query_retries", cfg.QueryRetries).
		Int("query_rate", cfg.QueryRate).
		Dur("refresh_interval", cfg.RefreshInterval).
		Str("sort_by", cfg.Browse.SortBy.String()).
		Msg("configuration loaded")

	return cfg, nil
}

func loadBrowseDefaults() (BrowseDefaults, error) {
	var defaults BrowseDefaults
	var err error

	if defaults.Type, err = domain.ParseTypeFilter(getEnv("FILTER_TYPE", "")); err != nil {
		return defaults, fmt.Errorf("FILTER_TYPE: %w", err)
	}
	if raw := getEnv("FILTER_MODE", ""); raw != "" {
		mode, err := domain.ParseMode(raw)
		if err != nil {
			return defaults, fmt.Errorf("FILTER_MODE: %w", err)
		}
		defaults.Mode = &mode
	}
	if raw := getEnv("FILTER_REGION", ""); raw != "" {
		region, err := domain.ParseRegion(raw)
		if err != nil {
			return defaults, fmt.Errorf("FILTER_REGION: %w", err)
		}
		defaults.Region = &region
	}
	if raw := getEnv("BATTLEYE_REQUIRED", ""); raw != "" {
		required, err := strconv.ParseBool(raw)
		if err != nil {
			return defaults, fmt.Errorf("BATTLEYE_REQUIRED: %w", err)
		}
		defaults.BattlEyeRequired = &required
	}
	if defaults.IncludeInvalid, err = getEnvBool("INCLUDE_INVALID", false); err != nil {
		return defaults, err
	}
	if defaults.IncludePasswordProtected, err = getEnvBool("INCLUDE_PASSWORD_PROTECTED", false); err != nil {
		return defaults, err
	}
	if defaults.IncludeModded, err = getEnvBool("INCLUDE_MODDED", false); err != nil {
		return defaults, err
	}
	if defaults.SortBy, err = servers.ParseSortCriteria(getEnv("SORT_BY", "Name")); err != nil {
		return defaults, fmt.Errorf("SORT_BY: %w", err)
	}
	if defaults.ScrollLock, err = getEnvBool("SCROLL_LOCK", true); err != nil {
		return defaults, err
	}

	return defaults, nil
}

// FilterCriteria maps the persisted defaults onto an engine filter.
// BattlEyeRequired keeps its tri-state meaning: nil is no opinion, true
// narrows to protected servers, false to unprotected ones.
func (b BrowseDefaults) FilterCriteria() servers.FilterCriteria {
	return servers.FilterCriteria{
		Type:                     b.Type,
		Mode:                     b.Mode,
		Region:                   b.Region,
		BattlEye:                 b.BattlEyeRequired,
		IncludeInvalid:           b.IncludeInvalid,
		IncludePasswordProtected: b.IncludePasswordProtected,
		IncludeModded:            b.IncludeModded,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return v, nil
}

func getEnvUint32(key string, fallback uint32) (uint32, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return uint32(v), nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return v, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
	return v, nil
}
