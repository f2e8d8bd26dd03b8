package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider tags accepted in DEBRID_PROVIDER and REQUESTER_PROVIDERS
var knownProviders = map[string]string{
	"real-debrid": "REALDEBRID_API_TOKEN",
	"alldebrid":   "ALLDEBRID_API_TOKEN",
	"premiumize":  "PREMIUMIZE_API_TOKEN",
	"debrid-link": "DEBRIDLINK_API_TOKEN",
	"torbox":      "TORBOX_API_KEY",
}

// Config holds all application configuration
type Config struct {
	// Server
	ServerPort    string
	WebhookSecret string // expected Authorization header on webhooks, empty disables the check

	// Storage
	StoreDriver  string // "sqlite" or "bolt"
	DatabaseFile string // $CONFIG_DIR/bridgarr.db

	// Queue
	RedisAddr         string // empty runs jobs in-process
	WorkerConcurrency int
	QueueSize         int

	// Metadata (TMDb)
	TMDbAPIKey   string
	TMDbBaseURL  string
	TMDbCacheTTL time.Duration

	// Source resolver (Torrentio)
	TorrentioURL     string // empty disables source resolution
	TorrentioOptions string
	BlacklistFile    string // $CONFIG_DIR/blacklist.txt

	// Debrid providers
	DebridProvider     string
	RequesterProviders map[string]string
	RealDebridToken    string
	AllDebridToken     string
	PremiumizeToken    string
	DebridLinkToken    string
	TorBoxAPIKey       string

	// Acquisition
	ProviderTimeout   time.Duration
	MetadataTimeout   time.Duration
	SourceTimeout     time.Duration
	CacheMaxRetries   int
	CacheRetryInitial time.Duration
	JobLease          time.Duration
	MaxEpisodesPerJob int

	// Link lifecycle
	LinkRefreshSchedule    string
	LinkRefreshWindow      time.Duration
	LinkRefreshTimeout     time.Duration
	LinkRefreshConcurrency int
	LinkMaxFailures        int
	LazyRefreshWindow      time.Duration
	LinkCleanupSchedule    string
	DeadLinkRetention      time.Duration

	// Logging and tracing
	LogLevel       string
	LogFile        string
	TracingEnabled bool
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = v.ReadInConfig()

	setDefaults(v)

	configDir := v.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "bridgarr")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	requesters, err := parseRequesterProviders(v.GetString("REQUESTER_PROVIDERS"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		// Server
		ServerPort:    v.GetString("SERVER_PORT"),
		WebhookSecret: v.GetString("WEBHOOK_SECRET"),

		// Storage
		StoreDriver:  strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseFile: filepath.Join(configDir, "bridgarr.db"),

		// Queue
		RedisAddr:         v.GetString("REDIS_ADDR"),
		WorkerConcurrency: v.GetInt("WORKER_CONCURRENCY"),
		QueueSize:         v.GetInt("QUEUE_SIZE"),

		// Metadata
		TMDbAPIKey:   v.GetString("TMDB_API_KEY"),
		TMDbBaseURL:  v.GetString("TMDB_BASE_URL"),
		TMDbCacheTTL: time.Duration(v.GetInt("TMDB_CACHE_TTL_HOURS")) * time.Hour,

		// Source resolver
		TorrentioURL:     v.GetString("TORRENTIO_URL"),
		TorrentioOptions: v.GetString("TORRENTIO_OPTIONS"),
		BlacklistFile:    v.GetString("BLACKLIST_FILE"),

		// Debrid providers
		DebridProvider:     strings.ToLower(v.GetString("DEBRID_PROVIDER")),
		RequesterProviders: requesters,
		RealDebridToken:    v.GetString("REALDEBRID_API_TOKEN"),
		AllDebridToken:     v.GetString("ALLDEBRID_API_TOKEN"),
		PremiumizeToken:    v.GetString("PREMIUMIZE_API_TOKEN"),
		DebridLinkToken:    v.GetString("DEBRIDLINK_API_TOKEN"),
		TorBoxAPIKey:       v.GetString("TORBOX_API_KEY"),

		// Acquisition
		ProviderTimeout:   seconds(v, "PROVIDER_TIMEOUT_SECONDS"),
		MetadataTimeout:   seconds(v, "METADATA_TIMEOUT_SECONDS"),
		SourceTimeout:     seconds(v, "SOURCE_TIMEOUT_SECONDS"),
		CacheMaxRetries:   v.GetInt("CACHE_MAX_RETRIES"),
		CacheRetryInitial: seconds(v, "CACHE_RETRY_INITIAL_SECONDS"),
		JobLease:          time.Duration(v.GetInt("JOB_LEASE_MINUTES")) * time.Minute,
		MaxEpisodesPerJob: v.GetInt("MAX_EPISODES_PER_JOB"),

		// Link lifecycle
		LinkRefreshSchedule:    v.GetString("LINK_REFRESH_SCHEDULE"),
		LinkRefreshWindow:      time.Duration(v.GetInt("LINK_REFRESH_WINDOW_MINUTES")) * time.Minute,
		LinkRefreshTimeout:     seconds(v, "LINK_REFRESH_TIMEOUT_SECONDS"),
		LinkRefreshConcurrency: v.GetInt("LINK_REFRESH_CONCURRENCY"),
		LinkMaxFailures:        v.GetInt("LINK_MAX_FAILURES"),
		LazyRefreshWindow:      time.Duration(v.GetInt("LAZY_REFRESH_WINDOW_MINUTES")) * time.Minute,
		LinkCleanupSchedule:    v.GetString("LINK_CLEANUP_SCHEDULE"),
		DeadLinkRetention:      time.Duration(v.GetInt("DEAD_LINK_RETENTION_DAYS")) * 24 * time.Hour,

		// Logging
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFile:        v.GetString("LOG_FILE"),
		TracingEnabled: v.GetBool("TRACING_ENABLED"),
	}

	if config.BlacklistFile == "" {
		config.BlacklistFile = filepath.Join(configDir, "blacklist.txt")
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", "sqlite")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("QUEUE_SIZE", 100)
	v.SetDefault("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	v.SetDefault("TMDB_CACHE_TTL_HOURS", 24)
	v.SetDefault("TORRENTIO_URL", "https://torrentio.strem.fun")
	v.SetDefault("TORRENTIO_OPTIONS", "sort=qualitysize|qualityfilter=480p,scr,cam")
	v.SetDefault("DEBRID_PROVIDER", "real-debrid")
	v.SetDefault("PROVIDER_TIMEOUT_SECONDS", 30)
	v.SetDefault("METADATA_TIMEOUT_SECONDS", 10)
	v.SetDefault("SOURCE_TIMEOUT_SECONDS", 20)
	v.SetDefault("CACHE_MAX_RETRIES", 5)
	v.SetDefault("CACHE_RETRY_INITIAL_SECONDS", 5)
	v.SetDefault("JOB_LEASE_MINUTES", 60)
	v.SetDefault("MAX_EPISODES_PER_JOB", 30)
	v.SetDefault("LINK_REFRESH_SCHEDULE", "0 */2 * * *")
	v.SetDefault("LINK_REFRESH_WINDOW_MINUTES", 180)
	v.SetDefault("LINK_REFRESH_TIMEOUT_SECONDS", 30)
	v.SetDefault("LINK_REFRESH_CONCURRENCY", 4)
	v.SetDefault("LINK_MAX_FAILURES", 3)
	v.SetDefault("LAZY_REFRESH_WINDOW_MINUTES", 30)
	v.SetDefault("LINK_CLEANUP_SCHEDULE", "0 * * * *")
	v.SetDefault("DEAD_LINK_RETENTION_DAYS", 7)
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}

func (c *Config) validate() error {
	if c.TMDbAPIKey == "" {
		return fmt.Errorf("TMDB_API_KEY is required")
	}
	if c.StoreDriver != "sqlite" && c.StoreDriver != "bolt" {
		return fmt.Errorf("STORE_DRIVER must be sqlite or bolt, got %q", c.StoreDriver)
	}

	tokenKey, ok := knownProviders[c.DebridProvider]
	if !ok {
		return fmt.Errorf("DEBRID_PROVIDER %q is not supported", c.DebridProvider)
	}
	if c.ProviderToken(c.DebridProvider) == "" {
		return fmt.Errorf("%s is required for DEBRID_PROVIDER %s", tokenKey, c.DebridProvider)
	}
	for requester, provider := range c.RequesterProviders {
		if c.ProviderToken(provider) == "" {
			return fmt.Errorf("REQUESTER_PROVIDERS maps %s to %s but %s is not set", requester, provider, knownProviders[provider])
		}
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.LinkMaxFailures < 1 {
		return fmt.Errorf("LINK_MAX_FAILURES must be at least 1")
	}
	if c.LinkRefreshConcurrency < 1 {
		return fmt.Errorf("LINK_REFRESH_CONCURRENCY must be at least 1")
	}
	return nil
}

// ProviderToken returns the credential configured for a provider tag
func (c *Config) ProviderToken(provider string) string {
	switch provider {
	case "real-debrid":
		return c.RealDebridToken
	case "alldebrid":
		return c.AllDebridToken
	case "premiumize":
		return c.PremiumizeToken
	case "debrid-link":
		return c.DebridLinkToken
	case "torbox":
		return c.TorBoxAPIKey
	default:
		return ""
	}
}

// parseRequesterProviders parses "alice:premiumize,bob:alldebrid"
func parseRequesterProviders(raw string) (map[string]string, error) {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		requester, provider, ok := strings.Cut(entry, ":")
		requester = strings.TrimSpace(requester)
		provider = strings.ToLower(strings.TrimSpace(provider))
		if !ok || requester == "" || provider == "" {
			return nil, fmt.Errorf("invalid REQUESTER_PROVIDERS entry %q, expected requester:provider", entry)
		}
		if _, known := knownProviders[provider]; !known {
			return nil, fmt.Errorf("REQUESTER_PROVIDERS entry %q uses unsupported provider %s", entry, provider)
		}
		result[strings.ToLower(requester)] = provider
	}
	return result, nil
}
