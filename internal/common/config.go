package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the root application configuration, loaded from TOML and then
// overlaid with the environment variables documented in spec.md section 6.
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Pool        BrowserPoolConfig `toml:"browser_pool"`
	Context     ContextConfig   `toml:"browser_context"`
	Captcha     CaptchaConfig   `toml:"captcha"`
	Widget      WidgetConfig    `toml:"widget"`
	Audio       AudioConfig     `toml:"audio"`
	Solver      SolverConfig    `toml:"solver"`
}

type ServerConfig struct {
	DefaultBrowserType string `toml:"default_browser_type"` // DEFAULT_BROWSER_TYPE_ID
}

type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"`
	BadgerPath string `toml:"badger_path"` // empty => in-memory
}

type LoggingConfig struct {
	Level      string   `toml:"level"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

type SchedulerConfig struct {
	PollInterval      time.Duration `toml:"poll_interval"`       // ~1 Hz
	HeartbeatInterval time.Duration `toml:"heartbeat_interval"`  // 10s
	ReaperInterval    time.Duration `toml:"reaper_interval"`     // 10s
	HeartbeatTimeout  time.Duration `toml:"heartbeat_timeout"`   // 30s
	MaxConcurrentJobs int           `toml:"max_concurrent_jobs"` // per-worker cap, default 5
	MaxRetryBackoff   time.Duration `toml:"max_retry_backoff"`
}

type BrowserPoolConfig struct {
	MinSize     int           `toml:"min_size"`
	MaxSize     int           `toml:"max_size"`
	IdleTimeout time.Duration `toml:"idle_timeout"` // 5m
	AcquireWait time.Duration `toml:"acquire_wait"`
	Headless    bool          `toml:"headless"`
}

type ContextConfig struct {
	ViewportWidth   int      `toml:"viewport_width"`
	ViewportHeight  int      `toml:"viewport_height"`
	DefaultLocale   string   `toml:"default_locale"`
	DefaultTimezone string   `toml:"default_timezone"`
	HardwareMin     int      `toml:"hardware_concurrency_min"`
	HardwareMax     int      `toml:"hardware_concurrency_max"`
	BlockedResources []string `toml:"blocked_resource_types"`
}

type CaptchaConfig struct {
	CircuitBreakerFailureThreshold int           `toml:"circuit_breaker_failure_threshold"`
	CircuitBreakerTimeoutPeriod    time.Duration `toml:"circuit_breaker_timeout_period"`
	CacheTTL                       time.Duration `toml:"cache_ttl"`
	RetryMaxAttempts               int           `toml:"retry_max_attempts"`
	RetryBackoff                   time.Duration `toml:"retry_backoff"`
	RetryMaxBackoff                time.Duration `toml:"retry_max_backoff"`
	MinConfidenceThreshold         float64       `toml:"min_confidence_threshold"`
	MinStrongConfidence            float64       `toml:"min_strong_confidence"`
}

type WidgetConfig struct {
	LocateTimeout       time.Duration `toml:"locate_timeout"`        // 5s
	PollInterval        time.Duration `toml:"poll_interval"`         // 500ms
	ClickDelayMinMs     int           `toml:"click_delay_min_ms"`    // 500
	ClickDelayMaxMs     int           `toml:"click_delay_max_ms"`    // 2000
	TypingDelayMinMs    int           `toml:"typing_delay_min_ms"`   // 50
	TypingDelayMaxMs    int           `toml:"typing_delay_max_ms"`   // 150
	ForceClicks         bool          `toml:"force_clicks"`
	DebugScreenshotDir  string        `toml:"debug_screenshot_dir"` // empty => disabled
}

type AudioConfig struct {
	ProviderPriority    []string      `toml:"provider_priority"`
	MinConfidence       float64       `toml:"min_confidence"`
	MaxRetries          int           `toml:"max_retries"`
	CacheTTL            time.Duration `toml:"cache_ttl"`
	EnableCache         bool          `toml:"enable_cache"`
	RateLimitPerMinute  int           `toml:"rate_limit_per_minute"`
	TempDir             string        `toml:"temp_dir"`
	Timeout             time.Duration `toml:"timeout"`
}

type SolverConfig struct {
	MaxConcurrency   int           `toml:"max_concurrency"`
	MaxAttempts      int           `toml:"max_attempts"`
	InitialRetryDelay time.Duration `toml:"initial_retry_delay"`
	MaxRetryDelay    time.Duration `toml:"max_retry_delay"`
}

// DefaultConfig returns the spec.md-documented defaults (section 4 and 6).
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server:      ServerConfig{DefaultBrowserType: "chromium"},
		Storage: StorageConfig{
			SQLitePath: "./data/hive.db",
			BadgerPath: "",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Scheduler: SchedulerConfig{
			PollInterval:      time.Second,
			HeartbeatInterval: 10 * time.Second,
			ReaperInterval:    10 * time.Second,
			HeartbeatTimeout:  30 * time.Second,
			MaxConcurrentJobs: 5,
			MaxRetryBackoff:   60 * time.Second,
		},
		Pool: BrowserPoolConfig{
			MinSize:     1,
			MaxSize:     5,
			IdleTimeout: 5 * time.Minute,
			AcquireWait: 30 * time.Second,
			Headless:    true,
		},
		Context: ContextConfig{
			ViewportWidth:    1366,
			ViewportHeight:   768,
			DefaultLocale:    "en-US",
			DefaultTimezone:  "America/New_York",
			HardwareMin:      2,
			HardwareMax:      8,
			BlockedResources: []string{"image", "font", "media"},
		},
		Captcha: CaptchaConfig{
			CircuitBreakerFailureThreshold: 3,
			CircuitBreakerTimeoutPeriod:    60 * time.Second,
			CacheTTL:                       5 * time.Minute,
			RetryMaxAttempts:               3,
			RetryBackoff:                   time.Second,
			RetryMaxBackoff:                10 * time.Second,
			MinConfidenceThreshold:         0.5,
			MinStrongConfidence:            0.7,
		},
		Widget: WidgetConfig{
			LocateTimeout:      5 * time.Second,
			PollInterval:       500 * time.Millisecond,
			ClickDelayMinMs:    500,
			ClickDelayMaxMs:    2000,
			TypingDelayMinMs:   50,
			TypingDelayMaxMs:   150,
			DebugScreenshotDir: "",
		},
		Audio: AudioConfig{
			ProviderPriority:   []string{"google_speech", "openai_whisper", "azure_speech"},
			MinConfidence:      0.7,
			MaxRetries:         3,
			CacheTTL:           24 * time.Hour,
			EnableCache:        true,
			RateLimitPerMinute: 60,
			TempDir:            os.TempDir(),
			Timeout:            60 * time.Second,
		},
		Solver: SolverConfig{
			MaxConcurrency:    10,
			MaxAttempts:       3,
			InitialRetryDelay: time.Second,
			MaxRetryDelay:     30 * time.Second,
		},
	}
}

// LoadConfig reads TOML from path (if it exists) over the defaults, then
// applies environment variable overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// ApplyEnvOverrides layers the environment variables documented in spec.md
// section 6 on top of whatever TOML/defaults already populated cfg.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DEFAULT_BROWSER_TYPE_ID"); v != "" {
		c.Server.DefaultBrowserType = v
	}

	envInt(&c.Captcha.CircuitBreakerFailureThreshold, "CAPTCHA_CIRCUIT_BREAKER_FAILURE_THRESHOLD")
	envMillis(&c.Captcha.CircuitBreakerTimeoutPeriod, "CAPTCHA_CIRCUIT_BREAKER_TIMEOUT_PERIOD")
	envMillis(&c.Captcha.CacheTTL, "CAPTCHA_CACHE_TTL")
	envInt(&c.Captcha.RetryMaxAttempts, "CAPTCHA_RETRY_MAX_ATTEMPTS")
	envMillis(&c.Captcha.RetryBackoff, "CAPTCHA_RETRY_BACKOFF_MS")
	envMillis(&c.Captcha.RetryMaxBackoff, "CAPTCHA_RETRY_MAX_BACKOFF_MS")
	envFloat(&c.Captcha.MinConfidenceThreshold, "CAPTCHA_DETECTION_MIN_CONFIDENCE_THRESHOLD")
	envFloat(&c.Captcha.MinStrongConfidence, "CAPTCHA_DETECTION_MIN_STRONG_CONFIDENCE")

	if v := os.Getenv("AUDIO_CAPTCHA_PROVIDER_PRIORITY"); v != "" {
		parts := strings.Split(v, ",")
		list := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		if len(list) > 0 {
			c.Audio.ProviderPriority = list
		}
	}
	envFloat(&c.Audio.MinConfidence, "AUDIO_CAPTCHA_MIN_CONFIDENCE")
	envInt(&c.Audio.MaxRetries, "AUDIO_CAPTCHA_MAX_RETRIES")
	if v := os.Getenv("AUDIO_CAPTCHA_CACHE_TTL_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			c.Audio.CacheTTL = time.Duration(hours) * time.Hour
		}
	}
	if v := os.Getenv("AUDIO_CAPTCHA_ENABLE_CACHE"); v != "" {
		c.Audio.EnableCache = v == "true" || v == "1"
	}
	envInt(&c.Audio.RateLimitPerMinute, "AUDIO_CAPTCHA_RATE_LIMIT")
	if v := os.Getenv("AUDIO_CAPTCHA_TEMP_DIR"); v != "" {
		c.Audio.TempDir = v
	}
	envMillis(&c.Audio.Timeout, "AUDIO_CAPTCHA_TIMEOUT")
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envMillis(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
}

// APIKeysFromEnv splits a comma-separated API key list from an environment
// variable, used for round-robin rotation across external solver providers
// (2CAPTCHA_API_KEY, ANTICAPTCHA_API_KEY).
func APIKeysFromEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}
