package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gfwpro-workflow/internal/shared/telemetry"
)

const (
	DefaultBaseURL          = "https://pro.globalforestwatch.org/api/v1"
	DefaultPollInterval     = 10 * time.Second
	DefaultPollMaxAttempts  = 360
	HeavyPollInterval       = 60 * time.Second
	HeavyPollMaxAttempts    = 60
	DefaultMaxRedirects     = 5
	DefaultHTTPTimeout      = 60 * time.Second
	DefaultWorkerConcurrent = 2
)

// Config holds application configuration.
type Config struct {
	BaseURL        string
	APIToken       string
	UserEmail      string
	CSVPath        string
	Commodity      string
	Analysis       string
	ListNamePrefix string

	PollInterval    time.Duration
	PollMaxAttempts int
	MaxRedirects    int
	HTTPTimeout     time.Duration

	AlertStartDate  string
	AlertEndDate    string
	GHGYield        float64
	GHGBaselineYear int

	OutputDir       string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	SQSQueueURL       string
	WorkerConcurrency int

	DatabaseURL string
	Port        string
	Env         string
	LogLevel    string
	LogFormat   string

	StatusAPIToken     string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load reads configuration from the environment, local env files and an
// optional config file named by GFWPRO_CONFIG.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := strings.TrimSpace(v.GetString("GFWPRO_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			telemetry.Warn("config.file_ignored", map[string]any{"path": path, "error": err.Error()})
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GFWPRO_BASE_URL", DefaultBaseURL)
	v.SetDefault("USER_EMAIL", "demo@example.com")
	v.SetDefault("CSV_PATH", "sample_data/example.csv")
	v.SetDefault("COMMODITY", "Cocoa Generic")
	v.SetDefault("ANALYSIS", "FCD")
	v.SetDefault("LIST_NAME_PREFIX", "client_demo")
	v.SetDefault("POLL_HEAVY", false)
	v.SetDefault("MAX_REDIRECTS", DefaultMaxRedirects)
	v.SetDefault("HTTP_TIMEOUT", DefaultHTTPTimeout.String())
	v.SetDefault("ALERT_START_DATE", "2024-01-01")
	v.SetDefault("ALERT_END_DATE", "2024-12-31")
	v.SetDefault("GHG_YIELD", 0.5)
	v.SetDefault("GHG_BASELINE_YEAR", 2020)
	v.SetDefault("OUTPUT_DIR", ".")
	v.SetDefault("OBJECT_STORE", "local")
	v.SetDefault("LOCAL_STORE_DIR", "./data")
	v.SetDefault("WORKER_CONCURRENCY", DefaultWorkerConcurrent)
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("RATE_LIMIT_RPS", 5.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
}

func fromViper(v *viper.Viper) Config {
	interval, attempts := DefaultPollInterval, DefaultPollMaxAttempts
	if v.GetBool("POLL_HEAVY") {
		interval, attempts = HeavyPollInterval, HeavyPollMaxAttempts
	}
	if raw := strings.TrimSpace(v.GetString("POLL_INTERVAL")); raw != "" {
		if d, err := ParseSeconds(raw); err == nil && d > 0 {
			interval = d
		} else {
			telemetry.Warn("config.poll_interval_invalid", map[string]any{"value": raw, "using": interval.String()})
		}
	}
	if n := v.GetInt("POLL_MAX_ATTEMPTS"); n > 0 {
		attempts = n
	}

	timeout := DefaultHTTPTimeout
	if d, err := ParseSeconds(v.GetString("HTTP_TIMEOUT")); err == nil && d > 0 {
		timeout = d
	}

	return Config{
		BaseURL:            NormalizeBaseURL(v.GetString("GFWPRO_BASE_URL")),
		APIToken:           strings.TrimSpace(v.GetString("GFWPRO_API_TOKEN")),
		UserEmail:          v.GetString("USER_EMAIL"),
		CSVPath:            v.GetString("CSV_PATH"),
		Commodity:          v.GetString("COMMODITY"),
		Analysis:           v.GetString("ANALYSIS"),
		ListNamePrefix:     v.GetString("LIST_NAME_PREFIX"),
		PollInterval:       interval,
		PollMaxAttempts:    attempts,
		MaxRedirects:       positiveOr(v.GetInt("MAX_REDIRECTS"), DefaultMaxRedirects),
		HTTPTimeout:        timeout,
		AlertStartDate:     v.GetString("ALERT_START_DATE"),
		AlertEndDate:       v.GetString("ALERT_END_DATE"),
		GHGYield:           v.GetFloat64("GHG_YIELD"),
		GHGBaselineYear:    v.GetInt("GHG_BASELINE_YEAR"),
		OutputDir:          v.GetString("OUTPUT_DIR"),
		ObjectStoreType:    normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:      v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:          v.GetString("AWS_REGION"),
		S3Bucket:           v.GetString("S3_BUCKET"),
		S3Prefix:           v.GetString("S3_PREFIX"),
		SSEKMSKeyID:        v.GetString("SSE_KMS_KEY_ID"),
		SQSQueueURL:        strings.TrimSpace(v.GetString("GFW_SQS_QUEUE_URL")),
		WorkerConcurrency:  positiveOr(v.GetInt("WORKER_CONCURRENCY"), DefaultWorkerConcurrent),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		Port:               v.GetString("PORT"),
		Env:                normalizeEnv(v.GetString("ENV")),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
		StatusAPIToken:     strings.TrimSpace(v.GetString("STATUS_API_TOKEN")),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		RateLimitRPS:       v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:     v.GetInt("RATE_LIMIT_BURST"),
	}
}

// Validate checks the settings every workflow command depends on.
func (c Config) Validate() error {
	if c.APIToken == "" {
		return errors.New("GFWPRO_API_TOKEN is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("GFWPRO_BASE_URL %q is not an absolute URL", c.BaseURL)
	}
	return nil
}

// NormalizeBaseURL trims trailing slashes and gives scheme-relative URLs an http scheme.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if strings.HasPrefix(base, "//") {
		base = "http:" + base
	}
	return strings.TrimRight(base, "/")
}

// ParseSeconds accepts Go durations ("90s", "1m") and bare integers meaning seconds.
func ParseSeconds(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty duration")
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
