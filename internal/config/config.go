package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/json2m3u/internal/safeurl"
)

// Defaults for every tunable. The player user agent and EPG URL are the values
// downstream players of these playlists expect verbatim.
const (
	DefaultOutputPath       = "playlist.m3u"
	DefaultEPGURL           = "https://avkb.short.gy/jioepg.xml.gz"
	DefaultPlayerUserAgent  = "plaYtv/7.1.3 (Linux;Android 13) ExoPlayerLib/2.11.7"
	DefaultFetchUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultFetchTimeout     = 15 * time.Second
	DefaultFetchMaxBytes    = 32 << 20
	DefaultProbeTimeout     = 5 * time.Second
	DefaultProbeConcurrency = 10
	DefaultProbePerHost     = 4
)

// Probe modes.
const (
	ProbeOff        = "off"
	ProbeStrict     = "strict"
	ProbePermissive = "permissive"
)

// Cookie emission modes.
const (
	CookieEXTHTTP = "exthttp"
	CookiePipe    = "pipe"
)

// Config holds everything one conversion run needs.
// Load from env; flags in cmd/json2m3u may override individual fields.
type Config struct {
	SourceURL string // JSON_SOURCE_URL (required)

	// Output
	OutputPath      string // "-" writes to stdout
	EPGURL          string // x-tvg-url header; empty omits the second header line
	PlayerUserAgent string // #EXTVLCOPT:http-user-agent value
	CookieMode      string // exthttp | pipe

	// Source fetch
	FetchUserAgent string
	FetchTimeout   time.Duration
	FetchMaxBytes  int64

	// Liveness probing
	ProbeMode        string // off | strict | permissive
	ProbeTimeout     time.Duration
	ProbeConcurrency int
	ProbePerHost     int     // max in-flight probes per host; 0 = no per-host cap
	ProbeRate        float64 // probes per second across all workers; 0 = unlimited

	// Ambient
	LogLevel    string
	LogFormat   string // console | json
	MetricsFile string // Prometheus textfile output; "" = disabled
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
func Load() *Config {
	c := &Config{
		SourceURL:        strings.TrimSpace(os.Getenv("JSON_SOURCE_URL")),
		OutputPath:       getEnv("JSON2M3U_OUTPUT", DefaultOutputPath),
		EPGURL:           getEnvAllowEmpty("JSON2M3U_EPG_URL", DefaultEPGURL),
		PlayerUserAgent:  getEnv("JSON2M3U_PLAYER_USER_AGENT", DefaultPlayerUserAgent),
		CookieMode:       strings.ToLower(getEnv("JSON2M3U_COOKIE_MODE", CookieEXTHTTP)),
		FetchUserAgent:   getEnv("JSON2M3U_FETCH_USER_AGENT", DefaultFetchUserAgent),
		FetchTimeout:     getEnvDuration("JSON2M3U_FETCH_TIMEOUT", DefaultFetchTimeout),
		FetchMaxBytes:    int64(getEnvInt("JSON2M3U_FETCH_MAX_BYTES", DefaultFetchMaxBytes)),
		ProbeMode:        getEnvProbeMode("JSON2M3U_PROBE", ProbeOff),
		ProbeTimeout:     getEnvDuration("JSON2M3U_PROBE_TIMEOUT", DefaultProbeTimeout),
		ProbeConcurrency: getEnvInt("JSON2M3U_PROBE_CONCURRENCY", DefaultProbeConcurrency),
		ProbePerHost:     getEnvInt("JSON2M3U_PROBE_PER_HOST", DefaultProbePerHost),
		ProbeRate:        getEnvFloat("JSON2M3U_PROBE_RATE", 0),
		LogLevel:         getEnv("JSON2M3U_LOG_LEVEL", "info"),
		LogFormat:        strings.ToLower(getEnv("JSON2M3U_LOG_FORMAT", "console")),
		MetricsFile:      os.Getenv("JSON2M3U_METRICS_FILE"),
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.FetchMaxBytes <= 0 {
		c.FetchMaxBytes = DefaultFetchMaxBytes
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ProbeConcurrency <= 0 {
		c.ProbeConcurrency = DefaultProbeConcurrency
	}
	if c.ProbePerHost < 0 {
		c.ProbePerHost = 0
	}
	if c.ProbeRate < 0 {
		c.ProbeRate = 0
	}
	return c
}

// ConfigError reports a missing or invalid setting.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Validate checks the settings a run cannot proceed without.
func (c *Config) Validate() error {
	if c.SourceURL == "" {
		return &ConfigError{Key: "JSON_SOURCE_URL", Reason: "not set"}
	}
	if !safeurl.IsHTTPOrHTTPS(c.SourceURL) {
		return &ConfigError{Key: "JSON_SOURCE_URL", Reason: "must be an http or https URL"}
	}
	switch c.ProbeMode {
	case ProbeOff, ProbeStrict, ProbePermissive:
	default:
		return &ConfigError{Key: "JSON2M3U_PROBE", Reason: fmt.Sprintf("unknown mode %q (want off, strict or permissive)", c.ProbeMode)}
	}
	switch c.CookieMode {
	case CookieEXTHTTP, CookiePipe:
	default:
		return &ConfigError{Key: "JSON2M3U_COOKIE_MODE", Reason: fmt.Sprintf("unknown mode %q (want exthttp or pipe)", c.CookieMode)}
	}
	if strings.TrimSpace(c.OutputPath) == "" {
		return &ConfigError{Key: "JSON2M3U_OUTPUT", Reason: "empty path"}
	}
	if c.EPGURL != "" && !safeurl.IsHTTPOrHTTPS(c.EPGURL) {
		return &ConfigError{Key: "JSON2M3U_EPG_URL", Reason: "must be an http or https URL"}
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return &ConfigError{Key: "JSON2M3U_LOG_FORMAT", Reason: fmt.Sprintf("unknown format %q", c.LogFormat)}
	}
	return nil
}

// ProbeEnabled reports whether the liveness stage runs.
func (c *Config) ProbeEnabled() bool {
	return c.ProbeMode == ProbeStrict || c.ProbeMode == ProbePermissive
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvAllowEmpty distinguishes "unset" (default) from "set to empty" (explicitly disabled).
func getEnvAllowEmpty(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvProbeMode(key, defaultVal string) string {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return defaultVal
	}
	return ParseProbeMode(os.Getenv(key))
}

// ParseProbeMode maps boolean-ish values onto probe modes: "true"/"1"/"yes"/"on"
// mean permissive (the mode that tolerates probe false negatives), "false"/"0"/"no"
// mean off. Other strings are lowercased and passed through so Validate can report them.
func ParseProbeMode(s string) string {
	v := strings.TrimSpace(strings.ToLower(s))
	switch v {
	case "true", "1", "yes", "on":
		return ProbePermissive
	case "false", "0", "no":
		return ProbeOff
	}
	return v
}
