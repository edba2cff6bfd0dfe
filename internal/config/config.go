package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries the agent's policy values. The proximity threshold and the
// capture size/quality constants are deliberately configuration, not
// embedded literals.
type Config struct {
	Host           string
	Port           string
	RequestTimeout time.Duration

	// Backend API
	APIBaseURL string
	APITimeout time.Duration

	// Location gate
	ProximityThresholdM float64
	LocationTimeout     time.Duration
	LocationURL         string // optional companion GPS endpoint

	// Camera session
	CameraURL    string // optional MJPEG device endpoint
	CameraWarmup time.Duration

	// Capture & encode
	CaptureMaxBytes    int
	CaptureQuality     int
	CaptureMinQuality  int
	CaptureQualityStep int

	// Reporting
	DuplicateRadiusM float64

	// Evidence archive (optional)
	EvidenceAccount   string
	EvidenceKey       string
	EvidenceContainer string
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// EvidenceEnabled reports whether an archive sink is configured.
func (c *Config) EvidenceEnabled() bool {
	return c.EvidenceAccount != "" && c.EvidenceKey != "" && c.EvidenceContainer != ""
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:           getEnvOrDefault("HOST", "0.0.0.0"),
		Port:           getEnvOrDefault("PORT", "8080"),
		RequestTimeout: parseDurationOrDefault("REQUEST_TIMEOUT", 60*time.Second),

		APIBaseURL: os.Getenv("API_BASE_URL"),
		APITimeout: parseDurationOrDefault("API_TIMEOUT", 30*time.Second),

		ProximityThresholdM: parseFloatOrDefault("PROXIMITY_THRESHOLD_M", 50),
		LocationTimeout:     parseDurationOrDefault("LOCATION_TIMEOUT", 10*time.Second),
		LocationURL:         os.Getenv("LOCATION_URL"),

		CameraURL:    os.Getenv("CAMERA_URL"),
		CameraWarmup: parseDurationOrDefault("CAMERA_WARMUP", time.Second),

		CaptureMaxBytes:    parseIntOrDefault("CAPTURE_MAX_BYTES", 1000000),
		CaptureQuality:     parseIntOrDefault("CAPTURE_QUALITY", 70),
		CaptureMinQuality:  parseIntOrDefault("CAPTURE_MIN_QUALITY", 30),
		CaptureQualityStep: parseIntOrDefault("CAPTURE_QUALITY_STEP", 10),

		DuplicateRadiusM: parseFloatOrDefault("DUPLICATE_RADIUS_M", 100),

		EvidenceAccount:   os.Getenv("EVIDENCE_ACCOUNT"),
		EvidenceKey:       os.Getenv("EVIDENCE_KEY"),
		EvidenceContainer: os.Getenv("EVIDENCE_CONTAINER"),
	}

	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}
	if err := validateHTTPURL("API_BASE_URL", cfg.APIBaseURL); err != nil {
		return nil, err
	}
	if cfg.LocationURL != "" {
		if err := validateHTTPURL("LOCATION_URL", cfg.LocationURL); err != nil {
			return nil, err
		}
	}
	if cfg.CameraURL != "" {
		if err := validateHTTPURL("CAMERA_URL", cfg.CameraURL); err != nil {
			return nil, err
		}
	}
	if cfg.RequestTimeout <= 0 || cfg.APITimeout <= 0 || cfg.LocationTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be > 0 (got request=%s, api=%s, location=%s)",
			cfg.RequestTimeout, cfg.APITimeout, cfg.LocationTimeout)
	}
	if cfg.ProximityThresholdM <= 0 {
		return nil, fmt.Errorf("PROXIMITY_THRESHOLD_M must be > 0 (got %f)", cfg.ProximityThresholdM)
	}
	if cfg.CaptureMaxBytes <= 0 {
		return nil, fmt.Errorf("CAPTURE_MAX_BYTES must be > 0 (got %d)", cfg.CaptureMaxBytes)
	}
	if cfg.CaptureQuality <= 0 || cfg.CaptureQuality > 100 {
		return nil, fmt.Errorf("CAPTURE_QUALITY must be in (0,100] (got %d)", cfg.CaptureQuality)
	}
	if cfg.CaptureMinQuality <= 0 || cfg.CaptureMinQuality > cfg.CaptureQuality {
		return nil, fmt.Errorf("CAPTURE_MIN_QUALITY must be in (0,%d] (got %d)",
			cfg.CaptureQuality, cfg.CaptureMinQuality)
	}
	if cfg.CaptureQualityStep <= 0 {
		return nil, fmt.Errorf("CAPTURE_QUALITY_STEP must be > 0 (got %d)", cfg.CaptureQualityStep)
	}
	return cfg, nil
}

func validateHTTPURL(name, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https (got %q)", name, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must have a host", name)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}
