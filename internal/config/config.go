// Package config handles engine configuration from environment variables
// with an optional YAML file underneath.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the comparison engine and its server.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	// Comparison
	BaselineDir           string  `yaml:"baseline_dir"`
	ChannelTolerance      int     `yaml:"channel_tolerance"`      // 0-255
	MaxDiffPercent        float64 `yaml:"max_diff_percent"`       // 0-100
	ToleranceDiffPercent  float64 `yaml:"tolerance_diff_percent"` // 0-100, tolerance variant
	CompareWorkers        int     `yaml:"compare_workers"`        // 0 = GOMAXPROCS
	ClearArtifactsOnStart bool    `yaml:"clear_artifacts_on_start"`

	// Outcome recording
	LedgerPath      string        `yaml:"ledger_path"`      // empty disables the SQLite ledger
	LedgerRetention time.Duration `yaml:"ledger_retention"` // pruned at startup; 0 keeps everything
	HistorySize     int           `yaml:"history_size"`

	// Browser capture
	BrowserRemoteURL string        `yaml:"browser_remote_url"` // empty launches a local Chrome
	BrowserHeadless  bool          `yaml:"browser_headless"`
	BrowserStealth   bool          `yaml:"browser_stealth"`
	ViewportWidth    int           `yaml:"viewport_width"`
	ViewportHeight   int           `yaml:"viewport_height"`
	HoverDelay       time.Duration `yaml:"hover_delay"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
	CaptureRetries   int           `yaml:"capture_retries"`
	SettleFrames     int           `yaml:"settle_frames"` // <= 1 disables settling
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTPAddr:             ":8000",
		BaselineDir:          "visual-baselines",
		ChannelTolerance:     10,
		MaxDiffPercent:       0.1,
		ToleranceDiffPercent: 1.0,
		LedgerRetention:      30 * 24 * time.Hour,
		HistorySize:          200,
		BrowserHeadless:      true,
		ViewportWidth:        1920,
		ViewportHeight:       1080,
		HoverDelay:           500 * time.Millisecond,
		NavigateTimeout:      30 * time.Second,
		CaptureRetries:       2,
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if set), then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if err := cfg.overlayFile(path); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.BaselineDir = getEnv("BASELINE_DIR", c.BaselineDir)
	c.ChannelTolerance = getEnvInt("CHANNEL_TOLERANCE", c.ChannelTolerance)
	c.MaxDiffPercent = getEnvFloat("MAX_DIFF_PERCENT", c.MaxDiffPercent)
	c.ToleranceDiffPercent = getEnvFloat("TOLERANCE_DIFF_PERCENT", c.ToleranceDiffPercent)
	c.CompareWorkers = getEnvInt("COMPARE_WORKERS", c.CompareWorkers)
	c.ClearArtifactsOnStart = getEnvBool("CLEAR_ARTIFACTS_ON_START", c.ClearArtifactsOnStart)
	c.LedgerPath = getEnv("LEDGER_PATH", c.LedgerPath)
	c.LedgerRetention = getEnvHours("LEDGER_RETENTION_HOURS", c.LedgerRetention)
	c.HistorySize = getEnvInt("HISTORY_SIZE", c.HistorySize)
	c.BrowserRemoteURL = getEnv("BROWSER_REMOTE_URL", c.BrowserRemoteURL)
	c.BrowserHeadless = getEnvBool("BROWSER_HEADLESS", c.BrowserHeadless)
	c.BrowserStealth = getEnvBool("BROWSER_STEALTH", c.BrowserStealth)
	c.ViewportWidth = getEnvInt("VIEWPORT_WIDTH", c.ViewportWidth)
	c.ViewportHeight = getEnvInt("VIEWPORT_HEIGHT", c.ViewportHeight)
	c.HoverDelay = getEnvMillis("HOVER_DELAY_MS", c.HoverDelay)
	c.NavigateTimeout = getEnvMillis("NAVIGATE_TIMEOUT_MS", c.NavigateTimeout)
	c.CaptureRetries = getEnvInt("CAPTURE_RETRIES", c.CaptureRetries)
	c.SettleFrames = getEnvInt("SETTLE_FRAMES", c.SettleFrames)
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.BaselineDir == "" {
		problems = append(problems, "baseline_dir is empty")
	}
	if c.ChannelTolerance < 0 || c.ChannelTolerance > 255 {
		problems = append(problems, fmt.Sprintf("channel_tolerance %d outside [0, 255]", c.ChannelTolerance))
	}
	if c.MaxDiffPercent < 0 || c.MaxDiffPercent > 100 {
		problems = append(problems, fmt.Sprintf("max_diff_percent %v outside [0, 100]", c.MaxDiffPercent))
	}
	if c.ToleranceDiffPercent < 0 || c.ToleranceDiffPercent > 100 {
		problems = append(problems, fmt.Sprintf("tolerance_diff_percent %v outside [0, 100]", c.ToleranceDiffPercent))
	}
	if c.CompareWorkers < 0 {
		problems = append(problems, "compare_workers is negative")
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		problems = append(problems, fmt.Sprintf("viewport %dx%d is not positive", c.ViewportWidth, c.ViewportHeight))
	}
	if c.CaptureRetries < 0 {
		problems = append(problems, "capture_retries is negative")
	}
	if c.LedgerRetention < 0 {
		problems = append(problems, "ledger_retention is negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func getEnvHours(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if h, err := strconv.Atoi(v); err == nil {
			return time.Duration(h) * time.Hour
		}
	}
	return def
}
