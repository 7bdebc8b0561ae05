package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default registry portal page with the EGRN request form
const DefaultPortalURL = "https://rosreestr.gov.ru/wps/portal/p/cc_present/ir_egrn"

// Config holds all configuration for both tools
type Config struct {
	Bot     BotConfig     `json:"bot"`
	Browser BrowserConfig `json:"browser"`
	Captcha CaptchaConfig `json:"captcha"`
	Extract ExtractConfig `json:"extract"`
	Redis   RedisConfig   `json:"redis"`
	Status  StatusConfig  `json:"status"`
	Log     LogConfig     `json:"log"`
}

// BotConfig holds the request submission flow configuration
type BotConfig struct {
	AccessKey       string        `json:"-"`
	ListFile        string        `json:"list_file"`
	PortalURL       string        `json:"portal_url"`
	Region          string        `json:"region"`
	MaxRetries      int           `json:"max_retries"`
	RetryDelay      time.Duration `json:"retry_delay"`
	RequestInterval time.Duration `json:"request_interval"`
}

// BrowserConfig holds browser automation configuration
type BrowserConfig struct {
	Headless     bool   `json:"headless"`
	UserAgent    string `json:"user_agent"`
	WindowWidth  int    `json:"window_width"`
	WindowHeight int    `json:"window_height"`
}

// CaptchaConfig holds anti-captcha configuration
type CaptchaConfig struct {
	ClientKey    string        `json:"-"`
	BaseURL      string        `json:"base_url"`
	MinBalance   float64       `json:"min_balance"`
	PollInterval time.Duration `json:"poll_interval"`
	PollTimeout  time.Duration `json:"poll_timeout"`
	HTTPTimeout  time.Duration `json:"http_timeout"`
	EmptyOnError bool          `json:"empty_on_error"`
}

// ExtractConfig holds archive extraction configuration
type ExtractConfig struct {
	ArchivesDir string `json:"archives_dir"`
	DestDir     string `json:"dest_dir"`
	XMLDir      string `json:"xml_dir"`
	Extension   string `json:"extension"`
	Concurrency int    `json:"concurrency"`
	Command     string `json:"command"`
}

// RedisConfig holds Redis configuration for the submission ledger
type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// StatusConfig holds the optional run status HTTP server configuration
type StatusConfig struct {
	Addr string `json:"addr"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load loads configuration from environment variables. A .env file in the
// working directory, when present, is applied first without overriding
// variables that are already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Bot: BotConfig{
			AccessKey:       getEnv("EGRN_ACCESS_KEY", ""),
			ListFile:        getEnv("EGRN_LIST_FILE", "list.txt"),
			PortalURL:       getEnv("EGRN_PORTAL_URL", DefaultPortalURL),
			Region:          getEnv("EGRN_REGION", "Москва"),
			MaxRetries:      getEnvAsInt("EGRN_MAX_RETRIES", 5),
			RetryDelay:      getEnvAsDuration("EGRN_RETRY_DELAY", 5*time.Second),
			RequestInterval: getEnvAsDuration("EGRN_REQUEST_INTERVAL", 5*time.Minute),
		},
		Browser: BrowserConfig{
			Headless:     getEnvAsBool("BROWSER_HEADLESS", false),
			UserAgent:    getEnv("BROWSER_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"),
			WindowWidth:  getEnvAsInt("BROWSER_WINDOW_WIDTH", 1366),
			WindowHeight: getEnvAsInt("BROWSER_WINDOW_HEIGHT", 768),
		},
		Captcha: CaptchaConfig{
			ClientKey:    getEnv("ANTICAPTCHA_CLIENT_KEY", ""),
			BaseURL:      getEnv("ANTICAPTCHA_BASE_URL", "https://api.anti-captcha.com"),
			MinBalance:   getEnvAsFloat("ANTICAPTCHA_MIN_BALANCE", 1),
			PollInterval: getEnvAsDuration("ANTICAPTCHA_POLL_INTERVAL", 3*time.Second),
			PollTimeout:  getEnvAsDuration("ANTICAPTCHA_POLL_TIMEOUT", 2*time.Minute),
			HTTPTimeout:  getEnvAsDuration("ANTICAPTCHA_HTTP_TIMEOUT", 15*time.Second),
			EmptyOnError: getEnvAsBool("ANTICAPTCHA_EMPTY_ON_ERROR", false),
		},
		Extract: ExtractConfig{
			DestDir:     getEnv("EXTRACT_DEST_DIR", "."),
			XMLDir:      getEnv("EXTRACT_XML_DIR", ""),
			Extension:   getEnv("EXTRACT_EXTENSION", ".zip"),
			Concurrency: getEnvAsInt("EXTRACT_CONCURRENCY", runtime.NumCPU()),
			Command:     getEnv("EXTRACT_COMMAND", "unzip -o -q {archive} -d {dest}"),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			DialTimeout:  time.Duration(getEnvAsInt("REDIS_DIAL_TIMEOUT", 5)) * time.Second,
			ReadTimeout:  time.Duration(getEnvAsInt("REDIS_READ_TIMEOUT", 3)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("REDIS_WRITE_TIMEOUT", 3)) * time.Second,
		},
		Status: StatusConfig{
			Addr: getEnv("STATUS_ADDR", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

// ValidateBot checks the fields the submission bot cannot run without
func (c *Config) ValidateBot() error {
	if c.Bot.AccessKey == "" {
		return fmt.Errorf("registry access key is required")
	}
	if c.Captcha.ClientKey == "" {
		return fmt.Errorf("anti-captcha client key is required")
	}
	if c.Bot.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.Bot.MaxRetries)
	}
	return nil
}

// ValidateExtract checks the fields the archive extraction cannot run without
func (c *Config) ValidateExtract() error {
	if c.Extract.ArchivesDir == "" {
		return fmt.Errorf("archives directory is required")
	}
	if c.Extract.Concurrency < 1 {
		c.Extract.Concurrency = 1
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
