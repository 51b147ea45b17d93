// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// LoggerConfig controls the zap logger setup.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy             string        `mapstructure:"proxy" yaml:"proxy"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	HighlightElements bool          `mapstructure:"highlight_elements" yaml:"highlight_elements"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// AgentConfig tunes the decision loop.
type AgentConfig struct {
	LLM             LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	MaxIterations   int             `mapstructure:"max_iterations" yaml:"max_iterations"`
	PlanningRetries int             `mapstructure:"planning_retries" yaml:"planning_retries"`
	// ElementRetryCeiling bounds the per-element retry counter. Once an
	// element reaches the ceiling it is excluded from planning for the rest
	// of the session.
	ElementRetryCeiling int `mapstructure:"element_retry_ceiling" yaml:"element_retry_ceiling"`
	// HistoryWindow is how many recent attempt records are serialized into
	// the planning prompt.
	HistoryWindow int `mapstructure:"history_window" yaml:"history_window"`
	// SnapshotByteBudget bounds the serialized snapshot size in the prompt;
	// low-priority text is truncated first.
	SnapshotByteBudget int           `mapstructure:"snapshot_byte_budget" yaml:"snapshot_byte_budget"`
	ExtractionRetryWait time.Duration `mapstructure:"extraction_retry_wait" yaml:"extraction_retry_wait"`
	// LLMRequestsPerSecond is a process-wide rate limit shared by all
	// concurrent sessions.
	LLMRequestsPerSecond float64 `mapstructure:"llm_requests_per_second" yaml:"llm_requests_per_second"`
	// MaxConcurrentSessions caps how many browser tabs run their loops at
	// once when a task file supplies multiple assignments.
	MaxConcurrentSessions int `mapstructure:"max_concurrent_sessions" yaml:"max_concurrent_sessions"`
	// StateDir is where session memory is archived when persistence is on.
	StateDir     string `mapstructure:"state_dir" yaml:"state_dir"`
	PersistState bool   `mapstructure:"persist_state" yaml:"persist_state"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"     // Raw REST client.
	ProviderGeminiSDK LLMProvider = "gemini-sdk" // google.golang.org/genai SDK client.
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"api_key"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// StoreConfig configures the optional durable attempt-history archive.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "red")
	v.SetDefault("logger.colors.panic", "red")
	v.SetDefault("logger.colors.fatal", "red")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.action_timeout", 15*time.Second)
	v.SetDefault("browser.post_load_wait", 500*time.Millisecond)
	v.SetDefault("browser.screenshot_dir", "screenshots")

	v.SetDefault("agent.max_iterations", 25)
	v.SetDefault("agent.planning_retries", 5)
	v.SetDefault("agent.element_retry_ceiling", 3)
	v.SetDefault("agent.history_window", 10)
	v.SetDefault("agent.snapshot_byte_budget", 24*1024)
	v.SetDefault("agent.extraction_retry_wait", 2*time.Second)
	v.SetDefault("agent.llm_requests_per_second", 1.0)
	v.SetDefault("agent.max_concurrent_sessions", 4)
	v.SetDefault("agent.state_dir", "~/.webpilot")
	v.SetDefault("agent.persist_state", false)

	v.SetDefault("agent.llm.default_fast_model", "gemini-2.0-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-2.5-pro")

	v.SetDefault("store.enabled", false)
}

// Load reads the configuration from the given file (or the default search
// path when empty), merges environment variables with the WEBPILOT prefix,
// and validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WEBPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize expands user-relative paths.
func (c *Config) normalize() error {
	if c.Agent.StateDir != "" {
		expanded, err := homedir.Expand(c.Agent.StateDir)
		if err != nil {
			return fmt.Errorf("failed to expand state dir %q: %w", c.Agent.StateDir, err)
		}
		c.Agent.StateDir = filepath.Clean(expanded)
	}
	return nil
}

// Validate enforces the invariants the decision loop depends on.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.PlanningRetries < 1 {
		return fmt.Errorf("agent.planning_retries must be at least 1, got %d", c.Agent.PlanningRetries)
	}
	if c.Agent.ElementRetryCeiling < 1 {
		return fmt.Errorf("agent.element_retry_ceiling must be at least 1, got %d", c.Agent.ElementRetryCeiling)
	}
	if c.Agent.MaxConcurrentSessions < 1 {
		return fmt.Errorf("agent.max_concurrent_sessions must be at least 1, got %d", c.Agent.MaxConcurrentSessions)
	}
	if c.Agent.SnapshotByteBudget < 1024 {
		return fmt.Errorf("agent.snapshot_byte_budget must be at least 1024 bytes, got %d", c.Agent.SnapshotByteBudget)
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser window size must be positive, got %dx%d", c.Browser.WindowWidth, c.Browser.WindowHeight)
	}
	if c.Store.Enabled && c.Store.URL == "" {
		return fmt.Errorf("store.url is required when store.enabled is true")
	}
	return nil
}

// NewDefaultConfig creates a new configuration struct populated with default
// values. Used by tests and as a fallback.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	if err := cfg.normalize(); err != nil {
		panic(fmt.Sprintf("failed to normalize default config: %v", err))
	}
	return &cfg
}
