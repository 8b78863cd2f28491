// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Agent() AgentConfig
	Memory() MemoryConfig
	Metrics() MetricsConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserKeepOpen(bool)

	// Agent Setters
	SetAgentMaxSteps(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	AgentCfg   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	MemoryCfg  MemoryConfig  `mapstructure:"memory" yaml:"memory"`
	MetricsCfg MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Agent() AgentConfig     { return c.AgentCfg }
func (c *Config) Memory() MemoryConfig   { return c.MemoryCfg }
func (c *Config) Metrics() MetricsConfig { return c.MetricsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserKeepOpen(b bool) { c.BrowserCfg.KeepOpen = b }
func (c *Config) SetAgentMaxSteps(n int)    { c.AgentCfg.MaxSteps = n }

// LoggerConfig holds all the configuration for the logger.
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

// BrowserConfig configures the headless browser used to fetch and manipulate resources.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	KeepOpen          bool          `mapstructure:"keep_open" yaml:"keep_open"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	// RetryAttempts bounds navigation attempts per resource.
	RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// MaxContentChars caps the extracted text handed to the rest of the system. Zero disables the cap.
	MaxContentChars int `mapstructure:"max_content_chars" yaml:"max_content_chars"`
}

// AgentConfig holds settings related to the task loop and its oracle.
type AgentConfig struct {
	MaxSteps         int             `mapstructure:"max_steps" yaml:"max_steps"`
	DisplayLimit     int             `mapstructure:"display_limit" yaml:"display_limit"`
	AnalysisKeywords []string        `mapstructure:"analysis_keywords" yaml:"analysis_keywords"`
	OracleTimeout    time.Duration   `mapstructure:"oracle_timeout" yaml:"oracle_timeout"`
	LLM              LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	Provider             LLMProvider `mapstructure:"provider" yaml:"provider"`
	APIKey               string      `mapstructure:"api_key" yaml:"api_key"`
	DefaultFastModel     string      `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string      `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    int         `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	// Models is keyed by model name and overrides per-model settings.
	Models map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// MaxElapsedTime bounds the retry loop around a single generation call.
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time" yaml:"max_elapsed_time"`
}

// ModelConfig resolves the settings for a named model, falling back to router-level values.
func (r LLMRouterConfig) ModelConfig(name string) LLMModelConfig {
	mc, ok := r.Models[name]
	if !ok {
		mc = LLMModelConfig{}
	}
	if mc.Model == "" {
		mc.Model = name
	}
	if mc.Provider == "" {
		mc.Provider = r.Provider
	}
	if mc.APIKey == "" {
		mc.APIKey = r.APIKey
	}
	if mc.APITimeout <= 0 {
		mc.APITimeout = 60 * time.Second
	}
	if mc.MaxElapsedTime <= 0 {
		mc.MaxElapsedTime = 2 * time.Minute
	}
	if mc.MaxTokens <= 0 {
		mc.MaxTokens = 2048
	}
	return mc
}

// MemoryBackend selects the durable engine under the session store.
type MemoryBackend string

const (
	BackendInMemory MemoryBackend = "memory"
	BackendPostgres MemoryBackend = "postgres"
	BackendRedis    MemoryBackend = "redis"
)

// MemoryConfig selects and configures the session store backend.
type MemoryConfig struct {
	Backend  MemoryBackend  `mapstructure:"backend" yaml:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN returns the connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// RedisConfig holds the connection details for a Redis server.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "rabbit")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.keep_open", false)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("browser.navigation_timeout", "70s")
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.retry_attempts", 3)
	v.SetDefault("browser.retry_delay", "2s")
	v.SetDefault("browser.max_content_chars", 100000)

	// -- Agent --
	v.SetDefault("agent.max_steps", 5)
	v.SetDefault("agent.display_limit", 1000)
	v.SetDefault("agent.analysis_keywords", []string{"analy", "sentiment", "compare", "insight"})
	v.SetDefault("agent.oracle_timeout", "30s")
	v.SetDefault("agent.llm.provider", string(ProviderGemini))
	v.SetDefault("agent.llm.default_fast_model", "gemini-2.0-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("agent.llm.requests_per_minute", 60)

	// -- Memory --
	v.SetDefault("memory.backend", string(BackendInMemory))
	v.SetDefault("memory.postgres.host", "localhost")
	v.SetDefault("memory.postgres.port", 5432)
	v.SetDefault("memory.postgres.user", "postgres")
	v.SetDefault("memory.postgres.password", "") // Should be set via env var
	v.SetDefault("memory.postgres.dbname", "rabbit_memory")
	v.SetDefault("memory.postgres.sslmode", "disable")
	v.SetDefault("memory.redis.addr", "localhost:6379")
	v.SetDefault("memory.redis.db", 0)
	v.SetDefault("memory.redis.key_prefix", "rabbit")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("agent.llm.api_key", "RABBIT_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("memory.postgres.password", "RABBIT_MEMORY_PASSWORD")
	_ = v.BindEnv("memory.redis.password", "RABBIT_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in file-system paths.
func (c *Config) expandPaths() error {
	if c.LoggerCfg.LogFile != "" {
		p, err := homedir.Expand(c.LoggerCfg.LogFile)
		if err != nil {
			return fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		c.LoggerCfg.LogFile = p
	}
	if c.BrowserCfg.ExecPath != "" {
		p, err := homedir.Expand(c.BrowserCfg.ExecPath)
		if err != nil {
			return fmt.Errorf("failed to expand browser.exec_path: %w", err)
		}
		c.BrowserCfg.ExecPath = p
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.RetryAttempts <= 0 {
		return fmt.Errorf("browser.retry_attempts must be a positive integer")
	}
	if c.BrowserCfg.RetryDelay < 0 {
		return fmt.Errorf("browser.retry_delay must not be negative")
	}
	if c.AgentCfg.MaxSteps < 0 {
		return fmt.Errorf("agent.max_steps must not be negative")
	}
	if c.AgentCfg.DisplayLimit <= 0 {
		return fmt.Errorf("agent.display_limit must be a positive integer")
	}
	if err := c.MemoryCfg.Validate(); err != nil {
		return fmt.Errorf("memory configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the memory backend selection.
func (m *MemoryConfig) Validate() error {
	switch MemoryBackend(strings.ToLower(string(m.Backend))) {
	case BackendInMemory:
		return nil
	case BackendPostgres:
		if m.Postgres.URL == "" && m.Postgres.Host == "" {
			return fmt.Errorf("postgres backend requires memory.postgres.url or memory.postgres.host")
		}
		return nil
	case BackendRedis:
		if m.Redis.Addr == "" {
			return fmt.Errorf("redis backend requires memory.redis.addr")
		}
		return nil
	default:
		return fmt.Errorf("unknown memory backend %q, supported: [%s, %s, %s]", m.Backend, BackendInMemory, BackendPostgres, BackendRedis)
	}
}
