package config

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	HubSpot    HubSpotConfig    `yaml:"hubspot" mapstructure:"hubspot"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Categories CategoryConfig   `yaml:"categories" mapstructure:"categories"`
	Prompts    PromptConfig     `yaml:"prompts" mapstructure:"prompts"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// HubSpotConfig holds HubSpot API credentials and the target list/properties.
type HubSpotConfig struct {
	Token            string  `yaml:"token" mapstructure:"token"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	ListID           string  `yaml:"list_id" mapstructure:"list_id"`
	CategoryProperty string  `yaml:"category_property" mapstructure:"category_property"`
	ContextProperty  string  `yaml:"context_property" mapstructure:"context_property"`
	RequestsPerSec   float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	MaxPages         int     `yaml:"max_pages" mapstructure:"max_pages"`
}

// PerplexityConfig holds Perplexity API settings for web context gathering.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings for classification.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// CategoryConfig defines the closed set of category labels and the sentinel
// used when the model's answer matches none of them.
type CategoryConfig struct {
	// Labels is either a JSON array (`["SaaS","Retail"]`) or a
	// comma-separated string. Parsed by Values().
	Labels   string `yaml:"labels" mapstructure:"labels"`
	Fallback string `yaml:"fallback" mapstructure:"fallback"`
}

// Values parses Labels into an ordered slice of category names.
func (c CategoryConfig) Values() ([]string, error) {
	raw := strings.TrimSpace(c.Labels)
	if raw == "" {
		return nil, nil
	}

	if strings.HasPrefix(raw, "[") {
		var labels []string
		if err := json.Unmarshal([]byte(raw), &labels); err != nil {
			return nil, eris.Wrap(err, "config: parse category labels JSON")
		}
		return cleanLabels(labels), nil
	}

	return cleanLabels(strings.Split(raw, ",")), nil
}

func cleanLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// PromptConfig holds the classification and search prompt templates.
// Empty fields fall back to the built-in defaults in internal/pipeline.
type PromptConfig struct {
	System      string `yaml:"system" mapstructure:"system"`
	User        string `yaml:"user" mapstructure:"user"`
	SearchQuery string `yaml:"search_query" mapstructure:"search_query"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MissingKeyError reports required configuration keys that are absent.
// It aborts the run before any API client is constructed.
type MissingKeyError struct {
	Keys []string
}

func (e *MissingKeyError) Error() string {
	return "config: missing required keys: " + strings.Join(e.Keys, ", ")
}

// Validate checks that every key required to run the pipeline is present.
// Returns a *MissingKeyError listing all absent keys, or nil.
func (c *Config) Validate() error {
	var missing []string

	if c.HubSpot.Token == "" {
		missing = append(missing, "hubspot.token")
	}
	if c.HubSpot.ListID == "" {
		missing = append(missing, "hubspot.list_id")
	}
	if c.HubSpot.CategoryProperty == "" {
		missing = append(missing, "hubspot.category_property")
	}
	if c.HubSpot.ContextProperty == "" {
		missing = append(missing, "hubspot.context_property")
	}
	if c.Perplexity.Key == "" {
		missing = append(missing, "perplexity.key")
	}
	if c.Anthropic.Key == "" {
		missing = append(missing, "anthropic.key")
	}

	labels, err := c.Categories.Values()
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		missing = append(missing, "categories.labels")
	}

	if len(missing) > 0 {
		return &MissingKeyError{Keys: missing}
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default are invisible to Unmarshal unless bound, so an
	// env-only deployment would silently lose them.
	for _, key := range []string{
		"hubspot.token",
		"hubspot.list_id",
		"hubspot.category_property",
		"hubspot.context_property",
		"perplexity.key",
		"anthropic.key",
		"categories.labels",
		"prompts.system",
		"prompts.user",
		"prompts.search_query",
		"store.database_url",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("hubspot.base_url", "https://api.hubapi.com")
	v.SetDefault("hubspot.requests_per_sec", 8)
	v.SetDefault("hubspot.max_pages", 20)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 64)
	v.SetDefault("categories.fallback", "Other")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
