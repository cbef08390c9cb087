package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
)

// Duration is a time.Duration that reads and writes as "15s" in JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	// bare numbers are seconds
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds")
	}
	*d = Duration(time.Duration(n * float64(time.Second)))
	return nil
}

// ModelPrice is the USD cost per million tokens.
type ModelPrice struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

type Config struct {
	DBPath     string `json:"db_path"`
	ListenAddr string `json:"listen_addr"`
	CronSecret string `json:"cron_secret"`

	FinnhubAPIKey        string `json:"finnhub_api_key"`
	FinnhubRatePerMinute int    `json:"finnhub_rate_per_minute"`

	LLMProvider         string                `json:"llm_provider"`
	LLMBaseURL          string                `json:"llm_base_url"`
	LLMAPIKey           string                `json:"llm_api_key"`
	DeepSeekAPIKey      string                `json:"deepseek_api_key"`
	SentimentModel      string                `json:"sentiment_model"`
	DefaultCheapModel   string                `json:"default_cheap_model"`
	DefaultPremiumModel string                `json:"default_premium_model"`
	CheapMaxTokens      int                   `json:"cheap_max_tokens"`
	PremiumMaxTokens    int                   `json:"premium_max_tokens"`
	Temperature         float32               `json:"temperature"`
	ModelPricing        map[string]ModelPrice `json:"model_pricing,omitempty"`

	RedditUserAgent string `json:"reddit_user_agent"`
	SocialEnabled   bool   `json:"social_enabled"`

	KafkaBrokers []string `json:"kafka_brokers,omitempty"`
	KafkaTopic   string   `json:"kafka_topic"`

	ProviderTimeout  Duration `json:"provider_timeout"`
	AgentTimeout     Duration `json:"agent_timeout"`
	MetadataCacheTTL Duration `json:"metadata_cache_ttl"`

	LogFormat string `json:"log_format"`
	Debug     bool   `json:"debug"`
}

// loadDotEnv copies a .env file from the working directory into the
// process environment. Variables that are already set win.
func loadDotEnv() error {
	err := godotenv.Load()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// DefaultConfigWithRoot returns the built-in defaults with the database
// placed under root/data. It does not read the environment.
func DefaultConfigWithRoot(root string) *Config {
	return &Config{
		DBPath:     filepath.Join(root, "data", "arena.db"),
		ListenAddr: ":8080",

		FinnhubRatePerMinute: 60,

		LLMProvider:         ProviderOpenAI,
		SentimentModel:      "gpt-4o-mini",
		DefaultCheapModel:   "gpt-4o-mini",
		DefaultPremiumModel: "o4-mini",
		CheapMaxTokens:      800,
		PremiumMaxTokens:    4000,
		Temperature:         0.7,
		ModelPricing: map[string]ModelPrice{
			"gpt-4o-mini":       {InputPerMillion: 0.15, OutputPerMillion: 0.60},
			"o4-mini":           {InputPerMillion: 1.10, OutputPerMillion: 4.40},
			"deepseek-chat":     {InputPerMillion: 0.27, OutputPerMillion: 1.10},
			"deepseek-reasoner": {InputPerMillion: 0.55, OutputPerMillion: 2.19},
		},

		RedditUserAgent: "ArenaGo/1.0",
		SocialEnabled:   true,

		KafkaTopic: "arena.ticks",

		ProviderTimeout:  Duration(15 * time.Second),
		AgentTimeout:     Duration(60 * time.Second),
		MetadataCacheTTL: Duration(15 * time.Minute),

		LogFormat: "text",
	}
}

func (c *Config) loadFromEnv() {
	str := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	integer := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			if v, err := strconv.Atoi(val); err == nil {
				*dst = v
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			if v, err := strconv.ParseBool(val); err == nil {
				*dst = v
			}
		}
	}
	duration := func(key string, dst *Duration) {
		if val := os.Getenv(key); val != "" {
			if v, err := time.ParseDuration(val); err == nil {
				*dst = Duration(v)
			}
		}
	}

	str("ARENA_DB_PATH", &c.DBPath)
	str("ARENA_LISTEN_ADDR", &c.ListenAddr)
	str("ARENA_CRON_SECRET", &c.CronSecret)
	str("ARENA_FINNHUB_API_KEY", &c.FinnhubAPIKey)
	integer("ARENA_FINNHUB_RATE_PER_MINUTE", &c.FinnhubRatePerMinute)

	str("ARENA_LLM_PROVIDER", &c.LLMProvider)
	str("ARENA_LLM_BASE_URL", &c.LLMBaseURL)
	str("ARENA_LLM_API_KEY", &c.LLMAPIKey)
	str("DEEPSEEK_API_KEY", &c.DeepSeekAPIKey)
	str("ARENA_DEEPSEEK_API_KEY", &c.DeepSeekAPIKey)
	str("ARENA_SENTIMENT_MODEL", &c.SentimentModel)
	str("ARENA_DEFAULT_CHEAP_MODEL", &c.DefaultCheapModel)
	str("ARENA_DEFAULT_PREMIUM_MODEL", &c.DefaultPremiumModel)
	integer("ARENA_CHEAP_MAX_TOKENS", &c.CheapMaxTokens)
	integer("ARENA_PREMIUM_MAX_TOKENS", &c.PremiumMaxTokens)
	if val := os.Getenv("ARENA_TEMPERATURE"); val != "" {
		if v, err := strconv.ParseFloat(val, 32); err == nil {
			c.Temperature = float32(v)
		}
	}

	str("ARENA_REDDIT_USER_AGENT", &c.RedditUserAgent)
	boolean("ARENA_SOCIAL_ENABLED", &c.SocialEnabled)

	if val := os.Getenv("ARENA_KAFKA_BROKERS"); val != "" {
		c.KafkaBrokers = splitList(val)
	}
	str("ARENA_KAFKA_TOPIC", &c.KafkaTopic)

	duration("ARENA_PROVIDER_TIMEOUT", &c.ProviderTimeout)
	duration("ARENA_AGENT_TIMEOUT", &c.AgentTimeout)
	duration("ARENA_METADATA_CACHE_TTL", &c.MetadataCacheTTL)

	str("ARENA_LOG_FORMAT", &c.LogFormat)
	boolean("ARENA_DEBUG", &c.Debug)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the fields every command depends on. Secrets and API keys
// may be empty; the components that need them refuse to run instead.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderDeepSeek:
	default:
		errs = append(errs, fmt.Errorf("llm_provider must be %q or %q, got %q", ProviderOpenAI, ProviderDeepSeek, c.LLMProvider))
	}
	if c.DefaultCheapModel == "" || c.DefaultPremiumModel == "" {
		errs = append(errs, errors.New("default_cheap_model and default_premium_model are required"))
	}
	if c.CheapMaxTokens <= 0 || c.PremiumMaxTokens <= 0 {
		errs = append(errs, errors.New("max token limits must be positive"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %g", c.Temperature))
	}
	if c.FinnhubRatePerMinute < 0 {
		errs = append(errs, errors.New("finnhub_rate_per_minute must not be negative"))
	}
	if c.ProviderTimeout <= 0 || c.AgentTimeout <= 0 {
		errs = append(errs, errors.New("provider_timeout and agent_timeout must be positive"))
	}
	if c.MetadataCacheTTL < 0 {
		errs = append(errs, errors.New("metadata_cache_ttl must not be negative"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	for model, price := range c.ModelPricing {
		if price.InputPerMillion < 0 || price.OutputPerMillion < 0 {
			errs = append(errs, fmt.Errorf("model_pricing[%s] must not be negative", model))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ChatAPIKey is the key for the configured LLM provider.
func (c *Config) ChatAPIKey() string {
	if c.LLMProvider == ProviderDeepSeek && c.DeepSeekAPIKey != "" {
		return c.DeepSeekAPIKey
	}
	return c.LLMAPIKey
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.CronSecret = mask(c.CronSecret)
	c.FinnhubAPIKey = mask(c.FinnhubAPIKey)
	c.LLMAPIKey = mask(c.LLMAPIKey)
	c.DeepSeekAPIKey = mask(c.DeepSeekAPIKey)
	return c
}

// EnsureDirectories creates the parent directory of the database file.
func (c *Config) EnsureDirectories() error {
	if c.DBPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(strings.TrimSpace(c.DBPath))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
