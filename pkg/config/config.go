package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "VIDFORENSICS"

type Config struct {
	Server     ServerConfig
	TwelveLabs TwelveLabsConfig
	Reasoning  ReasoningConfig
	Gemini     GeminiConfig
	Search     SearchConfig
	Pipeline   PipelineConfig
	Tools      ToolsConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	Development  bool
}

type TwelveLabsConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	ModelOptions []string
	Temperature  float64
	TimeoutSec   int
}

// ReasoningConfig drives the text-only chat completion engine. Gemini is
// reached through its OpenAI-compatible endpoint.
type ReasoningConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

// GeminiConfig drives the multimodal Files API path used for AI-generation
// detection.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	VideoModel string
	TimeoutSec int
}

type SearchConfig struct {
	Provider         string
	TavilyAPIKey     string
	TavilyBaseURL    string
	SerpAPIKey       string
	SerpAPIBaseURL   string
	Depth            string
	MaxResults       int
	ContentTrimChars int
	TimeoutSec       int
	ScrapeFallback   bool
}

type PipelineConfig struct {
	MaxVideoTextChars    int
	AssetPollIntervalMs  int
	IndexPollIntervalMs  int
	FilePollIntervalMs   int
	PollMaxWaitSec       int
	PollMaxAttempts      int
	FactCheckWorkers     int
	UploadRetries        int
	UploadRetryBaseMs    int
	SearchRetries        int
	SearchRetryBaseMs    int
	MetadataContextChars int
	TimelineRequiresCue  bool
}

type ToolsConfig struct {
	FFprobePath  string
	C2PAToolPath string
	TempDir      string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads config.yaml (if any) and the environment. The provider key
// names used by the hosted deployment are accepted as aliases.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/vidforensics")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindAliases(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	applyProviderDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 60)
	v.SetDefault("server.writeTimeout", 1200)
	v.SetDefault("server.bodyLimit", 500*1024*1024)
	v.SetDefault("server.development", false)

	v.SetDefault("twelveLabs.baseURL", "https://api.twelvelabs.io/v1.3")
	v.SetDefault("twelveLabs.model", "pegasus1.2")
	v.SetDefault("twelveLabs.modelOptions", []string{"visual", "audio"})
	v.SetDefault("twelveLabs.temperature", 0.2)
	v.SetDefault("twelveLabs.timeoutSec", 300)

	v.SetDefault("reasoning.provider", "gemini")
	v.SetDefault("reasoning.baseURL", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("reasoning.model", "gemini-2.0-flash")
	v.SetDefault("reasoning.temperature", 0.2)
	v.SetDefault("reasoning.maxTokens", 4096)
	v.SetDefault("reasoning.timeoutSec", 120)

	v.SetDefault("gemini.baseURL", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.videoModel", "gemini-2.5-flash")
	v.SetDefault("gemini.timeoutSec", 300)

	v.SetDefault("search.provider", "tavily")
	v.SetDefault("search.tavilyBaseURL", "https://api.tavily.com")
	v.SetDefault("search.serpAPIBaseURL", "https://serpapi.com")
	v.SetDefault("search.depth", "basic")
	v.SetDefault("search.maxResults", 5)
	v.SetDefault("search.contentTrimChars", 3500)
	v.SetDefault("search.timeoutSec", 30)
	v.SetDefault("search.scrapeFallback", true)

	v.SetDefault("pipeline.maxVideoTextChars", 3200)
	v.SetDefault("pipeline.assetPollIntervalMs", 1500)
	v.SetDefault("pipeline.indexPollIntervalMs", 2000)
	v.SetDefault("pipeline.filePollIntervalMs", 2000)
	v.SetDefault("pipeline.pollMaxWaitSec", 900)
	v.SetDefault("pipeline.pollMaxAttempts", 600)
	v.SetDefault("pipeline.factCheckWorkers", 1)
	v.SetDefault("pipeline.uploadRetries", 4)
	v.SetDefault("pipeline.uploadRetryBaseMs", 1500)
	v.SetDefault("pipeline.searchRetries", 3)
	v.SetDefault("pipeline.searchRetryBaseMs", 1000)
	v.SetDefault("pipeline.metadataContextChars", 2000)
	v.SetDefault("pipeline.timelineRequiresCue", true)

	v.SetDefault("tools.ffprobePath", "ffprobe")
	v.SetDefault("tools.c2paToolPath", "c2patool")
	v.SetDefault("tools.tempDir", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 10)
	v.SetDefault("rateLimit.burst", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}

func bindAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"twelveLabs.apiKey":   {"TL_API_KEY", "TWELVELABS_API_KEY"},
		"reasoning.apiKey":    {"GEMINI_API_KEY"},
		"gemini.apiKey":       {"GEMINI_API_KEY"},
		"search.tavilyAPIKey": {"TAVILY_API_KEY"},
		"search.serpAPIKey":   {"SERPAPI_API_KEY"},
		"redis.password":      {"REDIS_PASSWORD"},
	}
	for key, names := range aliases {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	if err := v.BindEnv("openAIAPIKey", "OPENAI_API_KEY"); err != nil {
		return fmt.Errorf("failed to bind env for openai: %w", err)
	}
	return nil
}

// applyProviderDefaults swaps the Gemini-specific reasoning defaults for
// OpenAI ones when that provider is selected.
func applyProviderDefaults(v *viper.Viper) {
	if strings.EqualFold(v.GetString("reasoning.provider"), "openai") {
		if key := v.GetString("openAIAPIKey"); key != "" && v.GetString("reasoning.apiKey") == "" {
			v.Set("reasoning.apiKey", key)
		}
		if v.GetString("reasoning.baseURL") == "https://generativelanguage.googleapis.com/v1beta/openai/" {
			v.Set("reasoning.baseURL", "")
		}
		if v.GetString("reasoning.model") == "gemini-2.0-flash" {
			v.Set("reasoning.model", "gpt-4o-mini")
		}
	}
}

func (c *Config) validate() error {
	switch c.Search.Provider {
	case "tavily", "serpapi":
	default:
		return fmt.Errorf("unsupported search provider %q", c.Search.Provider)
	}
	switch c.Reasoning.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported reasoning provider %q", c.Reasoning.Provider)
	}
	if c.Pipeline.FactCheckWorkers < 1 {
		c.Pipeline.FactCheckWorkers = 1
	}
	return nil
}

func ms(n int) time.Duration  { return time.Duration(n) * time.Millisecond }
func sec(n int) time.Duration { return time.Duration(n) * time.Second }

func (p PipelineConfig) AssetPollInterval() time.Duration { return ms(p.AssetPollIntervalMs) }
func (p PipelineConfig) IndexPollInterval() time.Duration { return ms(p.IndexPollIntervalMs) }
func (p PipelineConfig) FilePollInterval() time.Duration  { return ms(p.FilePollIntervalMs) }
func (p PipelineConfig) PollMaxWait() time.Duration       { return sec(p.PollMaxWaitSec) }
func (p PipelineConfig) UploadRetryBase() time.Duration   { return ms(p.UploadRetryBaseMs) }
func (p PipelineConfig) SearchRetryBase() time.Duration   { return ms(p.SearchRetryBaseMs) }

func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }
