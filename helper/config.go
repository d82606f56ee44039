package helper

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Configuration is the application configuration. It is read from an
// optional YAML file and then overridden by environment variables.
type Configuration struct {
	LogLevel               string                 `yaml:"log_level"`
	SupportedCompaniesFile string                 `yaml:"supported_companies_file"`
	LLM                    LLMConfiguration       `yaml:"llm"`
	Embedding              EmbeddingConfiguration `yaml:"embedding"`
	Chunking               ChunkingConfiguration  `yaml:"chunking"`
	Retrieval              RetrievalConfiguration `yaml:"retrieval"`
	SEC                    SECConfiguration       `yaml:"sec"`
	Redis                  RedisConfiguration     `yaml:"redis"`
	Metrics                MetricsConfiguration   `yaml:"metrics"`
}

type LLMConfiguration struct {
	// Provider is "ollama" or "openai". The openai provider also serves
	// any OpenAI compatible endpoint such as vLLM.
	Provider         string        `yaml:"provider"`
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	PlannerModel     string        `yaml:"planner_model"`
	SynthesizerModel string        `yaml:"synthesizer_model"`
	MaxTokens        int           `yaml:"max_tokens"`
	Timeout          time.Duration `yaml:"timeout"`
}

type EmbeddingConfiguration struct {
	// Provider is "hugot" for in-process embeddings or "ollama".
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	Dimension   int    `yaml:"dimension"`
	Concurrency int    `yaml:"concurrency"`
}

type ChunkingConfiguration struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MinChunkSize int `yaml:"min_chunk_size"`
}

type RetrievalConfiguration struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	PerCompanyCap  int     `yaml:"per_company_cap"`
	BatchSize      int     `yaml:"batch_size"`
}

type SECConfiguration struct {
	UserAgent         string  `yaml:"user_agent"`
	BaseURL           string  `yaml:"base_url"`
	DataURL           string  `yaml:"data_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	CacheDir          string  `yaml:"cache_dir"`
}

type RedisConfiguration struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type MetricsConfiguration struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// DefaultConfiguration returns the configuration used when no file is given.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		LogLevel: "info",
		LLM: LLMConfiguration{
			Provider:         "ollama",
			BaseURL:          "http://localhost:11434",
			PlannerModel:     "llama3.2:3b",
			SynthesizerModel: "llama3.2:3b",
			MaxTokens:        2048,
			Timeout:          120 * time.Second,
		},
		Embedding: EmbeddingConfiguration{
			Provider:    "hugot",
			Model:       "sentence-transformers/all-MiniLM-L6-v2",
			BaseURL:     "http://localhost:11434",
			Dimension:   384,
			Concurrency: 4,
		},
		Chunking: ChunkingConfiguration{
			ChunkSize:    1000,
			ChunkOverlap: 150,
			MinChunkSize: 50,
		},
		Retrieval: RetrievalConfiguration{
			TopK:           5,
			ScoreThreshold: 0.5,
			PerCompanyCap:  5,
			BatchSize:      100,
		},
		SEC: SECConfiguration{
			BaseURL:           "https://www.sec.gov",
			DataURL:           "https://data.sec.gov",
			RequestsPerSecond: 10,
			CacheDir:          "./data/filings",
		},
		Redis: RedisConfiguration{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Metrics: MetricsConfiguration{
			Namespace: "filingqa",
		},
	}
}

// LoadConfiguration builds the configuration from defaults, the YAML file
// at path (skipped when path is empty) and the environment.
func LoadConfiguration(path string) (*Configuration, error) {
	_ = godotenv.Load()

	config := DefaultConfiguration()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, NewError("read configuration file", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, NewError("parse configuration file", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, NewError("apply environment", err)
	}

	if err := config.Validate(); err != nil {
		return nil, NewError("validate configuration", err)
	}

	return config, nil
}

// Save writes the configuration as YAML to path.
func (c *Configuration) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return NewError("marshal configuration", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return NewError("write configuration file", err)
	}
	return nil
}

func (c *Configuration) applyEnv() error {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.SupportedCompaniesFile, "SUPPORTED_COMPANIES_FILE")

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.PlannerModel, "PLANNER_MODEL")
	setString(&c.LLM.SynthesizerModel, "SYNTHESIZER_MODEL")

	setString(&c.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "EMBEDDING_MODEL")
	setString(&c.Embedding.BaseURL, "EMBEDDING_BASE_URL")

	setString(&c.SEC.UserAgent, "SEC_USER_AGENT")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	ints := []struct {
		target *int
		env    string
	}{
		{&c.LLM.MaxTokens, "LLM_MAX_TOKENS"},
		{&c.Embedding.Dimension, "EMBEDDING_DIMENSION"},
		{&c.Chunking.ChunkSize, "CHUNK_SIZE"},
		{&c.Chunking.ChunkOverlap, "CHUNK_OVERLAP"},
		{&c.Retrieval.TopK, "TOP_K"},
		{&c.Redis.DB, "REDIS_DB"},
	}
	for _, i := range ints {
		if err := setInt(i.target, i.env); err != nil {
			return err
		}
	}

	if v := os.Getenv("SCORE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid SCORE_THRESHOLD %q: %w", v, err)
		}
		c.Retrieval.ScoreThreshold = f
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_ENABLED %q: %w", v, err)
		}
		c.Redis.Enabled = b
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED %q: %w", v, err)
		}
		c.Metrics.Enabled = b
	}

	return nil
}

// Validate checks the values that would otherwise fail deep inside a query.
func (c *Configuration) Validate() error {
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	switch c.Embedding.Provider {
	case "hugot", "ollama":
	default:
		return fmt.Errorf("unsupported embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size)")
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold must be in [0, 1]")
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.PerCompanyCap <= 0 {
		return fmt.Errorf("top k and per company cap must be positive")
	}
	return nil
}

func setString(target *string, env string) {
	if v := os.Getenv(env); v != "" {
		*target = v
	}
}

func setInt(target *int, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	*target = i
	return nil
}
