package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"productrag/internal/domain"
)

// Config holds all configuration for the product advisory pipeline.
type Config struct {
	Catalog     CatalogConfig     `yaml:"catalog"`
	Data        DataConfig        `yaml:"data"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Prompts     PromptsConfig     `yaml:"prompts"`
	Cache       CacheConfig       `yaml:"cache"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CatalogConfig holds raw catalog input settings.
type CatalogConfig struct {
	RawDir   string   `yaml:"raw_dir"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// DataConfig holds intermediate artifact locations.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// ChunkingConfig holds chunker configuration. Sizes are in characters.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MinChunkSize int `yaml:"min_chunk_size"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "ollama", "openai", "hash"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Dimension int    `yaml:"dimension"` // expected dimension, 0 = take the model's
	BatchSize int    `yaml:"batch_size"`
	MaxLength int    `yaml:"max_length"` // characters kept per text
	Normalize bool   `yaml:"normalize"`
}

// VectorStoreConfig holds vector index configuration.
type VectorStoreConfig struct {
	Collection string `yaml:"collection"`
	Path       string `yaml:"path"`
	BatchSize  int    `yaml:"batch_size"`
	TopK       int    `yaml:"top_k"`
}

// LLMConfig holds generation backend configuration.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	Host              string        `yaml:"host"`
	Temperature       float64       `yaml:"temperature"`
	TopP              float64       `yaml:"top_p"`
	TopK              int           `yaml:"top_k"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	RestartCommand    []string      `yaml:"restart_command"`
	RestartWait       time.Duration `yaml:"restart_wait"`
	AnswerTemperature float64       `yaml:"answer_temperature"`
	AnswerMaxTokens   int           `yaml:"answer_max_tokens"`
}

// PromptsConfig holds prompt template locations.
type PromptsConfig struct {
	Dir            string `yaml:"dir"`
	SystemPrompt   string `yaml:"system_prompt"`
	QueryTemplates string `yaml:"query_templates"`
	Watch          bool   `yaml:"watch"`
	ContextBudget  int    `yaml:"context_budget"` // approximate tokens, 0 = unlimited
}

// CacheConfig holds query embedding cache configuration.
type CacheConfig struct {
	Size     int           `yaml:"size"`
	TTL      time.Duration `yaml:"ttl"`
	RedisURL string        `yaml:"redis_url"`
	RedisTTL time.Duration `yaml:"redis_ttl"`
}

// ServerConfig holds HTTP query API configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RatePerMinute   int           `yaml:"rate_per_minute"`
	RateBurst       int           `yaml:"rate_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
	Output string `yaml:"output"` // "stderr", "stdout" or a file path
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			RawDir:   "crawl_data",
			Includes: []string{"**/*.json", "**/*.csv"},
			Excludes: []string{"**/report*", "**/pagination*", "**/.git/**"},
		},
		Data: DataConfig{
			Dir: "data/processed",
		},
		Chunking: ChunkingConfig{
			ChunkSize:    512,
			ChunkOverlap: 50,
			MinChunkSize: 100,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "paraphrase-multilingual",
			BaseURL:   "http://localhost:11434",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 0,
			BatchSize: 32,
			MaxLength: 384,
			Normalize: true,
		},
		VectorStore: VectorStoreConfig{
			Collection: "hungphat_products",
			Path:       "data/vectorstore/index.db",
			BatchSize:  100,
			TopK:       5,
		},
		LLM: LLMConfig{
			Provider:          "ollama",
			Model:             "llama3:8b",
			Host:              "http://localhost:11434",
			Temperature:       0.7,
			TopP:              0.9,
			TopK:              40,
			MaxTokens:         1000,
			Timeout:           60 * time.Second,
			PingTimeout:       5 * time.Second,
			RestartCommand:    []string{"ollama", "serve"},
			RestartWait:       3 * time.Second,
			AnswerTemperature: 0.3,
			AnswerMaxTokens:   300,
		},
		Prompts: PromptsConfig{
			Dir:            "config/prompts",
			SystemPrompt:   "system_prompt.txt",
			QueryTemplates: "query_templates.txt",
			Watch:          false,
			ContextBudget:  0,
		},
		Cache: CacheConfig{
			Size:     1000,
			TTL:      10 * time.Minute,
			RedisTTL: 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RatePerMinute:   10,
			RateBurst:       3,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// Load loads configuration from a YAML file, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for productrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	path := filepath.Join(dir, "productrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".productrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	cfg := DefaultConfig()
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides deployment-specific fields from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.LLM.Host = v
		if cfg.Embedding.Provider == "ollama" {
			cfg.Embedding.BaseURL = v
		}
	}
	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("EMBEDDING_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.Dimension = n
		}
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("COLLECTION_NAME"); v != "" {
		cfg.VectorStore.Collection = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("PRODUCTRAG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate fails fast on settings no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.VectorStore.Collection == "":
		return fmt.Errorf("%w: vector_store.collection is required", domain.ErrInvalidConfig)
	case c.Embedding.Model == "":
		return fmt.Errorf("%w: embedding.model is required", domain.ErrInvalidConfig)
	case c.Embedding.Dimension < 0:
		return fmt.Errorf("%w: embedding.dimension must not be negative", domain.ErrInvalidConfig)
	case c.Embedding.BatchSize <= 0:
		return fmt.Errorf("%w: embedding.batch_size must be positive", domain.ErrInvalidConfig)
	case c.Chunking.ChunkSize <= 0:
		return fmt.Errorf("%w: chunking.chunk_size must be positive", domain.ErrInvalidConfig)
	case c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize:
		return fmt.Errorf("%w: chunking.chunk_overlap (%d) must be in [0, chunk_size)", domain.ErrInvalidConfig, c.Chunking.ChunkOverlap)
	case c.Chunking.MinChunkSize < 0 || c.Chunking.MinChunkSize > c.Chunking.ChunkSize:
		return fmt.Errorf("%w: chunking.min_chunk_size must be in [0, chunk_size]", domain.ErrInvalidConfig)
	case c.VectorStore.BatchSize <= 0:
		return fmt.Errorf("%w: vector_store.batch_size must be positive", domain.ErrInvalidConfig)
	case c.VectorStore.TopK <= 0:
		return fmt.Errorf("%w: vector_store.top_k must be positive", domain.ErrInvalidConfig)
	case c.LLM.Model == "":
		return fmt.Errorf("%w: llm.model is required", domain.ErrInvalidConfig)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DocumentsPath returns the path of the normalized documents store.
func (c *Config) DocumentsPath(root string) string {
	return resolve(root, filepath.Join(c.Data.Dir, "documents.json"))
}

// ChunksPath returns the path of the chunk store.
func (c *Config) ChunksPath(root string) string {
	return resolve(root, filepath.Join(c.Data.Dir, "chunks.json"))
}

// ArtifactPath returns the path of the embedding artifact.
func (c *Config) ArtifactPath(root string) string {
	return resolve(root, filepath.Join(c.Data.Dir, "embeddings.json"))
}

// IndexDBPath returns the path to the vector store database.
func (c *Config) IndexDBPath(root string) string {
	return resolve(root, c.VectorStore.Path)
}

// RawDir returns the catalog input directory.
func (c *Config) RawDir(root string) string {
	return resolve(root, c.Catalog.RawDir)
}

// PromptsDir returns the prompt template directory.
func (c *Config) PromptsDir(root string) string {
	return resolve(root, c.Prompts.Dir)
}

// EnsureDataDirs creates the data and vector store directories.
func (c *Config) EnsureDataDirs(root string) error {
	for _, dir := range []string{
		resolve(root, c.Data.Dir),
		filepath.Dir(c.IndexDBPath(root)),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
