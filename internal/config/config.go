package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"docuchat/internal/models"
)

type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Chat     ChatConfig    `yaml:"chat"`
	EmbedLLM LLMConfig     `yaml:"embed_llm"`
	Backend  BackendConfig `yaml:"backend"`
	RAG      RAGConfig     `yaml:"rag"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr" env:"DOCUCHAT_ADDR" envDefault:":8080"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"DOCUCHAT_MAX_UPLOAD_BYTES"`
}

// ChatConfig points at the OpenAI-compatible streaming chat completion
// endpoint.
type ChatConfig struct {
	URL         string  `yaml:"url" env:"DOCUCHAT_CHAT_URL"`
	Key         string  `yaml:"key" env:"DOCUCHAT_CHAT_KEY"`
	Model       string  `yaml:"model" env:"DOCUCHAT_CHAT_MODEL" envDefault:"tgi"`
	MaxTokens   int     `yaml:"max_tokens" env:"DOCUCHAT_CHAT_MAX_TOKENS"`
	Temperature float64 `yaml:"temperature" env:"DOCUCHAT_CHAT_TEMPERATURE"`
}

// LLMConfig configures the local embedding provider.
type LLMConfig struct {
	Provider string `yaml:"provider" env:"DOCUCHAT_EMBED_PROVIDER" envDefault:"ollama"`
	BaseURL  string `yaml:"base_url" env:"DOCUCHAT_EMBED_BASE_URL" envDefault:"http://localhost:11434"`
	Key      string `yaml:"key" env:"DOCUCHAT_EMBED_KEY"`
	Model    string `yaml:"model" env:"DOCUCHAT_EMBED_MODEL" envDefault:"nomic-embed-text"`
}

// BackendConfig points at the optional remote document/embedding backend.
// An empty URL disables the probe and keeps everything local.
type BackendConfig struct {
	URL          string        `yaml:"url" env:"DOCUCHAT_BACKEND_URL"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"DOCUCHAT_BACKEND_PROBE_TIMEOUT" envDefault:"2s"`
}

type RAGConfig struct {
	ChunkSize           int     `yaml:"chunk_size" env:"DOCUCHAT_CHUNK_SIZE"`
	MaxChunks           int     `yaml:"max_chunks" env:"DOCUCHAT_MAX_CHUNKS"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"DOCUCHAT_SIMILARITY_THRESHOLD"`
	MaxContextChunks    int     `yaml:"max_context_chunks" env:"DOCUCHAT_MAX_CONTEXT_CHUNKS"`
}

// LoadConfig reads the YAML file when present, then applies environment
// overrides and fills in defaults. A missing file is not an error so the
// service can run from environment alone.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = models.MaxUploadBytes
	}
	if c.Chat.MaxTokens == 0 {
		c.Chat.MaxTokens = models.DefaultMaxTokens
	}
	if c.Chat.Temperature == 0 {
		c.Chat.Temperature = models.DefaultTemperature
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = models.DefaultChunkSize
	}
	if c.RAG.MaxChunks == 0 {
		c.RAG.MaxChunks = models.DefaultMaxChunks
	}
	if c.RAG.SimilarityThreshold == 0 {
		c.RAG.SimilarityThreshold = models.DefaultSimilarityThreshold
	}
	if c.RAG.MaxContextChunks == 0 {
		c.RAG.MaxContextChunks = models.DefaultMaxContextChunks
	}
	if c.Backend.ProbeTimeout == 0 {
		c.Backend.ProbeTimeout = 2 * time.Second
	}
}
