// Package config provides configuration loading for hmochat.
//
// Configuration is read from an optional YAML file and overridden by
// HMOCHAT_-prefixed environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete hmochat configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	LLM         LLMConfig         `koanf:"llm"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Dialogue    DialogueConfig    `koanf:"dialogue"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LLMConfig configures the chat model shared by both agents and the
// profile extractor.
type LLMConfig struct {
	// Provider is "openai" or "azure".
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	// Model is the model name, or the deployment name for Azure.
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	APIVersion  string   `koanf:"api_version"`
	Temperature float64  `koanf:"temperature"`
	Timeout     Duration `koanf:"timeout"`
	MaxRetries  int      `koanf:"max_retries"`
	// RateLimit is the sustained number of model calls per second.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// EmbeddingsConfig configures the OpenAI-compatible embedding endpoint.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// VectorStoreConfig selects and configures the knowledge index backend.
// Keys are flat so every field is reachable from a single env var.
type VectorStoreConfig struct {
	Provider        string `koanf:"provider"`
	ChromemPath     string `koanf:"chromem_path"`
	ChromemCompress bool   `koanf:"chromem_compress"`
	Collection      string `koanf:"collection"`
	VectorSize      int    `koanf:"vector_size"`
	QdrantHost      string `koanf:"qdrant_host"`
	QdrantPort      int    `koanf:"qdrant_port"`
	QdrantUseTLS    bool   `koanf:"qdrant_use_tls"`
	QdrantAPIKey    Secret `koanf:"qdrant_api_key"`
}

// DialogueConfig bounds the orchestrator.
type DialogueConfig struct {
	MaxSteps    int  `koanf:"max_steps"`
	SearchK     int  `koanf:"search_k"`
	FilterByHMO bool `koanf:"filter_by_hmo"`
}

// LoggingConfig is the file/env view of logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig is the file/env view of telemetry.Config.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.LLM.Provider {
	case "openai":
	case "azure":
		if !c.LLM.APIKey.IsSet() {
			return errors.New("llm.api_key is required for azure")
		}
		if c.LLM.BaseURL == "" {
			return errors.New("llm.base_url is required for azure")
		}
	default:
		return fmt.Errorf("unknown llm provider %q (want openai or azure)", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be >= 0, got %d", c.LLM.MaxRetries)
	}
	if c.LLM.RateLimit <= 0 {
		return errors.New("llm.rate_limit must be positive")
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown vectorstore provider %q (want chromem or qdrant)", c.VectorStore.Provider)
	}
	if c.VectorStore.VectorSize <= 0 {
		return errors.New("vectorstore.vector_size must be positive")
	}

	if c.Dialogue.MaxSteps < 1 {
		return fmt.Errorf("dialogue.max_steps must be >= 1, got %d", c.Dialogue.MaxSteps)
	}
	if c.Dialogue.SearchK < 1 {
		return fmt.Errorf("dialogue.search_k must be >= 1, got %d", c.Dialogue.SearchK)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.LLM.Provider == "azure" && cfg.LLM.APIVersion == "" {
		cfg.LLM.APIVersion = "2024-12-01-preview"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(60 * time.Second)
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.RateLimit == 0 {
		cfg.LLM.RateLimit = 50.0 / 60.0
	}
	if cfg.LLM.RateBurst == 0 {
		cfg.LLM.RateBurst = 5
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.ChromemPath == "" {
		cfg.VectorStore.ChromemPath = "~/.config/hmochat/index"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "hmo_services"
	}
	if cfg.VectorStore.VectorSize == 0 {
		cfg.VectorStore.VectorSize = 1536 // text-embedding-3-small
	}
	if cfg.VectorStore.QdrantHost == "" {
		cfg.VectorStore.QdrantHost = "localhost"
	}
	if cfg.VectorStore.QdrantPort == 0 {
		cfg.VectorStore.QdrantPort = 6334
	}

	if cfg.Dialogue.MaxSteps == 0 {
		cfg.Dialogue.MaxSteps = 50
	}
	if cfg.Dialogue.SearchK == 0 {
		cfg.Dialogue.SearchK = 3
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "hmochat"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}
