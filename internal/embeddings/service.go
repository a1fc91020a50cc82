package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hmochat/internal/config"
	"github.com/fyrsmithlabs/hmochat/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the OpenAI-compatible API root, e.g. https://api.openai.com/v1
	// or http://localhost:8080/v1 for TEI.
	BaseURL string
	Model   string
	// APIKey is optional for TEI.
	APIKey string
	// Azure selects the Azure OpenAI API shape; Model is the deployment.
	Azure      bool
	APIVersion string
}

// ConfigFrom maps the embeddings section. Azure settings follow the llm
// section since both use the same resource.
func ConfigFrom(cfg config.EmbeddingsConfig, llm config.LLMConfig) Config {
	c := Config{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey.Value(),
	}
	if c.APIKey == "" {
		c.APIKey = llm.APIKey.Value()
	}
	if llm.Provider == "azure" {
		c.Azure = true
		c.APIVersion = llm.APIVersion
	}
	return c
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Service implements vectorstore.Embedder.
type Service struct {
	embedder embeddings.Embedder
	config   Config
	metrics  *Metrics
}

// NewService creates an embedding service for cfg.
func NewService(cfg Config, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token, use placeholder for TEI
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	}
	if cfg.Azure {
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithAPIVersion(cfg.APIVersion),
			openai.WithModel(cfg.Model),
		)
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return NewWithEmbedder(embedder, cfg, logger), nil
}

// NewWithEmbedder wraps an existing langchaingo embedder.
func NewWithEmbedder(embedder embeddings.Embedder, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{embedder: embedder, config: cfg, metrics: NewMetrics(logger)}
}

// EmbedDocuments embeds a batch of passages.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	start := time.Now()
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	s.metrics.RecordGeneration(ctx, s.config.Model, "embed_documents", time.Since(start), len(texts), err)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrEmptyInput)
	}

	start := time.Now()
	vector, err := s.embedder.EmbedQuery(ctx, text)
	s.metrics.RecordGeneration(ctx, s.config.Model, "embed_query", time.Since(start), 0, err)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vector, nil
}

var _ vectorstore.Embedder = (*Service)(nil)
