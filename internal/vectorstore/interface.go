package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidQuery is returned for empty queries or non-positive k.
	ErrInvalidQuery = errors.New("invalid query")
)

const maxQueryLength = 10000

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName checks name against ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

func validateQuery(query string, k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, k)
	}
	if query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if len(query) > maxQueryLength {
		return fmt.Errorf("%w: query exceeds maximum length of %d characters", ErrInvalidQuery, maxQueryLength)
	}
	return nil
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the read side used by the knowledge capability.
type Searcher interface {
	// Search returns up to k documents most similar to query, best first.
	// Documents must match every key in filter. A missing index yields an
	// empty result.
	Search(ctx context.Context, query string, k int, filter map[string]string) ([]SearchResult, error)
}

// Store is a knowledge index backend.
type Store interface {
	Searcher

	// AddDocuments embeds and stores docs, returning their ids.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Stats reports index health.
	Stats(ctx context.Context) (Stats, error)

	// Close releases backend resources.
	Close() error
}
