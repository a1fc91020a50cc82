package vectorstore

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hmochat/internal/config"
)

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// NewStore builds the backend named by cfg.Provider.
func NewStore(cfg config.VectorStoreConfig, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfigFrom(cfg), embedder, logger)
	case "qdrant":
		return NewQdrantStore(QdrantConfigFrom(cfg), embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown vectorstore provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
