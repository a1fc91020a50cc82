package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/hmochat/internal/config"
)

func newMemoryStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{Collection: "hmo_services", VectorSize: testDim},
		&hashEmbedder{dim: testDim}, nil)
	require.NoError(t, err)
	return store
}

var seedDocs = []Document{
	{ID: "dental-maccabi", Content: "Maccabi gold members receive dental cleaning twice a year", Metadata: map[string]string{"hmo": "maccabi"}},
	{ID: "dental-clalit", Content: "Clalit gold members receive dental cleaning once a year", Metadata: map[string]string{"hmo": "clalit"}},
	{ID: "optometry", Content: "Eye exams and glasses discount for silver tier", Metadata: map[string]string{"hmo": "meuhedet"}},
	{ID: "pregnancy", Content: "Pregnancy monitoring and ultrasound coverage", Metadata: map[string]string{"hmo": "maccabi"}},
}

func TestChromemStore_SearchWithoutIndex(t *testing.T) {
	store := newMemoryStore(t)

	results, err := store.Search(context.Background(), "dental", 3, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.Loaded)
	assert.Equal(t, 0, stats.TotalDocuments)
	assert.Equal(t, testDim, stats.Dimension)
	assert.Equal(t, IndexTypeChromem, stats.IndexType)
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	ids, err := store.AddDocuments(ctx, seedDocs)
	require.NoError(t, err)
	assert.Len(t, ids, len(seedDocs))

	results, err := store.Search(ctx, "dental cleaning gold", 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Contains(t, []string{"dental-maccabi", "dental-clalit"}, results[0].ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Loaded)
	assert.Equal(t, len(seedDocs), stats.TotalDocuments)
}

func TestChromemStore_KCappedAtCount(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	_, err := store.AddDocuments(ctx, seedDocs[:2])
	require.NoError(t, err)

	results, err := store.Search(ctx, "dental", 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestChromemStore_Filter(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	_, err := store.AddDocuments(ctx, seedDocs)
	require.NoError(t, err)

	results, err := store.Search(ctx, "dental cleaning", 3, map[string]string{"hmo": "clalit"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "dental-clalit", results[0].ID)
	assert.Equal(t, "clalit", results[0].Metadata["hmo"])

	results, err = store.Search(ctx, "dental cleaning", 3, map[string]string{"hmo": "leumit"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_InvalidQuery(t *testing.T) {
	store := newMemoryStore(t)

	_, err := store.Search(context.Background(), "", 3, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = store.Search(context.Background(), "dental", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestChromemStore_AddDocumentsErrors(t *testing.T) {
	ctx := context.Background()

	store := newMemoryStore(t)
	_, err := store.AddDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyDocuments)

	broken, err := NewChromemStore(ChromemConfig{Collection: "hmo_services", VectorSize: testDim},
		&hashEmbedder{dim: testDim, err: errEmbedDown}, nil)
	require.NoError(t, err)
	_, err = broken.AddDocuments(ctx, seedDocs)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	wrongDim, err := NewChromemStore(ChromemConfig{Collection: "hmo_services", VectorSize: 8},
		&hashEmbedder{dim: testDim}, nil)
	require.NoError(t, err)
	_, err = wrongDim.AddDocuments(ctx, seedDocs)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestChromemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")
	cfg := ChromemConfig{Path: dir, Collection: "hmo_services", VectorSize: testDim}

	store, err := NewChromemStore(cfg, &hashEmbedder{dim: testDim}, nil)
	require.NoError(t, err)
	_, err = store.AddDocuments(ctx, seedDocs)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = os.Stat(dir)
	require.NoError(t, err)

	reopened, err := NewChromemStore(cfg, &hashEmbedder{dim: testDim}, nil)
	require.NoError(t, err)
	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(seedDocs), stats.TotalDocuments)
}

func TestNewChromemStore_Validation(t *testing.T) {
	_, err := NewChromemStore(ChromemConfig{Collection: "ok", VectorSize: 4}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewChromemStore(ChromemConfig{Collection: "Bad-Name", VectorSize: 4}, &hashEmbedder{dim: 4}, nil)
	assert.ErrorIs(t, err, ErrInvalidCollectionName)

	_, err = NewChromemStore(ChromemConfig{Collection: "ok"}, &hashEmbedder{dim: 4}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewStore(t *testing.T) {
	cfg := config.Default().VectorStore
	cfg.ChromemPath = t.TempDir()
	cfg.VectorSize = testDim

	store, err := NewStore(cfg, &hashEmbedder{dim: testDim}, nil)
	require.NoError(t, err)
	assert.IsType(t, &ChromemStore{}, store)

	cfg.Provider = "faiss"
	_, err = NewStore(cfg, &hashEmbedder{dim: testDim}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
