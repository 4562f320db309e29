package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/embed"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/search"
	"github.com/Aman-CERP/coderag/internal/store"
)

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Chunking.ChunkSize = 200
	cfg.Chunking.ChunkOverlap = 20
	return cfg
}

func sampleRepo(t *testing.T) string {
	return writeRepo(t, map[string]string{
		"main.go":                   "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(parseConfig())\n}\n",
		"config.go":                 "package main\n\n// parseConfig reads the settings file.\nfunc parseConfig() string {\n\treturn \"ok\"\n}\n",
		"README.md":                 "# Demo\n\nA tiny program that prints its configuration.\n",
		"node_modules/lib/index.js": "module.exports = {}\n",
		".env":                      "TOKEN=secret\n",
		"image.bin":                 "\x00\x01\x02",
	})
}

func buildIndex(t *testing.T, cfg *config.Config, root string, opts ...Option) *Result {
	t.Helper()
	emb, err := NewEmbedder(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = emb.Close() })

	ix, err := NewIndexer(cfg, emb, opts...)
	require.NoError(t, err)
	res, err := ix.Run(context.Background(), root)
	require.NoError(t, err)
	return res
}

func openService(t *testing.T, cfg *config.Config, root string) *Service {
	t.Helper()
	svc, err := Open(context.Background(), cfg, root, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// =============================================================================
// Lock
// =============================================================================

func TestLock_TryLock_IsExclusive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	// Given: one holder
	first := NewLock(dir)
	require.NoError(t, first.TryLock())
	assert.True(t, first.IsLocked())
	assert.FileExists(t, first.Path())

	// When: a second lock tries the same directory
	second := NewLock(dir)
	err := second.TryLock()

	// Then: it is refused with the locked code
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeIndexLocked, cerrors.GetCode(err))
	assert.False(t, second.IsLocked())

	// And: it succeeds once released
	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestLock_UnlockWithoutLock(t *testing.T) {
	l := NewLock(t.TempDir())
	assert.NoError(t, l.Unlock())
	assert.NoError(t, l.Unlock())
}

// =============================================================================
// Indexer
// =============================================================================

func TestDocumentID(t *testing.T) {
	a := DocumentID("a.go", "func A() {}")
	assert.Len(t, a, 64)
	assert.Equal(t, a, DocumentID("a.go", "func A() {}"))
	assert.NotEqual(t, a, DocumentID("b.go", "func A() {}"))
	assert.NotEqual(t, a, DocumentID("a.go", "func B() {}"))
}

func TestNewIndexer_Validation(t *testing.T) {
	_, err := NewIndexer(nil, embed.NewStaticEmbedder(8))
	assert.Error(t, err)

	_, err = NewIndexer(testConfig(), nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize
	_, err = NewIndexer(cfg, embed.NewStaticEmbedder(8))
	assert.Error(t, err)
}

func TestIndexer_Run_BuildsCorpusAndVectors(t *testing.T) {
	// Given: a repository with indexable and excluded files
	cfg := testConfig()
	root := sampleRepo(t)

	// When: indexing it
	res := buildIndex(t, cfg, root)

	// Then: only the three source files were chunked
	assert.Equal(t, 3, res.Files)
	assert.GreaterOrEqual(t, res.Chunks, 3)
	assert.Equal(t, "static-hash-256", res.Model)
	assert.Equal(t, 256, res.Dimensions)

	dataDir := filepath.Join(root, ".coderag")
	assert.Equal(t, dataDir, res.DataDir)
	assert.FileExists(t, filepath.Join(dataDir, store.CorpusFileName))
	assert.FileExists(t, filepath.Join(dataDir, store.VectorFileName))
	assert.FileExists(t, filepath.Join(dataDir, store.VectorFileName+".meta"))

	// And: the corpus holds content-hash IDs with language metadata
	corpus, err := store.OpenCorpusStore(filepath.Join(dataDir, store.CorpusFileName))
	require.NoError(t, err)
	defer func() { _ = corpus.Close() }()

	docs, err := corpus.All(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, res.Chunks)
	for _, d := range docs {
		assert.Equal(t, DocumentID(d.Path, d.Content), d.ID)
		assert.NotContains(t, d.Path, "node_modules")
		assert.NotEqual(t, ".env", d.Path)
	}
	assert.Equal(t, "Markdown", docs[0].Metadata["language"])
	assert.Equal(t, "README.md", docs[0].Path)

	model, err := corpus.GetState(context.Background(), store.StateKeyEmbeddingModel)
	require.NoError(t, err)
	assert.Equal(t, "static-hash-256", model)
}

func TestIndexer_Run_ReindexReplacesCorpus(t *testing.T) {
	cfg := testConfig()
	root := sampleRepo(t)
	first := buildIndex(t, cfg, root)

	// When: a file is deleted and the repository reindexed
	require.NoError(t, os.Remove(filepath.Join(root, "config.go")))
	second := buildIndex(t, cfg, root)

	// Then: the corpus shrinks and stays consistent with the vectors
	assert.Equal(t, 2, second.Files)
	assert.Less(t, second.Chunks, first.Chunks)

	stats, err := openService(t, cfg, root).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.Chunks, stats.TotalChunks)
	assert.Equal(t, second.Chunks, stats.Vectors)
	assert.True(t, stats.Consistent)
}

func TestIndexer_Run_RefusesWhenLocked(t *testing.T) {
	cfg := testConfig()
	root := sampleRepo(t)

	held := NewLock(cfg.DataPath(root))
	require.NoError(t, held.TryLock())
	defer func() { _ = held.Unlock() }()

	ix, err := NewIndexer(cfg, embed.NewStaticEmbedder(32))
	require.NoError(t, err)

	_, err = ix.Run(context.Background(), root)
	assert.Equal(t, cerrors.ErrCodeIndexLocked, cerrors.GetCode(err))
}

func TestIndexer_Run_ReportsProgress(t *testing.T) {
	cfg := testConfig()
	root := sampleRepo(t)

	var mu sync.Mutex
	stages := map[Stage]int{}
	buildIndex(t, cfg, root, WithProgress(func(p Progress) {
		mu.Lock()
		stages[p.Stage]++
		mu.Unlock()
	}))

	assert.Equal(t, 1, stages[StageScanning])
	assert.Equal(t, 3, stages[StageChunking])
	assert.GreaterOrEqual(t, stages[StageEmbedding], 1)
	assert.Equal(t, 1, stages[StageWriting])
}

type countingEmbedder struct {
	*embed.StaticEmbedder
	batches []int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, len(texts))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestIndexer_Run_EmbedsInBatches(t *testing.T) {
	cfg := testConfig()
	cfg.Embeddings.BatchSize = 2
	root := sampleRepo(t)

	emb := &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(256)}
	ix, err := NewIndexer(cfg, emb)
	require.NoError(t, err)

	res, err := ix.Run(context.Background(), root)
	require.NoError(t, err)

	total := 0
	for _, n := range emb.batches {
		assert.LessOrEqual(t, n, 2)
		total += n
	}
	assert.Equal(t, res.Chunks, total)
}

type failingEmbedder struct{ *embed.StaticEmbedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("out of memory")
}

func TestIndexer_Run_EmbeddingFailureLeavesNoCorpus(t *testing.T) {
	cfg := testConfig()
	root := sampleRepo(t)

	ix, err := NewIndexer(cfg, failingEmbedder{embed.NewStaticEmbedder(256)})
	require.NoError(t, err)

	_, err = ix.Run(context.Background(), root)
	require.ErrorContains(t, err, "out of memory")
	assert.NoFileExists(t, filepath.Join(cfg.DataPath(root), store.CorpusFileName))
}

func TestIndexer_Run_HonorsConfiguredPaths(t *testing.T) {
	cfg := testConfig()
	cfg.Paths.Extensions = []string{".go"}
	cfg.Paths.Exclude = append(cfg.Paths.Exclude, "config.go")
	root := sampleRepo(t)

	res := buildIndex(t, cfg, root)

	assert.Equal(t, 1, res.Files)
}

func TestIndexer_Run_CustomDataDirInsideRepo(t *testing.T) {
	cfg := testConfig()
	cfg.DataDir = "index-data"
	root := sampleRepo(t)

	first := buildIndex(t, cfg, root)
	second := buildIndex(t, cfg, root)

	// The data directory is never indexed as repository content.
	assert.Equal(t, first.Files, second.Files)
	assert.DirExists(t, filepath.Join(root, "index-data"))
}

func TestIndexer_Run_EmptyRepository(t *testing.T) {
	cfg := testConfig()
	root := writeRepo(t, map[string]string{"binary.dat": "x"})

	res := buildIndex(t, cfg, root)

	assert.Equal(t, 0, res.Chunks)
	assert.NoFileExists(t, filepath.Join(cfg.DataPath(root), store.VectorFileName))

	// An empty corpus has no sparse retriever.
	svc := openService(t, cfg, root)
	_, err := svc.Search(context.Background(), "anything", 3, nil, "")
	assert.ErrorIs(t, err, search.ErrSparseUnavailable)
}

// =============================================================================
// Service
// =============================================================================

func TestService_Search_AfterIndexing(t *testing.T) {
	// Given: an indexed repository
	cfg := testConfig()
	root := sampleRepo(t)
	buildIndex(t, cfg, root)
	svc := openService(t, cfg, root)

	// When: running an adaptive code query
	res, err := svc.Search(context.Background(), "function parseConfig", 3, nil, "conv-1")
	require.NoError(t, err)

	// Then: fused hits come back with code weights
	require.NotEmpty(t, res.Documents)
	assert.Equal(t, search.MethodEnsembleRRF, res.Method)
	assert.Equal(t, search.CodeWeights(), res.Weights)
	assert.Len(t, res.Scores, len(res.Documents))

	found := false
	for _, d := range res.Documents {
		if strings.Contains(d.Content, "parseConfig") {
			found = true
		}
	}
	assert.True(t, found, "expected a chunk mentioning parseConfig")
}

func TestService_Search_ExplicitWeights(t *testing.T) {
	cfg := testConfig()
	root := sampleRepo(t)
	buildIndex(t, cfg, root)
	svc := openService(t, cfg, root)

	w, err := search.NewRetrievalWeights(1.0, 0.0)
	require.NoError(t, err)

	res, err := svc.Search(context.Background(), "prints its configuration", 2, &w, "")
	require.NoError(t, err)
	assert.Equal(t, w, res.Weights)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []search.SearchEvent
}

func (r *recordingObserver) ObserveSearch(ev search.SearchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestOpen_WiresObserver(t *testing.T) {
	cfg := testConfig()
	root := sampleRepo(t)
	buildIndex(t, cfg, root)

	obs := &recordingObserver{}
	svc, err := Open(context.Background(), cfg, root, obs)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	_, err = svc.Search(context.Background(), "main", 2, nil, "")
	require.NoError(t, err)

	require.Len(t, obs.events, 1)
	assert.True(t, obs.events[0].Adaptive)
}

func TestService_Stats(t *testing.T) {
	cfg := testConfig()
	root := sampleRepo(t)
	res := buildIndex(t, cfg, root)

	stats, err := openService(t, cfg, root).Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, res.Chunks, stats.TotalChunks)
	assert.Equal(t, res.Chunks, stats.Vectors)
	assert.Equal(t, "static-hash-256", stats.EmbeddingModel)
	assert.Equal(t, 256, stats.Dimensions)
	assert.Equal(t, filepath.Join(root, ".coderag"), stats.DataDir)
	assert.NotEmpty(t, stats.IndexedAt)
	assert.True(t, stats.SparseAvailable)
	assert.True(t, stats.Consistent)
}

func TestOpen_NeverIndexed(t *testing.T) {
	// Given: a repository without an index
	cfg := testConfig()
	root := writeRepo(t, map[string]string{"main.go": "package main\n"})

	// When: opening it
	svc := openService(t, cfg, root)

	// Then: nothing is created on disk and ensemble search is refused
	assert.NoDirExists(t, filepath.Join(root, ".coderag"))
	_, err := svc.Search(context.Background(), "main", 3, nil, "")
	assert.ErrorIs(t, err, search.ErrSparseUnavailable)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks)
	assert.False(t, stats.SparseAvailable)
}

func TestOpen_DimensionMismatch(t *testing.T) {
	cfg := testConfig()
	root := sampleRepo(t)
	buildIndex(t, cfg, root)

	other := testConfig()
	other.Embeddings.Dimensions = 128
	_, err := Open(context.Background(), other, root, nil)

	assert.Equal(t, cerrors.ErrCodeDimensionMismatch, cerrors.GetCode(err))
}

func TestOpen_MissingVectorIndex(t *testing.T) {
	cfg := testConfig()
	root := sampleRepo(t)
	buildIndex(t, cfg, root)

	vectorPath := filepath.Join(cfg.DataPath(root), store.VectorFileName)
	require.NoError(t, os.Remove(vectorPath))
	require.NoError(t, os.Remove(vectorPath+".meta"))

	_, err := Open(context.Background(), cfg, root, nil)
	assert.Equal(t, cerrors.ErrCodeCorruptIndex, cerrors.GetCode(err))
}

func TestOpen_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Embeddings.Provider = "openai"

	_, err := Open(context.Background(), cfg, t.TempDir(), nil)
	assert.Equal(t, cerrors.ErrCodeConfigInvalid, cerrors.GetCode(err))
}

func TestService_CloseTwice(t *testing.T) {
	svc, err := Open(context.Background(), testConfig(), t.TempDir(), nil)
	require.NoError(t, err)

	assert.NoError(t, svc.Close())
	assert.NoError(t, svc.Close())
}

// =============================================================================
// Consistency
// =============================================================================

func TestCheckConsistency(t *testing.T) {
	ctx := context.Background()
	corpus, err := store.OpenCorpusStore("")
	require.NoError(t, err)
	defer func() { _ = corpus.Close() }()

	require.NoError(t, corpus.ReplaceAll(ctx, []store.Document{
		{ID: "a", Path: "a.go", Content: "package a"},
		{ID: "b", Path: "b.go", Content: "package b"},
	}))
	require.NoError(t, corpus.SetState(ctx, store.StateKeyEmbeddingModel, "static-hash-8"))

	vectors, err := store.NewHNSWStore(store.DefaultVectorIndexConfig(2))
	require.NoError(t, err)
	defer func() { _ = vectors.Close() }()

	t.Run("consistent", func(t *testing.T) {
		require.NoError(t, vectors.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))

		res, err := CheckConsistency(ctx, corpus, vectors, "static-hash-8")
		require.NoError(t, err)
		assert.True(t, res.Consistent())
		assert.Equal(t, 2, res.Documents)
		assert.Equal(t, 2, res.Vectors)
	})

	t.Run("missing, orphaned and wrong model", func(t *testing.T) {
		vectors.Reset()
		require.NoError(t, vectors.Add(ctx, []string{"a", "zzz"}, [][]float32{{1, 0}, {0, 1}}))

		res, err := CheckConsistency(ctx, corpus, vectors, "static-hash-16")
		require.NoError(t, err)
		require.Len(t, res.Inconsistencies, 3)
		assert.Equal(t, InconsistencyMissingVector, res.Inconsistencies[0].Type)
		assert.Equal(t, "b", res.Inconsistencies[0].ID)
		assert.Equal(t, InconsistencyOrphanVectors, res.Inconsistencies[1].Type)
		assert.Equal(t, InconsistencyModelMismatch, res.Inconsistencies[2].Type)
		assert.Equal(t, "model_mismatch", res.Inconsistencies[2].Type.String())
	})
}
