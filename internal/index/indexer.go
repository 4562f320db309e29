// Package index builds and opens the on-disk search index of a repository:
// the SQLite corpus, the HNSW vector graph and the services that query them.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/coderag/internal/chunk"
	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/embed"
	"github.com/Aman-CERP/coderag/internal/scanner"
	"github.com/Aman-CERP/coderag/internal/store"
)

// Stage names an indexing phase for progress reporting.
type Stage string

const (
	StageScanning  Stage = "scanning"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageWriting   Stage = "writing"
)

// Progress is reported while an index is built.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
	File    string
}

// ProgressFunc receives progress updates. It is called from the goroutine
// running Run.
type ProgressFunc func(Progress)

// Result summarizes an index build.
type Result struct {
	Root       string        `json:"root"`
	DataDir    string        `json:"data_dir"`
	Files      int           `json:"files"`
	Chunks     int           `json:"chunks"`
	Skipped    int           `json:"skipped"`
	Model      string        `json:"embedding_model"`
	Dimensions int           `json:"embedding_dimension"`
	Duration   time.Duration `json:"duration"`
}

// Indexer rebuilds a repository index from scratch. Every run discards the
// previous corpus and vector graph.
type Indexer struct {
	cfg      *config.Config
	embedder embed.Embedder
	splitter *chunk.Splitter
	scanner  *scanner.Scanner
	progress ProgressFunc
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(ix *Indexer) { ix.progress = fn }
}

// NewIndexer creates an Indexer using cfg's paths, chunking and embedding
// settings.
func NewIndexer(cfg *config.Config, embedder embed.Embedder, opts ...Option) (*Indexer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	splitter, err := chunk.NewSplitter(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to create splitter: %w", err)
	}
	sc, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	ix := &Indexer{
		cfg:      cfg,
		embedder: embedder,
		splitter: splitter,
		scanner:  sc,
		progress: func(Progress) {},
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// DocumentID is the content-derived ID of a chunk. Re-indexing unchanged
// content yields the same ID.
func DocumentID(path, content string) string {
	sum := sha256.Sum256([]byte(path + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

// Run indexes the repository at root. It holds the data directory lock for
// the whole build.
func (ix *Indexer) Run(ctx context.Context, root string) (*Result, error) {
	start := time.Now()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	dataDir := ix.cfg.DataPath(absRoot)

	lock := NewLock(dataDir)
	if err := lock.TryLock(); err != nil {
		return nil, err
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			slog.Warn("index_unlock_failed", slog.String("error", uerr.Error()))
		}
	}()

	slog.Info("index_started",
		slog.String("root", absRoot),
		slog.String("data_dir", dataDir),
		slog.String("embedder", ix.embedder.ModelName()))

	ix.progress(Progress{Stage: StageScanning})
	files, err := ix.scanner.Collect(ctx, scanner.Options{
		RootDir:          absRoot,
		Include:          ix.cfg.Paths.Include,
		Exclude:          ix.excludes(absRoot, dataDir),
		Extensions:       ix.cfg.Paths.Extensions,
		RespectGitignore: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", absRoot, err)
	}
	slog.Info("index_scan_complete", slog.Int("files", len(files)))

	docs, skipped, err := ix.chunkFiles(ctx, files)
	if err != nil {
		return nil, err
	}

	vectors, err := ix.embedDocuments(ctx, docs)
	if err != nil {
		return nil, err
	}

	if err := ix.write(ctx, absRoot, dataDir, docs, vectors); err != nil {
		return nil, err
	}

	res := &Result{
		Root:       absRoot,
		DataDir:    dataDir,
		Files:      len(files) - skipped,
		Chunks:     len(docs),
		Skipped:    skipped,
		Model:      ix.embedder.ModelName(),
		Dimensions: ix.embedder.Dimensions(),
		Duration:   time.Since(start),
	}
	slog.Info("index_complete",
		slog.Int("files", res.Files),
		slog.Int("chunks", res.Chunks),
		slog.Int("skipped", res.Skipped),
		slog.Int64("duration_ms", res.Duration.Milliseconds()),
		slog.String("path", absRoot))
	return res, nil
}

// excludes adds the data directory to the configured exclude globs when it
// lives inside the repository.
func (ix *Indexer) excludes(root, dataDir string) []string {
	out := append([]string(nil), ix.cfg.Paths.Exclude...)
	rel, err := filepath.Rel(root, dataDir)
	if err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		out = append(out, "/"+filepath.ToSlash(rel)+"/**")
	}
	return out
}

// chunkFiles splits every file into documents in scan order. Unreadable
// files are skipped and counted. Chunks repeated verbatim within a file
// share an ID and are stored once.
func (ix *Indexer) chunkFiles(ctx context.Context, files []*scanner.FileInfo) ([]store.Document, int, error) {
	var docs []store.Document
	seen := make(map[string]bool)
	skipped := 0

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		ix.progress(Progress{Stage: StageChunking, Current: i + 1, Total: len(files), File: f.Path})

		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			slog.Warn("index_read_failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			skipped++
			continue
		}

		for _, c := range ix.splitter.Split(string(content)) {
			if strings.TrimSpace(c.Content) == "" {
				continue
			}
			id := DocumentID(f.Path, c.Content)
			if seen[id] {
				continue
			}
			seen[id] = true
			docs = append(docs, store.Document{
				ID:         id,
				Path:       f.Path,
				ChunkIndex: c.Index,
				Content:    c.Content,
				Metadata: map[string]any{
					"language":     f.Language,
					"content_type": string(f.ContentType),
				},
			})
		}
	}

	slog.Debug("index_chunk_complete",
		slog.Int("files", len(files)),
		slog.Int("chunks", len(docs)))
	return docs, skipped, nil
}

// embedDocuments embeds document contents in batches of
// cfg.Embeddings.BatchSize.
func (ix *Indexer) embedDocuments(ctx context.Context, docs []store.Document) ([][]float32, error) {
	batch := ix.cfg.Embeddings.BatchSize
	if batch <= 0 {
		batch = embed.DefaultBatchSize
	}

	vectors := make([][]float32, 0, len(docs))
	for startIdx := 0; startIdx < len(docs); startIdx += batch {
		end := min(startIdx+batch, len(docs))

		texts := make([]string, 0, end-startIdx)
		for _, d := range docs[startIdx:end] {
			texts = append(texts, d.Content)
		}

		out, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", startIdx, end, err)
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(out), len(texts))
		}
		vectors = append(vectors, out...)
		ix.progress(Progress{Stage: StageEmbedding, Current: end, Total: len(docs)})
	}
	return vectors, nil
}

// write replaces the corpus and the vector graph and records index state.
func (ix *Indexer) write(ctx context.Context, root, dataDir string, docs []store.Document, vectors [][]float32) error {
	ix.progress(Progress{Stage: StageWriting, Total: len(docs)})

	corpus, err := store.OpenCorpusStore(filepath.Join(dataDir, store.CorpusFileName))
	if err != nil {
		return fmt.Errorf("failed to open corpus: %w", err)
	}
	defer func() { _ = corpus.Close() }()

	if err := corpus.ReplaceAll(ctx, docs); err != nil {
		return fmt.Errorf("failed to write corpus: %w", err)
	}

	graph, err := store.NewHNSWStore(store.DefaultVectorIndexConfig(ix.embedder.Dimensions()))
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	defer func() { _ = graph.Close() }()

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	if err := graph.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("failed to build vector index: %w", err)
	}
	vectorPath := filepath.Join(dataDir, store.VectorFileName)
	if len(docs) == 0 {
		// Nothing to search; drop any graph left by a previous build.
		_ = os.Remove(vectorPath)
		_ = os.Remove(vectorPath + ".meta")
	} else if err := graph.Save(vectorPath); err != nil {
		return fmt.Errorf("failed to save vector index: %w", err)
	}

	state := map[string]string{
		store.StateKeyEmbeddingModel:     ix.embedder.ModelName(),
		store.StateKeyEmbeddingDimension: strconv.Itoa(ix.embedder.Dimensions()),
		store.StateKeyIndexedAt:          time.Now().UTC().Format(time.RFC3339),
		store.StateKeyRootPath:           root,
	}
	for k, v := range state {
		if err := corpus.SetState(ctx, k, v); err != nil {
			return fmt.Errorf("failed to record %s: %w", k, err)
		}
	}
	return nil
}
