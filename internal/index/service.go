package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/embed"
	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/search"
	"github.com/Aman-CERP/coderag/internal/store"
)

// Service is an opened index ready to answer ensemble searches. It owns the
// corpus, the vector graph and the embedder and releases them on Close.
type Service struct {
	root     string
	dataDir  string
	corpus   *store.CorpusStore
	vectors  *store.HNSWStore
	embedder embed.Embedder
	ensemble *search.EnsembleRetrievalService
}

// Stats describes an opened index.
type Stats struct {
	Root            string `json:"root"`
	DataDir         string `json:"persist_directory"`
	TotalChunks     int    `json:"total_chunks"`
	Vectors         int    `json:"vectors"`
	EmbeddingModel  string `json:"embedding_model"`
	Dimensions      int    `json:"embedding_dimension"`
	IndexedAt       string `json:"indexed_at,omitempty"`
	SparseAvailable bool   `json:"sparse_available"`
	Consistent      bool   `json:"consistent"`
}

// NewEmbedder builds the embedder described by cfg.
func NewEmbedder(cfg *config.Config) (embed.Embedder, error) {
	return embed.NewEmbedder(cfg.Embeddings.Provider, cfg.Embeddings.Dimensions, cfg.Embeddings.CacheSize)
}

// Open loads the index of root. A repository that was never indexed opens
// with an empty in-memory corpus: dense search returns nothing and ensemble
// search reports search.ErrSparseUnavailable. observer may be nil.
func Open(ctx context.Context, cfg *config.Config, root string, observer search.Observer) (*Service, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	dataDir := cfg.DataPath(absRoot)

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, cerrors.ConfigError(err.Error(), err)
	}

	svc := &Service{root: absRoot, dataDir: dataDir, embedder: embedder}
	if err := svc.load(ctx, cfg, observer); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Service) load(ctx context.Context, cfg *config.Config, observer search.Observer) error {
	corpusPath := filepath.Join(s.dataDir, store.CorpusFileName)
	if _, err := os.Stat(corpusPath); errors.Is(err, os.ErrNotExist) {
		slog.Warn("index_missing", slog.String("data_dir", s.dataDir))
		corpusPath = ""
	}

	var err error
	s.corpus, err = store.OpenCorpusStore(corpusPath)
	if err != nil {
		return fmt.Errorf("failed to open corpus: %w", err)
	}

	if err := s.checkEmbedder(ctx); err != nil {
		return err
	}

	s.vectors, err = store.NewHNSWStore(store.DefaultVectorIndexConfig(s.embedder.Dimensions()))
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	docs, err := s.corpus.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read corpus: %w", err)
	}

	vectorPath := filepath.Join(s.dataDir, store.VectorFileName)
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := s.vectors.Load(vectorPath); err != nil {
			return cerrors.New(cerrors.ErrCodeCorruptIndex, "failed to load vector index", err).
				WithSuggestion("run 'coderag index' to rebuild")
		}
	} else if len(docs) > 0 {
		return cerrors.New(cerrors.ErrCodeCorruptIndex, "corpus has documents but the vector index is missing", nil).
			WithDetail("path", vectorPath).
			WithSuggestion("run 'coderag index' to rebuild")
	}

	backend, err := store.NewVectorBackend(s.embedder, s.vectors, s.corpus)
	if err != nil {
		return err
	}
	dense, err := search.NewDenseRetriever(backend)
	if err != nil {
		return err
	}

	// A nil *SparseRetriever must not reach the service as a non-nil
	// interface.
	var sparse search.Retriever
	sr, err := search.NewSparseRetriever(docs)
	switch {
	case err == nil:
		sparse = sr
	case errors.Is(err, search.ErrEmptyCorpus):
		slog.Warn("sparse_retriever_unavailable", slog.String("reason", "empty corpus"))
	default:
		return err
	}

	opts := []search.ServiceOption{
		search.WithTimeout(cfg.Search.Timeout),
		search.WithRRFConstant(cfg.Search.RRFConstant),
	}
	if observer != nil {
		opts = append(opts, search.WithObserver(observer))
	}
	s.ensemble, err = search.NewEnsembleRetrievalService(dense, sparse, opts...)
	if err != nil {
		return err
	}

	slog.Info("index_opened",
		slog.String("data_dir", s.dataDir),
		slog.Int("documents", len(docs)),
		slog.Int("vectors", s.vectors.Count()),
		slog.Bool("sparse_available", sparse != nil))
	return nil
}

// checkEmbedder refuses to query an index built with different vectors.
func (s *Service) checkEmbedder(ctx context.Context) error {
	dims, err := s.corpus.GetState(ctx, store.StateKeyEmbeddingDimension)
	if err != nil {
		return fmt.Errorf("failed to read index state: %w", err)
	}
	if dims == "" {
		return nil
	}
	if n, perr := strconv.Atoi(dims); perr == nil && n != s.embedder.Dimensions() {
		return cerrors.New(cerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index has %d-dimension vectors, embedder produces %d", n, s.embedder.Dimensions()), nil).
			WithSuggestion("reindex, or set embeddings.dimensions to match the index")
	}
	return nil
}

// Retrieval returns the ensemble service.
func (s *Service) Retrieval() *search.EnsembleRetrievalService { return s.ensemble }

// Embedder returns the query embedder.
func (s *Service) Embedder() embed.Embedder { return s.embedder }

// Search runs an ensemble search. weights nil selects adaptive weights.
func (s *Service) Search(ctx context.Context, text string, k int, weights *search.RetrievalWeights, conversationID string) (*search.SearchResult, error) {
	q := search.NewSearchQuery(text)
	q.ConversationID = conversationID
	return s.ensemble.Search(ctx, q, k, weights)
}

// Stats reports the size and provenance of the index.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	check, err := CheckConsistency(ctx, s.corpus, s.vectors, s.embedder.ModelName())
	if err != nil {
		return nil, err
	}
	model, err := s.corpus.GetState(ctx, store.StateKeyEmbeddingModel)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = s.embedder.ModelName()
	}
	indexedAt, err := s.corpus.GetState(ctx, store.StateKeyIndexedAt)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Root:            s.root,
		DataDir:         s.dataDir,
		TotalChunks:     check.Documents,
		Vectors:         check.Vectors,
		EmbeddingModel:  model,
		Dimensions:      s.embedder.Dimensions(),
		IndexedAt:       indexedAt,
		SparseAvailable: s.ensemble.SparseAvailable(),
		Consistent:      check.Consistent(),
	}, nil
}

// Close releases every resource. It is safe to call more than once.
func (s *Service) Close() error {
	var errs []error
	if s.vectors != nil {
		errs = append(errs, s.vectors.Close())
	}
	if s.corpus != nil {
		errs = append(errs, s.corpus.Close())
	}
	if s.embedder != nil {
		errs = append(errs, s.embedder.Close())
	}
	return errors.Join(errs...)
}
