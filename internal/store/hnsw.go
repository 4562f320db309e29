package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

var errStoreClosed = errors.New("vector index is closed")

// HNSWStore is a VectorIndex on the pure Go coder/hnsw graph. Chunk IDs are
// mapped to sequential uint64 keys; replaced IDs leave orphaned graph nodes
// that are filtered out of results.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig

	keys    map[string]uint64
	ids     map[uint64]string
	nextKey uint64

	closed bool
}

// hnswSnapshot is the gob-encoded sidecar written next to the graph.
type hnswSnapshot struct {
	Keys    map[string]uint64
	NextKey uint64
	Config  VectorIndexConfig
}

// NewHNSWStore creates an empty index.
func NewHNSWStore(cfg VectorIndexConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	return &HNSWStore{
		graph:  newGraph(cfg),
		config: cfg,
		keys:   make(map[string]uint64),
		ids:    make(map[uint64]string),
	}, nil
}

func newGraph(cfg VectorIndexConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	if cfg.Metric == "l2" {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Dimensions returns the configured vector size.
func (s *HNSWStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Dimensions
}

// Add inserts vectors. Re-adding an ID orphans its previous node.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStoreClosed
	}
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if old, ok := s.keys[id]; ok {
			delete(s.ids, old)
		}

		key := s.nextKey
		s.nextKey++

		vec := s.prepare(vectors[i])
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.keys[id] = key
		s.ids[key] = id
	}
	return nil
}

// prepare copies v and unit-normalizes it for cosine graphs.
func (s *HNSWStore) prepare(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	if s.config.Metric == "cos" {
		normalize(out)
	}
	return out
}

// Search returns up to k matches, closest first.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errStoreClosed
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if k <= 0 || s.graph.Len() == 0 {
		return []VectorMatch{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := s.prepare(query)
	// Orphans can occupy result slots; over-fetch to keep k live matches.
	fetch := k
	if orphans := s.graph.Len() - len(s.keys); orphans > 0 {
		fetch += orphans
	}
	nodes := s.graph.Search(q, fetch)

	matches := make([]VectorMatch, 0, k)
	for _, n := range nodes {
		id, ok := s.ids[n.Key]
		if !ok {
			continue
		}
		d := s.graph.Distance(q, n.Value)
		matches = append(matches, VectorMatch{ID: id, Distance: d, Score: similarity(d, s.config.Metric)})
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}

// Reset drops every vector, keeping the configuration.
func (s *HNSWStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = newGraph(s.config)
	s.keys = make(map[string]uint64)
	s.ids = make(map[uint64]string)
	s.nextKey = 0
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.keys)
}

// Contains reports whether id has a live vector.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[id]
	return ok
}

// HNSWStats reports live vectors against graph nodes.
type HNSWStats struct {
	Vectors    int
	GraphNodes int
	Orphans    int
}

func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return HNSWStats{}
	}
	n := s.graph.Len()
	return HNSWStats{Vectors: len(s.keys), GraphNodes: n, Orphans: n - len(s.keys)}
}

// Save writes the graph to path and the ID map to path+".meta". Both files
// are written to a temp name first and renamed into place.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errStoreClosed
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector dir: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error { return s.graph.Export(f) }); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}

	snap := hnswSnapshot{Keys: s.keys, NextKey: s.nextKey, Config: s.config}
	if err := writeAtomic(path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(snap) }); err != nil {
		return fmt.Errorf("write vector metadata: %w", err)
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load replaces the in-memory index with the files written by Save.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStoreClosed
	}

	snap, err := readSnapshot(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	defer f.Close()

	g := newGraph(snap.Config)
	// Import needs an io.ByteReader.
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.graph = g
	s.config = snap.Config
	s.keys = snap.Keys
	s.nextKey = snap.NextKey
	s.ids = make(map[uint64]string, len(snap.Keys))
	for id, key := range snap.Keys {
		s.ids[key] = id
	}
	return nil
}

func readSnapshot(path string) (hnswSnapshot, error) {
	var snap hnswSnapshot
	f, err := os.Open(path + ".meta")
	if err != nil {
		return snap, fmt.Errorf("open vector metadata: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			slog.Warn("close_vector_metadata_failed", slog.String("error", cerr.Error()))
		}
	}()
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode vector metadata: %w", err)
	}
	if snap.Keys == nil {
		snap.Keys = make(map[string]uint64)
	}
	return snap, nil
}

// ReadVectorDimensions returns the dimensions recorded at path, or 0 when
// no index has been saved yet.
func ReadVectorDimensions(path string) (int, error) {
	if _, err := os.Stat(path + ".meta"); os.IsNotExist(err) {
		return 0, nil
	}
	snap, err := readSnapshot(path)
	if err != nil {
		return 0, err
	}
	return snap.Config.Dimensions, nil
}

// Close releases the graph.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graph = nil
	return nil
}

var _ VectorIndex = (*HNSWStore)(nil)

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// similarity maps a distance onto [0,1]. Cosine distance spans 0..2.
func similarity(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1 / (1 + distance)
	}
	return 1 - distance/2
}
