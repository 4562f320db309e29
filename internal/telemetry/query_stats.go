package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/coderag/internal/search"
)

// LatencyBucket is a coarse latency class.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer; capacity <= 0 selects 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the contents oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, b.size)
	if b.size < b.capacity {
		copy(out, b.items[:b.size])
		return out
	}
	n := copy(out, b.items[b.head:])
	copy(out[n:], b.items[:b.head])
	return out
}

// Len returns the number of buffered items.
func (b *CircularBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases query and keeps whitespace-separated words of
// three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term and how often it was seen.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryStatsSnapshot is a point-in-time copy of QueryStats.
type QueryStatsSnapshot struct {
	TotalQueries      int64                   `json:"total_queries"`
	FailedQueries     int64                   `json:"failed_queries"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	QueryTypes        map[string]int64        `json:"query_types"`
	FailuresBySource  map[string]int64        `json:"failures_by_source"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
	TopTerms          []TermCount             `json:"top_terms"`
	Since             time.Time               `json:"since"`
}

// QueryStats aggregates recent search activity in memory.
type QueryStats struct {
	mu          sync.Mutex
	total       int64
	failed      int64
	queryTypes  map[string]int64
	failures    map[string]int64
	latency     map[LatencyBucket]int64
	terms       *lru.Cache[string, int64]
	zeroResults *CircularBuffer[string]
	since       time.Time
}

// NewQueryStats tracks up to termCapacity distinct terms and the last
// zeroCapacity zero-result queries.
func NewQueryStats(termCapacity, zeroCapacity int) *QueryStats {
	if termCapacity <= 0 {
		termCapacity = 100
	}
	terms, _ := lru.New[string, int64](termCapacity)
	return &QueryStats{
		queryTypes:  make(map[string]int64),
		failures:    make(map[string]int64),
		latency:     make(map[LatencyBucket]int64),
		terms:       terms,
		zeroResults: NewCircularBuffer[string](zeroCapacity),
		since:       time.Now(),
	}
}

// ObserveSearch implements search.Observer.
func (s *QueryStats) ObserveSearch(ev search.SearchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.queryTypes[string(ev.Classified)]++
	s.latency[LatencyToBucket(ev.Elapsed)]++
	for _, term := range ExtractTerms(ev.Query.Text) {
		n, _ := s.terms.Get(term)
		s.terms.Add(term, n+1)
	}

	if ev.Err != nil {
		s.failed++
		if ev.FailedSource != "" {
			s.failures[string(ev.FailedSource)]++
		}
		return
	}
	if ev.Results == 0 {
		s.zeroResults.Add(ev.Query.Text)
	}
}

// Snapshot copies the current aggregates. TopTerms is sorted by count,
// then term.
func (s *QueryStats) Snapshot() QueryStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := QueryStatsSnapshot{
		TotalQueries:      s.total,
		FailedQueries:     s.failed,
		ZeroResultQueries: s.zeroResults.Items(),
		QueryTypes:        copyMap(s.queryTypes),
		FailuresBySource:  copyMap(s.failures),
		Latency:           copyMap(s.latency),
		Since:             s.since,
	}
	for _, term := range s.terms.Keys() {
		if n, ok := s.terms.Peek(term); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	sort.Slice(snap.TopTerms, func(i, j int) bool {
		a, b := snap.TopTerms[i], snap.TopTerms[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Term < b.Term
	})
	return snap
}

func copyMap[K comparable](m map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
