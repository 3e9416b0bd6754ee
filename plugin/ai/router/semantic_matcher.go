package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	aierrors "github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/plugin/ai/cache"
	"github.com/hrygo/calroute/plugin/ai/timeout"
	"github.com/hrygo/calroute/plugin/ai/vector"
)

const (
	// DefaultSemanticThreshold is the minimum similarity for a semantic signal.
	DefaultSemanticThreshold = 0.70
	// HighFidelityScale lowers the threshold for better-calibrated providers.
	HighFidelityScale = 0.95
)

// SemanticOptions configures a SemanticMatcher.
type SemanticOptions struct {
	Catalogue Catalogue
	Threshold float64
	// CacheSize and CacheTTL bound the query embedding cache.
	CacheSize int
	CacheTTL  time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// SemanticMatcher matches a query against catalogue phrases by cosine similarity.
type SemanticMatcher struct {
	provider  EmbeddingProvider
	catalogue Catalogue
	threshold float64
	queries   *cache.LRU[[]float32]
	logger    *slog.Logger

	warm    singleflight.Group
	mu      sync.RWMutex
	actions []ActionKind
	vectors [][]float32
}

// NewSemanticMatcher creates a matcher. The catalogue is embedded lazily on first use.
func NewSemanticMatcher(provider EmbeddingProvider, opts SemanticOptions) *SemanticMatcher {
	if opts.Catalogue == nil {
		opts.Catalogue = DefaultCatalogue()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultSemanticThreshold
	}
	if provider != nil && provider.HighFidelity() {
		opts.Threshold *= HighFidelityScale
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SemanticMatcher{
		provider:  provider,
		catalogue: opts.Catalogue,
		threshold: opts.Threshold,
		queries: cache.NewLRU[[]float32](cache.Options{
			Capacity: opts.CacheSize,
			TTL:      opts.CacheTTL,
			Now:      opts.Now,
		}),
		logger: opts.Logger,
	}
}

// Threshold returns the effective similarity threshold.
func (m *SemanticMatcher) Threshold() float64 {
	return m.threshold
}

// Warm embeds the catalogue once. Concurrent callers share a single batch call;
// a failed warm-up is retried on the next call.
func (m *SemanticMatcher) Warm(ctx context.Context) error {
	if m.ready() {
		return nil
	}
	ch := m.warm.DoChan("catalogue", func() (any, error) {
		if m.ready() {
			return nil, nil
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout.EmbeddingTimeout)
		defer cancel()
		return nil, m.load(wctx)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (m *SemanticMatcher) ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vectors != nil
}

func (m *SemanticMatcher) load(ctx context.Context) error {
	start := time.Now()
	actions, phrases := m.catalogue.entries()
	vectors, err := m.provider.EncodeBatch(ctx, phrases)
	if err != nil {
		return aierrors.ServiceUnavailable("failed to embed catalogue", err)
	}
	if len(vectors) != len(phrases) {
		return fmt.Errorf("catalogue embedding returned %d vectors for %d phrases", len(vectors), len(phrases))
	}

	m.mu.Lock()
	m.actions, m.vectors = actions, vectors
	m.mu.Unlock()

	m.logger.Debug("semantic catalogue embedded",
		"phrases", len(phrases),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Match returns the best action when its similarity reaches the threshold.
// A nil signal with a nil error means no action was similar enough.
func (m *SemanticMatcher) Match(ctx context.Context, query string) (*Signal, error) {
	if m.provider == nil {
		return nil, nil
	}
	if err := m.Warm(ctx); err != nil {
		return nil, err
	}

	qv, err := m.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	best := make(map[ActionKind]float64, len(allActions))
	for i, v := range m.vectors {
		sim := vector.CosineSimilarity(qv, v)
		if cur, ok := best[m.actions[i]]; !ok || sim > cur {
			best[m.actions[i]] = sim
		}
	}
	m.mu.RUnlock()

	var action ActionKind
	score := -1.0
	for _, a := range allActions {
		if s, ok := best[a]; ok && s > score {
			action, score = a, s
		}
	}
	if action == "" || score < m.threshold {
		return nil, nil
	}
	return &Signal{
		Action:     action,
		Confidence: score,
		Source:     SourceSemantic,
	}, nil
}

func (m *SemanticMatcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := normalizeQuery(query)
	if v, ok := m.queries.Get(key); ok {
		return v, nil
	}
	v, err := m.provider.Encode(ctx, query)
	if err != nil {
		return nil, aierrors.ServiceUnavailable("failed to embed query", err)
	}
	m.queries.Set(key, v)
	return v, nil
}
