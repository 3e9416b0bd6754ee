// Package memory keeps the routing feedback that survives across requests:
// user corrections of misrouted queries and successfully executed queries.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultMaxCorrections bounds the correction log.
	DefaultMaxCorrections = 100
	// DefaultMaxSuccesses bounds the success log.
	DefaultMaxSuccesses = 50
	// LearnedThreshold is the minimum Jaccard similarity for a learned override.
	LearnedThreshold = 0.6
	// SuccessThreshold is the minimum Jaccard similarity for a few-shot example.
	SuccessThreshold = 0.3
	// DefaultSuccessLimit is the number of few-shot examples returned by default.
	DefaultSuccessLimit = 3
)

// CorrectionRecord is a misrouted query and the action the user wanted.
type CorrectionRecord struct {
	Query         string    `json:"query"`
	WrongAction   string    `json:"wrong_action"`
	CorrectAction string    `json:"correct_action"`
	Timestamp     time.Time `json:"timestamp"`
}

// SuccessRecord is a query whose routed action executed successfully.
// Classification holds the classifier answer reused as a few-shot example.
type SuccessRecord struct {
	Query          string    `json:"query"`
	Action         string    `json:"action"`
	Classification string    `json:"classification"`
	Timestamp      time.Time `json:"timestamp"`
}

// ScoredSuccess is a SuccessRecord with its similarity to a lookup query.
type ScoredSuccess struct {
	SuccessRecord
	Similarity float64
}

// Persister stores feedback records outside the process.
type Persister interface {
	LoadCorrections(ctx context.Context, limit int) ([]CorrectionRecord, error)
	LoadSuccesses(ctx context.Context, limit int) ([]SuccessRecord, error)
	SaveCorrection(ctx context.Context, rec CorrectionRecord) error
	SaveSuccess(ctx context.Context, rec SuccessRecord) error
}

// Options configures a CorrectionMemory.
type Options struct {
	MaxCorrections int
	MaxSuccesses   int
	Persister      Persister
	Now            func() time.Time
	Logger         *slog.Logger
}

type indexedCorrection struct {
	rec    CorrectionRecord
	tokens map[string]struct{}
}

type indexedSuccess struct {
	rec    SuccessRecord
	tokens map[string]struct{}
}

// snapshot is never mutated after publication.
type snapshot struct {
	corrections []indexedCorrection
	successes   []indexedSuccess
}

// CorrectionMemory is a bounded, append-only feedback log.
// Reads load an immutable snapshot and never block; writes are serialized
// and publish a fresh snapshot, so eviction never disturbs an in-flight read.
type CorrectionMemory struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	maxCorrections int
	maxSuccesses   int
	persister      Persister
	now            func() time.Time
	logger         *slog.Logger
}

// NewCorrectionMemory creates an empty memory. Call Load to restore persisted records.
func NewCorrectionMemory(opts Options) *CorrectionMemory {
	if opts.MaxCorrections <= 0 {
		opts.MaxCorrections = DefaultMaxCorrections
	}
	if opts.MaxSuccesses <= 0 {
		opts.MaxSuccesses = DefaultMaxSuccesses
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &CorrectionMemory{
		maxCorrections: opts.MaxCorrections,
		maxSuccesses:   opts.MaxSuccesses,
		persister:      opts.Persister,
		now:            opts.Now,
		logger:         opts.Logger,
	}
	m.snap.Store(&snapshot{})
	return m
}

// Load replaces the in-memory log with the most recent persisted records.
func (m *CorrectionMemory) Load(ctx context.Context) error {
	if m.persister == nil {
		return nil
	}
	corrections, err := m.persister.LoadCorrections(ctx, m.maxCorrections)
	if err != nil {
		return err
	}
	successes, err := m.persister.LoadSuccesses(ctx, m.maxSuccesses)
	if err != nil {
		return err
	}

	next := &snapshot{
		corrections: make([]indexedCorrection, 0, len(corrections)),
		successes:   make([]indexedSuccess, 0, len(successes)),
	}
	for _, rec := range tail(corrections, m.maxCorrections) {
		next.corrections = append(next.corrections, indexedCorrection{rec: rec, tokens: Tokenize(rec.Query)})
	}
	for _, rec := range tail(successes, m.maxSuccesses) {
		next.successes = append(next.successes, indexedSuccess{rec: rec, tokens: Tokenize(rec.Query)})
	}

	m.mu.Lock()
	m.snap.Store(next)
	m.mu.Unlock()

	m.logger.Debug("correction memory loaded",
		"corrections", len(next.corrections),
		"successes", len(next.successes),
	)
	return nil
}

// RecordCorrection appends a correction, evicting the oldest past the cap.
// Persistence is best-effort: a failure is logged and the in-memory record stays.
func (m *CorrectionMemory) RecordCorrection(ctx context.Context, query, wrongAction, correctAction string) CorrectionRecord {
	rec := CorrectionRecord{
		Query:         query,
		WrongAction:   wrongAction,
		CorrectAction: correctAction,
		Timestamp:     m.now(),
	}

	m.mu.Lock()
	cur := m.snap.Load()
	corrections := make([]indexedCorrection, 0, len(cur.corrections)+1)
	corrections = append(corrections, cur.corrections...)
	corrections = append(corrections, indexedCorrection{rec: rec, tokens: Tokenize(query)})
	m.snap.Store(&snapshot{
		corrections: tail(corrections, m.maxCorrections),
		successes:   cur.successes,
	})
	m.mu.Unlock()

	if m.persister != nil {
		if err := m.persister.SaveCorrection(ctx, rec); err != nil {
			m.logger.Warn("failed to persist correction",
				"query", truncate(query, 50),
				"error", err,
			)
		}
	}
	return rec
}

// RecordSuccess appends a success record, evicting the oldest past the cap.
func (m *CorrectionMemory) RecordSuccess(ctx context.Context, query, action, classification string) SuccessRecord {
	rec := SuccessRecord{
		Query:          query,
		Action:         action,
		Classification: classification,
		Timestamp:      m.now(),
	}

	m.mu.Lock()
	cur := m.snap.Load()
	successes := make([]indexedSuccess, 0, len(cur.successes)+1)
	successes = append(successes, cur.successes...)
	successes = append(successes, indexedSuccess{rec: rec, tokens: Tokenize(query)})
	m.snap.Store(&snapshot{
		corrections: cur.corrections,
		successes:   tail(successes, m.maxSuccesses),
	})
	m.mu.Unlock()

	if m.persister != nil {
		if err := m.persister.SaveSuccess(ctx, rec); err != nil {
			m.logger.Warn("failed to persist success",
				"query", truncate(query, 50),
				"error", err,
			)
		}
	}
	return rec
}

// LookupLearnedAction returns the correct action of the most similar
// correction when its similarity reaches LearnedThreshold. Ties go to the
// most recent correction.
func (m *CorrectionMemory) LookupLearnedAction(query string) (string, float64, bool) {
	snap := m.snap.Load()
	if len(snap.corrections) == 0 {
		return "", 0, false
	}
	tokens := Tokenize(query)

	best, bestSim := -1, 0.0
	for i := len(snap.corrections) - 1; i >= 0; i-- {
		sim := JaccardSets(tokens, snap.corrections[i].tokens)
		if sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best < 0 || bestSim < LearnedThreshold {
		return "", bestSim, false
	}
	return snap.corrections[best].rec.CorrectAction, bestSim, true
}

// SimilarSuccesses returns up to limit success records with similarity of at
// least SuccessThreshold, most similar first.
func (m *CorrectionMemory) SimilarSuccesses(query string, limit int) []ScoredSuccess {
	if limit <= 0 {
		limit = DefaultSuccessLimit
	}
	snap := m.snap.Load()
	tokens := Tokenize(query)

	var scored []ScoredSuccess
	for _, s := range snap.successes {
		sim := JaccardSets(tokens, s.tokens)
		if sim >= SuccessThreshold {
			scored = append(scored, ScoredSuccess{SuccessRecord: s.rec, Similarity: sim})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// Corrections returns a copy of the correction log, oldest first.
func (m *CorrectionMemory) Corrections() []CorrectionRecord {
	snap := m.snap.Load()
	out := make([]CorrectionRecord, len(snap.corrections))
	for i, c := range snap.corrections {
		out[i] = c.rec
	}
	return out
}

// Successes returns a copy of the success log, oldest first.
func (m *CorrectionMemory) Successes() []SuccessRecord {
	snap := m.snap.Load()
	out := make([]SuccessRecord, len(snap.successes))
	for i, s := range snap.successes {
		out[i] = s.rec
	}
	return out
}

func tail[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
