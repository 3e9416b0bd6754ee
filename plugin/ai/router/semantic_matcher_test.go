package router

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/hrygo/calroute/internal/errors"
)

func testCatalogue() Catalogue {
	return Catalogue{
		ActionList:   {"show my day"},
		ActionCreate: {"book a meeting", "set up a call"},
		ActionMove:   {"move my event"},
	}
}

func testEmbedder() *StubEmbedder {
	return &StubEmbedder{Vectors: map[string][]float32{
		"show my day":    {1, 0, 0},
		"book a meeting": {0, 1, 0},
		"set up a call":  {0, 0.6, 0.8},
		"move my event":  {0, 0, 1},

		"what's on today":     {0.9, 0.1, 0},
		"grab time with alex": {0, 0.6, 0.8},
		"tell me a joke":      {0.5, 0.5, -0.7},
	}}
}

func TestSemanticMatcher_Match(t *testing.T) {
	emb := testEmbedder()
	m := NewSemanticMatcher(emb, SemanticOptions{Catalogue: testCatalogue()})
	assert.InDelta(t, DefaultSemanticThreshold, m.Threshold(), 1e-9)

	tests := []struct {
		query  string
		action ActionKind
		score  float64
	}{
		{"What's on today", ActionList, 0.9 / 0.9055385138137417},
		// Max over the create phrases: cos with "set up a call" is 1.
		{"grab time with Alex", ActionCreate, 1},
		{"tell me a joke", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := m.Match(context.Background(), tt.query)
			require.NoError(t, err)
			if tt.action == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, SourceSemantic, got.Source)
			assert.InDelta(t, tt.score, got.Confidence, 1e-6)
		})
	}
	assert.Equal(t, 1, emb.BatchCalls())
}

func TestSemanticMatcher_HighFidelityLowersThreshold(t *testing.T) {
	emb := testEmbedder()
	emb.Fidelity = true
	m := NewSemanticMatcher(emb, SemanticOptions{Catalogue: testCatalogue()})
	assert.InDelta(t, 0.665, m.Threshold(), 1e-9)

	// Best similarity is 0.69: between the scaled and the default threshold.
	emb.Vectors["sort of my day"] = []float32{0.69, 0.6, 0.4048}
	got, err := m.Match(context.Background(), "sort of my day")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ActionList, got.Action)
	assert.InDelta(t, 0.69, got.Confidence, 1e-3)

	emb.Fidelity = false
	strict := NewSemanticMatcher(emb, SemanticOptions{Catalogue: testCatalogue()})
	got, err = strict.Match(context.Background(), "sort of my day")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSemanticMatcher_CachesQueryEmbeddings(t *testing.T) {
	emb := testEmbedder()
	now := time.Date(2026, 1, 26, 8, 0, 0, 0, time.UTC)
	m := NewSemanticMatcher(emb, SemanticOptions{
		Catalogue: testCatalogue(),
		CacheTTL:  time.Minute,
		Now:       func() time.Time { return now },
	})

	for range 3 {
		_, err := m.Match(context.Background(), "what's on today")
		require.NoError(t, err)
	}
	_, err := m.Match(context.Background(), "  WHAT'S on   today ")
	require.NoError(t, err)
	assert.Equal(t, 1, emb.EncodeCalls())

	now = now.Add(2 * time.Minute)
	_, err = m.Match(context.Background(), "what's on today")
	require.NoError(t, err)
	assert.Equal(t, 2, emb.EncodeCalls())
}

func TestSemanticMatcher_ConcurrentWarmUpSharesOneBatch(t *testing.T) {
	emb := testEmbedder()
	emb.Delay = 20 * time.Millisecond
	m := NewSemanticMatcher(emb, SemanticOptions{Catalogue: testCatalogue()})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Match(context.Background(), "what's on today")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, emb.BatchCalls())
}

func TestSemanticMatcher_WarmUpFailureIsRetried(t *testing.T) {
	emb := testEmbedder()
	emb.Err = fmt.Errorf("embedding service down")
	m := NewSemanticMatcher(emb, SemanticOptions{Catalogue: testCatalogue()})

	_, err := m.Match(context.Background(), "what's on today")
	require.Error(t, err)
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeServiceUnavailable))

	emb.Err = nil
	got, err := m.Match(context.Background(), "what's on today")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, emb.BatchCalls())
}

func TestSemanticMatcher_RespectsCallerDeadline(t *testing.T) {
	emb := testEmbedder()
	emb.Delay = time.Second
	m := NewSemanticMatcher(emb, SemanticOptions{Catalogue: testCatalogue()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := m.Match(ctx, "what's on today")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSemanticMatcher_NoProvider(t *testing.T) {
	m := NewSemanticMatcher(nil, SemanticOptions{})
	got, err := m.Match(context.Background(), "anything")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestDefaultCatalogue_CoversEveryAction(t *testing.T) {
	cat := DefaultCatalogue()
	for _, a := range AllActionKinds() {
		assert.NotEmpty(t, cat[a], a)
	}
	require.NoError(t, cat.Validate())
}

func TestLoadCatalogueFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "catalogue.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
list:
  - what's happening today
reschedule:
  - push it to later
`), 0o600))

	cat, err := LoadCatalogueFile(good)
	require.NoError(t, err)
	assert.Equal(t, []string{"what's happening today"}, cat[ActionList])
	assert.Equal(t, []string{"push it to later"}, cat[ActionMove])

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("teleport:\n  - beam me up\n"), 0o600))
	_, err = LoadCatalogueFile(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("list: []\n"), 0o600))
	_, err = LoadCatalogueFile(empty)
	assert.Error(t, err)
}
