package router

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/plugin/ai/limiter"
	"github.com/hrygo/calroute/plugin/ai/memory"
	"github.com/hrygo/calroute/plugin/ai/metrics"
)

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc
}

func TestService_ExplicitListBeatsConfidentCreate(t *testing.T) {
	svc := newTestService(t, Config{
		LLM: NewLLMClassifier(NewStubClassifier("create", 0.95), nil, nil),
	})

	d := svc.Route(context.Background(), "what meetings do I have tomorrow", "u1")
	assert.Equal(t, ActionList, d.Action)
	assert.Equal(t, SourceExplicit, d.Source)
	assert.Equal(t, TierHigh, d.Tier)
}

func TestService_LearnedCorrectionWins(t *testing.T) {
	mem := memory.NewCorrectionMemory(memory.Options{})
	mem.RecordCorrection(context.Background(), "what's next on my plate", "create", "list")

	svc := newTestService(t, Config{
		LLM:     NewLLMClassifier(NewStubClassifier("create", 0.95), mem, nil),
		History: NewHistoryMatcher(mem, nil),
	})

	d := svc.Route(context.Background(), "what's up next on my plate", "u1")
	assert.Equal(t, ActionList, d.Action)
	assert.Equal(t, SourceLearned, d.Source)
	assert.Equal(t, TierLearned, d.Tier)
	assert.InDelta(t, LearnedConfidence, d.Confidence, 1e-9)
}

func TestService_ScheduleLikeForcesCreate(t *testing.T) {
	svc := newTestService(t, Config{
		LLM: NewLLMClassifier(NewStubClassifier("list", 0.95), nil, nil),
	})

	d := svc.Route(context.Background(), "schedule a sync with the team", "u1")
	assert.Equal(t, ActionCreate, d.Action)
	assert.Equal(t, TierScheduleLike, d.Tier)
	assert.Equal(t, SourceExplicit, d.Source)
}

func TestService_SelfValidationCorrectsMediumTier(t *testing.T) {
	stub := &StubClassifier{Responses: []*Classification{
		{Intent: "search", Confidence: 0.7},
		{Intent: "count", Confidence: 0.8},
	}}
	m := metrics.NewMockMetricsService()
	svc := newTestService(t, Config{
		LLM:            NewLLMClassifier(stub, nil, nil),
		Validator:      stub,
		SelfValidation: true,
		Metrics:        m,
	})

	d := svc.Route(context.Background(), "hmm, the offsite thing", "u1")
	assert.Equal(t, ActionCount, d.Action)
	assert.True(t, d.SelfCorrected)
	assert.Equal(t, SourceLLM, d.Source)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
	assert.Equal(t, 2, stub.Calls())
	assert.Contains(t, stub.Prompts()[1], `classified as "search"`)

	require.Len(t, m.Decisions, 1)
	assert.Equal(t, "count", m.Decisions[0].Action)
}

func TestService_SelfValidationSkippedOutsideMediumTier(t *testing.T) {
	stub := NewStubClassifier("move", 0.95)
	svc := newTestService(t, Config{
		LLM:            NewLLMClassifier(stub, nil, nil),
		Validator:      stub,
		SelfValidation: true,
	})

	d := svc.Route(context.Background(), "hmm, the offsite thing", "u1")
	assert.Equal(t, ActionMove, d.Action)
	assert.Equal(t, TierHigh, d.Tier)
	assert.Equal(t, 1, stub.Calls())
}

func TestService_SelfValidationErrorKeepsDecision(t *testing.T) {
	m := metrics.NewMockMetricsService()
	svc := newTestService(t, Config{
		LLM:            NewLLMClassifier(NewStubClassifier("search", 0.7), nil, nil),
		Validator:      &StubClassifier{Err: fmt.Errorf("validator down")},
		SelfValidation: true,
		Metrics:        m,
	})

	d := svc.Route(context.Background(), "hmm, the offsite thing", "u1")
	assert.Equal(t, ActionSearch, d.Action)
	assert.False(t, d.SelfCorrected)
	assert.Equal(t, 1, m.FallbackCount("self_validation"))
}

func TestService_SlowSemanticIsDropped(t *testing.T) {
	m := metrics.NewMockMetricsService()
	emb := testEmbedder()
	emb.Delay = time.Second
	svc := newTestService(t, Config{
		Semantic:      NewSemanticMatcher(emb, SemanticOptions{Catalogue: testCatalogue()}),
		SignalTimeout: 20 * time.Millisecond,
		Metrics:       m,
	})

	start := time.Now()
	in := svc.Collect(context.Background(), "what meetings do I have tomorrow", "u1")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Nil(t, in.Semantic)
	require.NotNil(t, in.Explicit)
	assert.Equal(t, ActionList, in.Explicit.Action)
	assert.Equal(t, 1, m.FallbackCount("semantic"))
}

func TestService_SlowLLMFallsBackToKeywords(t *testing.T) {
	m := metrics.NewMockMetricsService()
	stub := &StubClassifier{Delay: time.Second, Responses: []*Classification{{Intent: "create", Confidence: 0.99}}}
	svc := newTestService(t, Config{
		LLM:           NewLLMClassifier(stub, nil, nil),
		SignalTimeout: 20 * time.Millisecond,
		Metrics:       m,
	})

	in := svc.Collect(context.Background(), "please cancel lunch", "u1")
	require.NotNil(t, in.LLM)
	assert.True(t, IsFallback(in.LLM))
	assert.Equal(t, ActionDelete, in.LLM.Action)
	assert.Equal(t, 1, m.FallbackCount("llm"))
}

func TestService_DefaultRuleIsNotExplicitEvidence(t *testing.T) {
	svc := newTestService(t, Config{})

	in := svc.Collect(context.Background(), "hmm, the offsite thing", "u1")
	assert.Nil(t, in.Explicit)

	d := svc.Route(context.Background(), "hmm, the offsite thing", "u1")
	assert.Equal(t, ActionList, d.Action)
	assert.Equal(t, SourceDefault, d.Source)
}

func TestService_RateLimitedLLM(t *testing.T) {
	m := metrics.NewMockMetricsService()
	stub := NewStubClassifier("search", 0.9)
	svc := newTestService(t, Config{
		LLM:     NewLLMClassifier(stub, nil, nil),
		Limiter: limiter.NewRateLimiter(0.0001, 1),
		Metrics: m,
	})

	first := svc.Route(context.Background(), "hmm, the offsite thing", "u1")
	assert.Equal(t, ActionSearch, first.Action)

	second := svc.Route(context.Background(), "hmm, the offsite thing", "u1")
	assert.Equal(t, SourceDefault, second.Source)
	assert.Equal(t, 1, stub.Calls())
	assert.Equal(t, 1, m.FallbackCount("llm"))
	for _, f := range m.Fallbacks {
		if f.Component == "llm" {
			assert.Equal(t, "rate_limited", f.Reason)
		}
	}

	// Other users have their own bucket.
	other := svc.Route(context.Background(), "hmm, the offsite thing", "u2")
	assert.Equal(t, ActionSearch, other.Action)
	assert.Len(t, m.Decisions, 3)
}

func TestService_ReinforcedDecision(t *testing.T) {
	emb := testEmbedder()
	svc := newTestService(t, Config{
		Semantic: NewSemanticMatcher(emb, SemanticOptions{Catalogue: testCatalogue()}),
		LLM:      NewLLMClassifier(NewStubClassifier("create", 0.9), nil, nil),
	})

	d := svc.Route(context.Background(), "grab time with alex", "u1")
	assert.Equal(t, ActionCreate, d.Action)
	assert.Equal(t, SourceLLM, d.Source)
	assert.True(t, d.Reinforced)
}

func TestNewService_RequiresValidator(t *testing.T) {
	_, err := NewService(Config{SelfValidation: true})
	assert.Error(t, err)
}

type fixedLookup struct {
	action string
	sim    float64
}

func (f fixedLookup) LookupLearnedAction(string) (string, float64, bool) {
	return f.action, f.sim, f.action != ""
}

func TestHistoryMatcher(t *testing.T) {
	sig := NewHistoryMatcher(fixedLookup{action: "reschedule", sim: 0.75}, nil).Match("push it")
	require.NotNil(t, sig)
	assert.Equal(t, ActionMove, sig.Action)
	assert.Equal(t, SourceLearned, sig.Source)
	assert.InDelta(t, LearnedConfidence, sig.Confidence, 1e-9)
	assert.Equal(t, 0.75, sig.Entities["similarity"])

	assert.Nil(t, NewHistoryMatcher(fixedLookup{action: "teleport", sim: 1}, nil).Match("x"))
	assert.Nil(t, NewHistoryMatcher(fixedLookup{}, nil).Match("x"))
	assert.Nil(t, NewHistoryMatcher(nil, nil).Match("x"))
}

func TestFallbackReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: "none"},
		{name: "deadline", err: context.DeadlineExceeded, want: "timeout"},
		{name: "wrapped deadline", err: aierrors.ServiceUnavailable("failed to embed query", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "rate limited", err: aierrors.RateLimitExceeded("classifier call budget exhausted"), want: "rate_limited"},
		{name: "unavailable", err: aierrors.ServiceUnavailable("failed to embed query", fmt.Errorf("503")), want: "unavailable"},
		{name: "other", err: fmt.Errorf("boom"), want: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fallbackReason(tt.err))
		})
	}
}

func TestService_AllowReturnsRateLimitError(t *testing.T) {
	svc := newTestService(t, Config{Limiter: limiter.NewRateLimiter(0.0001, 1)})

	require.NoError(t, svc.allow(""))
	err := svc.allow("")
	require.Error(t, err)
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeRateLimitExceeded))

	// Without a limiter every call is allowed.
	assert.NoError(t, newTestService(t, Config{}).allow("u1"))
}

func TestService_CreatePhrasingWithListWordsRoutesToCreate(t *testing.T) {
	svc := newTestService(t, Config{})

	for _, q := range []string{
		"schedule a call to check the budget tomorrow at 3pm",
		"book a meeting to review my week on friday at 10am",
		"set up a session to see the new office tomorrow at 2pm",
	} {
		t.Run(q, func(t *testing.T) {
			d := svc.Route(context.Background(), q, "u1")
			assert.Equal(t, ActionCreate, d.Action)
			assert.Equal(t, SourceExplicit, d.Source)
		})
	}
}
