package router

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/plugin/ai"
	"github.com/hrygo/calroute/plugin/ai/memory"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		intent     string
		confidence float64
		wantErr    bool
	}{
		{
			name:       "plain json",
			raw:        `{"intent":"create","confidence":0.92,"reasoning":"asks to book"}`,
			intent:     "create",
			confidence: 0.92,
		},
		{
			name:       "wrapped in prose and fences",
			raw:        "Sure! Here you go:\n```json\n{\"intent\": \"move\", \"confidence\": 0.8}\n```\nHope that helps {not json",
			intent:     "move",
			confidence: 0.8,
		},
		{
			name:       "braces inside strings",
			raw:        `{"intent":"search","confidence":0.7,"reasoning":"user typed \"{budget}\" }"}`,
			intent:     "search",
			confidence: 0.7,
		},
		{
			name:       "missing confidence",
			raw:        `{"intent":"delete"}`,
			intent:     "delete",
			confidence: DefaultLLMConfidence,
		},
		{
			name:       "missing intent",
			raw:        `{"confidence":0.9}`,
			intent:     "list",
			confidence: 0.9,
		},
		{
			name:       "confidence clamped",
			raw:        `{"intent":"count","confidence":7}`,
			intent:     "count",
			confidence: 1,
		},
		{
			name:       "skips an unbalanced prefix",
			raw:        `{ oops, {"intent":"list","confidence":0.4}`,
			intent:     "list",
			confidence: 0.4,
		},
		{name: "no json", raw: "I think they want to create an event.", wantErr: true},
		{name: "invalid json", raw: `{"intent": create}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedOutput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.intent, got.Intent)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			assert.True(t, strings.HasPrefix(got.Raw, "{"))
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	obj, ok := extractJSONObject(`noise {"a":{"b":1}} trailing {"c":2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a":{"b":1}}`, obj)

	_, ok = extractJSONObject("{{{")
	assert.False(t, ok)
}

func TestParseClassification_DropsEmptyEntities(t *testing.T) {
	got, err := ParseClassification(`{"intent":"create","confidence":0.9,"entities":{"title":"Standup","time":"","location":""},"filters":{"keyword":"","date":""}}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Standup"}, got.Entities)
	assert.Nil(t, got.Filters)
}

func TestLLMClassifier_Classify(t *testing.T) {
	stub := &StubClassifier{Responses: []*Classification{{
		Intent:     "reschedule",
		Confidence: 0.88,
		Reasoning:  "wants a new time",
		Entities:   map[string]any{"title": "standup"},
	}}}
	c := NewLLMClassifier(stub, nil, nil)

	sig := c.Classify(context.Background(), "push standup to 4")
	assert.Equal(t, ActionMove, sig.Action)
	assert.InDelta(t, 0.88, sig.Confidence, 1e-9)
	assert.Equal(t, SourceLLM, sig.Source)
	assert.Equal(t, "standup", sig.Entities["title"])
	assert.Equal(t, "wants a new time", sig.Entities["reasoning"])
	assert.False(t, IsFallback(sig))
	require.Equal(t, 1, stub.Calls())
	assert.Contains(t, stub.Prompts()[0], "Request: push standup to 4")
}

func TestLLMClassifier_UnknownIntentIsList(t *testing.T) {
	c := NewLLMClassifier(NewStubClassifier("teleport", 0.9), nil, nil)
	sig := c.Classify(context.Background(), "beam me up")
	assert.Equal(t, ActionList, sig.Action)
	assert.False(t, IsFallback(sig))
}

func TestLLMClassifier_FallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name       string
		classifier Classifier
		query      string
		action     ActionKind
		confidence float64
		reason     string
	}{
		{
			name:       "transport error, strong keyword hit",
			classifier: &StubClassifier{Err: errors.LLMUnavailable("boom", fmt.Errorf("503"))},
			query:      "please reschedule and move my sync",
			action:     ActionMove,
			confidence: 0.7,
			reason:     string(errors.ErrCodeLLMUnavailable),
		},
		{
			name:       "malformed output, weak keyword hit",
			classifier: &StubClassifier{Err: errors.MalformedOutput("no JSON", nil)},
			query:      "cancel lunch",
			action:     ActionDelete,
			confidence: 0.6,
			reason:     string(errors.ErrCodeMalformedOutput),
		},
		{
			name:       "no keywords at all",
			classifier: &StubClassifier{Err: fmt.Errorf("connection reset")},
			query:      "hmm",
			action:     ActionList,
			confidence: 0.6,
			reason:     string(errors.ErrCodeLLMUnavailable),
		},
		{
			name:       "not configured",
			query:      "how many meetings this week",
			action:     ActionCount,
			confidence: 0.7,
			reason:     "classifier not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := NewLLMClassifier(tt.classifier, nil, nil).Classify(context.Background(), tt.query)
			require.NotNil(t, sig)
			assert.True(t, IsFallback(sig))
			assert.Equal(t, SourceLLM, sig.Source)
			assert.Equal(t, tt.action, sig.Action)
			assert.InDelta(t, tt.confidence, sig.Confidence, 1e-9)
			assert.Equal(t, tt.reason, sig.Entities["reason"])
		})
	}
}

func TestLLMClassifier_TimeoutFallsBack(t *testing.T) {
	stub := &StubClassifier{Delay: time.Second, Responses: []*Classification{{Intent: "create", Confidence: 0.99}}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sig := NewLLMClassifier(stub, nil, nil).Classify(ctx, "show my agenda")
	assert.True(t, IsFallback(sig))
	assert.Equal(t, ActionList, sig.Action)
}

func TestLLMClassifier_FewShotExamples(t *testing.T) {
	mem := memory.NewCorrectionMemory(memory.Options{})
	ctx := context.Background()
	mem.RecordSuccess(ctx, "what's on my agenda tomorrow", "list", `{"intent":"list","confidence":0.93}`)
	mem.RecordSuccess(ctx, "what's on my agenda friday", "list", "")
	mem.RecordSuccess(ctx, "book a flight", "create", "")

	c := NewLLMClassifier(nil, mem, nil)
	prompt := c.BuildPrompt("what's on my agenda today")

	assert.Contains(t, prompt, "Examples:")
	assert.Contains(t, prompt, `Request: what's on my agenda tomorrow`+"\n"+`Answer: {"intent":"list","confidence":0.93}`)
	assert.Contains(t, prompt, `Answer: {"intent": "list", "confidence": 0.9}`)
	assert.NotContains(t, prompt, "book a flight")
	for _, a := range AllActionKinds() {
		assert.Contains(t, prompt, "- "+string(a)+":")
	}

	assert.NotContains(t, NewLLMClassifier(nil, nil, nil).BuildPrompt("hi"), "Examples:")
}

type scriptedLLM struct {
	reply    string
	err      error
	messages []ai.Message
	options  int
}

func (s *scriptedLLM) Chat(_ context.Context, messages []ai.Message, opts ...ai.ChatOption) (string, error) {
	s.messages = messages
	s.options = len(opts)
	return s.reply, s.err
}

func TestCompletionClassifier(t *testing.T) {
	llm := &scriptedLLM{reply: "```json\n{\"intent\":\"find_free_time\",\"confidence\":0.81}\n```"}
	got, err := NewCompletionClassifier(llm).Classify(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, "find_free_time", got.Intent)
	assert.InDelta(t, 0.81, got.Confidence, 1e-9)
	require.Len(t, llm.messages, 2)
	assert.Equal(t, "system", llm.messages[0].Role)
	assert.Equal(t, "prompt text", llm.messages[1].Content)
	assert.Equal(t, 3, llm.options)

	_, err = NewCompletionClassifier(&scriptedLLM{err: fmt.Errorf("503")}).Classify(context.Background(), "p")
	assert.True(t, errors.IsCode(err, errors.ErrCodeLLMUnavailable))

	_, err = NewCompletionClassifier(&scriptedLLM{reply: "no idea"}).Classify(context.Background(), "p")
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedOutput))
}

func TestKeywordClassify(t *testing.T) {
	tests := []struct {
		query  string
		action ActionKind
	}{
		{"how many calls", ActionCount},
		{"when am I free or available", ActionFindFreeTime},
		{"is there a clash", ActionAnalyzeConflicts},
		{"rename the sync", ActionUpdate},
		{"nothing relevant", ActionList},
	}
	for _, tt := range tests {
		got, _ := keywordClassify(tt.query)
		assert.Equal(t, tt.action, got, tt.query)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"réunion demain", 2, "ré..."},
		{"会议安排在明天", 3, "会议安..."},
		{"exact", 5, "exact"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
