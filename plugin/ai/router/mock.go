package router

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
)

// StubClassifier is a deterministic Classifier for tests.
type StubClassifier struct {
	// Responses are returned in order; the last one repeats.
	Responses []*Classification
	Err       error
	// Delay blocks each call until it elapses or ctx is done.
	Delay time.Duration

	mu      sync.Mutex
	prompts []string
}

// NewStubClassifier returns a stub answering intent with confidence.
func NewStubClassifier(intent string, confidence float64) *StubClassifier {
	return &StubClassifier{Responses: []*Classification{{Intent: intent, Confidence: confidence}}}
}

// Classify records the prompt and returns the next canned response.
func (s *StubClassifier) Classify(ctx context.Context, prompt string) (*Classification, error) {
	s.mu.Lock()
	n := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return &Classification{Intent: string(ActionList), Confidence: DefaultLLMConfidence}, nil
	}
	c := *s.Responses[min(n, len(s.Responses)-1)]
	return &c, nil
}

// Prompts returns every prompt received so far.
func (s *StubClassifier) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// Calls returns the number of Classify calls.
func (s *StubClassifier) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// StubEmbedder hashes tokens into a bag-of-words vector. Texts listed in
// Vectors (lowercased) get the given vector instead.
type StubEmbedder struct {
	Vectors  map[string][]float32
	Dim      int
	Fidelity bool
	Err      error
	Delay    time.Duration

	encodeCalls atomic.Int32
	batchCalls  atomic.Int32
}

// Encode embeds one text.
func (e *StubEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	e.encodeCalls.Add(1)
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

// EncodeBatch embeds texts in order.
func (e *StubEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batchCalls.Add(1)
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

// HighFidelity reports the configured fidelity.
func (e *StubEmbedder) HighFidelity() bool {
	return e.Fidelity
}

// EncodeCalls returns the number of Encode calls.
func (e *StubEmbedder) EncodeCalls() int { return int(e.encodeCalls.Load()) }

// BatchCalls returns the number of EncodeBatch calls.
func (e *StubEmbedder) BatchCalls() int { return int(e.batchCalls.Load()) }

func (e *StubEmbedder) wait(ctx context.Context) error {
	if e.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.Delay):
		}
	}
	return e.Err
}

func (e *StubEmbedder) vector(text string) []float32 {
	key := strings.ToLower(strings.TrimSpace(text))
	if v, ok := e.Vectors[key]; ok {
		return v
	}
	dim := e.Dim
	if dim <= 0 {
		dim = 256
	}
	v := make([]float32, dim)
	for _, tok := range strings.FieldsFunc(key, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%uint32(dim)]++
	}
	return v
}

var (
	_ Classifier        = (*StubClassifier)(nil)
	_ EmbeddingProvider = (*StubEmbedder)(nil)
)
