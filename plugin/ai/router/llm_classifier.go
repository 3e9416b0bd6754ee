package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/plugin/ai"
	"github.com/hrygo/calroute/plugin/ai/memory"
)

const (
	// MaxFewShotExamples caps the successes added to a classification prompt.
	MaxFewShotExamples = 3
	// DefaultLLMConfidence is used when the model omits a confidence.
	DefaultLLMConfidence = 0.5

	strongFallbackConfidence = 0.7
	weakFallbackConfidence   = 0.6
)

// SuccessSource supplies few-shot examples. memory.CorrectionMemory satisfies it.
type SuccessSource interface {
	SimilarSuccesses(query string, limit int) []memory.ScoredSuccess
}

// LLMClassifier produces the llm signal. It never fails: when the classifier
// is unavailable or answers garbage, a keyword classifier answers instead.
type LLMClassifier struct {
	classifier Classifier
	successes  SuccessSource
	logger     *slog.Logger
}

// NewLLMClassifier creates an LLM classifier. successes may be nil.
func NewLLMClassifier(classifier Classifier, successes SuccessSource, logger *slog.Logger) *LLMClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMClassifier{classifier: classifier, successes: successes, logger: logger}
}

// ClassificationPrompt is the prompt template. The arguments are the action
// list, the few-shot block and the query.
const ClassificationPrompt = `Classify the calendar request into exactly one intent.

Intents:
%s
%s
Request: %s

Answer with JSON only:
{"intent": "<intent>", "confidence": <0-1>, "reasoning": "<short reason>", "entities": {"title": "", "time": "", "location": ""}, "filters": {"keyword": "", "date": ""}}`

// BuildPrompt renders the classification prompt with few-shot examples similar to query.
func (c *LLMClassifier) BuildPrompt(query string) string {
	var shots strings.Builder
	if c.successes != nil {
		examples := c.successes.SimilarSuccesses(query, MaxFewShotExamples)
		if len(examples) > 0 {
			shots.WriteString("\nExamples:\n")
		}
		for _, ex := range examples {
			answer := strings.TrimSpace(ex.Classification)
			if answer == "" {
				answer = fmt.Sprintf(`{"intent": %q, "confidence": 0.9}`, ex.Action)
			}
			fmt.Fprintf(&shots, "Request: %s\nAnswer: %s\n", ex.Query, answer)
		}
	}
	return fmt.Sprintf(ClassificationPrompt, intentList(), shots.String(), query)
}

func intentList() string {
	var sb strings.Builder
	for _, a := range allActions {
		fmt.Fprintf(&sb, "- %s: %s\n", a, a.Description())
	}
	return sb.String()
}

// Classify returns the llm signal for query.
func (c *LLMClassifier) Classify(ctx context.Context, query string) *Signal {
	if c.classifier == nil {
		return c.fallback(query, "classifier not configured")
	}

	result, err := c.classifier.Classify(ctx, c.BuildPrompt(query))
	if err != nil {
		c.logger.Warn("LLM classification failed, using keyword fallback",
			"input", truncate(query, 50),
			"code", errors.GetCodeFromError(err, errors.ErrCodeLLMUnavailable),
			"error", err,
		)
		return c.fallback(query, string(errors.GetCodeFromError(err, errors.ErrCodeLLMUnavailable)))
	}
	if result == nil {
		return c.fallback(query, string(errors.ErrCodeMalformedOutput))
	}
	return signalFromClassification(result)
}

func signalFromClassification(result *Classification) *Signal {
	action, ok := ParseActionKind(result.Intent)
	if !ok {
		action = ActionList
	}
	entities := make(map[string]any, len(result.Entities)+2)
	for k, v := range result.Entities {
		entities[k] = v
	}
	if result.Reasoning != "" {
		entities["reasoning"] = result.Reasoning
	}
	if len(result.Filters) > 0 {
		entities["filters"] = result.Filters
	}
	return &Signal{
		Action:     action,
		Confidence: clamp01(result.Confidence),
		Source:     SourceLLM,
		Entities:   entities,
	}
}

func (c *LLMClassifier) fallback(query, reason string) *Signal {
	action, score := keywordClassify(query)
	conf := weakFallbackConfidence
	if score >= 3 {
		conf = strongFallbackConfidence
	}
	return &Signal{
		Action:     action,
		Confidence: conf,
		Source:     SourceLLM,
		Entities: map[string]any{
			"fallback": true,
			"reason":   reason,
		},
	}
}

// IsFallback reports whether s came from the keyword fallback.
func IsFallback(s *Signal) bool {
	if s == nil {
		return false
	}
	v, _ := s.Entities["fallback"].(bool)
	return v
}

// fallbackKeywords weights keywords per action: +2 core, +1 supporting.
var fallbackKeywords = map[ActionKind]map[string]int{
	ActionList:             {"what": 1, "show": 2, "list": 2, "agenda": 2, "calendar": 1, "upcoming": 2, "next": 1, "today": 1, "tomorrow": 1},
	ActionCreate:           {"schedule": 2, "book": 2, "create": 2, "add": 1, "new": 1, "set up": 2, "meeting": 1, "appointment": 1},
	ActionUpdate:           {"update": 2, "change": 2, "edit": 2, "rename": 2, "modify": 2, "invite": 1},
	ActionDelete:           {"delete": 2, "cancel": 2, "remove": 2, "drop": 1, "clear": 1},
	ActionSearch:           {"find": 2, "search": 2, "look for": 2, "where": 1, "when is": 2},
	ActionCount:            {"how many": 3, "count": 2, "number of": 2},
	ActionAnalyzeConflicts: {"conflict": 2, "overlap": 2, "clash": 2, "double booked": 2, "double-booked": 2},
	ActionMove:             {"move": 2, "reschedule": 3, "postpone": 2, "push": 1, "shift": 1},
	ActionFindFreeTime:     {"free": 2, "available": 2, "availability": 2, "open slot": 2, "find time": 2},
}

// keywordClassify scores every action and returns the best with its score.
// Ties resolve in AllActionKinds order; no hit at all means list.
func keywordClassify(query string) (ActionKind, int) {
	q := normalizeQuery(query)
	best, bestScore := ActionList, 0
	for _, a := range allActions {
		score := 0
		for kw, w := range fallbackKeywords[a] {
			if strings.Contains(q, kw) {
				score += w
			}
		}
		if score > bestScore {
			best, bestScore = a, score
		}
	}
	return best, bestScore
}

// classificationSchema is the structured output requested from the model.
var classificationSchema = func() *ai.JSONSchema {
	intents := make([]string, len(allActions))
	for i, a := range allActions {
		intents[i] = string(a)
	}
	str := func(desc string) *ai.JSONSchema { return &ai.JSONSchema{Type: "string", Description: desc} }
	return &ai.JSONSchema{
		Type: "object",
		Properties: map[string]*ai.JSONSchema{
			"intent":     {Type: "string", Enum: intents},
			"confidence": {Type: "number", Description: "0 to 1"},
			"reasoning":  str("one short sentence"),
			"entities": {
				Type: "object",
				Properties: map[string]*ai.JSONSchema{
					"title":    str("event title, if any"),
					"time":     str("time expression, if any"),
					"location": str("location, if any"),
				},
				Required: []string{"title", "time", "location"},
			},
			"filters": {
				Type: "object",
				Properties: map[string]*ai.JSONSchema{
					"keyword": str("search keyword, if any"),
					"date":    str("date filter, if any"),
				},
				Required: []string{"keyword", "date"},
			},
		},
		Required: []string{"intent", "confidence", "reasoning", "entities", "filters"},
	}
}()

const classifierSystemPrompt = "You classify calendar requests. Reply with a single JSON object and nothing else."

// CompletionClassifier adapts a chat model to the Classifier interface.
type CompletionClassifier struct {
	llm ai.LLMService
}

// NewCompletionClassifier creates a classifier backed by llm.
func NewCompletionClassifier(llm ai.LLMService) *CompletionClassifier {
	return &CompletionClassifier{llm: llm}
}

// Classify sends prompt and parses the JSON answer.
func (c *CompletionClassifier) Classify(ctx context.Context, prompt string) (*Classification, error) {
	raw, err := c.llm.Chat(ctx, []ai.Message{
		{Role: "system", Content: classifierSystemPrompt},
		{Role: "user", Content: prompt},
	},
		ai.WithMaxTokens(256),
		ai.WithTemperature(0.1),
		ai.WithJSONSchema("intent_classification", classificationSchema),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTimeout, "classification call timed out")
		}
		return nil, errors.LLMUnavailable("classification call failed", err)
	}
	return ParseClassification(raw)
}

type wireClassification struct {
	Intent     string         `json:"intent"`
	Confidence *float64       `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Entities   map[string]any `json:"entities"`
	Filters    map[string]any `json:"filters"`
}

// ParseClassification extracts the first balanced JSON object from raw model
// output. A missing confidence defaults to 0.5 and a missing intent to list.
func ParseClassification(raw string) (*Classification, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return nil, errors.MalformedOutput("no JSON object in model output", nil).
			WithContext("output", truncate(raw, 80))
	}
	var w wireClassification
	if err := json.Unmarshal([]byte(obj), &w); err != nil {
		return nil, errors.MalformedOutput("invalid JSON in model output", err).
			WithContext("output", truncate(raw, 80))
	}

	out := &Classification{
		Intent:     strings.TrimSpace(w.Intent),
		Confidence: DefaultLLMConfidence,
		Reasoning:  w.Reasoning,
		Entities:   dropEmpty(w.Entities),
		Filters:    dropEmpty(w.Filters),
		Raw:        obj,
	}
	if out.Intent == "" {
		out.Intent = string(ActionList)
	}
	if w.Confidence != nil {
		out.Confidence = clamp01(*w.Confidence)
	}
	return out, nil
}

// extractJSONObject returns the first balanced {...} block, ignoring braces inside strings.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth, inString, escaped := 0, false, false
		for i := start; i < len(s); i++ {
			ch := s[i]
			switch {
			case escaped:
				escaped = false
			case inString && ch == '\\':
				escaped = true
			case ch == '"':
				inString = !inString
			case inString:
			case ch == '{':
				depth++
			case ch == '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		// Unbalanced from this brace; try the next one.
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func dropEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		if v == nil {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// truncate keeps the first maxLen runes of s.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
