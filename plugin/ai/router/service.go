package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	aierrors "github.com/hrygo/calroute/internal/errors"
	"github.com/hrygo/calroute/internal/observability"
	"github.com/hrygo/calroute/plugin/ai/limiter"
	"github.com/hrygo/calroute/plugin/ai/metrics"
	"github.com/hrygo/calroute/plugin/ai/timeout"
)

// Service collects the four routing signals concurrently and arbitrates them.
// Layer timings: patterns and history are in-process (~0ms); semantic and llm
// are network calls bounded by SignalTimeout each.
type Service struct {
	patterns *PatternMatcher
	semantic *SemanticMatcher
	llm      *LLMClassifier
	history  *HistoryMatcher

	validator      Classifier
	selfValidation bool
	signalTimeout  time.Duration

	limiter *limiter.RateLimiter
	metrics metrics.MetricsService
	logger  *slog.Logger
}

// Config contains the configuration for the router service.
type Config struct {
	// Patterns defaults to the built-in rule table.
	Patterns *PatternMatcher
	// Semantic, LLM and History are optional signal sources.
	Semantic *SemanticMatcher
	LLM      *LLMClassifier
	History  *HistoryMatcher

	// Validator re-checks medium-tier decisions when SelfValidation is set.
	Validator      Classifier
	SelfValidation bool

	// SignalTimeout bounds each collector (default timeout.SignalTimeout).
	SignalTimeout time.Duration
	// Limiter sheds classifier calls per user. Nil allows everything.
	Limiter *limiter.RateLimiter
	Metrics metrics.MetricsService
	Logger  *slog.Logger
}

// NewService creates a new router service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Patterns == nil {
		p, err := NewPatternMatcher()
		if err != nil {
			return nil, err
		}
		cfg.Patterns = p
	}
	if cfg.SignalTimeout <= 0 {
		cfg.SignalTimeout = timeout.SignalTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopService{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SelfValidation && cfg.Validator == nil {
		return nil, fmt.Errorf("self-validation enabled without a validator")
	}
	return &Service{
		patterns:       cfg.Patterns,
		semantic:       cfg.Semantic,
		llm:            cfg.LLM,
		history:        cfg.History,
		validator:      cfg.Validator,
		selfValidation: cfg.SelfValidation,
		signalTimeout:  cfg.SignalTimeout,
		limiter:        cfg.Limiter,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}, nil
}

// Patterns returns the rule table in use.
func (s *Service) Patterns() *PatternMatcher {
	return s.patterns
}

// Collect runs every configured signal source concurrently. Slow or failing
// sources yield nil (semantic) or a fallback signal (llm); Collect never fails.
func (s *Service) Collect(ctx context.Context, query, userID string) Inputs {
	in := Inputs{ScheduleLike: IsScheduleLikeQuery(query)}
	logger := observability.Logger(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		sig, rule := s.patterns.Match(query)
		if !rule.Default {
			in.Explicit = sig
		}
		s.observeSignal(logger, SourceExplicit, start, in.Explicit, "rule", rule.Name)
		return nil
	})

	if s.history != nil {
		g.Go(func() error {
			start := time.Now()
			in.Learned = s.history.Match(query)
			s.observeSignal(logger, SourceLearned, start, in.Learned)
			return nil
		})
	}

	if s.semantic != nil {
		g.Go(func() error {
			start := time.Now()
			cctx, cancel := context.WithTimeout(gctx, s.signalTimeout)
			defer cancel()
			sig, err := s.semantic.Match(cctx, query)
			if err != nil {
				logger.Warn("semantic matcher unavailable, continuing without it",
					"input", truncate(query, timeout.MaxTruncateLength),
					"error", err,
				)
				s.metrics.RecordFallback("semantic", fallbackReason(err))
			}
			in.Semantic = sig
			s.observeSignal(logger, SourceSemantic, start, sig)
			return nil
		})
	}

	if s.llm != nil {
		g.Go(func() error {
			start := time.Now()
			if err := s.allow(userID); err != nil {
				logger.Warn("LLM classification rate limited, continuing without it",
					"user_id", userID,
					"error", err,
				)
				s.metrics.RecordFallback("llm", fallbackReason(err))
				return nil
			}
			cctx, cancel := context.WithTimeout(gctx, s.signalTimeout)
			defer cancel()
			sig := s.llm.Classify(cctx, query)
			if IsFallback(sig) {
				reason, _ := sig.Entities["reason"].(string)
				s.metrics.RecordFallback("llm", reason)
			}
			in.LLM = sig
			s.observeSignal(logger, SourceLLM, start, sig, "fallback", IsFallback(sig))
			return nil
		})
	}

	// Collectors never return errors.
	_ = g.Wait()
	return in
}

// Route decides the action for query. userID keys the rate limiter and logs.
func (s *Service) Route(ctx context.Context, query, userID string) Decision {
	rc, ok := observability.FromContext(ctx)
	if !ok {
		rc = observability.NewRequestContext(s.logger, "route", userID)
		ctx = observability.WithRequestContext(ctx, rc)
	}
	start := time.Now()

	in := s.Collect(ctx, query, userID)
	decision := Arbitrate(in)
	if decision.Reinforced {
		rc.Debug("semantic signal agrees with llm",
			slog.String("action", string(decision.Action)),
		)
	}

	if s.selfValidation && decision.NeedsValidation() {
		decision = s.validate(ctx, rc, query, userID, decision)
	}

	latency := time.Since(start)
	s.metrics.RecordDecision(string(decision.Action), string(decision.Source), string(decision.Tier), latency)
	rc.Info("routing decision",
		slog.String("input", truncate(query, timeout.MaxTruncateLength)),
		slog.String("action", string(decision.Action)),
		slog.Float64("confidence", decision.Confidence),
		slog.String("source", string(decision.Source)),
		slog.String("tier", string(decision.Tier)),
		slog.Bool("self_corrected", decision.SelfCorrected),
		slog.Int64("latency_ms", latency.Milliseconds()),
	)
	return decision
}

// ValidationPrompt asks the classifier to confirm or correct a decision.
const ValidationPrompt = `A calendar request was classified as %q.

Intents:
%s
Request: %s

If the classification is wrong, give the correct intent; otherwise repeat it.
Answer with JSON only: {"intent": "<intent>", "confidence": <0-1>, "reasoning": "<short reason>"}`

// validate re-asks the classifier once. Errors and timeouts leave d unchanged.
func (s *Service) validate(ctx context.Context, rc *observability.RequestContext, query, userID string, d Decision) Decision {
	if err := s.allow(userID); err != nil {
		rc.Debug("self-validation skipped", slog.String("error", err.Error()))
		s.metrics.RecordFallback("self_validation", fallbackReason(err))
		return d
	}

	prompt := fmt.Sprintf(ValidationPrompt, d.Action, intentList(), query)

	vctx, cancel := context.WithTimeout(ctx, timeout.SelfValidationTimeout)
	defer cancel()

	for attempt := 0; attempt < timeout.MaxSelfValidationRetries; attempt++ {
		res, err := s.validator.Classify(vctx, prompt)
		if err != nil {
			rc.Warn("self-validation skipped",
				slog.String("action", string(d.Action)),
				slog.String("error", err.Error()),
			)
			s.metrics.RecordFallback("self_validation", fallbackReason(err))
			return d
		}
		action, ok := ParseActionKind(res.Intent)
		if !ok || action == d.Action {
			return d
		}
		rc.Info("self-validation corrected decision",
			slog.String("from", string(d.Action)),
			slog.String("to", string(action)),
		)
		d.Reason = fmt.Sprintf("self-validation corrected %s to %s", d.Action, action)
		d.Action = action
		d.Source = SourceLLM
		d.Confidence = clamp01(res.Confidence)
		d.SelfCorrected = true
	}
	return d
}

func (s *Service) observeSignal(logger *slog.Logger, source Source, start time.Time, sig *Signal, extra ...any) {
	latency := time.Since(start)
	s.metrics.RecordSignal(string(source), latency, sig != nil)
	args := []any{"source", source, "latency_ms", latency.Milliseconds()}
	if sig != nil {
		args = append(args, "action", sig.Action, "confidence", sig.Confidence)
	}
	logger.Debug("routing signal", append(args, extra...)...)
}

// allow takes a classifier token for userID.
func (s *Service) allow(userID string) error {
	key := limiterKey(userID)
	if s.limiter.Allow(key) {
		return nil
	}
	return aierrors.RateLimitExceeded("classifier call budget exhausted").WithContext("user", key)
}

func fallbackReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case aierrors.IsCode(err, aierrors.ErrCodeRateLimitExceeded):
		return "rate_limited"
	case aierrors.IsCode(err, aierrors.ErrCodeServiceUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func limiterKey(userID string) string {
	if userID == "" {
		return "anonymous"
	}
	return userID
}
