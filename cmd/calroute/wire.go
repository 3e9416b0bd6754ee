package main

import (
	"context"
	"log/slog"
	"math"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hrygo/calroute/internal/profile"
	"github.com/hrygo/calroute/plugin/ai"
	"github.com/hrygo/calroute/plugin/ai/limiter"
	"github.com/hrygo/calroute/plugin/ai/memory"
	"github.com/hrygo/calroute/plugin/ai/metrics"
	"github.com/hrygo/calroute/plugin/ai/router"
	"github.com/hrygo/calroute/plugin/ai/schedule"
	"github.com/hrygo/calroute/server/engine"
	calendar "github.com/hrygo/calroute/server/service/schedule"
	"github.com/hrygo/calroute/server/scheduler/suggestion"
	"github.com/hrygo/calroute/store"
	"github.com/hrygo/calroute/store/db"
)

// app holds everything a command needs.
type app struct {
	profile  *profile.Profile
	store    *store.Store
	calendar calendar.CalendarStore
	engine   *engine.Engine
	metrics  *metrics.PrometheusService
	logger   *slog.Logger
}

// newApp opens the store and wires the engine. AI components are attached
// only when the profile has credentials for them.
func newApp(ctx context.Context, cfg *Config, p *profile.Profile, reg prometheus.Registerer, logger *slog.Logger) (*app, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}

	a := &app{profile: p, store: st, logger: logger}
	if err := a.wire(ctx, cfg, reg); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg *Config, reg prometheus.Registerer) error {
	loc := a.profile.Location()
	a.calendar = calendar.NewStoreCalendar(a.store, loc)

	m, err := metrics.NewPrometheusService(reg)
	if err != nil {
		return errors.Wrap(err, "failed to register metrics")
	}
	a.metrics = m

	mem := memory.NewCorrectionMemory(memory.Options{
		Persister: memory.NewStorePersister(a.store),
		Logger:    a.logger,
	})
	if err := mem.Load(ctx); err != nil {
		// The engine still routes without learned history.
		a.logger.Warn("failed to load routing feedback", "error", err)
	}

	patterns, err := newPatternMatcher(a.profile.RouterRulesPath)
	if err != nil {
		return err
	}

	routerCfg := router.Config{
		Patterns: patterns,
		History:  router.NewHistoryMatcher(mem, a.logger),
		Limiter:  newLimiter(a.profile.RouterLLMRPS),
		Metrics:  m,
		Logger:   a.logger,
	}

	opts := engine.Options{
		Calendar: a.calendar,
		Memory:   mem,
		Location: loc,
		Contacts: schedule.NewStaticContactResolver(cfg.Calendar.Contacts),
		Logger:   a.logger,
	}
	if wh := cfg.Calendar; wh.WorkingHoursStart != wh.WorkingHoursEnd {
		opts.WorkingHours = &suggestion.WorkingHours{StartHour: wh.WorkingHoursStart, EndHour: wh.WorkingHoursEnd, Location: loc}
	}

	aiCfg := ai.NewConfigFromProfile(a.profile)
	if aiCfg.Enabled {
		if err := aiCfg.Validate(); err != nil {
			return errors.Wrap(err, "invalid AI configuration")
		}
		llm, err := ai.NewLLMService(&aiCfg.LLM)
		if err != nil {
			return errors.Wrap(err, "failed to create LLM service")
		}
		classifier := router.NewCompletionClassifier(llm)
		routerCfg.LLM = router.NewLLMClassifier(classifier, mem, a.logger)
		routerCfg.Validator = classifier
		routerCfg.SelfValidation = a.profile.RouterSelfValidation
		opts.Titles = schedule.NewLLMTitleGenerator(llm)

		if aiCfg.HasEmbedding() {
			embedder, err := ai.NewEmbeddingService(&aiCfg.Embedding)
			if err != nil {
				return errors.Wrap(err, "failed to create embedding service")
			}
			catalogue, err := loadCatalogue(a.profile.RouterCataloguePath)
			if err != nil {
				return err
			}
			routerCfg.Semantic = router.NewSemanticMatcher(embedder, router.SemanticOptions{
				Catalogue: catalogue,
				Logger:    a.logger,
			})
			opts.Embedder = embedder
		}
	} else {
		a.logger.Debug("AI disabled, routing with patterns and history only")
	}

	svc, err := router.NewService(routerCfg)
	if err != nil {
		return errors.Wrap(err, "failed to create router")
	}
	opts.Router = svc

	e, err := engine.New(opts)
	if err != nil {
		return err
	}
	a.engine = e
	return nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func newPatternMatcher(rulesPath string) (*router.PatternMatcher, error) {
	if rulesPath == "" {
		return router.NewPatternMatcher()
	}
	specs, err := router.LoadRulesFile(rulesPath)
	if err != nil {
		return nil, err
	}
	pm, err := router.NewPatternMatcher(specs...)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid rules in %s", rulesPath)
	}
	return pm, nil
}

func loadCatalogue(path string) (router.Catalogue, error) {
	if path == "" {
		return router.DefaultCatalogue(), nil
	}
	return router.LoadCatalogueFile(path)
}

// newLimiter returns nil (unlimited) for a zero rate.
func newLimiter(rps float64) *limiter.RateLimiter {
	if rps <= 0 {
		return nil
	}
	return limiter.NewRateLimiter(rps, max(1, int(math.Ceil(rps))))
}
