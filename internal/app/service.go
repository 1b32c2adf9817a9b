// Package service binds the medal datastore to the forecaster and implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/forecast"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Default service configuration constants.
const (
	DefaultMaxTopN         = 500
	DefaultContendersLimit = 50
	MaxContendersLimit     = 1000
)

// ForecastRequest names what to forecast.
type ForecastRequest = types.ForecastRequest

// Service implements the API dependencies for the forecasting system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	forecaster *forecast.Forecaster

	// Configuration
	gapPolicy       forecast.GapPolicy
	maxTopN         int
	contendersLimit int

	// State
	started bool

	// Counters for /stats
	singleServed atomic.Int64
	rankedServed atomic.Int64
	failures     atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the historical datastore.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithForecaster sets the forecaster.
func WithForecaster(f *forecast.Forecaster) Option {
	return func(s *Service) {
		if f != nil {
			s.forecaster = f
		}
	}
}

// WithGapPolicy sets how missing editions are treated.
func WithGapPolicy(p forecast.GapPolicy) Option {
	return func(s *Service) {
		if p == forecast.GapOmit || p == forecast.GapZero {
			s.gapPolicy = p
		}
	}
}

// WithMaxTopN bounds the list length a ranked request may ask for.
func WithMaxTopN(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTopN = n
		}
	}
}

// WithContendersLimit sets the default number of contenders returned.
func WithContendersLimit(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= MaxContendersLimit {
			s.contendersLimit = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		gapPolicy:       forecast.GapOmit,
		maxTopN:         DefaultMaxTopN,
		contendersLimit: DefaultContendersLimit,
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start checks the wiring and marks the service ready.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return ErrNoStore
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.forecaster == nil {
		s.forecaster = forecast.New()
	}

	if err := s.store.Ping(ctx); err != nil {
		// Requests will fail with UpstreamUnavailable until the datastore is back.
		s.logger.Warn(ctx, "datastore not reachable at startup", logger.Error(err))
	}

	s.started = true
	s.logger.Info(ctx, "forecast service started",
		logger.String("gapPolicy", string(s.gapPolicy)),
		logger.Int("defaultTopN", s.forecaster.DefaultTopN()),
		logger.Int("maxTopN", s.maxTopN),
	)
	return nil
}

// Stop closes the datastore.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing datastore failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "forecast service stopped")
}

// ready returns the components once the service is started.
func (s *Service) ready() (repository.Store, *forecast.Forecaster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.forecaster, nil
}

// Forecast forecasts one entity.
func (s *Service) Forecast(ctx context.Context, req ForecastRequest) (r forecast.Result, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "entity", start, err) }()

	store, f, err := s.ready()
	if err != nil {
		return forecast.Result{}, err
	}
	kind, m, err := validateCommon(req)
	if err != nil {
		return forecast.Result{}, err
	}
	entity := strings.TrimSpace(req.Entity)
	if entity == "" {
		return forecast.Result{}, fmt.Errorf("%w: entity is required", model.ErrInvalidRequest)
	}

	series, err := store.LoadSeries(ctx, kind, entity, req.Season)
	if err != nil {
		return forecast.Result{}, err
	}
	cal, err := s.calendar(ctx, store, req.Season)
	if err != nil {
		return forecast.Result{}, err
	}
	editions, err := cal.editionsFor(ctx, store, kind, entity)
	if err != nil {
		return forecast.Result{}, err
	}
	series, err = s.gapPolicy.Apply(series, editions)
	if err != nil {
		return forecast.Result{}, err
	}

	r, err = f.ForecastEntity(series, req.TargetYear, m)
	if err != nil {
		return forecast.Result{}, err
	}
	r.Kind = kind
	metrics.RecordForecast(string(kind), string(m))
	s.singleServed.Add(1)
	return r, nil
}

// ForecastRanked forecasts every known entity of req.Kind and returns the best
// req.TopN. An empty datastore yields an empty list.
func (s *Service) ForecastRanked(ctx context.Context, req ForecastRequest) (results []forecast.Result, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "ranked", start, err) }()

	store, f, err := s.ready()
	if err != nil {
		return nil, err
	}
	kind, m, err := validateCommon(req)
	if err != nil {
		return nil, err
	}
	topN, err := s.resolveTopN(f, req.TopN)
	if err != nil {
		return nil, err
	}

	entities, err := store.ListEntities(ctx, kind, req.Season)
	if err != nil {
		return nil, fmt.Errorf("list %s entities: %w", kind, err)
	}
	if len(entities) == 0 {
		return []forecast.Result{}, nil
	}
	cal, err := s.calendar(ctx, store, req.Season)
	if err != nil {
		return nil, err
	}

	loader := forecast.LoaderFunc(func(ctx context.Context, entity string) (model.TimeSeries, error) {
		series, err := store.LoadSeries(ctx, kind, entity, req.Season)
		if err != nil {
			return model.TimeSeries{}, err
		}
		editions, err := cal.editionsFor(ctx, store, kind, entity)
		if err != nil {
			return model.TimeSeries{}, err
		}
		return s.gapPolicy.Apply(series, editions)
	})

	results, err = f.ForecastRanked(ctx, loader, entities, req.TargetYear, m, topN)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Kind = kind
		metrics.RecordForecast(string(kind), string(m))
	}
	metrics.RecordRankedResultSize(len(results))
	s.rankedServed.Add(1)
	return results, nil
}

// Contenders lists the athletes with the most historical medals and a rough
// chance of reaching the podium again. limit 0 selects the default.
func (s *Service) Contenders(ctx context.Context, limit int, season model.Season) (out []types.Contender, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, "contenders", start, err) }()

	store, _, err := s.ready()
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = s.contendersLimit
	}
	if limit < 0 || limit > MaxContendersLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d, got %d", model.ErrInvalidRequest, MaxContendersLimit, limit)
	}

	totals, err := store.Totals(ctx, model.KindAthlete, season, limit)
	if err != nil {
		return nil, err
	}
	out = make([]types.Contender, 0, len(totals))
	for i, t := range totals {
		out = append(out, types.Contender{
			Rank:        i + 1,
			Athlete:     t.Entity,
			Gold:        t.Gold,
			Silver:      t.Silver,
			Bronze:      t.Bronze,
			Total:       t.Total(),
			Probability: types.ContenderProbability(t.Total()),
		})
	}
	return out, nil
}

// Models describes the registered forecasting models.
func (s *Service) Models() []forecast.ModelInfo {
	_, f, err := s.ready()
	if err != nil {
		return forecast.New().Models()
	}
	return f.Models()
}

// Health reports whether the datastore answers.
func (s *Service) Health(ctx context.Context) error {
	store, _, err := s.ready()
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"gapPolicy":       string(s.gapPolicy),
		"maxTopN":         s.maxTopN,
		"contendersLimit": s.contendersLimit,
		"singleForecasts": s.singleServed.Load(),
		"rankedForecasts": s.rankedServed.Load(),
		"failedRequests":  s.failures.Load(),
	}
	if s.forecaster != nil {
		stats["defaultTopN"] = s.forecaster.DefaultTopN()
	}
	return stats
}

func validateCommon(req ForecastRequest) (model.EntityKind, forecast.Model, error) {
	kind, err := model.ParseKind(string(req.Kind))
	if err != nil {
		return "", "", err
	}
	m, err := forecast.ParseModel(string(req.Model))
	if err != nil {
		return "", "", err
	}
	if req.Season != model.SeasonAll && req.Season != model.SeasonSummer && req.Season != model.SeasonWinter {
		return "", "", fmt.Errorf("%w: unknown season %q", model.ErrInvalidRequest, req.Season)
	}
	return kind, m, nil
}

// resolveTopN applies the default when topN is nil. An explicit non-positive
// value is rejected, never defaulted.
func (s *Service) resolveTopN(f *forecast.Forecaster, topN *int) (int, error) {
	if topN == nil {
		return f.DefaultTopN(), nil
	}
	n := *topN
	switch {
	case n <= 0:
		return 0, fmt.Errorf("%w: top_n must be positive, got %d", model.ErrInvalidRequest, n)
	case n > s.maxTopN:
		return 0, fmt.Errorf("%w: top_n must be at most %d, got %d", model.ErrInvalidRequest, s.maxTopN, n)
	}
	return n, nil
}

// gapCalendar holds the edition years per season that the zero gap policy
// fills from. A nil calendar means no filling.
type gapCalendar struct {
	season model.Season
	years  map[model.Season][]int
}

// calendar loads the edition years when the gap policy needs them. Under
// SeasonAll both seasons are loaded separately.
func (s *Service) calendar(ctx context.Context, store repository.Store, season model.Season) (*gapCalendar, error) {
	if s.gapPolicy != forecast.GapZero {
		return nil, nil
	}
	seasons := []model.Season{season}
	if season == model.SeasonAll {
		seasons = []model.Season{model.SeasonSummer, model.SeasonWinter}
	}
	cal := &gapCalendar{season: season, years: make(map[model.Season][]int, len(seasons))}
	for _, se := range seasons {
		years, err := store.Editions(ctx, se)
		if err != nil {
			return nil, fmt.Errorf("load editions: %w", err)
		}
		cal.years[se] = years
	}
	return cal, nil
}

// editionsFor returns the edition years an entity's gaps are filled from.
// Under SeasonAll only the seasons the entity has records in contribute, so
// a summer-only country never misses a winter Games.
func (c *gapCalendar) editionsFor(ctx context.Context, store repository.Reader, kind model.EntityKind, entity string) ([]int, error) {
	if c == nil {
		return nil, nil
	}
	if c.season != model.SeasonAll {
		return c.years[c.season], nil
	}
	var years []int
	for _, se := range []model.Season{model.SeasonSummer, model.SeasonWinter} {
		_, err := store.LoadSeries(ctx, kind, entity, se)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		years = append(years, c.years[se]...)
	}
	slices.Sort(years)
	return slices.Compact(years), nil
}

func (s *Service) finish(ctx context.Context, op string, start time.Time, err error) {
	metrics.RecordForecastLatency(op, time.Since(start))
	if err == nil {
		return
	}
	kind := model.KindOf(err)
	metrics.RecordForecastError(kind)
	s.failures.Add(1)

	log := s.logger
	if log == nil {
		return
	}
	switch {
	case errors.Is(err, model.ErrUpstreamUnavailable), kind == model.KindInternal:
		log.Warn(ctx, "forecast request failed", logger.String("operation", op), logger.String("kind", kind), logger.Error(err))
	default:
		log.Debug(ctx, "forecast request rejected", logger.String("operation", op), logger.String("kind", kind), logger.Error(err))
	}
}
