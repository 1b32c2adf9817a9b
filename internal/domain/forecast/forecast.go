// Package forecast turns historical medal series into medal-count forecasts
// and ranked forecast lists.
package forecast

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"

	"github.com/okian/podium/internal/domain/model"
)

// Default forecasting configuration constants.
const (
	DefaultWindowSize     = 5
	DefaultSmoothingAlpha = 0.3
	DefaultTopN           = 25
)

// Model selects an extrapolation strategy.
type Model string

// Recognized models.
const (
	MovingAverage        Model = "moving_average"
	ExponentialSmoothing Model = "exponential_smoothing"
)

// ParseModel accepts exactly the recognized model names.
func ParseModel(s string) (Model, error) {
	switch Model(strings.TrimSpace(s)) {
	case MovingAverage:
		return MovingAverage, nil
	case ExponentialSmoothing:
		return ExponentialSmoothing, nil
	}
	return "", fmt.Errorf("%w: unknown model %q", model.ErrInvalidRequest, s)
}

// Result is the forecast for one entity and target year.
type Result struct {
	Kind       model.EntityKind
	Entity     string
	TargetYear int
	Model      Model
	// Expected is the real-valued prediction.
	Expected model.Medals
	// Rounded display values; Total is the sum of the rounded medal counts.
	Gold   int
	Silver int
	Bronze int
	Total  int
}

// ModelInfo describes a registered model and its parameters.
type ModelInfo struct {
	Name   Model
	Params map[string]float64
}

// Option applies a configuration option to the Forecaster.
type Option func(*Forecaster)

// WithWindowSize sets the moving-average window k.
func WithWindowSize(k int) Option {
	return func(f *Forecaster) {
		if k > 0 {
			f.windowSize = k
		}
	}
}

// WithSmoothingAlpha sets the exponential smoothing factor, 0 < alpha < 1.
func WithSmoothingAlpha(alpha float64) Option {
	return func(f *Forecaster) {
		if alpha > 0 && alpha < 1 {
			f.alpha = alpha
		}
	}
}

// WithDefaultTopN sets the list length used when a ranked request names none.
func WithDefaultTopN(n int) Option {
	return func(f *Forecaster) {
		if n > 0 {
			f.defaultTopN = n
		}
	}
}

// WithConcurrency bounds the number of entities forecast in parallel by ForecastRanked.
func WithConcurrency(n int) Option {
	return func(f *Forecaster) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// Forecaster computes forecasts. It holds configuration only and is safe for
// concurrent use.
type Forecaster struct {
	windowSize  int
	alpha       float64
	defaultTopN int
	concurrency int

	strategies map[Model]Strategy
}

// New creates a Forecaster with configuration options.
func New(opts ...Option) *Forecaster {
	f := &Forecaster{
		windowSize:  DefaultWindowSize,
		alpha:       DefaultSmoothingAlpha,
		defaultTopN: DefaultTopN,
		concurrency: runtime.NumCPU(),
	}

	for _, opt := range opts {
		opt(f)
	}

	f.strategies = map[Model]Strategy{
		MovingAverage:        MovingAverageStrategy{Window: f.windowSize},
		ExponentialSmoothing: SmoothingStrategy{Alpha: f.alpha},
	}
	return f
}

// DefaultTopN returns the configured default list length.
func (f *Forecaster) DefaultTopN() int { return f.defaultTopN }

// Models describes the registered strategies ordered by name.
func (f *Forecaster) Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(f.strategies))
	for name, s := range f.strategies {
		out = append(out, ModelInfo{Name: name, Params: s.Params()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *Forecaster) strategy(m Model) (Strategy, error) {
	s, ok := f.strategies[m]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", model.ErrInvalidRequest, m)
	}
	return s, nil
}

// ForecastEntity forecasts the medals of the series' entity for targetYear.
// targetYear must be later than the last observed edition.
func (f *Forecaster) ForecastEntity(series model.TimeSeries, targetYear int, m Model) (Result, error) {
	s, err := f.strategy(m)
	if err != nil {
		return Result{}, err
	}
	if series.Empty() {
		return Result{}, fmt.Errorf("%w: no medal history for %q", model.ErrNotFound, series.Entity)
	}

	sorted, err := series.Sorted()
	if err != nil {
		return Result{}, err
	}
	if last := sorted.LastYear(); targetYear <= last {
		return Result{}, fmt.Errorf("%w: target year %d must be after last observed edition %d", model.ErrInvalidRequest, targetYear, last)
	}

	expected := s.Predict(sorted)
	expected = model.Medals{
		Gold:   clamp(expected.Gold),
		Silver: clamp(expected.Silver),
		Bronze: clamp(expected.Bronze),
	}

	r := Result{
		Kind:       sorted.Kind,
		Entity:     sorted.Entity,
		TargetYear: targetYear,
		Model:      m,
		Expected:   expected,
		Gold:       round(expected.Gold),
		Silver:     round(expected.Silver),
		Bronze:     round(expected.Bronze),
	}
	r.Total = r.Gold + r.Silver + r.Bronze
	return r, nil
}

// clamp maps negative and non-finite values to zero.
func clamp(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0
	}
	return x
}

func round(x float64) int {
	return int(math.Round(x))
}
