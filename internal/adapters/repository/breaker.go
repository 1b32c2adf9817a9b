package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Default breaker configuration constants.
const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	defaultHalfOpenRequests = 1
)

// BreakerStore guards a Store with a circuit breaker. Consecutive backend
// failures open the breaker; while open every call fails fast with
// model.ErrUpstreamUnavailable. NotFound and InvalidRequest answers are
// healthy responses and never trip it.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]

	name             string
	failureThreshold uint32
	openTimeout      time.Duration
	log              logger.Logger
}

// NewBreakerStore wraps inner with a circuit breaker.
func NewBreakerStore(inner Store, log logger.Logger, opts ...BreakerOption) *BreakerStore {
	b := &BreakerStore{
		inner:            inner,
		name:             "datastore",
		failureThreshold: defaultFailureThreshold,
		openTimeout:      defaultOpenTimeout,
		log:              log,
	}
	if b.log == nil {
		b.log = logger.Nop()
	}
	for _, opt := range opts {
		opt(b)
	}

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: defaultHalfOpenRequests,
		Timeout:     b.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.failureThreshold
		},
		IsSuccessful: healthyOutcome,
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn(context.Background(), "datastore breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
			metrics.UpdateBreakerState(name, stateValue(to))
			metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	})
	metrics.UpdateBreakerState(b.name, stateValue(gobreaker.StateClosed))
	return b
}

// healthyOutcome reports whether err is an answer from a working backend.
func healthyOutcome(err error) bool {
	return err == nil ||
		errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrInvalidRequest) ||
		errors.Is(err, context.Canceled)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State returns the current breaker state as text.
func (b *BreakerStore) State() string { return b.cb.State().String() }

func guarded[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	var zero T
	out, err := b.cb.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordBreakerRejection(b.name)
		return zero, fmt.Errorf("%s breaker: %w: %w", b.name, model.ErrUpstreamUnavailable, err)
	}
	if err != nil {
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

// LoadSeries implements Reader.
func (b *BreakerStore) LoadSeries(ctx context.Context, kind model.EntityKind, entity string, season model.Season) (model.TimeSeries, error) {
	return guarded(b, func() (model.TimeSeries, error) {
		return b.inner.LoadSeries(ctx, kind, entity, season)
	})
}

// ListEntities implements Reader.
func (b *BreakerStore) ListEntities(ctx context.Context, kind model.EntityKind, season model.Season) ([]string, error) {
	return guarded(b, func() ([]string, error) {
		return b.inner.ListEntities(ctx, kind, season)
	})
}

// Editions implements Reader.
func (b *BreakerStore) Editions(ctx context.Context, season model.Season) ([]int, error) {
	return guarded(b, func() ([]int, error) {
		return b.inner.Editions(ctx, season)
	})
}

// Totals implements Reader.
func (b *BreakerStore) Totals(ctx context.Context, kind model.EntityKind, season model.Season, limit int) ([]EntityTotal, error) {
	return guarded(b, func() ([]EntityTotal, error) {
		return b.inner.Totals(ctx, kind, season, limit)
	})
}

// UpsertRecords implements Store.
func (b *BreakerStore) UpsertRecords(ctx context.Context, kind model.EntityKind, records []model.MedalRecord) error {
	_, err := guarded(b, func() (struct{}, error) {
		return struct{}{}, b.inner.UpsertRecords(ctx, kind, records)
	})
	return err
}

// Ping implements Store. It bypasses the breaker so health checks report the
// backend itself.
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

// Close implements Store.
func (b *BreakerStore) Close() error {
	return b.inner.Close()
}
