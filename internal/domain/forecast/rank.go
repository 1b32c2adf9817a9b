package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/okian/podium/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

// SeriesLoader resolves an entity identifier to its medal history.
type SeriesLoader interface {
	LoadSeries(ctx context.Context, entity string) (model.TimeSeries, error)
}

// LoaderFunc adapts a function to SeriesLoader.
type LoaderFunc func(ctx context.Context, entity string) (model.TimeSeries, error)

// LoadSeries implements SeriesLoader.
func (fn LoaderFunc) LoadSeries(ctx context.Context, entity string) (model.TimeSeries, error) {
	return fn(ctx, entity)
}

// Less reports whether a ranks before b: higher total first, then gold,
// silver and bronze descending, then entity ascending. Rounded values are
// compared so the order matches what callers display.
func Less(a, b Result) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	if a.Gold != b.Gold {
		return a.Gold > b.Gold
	}
	if a.Silver != b.Silver {
		return a.Silver > b.Silver
	}
	if a.Bronze != b.Bronze {
		return a.Bronze > b.Bronze
	}
	return a.Entity < b.Entity
}

// SortResults orders results in place by Less.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool { return Less(results[i], results[j]) })
}

// ForecastRanked forecasts every entity and returns the best topN by Less.
//
// Entities without history (empty series or ErrNotFound from the loader) are
// left out. Any other failure aborts the whole call.
func (f *Forecaster) ForecastRanked(ctx context.Context, loader SeriesLoader, entities []string, targetYear int, m Model, topN int) ([]Result, error) {
	if _, err := f.strategy(m); err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: empty entity set", model.ErrInvalidRequest)
	}
	if topN <= 0 {
		return nil, fmt.Errorf("%w: top_n must be positive, got %d", model.ErrInvalidRequest, topN)
	}

	unique := dedupeEntities(entities)
	slots := make([]*Result, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, entity := range unique {
		g.Go(func() error {
			series, err := loader.LoadSeries(gctx, entity)
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("load series %q: %w", entity, err)
			}
			if series.Empty() {
				return nil
			}
			if series.Entity == "" {
				series.Entity = entity
			}

			r, err := f.ForecastEntity(series, targetYear, m)
			if err != nil {
				return fmt.Errorf("forecast %q: %w", entity, err)
			}
			slots[i] = &r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	SortResults(results)
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

func dedupeEntities(entities []string) []string {
	seen := make(map[string]struct{}, len(entities))
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
