package forecast_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/okian/podium/internal/domain/forecast"
	"github.com/okian/podium/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func goldSeries(entity string, startYear int, golds ...int) model.TimeSeries {
	s := model.TimeSeries{Kind: model.KindCountry, Entity: entity}
	for i, g := range golds {
		s.Records = append(s.Records, model.MedalRecord{Entity: entity, Year: startYear + 4*i, Gold: g})
	}
	return s
}

func TestParseModel(t *testing.T) {
	Convey("Given model selector strings", t, func() {
		Convey("The two recognized names should parse", func() {
			m, err := forecast.ParseModel("moving_average")
			So(err, ShouldBeNil)
			So(m, ShouldEqual, forecast.MovingAverage)

			m, err = forecast.ParseModel("exponential_smoothing")
			So(err, ShouldBeNil)
			So(m, ShouldEqual, forecast.ExponentialSmoothing)
		})

		Convey("Anything else should be an invalid request", func() {
			for _, s := range []string{"", "ma", "es", "MOVING_AVERAGE", "arima"} {
				_, err := forecast.ParseModel(s)
				So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
			}
		})
	})
}

func TestForecaster_New(t *testing.T) {
	Convey("Given forecaster options", t, func() {
		Convey("Defaults should be used when no option is given", func() {
			f := forecast.New()
			So(f.DefaultTopN(), ShouldEqual, forecast.DefaultTopN)
			models := f.Models()
			So(len(models), ShouldEqual, 2)
			So(models[0].Name, ShouldEqual, forecast.ExponentialSmoothing)
			So(models[0].Params["smoothing_alpha"], ShouldEqual, forecast.DefaultSmoothingAlpha)
			So(models[1].Name, ShouldEqual, forecast.MovingAverage)
			So(models[1].Params["window_size"], ShouldEqual, float64(forecast.DefaultWindowSize))
		})

		Convey("Out of range values should be ignored", func() {
			f := forecast.New(
				forecast.WithSmoothingAlpha(1.5),
				forecast.WithWindowSize(0),
				forecast.WithDefaultTopN(-3),
			)
			So(f.DefaultTopN(), ShouldEqual, forecast.DefaultTopN)
			So(f.Models()[0].Params["smoothing_alpha"], ShouldEqual, forecast.DefaultSmoothingAlpha)
			So(f.Models()[1].Params["window_size"], ShouldEqual, float64(forecast.DefaultWindowSize))
		})
	})
}

func TestForecaster_MovingAverage(t *testing.T) {
	Convey("Given a moving-average forecaster with k=5", t, func() {
		f := forecast.New(forecast.WithWindowSize(5))

		Convey("When fewer than k editions exist", func() {
			series := goldSeries("A", 2012, 2, 4, 6)
			r, err := f.ForecastEntity(series, 2028, forecast.MovingAverage)

			Convey("Then the mean of all editions is used", func() {
				So(err, ShouldBeNil)
				So(r.Expected.Gold, ShouldEqual, 4.0)
				So(r.Gold, ShouldEqual, 4)
				So(r.Total, ShouldEqual, 4)
				So(r.TargetYear, ShouldEqual, 2028)
				So(r.Model, ShouldEqual, forecast.MovingAverage)
			})
		})

		Convey("When more than k editions exist", func() {
			series := goldSeries("A", 1996, 1, 2, 3, 4, 5, 6, 7)
			r, err := f.ForecastEntity(series, 2028, forecast.MovingAverage)

			Convey("Then only the last k editions are averaged", func() {
				So(err, ShouldBeNil)
				So(r.Expected.Gold, ShouldEqual, 5.0)
			})
		})

		Convey("When the series is out of order", func() {
			series := goldSeries("A", 1996, 1, 2, 3, 4, 5, 6, 7)
			series.Records[0], series.Records[6] = series.Records[6], series.Records[0]
			r, err := f.ForecastEntity(series, 2028, forecast.MovingAverage)

			Convey("Then it is sorted before windowing", func() {
				So(err, ShouldBeNil)
				So(r.Expected.Gold, ShouldEqual, 5.0)
			})
		})

		Convey("When the medal types differ", func() {
			series := model.TimeSeries{Entity: "B", Records: []model.MedalRecord{
				{Year: 2016, Gold: 1, Silver: 2, Bronze: 4},
				{Year: 2020, Gold: 2, Silver: 3, Bronze: 5},
			}}
			r, err := f.ForecastEntity(series, 2024, forecast.MovingAverage)

			Convey("Then each type is averaged independently and rounded for display", func() {
				So(err, ShouldBeNil)
				So(r.Expected.Gold, ShouldEqual, 1.5)
				So(r.Expected.Silver, ShouldEqual, 2.5)
				So(r.Expected.Bronze, ShouldEqual, 4.5)
				So(r.Gold, ShouldEqual, 2)
				So(r.Silver, ShouldEqual, 3)
				So(r.Bronze, ShouldEqual, 5)
				So(r.Total, ShouldEqual, 10)
			})
		})
	})
}

func TestForecaster_ExponentialSmoothing(t *testing.T) {
	Convey("Given an exponential smoothing forecaster with alpha=0.3", t, func() {
		f := forecast.New(forecast.WithSmoothingAlpha(0.3))

		Convey("When forecasting gold = [10, 20, 30]", func() {
			series := goldSeries("A", 2012, 10, 20, 30)
			r, err := f.ForecastEntity(series, 2024, forecast.ExponentialSmoothing)

			Convey("Then the last smoothed value is returned", func() {
				So(err, ShouldBeNil)
				So(r.Expected.Gold, ShouldAlmostEqual, 18.1, 1e-9)
				So(r.Gold, ShouldEqual, 18)
			})

			Convey("And a target further out reuses the same value", func() {
				far, err := f.ForecastEntity(series, 2040, forecast.ExponentialSmoothing)
				So(err, ShouldBeNil)
				So(far.Expected, ShouldResemble, r.Expected)
			})
		})

		Convey("When the series has a single edition", func() {
			r, err := f.ForecastEntity(goldSeries("A", 2020, 7), 2024, forecast.ExponentialSmoothing)

			Convey("Then the forecast is that edition", func() {
				So(err, ShouldBeNil)
				So(r.Expected.Gold, ShouldEqual, 7.0)
			})
		})
	})
}

func TestForecaster_InvalidInput(t *testing.T) {
	Convey("Given a forecaster", t, func() {
		f := forecast.New()
		series := goldSeries("A", 2012, 1, 2, 3)

		Convey("A target year equal to the last edition is rejected", func() {
			_, err := f.ForecastEntity(series, 2020, forecast.MovingAverage)
			So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
		})

		Convey("A target year before the last edition is rejected", func() {
			_, err := f.ForecastEntity(series, 1990, forecast.ExponentialSmoothing)
			So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
		})

		Convey("An unknown model is rejected", func() {
			_, err := f.ForecastEntity(series, 2024, forecast.Model("arima"))
			So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
		})

		Convey("An empty series is not found", func() {
			_, err := f.ForecastEntity(model.TimeSeries{Entity: "Atlantis"}, 2024, forecast.MovingAverage)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("A series with a duplicate year is rejected", func() {
			series.Records = append(series.Records, model.MedalRecord{Year: 2016})
			_, err := f.ForecastEntity(series, 2024, forecast.MovingAverage)
			So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
		})
	})
}

func TestForecaster_Properties(t *testing.T) {
	Convey("Given random non-negative series", t, func() {
		f := forecast.New()
		rng := rand.New(rand.NewSource(7))

		for i := 0; i < 50; i++ {
			n := 1 + rng.Intn(12)
			series := model.TimeSeries{Entity: fmt.Sprintf("E%d", i)}
			for j := 0; j < n; j++ {
				series.Records = append(series.Records, model.MedalRecord{
					Year:   1960 + 4*j,
					Gold:   rng.Intn(40),
					Silver: rng.Intn(40),
					Bronze: rng.Intn(40),
				})
			}

			for _, m := range []forecast.Model{forecast.MovingAverage, forecast.ExponentialSmoothing} {
				first, err := f.ForecastEntity(series, 2028, m)
				So(err, ShouldBeNil)
				second, err := f.ForecastEntity(series, 2028, m)
				So(err, ShouldBeNil)

				So(second, ShouldResemble, first)
				So(first.Expected.Gold, ShouldBeGreaterThanOrEqualTo, 0)
				So(first.Expected.Silver, ShouldBeGreaterThanOrEqualTo, 0)
				So(first.Expected.Bronze, ShouldBeGreaterThanOrEqualTo, 0)
				So(first.Gold, ShouldBeGreaterThanOrEqualTo, 0)
				So(first.Silver, ShouldBeGreaterThanOrEqualTo, 0)
				So(first.Bronze, ShouldBeGreaterThanOrEqualTo, 0)
				So(first.Total, ShouldEqual, first.Gold+first.Silver+first.Bronze)
			}
		}
	})
}

func TestGapPolicy(t *testing.T) {
	Convey("Given a series that skipped an edition", t, func() {
		f := forecast.New()
		series := model.TimeSeries{Entity: "Kenya", Records: []model.MedalRecord{
			{Entity: "Kenya", Year: 2000, Gold: 6},
			{Entity: "Kenya", Year: 2008, Gold: 6},
		}}
		editions := []int{2000, 2004, 2008}

		omitted, err := forecast.GapOmit.Apply(series, editions)
		So(err, ShouldBeNil)
		zeroed, err := forecast.GapZero.Apply(series, editions)
		So(err, ShouldBeNil)

		Convey("Omitting the gap averages the observed editions only", func() {
			r, err := f.ForecastEntity(omitted, 2012, forecast.MovingAverage)
			So(err, ShouldBeNil)
			So(r.Expected.Gold, ShouldEqual, 6.0)
		})

		Convey("Zero-filling the gap lowers the moving average", func() {
			r, err := f.ForecastEntity(zeroed, 2012, forecast.MovingAverage)
			So(err, ShouldBeNil)
			So(r.Expected.Gold, ShouldEqual, 4.0)
		})

		Convey("Zero-filling also changes the smoothed level", func() {
			a, err := f.ForecastEntity(omitted, 2012, forecast.ExponentialSmoothing)
			So(err, ShouldBeNil)
			b, err := f.ForecastEntity(zeroed, 2012, forecast.ExponentialSmoothing)
			So(err, ShouldBeNil)
			So(a.Expected.Gold, ShouldEqual, 6.0)
			So(b.Expected.Gold, ShouldAlmostEqual, 0.3*6+0.7*(0.7*6), 1e-9)
		})

		Convey("Parsing policies", func() {
			p, err := forecast.ParseGapPolicy("")
			So(err, ShouldBeNil)
			So(p, ShouldEqual, forecast.GapOmit)
			p, err = forecast.ParseGapPolicy("ZERO")
			So(err, ShouldBeNil)
			So(p, ShouldEqual, forecast.GapZero)
			_, err = forecast.ParseGapPolicy("interpolate")
			So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
		})
	})
}

// mapLoader serves series from a map; errs overrides per entity.
type mapLoader struct {
	series map[string]model.TimeSeries
	errs   map[string]error
}

func (l mapLoader) LoadSeries(_ context.Context, entity string) (model.TimeSeries, error) {
	if err, ok := l.errs[entity]; ok {
		return model.TimeSeries{}, err
	}
	s, ok := l.series[entity]
	if !ok {
		return model.TimeSeries{}, model.ErrNotFound
	}
	return s, nil
}

func single(entity string, gold, silver, bronze int) model.TimeSeries {
	return model.TimeSeries{Kind: model.KindCountry, Entity: entity, Records: []model.MedalRecord{
		{Entity: entity, Year: 2020, Gold: gold, Silver: silver, Bronze: bronze},
	}}
}

func TestForecaster_ForecastRanked(t *testing.T) {
	Convey("Given five entities with predicted totals 30, 10, 30, 20, 5", t, func() {
		f := forecast.New()
		ctx := context.Background()
		loader := mapLoader{series: map[string]model.TimeSeries{
			"Alpha":   single("Alpha", 10, 10, 10),
			"Bravo":   single("Bravo", 10, 0, 0),
			"Charlie": single("Charlie", 15, 10, 5),
			"Delta":   single("Delta", 5, 5, 10),
			"Echo":    single("Echo", 1, 2, 2),
		}}
		entities := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"}

		Convey("When asking for the top 3", func() {
			results, err := f.ForecastRanked(ctx, loader, entities, 2024, forecast.MovingAverage, 3)

			Convey("Then the two entities tied at 30 lead, ordered by gold", func() {
				So(err, ShouldBeNil)
				So(len(results), ShouldEqual, 3)
				So(results[0].Entity, ShouldEqual, "Charlie")
				So(results[0].Total, ShouldEqual, 30)
				So(results[1].Entity, ShouldEqual, "Alpha")
				So(results[1].Total, ShouldEqual, 30)
				So(results[2].Entity, ShouldEqual, "Delta")
				So(results[2].Total, ShouldEqual, 20)
			})
		})

		Convey("When topN exceeds the entity count", func() {
			results, err := f.ForecastRanked(ctx, loader, entities, 2024, forecast.MovingAverage, 25)

			Convey("Then every entity is returned once, in order", func() {
				So(err, ShouldBeNil)
				So(len(results), ShouldEqual, 5)
				for i := 1; i < len(results); i++ {
					So(forecast.Less(results[i], results[i-1]), ShouldBeFalse)
				}
			})
		})

		Convey("When the entity list repeats an entity", func() {
			results, err := f.ForecastRanked(ctx, loader, []string{"Alpha", "Alpha", "Bravo"}, 2024, forecast.MovingAverage, 10)

			Convey("Then it appears only once", func() {
				So(err, ShouldBeNil)
				So(len(results), ShouldEqual, 2)
			})
		})

		Convey("When the same list is ranked twice and re-sorted", func() {
			first, err := f.ForecastRanked(ctx, loader, entities, 2024, forecast.ExponentialSmoothing, 5)
			So(err, ShouldBeNil)
			second, err := f.ForecastRanked(ctx, loader, entities, 2024, forecast.ExponentialSmoothing, 5)
			So(err, ShouldBeNil)

			resorted := make([]forecast.Result, len(second))
			copy(resorted, second)
			// reverse, then sort again
			for i, j := 0, len(resorted)-1; i < j; i, j = i+1, j-1 {
				resorted[i], resorted[j] = resorted[j], resorted[i]
			}
			forecast.SortResults(resorted)

			Convey("Then every ordering agrees", func() {
				So(second, ShouldResemble, first)
				So(resorted, ShouldResemble, first)
			})
		})
	})

	Convey("Given entities tied on every medal type", t, func() {
		f := forecast.New()
		loader := mapLoader{series: map[string]model.TimeSeries{
			"Zulu":  single("Zulu", 3, 2, 1),
			"Mike":  single("Mike", 3, 2, 1),
			"Kilo":  single("Kilo", 3, 1, 2),
			"India": single("India", 3, 2, 1),
		}}

		results, err := forecast.New(forecast.WithConcurrency(1)).ForecastRanked(context.Background(), loader, []string{"Zulu", "Mike", "Kilo", "India"}, 2024, forecast.MovingAverage, 4)
		So(err, ShouldBeNil)
		parallel, err := f.ForecastRanked(context.Background(), loader, []string{"Zulu", "Mike", "Kilo", "India"}, 2024, forecast.MovingAverage, 4)
		So(err, ShouldBeNil)

		Convey("Then silver breaks the tie before names do", func() {
			So(results[0].Entity, ShouldEqual, "India")
			So(results[1].Entity, ShouldEqual, "Mike")
			So(results[2].Entity, ShouldEqual, "Zulu")
			So(results[3].Entity, ShouldEqual, "Kilo")
		})

		Convey("And the order does not depend on concurrency", func() {
			So(parallel, ShouldResemble, results)
		})
	})

	Convey("Given entities without history", t, func() {
		f := forecast.New()
		loader := mapLoader{series: map[string]model.TimeSeries{
			"France":   single("France", 10, 12, 11),
			"Atlantis": {Kind: model.KindCountry, Entity: "Atlantis"},
		}}

		results, err := f.ForecastRanked(context.Background(), loader, []string{"France", "Atlantis", "Nowhere"}, 2024, forecast.MovingAverage, 10)

		Convey("Then they are excluded without failing the call", func() {
			So(err, ShouldBeNil)
			So(len(results), ShouldEqual, 1)
			So(results[0].Entity, ShouldEqual, "France")
		})
	})

	Convey("Given a loader that fails for one entity", t, func() {
		f := forecast.New()
		loader := mapLoader{
			series: map[string]model.TimeSeries{"France": single("France", 10, 12, 11)},
			errs:   map[string]error{"Italy": fmt.Errorf("query: %w", model.ErrUpstreamUnavailable)},
		}

		_, err := f.ForecastRanked(context.Background(), loader, []string{"France", "Italy"}, 2024, forecast.MovingAverage, 10)

		Convey("Then the whole call fails with that error", func() {
			So(errors.Is(err, model.ErrUpstreamUnavailable), ShouldBeTrue)
		})
	})

	Convey("Given invalid ranked requests", t, func() {
		f := forecast.New()
		loader := mapLoader{series: map[string]model.TimeSeries{"France": single("France", 1, 1, 1)}}
		ctx := context.Background()

		_, err := f.ForecastRanked(ctx, loader, nil, 2024, forecast.MovingAverage, 10)
		So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)

		_, err = f.ForecastRanked(ctx, loader, []string{"France"}, 2024, forecast.MovingAverage, 0)
		So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)

		_, err = f.ForecastRanked(ctx, loader, []string{"France"}, 2024, forecast.Model("naive"), 10)
		So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)

		_, err = f.ForecastRanked(ctx, loader, []string{"France"}, 2020, forecast.MovingAverage, 10)
		So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
	})
}
