package forecast

import "github.com/okian/podium/internal/domain/model"

// Strategy extrapolates a sorted, non-empty series to the next edition.
type Strategy interface {
	Predict(series model.TimeSeries) model.Medals
	Params() map[string]float64
}

// MovingAverageStrategy averages the last Window editions of each medal type.
// Shorter series use every edition available.
type MovingAverageStrategy struct {
	Window int
}

// Predict implements Strategy.
func (s MovingAverageStrategy) Predict(series model.TimeSeries) model.Medals {
	records := series.Records
	if s.Window > 0 && len(records) > s.Window {
		records = records[len(records)-s.Window:]
	}
	if len(records) == 0 {
		return model.Medals{}
	}

	var sum model.Medals
	for _, r := range records {
		sum.Gold += float64(r.Gold)
		sum.Silver += float64(r.Silver)
		sum.Bronze += float64(r.Bronze)
	}
	n := float64(len(records))
	return model.Medals{Gold: sum.Gold / n, Silver: sum.Silver / n, Bronze: sum.Bronze / n}
}

// Params implements Strategy.
func (s MovingAverageStrategy) Params() map[string]float64 {
	return map[string]float64{"window_size": float64(s.Window)}
}

// SmoothingStrategy applies single exponential smoothing and returns the last
// smoothed value, whatever the distance to the target year.
type SmoothingStrategy struct {
	Alpha float64
}

// Predict implements Strategy.
func (s SmoothingStrategy) Predict(series model.TimeSeries) model.Medals {
	if len(series.Records) == 0 {
		return model.Medals{}
	}

	first := series.Records[0]
	level := model.Medals{Gold: float64(first.Gold), Silver: float64(first.Silver), Bronze: float64(first.Bronze)}
	for _, r := range series.Records[1:] {
		level.Gold = s.Alpha*float64(r.Gold) + (1-s.Alpha)*level.Gold
		level.Silver = s.Alpha*float64(r.Silver) + (1-s.Alpha)*level.Silver
		level.Bronze = s.Alpha*float64(r.Bronze) + (1-s.Alpha)*level.Bronze
	}
	return level
}

// Params implements Strategy.
func (s SmoothingStrategy) Params() map[string]float64 {
	return map[string]float64{"smoothing_alpha": s.Alpha}
}
