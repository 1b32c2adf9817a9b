// Package types contains the wire types shared by the API and its clients.
package types

import (
	"math"

	"github.com/okian/podium/internal/domain/forecast"
	"github.com/okian/podium/internal/domain/model"
)

// ForecastRequest names what to forecast. TopN is used by ranked requests
// only; nil selects the configured default.
type ForecastRequest struct {
	Kind       model.EntityKind
	Entity     string
	TargetYear int
	Model      forecast.Model
	Season     model.Season
	TopN       *int
}

// Forecast is one entity's predicted medal table row.
type Forecast struct {
	Rank       int      `json:"rank,omitempty"`
	Kind       string   `json:"kind"`
	Entity     string   `json:"entity"`
	TargetYear int      `json:"target_year"`
	Model      string   `json:"model"`
	Gold       int      `json:"gold"`
	Silver     int      `json:"silver"`
	Bronze     int      `json:"bronze"`
	Total      int      `json:"total"`
	Expected   Expected `json:"expected"`
}

// Expected carries the unrounded prediction.
type Expected struct {
	Gold   float64 `json:"gold"`
	Silver float64 `json:"silver"`
	Bronze float64 `json:"bronze"`
	Total  float64 `json:"total"`
}

// RankedForecasts is the response of a ranked request.
type RankedForecasts struct {
	Kind       string     `json:"kind"`
	TargetYear int        `json:"target_year"`
	Model      string     `json:"model"`
	Season     string     `json:"season,omitempty"`
	TopN       int        `json:"top_n,omitempty"`
	Count      int        `json:"count"`
	Results    []Forecast `json:"results"`
}

// Contender is an athlete with a rough chance of reaching the podium.
type Contender struct {
	Rank        int     `json:"rank"`
	Athlete     string  `json:"athlete"`
	Gold        int     `json:"gold"`
	Silver      int     `json:"silver"`
	Bronze      int     `json:"bronze"`
	Total       int     `json:"total"`
	Probability float64 `json:"prob_medal"`
}

// ModelInfo describes a forecasting model.
type ModelInfo struct {
	Name   string             `json:"name"`
	Params map[string]float64 `json:"params"`
}

// Health is the body of the health endpoint.
type Health struct {
	Status    string `json:"status"`
	Datastore string `json:"datastore"`
}

// ErrorBody is the JSON body returned with every non-2xx response.
type ErrorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// FromResult converts a forecast result into its wire form. rank 0 omits the rank.
func FromResult(rank int, r forecast.Result) Forecast {
	return Forecast{
		Rank:       rank,
		Kind:       string(r.Kind),
		Entity:     r.Entity,
		TargetYear: r.TargetYear,
		Model:      string(r.Model),
		Gold:       r.Gold,
		Silver:     r.Silver,
		Bronze:     r.Bronze,
		Total:      r.Total,
		Expected: Expected{
			Gold:   round2(r.Expected.Gold),
			Silver: round2(r.Expected.Silver),
			Bronze: round2(r.Expected.Bronze),
			Total:  round2(r.Expected.Total()),
		},
	}
}

// FromModels converts model descriptors into their wire form.
func FromModels(models []forecast.ModelInfo) []ModelInfo {
	out := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, ModelInfo{Name: string(m.Name), Params: m.Params})
	}
	return out
}

// ContenderProbability maps an athlete's historical medal count to a podium
// chance: 0.05 plus 0.03 per medal, capped at 0.95 and rounded to 2 places.
func ContenderProbability(totalMedals int) float64 {
	if totalMedals < 0 {
		totalMedals = 0
	}
	p := math.Min(0.95, 0.05+0.03*float64(totalMedals))
	return round2(p)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
