package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/podium/internal/domain/forecast"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// ForecastDependencies defines the forecasting operations behind the API.
type ForecastDependencies interface {
	Forecast(ctx context.Context, req types.ForecastRequest) (forecast.Result, error)
	ForecastRanked(ctx context.Context, req types.ForecastRequest) ([]forecast.Result, error)
}

// ForecastHandler serves single-entity and ranked forecasts.
type ForecastHandler struct {
	deps ForecastDependencies
}

// NewForecastHandler creates a new forecast handler.
func NewForecastHandler(deps ForecastDependencies) *ForecastHandler {
	return &ForecastHandler{deps: deps}
}

// HandleEntity handles GET /api/predictions/{kind}/{entity}.
func (h *ForecastHandler) HandleEntity(w http.ResponseWriter, r *http.Request) {
	req, err := parseForecastRequest(r)
	if err != nil {
		writeKindError(w, r, err)
		return
	}
	req.Entity = chi.URLParam(r, "entity")

	res, err := h.deps.Forecast(r.Context(), req)
	if err != nil {
		writeKindError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.FromResult(0, res))
}

// HandleRanked handles GET /api/predictions/{kind}.
func (h *ForecastHandler) HandleRanked(w http.ResponseWriter, r *http.Request) {
	req, err := parseForecastRequest(r)
	if err != nil {
		writeKindError(w, r, err)
		return
	}

	results, err := h.deps.ForecastRanked(r.Context(), req)
	if err != nil {
		writeKindError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.RankedForecasts{
		Kind:       string(req.Kind),
		TargetYear: req.TargetYear,
		Model:      string(req.Model),
		Season:     string(req.Season),
		TopN:       derefInt(req.TopN),
		Count:      len(results),
		Results:    forecastResponse(results),
	})
}

func parseForecastRequest(r *http.Request) (types.ForecastRequest, error) {
	kind, err := model.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return types.ForecastRequest{}, err
	}
	var q forecastQuery
	if err := bindQuery(r.URL.Query(), &q); err != nil {
		return types.ForecastRequest{}, err
	}
	m, err := forecast.ParseModel(q.Model)
	if err != nil {
		return types.ForecastRequest{}, err
	}
	season, err := model.ParseSeason(q.Season)
	if err != nil {
		return types.ForecastRequest{}, err
	}
	return types.ForecastRequest{
		Kind:       kind,
		TargetYear: q.Year,
		Model:      m,
		Season:     season,
		TopN:       q.TopN,
	}, nil
}

// derefInt returns *p, or 0 when the parameter was absent.
func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
