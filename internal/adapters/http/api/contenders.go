package api

import (
	"context"
	"net/http"

	"github.com/okian/podium/internal/domain/forecast"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// ContendersDependencies defines the athlete and model listings.
type ContendersDependencies interface {
	Contenders(ctx context.Context, limit int, season model.Season) ([]types.Contender, error)
	Models() []forecast.ModelInfo
}

// ContendersHandler serves the contenders and model listings.
type ContendersHandler struct {
	deps ContendersDependencies
}

// NewContendersHandler creates a new contenders handler.
func NewContendersHandler(deps ContendersDependencies) *ContendersHandler {
	return &ContendersHandler{deps: deps}
}

// HandleContenders handles GET /api/predictions/contenders?limit=&season=.
func (h *ContendersHandler) HandleContenders(w http.ResponseWriter, r *http.Request) {
	var q contendersQuery
	if err := bindQuery(r.URL.Query(), &q); err != nil {
		writeKindError(w, r, err)
		return
	}
	season, err := model.ParseSeason(q.Season)
	if err != nil {
		writeKindError(w, r, err)
		return
	}
	contenders, err := h.deps.Contenders(r.Context(), derefInt(q.Limit), season)
	if err != nil {
		writeKindError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contenders)
}

// HandleModels handles GET /api/predictions/models.
func (h *ContendersHandler) HandleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.FromModels(h.deps.Models()))
}
