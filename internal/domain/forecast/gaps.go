package forecast

import (
	"fmt"
	"strings"

	"github.com/okian/podium/internal/domain/model"
)

// GapPolicy decides how editions an entity did not medal in are treated.
type GapPolicy string

// Supported gap policies.
const (
	// GapOmit forecasts from the observed editions only.
	GapOmit GapPolicy = "omit"
	// GapZero inserts zero-medal editions between the first and last observation.
	GapZero GapPolicy = "zero"
)

// ParseGapPolicy accepts "omit" (or "") and "zero".
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch GapPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", GapOmit:
		return GapOmit, nil
	case GapZero:
		return GapZero, nil
	}
	return "", fmt.Errorf("%w: unknown gap policy %q", model.ErrInvalidRequest, s)
}

// Apply returns the series prepared under the policy. editions is the
// calendar of edition years known to the datastore.
func (p GapPolicy) Apply(series model.TimeSeries, editions []int) (model.TimeSeries, error) {
	if p != GapZero || series.Empty() {
		return series, nil
	}
	sorted, err := series.Sorted()
	if err != nil {
		return model.TimeSeries{}, err
	}
	return sorted.FillGaps(editions), nil
}
