// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// EntityKind names the subject a series belongs to.
type EntityKind string

// Supported entity kinds.
const (
	KindCountry EntityKind = "country"
	KindSport   EntityKind = "sport"
	KindAthlete EntityKind = "athlete"
)

// Kinds lists every supported entity kind.
func Kinds() []EntityKind {
	return []EntityKind{KindCountry, KindSport, KindAthlete}
}

// ParseKind accepts the singular kind name or its plural path form
// ("countries", "sports", "athletes"), case-insensitively.
func ParseKind(s string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "country", "countries":
		return KindCountry, nil
	case "sport", "sports":
		return KindSport, nil
	case "athlete", "athletes":
		return KindAthlete, nil
	}
	return "", fmt.Errorf("%w: unknown entity kind %q", ErrInvalidRequest, s)
}

// Season restricts a series to summer or winter editions. The zero value
// means both seasons, summed per year.
type Season string

// Supported seasons.
const (
	SeasonAll    Season = ""
	SeasonSummer Season = "summer"
	SeasonWinter Season = "winter"
)

// ParseSeason accepts "", "all", "summer" or "winter".
func ParseSeason(s string) (Season, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return SeasonAll, nil
	case "summer":
		return SeasonSummer, nil
	case "winter":
		return SeasonWinter, nil
	}
	return "", fmt.Errorf("%w: unknown season %q", ErrInvalidRequest, s)
}

// MedalRecord is one historical data point for an entity.
type MedalRecord struct {
	Entity string
	Year   int
	Season Season
	Gold   int
	Silver int
	Bronze int
}

// Total returns the number of medals of all types.
func (r MedalRecord) Total() int { return r.Gold + r.Silver + r.Bronze }

// TimeSeries is the ordered medal history of one entity.
type TimeSeries struct {
	Kind    EntityKind
	Entity  string
	Records []MedalRecord
}

// Len returns the number of editions in the series.
func (s TimeSeries) Len() int { return len(s.Records) }

// Empty reports whether the series has no editions.
func (s TimeSeries) Empty() bool { return len(s.Records) == 0 }

// LastYear returns the year of the latest edition, or 0 for an empty series.
// The series must be sorted.
func (s TimeSeries) LastYear() int {
	if len(s.Records) == 0 {
		return 0
	}
	return s.Records[len(s.Records)-1].Year
}

// Sorted returns a copy of the series ordered by year ascending.
// Duplicate years are reported as ErrInvalidRequest.
func (s TimeSeries) Sorted() (TimeSeries, error) {
	out := TimeSeries{Kind: s.Kind, Entity: s.Entity, Records: make([]MedalRecord, len(s.Records))}
	copy(out.Records, s.Records)
	sort.SliceStable(out.Records, func(i, j int) bool { return out.Records[i].Year < out.Records[j].Year })
	for i := 1; i < len(out.Records); i++ {
		if out.Records[i].Year == out.Records[i-1].Year {
			return TimeSeries{}, fmt.Errorf("%w: duplicate edition year %d for %q", ErrInvalidRequest, out.Records[i].Year, s.Entity)
		}
	}
	return out, nil
}

// FillGaps returns a copy of a sorted series where every edition year in
// editions that lies between the first and last observed year, and has no
// record, is inserted as a zero-medal record.
func (s TimeSeries) FillGaps(editions []int) TimeSeries {
	out := TimeSeries{Kind: s.Kind, Entity: s.Entity}
	if len(s.Records) == 0 {
		return out
	}
	first, last := s.Records[0].Year, s.LastYear()

	seen := make(map[int]MedalRecord, len(s.Records))
	years := make([]int, 0, len(s.Records)+len(editions))
	for _, r := range s.Records {
		seen[r.Year] = r
		years = append(years, r.Year)
	}
	for _, y := range editions {
		if y <= first || y >= last {
			continue
		}
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = MedalRecord{Entity: s.Entity, Year: y, Season: s.Records[0].Season}
		years = append(years, y)
	}
	sort.Ints(years)

	out.Records = make([]MedalRecord, 0, len(years))
	for _, y := range years {
		out.Records = append(out.Records, seen[y])
	}
	return out
}

// Medals holds real-valued medal predictions.
type Medals struct {
	Gold   float64
	Silver float64
	Bronze float64
}

// Total returns the sum of the three medal types.
func (m Medals) Total() float64 { return m.Gold + m.Silver + m.Bronze }
