// Package ingest loads the cleaned Olympic medal CSV into the datastore.
//
// The file holds one row per medal winner: a team gold appears once per team
// member. Country and sport series count such an award once, athlete series
// count it for every named athlete.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/podium/internal/domain/dedupe"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Row outcomes, also used as metric labels.
const (
	OutcomeImported  = "imported"
	OutcomeNoMedal   = "no_medal"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
)

const participantAthlete = "athlete"

var slugYear = regexp.MustCompile(`(\d{4})`)

// Header aliases of the raw dataset, mapped to the cleaned names.
var headerAliases = map[string]string{ //nolint:gochecknoglobals // static lookup table
	"discipline_title":      "sport",
	"event_title":           "event",
	"slug_game":             "games_slug",
	"medal_type":            "medal",
	"country_3_letter_code": "noc",
	"country_name":          "country",
	"athlete_full_name":     "athlete",
}

// Writer is the datastore capability the importer needs.
type Writer interface {
	UpsertRecords(ctx context.Context, kind model.EntityKind, records []model.MedalRecord) error
}

// Summary reports what an import did.
type Summary struct {
	Rows       int
	Imported   int
	NoMedal    int
	Duplicates int
	Invalid    int
	// Records is the number of aggregated (entity, year, season) records per kind.
	Records  map[model.EntityKind]int
	DryRun   bool
	Duration time.Duration
}

// Importer reads medal rows and writes per-edition aggregates.
type Importer struct {
	writer        Writer
	dryRun        bool
	defaultSeason model.Season
	maxTracked    int
	logger        logger.Logger
}

// New constructs an Importer writing to w.
func New(w Writer, opts ...Option) *Importer {
	im := &Importer{writer: w}
	for _, opt := range opts {
		opt(im)
	}
	if im.logger == nil {
		im.logger = logger.Nop()
	}
	return im
}

type aggKey struct {
	kind   model.EntityKind
	entity string
	year   int
	season model.Season
}

// run holds the state of one Import call.
type run struct {
	cols    columns
	awards  dedupe.Deduper
	agg     map[aggKey]*model.MedalRecord
	summary Summary
}

// Import reads the whole CSV from r, aggregates it and upserts every kind in
// one batch. Nothing is written when the CSV cannot be parsed.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Summary, error) {
	start := time.Now()
	if im.writer == nil && !im.dryRun {
		return Summary{}, ErrNoWriter
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Summary{}, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return Summary{}, fmt.Errorf("%w: header: %w", ErrMalformedCSV, err)
	}
	cols, err := indexColumns(header)
	if err != nil {
		return Summary{}, err
	}

	var dedupeOpts []dedupe.Option
	if im.maxTracked > 0 {
		dedupeOpts = append(dedupeOpts, dedupe.WithMaxSize(im.maxTracked))
	}
	st := &run{
		cols:   cols,
		awards: dedupe.NewInMemoryDeduper(dedupeOpts...),
		agg:    make(map[aggKey]*model.MedalRecord),
	}

	for {
		if err := ctx.Err(); err != nil {
			return st.summary, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st.summary, fmt.Errorf("%w: %w", ErrMalformedCSV, err)
		}
		st.summary.Rows++
		outcome := im.consume(ctx, st, rec)
		metrics.RecordImportRow(outcome)
		switch outcome {
		case OutcomeImported:
			st.summary.Imported++
		case OutcomeNoMedal:
			st.summary.NoMedal++
		case OutcomeDuplicate:
			st.summary.Duplicates++
		case OutcomeInvalid:
			st.summary.Invalid++
		}
	}

	batches := st.batches()
	st.summary.Records = make(map[model.EntityKind]int, len(batches))
	for kind, records := range batches {
		st.summary.Records[kind] = len(records)
	}
	st.summary.DryRun = im.dryRun

	if !im.dryRun {
		for _, kind := range model.Kinds() {
			records := batches[kind]
			if len(records) == 0 {
				continue
			}
			if err := im.writer.UpsertRecords(ctx, kind, records); err != nil {
				return st.summary, fmt.Errorf("upsert %s records: %w", kind, err)
			}
		}
	}

	st.summary.Duration = time.Since(start)
	im.logger.Info(ctx, "medal import finished",
		logger.Int("rows", st.summary.Rows),
		logger.Int("imported", st.summary.Imported),
		logger.Int("noMedal", st.summary.NoMedal),
		logger.Int("duplicates", st.summary.Duplicates),
		logger.Int("invalid", st.summary.Invalid),
		logger.Bool("dryRun", im.dryRun),
		logger.Duration("duration", st.summary.Duration),
	)
	return st.summary, nil
}

// consume folds one CSV row into the aggregates and returns its outcome.
// A duplicate award still counts for the athlete who won it.
func (im *Importer) consume(ctx context.Context, st *run, rec []string) string {
	c := st.cols
	medal := c.medal(rec)
	if medal == "" {
		return OutcomeNoMedal
	}

	year, ok := c.year(rec)
	if !ok {
		im.logger.Debug(ctx, "row without a usable year", logger.Int("row", st.summary.Rows))
		return OutcomeInvalid
	}
	season, ok := c.season(rec, im.defaultSeason)
	if !ok {
		im.logger.Debug(ctx, "row without a usable season", logger.Int("row", st.summary.Rows))
		return OutcomeInvalid
	}

	sport := c.get(rec, "sport")
	country := c.get(rec, "country")
	noc := strings.ToUpper(c.get(rec, "noc"))
	if country == "" {
		country = noc
	}
	athlete := c.get(rec, "athlete")
	isAthlete := strings.EqualFold(c.get(rec, "participant_type"), participantAthlete) && athlete != ""

	if sport == "" && country == "" && !isAthlete {
		return OutcomeInvalid
	}

	team := noc
	if team == "" {
		team = country
	}
	key := dedupe.AwardKey(year, string(season), sport, c.get(rec, "event"), medal, team)
	duplicate := st.awards.SeenAndRecord(ctx, key)
	if !duplicate && sport == "" && country == "" {
		// Nothing team-level was counted, a later row of this award must be.
		st.awards.Unrecord(ctx, key)
	}

	if !duplicate {
		if country != "" {
			st.add(model.KindCountry, country, year, season, medal)
		}
		if sport != "" {
			st.add(model.KindSport, sport, year, season, medal)
		}
	}
	if isAthlete {
		st.add(model.KindAthlete, athlete, year, season, medal)
	}

	if duplicate && !isAthlete {
		return OutcomeDuplicate
	}
	return OutcomeImported
}

func (st *run) add(kind model.EntityKind, entity string, year int, season model.Season, medal string) {
	key := aggKey{kind: kind, entity: strings.ToLower(entity), year: year, season: season}
	r, ok := st.agg[key]
	if !ok {
		r = &model.MedalRecord{Entity: entity, Year: year, Season: season}
		st.agg[key] = r
	}
	switch medal {
	case "GOLD":
		r.Gold++
	case "SILVER":
		r.Silver++
	case "BRONZE":
		r.Bronze++
	}
}

// batches returns the aggregates per kind in a stable order.
func (st *run) batches() map[model.EntityKind][]model.MedalRecord {
	out := make(map[model.EntityKind][]model.MedalRecord)
	for k, r := range st.agg {
		out[k.kind] = append(out[k.kind], *r)
	}
	for _, records := range out {
		sort.Slice(records, func(i, j int) bool {
			a, b := records[i], records[j]
			if ea, eb := strings.ToLower(a.Entity), strings.ToLower(b.Entity); ea != eb {
				return ea < eb
			}
			if a.Year != b.Year {
				return a.Year < b.Year
			}
			return a.Season < b.Season
		})
	}
	return out
}

// columns maps normalized header names to field positions.
type columns map[string]int

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.ReplaceAll(h, " ", "_")
	if alias, ok := headerAliases[h]; ok {
		return alias
	}
	return h
}

func indexColumns(header []string) (columns, error) {
	c := make(columns, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if _, dup := c[name]; !dup {
			c[name] = i
		}
	}

	switch {
	case !c.has("medal") && !(c.has("gold") && c.has("silver") && c.has("bronze")):
		return nil, fmt.Errorf("%w: medal (or gold, silver and bronze)", ErrMissingColumn)
	case !c.has("year") && !c.has("games_slug"):
		return nil, fmt.Errorf("%w: year (or games_slug)", ErrMissingColumn)
	case !c.has("sport") && !c.has("country") && !c.has("noc") && !c.has("athlete"):
		return nil, fmt.Errorf("%w: sport, country, noc or athlete", ErrMissingColumn)
	}
	return c, nil
}

func (c columns) has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c columns) get(rec []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(rec) {
		return ""
	}
	v := strings.TrimSpace(rec[i])
	if strings.EqualFold(v, "nan") {
		return ""
	}
	return v
}

// medal returns GOLD, SILVER, BRONZE or "" for rows without a medal. The
// indicator columns are consulted when the medal column is blank.
func (c columns) medal(rec []string) string {
	switch m := strings.ToUpper(c.get(rec, "medal")); m {
	case "GOLD", "SILVER", "BRONZE":
		return m
	case "":
	default:
		return ""
	}
	for _, m := range []string{"gold", "silver", "bronze"} {
		if n, err := parseCount(c.get(rec, m)); err == nil && n > 0 {
			return strings.ToUpper(m)
		}
	}
	return ""
}

func (c columns) year(rec []string) (int, bool) {
	if v := c.get(rec, "year"); v != "" {
		if y, err := parseCount(v); err == nil && y > 0 {
			return y, true
		}
	}
	if m := slugYear.FindString(c.get(rec, "games_slug")); m != "" {
		y, err := strconv.Atoi(m)
		return y, err == nil && y > 0
	}
	return 0, false
}

func (c columns) season(rec []string, fallback model.Season) (model.Season, bool) {
	s, err := model.ParseSeason(c.get(rec, "season"))
	if err != nil {
		return "", false
	}
	if s == model.SeasonAll {
		return fallback, fallback != model.SeasonAll
	}
	return s, true
}

// parseCount accepts integers and integral floats such as "2016.0".
func parseCount(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", v)
	}
	return int(f), nil
}
