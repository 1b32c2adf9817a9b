package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/okian/podium/internal/domain/model"
)

type memKey struct {
	kind   model.EntityKind
	entity string // lower-cased
}

type memEdition struct {
	year   int
	season model.Season
}

type memEntity struct {
	name    string
	records map[memEdition]model.MedalRecord
}

// MemoryStore keeps medal records in process memory. It is safe for
// concurrent use and mirrors SQLStore semantics.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[memKey]*memEntity
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entities: make(map[memKey]*memEntity)}
}

func (s *MemoryStore) checkOpen(op string) error {
	if s.closed {
		return unavailable(op, ErrClosed)
	}
	return nil
}

func matchesSeason(season, want model.Season) bool {
	return want == model.SeasonAll || season == want
}

// LoadSeries implements Reader.
func (s *MemoryStore) LoadSeries(_ context.Context, kind model.EntityKind, entity string, season model.Season) (model.TimeSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("load series"); err != nil {
		return model.TimeSeries{}, err
	}

	e, ok := s.entities[memKey{kind, entityKey(entity)}]
	byYear := map[int]*model.MedalRecord{}
	if ok {
		for ed, r := range e.records {
			if !matchesSeason(ed.season, season) {
				continue
			}
			acc, seen := byYear[ed.year]
			if !seen {
				acc = &model.MedalRecord{Entity: e.name, Year: ed.year, Season: season}
				byYear[ed.year] = acc
			}
			acc.Gold += r.Gold
			acc.Silver += r.Silver
			acc.Bronze += r.Bronze
		}
	}
	if len(byYear) == 0 {
		return model.TimeSeries{}, fmt.Errorf("%w: %s %q", model.ErrNotFound, kind, entity)
	}

	ts := model.TimeSeries{Kind: kind, Entity: e.name, Records: make([]model.MedalRecord, 0, len(byYear))}
	for _, r := range byYear {
		ts.Records = append(ts.Records, *r)
	}
	sort.Slice(ts.Records, func(i, j int) bool { return ts.Records[i].Year < ts.Records[j].Year })
	return ts, nil
}

// ListEntities implements Reader.
func (s *MemoryStore) ListEntities(_ context.Context, kind model.EntityKind, season model.Season) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("list entities"); err != nil {
		return nil, err
	}

	var names []string
	for k, e := range s.entities {
		if k.kind != kind || !e.has(season) {
			continue
		}
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names, nil
}

func (e *memEntity) has(season model.Season) bool {
	for ed := range e.records {
		if matchesSeason(ed.season, season) {
			return true
		}
	}
	return false
}

// Editions implements Reader.
func (s *MemoryStore) Editions(_ context.Context, season model.Season) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("editions"); err != nil {
		return nil, err
	}

	set := map[int]struct{}{}
	for _, e := range s.entities {
		for ed := range e.records {
			if matchesSeason(ed.season, season) {
				set[ed.year] = struct{}{}
			}
		}
	}
	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// Totals implements Reader.
func (s *MemoryStore) Totals(_ context.Context, kind model.EntityKind, season model.Season, limit int) ([]EntityTotal, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", model.ErrInvalidRequest, limit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen("totals"); err != nil {
		return nil, err
	}

	var totals []EntityTotal
	for k, e := range s.entities {
		if k.kind != kind {
			continue
		}
		t := EntityTotal{Entity: e.name}
		counted := false
		for ed, r := range e.records {
			if !matchesSeason(ed.season, season) {
				continue
			}
			counted = true
			t.Gold += r.Gold
			t.Silver += r.Silver
			t.Bronze += r.Bronze
		}
		if counted {
			totals = append(totals, t)
		}
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Total() != totals[j].Total() {
			return totals[i].Total() > totals[j].Total()
		}
		return totals[i].Entity < totals[j].Entity
	})
	if len(totals) > limit {
		totals = totals[:limit]
	}
	return totals, nil
}

// UpsertRecords implements Store.
func (s *MemoryStore) UpsertRecords(_ context.Context, kind model.EntityKind, records []model.MedalRecord) error {
	if err := validateRecords(kind, records); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("upsert"); err != nil {
		return err
	}

	for _, r := range records {
		r.Entity = strings.TrimSpace(r.Entity)
		k := memKey{kind, entityKey(r.Entity)}
		e, ok := s.entities[k]
		if !ok {
			e = &memEntity{records: map[memEdition]model.MedalRecord{}}
			s.entities[k] = e
		}
		e.name = r.Entity
		e.records[memEdition{r.Year, r.Season}] = r
	}
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkOpen("ping")
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
