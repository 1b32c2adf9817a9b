// Package repository holds the historical medal datastore and its decorators.
package repository

import (
	"context"
	"strings"

	"github.com/okian/podium/internal/domain/model"
)

// EntityTotal is the all-time medal tally of one entity.
type EntityTotal struct {
	Entity string `db:"name" json:"entity"`
	Gold   int    `db:"gold" json:"gold"`
	Silver int    `db:"silver" json:"silver"`
	Bronze int    `db:"bronze" json:"bronze"`
}

// Total returns the sum of the three medal types.
func (t EntityTotal) Total() int { return t.Gold + t.Silver + t.Bronze }

// Reader is the read capability the forecaster needs.
type Reader interface {
	// LoadSeries returns the per-edition medals of one entity, ascending by year.
	// Entity matching is case-insensitive. With model.SeasonAll the counts of
	// both seasons are summed per year.
	// Returns model.ErrNotFound if the entity has no records.
	LoadSeries(ctx context.Context, kind model.EntityKind, entity string, season model.Season) (model.TimeSeries, error)

	// ListEntities returns every entity of kind with at least one record, sorted.
	ListEntities(ctx context.Context, kind model.EntityKind, season model.Season) ([]string, error)

	// Editions returns the distinct edition years known to the store, ascending.
	Editions(ctx context.Context, season model.Season) ([]int, error)

	// Totals returns the entities of kind ordered by all-time total medals
	// desc, then name asc, at most limit of them.
	Totals(ctx context.Context, kind model.EntityKind, season model.Season, limit int) ([]EntityTotal, error)
}

// Store provides read/write access to the medal history.
type Store interface {
	Reader

	// UpsertRecords inserts or replaces records of kind, keyed by
	// (entity, year, season). Every record needs a concrete season.
	UpsertRecords(ctx context.Context, kind model.EntityKind, records []model.MedalRecord) error

	// Ping reports whether the backing datastore is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// DriverMemory selects the in-process MemoryStore.
const DriverMemory = "memory"

// Connect opens the store named by driver: "memory" or any SQL driver
// accepted by NormalizeDriver.
func Connect(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	if strings.EqualFold(strings.TrimSpace(driver), DriverMemory) {
		return NewMemoryStore(), nil
	}
	s, err := Open(ctx, driver, dsn, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}
