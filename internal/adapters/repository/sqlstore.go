package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// goose keeps its base FS and dialect in package state.
var migrateMu sync.Mutex

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Default pool configuration constants.
const (
	defaultMaxOpenConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
)

// SQLStore keeps medal records in SQLite or PostgreSQL.
type SQLStore struct {
	db     *sqlx.DB
	driver string

	maxOpenConns    int
	connMaxLifetime time.Duration
	log             logger.Logger
}

// NormalizeDriver maps accepted driver spellings to a supported driver name.
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
}

// Open connects to the database, tunes SQLite and applies pending migrations.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	name, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{
		driver:          name,
		maxOpenConns:    defaultMaxOpenConns,
		connMaxLifetime: defaultConnMaxLifetime,
		log:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sqlx.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	s.db = db

	db.SetMaxOpenConns(s.maxOpenConns)
	db.SetConnMaxLifetime(s.connMaxLifetime)
	if name == DriverSQLite && strings.Contains(dsn, ":memory:") {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("connect", err)
	}
	if name == DriverSQLite {
		s.tuneSQLite(ctx)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.log.Info(ctx, "datastore ready", logger.String("driver", name))
	return s, nil
}

func (s *SQLStore) tuneSQLite(ctx context.Context) {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", "5000"},
		{"temp_store", "MEMORY"},
		{"cache_size", "-16000"},
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			s.log.Warn(ctx, "sqlite pragma failed",
				logger.String("pragma", p.name),
				logger.String("value", p.value),
				logger.Error(err))
		}
	}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(s.driver); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Driver returns the normalized driver name.
func (s *SQLStore) Driver() string { return s.driver }

// observe records the latency of op; only backend failures count as errors.
func observe(op string, start time.Time, err *error) {
	metrics.RecordStoreQuery(op, time.Since(start), errors.Is(*err, model.ErrUpstreamUnavailable))
}

func entityKey(entity string) string {
	return strings.ToLower(strings.TrimSpace(entity))
}

// seasonFilter returns the extra predicate and args for a season restriction.
func seasonFilter(season model.Season) (string, []interface{}) {
	if season == model.SeasonAll {
		return "", nil
	}
	return " AND season = ?", []interface{}{string(season)}
}

type seriesRow struct {
	Name   string `db:"name"`
	Year   int    `db:"year"`
	Gold   int    `db:"gold"`
	Silver int    `db:"silver"`
	Bronze int    `db:"bronze"`
}

// LoadSeries implements Reader.
func (s *SQLStore) LoadSeries(ctx context.Context, kind model.EntityKind, entity string, season model.Season) (ts model.TimeSeries, err error) {
	defer observe("load_series", time.Now(), &err)

	filter, extra := seasonFilter(season)
	query := s.db.Rebind(`SELECT MIN(entity) AS name, year,
		SUM(gold) AS gold, SUM(silver) AS silver, SUM(bronze) AS bronze
		FROM medal_records
		WHERE kind = ? AND entity_key = ?` + filter + `
		GROUP BY year
		ORDER BY year`)
	args := append([]interface{}{string(kind), entityKey(entity)}, extra...)

	var rows []seriesRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return model.TimeSeries{}, unavailable("load series", err)
	}
	if len(rows) == 0 {
		return model.TimeSeries{}, fmt.Errorf("%w: %s %q", model.ErrNotFound, kind, entity)
	}

	ts = model.TimeSeries{Kind: kind, Entity: rows[0].Name, Records: make([]model.MedalRecord, 0, len(rows))}
	for _, r := range rows {
		ts.Records = append(ts.Records, model.MedalRecord{
			Entity: ts.Entity,
			Year:   r.Year,
			Season: season,
			Gold:   r.Gold,
			Silver: r.Silver,
			Bronze: r.Bronze,
		})
	}
	return ts, nil
}

// ListEntities implements Reader.
func (s *SQLStore) ListEntities(ctx context.Context, kind model.EntityKind, season model.Season) (names []string, err error) {
	defer observe("list_entities", time.Now(), &err)

	filter, extra := seasonFilter(season)
	query := s.db.Rebind(`SELECT MIN(entity) AS name
		FROM medal_records
		WHERE kind = ?` + filter + `
		GROUP BY entity_key
		ORDER BY name`)
	args := append([]interface{}{string(kind)}, extra...)

	if err := s.db.SelectContext(ctx, &names, query, args...); err != nil {
		return nil, unavailable("list entities", err)
	}
	return names, nil
}

// Editions implements Reader.
func (s *SQLStore) Editions(ctx context.Context, season model.Season) (years []int, err error) {
	defer observe("editions", time.Now(), &err)

	where := ""
	var args []interface{}
	if season != model.SeasonAll {
		where = " WHERE season = ?"
		args = append(args, string(season))
	}
	query := s.db.Rebind(`SELECT DISTINCT year FROM medal_records` + where + ` ORDER BY year`)

	if err := s.db.SelectContext(ctx, &years, query, args...); err != nil {
		return nil, unavailable("editions", err)
	}
	return years, nil
}

// Totals implements Reader.
func (s *SQLStore) Totals(ctx context.Context, kind model.EntityKind, season model.Season, limit int) (totals []EntityTotal, err error) {
	defer observe("totals", time.Now(), &err)

	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", model.ErrInvalidRequest, limit)
	}
	filter, extra := seasonFilter(season)
	query := s.db.Rebind(`SELECT MIN(entity) AS name,
		SUM(gold) AS gold, SUM(silver) AS silver, SUM(bronze) AS bronze
		FROM medal_records
		WHERE kind = ?` + filter + `
		GROUP BY entity_key
		ORDER BY SUM(gold + silver + bronze) DESC, name
		LIMIT ?`)
	args := append([]interface{}{string(kind)}, extra...)
	args = append(args, limit)

	if err := s.db.SelectContext(ctx, &totals, query, args...); err != nil {
		return nil, unavailable("totals", err)
	}
	return totals, nil
}

// UpsertRecords implements Store. All records are written in one transaction.
func (s *SQLStore) UpsertRecords(ctx context.Context, kind model.EntityKind, records []model.MedalRecord) (err error) {
	defer observe("upsert", time.Now(), &err)

	if err := validateRecords(kind, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable("begin upsert", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO medal_records
		(kind, entity, entity_key, year, season, gold, silver, bronze)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, entity_key, year, season) DO UPDATE SET
			entity = excluded.entity,
			gold = excluded.gold,
			silver = excluded.silver,
			bronze = excluded.bronze`))
	if err != nil {
		return unavailable("prepare upsert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		name := strings.TrimSpace(r.Entity)
		if _, err = stmt.ExecContext(ctx, string(kind), name, entityKey(name), r.Year, string(r.Season), r.Gold, r.Silver, r.Bronze); err != nil {
			return unavailable("upsert record", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return unavailable("commit upsert", err)
	}
	return nil
}

// Ping implements Store.
func (s *SQLStore) Ping(ctx context.Context) error {
	return unavailable("ping", s.db.PingContext(ctx))
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
