package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/podium/internal/domain/model"
)

// Sentinel kinds for datastore errors.
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrClosed            = errors.New("store closed")
)

// unavailable wraps a backend failure so callers see model.ErrUpstreamUnavailable.
// Context cancellation is passed through untouched.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrUpstreamUnavailable, err)
}

func invalidRecord(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// validateRecords checks what every store requires of written records.
func validateRecords(kind model.EntityKind, records []model.MedalRecord) error {
	if _, err := model.ParseKind(string(kind)); err != nil {
		return err
	}
	for i, r := range records {
		switch {
		case strings.TrimSpace(r.Entity) == "":
			return invalidRecord("record %d: empty entity", i)
		case r.Season != model.SeasonSummer && r.Season != model.SeasonWinter:
			return invalidRecord("record %d (%s %d): season must be summer or winter", i, r.Entity, r.Year)
		case r.Year <= 0:
			return invalidRecord("record %d (%s): invalid year %d", i, r.Entity, r.Year)
		case r.Gold < 0 || r.Silver < 0 || r.Bronze < 0:
			return invalidRecord("record %d (%s %d): negative medal count", i, r.Entity, r.Year)
		}
	}
	return nil
}
