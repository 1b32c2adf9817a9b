package ingest

import (
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
)

// Option configures an Importer.
type Option func(*Importer)

// WithDryRun parses and aggregates without writing to the datastore.
func WithDryRun(dryRun bool) Option {
	return func(im *Importer) {
		im.dryRun = dryRun
	}
}

// WithDefaultSeason assigns a season to rows that carry none. Without it such
// rows are rejected.
func WithDefaultSeason(s model.Season) Option {
	return func(im *Importer) {
		if s == model.SeasonSummer || s == model.SeasonWinter {
			im.defaultSeason = s
		}
	}
}

// WithMaxTrackedAwards bounds the award deduper. 0 keeps every key.
func WithMaxTrackedAwards(n int) Option {
	return func(im *Importer) {
		if n >= 0 {
			im.maxTracked = n
		}
	}
}

// WithLogger sets a custom logger for the importer.
func WithLogger(l logger.Logger) Option {
	return func(im *Importer) {
		if l != nil {
			im.logger = l
		}
	}
}
