package ingest

import "errors"

// Sentinel kinds for import failures.
var (
	ErrNoWriter      = errors.New("importer has no datastore")
	ErrMissingColumn = errors.New("csv is missing a required column")
	ErrMalformedCSV  = errors.New("malformed csv")
)
