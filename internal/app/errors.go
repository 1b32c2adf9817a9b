package service

import (
	"errors"
	"fmt"

	"github.com/okian/podium/internal/domain/model"
)

// Sentinel kinds for service errors.
var (
	ErrNoStore    = errors.New("service has no datastore")
	ErrNotStarted = fmt.Errorf("service not started: %w", model.ErrUpstreamUnavailable)
)
