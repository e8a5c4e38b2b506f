// Package snapshot fetches the external CRM's copy of a lead as a flat field map for
// conflict detection.
package snapshot

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the external system has no record for the lead.
var ErrNotFound = errors.New("external snapshot not found")

// Fetcher returns the external copy of a lead keyed by external field name.
type Fetcher interface {
	Fetch(ctx context.Context, leadID string) (map[string]any, error)
}
