// Package store persists completed flow recordings. Two backends share one
// contract: SQLite for the default queryable catalog, and a plain JSON file
// per flow for portable exports.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nwtk/flowrec/internal/model"
)

var (
	// ErrNotFound is returned when no flow with the requested id exists.
	ErrNotFound = errors.New("flow not found")
	// ErrCorrupt is returned when stored data decodes but violates the
	// flow invariants (gapped action ids, unknown status).
	ErrCorrupt = errors.New("flow data corrupt")
	// ErrStorage wraps backend I/O failures.
	ErrStorage = errors.New("storage failure")
)

// Store is the persistence contract for flow recordings. Save replaces any
// existing flow with the same id atomically; readers never observe a
// partially written flow.
type Store interface {
	Save(ctx context.Context, flow *model.Flow) error
	Load(ctx context.Context, id string) (*model.Flow, error)
	List(ctx context.Context) ([]model.FlowSummary, error)
	Close() error
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullableTS(v *time.Time) any {
	if v == nil {
		return nil
	}
	return ts(*v)
}
