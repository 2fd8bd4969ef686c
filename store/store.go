// Package store persists run traces beyond the executor that produced
// them.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/trace"
)

// ErrNotFound marks a lookup of a run ID the store does not hold.
var ErrNotFound = errors.New("run not found")

// RunStore keeps finished traces by run ID.
type RunStore interface {
	Save(ctx context.Context, tr *trace.Trace) error
	Get(ctx context.Context, runID string) (*trace.Trace, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, runID string) error
}

// RunStoreManager extends RunStore with retention maintenance.
type RunStoreManager interface {
	RunStore
	// Cleanup deletes runs that finished more than olderThan ago and
	// returns how many were removed.
	Cleanup(ctx context.Context, olderThan time.Duration) (uint32, error)
}
