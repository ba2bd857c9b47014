package storage

import (
	"context"
	"time"

	"pollwatch/internal/pkg"
)

// Storer persists configurations and their call results. Implementations
// must make the activation flips row-level atomic: concurrent ticks and
// Activate retries race on the same row.
type Storer interface {
	InsertConfiguration(ctx context.Context, cfg *pkg.Configuration) error
	GetConfigurationByID(ctx context.Context, id string) (*pkg.Configuration, error)
	// ListActivatedUnfinished returns configurations whose recurring job
	// was activated and whose window is still open at now. Used to rebuild
	// the job registry after a restart.
	ListActivatedUnfinished(ctx context.Context, now time.Time) ([]*pkg.Configuration, error)
	// MarkActivated records the activation instant once. Later calls are
	// no-ops.
	MarkActivated(ctx context.Context, id string, at time.Time) error
	// SetActive conditionally flips the is_active flag and reports whether
	// the row actually changed.
	SetActive(ctx context.Context, id string, active bool) (bool, error)

	InsertCallResult(ctx context.Context, result *pkg.CallResult) error
	// InsertFinalCallResult appends the terminal tick's result and clears
	// is_active in one transaction.
	InsertFinalCallResult(ctx context.Context, result *pkg.CallResult) error
	// ListCallResults returns results most-recent-first. A limit <= 0 means
	// no limit.
	ListCallResults(ctx context.Context, configID string, limit int) ([]*pkg.CallResult, error)
	ResultStats(ctx context.Context, configID string) (total int, successes int, err error)

	Close() error
}
