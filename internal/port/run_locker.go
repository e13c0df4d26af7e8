package port

import (
	"context"
	"time"
)

type RunLocker interface {
	// AcquireRunLock takes the per-date run lock, returns false if another run holds it
	AcquireRunLock(ctx context.Context, date time.Time) (bool, error)

	// ReleaseRunLock releases the per-date run lock
	ReleaseRunLock(ctx context.Context, date time.Time) error

	// SetRemaining mirrors a date's remaining supply for cheap availability reads
	SetRemaining(ctx context.Context, date time.Time, qty int) error
}
