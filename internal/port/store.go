package port

import (
	"context"
	"time"

	"github.com/chickflow/allocator/internal/core/domain"
)

type Store interface {
	// SupplyForDate returns the inventory row for a date, nil when none exists
	SupplyForDate(ctx context.Context, date time.Time) (*domain.Supply, error)

	// UpsertSupply creates or replaces the inventory row for a date
	UpsertSupply(ctx context.Context, supply domain.Supply) error

	// CreateOrder persists a new pending order
	CreateOrder(ctx context.Context, order domain.Order) error

	// PendingOrdersForDate returns pending orders requesting the given date
	PendingOrdersForDate(ctx context.Context, date time.Time) ([]domain.Order, error)

	// CustomerByID returns a single customer, nil when unknown
	CustomerByID(ctx context.Context, id string) (*domain.Customer, error)

	// CustomersByID resolves customers in bulk; unknown IDs are absent from the map
	CustomersByID(ctx context.Context, ids []string) (map[string]domain.Customer, error)

	// OrdersByID resolves orders in bulk; unknown IDs are absent from the map
	OrdersByID(ctx context.Context, ids []string) (map[string]domain.Order, error)

	// WaitingCounts returns per customer ID how many waitlist entries are waiting
	WaitingCounts(ctx context.Context) (map[string]int, error)

	// WaitingEntries returns all waitlist entries still in waiting status
	WaitingEntries(ctx context.Context) ([]domain.WaitlistEntry, error)

	// ApplyRun commits every mutation of one engine run atomically
	ApplyRun(ctx context.Context, m domain.RunMutations) error
}
