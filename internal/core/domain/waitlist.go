package domain

import "time"

type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "waiting"
	WaitlistStatusFulfilled WaitlistStatus = "fulfilled"
	WaitlistStatusCancelled WaitlistStatus = "cancelled"
)

// WaitlistEntry carries an unfilled order forward to future supply.
// Entries are append-and-transition only; fulfilled and cancelled are
// terminal states.
type WaitlistEntry struct {
	ID            string
	OrderID       string
	CustomerID    string
	RequestedQty  int
	PriorityScore float64 // snapshot at waitlist time
	AddedAt       time.Time
	TargetDate    time.Time // one day after the failed allocation date
	FulfilledOn   *time.Time
	Status        WaitlistStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
