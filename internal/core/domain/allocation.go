package domain

import "time"

type AllocationStatus string

const (
	AllocationStatusPending   AllocationStatus = "pending"
	AllocationStatusConfirmed AllocationStatus = "confirmed"
	AllocationStatusPickedUp  AllocationStatus = "picked_up"
	AllocationStatusCancelled AllocationStatus = "cancelled"
)

type Allocation struct {
	ID             string
	OrderID        string
	CustomerID     string
	Date           time.Time
	Quantity       int
	Status         AllocationStatus
	PickupDeadline time.Time
	PickupTime     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
