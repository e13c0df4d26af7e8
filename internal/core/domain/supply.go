package domain

import "time"

type SupplyStatus string

const (
	SupplyStatusPending   SupplyStatus = "pending"
	SupplyStatusConfirmed SupplyStatus = "confirmed"
	SupplyStatusDelivered SupplyStatus = "delivered"
)

// Supply is the hatchery inventory for one calendar date.
type Supply struct {
	ID        string
	Date      time.Time
	Expected  int
	Actual    *int // overrides Expected once the truck is counted
	Allocated int
	Remaining int
	Status    SupplyStatus
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available returns the quantity an allocation run may hand out.
func (s Supply) Available() int {
	if s.Actual != nil {
		return *s.Actual
	}
	return s.Expected
}
