package domain

import "time"

// RunMutations is every persistent change produced by one engine run.
// The store commits all of it in a single transaction; a partial commit
// would leave supply counters inconsistent with allocated quantities.
type RunMutations struct {
	Date time.Time

	Orders           []Order         // status and allocated-qty updates
	Allocations      []Allocation    // new allocation records
	NewWaitlist      []WaitlistEntry // entries created this run
	ResolvedWaitlist []WaitlistEntry // entries flipped to fulfilled

	// CustomerFulfilledAt holds last-fulfilled advances keyed by customer ID.
	CustomerFulfilledAt map[string]time.Time

	// Supply counter updates. SupplyAllocated is nil on waitlist fulfillment
	// runs, which only draw down Remaining.
	SupplyAllocated *int
	SupplyRemaining *int
}

func (m RunMutations) Empty() bool {
	return len(m.Orders) == 0 &&
		len(m.Allocations) == 0 &&
		len(m.NewWaitlist) == 0 &&
		len(m.ResolvedWaitlist) == 0 &&
		m.SupplyAllocated == nil &&
		m.SupplyRemaining == nil
}
