package service

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/chickflow/allocator/internal/core/domain"
)

// ScoredOrder pairs an order (with its computed score) and its customer for
// one allocation run.
type ScoredOrder struct {
	Order    domain.Order
	Customer domain.Customer
}

// AllocationResult is the outcome of one tiered allocation pass.
type AllocationResult struct {
	Allocated           []domain.Order
	Waitlisted          []domain.Order
	Allocations         []domain.Allocation
	WaitlistEntries     []domain.WaitlistEntry
	CustomerFulfilledAt map[string]time.Time
	Remaining           int
}

// Allocator fills orders greedily from available supply, tier by tier.
type Allocator struct {
	maxPerCustomer int
	pickupHour     int
	now            func() time.Time
	newID          func() string
}

func NewAllocator(maxPerCustomer, pickupDeadlineHour int, now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{
		maxPerCustomer: maxPerCustomer,
		pickupHour:     pickupDeadlineHour,
		now:            now,
		newID:          uuid.NewString,
	}
}

// Allocate partitions orders by tier, sorts each tier by score descending
// (ties keep their original order), then fills Contract, Loyal, New in that
// fixed sequence. The policy is strictly greedy with no backtracking: an
// order either fits in the remaining supply in full (up to the per-customer
// cap) or rides the waitlist with nothing. Large orders can strand supply a
// smaller lower-scored order could have used; that trade-off is intentional.
func (a *Allocator) Allocate(orders []ScoredOrder, supply int, date time.Time) AllocationResult {
	res := AllocationResult{
		Remaining:           supply,
		CustomerFulfilledAt: make(map[string]time.Time),
	}

	var contract, loyal, newcomer, unranked []ScoredOrder
	for _, so := range orders {
		switch so.Customer.Tier {
		case domain.TierContract:
			contract = append(contract, so)
		case domain.TierLoyal:
			loyal = append(loyal, so)
		case domain.TierNew:
			newcomer = append(newcomer, so)
		default:
			// Unknown tiers rank below New and keep submission order.
			unranked = append(unranked, so)
		}
	}

	sortByScore(contract)
	sortByScore(loyal)
	sortByScore(newcomer)

	now := a.now()
	for _, bucket := range [][]ScoredOrder{contract, loyal, newcomer, unranked} {
		for _, so := range bucket {
			a.fill(&res, so.Order, date, now)
		}
	}

	return res
}

// Record builds the allocation record for a filled order. Shared with the
// waitlist fulfillment pass.
func (a *Allocator) Record(order domain.Order, qty int, date, now time.Time) domain.Allocation {
	day := dateOf(date)
	return domain.Allocation{
		ID:             a.newID(),
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		Date:           day,
		Quantity:       qty,
		Status:         domain.AllocationStatusPending,
		PickupDeadline: day.Add(time.Duration(a.pickupHour) * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Cap returns the per-order quantity ceiling applied on every fill.
func (a *Allocator) Cap(requested int) int {
	return min(requested, a.maxPerCustomer)
}

func (a *Allocator) fill(res *AllocationResult, order domain.Order, date, now time.Time) {
	qty := a.Cap(order.Quantity)
	day := dateOf(date)

	if res.Remaining >= qty {
		order.Status = domain.OrderStatusAllocated
		order.AllocatedQty = qty
		order.DeliveryDate = &day
		order.UpdatedAt = now
		res.Remaining -= qty
		res.Allocated = append(res.Allocated, order)
		res.Allocations = append(res.Allocations, a.Record(order, qty, day, now))
		res.CustomerFulfilledAt[order.CustomerID] = now
		return
	}

	// No partial fills: the whole requested quantity rides the waitlist.
	order.Status = domain.OrderStatusWaitlisted
	order.AllocatedQty = 0
	order.UpdatedAt = now
	res.Waitlisted = append(res.Waitlisted, order)
	res.WaitlistEntries = append(res.WaitlistEntries, domain.WaitlistEntry{
		ID:            a.newID(),
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		RequestedQty:  order.Quantity,
		PriorityScore: order.PriorityScore,
		AddedAt:       now,
		TargetDate:    day.AddDate(0, 0, 1),
		Status:        domain.WaitlistStatusWaiting,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func sortByScore(bucket []ScoredOrder) {
	sort.SliceStable(bucket, func(i, j int) bool {
		return bucket[i].Order.PriorityScore > bucket[j].Order.PriorityScore
	})
}
