package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chickflow/allocator/internal/core/domain"
	"github.com/chickflow/allocator/internal/port"
)

var (
	ErrNoSupplyForDate = errors.New("no inventory for date")
	ErrRunInProgress   = errors.New("allocation run already in progress for date")
	ErrUnknownCustomer = errors.New("unknown customer")
)

// EngineConfig is the business-rule surface of the engine.
type EngineConfig struct {
	MaxPerCustomer     int
	PickupDeadlineHour int
	// WaitingPeriodDays is reserved for a future waitlist expiry policy;
	// no current allocation logic reads it.
	WaitingPeriodDays int
}

// RunSummary is what one allocation run hands back to the caller, who is
// responsible for dispatching the notification intents.
type RunSummary struct {
	Date        time.Time
	TotalOrders int
	Allocated   []domain.Order
	Waitlisted  []domain.Order
	Remaining   int
	Intents     []domain.NotificationIntent
}

// FulfillmentSummary is the outcome of one waitlist fulfillment pass.
type FulfillmentSummary struct {
	Date         time.Time
	Fulfilled    int
	StillWaiting int
	Intents      []domain.NotificationIntent
}

// AllocationEngine evaluates one date's pending orders against that date's
// supply. A run is a single logical transaction: the engine computes the
// whole outcome in memory and commits every mutation through one ApplyRun
// call. Concurrent runs for the same date are serialized by a per-date lock.
type AllocationEngine struct {
	store  port.Store
	locker port.RunLocker
	cfg    EngineConfig
	logger *slog.Logger
	scorer *Scorer
	alloc  *Allocator
	now    func() time.Time
}

func NewAllocationEngine(store port.Store, locker port.RunLocker, cfg EngineConfig, logger *slog.Logger) *AllocationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &AllocationEngine{
		store:  store,
		locker: locker,
		cfg:    cfg,
		logger: logger,
		scorer: NewScorer(nil),
		alloc:  NewAllocator(cfg.MaxPerCustomer, cfg.PickupDeadlineHour, nil),
		now:    time.Now,
	}
}

// AllocateForDate runs the tiered allocation for one date. A missing
// inventory row is a hard stop; an order whose customer record cannot be
// resolved is logged and skipped without aborting the run.
func (e *AllocationEngine) AllocateForDate(ctx context.Context, date time.Time) (*RunSummary, error) {
	day := dateOf(date)

	ok, err := e.locker.AcquireRunLock(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer e.releaseLock(ctx, day)

	supply, err := e.store.SupplyForDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load supply: %w", err)
	}
	if supply == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSupplyForDate, day.Format(time.DateOnly))
	}
	available := supply.Available()

	orders, err := e.store.PendingOrdersForDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load pending orders: %w", err)
	}
	if len(orders) == 0 {
		return &RunSummary{Date: day, Remaining: available}, nil
	}

	customerIDs := make([]string, 0, len(orders))
	for _, o := range orders {
		customerIDs = append(customerIDs, o.CustomerID)
	}
	customers, err := e.store.CustomersByID(ctx, customerIDs)
	if err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}

	waiting, err := e.store.WaitingCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load waitlist counts: %w", err)
	}

	scored := make([]ScoredOrder, 0, len(orders))
	for _, o := range orders {
		c, ok := customers[o.CustomerID]
		if !ok {
			// One bad order must not block legitimate allocations.
			e.logger.Warn("skipping order without customer",
				"order", o.OrderNumber, "customer_id", o.CustomerID)
			continue
		}
		o.PriorityScore = e.scorer.Score(o, c, waiting[c.ID])
		scored = append(scored, ScoredOrder{Order: o, Customer: c})
	}

	res := e.alloc.Allocate(scored, available, day)

	allocated := available - res.Remaining
	remaining := res.Remaining
	mutations := domain.RunMutations{
		Date:                day,
		Orders:              append(append([]domain.Order{}, res.Allocated...), res.Waitlisted...),
		Allocations:         res.Allocations,
		NewWaitlist:         res.WaitlistEntries,
		CustomerFulfilledAt: res.CustomerFulfilledAt,
		SupplyAllocated:     &allocated,
		SupplyRemaining:     &remaining,
	}
	if err := e.store.ApplyRun(ctx, mutations); err != nil {
		return nil, fmt.Errorf("commit allocation run: %w", err)
	}

	if err := e.locker.SetRemaining(ctx, day, remaining); err != nil {
		e.logger.Warn("failed to mirror remaining supply", "date", day, "error", err)
	}

	intents := buildRunIntents(res, customers)

	e.logger.Info("allocation run complete",
		"date", day.Format(time.DateOnly),
		"orders", len(orders),
		"allocated", len(res.Allocated),
		"waitlisted", len(res.Waitlisted),
		"remaining", remaining)

	return &RunSummary{
		Date:        day,
		TotalOrders: len(orders),
		Allocated:   res.Allocated,
		Waitlisted:  res.Waitlisted,
		Remaining:   remaining,
		Intents:     intents,
	}, nil
}

// FulfillWaitlist consumes waiting entries against the date's remaining
// supply, highest score first, oldest entry first among equals. Missing or
// exhausted supply is a normal zero-fulfilled outcome, not an error. Entries
// that do not fit stay waiting for a future pass; this pass never creates
// new waitlist entries.
func (e *AllocationEngine) FulfillWaitlist(ctx context.Context, date time.Time) (*FulfillmentSummary, error) {
	day := dateOf(date)

	ok, err := e.locker.AcquireRunLock(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer e.releaseLock(ctx, day)

	entries, err := e.store.WaitingEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load waitlist: %w", err)
	}
	if len(entries) == 0 {
		return &FulfillmentSummary{Date: day}, nil
	}

	supply, err := e.store.SupplyForDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load supply: %w", err)
	}
	if supply == nil || supply.Remaining <= 0 {
		return &FulfillmentSummary{Date: day, StillWaiting: len(entries)}, nil
	}

	// Sorted here rather than trusting store ordering, so the fairness
	// tie-break holds regardless of backend.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].PriorityScore != entries[j].PriorityScore {
			return entries[i].PriorityScore > entries[j].PriorityScore
		}
		return entries[i].AddedAt.Before(entries[j].AddedAt)
	})

	orderIDs := make([]string, 0, len(entries))
	customerIDs := make([]string, 0, len(entries))
	for _, en := range entries {
		orderIDs = append(orderIDs, en.OrderID)
		customerIDs = append(customerIDs, en.CustomerID)
	}
	orders, err := e.store.OrdersByID(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load waitlisted orders: %w", err)
	}
	customers, err := e.store.CustomersByID(ctx, customerIDs)
	if err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}

	now := e.now()
	remaining := supply.Remaining
	mutations := domain.RunMutations{
		Date:                day,
		CustomerFulfilledAt: make(map[string]time.Time),
	}
	var intents []domain.NotificationIntent
	fulfilled := 0

	for _, entry := range entries {
		order, haveOrder := orders[entry.OrderID]
		customer, haveCustomer := customers[entry.CustomerID]
		if !haveOrder || !haveCustomer {
			e.logger.Warn("skipping waitlist entry with dangling references",
				"entry", entry.ID, "order_id", entry.OrderID, "customer_id", entry.CustomerID)
			continue
		}

		qty := e.alloc.Cap(entry.RequestedQty)
		if remaining < qty {
			continue // stays waiting, re-evaluated on a future run
		}

		remaining -= qty
		fulfilled++

		order.Status = domain.OrderStatusAllocated
		order.AllocatedQty = qty
		order.DeliveryDate = &day
		order.UpdatedAt = now

		entry.Status = domain.WaitlistStatusFulfilled
		entry.FulfilledOn = &day
		entry.UpdatedAt = now

		mutations.Orders = append(mutations.Orders, order)
		mutations.ResolvedWaitlist = append(mutations.ResolvedWaitlist, entry)
		mutations.Allocations = append(mutations.Allocations, e.alloc.Record(order, qty, day, now))
		mutations.CustomerFulfilledAt[customer.ID] = now

		intents = append(intents, fulfillmentIntents(customer, order, qty, day)...)
	}

	if fulfilled > 0 {
		mutations.SupplyRemaining = &remaining
		if err := e.store.ApplyRun(ctx, mutations); err != nil {
			return nil, fmt.Errorf("commit fulfillment run: %w", err)
		}
		if err := e.locker.SetRemaining(ctx, day, remaining); err != nil {
			e.logger.Warn("failed to mirror remaining supply", "date", day, "error", err)
		}
	}

	e.logger.Info("waitlist fulfillment complete",
		"date", day.Format(time.DateOnly),
		"fulfilled", fulfilled,
		"still_waiting", len(entries)-fulfilled)

	return &FulfillmentSummary{
		Date:         day,
		Fulfilled:    fulfilled,
		StillWaiting: len(entries) - fulfilled,
		Intents:      intents,
	}, nil
}

// SubmitOrder records a new pending order and returns it with the
// confirmation intents for the caller to dispatch.
func (e *AllocationEngine) SubmitOrder(ctx context.Context, customerID string, quantity int, requestedDate time.Time, priorityLevel int, notes string) (*domain.Order, []domain.NotificationIntent, error) {
	customer, err := e.store.CustomerByID(ctx, customerID)
	if err != nil {
		return nil, nil, fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownCustomer, customerID)
	}

	now := e.now()
	day := dateOf(requestedDate)
	order := domain.Order{
		ID:            uuid.NewString(),
		OrderNumber:   newOrderNumber(day),
		CustomerID:    customer.ID,
		Quantity:      quantity,
		Status:        domain.OrderStatusPending,
		PriorityLevel: priorityLevel,
		OrderedAt:     now,
		RequestedDate: day,
		Notes:         notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateOrder(ctx, order); err != nil {
		return nil, nil, fmt.Errorf("create order: %w", err)
	}

	return &order, confirmationIntents(*customer, order), nil
}

// RecordSupply creates or replaces the inventory row for a date ahead of an
// allocation run.
func (e *AllocationEngine) RecordSupply(ctx context.Context, date time.Time, expected int, actual *int, notes string) (*domain.Supply, error) {
	now := e.now()
	supply := domain.Supply{
		ID:        uuid.NewString(),
		Date:      dateOf(date),
		Expected:  expected,
		Actual:    actual,
		Status:    domain.SupplyStatusPending,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	supply.Remaining = supply.Available()

	if err := e.store.UpsertSupply(ctx, supply); err != nil {
		return nil, fmt.Errorf("upsert supply: %w", err)
	}
	if err := e.locker.SetRemaining(ctx, supply.Date, supply.Remaining); err != nil {
		e.logger.Warn("failed to mirror remaining supply", "date", supply.Date, "error", err)
	}
	return &supply, nil
}

func (e *AllocationEngine) releaseLock(ctx context.Context, day time.Time) {
	if err := e.locker.ReleaseRunLock(ctx, day); err != nil {
		e.logger.Warn("failed to release run lock", "date", day, "error", err)
	}
}

func newOrderNumber(day time.Time) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("ORD-%s-%s", day.Format("20060102"), suffix)
}
