package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chickflow/allocator/internal/core/domain"
	"github.com/chickflow/allocator/internal/port"
)

type fakeStore struct {
	supply        *domain.Supply
	supplyErr     error
	pending       []domain.Order
	customers     map[string]domain.Customer
	waitingCounts map[string]int
	waiting       []domain.WaitlistEntry
	orders        map[string]domain.Order

	applied  []domain.RunMutations
	applyErr error
	created  []domain.Order
	upserted []domain.Supply
}

func (s *fakeStore) SupplyForDate(_ context.Context, _ time.Time) (*domain.Supply, error) {
	return s.supply, s.supplyErr
}

func (s *fakeStore) UpsertSupply(_ context.Context, supply domain.Supply) error {
	s.upserted = append(s.upserted, supply)
	return nil
}

func (s *fakeStore) CreateOrder(_ context.Context, order domain.Order) error {
	s.created = append(s.created, order)
	return nil
}

func (s *fakeStore) PendingOrdersForDate(_ context.Context, _ time.Time) ([]domain.Order, error) {
	return s.pending, nil
}

func (s *fakeStore) CustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *fakeStore) CustomersByID(_ context.Context, ids []string) (map[string]domain.Customer, error) {
	out := make(map[string]domain.Customer)
	for _, id := range ids {
		if c, ok := s.customers[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (s *fakeStore) OrdersByID(_ context.Context, ids []string) (map[string]domain.Order, error) {
	out := make(map[string]domain.Order)
	for _, id := range ids {
		if o, ok := s.orders[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func (s *fakeStore) WaitingCounts(_ context.Context) (map[string]int, error) {
	if s.waitingCounts == nil {
		return map[string]int{}, nil
	}
	return s.waitingCounts, nil
}

func (s *fakeStore) WaitingEntries(_ context.Context) ([]domain.WaitlistEntry, error) {
	return s.waiting, nil
}

func (s *fakeStore) ApplyRun(_ context.Context, m domain.RunMutations) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = append(s.applied, m)
	return nil
}

type fakeLocker struct {
	deny      bool
	acquired  int
	released  int
	remaining map[string]int
}

func (l *fakeLocker) AcquireRunLock(_ context.Context, _ time.Time) (bool, error) {
	l.acquired++
	if l.deny {
		return false, nil
	}
	return true, nil
}

func (l *fakeLocker) ReleaseRunLock(_ context.Context, _ time.Time) error {
	l.released++
	return nil
}

func (l *fakeLocker) SetRemaining(_ context.Context, date time.Time, qty int) error {
	if l.remaining == nil {
		l.remaining = make(map[string]int)
	}
	l.remaining[date.Format(time.DateOnly)] = qty
	return nil
}

func newTestEngine(store port.Store, locker port.RunLocker) *AllocationEngine {
	e := NewAllocationEngine(store, locker, EngineConfig{
		MaxPerCustomer:     1000,
		PickupDeadlineHour: 14,
		WaitingPeriodDays:  7,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = fixedClock
	e.scorer = NewScorer(fixedClock)
	e.alloc = NewAllocator(1000, 14, fixedClock)
	return e
}

func engCustomer(id string, tier domain.Tier) domain.Customer {
	return domain.Customer{
		ID:       id,
		FarmName: "Farm " + id,
		Phone:    "+254700" + id,
		Tier:     tier,
		Active:   true,
	}
}

func engOrder(id, customerID string, qty int) domain.Order {
	return domain.Order{
		ID:            id,
		OrderNumber:   "ORD-" + id,
		CustomerID:    customerID,
		Quantity:      qty,
		Status:        domain.OrderStatusPending,
		OrderedAt:     testNow,
		RequestedDate: testDate,
	}
}

func TestAllocateForDate_NoSupplyIsHardStop(t *testing.T) {
	store := &fakeStore{}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	_, err := e.AllocateForDate(context.Background(), testDate)

	require.ErrorIs(t, err, ErrNoSupplyForDate)
	assert.Empty(t, store.applied)
	assert.Equal(t, 1, locker.released, "lock must be released on failure")
}

func TestAllocateForDate_ConcurrentRunDenied(t *testing.T) {
	store := &fakeStore{supply: &domain.Supply{Date: testDate, Expected: 100}}
	locker := &fakeLocker{deny: true}
	e := newTestEngine(store, locker)

	_, err := e.AllocateForDate(context.Background(), testDate)

	require.ErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 0, locker.released)
}

func TestAllocateForDate_NoPendingOrders(t *testing.T) {
	store := &fakeStore{supply: &domain.Supply{Date: testDate, Expected: 200}}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.AllocateForDate(context.Background(), testDate)

	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalOrders)
	assert.Equal(t, 200, summary.Remaining)
	assert.Empty(t, store.applied)
}

func TestAllocateForDate_EndToEnd(t *testing.T) {
	store := &fakeStore{
		supply: &domain.Supply{Date: testDate, Expected: 150},
		customers: map[string]domain.Customer{
			"c": engCustomer("c", domain.TierContract),
			"l": engCustomer("l", domain.TierLoyal),
			"n": engCustomer("n", domain.TierNew),
		},
		pending: []domain.Order{
			engOrder("o-c", "c", 100),
			engOrder("o-l", "l", 80),
			engOrder("o-n", "n", 50),
		},
	}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.AllocateForDate(context.Background(), testDate)

	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalOrders)
	require.Len(t, summary.Allocated, 2)
	require.Len(t, summary.Waitlisted, 1)
	assert.Equal(t, "o-c", summary.Allocated[0].ID)
	assert.Equal(t, "o-n", summary.Allocated[1].ID)
	assert.Equal(t, "o-l", summary.Waitlisted[0].ID)
	assert.Equal(t, 0, summary.Remaining)

	require.Len(t, store.applied, 1)
	m := store.applied[0]
	assert.Len(t, m.Orders, 3)
	assert.Len(t, m.Allocations, 2)
	assert.Len(t, m.NewWaitlist, 1)
	assert.Len(t, m.CustomerFulfilledAt, 2)
	require.NotNil(t, m.SupplyAllocated)
	require.NotNil(t, m.SupplyRemaining)
	assert.Equal(t, 150, *m.SupplyAllocated)
	assert.Equal(t, 0, *m.SupplyRemaining)

	// One SMS intent per outcome, no emails on file.
	require.Len(t, summary.Intents, 3)
	var waitlistMsg string
	for _, intent := range summary.Intents {
		assert.Equal(t, domain.ChannelSMS, intent.Channel)
		if strings.Contains(intent.Message, "prioritized") {
			waitlistMsg = intent.Message
		}
	}
	assert.Contains(t, waitlistMsg, "Farm l")

	assert.Equal(t, 0, locker.remaining[testDate.Format(time.DateOnly)])
}

func TestAllocateForDate_ActualSupplyOverridesExpected(t *testing.T) {
	actual := 40
	store := &fakeStore{
		supply: &domain.Supply{Date: testDate, Expected: 500, Actual: &actual},
		customers: map[string]domain.Customer{
			"c": engCustomer("c", domain.TierContract),
		},
		pending: []domain.Order{engOrder("o-c", "c", 100)},
	}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.AllocateForDate(context.Background(), testDate)

	require.NoError(t, err)
	assert.Empty(t, summary.Allocated)
	require.Len(t, summary.Waitlisted, 1)
	assert.Equal(t, 40, summary.Remaining)
}

func TestAllocateForDate_SkipsOrderWithoutCustomer(t *testing.T) {
	store := &fakeStore{
		supply: &domain.Supply{Date: testDate, Expected: 100},
		customers: map[string]domain.Customer{
			"c": engCustomer("c", domain.TierContract),
		},
		pending: []domain.Order{
			engOrder("o-ghost", "ghost", 50),
			engOrder("o-c", "c", 60),
		},
	}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.AllocateForDate(context.Background(), testDate)

	require.NoError(t, err)
	require.Len(t, summary.Allocated, 1)
	assert.Equal(t, "o-c", summary.Allocated[0].ID)
	require.Len(t, store.applied, 1)
	assert.Len(t, store.applied[0].Orders, 1)
}

func TestAllocateForDate_WaitlistHistoryBoostsPriority(t *testing.T) {
	store := &fakeStore{
		supply: &domain.Supply{Date: testDate, Expected: 40},
		customers: map[string]domain.Customer{
			"l1": engCustomer("l1", domain.TierLoyal),
			"l2": engCustomer("l2", domain.TierLoyal),
		},
		pending: []domain.Order{
			engOrder("o-l1", "l1", 40),
			engOrder("o-l2", "l2", 40),
		},
		waitingCounts: map[string]int{"l2": 2},
	}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.AllocateForDate(context.Background(), testDate)

	require.NoError(t, err)
	require.Len(t, summary.Allocated, 1)
	assert.Equal(t, "o-l2", summary.Allocated[0].ID, "customer with waitlist history wins the tie")
}

func TestAllocateForDate_CommitFailurePropagates(t *testing.T) {
	store := &fakeStore{
		supply: &domain.Supply{Date: testDate, Expected: 100},
		customers: map[string]domain.Customer{
			"c": engCustomer("c", domain.TierContract),
		},
		pending:  []domain.Order{engOrder("o-c", "c", 50)},
		applyErr: errors.New("deadlock detected"),
	}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	_, err := e.AllocateForDate(context.Background(), testDate)

	require.ErrorContains(t, err, "commit allocation run")
	assert.Equal(t, 1, locker.released)
}

func waitingEntry(id, orderID, customerID string, qty int, score float64, added time.Time) domain.WaitlistEntry {
	return domain.WaitlistEntry{
		ID:            id,
		OrderID:       orderID,
		CustomerID:    customerID,
		RequestedQty:  qty,
		PriorityScore: score,
		AddedAt:       added,
		TargetDate:    testDate,
		Status:        domain.WaitlistStatusWaiting,
	}
}

func waitlistedOrder(id, customerID string, qty int) domain.Order {
	o := engOrder(id, customerID, qty)
	o.Status = domain.OrderStatusWaitlisted
	return o
}

func TestFulfillWaitlist_HigherScoreFirst(t *testing.T) {
	store := &fakeStore{
		supply: &domain.Supply{Date: testDate, Expected: 100, Remaining: 30},
		waiting: []domain.WaitlistEntry{
			waitingEntry("w1", "o1", "c1", 20, 50, testNow.Add(-2*time.Hour)),
			waitingEntry("w2", "o2", "c2", 20, 90, testNow.Add(-time.Hour)),
		},
		orders: map[string]domain.Order{
			"o1": waitlistedOrder("o1", "c1", 20),
			"o2": waitlistedOrder("o2", "c2", 20),
		},
		customers: map[string]domain.Customer{
			"c1": engCustomer("c1", domain.TierLoyal),
			"c2": engCustomer("c2", domain.TierLoyal),
		},
	}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.FulfillWaitlist(context.Background(), testDate)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fulfilled)
	assert.Equal(t, 1, summary.StillWaiting)

	require.Len(t, store.applied, 1)
	m := store.applied[0]
	require.Len(t, m.ResolvedWaitlist, 1)
	assert.Equal(t, "w2", m.ResolvedWaitlist[0].ID)
	assert.Equal(t, domain.WaitlistStatusFulfilled, m.ResolvedWaitlist[0].Status)
	require.NotNil(t, m.ResolvedWaitlist[0].FulfilledOn)
	assert.Equal(t, testDate, *m.ResolvedWaitlist[0].FulfilledOn)
	assert.Nil(t, m.SupplyAllocated, "fulfillment only draws down remaining")
	require.NotNil(t, m.SupplyRemaining)
	assert.Equal(t, 10, *m.SupplyRemaining)

	require.Len(t, m.Orders, 1)
	assert.Equal(t, domain.OrderStatusAllocated, m.Orders[0].Status)
	assert.Equal(t, 20, m.Orders[0].AllocatedQty)
}

func TestFulfillWaitlist_TieBreaksByOldestEntry(t *testing.T) {
	store := &fakeStore{
		supply: &domain.Supply{Date: testDate, Expected: 100, Remaining: 20},
		waiting: []domain.WaitlistEntry{
			// Listed newest first on purpose: the engine must sort.
			waitingEntry("w-new", "o-new", "c2", 20, 75, testNow.Add(-time.Hour)),
			waitingEntry("w-old", "o-old", "c1", 20, 75, testNow.Add(-48*time.Hour)),
		},
		orders: map[string]domain.Order{
			"o-new": waitlistedOrder("o-new", "c2", 20),
			"o-old": waitlistedOrder("o-old", "c1", 20),
		},
		customers: map[string]domain.Customer{
			"c1": engCustomer("c1", domain.TierNew),
			"c2": engCustomer("c2", domain.TierNew),
		},
	}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.FulfillWaitlist(context.Background(), testDate)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fulfilled)
	require.Len(t, store.applied, 1)
	assert.Equal(t, "w-old", store.applied[0].ResolvedWaitlist[0].ID)
}

func TestFulfillWaitlist_NoSupplyIsNormalOutcome(t *testing.T) {
	store := &fakeStore{
		waiting: []domain.WaitlistEntry{
			waitingEntry("w1", "o1", "c1", 20, 50, testNow),
			waitingEntry("w2", "o2", "c2", 20, 60, testNow),
		},
	}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.FulfillWaitlist(context.Background(), testDate)

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Fulfilled)
	assert.Equal(t, 2, summary.StillWaiting)
	assert.Empty(t, store.applied)
}

func TestFulfillWaitlist_ZeroRemainingIsNormalOutcome(t *testing.T) {
	store := &fakeStore{
		supply:  &domain.Supply{Date: testDate, Expected: 100, Remaining: 0},
		waiting: []domain.WaitlistEntry{waitingEntry("w1", "o1", "c1", 20, 50, testNow)},
	}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.FulfillWaitlist(context.Background(), testDate)

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Fulfilled)
	assert.Equal(t, 1, summary.StillWaiting)
	assert.Empty(t, store.applied)
}

func TestFulfillWaitlist_EmptyWaitlist(t *testing.T) {
	store := &fakeStore{supply: &domain.Supply{Date: testDate, Expected: 100, Remaining: 50}}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.FulfillWaitlist(context.Background(), testDate)

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Fulfilled)
	assert.Equal(t, 0, summary.StillWaiting)
	assert.Empty(t, store.applied)
}

func TestFulfillWaitlist_OversizedEntryStaysWaiting(t *testing.T) {
	store := &fakeStore{
		supply: &domain.Supply{Date: testDate, Expected: 200, Remaining: 30},
		waiting: []domain.WaitlistEntry{
			waitingEntry("w-big", "o-big", "c1", 100, 200, testNow.Add(-time.Hour)),
			waitingEntry("w-small", "o-small", "c2", 20, 40, testNow),
		},
		orders: map[string]domain.Order{
			"o-big":   waitlistedOrder("o-big", "c1", 100),
			"o-small": waitlistedOrder("o-small", "c2", 20),
		},
		customers: map[string]domain.Customer{
			"c1": engCustomer("c1", domain.TierContract),
			"c2": engCustomer("c2", domain.TierNew),
		},
	}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.FulfillWaitlist(context.Background(), testDate)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fulfilled)
	assert.Equal(t, 1, summary.StillWaiting)
	require.Len(t, store.applied, 1)
	assert.Equal(t, "w-small", store.applied[0].ResolvedWaitlist[0].ID)
	assert.Equal(t, 10, *store.applied[0].SupplyRemaining)
}

func TestFulfillWaitlist_CapAppliesToRequestedQty(t *testing.T) {
	store := &fakeStore{
		supply:  &domain.Supply{Date: testDate, Expected: 2000, Remaining: 1000},
		waiting: []domain.WaitlistEntry{waitingEntry("w1", "o1", "c1", 1500, 80, testNow)},
		orders: map[string]domain.Order{
			"o1": waitlistedOrder("o1", "c1", 1500),
		},
		customers: map[string]domain.Customer{
			"c1": engCustomer("c1", domain.TierContract),
		},
	}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	summary, err := e.FulfillWaitlist(context.Background(), testDate)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Fulfilled)
	require.Len(t, store.applied, 1)
	assert.Equal(t, 1000, store.applied[0].Orders[0].AllocatedQty)
	assert.Equal(t, 0, *store.applied[0].SupplyRemaining)
}

func TestSubmitOrder(t *testing.T) {
	c := engCustomer("c1", domain.TierLoyal)
	c.Email = "farm@chickflow.example"
	store := &fakeStore{customers: map[string]domain.Customer{"c1": c}}
	e := newTestEngine(store, &fakeLocker{})

	order, intents, err := e.SubmitOrder(context.Background(), "c1", 120, testDate, 1, "")

	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-20260310-"), order.OrderNumber)
	assert.Equal(t, 120, order.Quantity)

	require.Len(t, intents, 2) // sms + email
	assert.Equal(t, domain.ChannelSMS, intents[0].Channel)
	assert.Equal(t, domain.ChannelEmail, intents[1].Channel)
	assert.Contains(t, intents[0].Message, order.OrderNumber)
}

func TestSubmitOrder_UnknownCustomer(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(store, &fakeLocker{})

	_, _, err := e.SubmitOrder(context.Background(), "nobody", 10, testDate, 0, "")

	require.ErrorIs(t, err, ErrUnknownCustomer)
	assert.Empty(t, store.created)
}

func TestRecordSupply(t *testing.T) {
	store := &fakeStore{}
	locker := &fakeLocker{}
	e := newTestEngine(store, locker)

	actual := 180
	supply, err := e.RecordSupply(context.Background(), testDate, 200, &actual, "second truck delayed")

	require.NoError(t, err)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, 180, supply.Available())
	assert.Equal(t, 180, supply.Remaining)
	assert.Equal(t, 180, locker.remaining[testDate.Format(time.DateOnly)])
}
