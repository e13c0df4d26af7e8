package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chickflow/allocator/internal/core/domain"
)

// MySQLStore is the system of record for customers, orders, inventory,
// allocations and waitlist entries.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) SupplyForDate(ctx context.Context, date time.Time) (*domain.Supply, error) {
	var (
		sup      domain.Supply
		actual   sql.NullInt64
		notes    sql.NullString
		remained sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, date, expected, actual, allocated, remaining, status, notes, created_at, updated_at
		FROM inventory WHERE date = ?`, date,
	).Scan(&sup.ID, &sup.Date, &sup.Expected, &actual, &sup.Allocated, &remained,
		&sup.Status, &notes, &sup.CreatedAt, &sup.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	if actual.Valid {
		v := int(actual.Int64)
		sup.Actual = &v
	}
	if remained.Valid {
		sup.Remaining = int(remained.Int64)
	}
	sup.Notes = notes.String
	return &sup, nil
}

func (s *MySQLStore) UpsertSupply(ctx context.Context, supply domain.Supply) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (id, date, expected, actual, allocated, remaining, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			expected = VALUES(expected), actual = VALUES(actual),
			allocated = VALUES(allocated), remaining = VALUES(remaining),
			status = VALUES(status), notes = VALUES(notes), updated_at = VALUES(updated_at)`,
		supply.ID, supply.Date, supply.Expected, intPtrArg(supply.Actual),
		supply.Allocated, supply.Remaining, supply.Status, supply.Notes,
		supply.CreatedAt, supply.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

func (s *MySQLStore) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, customer_id, quantity, status, priority_level,
			ordered_at, requested_date, delivery_date, notes, allocated_qty, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.OrderNumber, order.CustomerID, order.Quantity, order.Status,
		order.PriorityLevel, order.OrderedAt, order.RequestedDate, timePtrArg(order.DeliveryDate),
		order.Notes, order.AllocatedQty, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *MySQLStore) PendingOrdersForDate(ctx context.Context, date time.Time) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_number, customer_id, quantity, status, priority_level,
			ordered_at, requested_date, delivery_date, notes, allocated_qty, created_at, updated_at
		FROM orders
		WHERE requested_date = ? AND status = ?
		ORDER BY ordered_at ASC`, date, domain.OrderStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *MySQLStore) CustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	customers, err := s.CustomersByID(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	c, ok := customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MySQLStore) CustomersByID(ctx context.Context, ids []string) (map[string]domain.Customer, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return map[string]domain.Customer{}, nil
	}

	query := fmt.Sprintf(`
		SELECT id, farm_name, phone, email, zone, tier, last_fulfilled_at, is_active, created_at, updated_at
		FROM customers WHERE id IN (%s)`, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	customers := make(map[string]domain.Customer, len(ids))
	for rows.Next() {
		var (
			c             domain.Customer
			email, zone   sql.NullString
			lastFulfilled sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.FarmName, &c.Phone, &email, &zone, &c.Tier,
			&lastFulfilled, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		c.Email = email.String
		c.Zone = zone.String
		if lastFulfilled.Valid {
			t := lastFulfilled.Time
			c.LastFulfilledAt = &t
		}
		customers[c.ID] = c
	}
	return customers, rows.Err()
}

func (s *MySQLStore) OrdersByID(ctx context.Context, ids []string) (map[string]domain.Order, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return map[string]domain.Order{}, nil
	}

	query := fmt.Sprintf(`
		SELECT id, order_number, customer_id, quantity, status, priority_level,
			ordered_at, requested_date, delivery_date, notes, allocated_qty, created_at, updated_at
		FROM orders WHERE id IN (%s)`, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make(map[string]domain.Order, len(ids))
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders[order.ID] = order
	}
	return orders, rows.Err()
}

func (s *MySQLStore) WaitingCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, COUNT(*) FROM waitlist WHERE status = ? GROUP BY customer_id`,
		domain.WaitlistStatusWaiting,
	)
	if err != nil {
		return nil, fmt.Errorf("query waitlist counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var customerID string
		var n int
		if err := rows.Scan(&customerID, &n); err != nil {
			return nil, fmt.Errorf("scan waitlist count: %w", err)
		}
		counts[customerID] = n
	}
	return counts, rows.Err()
}

func (s *MySQLStore) WaitingEntries(ctx context.Context) ([]domain.WaitlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, customer_id, requested_qty, priority_score, added_at,
			target_date, fulfilled_on, status, created_at, updated_at
		FROM waitlist
		WHERE status = ?
		ORDER BY priority_score DESC, added_at ASC`, domain.WaitlistStatusWaiting,
	)
	if err != nil {
		return nil, fmt.Errorf("query waitlist: %w", err)
	}
	defer rows.Close()

	var entries []domain.WaitlistEntry
	for rows.Next() {
		var (
			en          domain.WaitlistEntry
			fulfilledOn sql.NullTime
		)
		if err := rows.Scan(&en.ID, &en.OrderID, &en.CustomerID, &en.RequestedQty,
			&en.PriorityScore, &en.AddedAt, &en.TargetDate, &fulfilledOn,
			&en.Status, &en.CreatedAt, &en.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		if fulfilledOn.Valid {
			t := fulfilledOn.Time
			en.FulfilledOn = &t
		}
		entries = append(entries, en)
	}
	return entries, rows.Err()
}

// ApplyRun commits every mutation of one engine run in a single transaction.
// Any failure rolls back all of it; no customer, order or supply counter is
// left half-updated.
func (s *MySQLStore) ApplyRun(ctx context.Context, m domain.RunMutations) error {
	if m.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, order := range m.Orders {
		_, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = ?, allocated_qty = ?, delivery_date = ?, updated_at = ?
			WHERE id = ?`,
			order.Status, order.AllocatedQty, timePtrArg(order.DeliveryDate), order.UpdatedAt, order.ID,
		)
		if err != nil {
			return fmt.Errorf("update order %s: %w", order.ID, err)
		}
	}

	for _, alloc := range m.Allocations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO allocations (id, order_id, customer_id, date, quantity, status,
				pickup_deadline, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			alloc.ID, alloc.OrderID, alloc.CustomerID, alloc.Date, alloc.Quantity,
			alloc.Status, alloc.PickupDeadline, alloc.CreatedAt, alloc.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert allocation for order %s: %w", alloc.OrderID, err)
		}
	}

	for _, en := range m.NewWaitlist {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO waitlist (id, order_id, customer_id, requested_qty, priority_score,
				added_at, target_date, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			en.ID, en.OrderID, en.CustomerID, en.RequestedQty, en.PriorityScore,
			en.AddedAt, en.TargetDate, en.Status, en.CreatedAt, en.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert waitlist entry for order %s: %w", en.OrderID, err)
		}
	}

	for _, en := range m.ResolvedWaitlist {
		_, err := tx.ExecContext(ctx, `
			UPDATE waitlist SET status = ?, fulfilled_on = ?, updated_at = ? WHERE id = ?`,
			en.Status, timePtrArg(en.FulfilledOn), en.UpdatedAt, en.ID,
		)
		if err != nil {
			return fmt.Errorf("update waitlist entry %s: %w", en.ID, err)
		}
	}

	for customerID, fulfilledAt := range m.CustomerFulfilledAt {
		_, err := tx.ExecContext(ctx, `
			UPDATE customers SET last_fulfilled_at = ?, updated_at = ? WHERE id = ?`,
			fulfilledAt, fulfilledAt, customerID,
		)
		if err != nil {
			return fmt.Errorf("update customer %s: %w", customerID, err)
		}
	}

	if m.SupplyAllocated != nil || m.SupplyRemaining != nil {
		result, err := tx.ExecContext(ctx, `
			UPDATE inventory
			SET allocated = COALESCE(?, allocated), remaining = COALESCE(?, remaining), updated_at = NOW()
			WHERE date = ?`,
			intPtrArg(m.SupplyAllocated), intPtrArg(m.SupplyRemaining), m.Date,
		)
		if err != nil {
			return fmt.Errorf("update inventory: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("update inventory: no row for %s", m.Date.Format(time.DateOnly))
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(rows rowScanner) (domain.Order, error) {
	var (
		order        domain.Order
		deliveryDate sql.NullTime
		notes        sql.NullString
	)
	err := rows.Scan(&order.ID, &order.OrderNumber, &order.CustomerID, &order.Quantity,
		&order.Status, &order.PriorityLevel, &order.OrderedAt, &order.RequestedDate,
		&deliveryDate, &notes, &order.AllocatedQty, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	if deliveryDate.Valid {
		t := deliveryDate.Time
		order.DeliveryDate = &t
	}
	order.Notes = notes.String
	return order, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func intPtrArg(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func timePtrArg(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}
