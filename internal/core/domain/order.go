package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusAllocated  OrderStatus = "allocated"
	OrderStatusWaitlisted OrderStatus = "waitlisted"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type Order struct {
	ID            string
	OrderNumber   string
	CustomerID    string
	Quantity      int
	Status        OrderStatus
	PriorityLevel int
	OrderedAt     time.Time // submission timestamp
	RequestedDate time.Time // calendar date the customer wants delivery
	DeliveryDate  *time.Time
	Notes         string
	AllocatedQty  int // set only once allocated
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// PriorityScore is recomputed on every allocation run and never persisted.
	PriorityScore float64
}
