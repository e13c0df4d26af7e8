package service

import (
	"fmt"
	"time"

	"github.com/chickflow/allocator/internal/core/domain"
)

// Notification text builders. The engine only produces intents; delivery
// happens behind the Notifier port after the run transaction commits.

func buildRunIntents(res AllocationResult, customers map[string]domain.Customer) []domain.NotificationIntent {
	intents := make([]domain.NotificationIntent, 0, len(res.Allocated)+len(res.Waitlisted))

	deadlines := make(map[string]time.Time, len(res.Allocations))
	for _, a := range res.Allocations {
		deadlines[a.OrderID] = a.PickupDeadline
	}

	for _, o := range res.Allocated {
		c, ok := customers[o.CustomerID]
		if !ok {
			continue
		}
		intents = append(intents, allocationIntents(c, o, deadlines[o.ID])...)
	}
	for _, o := range res.Waitlisted {
		c, ok := customers[o.CustomerID]
		if !ok {
			continue
		}
		intents = append(intents, waitlistIntents(c, o)...)
	}
	return intents
}

func confirmationIntents(c domain.Customer, o domain.Order) []domain.NotificationIntent {
	msg := fmt.Sprintf(
		"Hi %s, your order %s for %d chicks has been received. Requested delivery: %s. We'll notify you once allocated. - ChickFlow",
		c.FarmName, o.OrderNumber, o.Quantity, o.RequestedDate.Format(time.DateOnly))
	return withEmail(c, msg, fmt.Sprintf("Order Confirmation - %s", o.OrderNumber))
}

func allocationIntents(c domain.Customer, o domain.Order, deadline time.Time) []domain.NotificationIntent {
	msg := fmt.Sprintf(
		"Great news %s! %d chicks allocated for pickup today. Deadline: %s. Order: %s. - ChickFlow",
		c.FarmName, o.AllocatedQty, deadline.Format("3PM"), o.OrderNumber)
	return withEmail(c, msg, "Chicks Allocated - Ready for Pickup")
}

func waitlistIntents(c domain.Customer, o domain.Order) []domain.NotificationIntent {
	msg := fmt.Sprintf(
		"Hi %s, today's allocation is full. You're prioritized for the next batch. Order: %s. Thank you for your patience! - ChickFlow",
		c.FarmName, o.OrderNumber)
	return withEmail(c, msg, "Order Waitlisted - Priority for Next Batch")
}

func fulfillmentIntents(c domain.Customer, o domain.Order, qty int, day time.Time) []domain.NotificationIntent {
	msg := fmt.Sprintf(
		"Good news %s! Your waitlisted order %s is now allocated: %d chicks for pickup on %s. - ChickFlow",
		c.FarmName, o.OrderNumber, qty, day.Format(time.DateOnly))
	return withEmail(c, msg, "Waitlist Fulfilled - Chicks Allocated")
}

// withEmail always produces the SMS intent and adds an email intent when
// the customer has an address on file.
func withEmail(c domain.Customer, msg, subject string) []domain.NotificationIntent {
	intents := []domain.NotificationIntent{{
		Recipient: c.Phone,
		Channel:   domain.ChannelSMS,
		Message:   msg,
	}}
	if c.Email != "" {
		intents = append(intents, domain.NotificationIntent{
			Recipient: c.Email,
			Channel:   domain.ChannelEmail,
			Subject:   subject,
			Message:   msg,
		})
	}
	return intents
}
