package service

import (
	"time"

	"github.com/chickflow/allocator/internal/core/domain"
)

// Score weights. Tier base dominates; recency, order age and waitlist
// history keep repeat shortfalls from starving anyone.
const (
	tierBaseContract = 100.0
	tierBaseLoyal    = 50.0
	tierBaseNew      = 10.0

	recencyPerDay      = 2.0
	recencyCap         = 100.0
	neverFulfilledBase = 30.0

	agePerDay           = 5.0
	priorityLevelWeight = 10.0
	waitlistWeight      = 20.0
)

// Scorer computes allocation priority scores. Pure given its inputs and the
// injected clock: the same order, customer and waiting count always score
// the same.
type Scorer struct {
	now func() time.Time
}

func NewScorer(now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{now: now}
}

// Score ranks an order for allocation. waitingCount is the number of
// waitlist entries currently waiting for the order's customer. No term is
// negative, so the score never drops below the tier base.
func (s *Scorer) Score(order domain.Order, customer domain.Customer, waitingCount int) float64 {
	now := s.now()
	score := tierBase(customer.Tier)

	if customer.LastFulfilledAt != nil {
		days := calendarDaysBetween(*customer.LastFulfilledAt, now)
		if days > 0 {
			score += min(float64(days)*recencyPerDay, recencyCap)
		}
	} else {
		score += neverFulfilledBase
	}

	if days := calendarDaysBetween(order.OrderedAt, now); days > 0 {
		score += float64(days) * agePerDay
	}

	score += float64(order.PriorityLevel) * priorityLevelWeight

	if waitingCount > 0 {
		score += float64(waitingCount) * waitlistWeight
	}

	return score
}

func tierBase(t domain.Tier) float64 {
	switch t {
	case domain.TierContract:
		return tierBaseContract
	case domain.TierLoyal:
		return tierBaseLoyal
	case domain.TierNew:
		return tierBaseNew
	default:
		return 0
	}
}

// calendarDaysBetween counts whole calendar days from a to b. Fractional
// days never count; both ends are truncated to their UTC date.
func calendarDaysBetween(a, b time.Time) int {
	return int(dateOf(b).Sub(dateOf(a)).Hours() / 24)
}

// dateOf truncates a timestamp to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
