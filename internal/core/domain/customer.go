package domain

import "time"

type Tier string

const (
	TierContract Tier = "Contract"
	TierLoyal    Tier = "Loyal"
	TierNew      Tier = "New"
)

type Customer struct {
	ID              string
	FarmName        string
	Phone           string
	Email           string
	Zone            string // carried for delivery planning, not read by allocation
	Tier            Tier
	LastFulfilledAt *time.Time // nil means never fulfilled
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
