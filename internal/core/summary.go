package core

import "github.com/shopspring/decimal"

// TripSummary is the cost overview of a single trip.
type TripSummary struct {
	Trip          Trip
	FamilyCount   int
	TotalMembers  int
	TotalExpenses Money
	PerHeadCost   decimal.Decimal // Zero when there are no expenses or no members
}
