// Package pricing computes the amount owed for a registration against
// an event's pricing policy. The resolver is pure and side-effect
// free.
package pricing

import (
	"time"

	"github.com/dogevents/platform/internal/domain"
	"github.com/dogevents/platform/internal/money"
)

// Inputs are the registration and event facts the resolver needs.
type Inputs struct {
	Member         bool
	BreedCode      string
	SelectedCost   string
	OptionalCosts  []int
	CreatedAt      time.Time
	EntryStartDate *time.Time
	PaidAmount     float64
}

// AmountDue computes the minor-unit amount still due. A non-positive
// result means the registration is already paid and payment creation
// must short-circuit.
func AmountDue(policy domain.PricingPolicy, in Inputs) int64 {
	var base, optional float64

	switch {
	case policy.Flat != nil:
		base = policy.Flat.Cost
		if in.Member && policy.Flat.CostMember != 0 {
			base = policy.Flat.CostMember
		}
	case policy.Structured != nil:
		p := policy.Structured
		base = resolveBase(p, in)
		for _, i := range in.OptionalCosts {
			if i >= 0 && i < len(p.OptionalAdditionalCosts) {
				optional += p.OptionalAdditionalCosts[i].Cost
			}
		}
	}

	return money.ToMinorUnits(base+optional) - money.ToMinorUnits(in.PaidAmount)
}

// resolveBase picks the structured policy branch: the explicitly
// selected segment if present in the policy, otherwise breed price,
// then early-bird price, then the normal price.
func resolveBase(p *domain.StructuredPolicy, in Inputs) float64 {
	if cost, ok := selectedSegment(p, in); ok {
		return cost
	}
	if cost, ok := p.Breed[in.BreedCode]; ok && in.BreedCode != "" {
		return cost
	}
	if earlyBirdApplies(p.EarlyBird, in.CreatedAt, in.EntryStartDate) {
		return p.EarlyBird.Cost
	}
	return p.Normal
}

func selectedSegment(p *domain.StructuredPolicy, in Inputs) (float64, bool) {
	switch domain.CostSegment(in.SelectedCost) {
	case domain.SegmentNormal:
		return p.Normal, true
	case domain.SegmentEarlyBird:
		if p.EarlyBird != nil {
			return p.EarlyBird.Cost, true
		}
	case domain.SegmentBreed:
		if cost, ok := p.Breed[in.BreedCode]; ok {
			return cost, true
		}
	case domain.SegmentCustom:
		if p.Custom != nil {
			return p.Custom.Cost, true
		}
	}
	return 0, false
}

// earlyBirdApplies reports whether the registration was created within
// the early-bird window: strictly before entry start plus Days-1 days.
func earlyBirdApplies(eb *domain.EarlyBirdCost, createdAt time.Time, entryStart *time.Time) bool {
	if eb == nil || eb.Days <= 0 || entryStart == nil {
		return false
	}
	end := entryStart.AddDate(0, 0, eb.Days-1)
	return createdAt.Before(end)
}
