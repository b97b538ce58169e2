package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CostSegment names a branch of a structured pricing policy.
type CostSegment string

const (
	SegmentNormal    CostSegment = "normal"
	SegmentEarlyBird CostSegment = "earlyBird"
	SegmentBreed     CostSegment = "breed"
	SegmentCustom    CostSegment = "custom"
)

// FlatPolicy is the legacy pricing shape: one price, with an optional
// member discount price. Amounts are major units.
type FlatPolicy struct {
	Cost       float64
	CostMember float64
}

// EarlyBirdCost is a discounted price valid for the first Days days of
// the entry period.
type EarlyBirdCost struct {
	Cost float64 `json:"cost"`
	Days int     `json:"days"`
}

// CustomCost is an organizer-defined price branch.
type CustomCost struct {
	Cost        float64 `json:"cost"`
	Description string  `json:"description,omitempty"`
}

// OptionalCost is an opt-in additional charge.
type OptionalCost struct {
	Cost        float64 `json:"cost"`
	Description string  `json:"description,omitempty"`
}

// StructuredPolicy is the newer pricing shape with per-segment prices.
type StructuredPolicy struct {
	Normal                  float64            `json:"normal"`
	EarlyBird               *EarlyBirdCost     `json:"earlyBird,omitempty"`
	Breed                   map[string]float64 `json:"breed,omitempty"`
	Custom                  *CustomCost        `json:"custom,omitempty"`
	OptionalAdditionalCosts []OptionalCost     `json:"optionalAdditionalCosts,omitempty"`
}

// PricingPolicy is a tagged union: exactly one of Flat or Structured is
// set. The JSON form is either a bare number (flat) or an object
// (structured); the flat member price lives in a sibling event field
// and is folded in by the event decoder.
type PricingPolicy struct {
	Flat       *FlatPolicy
	Structured *StructuredPolicy
}

// UnmarshalJSON decodes a number into the flat variant and an object
// into the structured variant.
func (p *PricingPolicy) UnmarshalJSON(data []byte) error {
	var major float64
	if err := json.Unmarshal(data, &major); err == nil {
		p.Flat = &FlatPolicy{Cost: major}
		p.Structured = nil
		return nil
	}
	var structured StructuredPolicy
	if err := json.Unmarshal(data, &structured); err != nil {
		return fmt.Errorf("pricing policy is neither a number nor an object: %w", err)
	}
	p.Flat = nil
	p.Structured = &structured
	return nil
}

// MarshalJSON encodes the active variant.
func (p PricingPolicy) MarshalJSON() ([]byte, error) {
	if p.Flat != nil {
		return json.Marshal(p.Flat.Cost)
	}
	if p.Structured != nil {
		return json.Marshal(p.Structured)
	}
	return []byte("null"), nil
}

// DogEvent is the externally owned event entity; this core reads its
// pricing policy and organizer reference, never writes it.
type DogEvent struct {
	ID             string        `json:"id"`
	EventType      string        `json:"eventType,omitempty"`
	Name           string        `json:"name,omitempty"`
	Location       string        `json:"location,omitempty"`
	StartDate      *time.Time    `json:"startDate,omitempty"`
	EndDate        *time.Time    `json:"endDate,omitempty"`
	EntryStartDate *time.Time    `json:"entryStartDate,omitempty"`
	OrganizerID    string        `json:"organizerId"`
	Cost           PricingPolicy `json:"cost"`
}

// PaymentDescription builds the human-readable line-item description
// for a payment: event type, date span, location and name.
func (e *DogEvent) PaymentDescription() string {
	parts := make([]string, 0, 4)
	if e.EventType != "" {
		parts = append(parts, e.EventType)
	}
	if e.StartDate != nil {
		span := e.StartDate.Format("2.1.")
		if e.EndDate != nil && !e.EndDate.Equal(*e.StartDate) {
			span += "-" + e.EndDate.Format("2.1.")
		}
		parts = append(parts, span)
	}
	if e.Location != "" {
		parts = append(parts, e.Location)
	}
	if e.Name != "" {
		parts = append(parts, e.Name)
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// Organizer holds the merchant routing configuration for an event
// organizer. An organizer without a merchant id cannot receive
// payments.
type Organizer struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	MerchantID string `json:"merchantId,omitempty"`
}
