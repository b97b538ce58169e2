package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dogevents/platform/internal/domain"
	"github.com/jackc/pgx/v5"
)

type eventRepo struct{}

// NewEventRepository returns a pgx-backed EventRepository.
func NewEventRepository() EventRepository {
	return &eventRepo{}
}

func (r *eventRepo) Get(ctx context.Context, db DBTX, id string) (*domain.DogEvent, error) {
	row := db.QueryRow(ctx, `
		SELECT id, event_type, name, location, start_date, end_date,
		       entry_start_date, organizer_id, cost, cost_member
		FROM events WHERE id = $1`, id)

	var e domain.DogEvent
	var eventType, name, location *string
	var cost, costMember []byte
	err := row.Scan(
		&e.ID, &eventType, &name, &location, &e.StartDate, &e.EndDate,
		&e.EntryStartDate, &e.OrganizerID, &cost, &costMember,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}

	if eventType != nil {
		e.EventType = *eventType
	}
	if name != nil {
		e.Name = *name
	}
	if location != nil {
		e.Location = *location
	}

	if err := json.Unmarshal(cost, &e.Cost); err != nil {
		return nil, fmt.Errorf("decode event cost: %w", err)
	}
	// A flat member price is stored as a sibling number and folded
	// into the flat policy variant.
	if e.Cost.Flat != nil && len(costMember) > 0 {
		var member float64
		if err := json.Unmarshal(costMember, &member); err == nil {
			e.Cost.Flat.CostMember = member
		}
	}
	return &e, nil
}

func (r *eventRepo) GetOrganizer(ctx context.Context, db DBTX, id string) (*domain.Organizer, error) {
	row := db.QueryRow(ctx, `
		SELECT id, name, merchant_id FROM organizers WHERE id = $1`, id)

	var o domain.Organizer
	var name, merchantID *string
	err := row.Scan(&o.ID, &name, &merchantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan organizer: %w", err)
	}
	if name != nil {
		o.Name = *name
	}
	if merchantID != nil {
		o.MerchantID = *merchantID
	}
	return &o, nil
}
