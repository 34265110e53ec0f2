package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"stagecall/internal/types"
)

// DirectoryRepository reads the calendar and phone-book tables the engine
// schedules against: events, shifts and contacts. The engine never writes
// these tables; they are owned by the production-management side.
type DirectoryRepository struct {
	db DBTX
}

// NewDirectoryRepository creates a new DirectoryRepository backed by the
// given database connection (pool or transaction).
func NewDirectoryRepository(db DBTX) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// ListUpcomingEvents returns the organization's events dated on or after
// `from`, ordered by date then name.
func (r *DirectoryRepository) ListUpcomingEvents(ctx context.Context, orgID string, from time.Time) ([]types.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, organization_id, name, date, load_in_at, tech_contact_id, producer_id
		 FROM events
		 WHERE organization_id = $1 AND date >= $2
		 ORDER BY date, name`,
		orgID,
		from,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query upcoming events", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var e types.Event
		if err := rows.Scan(
			&e.ID,
			&e.OrganizationID,
			&e.Name,
			&e.Date,
			&e.LoadInAt,
			&e.TechContactID,
			&e.ProducerID,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating events", err)
	}
	return events, nil
}

// ListUpcomingShifts returns the organization's shifts dated on or after
// `from`, with the parent event name denormalized in, ordered by date then
// event name.
func (r *DirectoryRepository) ListUpcomingShifts(ctx context.Context, orgID string, from time.Time) ([]types.Shift, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.organization_id, s.event_id, e.name, s.date, s.call_time, s.employee_id
		 FROM shifts s
		 JOIN events e ON e.id = s.event_id
		 WHERE s.organization_id = $1 AND s.date >= $2
		 ORDER BY s.date, e.name`,
		orgID,
		from,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query upcoming shifts", err)
	}
	defer rows.Close()

	var shifts []types.Shift
	for rows.Next() {
		var (
			s        types.Shift
			callTime *string
		)
		if err := rows.Scan(
			&s.ID,
			&s.OrganizationID,
			&s.EventID,
			&s.EventName,
			&s.Date,
			&callTime,
			&s.EmployeeID,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan shift", err)
		}
		if callTime != nil {
			tod, err := types.ParseTimeOfDay(*callTime)
			if err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt shift call time", err)
			}
			s.CallTime = &tod
		}
		shifts = append(shifts, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating shifts", err)
	}
	return shifts, nil
}

// GetEvent returns one event by ID, or nil when it does not exist.
func (r *DirectoryRepository) GetEvent(ctx context.Context, id int64) (*types.Event, error) {
	var e types.Event
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, name, date, load_in_at, tech_contact_id, producer_id
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.OrganizationID, &e.Name, &e.Date, &e.LoadInAt, &e.TechContactID, &e.ProducerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get event", err)
	}
	return &e, nil
}

// GetShift returns one shift by ID with the parent event name, or nil when it
// does not exist.
func (r *DirectoryRepository) GetShift(ctx context.Context, id int64) (*types.Shift, error) {
	var (
		s        types.Shift
		callTime *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT s.id, s.organization_id, s.event_id, e.name, s.date, s.call_time, s.employee_id
		 FROM shifts s
		 JOIN events e ON e.id = s.event_id
		 WHERE s.id = $1`,
		id,
	).Scan(&s.ID, &s.OrganizationID, &s.EventID, &s.EventName, &s.Date, &callTime, &s.EmployeeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get shift", err)
	}
	if callTime != nil {
		tod, err := types.ParseTimeOfDay(*callTime)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt shift call time", err)
		}
		s.CallTime = &tod
	}
	return &s, nil
}

// GetContact returns the contact with the given ID, or nil when it does not
// exist. Absence is a domain outcome (missing recipient), not an error.
func (r *DirectoryRepository) GetContact(ctx context.Context, id int64) (*types.Contact, error) {
	var c types.Contact
	err := r.db.QueryRow(ctx,
		`SELECT id, name, phone FROM contacts WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get contact", err)
	}
	return &c, nil
}
