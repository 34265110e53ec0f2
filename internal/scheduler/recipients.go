// Package scheduler implements the scheduled-message delivery engine: job
// building (recompute), the dispatch loop, the manual send path, heartbeat
// health, and terminal-job maintenance.
//
// All services take their "now" from an explicit parameter or an injected
// Clock, re-read per-organization settings on every pass, and isolate
// per-item failures so one bad subject or job never aborts a whole run.
package scheduler

import (
	"context"
	"fmt"

	"stagecall/internal/phone"
	"stagecall/internal/types"
)

// ContactReader is the phone-book lookup consumed by the resolver.
type ContactReader interface {
	// GetContact returns nil (not an error) when the contact does not exist.
	GetContact(ctx context.Context, id int64) (*types.Contact, error)
}

// RecipientResolver resolves the destination of one message fresh from the
// phone book. It is called at build time for the blocked-visibility check and
// again at dispatch time, so stale snapshots are never dialed.
type RecipientResolver struct {
	contacts ContactReader
}

// NewRecipientResolver creates a resolver over the given contact reader.
func NewRecipientResolver(contacts ContactReader) *RecipientResolver {
	return &RecipientResolver{contacts: contacts}
}

// ForEvent resolves the recipient of an event-scoped message. INIT prefers
// the technical contact and falls back to the producer; TECH_REMINDER
// requires the technical contact with no fallback. When no valid phone
// resolves, the returned reason explains why and the recipient is nil.
func (r *RecipientResolver) ForEvent(ctx context.Context, mt types.MessageType, event *types.Event) (*types.Recipient, string, error) {
	switch mt {
	case types.MessageTypeInit:
		if rec, err := r.fromContactID(ctx, event.TechContactID); err != nil {
			return nil, "", err
		} else if rec != nil {
			return rec, "", nil
		}
		if rec, err := r.fromContactID(ctx, event.ProducerID); err != nil {
			return nil, "", err
		} else if rec != nil {
			return rec, "", nil
		}
		return nil, "no technical or producer contact with a valid phone", nil

	case types.MessageTypeTechReminder:
		rec, err := r.fromContactID(ctx, event.TechContactID)
		if err != nil {
			return nil, "", err
		}
		if rec == nil {
			return nil, "technical contact has no valid phone", nil
		}
		return rec, "", nil

	default:
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("message type %s is not event-scoped", mt), nil)
	}
}

// ForShift resolves the assigned employee's phone. No fallback.
func (r *RecipientResolver) ForShift(ctx context.Context, shift *types.Shift) (*types.Recipient, string, error) {
	if shift.EmployeeID == nil {
		return nil, "no employee assigned to shift", nil
	}
	rec, err := r.fromContactID(ctx, shift.EmployeeID)
	if err != nil {
		return nil, "", err
	}
	if rec == nil {
		return nil, "assigned employee has no valid phone", nil
	}
	return rec, "", nil
}

// fromContactID loads a contact and normalizes its phone. Returns nil when
// the reference is unset, the contact is missing, or the phone does not
// normalize.
func (r *RecipientResolver) fromContactID(ctx context.Context, id *int64) (*types.Recipient, error) {
	if id == nil {
		return nil, nil
	}
	contact, err := r.contacts.GetContact(ctx, *id)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, nil
	}
	normalized, ok := phone.NormalizeIL(contact.Phone)
	if !ok {
		return nil, nil
	}
	return &types.Recipient{Name: contact.Name, Phone: normalized}, nil
}
