package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"stagecall/internal/types"
)

// ConversationRepository provides data access for the conversations table.
// One row per (organization, contact phone); the guard reads it before any
// business handler runs, and every outbound template send writes it back.
type ConversationRepository struct {
	db DBTX
}

// NewConversationRepository creates a new ConversationRepository backed by
// the given database connection (pool or transaction).
func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetForContact returns the conversation state for one contact phone, or
// ErrCodeNotFoundConversation when the thread has never been written.
func (r *ConversationRepository) GetForContact(ctx context.Context, orgID, contactPhone string) (*types.Conversation, error) {
	var (
		c          types.Conversation
		expected   string
		promptJSON []byte
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, contact_phone, expected_input, last_prompt, updated_at
		 FROM conversations
		 WHERE organization_id = $1 AND contact_phone = $2`,
		orgID,
		contactPhone,
	).Scan(
		&c.ID,
		&c.OrganizationID,
		&c.ContactPhone,
		&expected,
		&promptJSON,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundConversation, "conversation not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get conversation", err)
	}

	c.ExpectedInput = types.ExpectedInput(expected)
	if len(promptJSON) > 0 {
		var prompt types.Prompt
		if err := json.Unmarshal(promptJSON, &prompt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt last prompt payload", err)
		}
		c.LastPrompt = &prompt
	}
	return &c, nil
}

// SetExpectedState upserts the conversation's expected-input state and the
// last outbound prompt. A nil prompt clears the stored one.
func (r *ConversationRepository) SetExpectedState(ctx context.Context, orgID, contactPhone string, expected types.ExpectedInput, prompt *types.Prompt) error {
	var promptJSON []byte
	if prompt != nil {
		var err error
		if promptJSON, err = json.Marshal(prompt); err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode prompt", err)
		}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO conversations
		 (organization_id, contact_phone, expected_input, last_prompt, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (organization_id, contact_phone) DO UPDATE SET
		   expected_input = EXCLUDED.expected_input,
		   last_prompt = EXCLUDED.last_prompt,
		   updated_at = NOW()`,
		orgID,
		contactPhone,
		string(expected),
		promptJSON,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set conversation state", err)
	}
	return nil
}
