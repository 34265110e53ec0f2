package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stagecall/internal/types"
)

func TestConversationRepository_GetForContact_WithPrompt(t *testing.T) {
	db := new(mockDBTX)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	promptJSON, err := json.Marshal(types.Prompt{
		Kind:       types.PromptConfirm,
		TemplateID: "tpl_confirm",
		Variables:  map[string]string{"event": "Summer Festival"},
	})
	require.NoError(t, err)

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 11
			*dest[1].(*string) = "org_1"
			*dest[2].(*string) = "+972541234567"
			*dest[3].(*string) = "interactive"
			*dest[4].(*[]byte) = promptJSON
			*dest[5].(*time.Time) = time.Now()
			return nil
		}})

	c, err := repo.GetForContact(ctx, "org_1", "+972541234567")
	require.NoError(t, err)
	assert.Equal(t, types.InputInteractive, c.ExpectedInput)
	require.NotNil(t, c.LastPrompt)
	assert.Equal(t, types.PromptConfirm, c.LastPrompt.Kind)
	assert.Equal(t, "tpl_confirm", c.LastPrompt.TemplateID)
}

func TestConversationRepository_GetForContact_NoPrompt(t *testing.T) {
	db := new(mockDBTX)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 12
			*dest[1].(*string) = "org_1"
			*dest[2].(*string) = "+972541234567"
			*dest[3].(*string) = "free_text_allowed"
			*dest[4].(*[]byte) = nil
			*dest[5].(*time.Time) = time.Now()
			return nil
		}})

	c, err := repo.GetForContact(ctx, "org_1", "+972541234567")
	require.NoError(t, err)
	assert.Equal(t, types.InputFreeTextAllowed, c.ExpectedInput)
	assert.Nil(t, c.LastPrompt)
}

func TestConversationRepository_GetForContact_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetForContact(ctx, "org_1", "+972599999999")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundConversation, appErr.Code)
}

func TestConversationRepository_SetExpectedState_EncodesPrompt(t *testing.T) {
	db := new(mockDBTX)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		if len(args) != 4 {
			return false
		}
		raw, ok := args[3].([]byte)
		if !ok {
			return false
		}
		var p types.Prompt
		return json.Unmarshal(raw, &p) == nil && p.Kind == types.PromptContactShare
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.SetExpectedState(ctx, "org_1", "+972541234567",
		types.InputContactRequired,
		&types.Prompt{Kind: types.PromptContactShare, TemplateID: "tpl_contact"})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestConversationRepository_SetExpectedState_NilPromptClears(t *testing.T) {
	db := new(mockDBTX)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		if len(args) != 4 {
			return false
		}
		raw, ok := args[3].([]byte)
		return ok && raw == nil
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.SetExpectedState(ctx, "org_1", "+972541234567", types.InputPaused, nil)
	require.NoError(t, err)
	db.AssertExpectations(t)
}
