package db

import (
	"context"
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

func TestHeartbeatRepository_Upsert_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHeartbeatRepository(db)
	ctx := context.Background()

	hb := &types.Heartbeat{
		OrganizationID: "org_1",
		LastRunAt:      time.Date(2026, 9, 1, 7, 5, 0, 0, time.UTC),
		Status:         types.RunStatusOK,
		DueFound:       3,
		Sent:           3,
		DurationMS:     840,
	}

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Upsert(ctx, hb))
	db.AssertExpectations(t)
}

func TestHeartbeatRepository_Get_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHeartbeatRepository(db)
	ctx := context.Background()

	lastRun := time.Date(2026, 9, 1, 7, 5, 0, 0, time.UTC)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*string) = "org_1"
			*dest[1].(*time.Time) = lastRun
			*dest[2].(*string) = "warning"
			*dest[3].(*int) = 4
			*dest[4].(*int) = 2
			*dest[5].(*int) = 1
			*dest[6].(*int) = 0
			*dest[7].(*int) = 0
			*dest[8].(*int) = 1
			msg := "provider 503"
			*dest[9].(**string) = &msg
			*dest[10].(*int64) = 1200
			return nil
		}})

	hb, err := repo.Get(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusWarning, hb.Status)
	assert.Equal(t, 1, hb.Failed)
	assert.Equal(t, 1, hb.Postponed)
	assert.Equal(t, "provider 503", hb.LastError)
	assert.Equal(t, lastRun, hb.LastRunAt)
}

func TestHeartbeatRepository_Get_NeverRan(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHeartbeatRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Get(ctx, "org_new")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundHeartbeat, appErr.Code)
}
