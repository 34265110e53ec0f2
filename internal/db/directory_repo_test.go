package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stagecall/internal/types"
)

func TestDirectoryRepository_ListUpcomingEvents(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDirectoryRepository(db)
	ctx := context.Background()

	techID := int64(3)
	eventDate := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	loadIn := time.Date(2026, 9, 20, 14, 0, 0, 0, time.UTC)

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(func(dest ...any) error {
			*dest[0].(*int64) = 7
			*dest[1].(*string) = "org_1"
			*dest[2].(*string) = "Summer Festival"
			*dest[3].(*time.Time) = eventDate
			*dest[4].(**time.Time) = &loadIn
			*dest[5].(**int64) = &techID
			*dest[6].(**int64) = nil
			return nil
		}), nil)

	events, err := repo.ListUpcomingEvents(ctx, "org_1", time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Summer Festival", events[0].Name)
	require.NotNil(t, events[0].TechContactID)
	assert.Equal(t, int64(3), *events[0].TechContactID)
	assert.Nil(t, events[0].ProducerID)
}

func TestDirectoryRepository_ListUpcomingShifts_ParsesCallTime(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDirectoryRepository(db)
	ctx := context.Background()

	employeeID := int64(8)
	callTime := "17:30"

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(func(dest ...any) error {
			*dest[0].(*int64) = 21
			*dest[1].(*string) = "org_1"
			*dest[2].(*int64) = 7
			*dest[3].(*string) = "Summer Festival"
			*dest[4].(*time.Time) = time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
			*dest[5].(**string) = &callTime
			*dest[6].(**int64) = &employeeID
			return nil
		}), nil)

	shifts, err := repo.ListUpcomingShifts(ctx, "org_1", time.Now())
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	require.NotNil(t, shifts[0].CallTime)
	assert.Equal(t, types.TimeOfDay{Hour: 17, Minute: 30}, *shifts[0].CallTime)
	assert.Equal(t, "Summer Festival", shifts[0].EventName)
}

func TestDirectoryRepository_GetContact_AbsentIsNotError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDirectoryRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	c, err := repo.GetContact(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, c)
}
