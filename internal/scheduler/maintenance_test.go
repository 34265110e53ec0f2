package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stagecall/internal/types"
)

func newTestMaintenance(jobs *mockJobStore, archiver JobArchiver) *MaintenanceService {
	return NewMaintenanceService(MaintenanceConfig{
		Jobs:     jobs,
		Archiver: archiver,
		Clock:    fixedClock{now: testNow},
	})
}

func TestPurgeTerminalJobs_RequiresConfirmation(t *testing.T) {
	jobs := new(mockJobStore)
	s := newTestMaintenance(jobs, nil)

	_, err := s.PurgeTerminalJobs(context.Background(), testOrg, 90, false)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationConfirmFlag, appErr.Code)
	jobs.AssertNotCalled(t, "ListTerminalOlderThan", mock.Anything, mock.Anything, mock.Anything)
}

func TestPurgeTerminalJobs_ArchivesThenDeletes(t *testing.T) {
	jobs := new(mockJobStore)
	archiver := new(mockJobArchiver)

	candidates := []types.MessageJob{{ID: 1, Status: types.JobStatusSent}, {ID: 2, Status: types.JobStatusSkipped}}
	cutoff := testNow.AddDate(0, 0, -90)

	jobs.On("ListTerminalOlderThan", mock.Anything, testOrg, cutoff).Return(candidates, nil)
	archiver.On("ArchiveJobs", mock.Anything, testOrg, candidates, testNow).
		Return("jobs/org_1/2026/06/batch_1.jsonl.zst", nil)
	jobs.On("DeleteByIDs", mock.Anything, []int64{1, 2}).Return(2, nil)

	s := newTestMaintenance(jobs, archiver)
	result, err := s.PurgeTerminalJobs(context.Background(), testOrg, 90, true)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, "jobs/org_1/2026/06/batch_1.jsonl.zst", result.ArchiveKey)
	jobs.AssertExpectations(t)
	archiver.AssertExpectations(t)
}

func TestPurgeTerminalJobs_EnforcesMinimumAge(t *testing.T) {
	jobs := new(mockJobStore)
	cutoff := testNow.AddDate(0, 0, -MinPurgeAgeDays)

	jobs.On("ListTerminalOlderThan", mock.Anything, testOrg, cutoff).
		Return([]types.MessageJob{}, nil)

	s := newTestMaintenance(jobs, nil)
	result, err := s.PurgeTerminalJobs(context.Background(), testOrg, 3, true)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
	jobs.AssertNotCalled(t, "DeleteByIDs", mock.Anything, mock.Anything)
	jobs.AssertExpectations(t)
}

func TestPurgeTerminalJobs_ArchiveFailureLeavesRowsInPlace(t *testing.T) {
	jobs := new(mockJobStore)
	archiver := new(mockJobArchiver)

	candidates := []types.MessageJob{{ID: 1, Status: types.JobStatusFailed}}
	jobs.On("ListTerminalOlderThan", mock.Anything, testOrg, mock.Anything).Return(candidates, nil)
	archiver.On("ArchiveJobs", mock.Anything, testOrg, candidates, testNow).
		Return("", errors.New("bucket unavailable"))

	s := newTestMaintenance(jobs, archiver)
	result, err := s.PurgeTerminalJobs(context.Background(), testOrg, 90, true)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "archiving jobs before purge")
	assert.Nil(t, result)
	jobs.AssertNotCalled(t, "DeleteByIDs", mock.Anything, mock.Anything)
}

func TestPurgeTerminalJobs_NoArchiverStillDeletes(t *testing.T) {
	jobs := new(mockJobStore)

	candidates := []types.MessageJob{{ID: 7, Status: types.JobStatusSent}}
	jobs.On("ListTerminalOlderThan", mock.Anything, testOrg, mock.Anything).Return(candidates, nil)
	jobs.On("DeleteByIDs", mock.Anything, []int64{7}).Return(1, nil)

	s := newTestMaintenance(jobs, nil)
	result, err := s.PurgeTerminalJobs(context.Background(), testOrg, 90, true)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, result.ArchiveKey)
	jobs.AssertExpectations(t)
}
