package scheduler

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"stagecall/internal/types"
)

// fixedClock pins "now" for deterministic scheduling assertions.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// mockJobStore implements every job-store interface in the package.
type mockJobStore struct {
	mock.Mock
}

func (m *mockJobStore) FindByKey(ctx context.Context, jobKey string) (*types.MessageJob, error) {
	args := m.Called(ctx, jobKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.MessageJob), args.Error(1)
}

func (m *mockJobStore) UpsertByKey(ctx context.Context, job *types.MessageJob) (int64, bool, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockJobStore) SetStatus(ctx context.Context, id int64, status types.JobStatus, lastError string) error {
	args := m.Called(ctx, id, status, lastError)
	return args.Error(0)
}

func (m *mockJobStore) ListDue(ctx context.Context, orgID string, now time.Time, limit int) ([]types.MessageJob, error) {
	args := m.Called(ctx, orgID, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.MessageJob), args.Error(1)
}

func (m *mockJobStore) GetByID(ctx context.Context, id int64) (*types.MessageJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.MessageJob), args.Error(1)
}

func (m *mockJobStore) SetSendAt(ctx context.Context, id int64, sendAt time.Time) error {
	args := m.Called(ctx, id, sendAt)
	return args.Error(0)
}

func (m *mockJobStore) IncrementAttempt(ctx context.Context, id int64, lastError string) (int, error) {
	args := m.Called(ctx, id, lastError)
	return args.Int(0), args.Error(1)
}

func (m *mockJobStore) MarkSent(ctx context.Context, id int64, sentAt time.Time, recipient types.Recipient) error {
	args := m.Called(ctx, id, sentAt, recipient)
	return args.Error(0)
}

func (m *mockJobStore) ListTerminalOlderThan(ctx context.Context, orgID string, cutoff time.Time) ([]types.MessageJob, error) {
	args := m.Called(ctx, orgID, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.MessageJob), args.Error(1)
}

func (m *mockJobStore) DeleteByIDs(ctx context.Context, ids []int64) (int, error) {
	args := m.Called(ctx, ids)
	return args.Int(0), args.Error(1)
}

// mockDirectory implements BuilderDirectory and DispatcherDirectory.
type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetContact(ctx context.Context, id int64) (*types.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Contact), args.Error(1)
}

func (m *mockDirectory) ListUpcomingEvents(ctx context.Context, orgID string, from time.Time) ([]types.Event, error) {
	args := m.Called(ctx, orgID, from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Event), args.Error(1)
}

func (m *mockDirectory) ListUpcomingShifts(ctx context.Context, orgID string, from time.Time) ([]types.Shift, error) {
	args := m.Called(ctx, orgID, from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Shift), args.Error(1)
}

func (m *mockDirectory) GetEvent(ctx context.Context, id int64) (*types.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Event), args.Error(1)
}

func (m *mockDirectory) GetShift(ctx context.Context, id int64) (*types.Shift, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Shift), args.Error(1)
}

type mockSettingsReader struct {
	mock.Mock
}

func (m *mockSettingsReader) GetOrCreate(ctx context.Context, orgID string) (*types.SchedulerSettings, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SchedulerSettings), args.Error(1)
}

type mockHeartbeatWriter struct {
	mock.Mock
}

func (m *mockHeartbeatWriter) Upsert(ctx context.Context, hb *types.Heartbeat) error {
	args := m.Called(ctx, hb)
	return args.Error(0)
}

type mockPromptSender struct {
	mock.Mock
}

func (m *mockPromptSender) SendPrompt(ctx context.Context, orgID, toPhone string, prompt types.Prompt, expected types.ExpectedInput) (string, error) {
	args := m.Called(ctx, orgID, toPhone, prompt, expected)
	return args.String(0), args.Error(1)
}

type mockJobArchiver struct {
	mock.Mock
}

func (m *mockJobArchiver) ArchiveJobs(ctx context.Context, orgID string, jobs []types.MessageJob, at time.Time) (string, error) {
	args := m.Called(ctx, orgID, jobs, at)
	return args.String(0), args.Error(1)
}
