package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stagecall/internal/types"
)

// JobRepository provides data access for the message_jobs table. One row per
// job key; the key is the idempotency boundary of the builder, so all writes
// that change scheduling state go through UpsertByKey or the guarded UPDATE
// helpers below.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository backed by the given database
// connection (pool or transaction).
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, organization_id, job_key, message_type, event_id, shift_id,
	send_at, status, enabled, attempt_count, max_attempts, last_error,
	sent_at, recipient_name, recipient_phone, subject_name, created_at, updated_at`

// terminalStatuses is inlined into guarded UPDATE statements. Rows in these
// statuses are never modified by scheduling writes.
const terminalStatuses = `('sent', 'failed', 'skipped')`

// UpsertByKey inserts the job or updates the existing row with the same
// job_key. Terminal rows are left untouched: the ON CONFLICT UPDATE carries a
// WHERE clause excluding them, so the statement affects zero rows and the
// method reports id 0.
//
// Returns (id, created, err) where created is true when a new row was
// inserted rather than an existing one updated.
func (r *JobRepository) UpsertByKey(ctx context.Context, job *types.MessageJob) (int64, bool, error) {
	var (
		id      int64
		created bool
	)
	err := r.db.QueryRow(ctx,
		`INSERT INTO message_jobs
		 (organization_id, job_key, message_type, event_id, shift_id,
		  send_at, status, enabled, attempt_count, max_attempts, last_error,
		  recipient_name, recipient_phone, subject_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11, $12, $13, NOW(), NOW())
		 ON CONFLICT (job_key) DO UPDATE SET
		   send_at = EXCLUDED.send_at,
		   status = EXCLUDED.status,
		   enabled = EXCLUDED.enabled,
		   last_error = EXCLUDED.last_error,
		   recipient_name = EXCLUDED.recipient_name,
		   recipient_phone = EXCLUDED.recipient_phone,
		   subject_name = EXCLUDED.subject_name,
		   updated_at = NOW()
		 WHERE message_jobs.status NOT IN `+terminalStatuses+`
		 RETURNING id, (xmax = 0)`,
		job.OrganizationID,
		job.JobKey,
		string(job.MessageType),
		job.EventID,
		job.ShiftID,
		job.SendAt,
		string(job.Status),
		job.Enabled,
		job.MaxAttempts,
		nilIfEmpty(job.LastError),
		job.RecipientName,
		job.RecipientPhone,
		job.SubjectName,
	).Scan(&id, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict with a terminal row; nothing written.
		return 0, false, nil
	}
	if err != nil {
		return 0, false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert message job", err)
	}
	return id, created, nil
}

// FindByKey returns the job with the given key, or nil when none exists.
func (r *JobRepository) FindByKey(ctx context.Context, jobKey string) (*types.MessageJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM message_jobs WHERE job_key = $1`,
		jobKey,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find message job by key", err)
	}
	return job, nil
}

// GetByID returns the job with the given ID.
func (r *JobRepository) GetByID(ctx context.Context, id int64) (*types.MessageJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM message_jobs WHERE id = $1`,
		id,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundJob, "message job not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get message job", err)
	}
	return job, nil
}

// ListDue returns the dispatchable jobs of one organization: status scheduled
// or retrying, enabled, send_at at or before now. Ordered by send_at then
// subject name so dispatch order is deterministic.
func (r *JobRepository) ListDue(ctx context.Context, orgID string, now time.Time, limit int) ([]types.MessageJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM message_jobs
		 WHERE organization_id = $1
		   AND status IN ('scheduled', 'retrying')
		   AND enabled
		   AND send_at <= $2
		 ORDER BY send_at, subject_name
		 LIMIT $3`,
		orgID,
		now,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query due jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListFilter narrows ListForUI output. Zero value lists every current job
// with sent rows hidden and past-due unsent rows shown.
type ListFilter struct {
	MessageType *types.MessageType
	// ShowSent includes terminal sent rows, hidden by default.
	ShowSent bool
	// HidePast drops unsent rows whose send_at is already behind now.
	HidePast bool
	Now      time.Time
}

// ListForUI returns the operator-facing job listing for one organization,
// ordered by send_at then subject name. Blocked rows are always included so
// missing-recipient subjects stay visible.
func (r *JobRepository) ListForUI(ctx context.Context, orgID string, filter ListFilter) ([]types.MessageJob, error) {
	query := `SELECT ` + jobColumns + ` FROM message_jobs WHERE organization_id = $1`
	args := []any{orgID}

	if filter.MessageType != nil {
		args = append(args, string(*filter.MessageType))
		query += fmt.Sprintf(" AND message_type = $%d", len(args))
	}
	if !filter.ShowSent {
		query += ` AND status <> 'sent'`
	}
	if filter.HidePast {
		args = append(args, filter.Now)
		query += fmt.Sprintf(" AND (send_at > $%d OR status IN %s)", len(args), terminalStatuses)
	}
	query += ` ORDER BY send_at, subject_name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query jobs for listing", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// SetStatus moves a non-terminal job to the given status, replacing the
// last_error text. Terminal rows are never modified; attempting to do so
// returns ErrCodeConflictTerminalJob.
func (r *JobRepository) SetStatus(ctx context.Context, id int64, status types.JobStatus, lastError string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE message_jobs
		 SET status = $2, last_error = $3, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN `+terminalStatuses,
		id,
		string(status),
		nilIfEmpty(lastError),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set job status", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMiss(ctx, id)
	}
	return nil
}

// OverrideStatus moves a job to the given status without the terminal guard
// the scheduling writes carry. This is the operator escape hatch: it is the
// only write that can revive a sent, failed or skipped row, and only the
// explicit status edit in the API uses it. The error text is cleared so a
// revived job does not carry its old failure forward.
func (r *JobRepository) OverrideStatus(ctx context.Context, id int64, status types.JobStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE message_jobs
		 SET status = $2, last_error = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id,
		string(status),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to override job status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "message job not found", nil)
	}
	return nil
}

// SetSendAt reschedules a non-terminal job.
func (r *JobRepository) SetSendAt(ctx context.Context, id int64, sendAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE message_jobs
		 SET send_at = $2, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN `+terminalStatuses,
		id,
		sendAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set job send_at", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMiss(ctx, id)
	}
	return nil
}

// SetEnabled toggles the per-job enable flag. Unlike the scheduling writes
// this is allowed on any row; disabling a terminal row is a no-op for
// dispatch either way.
func (r *JobRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE message_jobs SET enabled = $2, updated_at = NOW() WHERE id = $1`,
		id,
		enabled,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set job enabled flag", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "message job not found", nil)
	}
	return nil
}

// IncrementAttempt bumps the attempt counter and records the failure text,
// returning the new attempt count. The caller compares it against the job's
// retry budget to choose between retrying and failed.
func (r *JobRepository) IncrementAttempt(ctx context.Context, id int64, lastError string) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx,
		`UPDATE message_jobs
		 SET attempt_count = attempt_count + 1, last_error = $2, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN `+terminalStatuses+`
		 RETURNING attempt_count`,
		id,
		nilIfEmpty(lastError),
	).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, r.classifyMiss(ctx, id)
	}
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to increment job attempt count", err)
	}
	return attempts, nil
}

// MarkSent finalizes a successful delivery: status sent, sent_at recorded,
// recipient snapshot captured. Only scheduled, retrying and blocked rows may
// transition to sent.
func (r *JobRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time, recipient types.Recipient) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE message_jobs
		 SET status = 'sent', sent_at = $2, last_error = NULL,
		     recipient_name = $3, recipient_phone = $4, updated_at = NOW()
		 WHERE id = $1 AND status IN ('scheduled', 'retrying', 'blocked')`,
		id,
		sentAt,
		recipient.Name,
		recipient.Phone,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job sent", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMiss(ctx, id)
	}
	return nil
}

// ListTerminalOlderThan returns the terminal rows whose last update predates
// the cutoff, ordered by id. The purge path reads these, writes the archive
// copy, and only then deletes by id, so a failed archive never loses rows.
func (r *JobRepository) ListTerminalOlderThan(ctx context.Context, orgID string, cutoff time.Time) ([]types.MessageJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM message_jobs
		 WHERE organization_id = $1
		   AND status IN `+terminalStatuses+`
		   AND updated_at < $2
		 ORDER BY id`,
		orgID,
		cutoff,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list terminal jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// DeleteByIDs removes exactly the given rows and reports how many existed.
func (r *JobRepository) DeleteByIDs(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM message_jobs WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete jobs", err)
	}
	return int(tag.RowsAffected()), nil
}

// classifyMiss distinguishes "row does not exist" from "row is terminal"
// after a guarded UPDATE affected zero rows.
func (r *JobRepository) classifyMiss(ctx context.Context, id int64) error {
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT status FROM message_jobs WHERE id = $1`,
		id,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.NewAppError(types.ErrCodeNotFoundJob, "message job not found", nil)
	}
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to classify job update miss", err)
	}
	return types.NewAppError(types.ErrCodeConflictTerminalJob,
		fmt.Sprintf("message job is terminal (status %s)", status), nil)
}

func scanJob(row pgx.Row) (*types.MessageJob, error) {
	var (
		j           types.MessageJob
		messageType string
		status      string
		lastError   *string
	)
	if err := row.Scan(
		&j.ID,
		&j.OrganizationID,
		&j.JobKey,
		&messageType,
		&j.EventID,
		&j.ShiftID,
		&j.SendAt,
		&status,
		&j.Enabled,
		&j.AttemptCount,
		&j.MaxAttempts,
		&lastError,
		&j.SentAt,
		&j.RecipientName,
		&j.RecipientPhone,
		&j.SubjectName,
		&j.CreatedAt,
		&j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.MessageType = types.MessageType(messageType)
	j.Status = types.JobStatus(status)
	if lastError != nil {
		j.LastError = *lastError
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]types.MessageJob, error) {
	var jobs []types.MessageJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan message job", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating message jobs", err)
	}
	return jobs, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
