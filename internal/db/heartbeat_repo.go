package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"stagecall/internal/types"
)

// HeartbeatRepository provides data access for the scheduler_heartbeats
// table: exactly one row per organization, overwritten after every dispatch
// cycle. No run history accumulates here.
type HeartbeatRepository struct {
	db DBTX
}

// NewHeartbeatRepository creates a new HeartbeatRepository backed by the
// given database connection (pool or transaction).
func NewHeartbeatRepository(db DBTX) *HeartbeatRepository {
	return &HeartbeatRepository{db: db}
}

// Upsert overwrites the organization's heartbeat with the latest cycle
// summary.
func (r *HeartbeatRepository) Upsert(ctx context.Context, hb *types.Heartbeat) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO scheduler_heartbeats
		 (organization_id, last_run_at, status, due_found, sent, failed,
		  blocked, skipped, postponed, last_error, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (organization_id) DO UPDATE SET
		   last_run_at = EXCLUDED.last_run_at,
		   status = EXCLUDED.status,
		   due_found = EXCLUDED.due_found,
		   sent = EXCLUDED.sent,
		   failed = EXCLUDED.failed,
		   blocked = EXCLUDED.blocked,
		   skipped = EXCLUDED.skipped,
		   postponed = EXCLUDED.postponed,
		   last_error = EXCLUDED.last_error,
		   duration_ms = EXCLUDED.duration_ms`,
		hb.OrganizationID,
		hb.LastRunAt,
		string(hb.Status),
		hb.DueFound,
		hb.Sent,
		hb.Failed,
		hb.Blocked,
		hb.Skipped,
		hb.Postponed,
		nilIfEmpty(hb.LastError),
		hb.DurationMS,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert heartbeat", err)
	}
	return nil
}

// Get returns the organization's heartbeat, or ErrCodeNotFoundHeartbeat when
// no dispatch cycle has ever run.
func (r *HeartbeatRepository) Get(ctx context.Context, orgID string) (*types.Heartbeat, error) {
	var (
		hb        types.Heartbeat
		status    string
		lastError *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT organization_id, last_run_at, status, due_found, sent, failed,
		        blocked, skipped, postponed, last_error, duration_ms
		 FROM scheduler_heartbeats
		 WHERE organization_id = $1`,
		orgID,
	).Scan(
		&hb.OrganizationID,
		&hb.LastRunAt,
		&status,
		&hb.DueFound,
		&hb.Sent,
		&hb.Failed,
		&hb.Blocked,
		&hb.Skipped,
		&hb.Postponed,
		&lastError,
		&hb.DurationMS,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundHeartbeat, "heartbeat not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get heartbeat", err)
	}
	hb.Status = types.RunStatus(status)
	if lastError != nil {
		hb.LastError = *lastError
	}
	return &hb, nil
}
