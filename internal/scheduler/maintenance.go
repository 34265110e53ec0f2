package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stagecall/internal/types"
)

// MinPurgeAgeDays is the youngest retention window a purge may use.
const MinPurgeAgeDays = 30

// MaintenanceJobStore reads aged terminal rows for archival and deletes them
// once the archive copy is safe.
type MaintenanceJobStore interface {
	ListTerminalOlderThan(ctx context.Context, orgID string, cutoff time.Time) ([]types.MessageJob, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int, error)
}

// PurgeResult summarizes one purge run.
type PurgeResult struct {
	Deleted    int    `json:"deleted"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

// MaintenanceService removes aged terminal jobs (sent, failed, skipped) after
// archiving them. Non-terminal rows are never eligible regardless of age.
type MaintenanceService struct {
	jobs     MaintenanceJobStore
	archiver JobArchiver
	clock    types.Clock
	logger   *slog.Logger
}

// MaintenanceConfig configures a MaintenanceService. Archiver may be nil, in
// which case purged rows are dropped without an archive copy.
type MaintenanceConfig struct {
	Jobs     MaintenanceJobStore
	Archiver JobArchiver
	Clock    types.Clock
	Logger   *slog.Logger
}

// NewMaintenanceService creates a MaintenanceService.
func NewMaintenanceService(cfg MaintenanceConfig) *MaintenanceService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MaintenanceService{
		jobs:     cfg.Jobs,
		archiver: cfg.Archiver,
		clock:    clock,
		logger:   logger,
	}
}

// PurgeTerminalJobs deletes the organization's terminal jobs older than the
// given number of days. The confirm flag must be set explicitly; bulk
// deletion never happens as a side effect of another call.
//
// The archive copy is written before anything is deleted. An archive failure
// aborts the purge with the rows still in place, so the audit trail can
// never lose a row that is already gone.
func (s *MaintenanceService) PurgeTerminalJobs(ctx context.Context, orgID string, olderThanDays int, confirm bool) (*PurgeResult, error) {
	if !confirm {
		return nil, types.NewAppError(types.ErrCodeValidationConfirmFlag,
			"bulk job deletion requires explicit confirmation", nil)
	}
	if olderThanDays < MinPurgeAgeDays {
		olderThanDays = MinPurgeAgeDays
	}

	now := s.clock.Now()
	cutoff := now.AddDate(0, 0, -olderThanDays)

	candidates, err := s.jobs.ListTerminalOlderThan(ctx, orgID, cutoff)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		s.logger.InfoContext(ctx, "terminal job purge found nothing to delete",
			"organization_id", orgID,
			"older_than_days", olderThanDays,
		)
		return &PurgeResult{}, nil
	}

	result := &PurgeResult{}
	if s.archiver != nil {
		key, err := s.archiver.ArchiveJobs(ctx, orgID, candidates, now)
		if err != nil {
			return nil, fmt.Errorf("archiving jobs before purge: %w", err)
		}
		result.ArchiveKey = key
	}

	ids := make([]int64, len(candidates))
	for i := range candidates {
		ids[i] = candidates[i].ID
	}
	deleted, err := s.jobs.DeleteByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	result.Deleted = deleted

	s.logger.InfoContext(ctx, "terminal job purge complete",
		"organization_id", orgID,
		"older_than_days", olderThanDays,
		"deleted", result.Deleted,
		"archive_key", result.ArchiveKey,
	)
	return result, nil
}
