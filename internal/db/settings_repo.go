package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"stagecall/internal/types"
)

// SettingsRepository provides data access for the scheduler_settings table.
// One row per organization; read on every builder pass.
type SettingsRepository struct {
	db DBTX
}

// NewSettingsRepository creates a new SettingsRepository backed by the given
// database connection (pool or transaction).
func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const settingsColumns = `organization_id, enabled,
	init_enabled, init_lead_days, init_send_time,
	tech_enabled, tech_lead_days, tech_send_time,
	shift_enabled, shift_lead_days, shift_send_time,
	updated_at`

// GetOrCreate returns the organization's settings row, creating it with the
// defaults on first access. The insert races safely: ON CONFLICT DO NOTHING
// followed by a read.
func (r *SettingsRepository) GetOrCreate(ctx context.Context, orgID string) (*types.SchedulerSettings, error) {
	defaults := types.DefaultSchedulerSettings(orgID)

	_, err := r.db.Exec(ctx,
		`INSERT INTO scheduler_settings
		 (organization_id, enabled,
		  init_enabled, init_lead_days, init_send_time,
		  tech_enabled, tech_lead_days, tech_send_time,
		  shift_enabled, shift_lead_days, shift_send_time,
		  updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		 ON CONFLICT (organization_id) DO NOTHING`,
		defaults.OrganizationID,
		defaults.Enabled,
		defaults.Init.Enabled,
		defaults.Init.LeadDays,
		defaults.Init.SendTime.String(),
		defaults.TechReminder.Enabled,
		defaults.TechReminder.LeadDays,
		defaults.TechReminder.SendTime.String(),
		defaults.ShiftReminder.Enabled,
		defaults.ShiftReminder.LeadDays,
		defaults.ShiftReminder.SendTime.String(),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to seed scheduler settings", err)
	}

	return r.get(ctx, orgID)
}

// Update replaces the organization's settings row. Callers perform partial
// updates by reading, mutating and writing back.
func (r *SettingsRepository) Update(ctx context.Context, s *types.SchedulerSettings) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE scheduler_settings SET
		   enabled = $2,
		   init_enabled = $3, init_lead_days = $4, init_send_time = $5,
		   tech_enabled = $6, tech_lead_days = $7, tech_send_time = $8,
		   shift_enabled = $9, shift_lead_days = $10, shift_send_time = $11,
		   updated_at = NOW()
		 WHERE organization_id = $1`,
		s.OrganizationID,
		s.Enabled,
		s.Init.Enabled,
		s.Init.LeadDays,
		s.Init.SendTime.String(),
		s.TechReminder.Enabled,
		s.TechReminder.LeadDays,
		s.TechReminder.SendTime.String(),
		s.ShiftReminder.Enabled,
		s.ShiftReminder.LeadDays,
		s.ShiftReminder.SendTime.String(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update scheduler settings", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSettings, "scheduler settings not found", nil)
	}
	return nil
}

// ListEnabledOrganizations returns the IDs of every organization whose
// scheduler is enabled. The dispatch Lambda fans out over this list each
// cycle.
func (r *SettingsRepository) ListEnabledOrganizations(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT organization_id FROM scheduler_settings WHERE enabled ORDER BY organization_id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list organizations", err)
	}
	defer rows.Close()

	var orgIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan organization id", err)
		}
		orgIDs = append(orgIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list organizations", err)
	}
	return orgIDs, nil
}

func (r *SettingsRepository) get(ctx context.Context, orgID string) (*types.SchedulerSettings, error) {
	var (
		s                             types.SchedulerSettings
		initTime, techTime, shiftTime string
	)
	err := r.db.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM scheduler_settings WHERE organization_id = $1`,
		orgID,
	).Scan(
		&s.OrganizationID,
		&s.Enabled,
		&s.Init.Enabled,
		&s.Init.LeadDays,
		&initTime,
		&s.TechReminder.Enabled,
		&s.TechReminder.LeadDays,
		&techTime,
		&s.ShiftReminder.Enabled,
		&s.ShiftReminder.LeadDays,
		&shiftTime,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundSettings, "scheduler settings not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get scheduler settings", err)
	}

	if s.Init.SendTime, err = types.ParseTimeOfDay(initTime); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt init send time", err)
	}
	if s.TechReminder.SendTime, err = types.ParseTimeOfDay(techTime); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt tech reminder send time", err)
	}
	if s.ShiftReminder.SendTime, err = types.ParseTimeOfDay(shiftTime); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "corrupt shift reminder send time", err)
	}
	return &s, nil
}
