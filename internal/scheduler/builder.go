package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stagecall/internal/timeutil"
	"stagecall/internal/types"
)

// JobKey derives the deterministic idempotency key of a scheduled job. The
// key, not the storage-assigned ID, is the boundary: at most one non-terminal
// job exists per key, however many recompute passes run.
func JobKey(orgID string, mt types.MessageType, kind types.SubjectKind, subjectID int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", orgID, mt, kind, subjectID)
}

// BuilderJobStore is the job persistence surface the builder needs.
type BuilderJobStore interface {
	FindByKey(ctx context.Context, jobKey string) (*types.MessageJob, error)
	UpsertByKey(ctx context.Context, job *types.MessageJob) (int64, bool, error)
	SetStatus(ctx context.Context, id int64, status types.JobStatus, lastError string) error
}

// BuilderDirectory reads the subjects a recompute pass scans.
type BuilderDirectory interface {
	ContactReader
	ListUpcomingEvents(ctx context.Context, orgID string, from time.Time) ([]types.Event, error)
	ListUpcomingShifts(ctx context.Context, orgID string, from time.Time) ([]types.Shift, error)
}

// SettingsReader supplies the per-organization settings snapshot for a pass.
type SettingsReader interface {
	GetOrCreate(ctx context.Context, orgID string) (*types.SchedulerSettings, error)
}

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	Jobs      BuilderJobStore
	Directory BuilderDirectory
	Settings  SettingsReader
	Policy    *timeutil.Policy
	Clock     types.Clock
	Logger    *slog.Logger
}

// Builder reconciles the desired set of scheduled jobs against storage. It
// never duplicates a job key, never touches terminal rows, and classifies
// every subject it considers into exactly one report bucket.
type Builder struct {
	jobs     BuilderJobStore
	dir      BuilderDirectory
	settings SettingsReader
	policy   *timeutil.Policy
	resolver *RecipientResolver
	clock    types.Clock
	logger   *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Builder{
		jobs:     cfg.Jobs,
		dir:      cfg.Directory,
		settings: cfg.Settings,
		policy:   cfg.Policy,
		resolver: NewRecipientResolver(cfg.Directory),
		clock:    clock,
		logger:   logger,
	}
}

// SyncOrganization runs one recompute pass over all current and future
// subjects of the organization. Settings are read fresh at the start and
// passed as a snapshot through the whole pass. Per-subject problems never
// abort the pass; they land in the report.
func (b *Builder) SyncOrganization(ctx context.Context, orgID string) (*types.SyncReport, error) {
	start := b.clock.Now()
	report := &types.SyncReport{OrganizationID: orgID}

	settings, err := b.settings.GetOrCreate(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading scheduler settings: %w", err)
	}

	events, err := b.dir.ListUpcomingEvents(ctx, orgID, start)
	if err != nil {
		return nil, fmt.Errorf("listing upcoming events: %w", err)
	}
	for i := range events {
		b.BuildForEvent(ctx, settings, &events[i], start, report)
	}

	shifts, err := b.dir.ListUpcomingShifts(ctx, orgID, start)
	if err != nil {
		return nil, fmt.Errorf("listing upcoming shifts: %w", err)
	}
	b.BuildForShifts(ctx, settings, shifts, start, report)

	report.DurationMS = time.Since(start).Milliseconds()
	b.logger.InfoContext(ctx, "recompute pass complete",
		"organization_id", orgID,
		"scanned", report.Scanned,
		"created", report.Created,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"blocked", report.Blocked,
		"skipped", report.Skipped,
	)
	return report, nil
}

// BuildForEvent reconciles the INIT and TECH_REMINDER jobs of one event.
func (b *Builder) BuildForEvent(ctx context.Context, settings *types.SchedulerSettings, event *types.Event, now time.Time, report *types.SyncReport) {
	for _, mt := range []types.MessageType{types.MessageTypeInit, types.MessageTypeTechReminder} {
		b.buildOne(ctx, settings, subject{
			kind:        types.SubjectEvent,
			id:          event.ID,
			name:        event.Name,
			anchor:      event.Date,
			event:       event,
			messageType: mt,
		}, now, report)
	}
}

// BuildForShifts reconciles the SHIFT_REMINDER job of each shift.
func (b *Builder) BuildForShifts(ctx context.Context, settings *types.SchedulerSettings, shifts []types.Shift, now time.Time, report *types.SyncReport) {
	for i := range shifts {
		shift := &shifts[i]
		b.buildOne(ctx, settings, subject{
			kind:        types.SubjectShift,
			id:          shift.ID,
			name:        shift.EventName,
			anchor:      shift.Date,
			shift:       shift,
			messageType: types.MessageTypeShiftReminder,
		}, now, report)
	}
}

// subject is one (event-or-shift, message type) pair under consideration.
type subject struct {
	kind        types.SubjectKind
	id          int64
	name        string
	anchor      time.Time
	messageType types.MessageType
	event       *types.Event
	shift       *types.Shift
}

// buildOne runs the per-subject pipeline: enable flags, eligibility
// preconditions, send-time computation, recipient resolution, reconciliation
// against the existing row.
func (b *Builder) buildOne(ctx context.Context, settings *types.SchedulerSettings, sub subject, now time.Time, report *types.SyncReport) {
	report.Scanned++

	key := JobKey(settings.OrganizationID, sub.messageType, sub.kind, sub.id)
	existing, err := b.jobs.FindByKey(ctx, key)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to load existing job",
			"job_key", key,
			"error", err,
		)
		report.RecordSkip(sub.name, sub.messageType, "storage error")
		return
	}

	// Terminal rows are never recomputed.
	if existing != nil && existing.Status.IsTerminal() {
		report.Unchanged++
		return
	}

	// Operator-paused rows sit out recompute until re-enabled.
	if existing != nil && existing.Status == types.JobStatusPaused {
		report.RecordSkip(sub.name, sub.messageType, "paused by operator")
		return
	}

	typeSettings := settings.ForType(sub.messageType)
	if !settings.Enabled {
		b.skipSubject(ctx, existing, sub, "scheduler disabled for organization", report)
		return
	}
	if !typeSettings.Enabled {
		b.skipSubject(ctx, existing, sub, fmt.Sprintf("%s disabled for organization", sub.messageType), report)
		return
	}

	if reason := b.eligibilityReason(sub); reason != "" {
		b.skipSubject(ctx, existing, sub, reason, report)
		return
	}

	weekendRule := sub.messageType == types.MessageTypeInit
	sendAt := b.policy.ComputeSendAt(now, sub.anchor, typeSettings.LeadDays, typeSettings.SendTime, weekendRule)

	recipient, reason, err := b.resolveRecipient(ctx, sub)
	if err != nil {
		b.logger.ErrorContext(ctx, "recipient resolution failed",
			"job_key", key,
			"error", err,
		)
		report.RecordSkip(sub.name, sub.messageType, "storage error")
		return
	}

	if recipient == nil {
		// Missing recipient is never a silent drop: the subject stays
		// visible as a blocked row the operator can fix.
		b.upsert(ctx, sub, key, &types.MessageJob{
			OrganizationID: settings.OrganizationID,
			JobKey:         key,
			MessageType:    sub.messageType,
			SendAt:         sendAt,
			Status:         types.JobStatusBlocked,
			Enabled:        existingEnabled(existing),
			MaxAttempts:    types.DefaultMaxAttempts,
			LastError:      reason,
			SubjectName:    sub.name,
		}, report, types.SyncBlocked)
		return
	}

	// Unchanged rows are left untouched to avoid churn. A retrying row is
	// mid-lifecycle; its send_at belongs to the retry schedule, not ours.
	if existing != nil &&
		existing.Status != types.JobStatusBlocked &&
		existing.SendAt.Equal(sendAt) &&
		existing.RecipientPhone == recipient.Phone {
		report.Unchanged++
		return
	}
	if existing != nil && existing.Status == types.JobStatusRetrying {
		report.Unchanged++
		return
	}

	b.upsert(ctx, sub, key, &types.MessageJob{
		OrganizationID: settings.OrganizationID,
		JobKey:         key,
		MessageType:    sub.messageType,
		SendAt:         sendAt,
		Status:         types.JobStatusScheduled,
		Enabled:        existingEnabled(existing),
		MaxAttempts:    types.DefaultMaxAttempts,
		RecipientName:  recipient.Name,
		RecipientPhone: recipient.Phone,
		SubjectName:    sub.name,
	}, report, types.SyncUpdated)
}

// eligibilityReason returns a non-empty skip reason when the subject does not
// warrant a job of this type.
func (b *Builder) eligibilityReason(sub subject) string {
	switch sub.messageType {
	case types.MessageTypeInit:
		// A load-in time means the event is already confirmed; it must not
		// receive an initial-contact message.
		if sub.event.LoadInAt != nil {
			return "event already has a load-in time"
		}
	case types.MessageTypeTechReminder:
		if sub.event.TechContactID == nil {
			return "event has no technical contact"
		}
	case types.MessageTypeShiftReminder:
		if sub.shift.CallTime == nil {
			return "shift has no call time"
		}
	}
	return ""
}

func (b *Builder) resolveRecipient(ctx context.Context, sub subject) (*types.Recipient, string, error) {
	if sub.kind == types.SubjectShift {
		return b.resolver.ForShift(ctx, sub.shift)
	}
	return b.resolver.ForEvent(ctx, sub.messageType, sub.event)
}

// skipSubject marks any existing non-terminal job skipped with the reason and
// records the skip. No new job is created for an ineligible subject.
func (b *Builder) skipSubject(ctx context.Context, existing *types.MessageJob, sub subject, reason string, report *types.SyncReport) {
	if existing != nil {
		if err := b.jobs.SetStatus(ctx, existing.ID, types.JobStatusSkipped, reason); err != nil {
			b.logger.ErrorContext(ctx, "failed to mark job skipped",
				"job_id", existing.ID,
				"reason", reason,
				"error", err,
			)
		}
	}
	report.RecordSkip(sub.name, sub.messageType, reason)
}

// upsert writes the desired row and classifies the result. Subjects are
// attached to the given event or shift by key; the numeric reference columns
// follow the subject kind.
func (b *Builder) upsert(ctx context.Context, sub subject, key string, job *types.MessageJob, report *types.SyncReport, bucket types.SyncBucket) {
	if sub.kind == types.SubjectShift {
		job.ShiftID = &sub.id
	} else {
		job.EventID = &sub.id
	}

	_, created, err := b.jobs.UpsertByKey(ctx, job)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to upsert job",
			"job_key", key,
			"error", err,
		)
		report.RecordSkip(sub.name, sub.messageType, "storage error")
		return
	}

	if bucket == types.SyncBlocked {
		report.Blocked++
		return
	}
	if created {
		report.Created++
	} else {
		report.Updated++
	}
}

func existingEnabled(existing *types.MessageJob) bool {
	if existing == nil {
		return true
	}
	return existing.Enabled
}
