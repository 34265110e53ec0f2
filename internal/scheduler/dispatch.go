package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stagecall/internal/messaging"
	"stagecall/internal/types"
)

// DispatchBatchLimit bounds the due jobs processed in one cycle so a Lambda
// invocation cannot run unbounded.
const DispatchBatchLimit = 200

// RetryDelay is the explicit spacing between delivery attempts: a retryable
// failure reschedules the job at now + RetryDelay rather than leaving the
// retry cadence coupled to the trigger period.
const RetryDelay = 10 * time.Minute

// DispatcherJobStore is the job persistence surface the dispatch loop needs.
type DispatcherJobStore interface {
	ListDue(ctx context.Context, orgID string, now time.Time, limit int) ([]types.MessageJob, error)
	GetByID(ctx context.Context, id int64) (*types.MessageJob, error)
	SetStatus(ctx context.Context, id int64, status types.JobStatus, lastError string) error
	SetSendAt(ctx context.Context, id int64, sendAt time.Time) error
	IncrementAttempt(ctx context.Context, id int64, lastError string) (int, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time, recipient types.Recipient) error
}

// DispatcherDirectory loads subjects for fresh recipient resolution.
type DispatcherDirectory interface {
	ContactReader
	GetEvent(ctx context.Context, id int64) (*types.Event, error)
	GetShift(ctx context.Context, id int64) (*types.Shift, error)
}

// HeartbeatWriter records the outcome of one cycle.
type HeartbeatWriter interface {
	Upsert(ctx context.Context, hb *types.Heartbeat) error
}

// PromptSender delivers one outbound template and records the conversation's
// new expected-input state as part of the send. Every outbound template in
// the system goes through this; a send that skips the state write breaks the
// inbound guard.
type PromptSender interface {
	SendPrompt(ctx context.Context, orgID, toPhone string, prompt types.Prompt, expected types.ExpectedInput) (string, error)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Jobs       DispatcherJobStore
	Directory  DispatcherDirectory
	Heartbeats HeartbeatWriter
	Sender     PromptSender
	// Templates maps each message type to its provider template ID.
	Templates map[types.MessageType]string
	Clock     types.Clock
	Logger    *slog.Logger
}

// Dispatcher runs the delivery cycle and the manual send path. Both share
// one outcome classifier so the two paths cannot drift apart.
type Dispatcher struct {
	jobs       DispatcherJobStore
	dir        DispatcherDirectory
	heartbeats HeartbeatWriter
	sender     PromptSender
	resolver   *RecipientResolver
	templates  map[types.MessageType]string
	clock      types.Clock
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Dispatcher{
		jobs:       cfg.Jobs,
		dir:        cfg.Directory,
		heartbeats: cfg.Heartbeats,
		sender:     cfg.Sender,
		resolver:   NewRecipientResolver(cfg.Directory),
		templates:  cfg.Templates,
		clock:      clock,
		logger:     logger,
	}
}

// RunOnce processes every due job of one organization and overwrites the
// organization's heartbeat with the cycle summary. One job's failure never
// aborts the rest of the cycle.
func (d *Dispatcher) RunOnce(ctx context.Context, orgID string) (*types.DispatchReport, error) {
	start := d.clock.Now()
	report := &types.DispatchReport{OrganizationID: orgID, Status: types.RunStatusOK}

	due, err := d.jobs.ListDue(ctx, orgID, start, DispatchBatchLimit)
	if err != nil {
		report.Status = types.RunStatusError
		report.LastError = err.Error()
		d.writeHeartbeat(ctx, report, start)
		return report, fmt.Errorf("listing due jobs: %w", err)
	}
	report.DueFound = len(due)

	for i := range due {
		job := &due[i]
		if err := d.dispatchJob(ctx, job, report); err != nil {
			// Recorded on the job and in the report; the cycle continues.
			d.logger.ErrorContext(ctx, "job dispatch failed",
				"job_id", job.ID,
				"job_key", job.JobKey,
				"error", err,
			)
			report.Failed++
			report.LastError = err.Error()
			if serr := d.jobs.SetStatus(ctx, job.ID, job.Status, err.Error()); serr != nil {
				d.logger.ErrorContext(ctx, "failed to record job error",
					"job_id", job.ID,
					"error", serr,
				)
			}
		}
	}

	if report.Failed > 0 || report.Blocked > 0 || report.Postponed > 0 {
		report.Status = types.RunStatusWarning
	}
	d.writeHeartbeat(ctx, report, start)

	report.DurationMS = time.Since(start).Milliseconds()
	d.logger.InfoContext(ctx, "dispatch cycle complete",
		"organization_id", orgID,
		"due_found", report.DueFound,
		"sent", report.Sent,
		"failed", report.Failed,
		"blocked", report.Blocked,
		"skipped", report.Skipped,
		"postponed", report.Postponed,
		"status", string(report.Status),
	)
	return report, nil
}

// dispatchJob re-resolves the recipient fresh and attempts one delivery.
// Returns an error only for infrastructure failures; business outcomes are
// counted on the report. A subject deleted since the build pass skips the
// job terminally; a subject that merely lost its contact blocks it.
func (d *Dispatcher) dispatchJob(ctx context.Context, job *types.MessageJob, report *types.DispatchReport) error {
	recipient, reason, gone, err := d.resolveFresh(ctx, job)
	if err != nil {
		return err
	}
	if gone {
		if err := d.jobs.SetStatus(ctx, job.ID, types.JobStatusSkipped, reason); err != nil {
			return err
		}
		report.Skipped++
		return nil
	}
	if recipient == nil {
		if err := d.jobs.SetStatus(ctx, job.ID, types.JobStatusBlocked, reason); err != nil {
			return err
		}
		report.Blocked++
		return nil
	}

	providerID, sendErr := d.send(ctx, job, recipient)
	outcome, err := d.applySendOutcome(ctx, job, recipient, sendErr, true)
	if err != nil {
		return err
	}

	switch outcome {
	case types.JobStatusSent:
		report.Sent++
		d.logger.InfoContext(ctx, "message sent",
			"job_id", job.ID,
			"job_key", job.JobKey,
			"provider_message_id", providerID,
		)
	case types.JobStatusRetrying:
		report.Postponed++
	case types.JobStatusFailed:
		report.Failed++
	}
	return nil
}

// SendNow is the manual send path: it bypasses enable flags, send_at and
// dedup, but still re-resolves the recipient and still requires a valid
// phone. It reports the outcome; it does not own the job's automatic retry
// lifecycle. A terminal job is refused before the provider is touched, so
// the refusal can never leave a delivered message behind an error.
func (d *Dispatcher) SendNow(ctx context.Context, jobID int64) (*types.ManualSendResult, error) {
	job, err := d.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == types.JobStatusSent {
		return &types.ManualSendResult{
			Outcome: types.ManualSendAlreadySent,
			Detail:  "job was already delivered",
		}, nil
	}
	if job.Status.IsTerminal() {
		return nil, types.NewAppError(types.ErrCodeConflictTerminalJob,
			fmt.Sprintf("cannot manually send a job in terminal status %s", job.Status), nil)
	}

	recipient, reason, gone, err := d.resolveFresh(ctx, job)
	if err != nil {
		return nil, err
	}
	if gone {
		if err := d.jobs.SetStatus(ctx, job.ID, types.JobStatusSkipped, reason); err != nil {
			return nil, err
		}
		return &types.ManualSendResult{
			Outcome: types.ManualSendMissingRecipient,
			Detail:  reason,
		}, nil
	}
	if recipient == nil {
		if err := d.jobs.SetStatus(ctx, job.ID, types.JobStatusBlocked, reason); err != nil {
			return nil, err
		}
		return &types.ManualSendResult{
			Outcome: types.ManualSendMissingRecipient,
			Detail:  reason,
		}, nil
	}

	providerID, sendErr := d.send(ctx, job, recipient)
	outcome, err := d.applySendOutcome(ctx, job, recipient, sendErr, false)
	if err != nil {
		return nil, err
	}

	if outcome == types.JobStatusSent {
		return &types.ManualSendResult{
			Outcome:           types.ManualSendSent,
			ProviderMessageID: providerID,
		}, nil
	}
	return &types.ManualSendResult{
		Outcome: types.ManualSendFailed,
		Detail:  sendErr.Error(),
	}, nil
}

// send delivers the job's template through the state-writing prompt sender.
func (d *Dispatcher) send(ctx context.Context, job *types.MessageJob, recipient *types.Recipient) (string, error) {
	templateID, ok := d.templates[job.MessageType]
	if !ok {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("no template configured for message type %s", job.MessageType), nil)
	}

	prompt := types.Prompt{
		Kind:       promptKindFor(job.MessageType),
		TemplateID: templateID,
		Variables: map[string]string{
			"name":    recipient.Name,
			"subject": job.SubjectName,
		},
	}
	return d.sender.SendPrompt(ctx, job.OrganizationID, recipient.Phone, prompt, expectedAfter(job.MessageType))
}

// applySendOutcome classifies one provider outcome and updates the job. It
// is the single shared function behind both the dispatch loop and the manual
// send path; applyRetry selects whether a retryable failure consumes the
// job's attempt budget (the manual path reports failures without owning the
// retry lifecycle).
func (d *Dispatcher) applySendOutcome(ctx context.Context, job *types.MessageJob, recipient *types.Recipient, sendErr error, applyRetry bool) (types.JobStatus, error) {
	now := d.clock.Now()

	if sendErr == nil {
		if err := d.jobs.MarkSent(ctx, job.ID, now, *recipient); err != nil {
			return "", err
		}
		return types.JobStatusSent, nil
	}

	if !applyRetry {
		// Record the failure text without disturbing status or attempts.
		if err := d.jobs.SetStatus(ctx, job.ID, job.Status, sendErr.Error()); err != nil {
			return "", err
		}
		return types.JobStatusFailed, nil
	}

	if !messaging.IsRetryable(sendErr) {
		if err := d.jobs.SetStatus(ctx, job.ID, types.JobStatusFailed, sendErr.Error()); err != nil {
			return "", err
		}
		return types.JobStatusFailed, nil
	}

	attempts, err := d.jobs.IncrementAttempt(ctx, job.ID, sendErr.Error())
	if err != nil {
		return "", err
	}
	if attempts >= job.MaxAttempts {
		if err := d.jobs.SetStatus(ctx, job.ID, types.JobStatusFailed, sendErr.Error()); err != nil {
			return "", err
		}
		return types.JobStatusFailed, nil
	}

	if err := d.jobs.SetStatus(ctx, job.ID, types.JobStatusRetrying, sendErr.Error()); err != nil {
		return "", err
	}
	if err := d.jobs.SetSendAt(ctx, job.ID, now.Add(RetryDelay)); err != nil {
		return "", err
	}
	return types.JobStatusRetrying, nil
}

// resolveFresh loads the job's subject and resolves the recipient from
// current contact data. gone reports that the subject itself no longer
// exists, as opposed to existing without a usable contact.
func (d *Dispatcher) resolveFresh(ctx context.Context, job *types.MessageJob) (recipient *types.Recipient, reason string, gone bool, err error) {
	kind, subjectID := job.SubjectKey()
	if kind == types.SubjectShift {
		shift, err := d.dir.GetShift(ctx, subjectID)
		if err != nil {
			return nil, "", false, err
		}
		if shift == nil {
			return nil, "shift no longer exists", true, nil
		}
		recipient, reason, err = d.resolver.ForShift(ctx, shift)
		return recipient, reason, false, err
	}

	event, err := d.dir.GetEvent(ctx, subjectID)
	if err != nil {
		return nil, "", false, err
	}
	if event == nil {
		return nil, "event no longer exists", true, nil
	}
	recipient, reason, err = d.resolver.ForEvent(ctx, job.MessageType, event)
	return recipient, reason, false, err
}

func (d *Dispatcher) writeHeartbeat(ctx context.Context, report *types.DispatchReport, start time.Time) {
	hb := &types.Heartbeat{
		OrganizationID: report.OrganizationID,
		LastRunAt:      start,
		Status:         report.Status,
		DueFound:       report.DueFound,
		Sent:           report.Sent,
		Failed:         report.Failed,
		Blocked:        report.Blocked,
		Skipped:        report.Skipped,
		Postponed:      report.Postponed,
		LastError:      report.LastError,
		DurationMS:     time.Since(start).Milliseconds(),
	}
	if err := d.heartbeats.Upsert(ctx, hb); err != nil {
		d.logger.ErrorContext(ctx, "failed to write heartbeat",
			"organization_id", report.OrganizationID,
			"error", err,
		)
	}
}

// promptKindFor maps a message type to the prompt kind stored on the
// conversation for exact re-send.
func promptKindFor(mt types.MessageType) types.PromptKind {
	switch mt {
	case types.MessageTypeTechReminder:
		return types.PromptTechReminder
	case types.MessageTypeShiftReminder:
		return types.PromptShiftReminder
	default:
		return types.PromptInit
	}
}

// expectedAfter is the conversation state written with each outbound type:
// INIT opens the button flow, reminders leave the thread free.
func expectedAfter(mt types.MessageType) types.ExpectedInput {
	if mt == types.MessageTypeInit {
		return types.InputInteractive
	}
	return types.InputFreeTextAllowed
}
