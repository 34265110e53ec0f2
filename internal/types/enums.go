package types

// JobStatus represents the lifecycle state of a scheduled message job.
// These values MUST match the CHECK constraint on the message_jobs table.
type JobStatus string

const (
	JobStatusScheduled JobStatus = "scheduled"
	JobStatusBlocked   JobStatus = "blocked"
	JobStatusRetrying  JobStatus = "retrying"
	JobStatusPaused    JobStatus = "paused"
	JobStatusSent      JobStatus = "sent"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
)

// IsTerminal reports whether the status is final. Terminal jobs are never
// recomputed by the builder and never re-dispatched by the loop.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSent, JobStatusFailed, JobStatusSkipped:
		return true
	}
	return false
}

// Valid reports whether the status is one of the defined enum values.
// Used to validate operator edits before writing them to storage.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusScheduled, JobStatusBlocked, JobStatusRetrying,
		JobStatusPaused, JobStatusSent, JobStatusFailed, JobStatusSkipped:
		return true
	}
	return false
}

// MessageType identifies the kind of scheduled WhatsApp message.
type MessageType string

const (
	// MessageTypeInit is the initial-contact message sent well ahead of the
	// event date. It is the only type subject to the weekend postponement rule.
	MessageTypeInit MessageType = "INIT"
	// MessageTypeTechReminder is the technical reminder sent to the event's
	// technical contact shortly before the event.
	MessageTypeTechReminder MessageType = "TECH_REMINDER"
	// MessageTypeShiftReminder is the call-time reminder sent to the employee
	// assigned to a shift.
	MessageTypeShiftReminder MessageType = "SHIFT_REMINDER"
)

// Valid reports whether the message type is one of the defined enum values.
func (m MessageType) Valid() bool {
	switch m {
	case MessageTypeInit, MessageTypeTechReminder, MessageTypeShiftReminder:
		return true
	}
	return false
}

// AllMessageTypes lists every message type the builder considers.
var AllMessageTypes = []MessageType{
	MessageTypeInit,
	MessageTypeTechReminder,
	MessageTypeShiftReminder,
}

// SubjectKind distinguishes the two possible subjects of a job. A job
// references exactly one event or one shift, never both.
type SubjectKind string

const (
	SubjectEvent SubjectKind = "event"
	SubjectShift SubjectKind = "shift"
)

// RunStatus is the overall outcome of one dispatch cycle, recorded on the
// organization's heartbeat row.
type RunStatus string

const (
	RunStatusOK      RunStatus = "ok"
	RunStatusWarning RunStatus = "warning"
	RunStatusError   RunStatus = "error"
)

// HealthState is the traffic-light signal derived from heartbeat age.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// ManualSendOutcome classifies the result of an operator-triggered send.
// The manual path always returns one of these instead of raising for expected
// business conditions.
type ManualSendOutcome string

const (
	ManualSendSent             ManualSendOutcome = "sent"
	ManualSendMissingRecipient ManualSendOutcome = "missing_recipient"
	ManualSendFailed           ManualSendOutcome = "send_failed"
	ManualSendAlreadySent      ManualSendOutcome = "already_sent"
	ManualSendException        ManualSendOutcome = "exception"
)

// ExpectedInput is the conversation-level flag governing which kinds of
// inbound message the guard accepts without a corrective re-prompt.
type ExpectedInput string

const (
	// InputInteractive means only structured button/list replies are accepted.
	InputInteractive ExpectedInput = "interactive"
	// InputContactRequired means a contact card (or free text containing
	// exactly one phone number) is expected.
	InputContactRequired ExpectedInput = "contact_required"
	// InputFreeTextAllowed passes every inbound message through.
	InputFreeTextAllowed ExpectedInput = "free_text_allowed"
	// InputPaused absorbs everything: no reply, no state change, no downstream
	// handling. Reached after a "not sure yet" terminal action.
	InputPaused ExpectedInput = "paused"
)

// PromptKind names an outbound template so the guard can re-send the exact
// last prompt on rejection. Dispatch is by switch on the kind, each variant
// carrying its own parameter payload in Prompt.Variables.
type PromptKind string

const (
	PromptInit          PromptKind = "init"
	PromptRanges        PromptKind = "ranges"
	PromptHalves        PromptKind = "halves"
	PromptConfirm       PromptKind = "confirm"
	PromptContactShare  PromptKind = "contact_prompt"
	PromptNotSure       PromptKind = "not_sure"
	PromptTechReminder  PromptKind = "tech_reminder"
	PromptShiftReminder PromptKind = "shift_reminder"
)

// SyncBucket is the exactly-one classification the builder assigns to every
// subject it considers during a recompute pass.
type SyncBucket string

const (
	SyncCreated   SyncBucket = "created"
	SyncUpdated   SyncBucket = "updated"
	SyncUnchanged SyncBucket = "unchanged"
	SyncBlocked   SyncBucket = "blocked"
	SyncSkipped   SyncBucket = "skipped"
)
