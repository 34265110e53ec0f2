package types

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time in the organization's civil timezone.
// Stored as "HH:MM" in the settings table.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseTimeOfDay parses a "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var tod TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &tod.Hour, &tod.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if tod.Hour < 0 || tod.Hour > 23 || tod.Minute < 0 || tod.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return tod, nil
}

// String renders the time as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MessageJob is a row in the message_jobs table: one scheduled WhatsApp
// message for one subject (event or shift).
//
// The numeric ID is storage-assigned. JobKey is the idempotency boundary:
// the builder upserts by key, so at most one non-terminal job exists per
// (organization, message type, subject) at any time.
type MessageJob struct {
	ID             int64       `json:"id"`
	OrganizationID string      `json:"organization_id"`
	JobKey         string      `json:"job_key"`
	MessageType    MessageType `json:"message_type"`

	// Subject reference. Exactly one of EventID or ShiftID is set; the
	// builder enforces this, not the schema.
	EventID *int64 `json:"event_id,omitempty"`
	ShiftID *int64 `json:"shift_id,omitempty"`

	SendAt  time.Time `json:"send_at"`
	Status  JobStatus `json:"status"`
	Enabled bool      `json:"enabled"`

	AttemptCount int    `json:"attempt_count"`
	MaxAttempts  int    `json:"max_attempts"`
	LastError    string `json:"last_error,omitempty"`

	SentAt *time.Time `json:"sent_at,omitempty"`

	// Snapshot of who the message actually went to, recorded at send time
	// for audit and operator display. Never used as the dispatch recipient;
	// recipients are re-resolved fresh on every attempt.
	RecipientName  string `json:"recipient_name,omitempty"`
	RecipientPhone string `json:"recipient_phone,omitempty"`

	// SubjectName is the event or employee name, denormalized for ordering
	// and operator display.
	SubjectName string `json:"subject_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultMaxAttempts is the retry budget for retryable delivery failures.
const DefaultMaxAttempts = 3

// SubjectKey returns the identifier of the job's subject, regardless of kind.
func (j *MessageJob) SubjectKey() (SubjectKind, int64) {
	if j.ShiftID != nil {
		return SubjectShift, *j.ShiftID
	}
	if j.EventID != nil {
		return SubjectEvent, *j.EventID
	}
	return SubjectEvent, 0
}

// TypeSettings holds the per-message-type scheduling knobs.
type TypeSettings struct {
	Enabled  bool      `json:"enabled"`
	LeadDays int       `json:"lead_days"`
	SendTime TimeOfDay `json:"send_time"`
}

// SchedulerSettings is the per-organization configuration read by every
// builder pass. One row per organization, created on first access with the
// defaults below.
type SchedulerSettings struct {
	OrganizationID string       `json:"organization_id"`
	Enabled        bool         `json:"enabled"`
	Init           TypeSettings `json:"init"`
	TechReminder   TypeSettings `json:"tech_reminder"`
	ShiftReminder  TypeSettings `json:"shift_reminder"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// DefaultSchedulerSettings returns the settings applied when an organization
// has no row yet: INIT 28 days ahead at 10:00, TECH_REMINDER 2 days at 12:00,
// SHIFT_REMINDER 1 day at 12:00, everything enabled.
func DefaultSchedulerSettings(orgID string) *SchedulerSettings {
	return &SchedulerSettings{
		OrganizationID: orgID,
		Enabled:        true,
		Init:           TypeSettings{Enabled: true, LeadDays: 28, SendTime: TimeOfDay{Hour: 10}},
		TechReminder:   TypeSettings{Enabled: true, LeadDays: 2, SendTime: TimeOfDay{Hour: 12}},
		ShiftReminder:  TypeSettings{Enabled: true, LeadDays: 1, SendTime: TimeOfDay{Hour: 12}},
	}
}

// ForType returns the settings block for the given message type.
func (s *SchedulerSettings) ForType(mt MessageType) TypeSettings {
	switch mt {
	case MessageTypeTechReminder:
		return s.TechReminder
	case MessageTypeShiftReminder:
		return s.ShiftReminder
	default:
		return s.Init
	}
}

// Heartbeat is the single most-recent-state record per organization,
// overwritten after every dispatch cycle.
type Heartbeat struct {
	OrganizationID string    `json:"organization_id"`
	LastRunAt      time.Time `json:"last_run_at"`
	Status         RunStatus `json:"status"`
	DueFound       int       `json:"due_found"`
	Sent           int       `json:"sent"`
	Failed         int       `json:"failed"`
	Blocked        int       `json:"blocked"`
	Skipped        int       `json:"skipped"`
	Postponed      int       `json:"postponed"`
	LastError      string    `json:"last_error,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
}

// Event is the calendar subject of INIT and TECH_REMINDER jobs. The engine
// reads events; it never writes them.
type Event struct {
	ID             int64      `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Name           string     `json:"name"`
	Date           time.Time  `json:"date"` // calendar date; time component ignored
	LoadInAt       *time.Time `json:"load_in_at,omitempty"`
	TechContactID  *int64     `json:"tech_contact_id,omitempty"`
	ProducerID     *int64     `json:"producer_id,omitempty"`
}

// Shift is the subject of SHIFT_REMINDER jobs.
type Shift struct {
	ID             int64      `json:"id"`
	OrganizationID string     `json:"organization_id"`
	EventID        int64      `json:"event_id"`
	EventName      string     `json:"event_name"`
	Date           time.Time  `json:"date"`
	CallTime       *TimeOfDay `json:"call_time,omitempty"`
	EmployeeID     *int64     `json:"employee_id,omitempty"`
}

// Contact is a phone-book entry resolved at dispatch time.
type Contact struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Recipient is the resolved destination of one delivery attempt.
type Recipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Prompt is the last outbound template sent on a conversation, stored so the
// guard can re-send it verbatim after rejecting invalid input.
type Prompt struct {
	Kind       PromptKind        `json:"kind"`
	TemplateID string            `json:"template_id"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// Conversation tracks the expected-input state of one WhatsApp thread.
// Every outbound template send writes ExpectedInput and LastPrompt; the guard
// reads them before any business handler runs.
type Conversation struct {
	ID             int64         `json:"id"`
	OrganizationID string        `json:"organization_id"`
	ContactPhone   string        `json:"contact_phone"`
	ExpectedInput  ExpectedInput `json:"expected_input"`
	LastPrompt     *Prompt       `json:"last_prompt,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// InboundMessage is the normalized form of one inbound WhatsApp webhook.
type InboundMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
	// ButtonPayload is non-empty for structured button/list replies.
	ButtonPayload string `json:"button_payload,omitempty"`
	// ContactPhone is non-empty when the message carries a shared contact card.
	ContactPhone string `json:"contact_phone,omitempty"`
	// MediaContentType is set for media attachments; a text/vcard attachment
	// counts as a contact share.
	MediaContentType string `json:"media_content_type,omitempty"`
}

// SkippedSubject is one entry in the bounded sample of skipped subjects
// included in a sync report.
type SkippedSubject struct {
	SubjectName string      `json:"subject_name"`
	MessageType MessageType `json:"message_type"`
	Reason      string      `json:"reason"`
}

// SyncReport aggregates one recompute pass over all current and future
// subjects of an organization. "0 created, 0 errors" is never unexplained:
// every subject lands in exactly one bucket and skip reasons are broken down.
type SyncReport struct {
	OrganizationID string           `json:"organization_id"`
	Scanned        int              `json:"scanned"`
	Created        int              `json:"created"`
	Updated        int              `json:"updated"`
	Unchanged      int              `json:"unchanged"`
	Blocked        int              `json:"blocked"`
	Skipped        int              `json:"skipped"`
	SkipReasons    map[string]int   `json:"skip_reasons,omitempty"`
	SkippedSample  []SkippedSubject `json:"skipped_sample,omitempty"`
	DurationMS     int64            `json:"duration_ms"`
}

// SkippedSampleLimit bounds the SkippedSample slice in a SyncReport.
const SkippedSampleLimit = 10

// Count increments the bucket counter for one classified subject.
func (r *SyncReport) Count(bucket SyncBucket) {
	switch bucket {
	case SyncCreated:
		r.Created++
	case SyncUpdated:
		r.Updated++
	case SyncUnchanged:
		r.Unchanged++
	case SyncBlocked:
		r.Blocked++
	case SyncSkipped:
		r.Skipped++
	}
}

// RecordSkip counts a skipped subject, tallies its reason, and appends it to
// the bounded sample.
func (r *SyncReport) RecordSkip(name string, mt MessageType, reason string) {
	r.Skipped++
	if r.SkipReasons == nil {
		r.SkipReasons = make(map[string]int)
	}
	r.SkipReasons[reason]++
	if len(r.SkippedSample) < SkippedSampleLimit {
		r.SkippedSample = append(r.SkippedSample, SkippedSubject{
			SubjectName: name,
			MessageType: mt,
			Reason:      reason,
		})
	}
}

// DispatchReport summarizes one dispatch cycle for an organization.
type DispatchReport struct {
	OrganizationID string    `json:"organization_id"`
	DueFound       int       `json:"due_found"`
	Sent           int       `json:"sent"`
	Failed         int       `json:"failed"`
	Blocked        int       `json:"blocked"`
	Skipped        int       `json:"skipped"`
	Postponed      int       `json:"postponed"`
	Status         RunStatus `json:"status"`
	LastError      string    `json:"last_error,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
}

// ManualSendResult is the structured outcome of the manual send path.
type ManualSendResult struct {
	Outcome           ManualSendOutcome `json:"outcome"`
	Detail            string            `json:"detail,omitempty"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
}

// SyncMessage is the SQS payload consumed by the sync worker to run a
// recompute pass for one organization.
type SyncMessage struct {
	OrganizationID string    `json:"organization_id"`
	TraceID        string    `json:"trace_id"`
	Reason         string    `json:"reason"`
	RequestedAt    time.Time `json:"requested_at"`
}
