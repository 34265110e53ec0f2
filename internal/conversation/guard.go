package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"stagecall/internal/messaging"
	"stagecall/internal/phone"
	"stagecall/internal/types"
)

// messageKind classifies one inbound message by its payload shape.
type messageKind int

const (
	kindFreeText messageKind = iota
	kindInteractive
	kindContactShare
)

// GuardAction is what the guard decided to do with an inbound message.
type GuardAction string

const (
	// ActionPass hands the message to the business handler.
	ActionPass GuardAction = "pass"
	// ActionAbsorbed swallows the message with no reply and no state change.
	ActionAbsorbed GuardAction = "absorbed"
	// ActionRejected sent a corrective reply and re-sent the last prompt;
	// the business handler never sees the message.
	ActionRejected GuardAction = "rejected"
)

// Corrective reply texts. Plain text, sent inside the open session window.
const (
	correctiveButtons = "נא להשתמש בכפתורים"
	correctiveConfirm = "נא לאשר או לחזור אחורה"
	correctiveContact = "יש לצרף איש קשר או לכתוב שם מלא וטלפון בהודעה אחת"
)

// GuardResult is the guard's decision for one inbound message.
type GuardResult struct {
	Action GuardAction `json:"action"`
	// ContactPhone is set when a contact_required thread accepted a contact,
	// either from a shared card or synthesized from free text containing
	// exactly one phone number.
	ContactPhone string `json:"contact_phone,omitempty"`
}

// Guard enforces the expected-input state of a thread before any business
// handler runs. Invalid input never reaches a handler and never changes
// state: the sender gets a corrective text plus an exact re-send of the last
// prompt, and the thread keeps waiting for the same reply.
type Guard struct {
	store     ConversationStore
	texts     messaging.TextSender
	templates messaging.TemplateSender
	logger    *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(store ConversationStore, texts messaging.TextSender, templates messaging.TemplateSender, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: store, texts: texts, templates: templates, logger: logger}
}

// HandleInbound classifies the message against the thread's expected input.
// A thread with no recorded state passes everything through.
func (g *Guard) HandleInbound(ctx context.Context, orgID string, msg *types.InboundMessage) (*GuardResult, error) {
	from, ok := phone.NormalizeIL(msg.From)
	if !ok {
		from = msg.From
	}

	conv, err := g.store.GetForContact(ctx, orgID, from)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundConversation {
			return &GuardResult{Action: ActionPass}, nil
		}
		return nil, err
	}

	kind := classify(msg)

	switch conv.ExpectedInput {
	case types.InputPaused:
		return &GuardResult{Action: ActionAbsorbed}, nil

	case types.InputFreeTextAllowed:
		return &GuardResult{Action: ActionPass}, nil

	case types.InputInteractive:
		if kind == kindInteractive {
			return &GuardResult{Action: ActionPass}, nil
		}
		return g.reject(ctx, conv, from, interactiveCorrective(conv))

	case types.InputContactRequired:
		return g.handleContactRequired(ctx, conv, from, kind, msg)

	default:
		g.logger.WarnContext(ctx, "conversation has unknown expected input, passing through",
			"organization_id", orgID,
			"contact_phone", from,
			"expected_input", string(conv.ExpectedInput),
		)
		return &GuardResult{Action: ActionPass}, nil
	}
}

// handleContactRequired accepts a shared contact card, or free text carrying
// exactly one phone number (synthesized into a contact share). Zero or
// multiple numbers is ambiguous and gets re-prompted.
func (g *Guard) handleContactRequired(ctx context.Context, conv *types.Conversation, from string, kind messageKind, msg *types.InboundMessage) (*GuardResult, error) {
	switch kind {
	case kindContactShare:
		shared, ok := phone.NormalizeIL(msg.ContactPhone)
		if !ok {
			return g.reject(ctx, conv, from, correctiveContact)
		}
		return &GuardResult{Action: ActionPass, ContactPhone: shared}, nil

	case kindFreeText:
		numbers := phone.Extract(msg.Body)
		if len(numbers) == 1 {
			return &GuardResult{Action: ActionPass, ContactPhone: numbers[0]}, nil
		}
		return g.reject(ctx, conv, from, correctiveContact)

	default:
		return g.reject(ctx, conv, from, correctiveContact)
	}
}

// reject sends the corrective text and re-sends the last prompt verbatim.
// State is not touched: the thread still waits for the same reply. Delivery
// trouble on the corrective path is logged, not propagated; the webhook must
// still be acknowledged.
func (g *Guard) reject(ctx context.Context, conv *types.Conversation, to, corrective string) (*GuardResult, error) {
	if _, err := g.texts.SendText(ctx, to, corrective); err != nil {
		g.logger.ErrorContext(ctx, "failed to send corrective reply",
			"contact_phone", to,
			"error", err,
		)
	}

	if conv.LastPrompt != nil {
		if _, err := g.templates.SendTemplate(ctx, to, conv.LastPrompt.TemplateID, conv.LastPrompt.Variables); err != nil {
			g.logger.ErrorContext(ctx, "failed to re-send last prompt",
				"contact_phone", to,
				"prompt_kind", string(conv.LastPrompt.Kind),
				"error", err,
			)
		}
	}
	return &GuardResult{Action: ActionRejected}, nil
}

// interactiveCorrective picks the corrective wording for a button-only
// thread; the confirmation step has its own phrasing.
func interactiveCorrective(conv *types.Conversation) string {
	if conv.LastPrompt != nil && conv.LastPrompt.Kind == types.PromptConfirm {
		return correctiveConfirm
	}
	return correctiveButtons
}

// classify determines the payload shape of one inbound message. A vCard
// attachment counts as a contact share even without a parsed contact phone.
func classify(msg *types.InboundMessage) messageKind {
	if msg.ButtonPayload != "" {
		return kindInteractive
	}
	if msg.ContactPhone != "" || strings.Contains(msg.MediaContentType, "vcard") {
		return kindContactShare
	}
	return kindFreeText
}
