package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventCommentAdded        EventType = "ticket_comment_added"
	EventSLABreached         EventType = "ticket_sla_breached"
	EventTicketRedFlagged    EventType = "ticket_red_flagged"
	EventEscalationNotify    EventType = "escalation_notify"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role domain.ActorRole `json:"role"`
	ID   *string          `json:"id,omitempty"`
}

// ActorFrom projects a domain actor onto event metadata.
func ActorFrom(a domain.Actor) Actor {
	out := Actor{Role: a.Role}
	if a.ID != "" {
		id := a.ID
		out.ID = &id
	}
	return out
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TenantID  string      `json:"tenant_id"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber string                `json:"ticket_number"`
	Category     string                `json:"category"`
	Priority     domain.TicketPriority `json:"priority"`
	Title        string                `json:"title"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Reason    string              `json:"reason,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID *string `json:"assignee_id,omitempty"`
	Team       *string `json:"team,omitempty"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID   string            `json:"comment_id"`
	AuthorRole  domain.AuthorRole `json:"author_role"`
	IsAutoReply bool              `json:"is_auto_reply"`
	BodyPreview string            `json:"body_preview"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	Deadline string    `json:"deadline"`
	DueAt    time.Time `json:"due_at"`
}

// TicketRedFlaggedPayload payload.
type TicketRedFlaggedPayload struct {
	Score     int              `json:"score"`
	Sentiment domain.Sentiment `json:"sentiment"`
}

// EscalationNotifyPayload asks the notification pipeline to deliver a message.
type EscalationNotifyPayload struct {
	Channel      string                `json:"channel"`
	RuleID       int64                 `json:"rule_id"`
	RuleName     string                `json:"rule_name"`
	Trigger      domain.TriggerType    `json:"trigger"`
	TicketNumber string                `json:"ticket_number"`
	Title        string                `json:"title"`
	Priority     domain.TicketPriority `json:"priority"`
	Status       domain.TicketStatus   `json:"status"`
	Note         string                `json:"note,omitempty"`
}
