package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	FeatureID   string                 `json:"feature_id"`
	Category    string                 `json:"category" validate:"max=100"`
	Title       string                 `json:"title" validate:"required,not_blank,max=255"`
	Description string                 `json:"description" validate:"max=10000"`
	Priority    *domain.TicketPriority `json:"priority" validate:"omitempty,ticket_priority"`
	Requester   *RequesterRequest      `json:"requester" validate:"omitempty"`
	FormData    map[string]any         `json:"form_data"`
}

// RequesterRequest lets staff raise a ticket on an employee's behalf.
type RequesterRequest struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body string `json:"body" validate:"required,not_blank,max=20000"`
}

// CreateAttachmentRequest payload.
type CreateAttachmentRequest struct {
	Filename string `json:"filename" validate:"required,not_blank,max=255"`
	URL      string `json:"url" validate:"required,url"`
	IsImage  *bool  `json:"is_image"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	Status domain.TicketStatus `json:"status" validate:"required,ticket_status"`
	Reason string              `json:"reason" validate:"max=2000"`
}

// EscalateRequest payload.
type EscalateRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

// ReopenRequest payload. The reason is checked by the lifecycle service.
type ReopenRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// AssignRequest payload.
type AssignRequest struct {
	AssigneeID *string `json:"assignee_id"`
	Team       *string `json:"team"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                 string                `json:"id"`
	TicketNumber       string                `json:"ticket_number"`
	Title              string                `json:"title"`
	Category           string                `json:"category"`
	FeatureID          string                `json:"feature_id,omitempty"`
	Status             domain.TicketStatus   `json:"status"`
	Priority           domain.TicketPriority `json:"priority"`
	Requester          domain.Requester      `json:"requester"`
	AssigneeID         *string               `json:"assignee_id"`
	AssignedTeam       *string               `json:"assigned_team"`
	FirstResponseDueAt time.Time             `json:"first_response_due_at"`
	ResolutionDueAt    time.Time             `json:"resolution_due_at"`
	SLABreached        bool                  `json:"sla_breached"`
	RedFlagScore       int                   `json:"red_flag_score"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description           string                  `json:"description"`
	FormData              map[string]any          `json:"form_data,omitempty"`
	SLAStartedAt          time.Time               `json:"sla_started_at"`
	FirstRespondedAt      *time.Time              `json:"first_responded_at"`
	ResolvedAt            *time.Time              `json:"resolved_at"`
	FirstResponseBreached bool                    `json:"first_response_breached"`
	ResolutionBreached    bool                    `json:"resolution_breached"`
	AISentiment           *domain.Sentiment       `json:"ai_sentiment"`
	RedFlaggedAt          *time.Time              `json:"red_flagged_at"`
	LastCustomerReplyAt   *time.Time              `json:"last_customer_reply_at"`
	ReopenCount           int                     `json:"reopen_count"`
	Comments              []CommentResponse       `json:"comments"`
	Attachments           []AttachmentResponse    `json:"attachments"`
	History               []TicketHistoryResponse `json:"history"`
	Firings               []FiringResponse        `json:"escalations,omitempty"`
}

// CommentResponse represents a thread entry.
type CommentResponse struct {
	ID          string            `json:"id"`
	Body        string            `json:"body"`
	AuthorRole  domain.AuthorRole `json:"author_role"`
	AuthorID    *string           `json:"author_id"`
	AuthorName  *string           `json:"author_name"`
	IsAutoReply bool              `json:"is_auto_reply"`
	CreatedAt   time.Time         `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	IsImage   bool      `json:"is_image"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByRole domain.ActorRole        `json:"changed_by_role"`
	ChangedByID   *string                 `json:"changed_by_id"`
	OldValue      map[string]any          `json:"old_value,omitempty"`
	NewValue      map[string]any          `json:"new_value,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// FiringResponse records a fired escalation rule.
type FiringResponse struct {
	RuleID      int64              `json:"rule_id"`
	Trigger     domain.TriggerType `json:"trigger"`
	InstanceKey string             `json:"instance_key"`
	FiredAt     time.Time          `json:"fired_at"`
}

// NewTicketSummary maps a ticket onto its list representation.
func NewTicketSummary(ticket *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:                 ticket.ID,
		TicketNumber:       ticket.TicketNumber,
		Title:              ticket.Title,
		Category:           ticket.Category,
		FeatureID:          ticket.FeatureID,
		Status:             ticket.Status,
		Priority:           ticket.Priority,
		Requester:          ticket.Requester,
		AssigneeID:         ticket.AssigneeID,
		AssignedTeam:       ticket.AssignedTeam,
		FirstResponseDueAt: ticket.FirstResponseDueAt,
		ResolutionDueAt:    ticket.ResolutionDueAt,
		SLABreached:        ticket.SLABreached,
		RedFlagScore:       ticket.RedFlagScore,
		CreatedAt:          ticket.CreatedAt,
		UpdatedAt:          ticket.UpdatedAt,
	}
}

// NewTicketDetail maps the ticket aggregate and its thread.
func NewTicketDetail(ticket *domain.Ticket, comments []domain.Comment, attachments []domain.Attachment,
	history []domain.TicketHistory, firings []domain.EscalationFiring) TicketDetailResponse {
	resp := TicketDetailResponse{
		TicketSummary:         NewTicketSummary(ticket),
		Description:           ticket.Description,
		FormData:              ticket.FormData,
		SLAStartedAt:          ticket.SLAStartedAt,
		FirstRespondedAt:      ticket.FirstRespondedAt,
		ResolvedAt:            ticket.ResolvedAt,
		FirstResponseBreached: ticket.FirstResponseBreached,
		ResolutionBreached:    ticket.ResolutionBreached,
		AISentiment:           ticket.AISentiment,
		RedFlaggedAt:          ticket.RedFlaggedAt,
		LastCustomerReplyAt:   ticket.LastCustomerReplyAt,
		ReopenCount:           ticket.ReopenCount,
		Comments:              make([]CommentResponse, 0, len(comments)),
		Attachments:           make([]AttachmentResponse, 0, len(attachments)),
		History:               make([]TicketHistoryResponse, 0, len(history)),
	}
	for i := range comments {
		resp.Comments = append(resp.Comments, NewCommentResponse(&comments[i]))
	}
	for i := range attachments {
		resp.Attachments = append(resp.Attachments, NewAttachmentResponse(&attachments[i]))
	}
	for _, entry := range history {
		resp.History = append(resp.History, TicketHistoryResponse{
			ID:            entry.ID,
			ChangeType:    entry.ChangeType,
			ChangedByRole: entry.ChangedByRole,
			ChangedByID:   entry.ChangedByID,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			CreatedAt:     entry.CreatedAt,
		})
	}
	for _, f := range firings {
		resp.Firings = append(resp.Firings, FiringResponse{
			RuleID:      f.RuleID,
			Trigger:     f.Trigger,
			InstanceKey: f.InstanceKey,
			FiredAt:     f.FiredAt,
		})
	}
	return resp
}

// NewCommentResponse maps a comment.
func NewCommentResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:          c.ID,
		Body:        c.Body,
		AuthorRole:  c.AuthorRole,
		AuthorID:    c.AuthorID,
		AuthorName:  c.AuthorName,
		IsAutoReply: c.IsAutoReply,
		CreatedAt:   c.CreatedAt,
	}
}

// NewAttachmentResponse maps an attachment.
func NewAttachmentResponse(a *domain.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:        a.ID,
		Filename:  a.Filename,
		URL:       a.URL,
		IsImage:   a.IsImage,
		CreatedAt: a.CreatedAt,
	}
}
