package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew              TicketStatus = "new"
	TicketStatusOpen             TicketStatus = "open"
	TicketStatusInProgress       TicketStatus = "in_progress"
	TicketStatusAwaitingCustomer TicketStatus = "awaiting_customer"
	TicketStatusAwaitingInternal TicketStatus = "awaiting_internal"
	TicketStatusEscalated        TicketStatus = "escalated"
	TicketStatusResolved         TicketStatus = "resolved"
	TicketStatusClosed           TicketStatus = "closed"
	TicketStatusReopened         TicketStatus = "reopened"
)

// AllTicketStatuses lists statuses in lifecycle order.
var AllTicketStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusAwaitingCustomer,
	TicketStatusAwaitingInternal,
	TicketStatusEscalated,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusReopened,
}

// Valid reports whether the status is known.
func (s TicketStatus) Valid() bool {
	for _, candidate := range AllTicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the ticket is closed for good.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed
}

// IsSettled covers resolved and closed tickets; SLA clocks are stopped in both.
func (s TicketStatus) IsSettled() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// AllTicketPriorities lists priorities from lowest to highest.
var AllTicketPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityCritical,
}

// Valid reports whether the priority is known.
func (p TicketPriority) Valid() bool {
	for _, candidate := range AllTicketPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// Sentiment is the label returned by the red flag scorer.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentAngry    Sentiment = "angry"
)

// Valid reports whether the sentiment label is known.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentAngry:
		return true
	}
	return false
}

// Requester identifies the employee who raised the ticket.
type Requester struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Ticket is the aggregate for helpdesk requests.
type Ticket struct {
	ID                    string
	TenantID              string
	TicketNumber          string
	Title                 string
	Description           string
	Category              string
	FeatureID             string
	Priority              TicketPriority
	Status                TicketStatus
	Requester             Requester
	AssigneeID            *string
	AssignedTeam          *string
	FormData              map[string]any
	SLAStartedAt          time.Time
	FirstResponseDueAt    time.Time
	ResolutionDueAt       time.Time
	FirstRespondedAt      *time.Time
	ResolvedAt            *time.Time
	SLABreached           bool
	FirstResponseBreached bool
	ResolutionBreached    bool
	RedFlagScore          int
	AISentiment           *Sentiment
	RedFlaggedAt          *time.Time
	LastCustomerReplyAt   *time.Time
	ReopenCount           int
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// FormatTicketNumber renders the tenant-scoped sequence value.
func FormatTicketNumber(seq int64) string {
	return fmt.Sprintf("HD-%04d", seq)
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	out.AssigneeID = cloneString(t.AssigneeID)
	out.AssignedTeam = cloneString(t.AssignedTeam)
	out.FirstRespondedAt = cloneTime(t.FirstRespondedAt)
	out.ResolvedAt = cloneTime(t.ResolvedAt)
	out.RedFlaggedAt = cloneTime(t.RedFlaggedAt)
	out.LastCustomerReplyAt = cloneTime(t.LastCustomerReplyAt)
	if t.AISentiment != nil {
		s := *t.AISentiment
		out.AISentiment = &s
	}
	if t.FormData != nil {
		out.FormData = make(map[string]any, len(t.FormData))
		for k, v := range t.FormData {
			out.FormData[k] = v
		}
	}
	return &out
}

// IsRequester reports whether the actor raised this ticket.
func (t *Ticket) IsRequester(actor Actor) bool {
	return actor.Role == ActorRoleEmployee && actor.ID != "" && actor.ID == t.Requester.ID
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
