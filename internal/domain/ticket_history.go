package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus     TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignment TicketChangeType = "ASSIGNMENT_CHANGE"
	ChangeTypeSLABreach  TicketChangeType = "SLA_BREACH"
	ChangeTypeEscalation TicketChangeType = "ESCALATION"
	ChangeTypeRedFlag    TicketChangeType = "RED_FLAG"
	ChangeTypeDueDates   TicketChangeType = "DUE_DATES"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByRole ActorRole
	ChangedByID   *string
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
