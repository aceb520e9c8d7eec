package domain

import (
	"strings"
	"time"
)

// SLAPolicy defines response and resolution targets for a tenant/category/priority.
// A nil TenantID marks a global policy.
type SLAPolicy struct {
	ID                   string
	TenantID             *string
	Category             *string
	Priority             TicketPriority
	FirstResponseMinutes int
	ResolutionMinutes    int
	BusinessHoursOnly    bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsGlobal reports whether the policy applies to every tenant.
func (p *SLAPolicy) IsGlobal() bool {
	return p.TenantID == nil || strings.TrimSpace(*p.TenantID) == ""
}

// BusinessCalendar describes working time for a tenant.
type BusinessCalendar struct {
	TenantID    string
	Timezone    string
	WorkingDays []time.Weekday
	DayStart    string
	DayEnd      string
	Holidays    []string
	UpdatedAt   time.Time
}
