package sla

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// DueDates are the two deadlines of an SLA cycle.
type DueDates struct {
	FirstResponseDueAt time.Time
	ResolutionDueAt    time.Time
}

// ComputeDueDates derives deadlines from a policy and a start instant.
// Wall-clock policies ignore the calendar. Resolution never precedes first response.
func ComputeDueDates(policy domain.SLAPolicy, start time.Time, cal Calendar) DueDates {
	var first, resolution time.Time
	if policy.BusinessHoursOnly {
		first = cal.AddWorkingMinutes(start, policy.FirstResponseMinutes)
		resolution = cal.AddWorkingMinutes(start, policy.ResolutionMinutes)
	} else {
		first = start.Add(time.Duration(policy.FirstResponseMinutes) * time.Minute)
		resolution = start.Add(time.Duration(policy.ResolutionMinutes) * time.Minute)
	}
	if resolution.Before(first) {
		resolution = first
	}
	return DueDates{FirstResponseDueAt: first.UTC(), ResolutionDueAt: resolution.UTC()}
}
