package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

func mustCalendar(t *testing.T, bc domain.BusinessCalendar) Calendar {
	t.Helper()
	cal, err := NewCalendar(bc)
	require.NoError(t, err)
	return cal
}

func officeHours(holidays ...string) domain.BusinessCalendar {
	return domain.BusinessCalendar{
		Timezone:    "UTC",
		WorkingDays: weekdays,
		DayStart:    "09:00",
		DayEnd:      "18:00",
		Holidays:    holidays,
	}
}

func TestAddWorkingMinutesCarriesOverWeekend(t *testing.T) {
	cal := mustCalendar(t, officeHours())
	friday := time.Date(2024, 1, 5, 17, 0, 0, 0, time.UTC)

	got := cal.AddWorkingMinutes(friday, 120)
	assert.Equal(t, time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC), got)
}

func TestAddWorkingMinutesSkipsHolidays(t *testing.T) {
	cal := mustCalendar(t, officeHours("2024-01-08"))
	friday := time.Date(2024, 1, 5, 17, 0, 0, 0, time.UTC)

	got := cal.AddWorkingMinutes(friday, 120)
	assert.Equal(t, time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC), got)
}

func TestAddWorkingMinutesStartsAtNextWindow(t *testing.T) {
	cal := mustCalendar(t, officeHours())
	saturday := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)
	earlyMonday := time.Date(2024, 1, 8, 6, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC), cal.AddWorkingMinutes(saturday, 30))
	assert.Equal(t, time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC), cal.AddWorkingMinutes(earlyMonday, 30))
}

func TestAddWorkingMinutesKeepsWallClockAcrossDST(t *testing.T) {
	cal := mustCalendar(t, domain.BusinessCalendar{
		Timezone: "Europe/Berlin",
		WorkingDays: []time.Weekday{
			time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday,
		},
		DayStart: "09:00",
		DayEnd:   "17:00",
	})
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Clocks jump forward at 02:00 on 2024-03-31.
	early := time.Date(2024, 3, 31, 8, 0, 0, 0, berlin)
	assert.Equal(t, time.Date(2024, 3, 31, 10, 0, 0, 0, berlin).UTC(), cal.AddWorkingMinutes(early, 60).UTC())

	// And back at 03:00 on 2024-10-27.
	late := time.Date(2024, 10, 27, 16, 30, 0, 0, berlin)
	assert.Equal(t, time.Date(2024, 10, 28, 9, 30, 0, 0, berlin).UTC(), cal.AddWorkingMinutes(late, 60).UTC())
}

func TestAddWorkingMinutesHonoursTimezone(t *testing.T) {
	bc := officeHours()
	bc.Timezone = "Asia/Kolkata"
	cal := mustCalendar(t, bc)

	// 09:00 IST on Monday
	start := time.Date(2024, 1, 1, 3, 30, 0, 0, time.UTC)
	got := cal.AddWorkingMinutes(start, 60)
	assert.Equal(t, time.Date(2024, 1, 1, 4, 30, 0, 0, time.UTC), got.UTC())
}

func TestNewCalendarRejectsBadInput(t *testing.T) {
	_, err := NewCalendar(domain.BusinessCalendar{Timezone: "UTC", DayStart: "09:00", DayEnd: "18:00"})
	assert.Error(t, err, "no working days")

	bc := officeHours()
	bc.DayEnd = "08:00"
	_, err = NewCalendar(bc)
	assert.Error(t, err)

	bc = officeHours("not-a-date")
	_, err = NewCalendar(bc)
	assert.Error(t, err)

	bc = officeHours()
	bc.Timezone = "Mars/Olympus"
	_, err = NewCalendar(bc)
	assert.Error(t, err)
}

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays([]string{"mon", "Tuesday", " sun "})
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Sunday}, days)

	_, err = ParseWeekdays([]string{"funday"})
	assert.Error(t, err)
}

func TestComputeDueDatesWallClock(t *testing.T) {
	cal := mustCalendar(t, officeHours())
	created := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)
	policy := domain.SLAPolicy{FirstResponseMinutes: 30, ResolutionMinutes: 240}

	due := ComputeDueDates(policy, created, cal)
	assert.Equal(t, created.Add(30*time.Minute), due.FirstResponseDueAt)
	assert.Equal(t, created.Add(4*time.Hour), due.ResolutionDueAt)
}

func TestComputeDueDatesBusinessHours(t *testing.T) {
	cal := mustCalendar(t, officeHours())
	created := time.Date(2024, 1, 5, 17, 0, 0, 0, time.UTC)
	policy := domain.SLAPolicy{FirstResponseMinutes: 60, ResolutionMinutes: 600, BusinessHoursOnly: true}

	due := ComputeDueDates(policy, created, cal)
	assert.Equal(t, time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC), due.FirstResponseDueAt)
	assert.Equal(t, time.Date(2024, 1, 8, 18, 0, 0, 0, time.UTC), due.ResolutionDueAt)
}

func TestComputeDueDatesKeepsResolutionAfterFirstResponse(t *testing.T) {
	cal := mustCalendar(t, officeHours())
	created := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	policy := domain.SLAPolicy{FirstResponseMinutes: 120, ResolutionMinutes: 60}

	due := ComputeDueDates(policy, created, cal)
	assert.False(t, due.ResolutionDueAt.Before(due.FirstResponseDueAt))
}
