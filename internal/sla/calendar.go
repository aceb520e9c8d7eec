package sla

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const holidayLayout = "2006-01-02"

// maxCalendarDays stops the business-time walk on calendars that are all holidays.
const maxCalendarDays = 3660

// Calendar is a parsed, ready to walk business calendar.
type Calendar struct {
	loc         *time.Location
	workingDays map[time.Weekday]bool
	startMin    int
	endMin      int
	holidays    map[string]bool
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWeekdays converts names like "mon" or "monday" to weekdays.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if len(key) > 3 {
			key = key[:3]
		}
		day, ok := weekdayNames[key]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		out = append(out, day)
	}
	return out, nil
}

// CalendarFromConfig builds the service-wide fallback calendar.
func CalendarFromConfig(cfg config.SLAConfig) (domain.BusinessCalendar, error) {
	days, err := ParseWeekdays(cfg.WorkingDays)
	if err != nil {
		return domain.BusinessCalendar{}, err
	}
	return domain.BusinessCalendar{
		Timezone:    cfg.Timezone,
		WorkingDays: days,
		DayStart:    cfg.DayStart,
		DayEnd:      cfg.DayEnd,
		Holidays:    cfg.Holidays,
	}, nil
}

// NewCalendar validates and parses a business calendar.
func NewCalendar(bc domain.BusinessCalendar) (Calendar, error) {
	tz := bc.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Calendar{}, fmt.Errorf("timezone %q: %w", tz, err)
	}
	if len(bc.WorkingDays) == 0 {
		return Calendar{}, fmt.Errorf("calendar has no working days")
	}
	start, err := parseClock(bc.DayStart)
	if err != nil {
		return Calendar{}, fmt.Errorf("day_start: %w", err)
	}
	end, err := parseClock(bc.DayEnd)
	if err != nil {
		return Calendar{}, fmt.Errorf("day_end: %w", err)
	}
	if end <= start {
		return Calendar{}, fmt.Errorf("day_end must be after day_start")
	}

	cal := Calendar{
		loc:         loc,
		workingDays: make(map[time.Weekday]bool, len(bc.WorkingDays)),
		startMin:    start,
		endMin:      end,
		holidays:    make(map[string]bool, len(bc.Holidays)),
	}
	for _, d := range bc.WorkingDays {
		if d < time.Sunday || d > time.Saturday {
			return Calendar{}, fmt.Errorf("invalid weekday %d", d)
		}
		cal.workingDays[d] = true
	}
	for _, h := range bc.Holidays {
		day, err := time.Parse(holidayLayout, strings.TrimSpace(h))
		if err != nil {
			return Calendar{}, fmt.Errorf("holiday %q: %w", h, err)
		}
		cal.holidays[day.Format(holidayLayout)] = true
	}
	return cal, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		if strings.TrimSpace(v) == "24:00" {
			return 24 * 60, nil
		}
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsWorkingDay reports whether the local date is a working, non-holiday day.
func (c Calendar) IsWorkingDay(t time.Time) bool {
	local := t.In(c.loc)
	return c.workingDays[local.Weekday()] && !c.holidays[local.Format(holidayLayout)]
}

// at returns the wall-clock time minutes after local midnight of day. Built
// from the date so DST changes do not shift the window.
func (c Calendar) at(day time.Time, minutes int) time.Time {
	y, m, d := day.In(c.loc).Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, c.loc)
}

func (c Calendar) nextDayStart(day time.Time) time.Time {
	y, m, d := day.Date()
	return c.at(time.Date(y, m, d+1, 0, 0, 0, 0, c.loc), c.startMin)
}

// AddWorkingMinutes walks forward from `from`, counting only minutes inside working windows.
func (c Calendar) AddWorkingMinutes(from time.Time, minutes int) time.Time {
	if minutes <= 0 {
		return from
	}
	remaining := time.Duration(minutes) * time.Minute
	t := from.In(c.loc)

	for i := 0; i < maxCalendarDays; i++ {
		if !c.IsWorkingDay(t) {
			t = c.nextDayStart(t)
			continue
		}
		dayStart := c.at(t, c.startMin)
		dayEnd := c.at(t, c.endMin)
		if t.Before(dayStart) {
			t = dayStart
		}
		if !t.Before(dayEnd) {
			t = c.nextDayStart(t)
			continue
		}
		available := dayEnd.Sub(t)
		if remaining <= available {
			return t.Add(remaining)
		}
		remaining -= available
		t = c.nextDayStart(t)
	}
	return t.Add(remaining)
}
