package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// BusinessCalendarRepository stores per-tenant working calendars.
type BusinessCalendarRepository interface {
	Get(ctx context.Context, tenantID string) (*domain.BusinessCalendar, error)
	Upsert(ctx context.Context, calendar *domain.BusinessCalendar) error
}

type businessCalendarRepository struct {
	pool *pgxpool.Pool
}

// NewBusinessCalendarRepository constructs repository.
func NewBusinessCalendarRepository(pool *pgxpool.Pool) BusinessCalendarRepository {
	return &businessCalendarRepository{pool: pool}
}

func (r *businessCalendarRepository) Get(ctx context.Context, tenantID string) (*domain.BusinessCalendar, error) {
	const query = `
        SELECT tenant_id, timezone, working_days, day_start, day_end, holidays, updated_at
        FROM business_calendars WHERE tenant_id=$1`
	var (
		calendar domain.BusinessCalendar
		days     []int32
	)
	if err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&calendar.TenantID,
		&calendar.Timezone,
		&days,
		&calendar.DayStart,
		&calendar.DayEnd,
		&calendar.Holidays,
		&calendar.UpdatedAt,
	); err != nil {
		return nil, err
	}
	for _, d := range days {
		calendar.WorkingDays = append(calendar.WorkingDays, time.Weekday(d))
	}
	return &calendar, nil
}

func (r *businessCalendarRepository) Upsert(ctx context.Context, calendar *domain.BusinessCalendar) error {
	const query = `
        INSERT INTO business_calendars (tenant_id, timezone, working_days, day_start, day_end, holidays, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,NOW())
        ON CONFLICT (tenant_id) DO UPDATE SET timezone=EXCLUDED.timezone, working_days=EXCLUDED.working_days,
            day_start=EXCLUDED.day_start, day_end=EXCLUDED.day_end, holidays=EXCLUDED.holidays, updated_at=NOW()
        RETURNING updated_at`
	days := make([]int32, 0, len(calendar.WorkingDays))
	for _, d := range calendar.WorkingDays {
		days = append(days, int32(d))
	}
	holidays := calendar.Holidays
	if holidays == nil {
		holidays = []string{}
	}
	return r.pool.QueryRow(ctx, query,
		calendar.TenantID,
		calendar.Timezone,
		days,
		calendar.DayStart,
		calendar.DayEnd,
		holidays,
	).Scan(&calendar.UpdatedAt)
}
