package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrDuplicate signals a unique scope collision.
var ErrDuplicate = errors.New("duplicate record")

// SLAPolicyRepository persists SLA policies.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	Update(ctx context.Context, policy *domain.SLAPolicy) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	// Find returns the policy with exactly this scope; nil tenant or category match NULL.
	Find(ctx context.Context, tenantID, category *string, priority domain.TicketPriority) (*domain.SLAPolicy, error)
	// ListVisible returns the tenant's policies followed by the global ones.
	ListVisible(ctx context.Context, tenantID string) ([]domain.SLAPolicy, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository constructs repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

const slaPolicyColumns = `id, tenant_id, category, priority, first_response_minutes, resolution_minutes,
               business_hours_only, created_at, updated_at`

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (tenant_id, category, priority, first_response_minutes, resolution_minutes, business_hours_only)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		policy.TenantID,
		policy.Category,
		policy.Priority,
		policy.FirstResponseMinutes,
		policy.ResolutionMinutes,
		policy.BusinessHoursOnly,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
	return mapUniqueViolation(err)
}

func (r *slaPolicyRepository) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        UPDATE sla_policies SET category=$1, priority=$2, first_response_minutes=$3, resolution_minutes=$4,
            business_hours_only=$5, updated_at=NOW()
        WHERE id=$6
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		policy.Category,
		policy.Priority,
		policy.FirstResponseMinutes,
		policy.ResolutionMinutes,
		policy.BusinessHoursOnly,
		policy.ID,
	).Scan(&policy.UpdatedAt)
	return mapUniqueViolation(err)
}

func (r *slaPolicyRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sla_policies WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	return r.fetchSingle(ctx, `SELECT `+slaPolicyColumns+` FROM sla_policies WHERE id=$1`, id)
}

func (r *slaPolicyRepository) Find(ctx context.Context, tenantID, category *string, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies
        WHERE tenant_id IS NOT DISTINCT FROM $1 AND category IS NOT DISTINCT FROM $2 AND priority=$3`
	return r.fetchSingle(ctx, query, tenantID, category, priority)
}

func (r *slaPolicyRepository) ListVisible(ctx context.Context, tenantID string) ([]domain.SLAPolicy, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies
        WHERE tenant_id=$1 OR tenant_id IS NULL
        ORDER BY tenant_id NULLS LAST, priority, category NULLS LAST`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		policy, err := scanSLAPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *policy)
	}
	return result, rows.Err()
}

func (r *slaPolicyRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.SLAPolicy, error) {
	return scanSLAPolicy(r.pool.QueryRow(ctx, query, args...))
}

func scanSLAPolicy(row pgx.Row) (*domain.SLAPolicy, error) {
	var policy domain.SLAPolicy
	if err := row.Scan(
		&policy.ID,
		&policy.TenantID,
		&policy.Category,
		&policy.Priority,
		&policy.FirstResponseMinutes,
		&policy.ResolutionMinutes,
		&policy.BusinessHoursOnly,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
