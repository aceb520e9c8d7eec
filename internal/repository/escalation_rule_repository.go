package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EscalationRuleRepository persists escalation rules.
type EscalationRuleRepository interface {
	Create(ctx context.Context, rule *domain.EscalationRule) error
	Update(ctx context.Context, rule *domain.EscalationRule) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*domain.EscalationRule, error)
	// ListForTenant returns tenant and global rules ordered by id.
	ListForTenant(ctx context.Context, tenantID string) ([]domain.EscalationRule, error)
}

type escalationRuleRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRuleRepository constructs repository.
func NewEscalationRuleRepository(pool *pgxpool.Pool) EscalationRuleRepository {
	return &escalationRuleRepository{pool: pool}
}

const escalationRuleColumns = `id, tenant_id, name, trigger_type, trigger_threshold, action_type, action_team,
               action_channel, priority_filter, enabled, created_at, updated_at`

func (r *escalationRuleRepository) Create(ctx context.Context, rule *domain.EscalationRule) error {
	const query = `
        INSERT INTO escalation_rules (tenant_id, name, trigger_type, trigger_threshold, action_type, action_team,
            action_channel, priority_filter, enabled)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.TenantID,
		rule.Name,
		rule.Trigger.Type,
		rule.Trigger.Threshold,
		rule.Action.Type,
		rule.Action.Team,
		rule.Action.Channel,
		rule.PriorityFilter,
		rule.Enabled,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *escalationRuleRepository) Update(ctx context.Context, rule *domain.EscalationRule) error {
	const query = `
        UPDATE escalation_rules SET name=$1, trigger_type=$2, trigger_threshold=$3, action_type=$4, action_team=$5,
            action_channel=$6, priority_filter=$7, enabled=$8, updated_at=NOW()
        WHERE id=$9
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.Name,
		rule.Trigger.Type,
		rule.Trigger.Threshold,
		rule.Action.Type,
		rule.Action.Team,
		rule.Action.Channel,
		rule.PriorityFilter,
		rule.Enabled,
		rule.ID,
	).Scan(&rule.UpdatedAt)
}

// Delete disables the rule instead of removing it; firing records reference it.
func (r *escalationRuleRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE escalation_rules SET enabled=FALSE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *escalationRuleRepository) GetByID(ctx context.Context, id int64) (*domain.EscalationRule, error) {
	return scanEscalationRule(r.pool.QueryRow(ctx, `SELECT `+escalationRuleColumns+` FROM escalation_rules WHERE id=$1`, id))
}

func (r *escalationRuleRepository) ListForTenant(ctx context.Context, tenantID string) ([]domain.EscalationRule, error) {
	query := `SELECT ` + escalationRuleColumns + ` FROM escalation_rules
        WHERE tenant_id=$1 OR tenant_id IS NULL ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationRule
	for rows.Next() {
		rule, err := scanEscalationRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func scanEscalationRule(row pgx.Row) (*domain.EscalationRule, error) {
	var rule domain.EscalationRule
	if err := row.Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.Name,
		&rule.Trigger.Type,
		&rule.Trigger.Threshold,
		&rule.Action.Type,
		&rule.Action.Team,
		&rule.Action.Channel,
		&rule.PriorityFilter,
		&rule.Enabled,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rule, nil
}
