package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EscalationFiringRepository records which rule fired for which trigger instance.
type EscalationFiringRepository interface {
	// Record stores the firing and reports false when the (ticket, rule, key) triple already exists.
	Record(ctx context.Context, firing *domain.EscalationFiring) (bool, error)
	Exists(ctx context.Context, ticketID string, ruleID int64, instanceKey string) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationFiring, error)
}

type escalationFiringRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationFiringRepository constructs repository.
func NewEscalationFiringRepository(pool *pgxpool.Pool) EscalationFiringRepository {
	return &escalationFiringRepository{pool: pool}
}

func (r *escalationFiringRepository) Record(ctx context.Context, firing *domain.EscalationFiring) (bool, error) {
	const query = `
        INSERT INTO escalation_firings (ticket_id, rule_id, trigger_type, instance_key, fired_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (ticket_id, rule_id, instance_key) DO NOTHING
        RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		firing.TicketID,
		firing.RuleID,
		firing.Trigger,
		firing.InstanceKey,
		firing.FiredAt,
	).Scan(&firing.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *escalationFiringRepository) Exists(ctx context.Context, ticketID string, ruleID int64, instanceKey string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM escalation_firings WHERE ticket_id=$1 AND rule_id=$2 AND instance_key=$3)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, ticketID, ruleID, instanceKey).Scan(&exists)
	return exists, err
}

func (r *escalationFiringRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationFiring, error) {
	const query = `
        SELECT id, ticket_id, rule_id, trigger_type, instance_key, fired_at
        FROM escalation_firings WHERE ticket_id=$1 ORDER BY fired_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationFiring
	for rows.Next() {
		var firing domain.EscalationFiring
		if err := rows.Scan(
			&firing.ID,
			&firing.TicketID,
			&firing.RuleID,
			&firing.Trigger,
			&firing.InstanceKey,
			&firing.FiredAt,
		); err != nil {
			return nil, err
		}
		result = append(result, firing)
	}
	return result, rows.Err()
}
