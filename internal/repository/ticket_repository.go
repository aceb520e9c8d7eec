package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrVersionConflict is returned by Update when the stored version moved on.
var ErrVersionConflict = errors.New("ticket version conflict")

// ScanCursor is a keyset position for scanner queries: rows strictly after
// (At, ID) in the query's sort order. The zero value starts from the beginning.
type ScanCursor struct {
	At time.Time
	ID string
}

// IsZero reports whether the cursor points at the start.
func (c ScanCursor) IsZero() bool {
	return c.ID == ""
}

// TicketFilter captures list parameters. TenantID is mandatory.
type TicketFilter struct {
	TenantID    string
	RequesterID *string
	AssigneeID  *string
	Team        *string
	Category    *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	NextTicketNumber(ctx context.Context, tenantID string) (int64, error)
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update persists the ticket when its Version still matches and bumps Version.
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListForAnalytics returns every ticket of the tenant matching the filter, unpaginated.
	ListForAnalytics(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListBreachCandidates pages by (first_response_due_at, id).
	ListBreachCandidates(ctx context.Context, now time.Time, after ScanCursor, limit int) ([]domain.Ticket, error)
	// ListNoResponseCandidates pages by (sla_started_at, id).
	ListNoResponseCandidates(ctx context.Context, after ScanCursor, limit int) ([]domain.Ticket, error)
	// ListResolved returns resolved tickets whose later of resolved_at and the last
	// requester reply is at or before closableAt, paged by (resolved_at, id).
	ListResolved(ctx context.Context, closableAt time.Time, after ScanCursor, limit int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, tenant_id, ticket_number, title, description, category, feature_id, priority, status,
               requester_id, requester_name, requester_email, assignee_id, assigned_team, form_data,
               sla_started_at, first_response_due_at, resolution_due_at, first_responded_at, resolved_at,
               sla_breached, first_response_breached, resolution_breached, red_flag_score, ai_sentiment,
               red_flagged_at, last_customer_reply_at, reopen_count, version, created_at, updated_at`

func (r *ticketRepository) NextTicketNumber(ctx context.Context, tenantID string) (int64, error) {
	const query = `
        INSERT INTO ticket_sequences (tenant_id, last_value) VALUES ($1, 1)
        ON CONFLICT (tenant_id) DO UPDATE SET last_value = ticket_sequences.last_value + 1
        RETURNING last_value`
	var next int64
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(&next)
	return next, err
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (tenant_id, ticket_number, title, description, category, feature_id, priority, status,
            requester_id, requester_name, requester_email, assignee_id, assigned_team, form_data,
            sla_started_at, first_response_due_at, resolution_due_at, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,1,$18,$18)
        RETURNING id, version`
	formData := ticket.FormData
	if formData == nil {
		formData = map[string]any{}
	}
	return r.pool.QueryRow(ctx, query,
		ticket.TenantID,
		ticket.TicketNumber,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.FeatureID,
		ticket.Priority,
		ticket.Status,
		ticket.Requester.ID,
		ticket.Requester.Name,
		ticket.Requester.Email,
		ticket.AssigneeID,
		ticket.AssignedTeam,
		formData,
		ticket.SLAStartedAt,
		ticket.FirstResponseDueAt,
		ticket.ResolutionDueAt,
		ticket.CreatedAt,
	).Scan(&ticket.ID, &ticket.Version)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET priority=$1, status=$2, assignee_id=$3, assigned_team=$4,
            sla_started_at=$5, first_response_due_at=$6, resolution_due_at=$7, first_responded_at=$8, resolved_at=$9,
            sla_breached=$10, first_response_breached=$11, resolution_breached=$12, red_flag_score=$13,
            ai_sentiment=$14, red_flagged_at=$15, last_customer_reply_at=$16, reopen_count=$17,
            updated_at=$18, version=version+1
        WHERE tenant_id=$19 AND id=$20 AND version=$21`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Priority,
		ticket.Status,
		ticket.AssigneeID,
		ticket.AssignedTeam,
		ticket.SLAStartedAt,
		ticket.FirstResponseDueAt,
		ticket.ResolutionDueAt,
		ticket.FirstRespondedAt,
		ticket.ResolvedAt,
		ticket.SLABreached,
		ticket.FirstResponseBreached,
		ticket.ResolutionBreached,
		ticket.RedFlagScore,
		ticket.AISentiment,
		ticket.RedFlaggedAt,
		ticket.LastCustomerReplyAt,
		ticket.ReopenCount,
		ticket.UpdatedAt,
		ticket.TenantID,
		ticket.ID,
		ticket.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE tenant_id=$1 AND id=$2)`,
			ticket.TenantID, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrVersionConflict
		}
		return pgx.ErrNoRows
	}
	ticket.Version++
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE tenant_id=$1 AND id=$2`
	rows, err := r.pool.Query(ctx, query, tenantID, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &tickets[0], nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	where, args := buildTicketWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)
	return r.query(ctx, query, args...)
}

func (r *ticketRepository) ListForAnalytics(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := buildTicketWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s`, ticketColumns, where)
	return r.query(ctx, query, args...)
}

func (r *ticketRepository) ListBreachCandidates(ctx context.Context, now time.Time, after ScanCursor, limit int) ([]domain.Ticket, error) {
	args := []any{now}
	where := `status NOT IN ('resolved','closed')
          AND ((first_responded_at IS NULL AND NOT first_response_breached AND first_response_due_at < $1)
            OR (NOT resolution_breached AND resolution_due_at < $1))`
	return r.page(ctx, where, "first_response_due_at", after, limit, args)
}

func (r *ticketRepository) ListNoResponseCandidates(ctx context.Context, after ScanCursor, limit int) ([]domain.Ticket, error) {
	where := `status NOT IN ('resolved','closed') AND first_responded_at IS NULL`
	return r.page(ctx, where, "sla_started_at", after, limit, nil)
}

func (r *ticketRepository) ListResolved(ctx context.Context, closableAt time.Time, after ScanCursor, limit int) ([]domain.Ticket, error) {
	args := []any{closableAt}
	where := `status='resolved' AND resolved_at IS NOT NULL
          AND GREATEST(resolved_at, COALESCE(last_customer_reply_at, resolved_at)) <= $1`
	return r.page(ctx, where, "resolved_at", after, limit, args)
}

// page runs a keyset-paginated scanner query ordered by (column, id).
func (r *ticketRepository) page(ctx context.Context, where, column string, after ScanCursor, limit int, args []any) ([]domain.Ticket, error) {
	if !after.IsZero() {
		args = append(args, after.At, after.ID)
		where += fmt.Sprintf(" AND (%s, id) > ($%d, $%d)", column, len(args)-1, len(args))
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s ASC, id ASC LIMIT $%d`,
		ticketColumns, where, column, len(args))
	return r.query(ctx, query, args...)
}

func (r *ticketRepository) query(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func buildTicketWhere(filter TicketFilter) (string, []any) {
	args := []any{filter.TenantID}
	clauses := []string{"tenant_id=$1"}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.Team != nil {
		args = append(args, *filter.Team)
		clauses = append(clauses, fmt.Sprintf("assigned_team=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TenantID,
			&ticket.TicketNumber,
			&ticket.Title,
			&ticket.Description,
			&ticket.Category,
			&ticket.FeatureID,
			&ticket.Priority,
			&ticket.Status,
			&ticket.Requester.ID,
			&ticket.Requester.Name,
			&ticket.Requester.Email,
			&ticket.AssigneeID,
			&ticket.AssignedTeam,
			&ticket.FormData,
			&ticket.SLAStartedAt,
			&ticket.FirstResponseDueAt,
			&ticket.ResolutionDueAt,
			&ticket.FirstRespondedAt,
			&ticket.ResolvedAt,
			&ticket.SLABreached,
			&ticket.FirstResponseBreached,
			&ticket.ResolutionBreached,
			&ticket.RedFlagScore,
			&ticket.AISentiment,
			&ticket.RedFlaggedAt,
			&ticket.LastCustomerReplyAt,
			&ticket.ReopenCount,
			&ticket.Version,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
