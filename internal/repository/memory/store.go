// Package memory provides process-local implementations of the repository
// interfaces. They back the service when no database is configured and the tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Store holds every collection behind one mutex.
type Store struct {
	mu          sync.RWMutex
	sequences   map[string]int64
	tickets     map[string]*domain.Ticket
	comments    map[string][]domain.Comment
	attachments map[string][]domain.Attachment
	history     map[string][]domain.TicketHistory
	policies    map[string]*domain.SLAPolicy
	rules       map[int64]*domain.EscalationRule
	nextRuleID  int64
	firings     map[string][]domain.EscalationFiring
	calendars   map[string]*domain.BusinessCalendar
	features    map[string]*domain.Feature
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sequences:   map[string]int64{},
		tickets:     map[string]*domain.Ticket{},
		comments:    map[string][]domain.Comment{},
		attachments: map[string][]domain.Attachment{},
		history:     map[string][]domain.TicketHistory{},
		policies:    map[string]*domain.SLAPolicy{},
		rules:       map[int64]*domain.EscalationRule{},
		firings:     map[string][]domain.EscalationFiring{},
		calendars:   map[string]*domain.BusinessCalendar{},
		features:    map[string]*domain.Feature{},
	}
}

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }

// Comments returns the comment repository view.
func (s *Store) Comments() repository.CommentRepository { return commentRepo{s} }

// Attachments returns the attachment repository view.
func (s *Store) Attachments() repository.AttachmentRepository { return attachmentRepo{s} }

// History returns the audit history repository view.
func (s *Store) History() repository.TicketHistoryRepository { return historyRepo{s} }

// Policies returns the SLA policy repository view.
func (s *Store) Policies() repository.SLAPolicyRepository { return policyRepo{s} }

// Rules returns the escalation rule repository view.
func (s *Store) Rules() repository.EscalationRuleRepository { return ruleRepo{s} }

// Firings returns the escalation firing repository view.
func (s *Store) Firings() repository.EscalationFiringRepository { return firingRepo{s} }

// Calendars returns the business calendar repository view.
func (s *Store) Calendars() repository.BusinessCalendarRepository { return calendarRepo{s} }

// Features returns the feature catalog view.
func (s *Store) Features() repository.FeatureRepository { return featureRepo{s} }

type ticketRepo struct{ s *Store }

func (r ticketRepo) NextTicketNumber(_ context.Context, tenantID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sequences[tenantID]++
	return r.s.sequences[tenantID], nil
}

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	ticket.Version = 1
	r.s.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tickets[ticket.ID]
	if !ok || stored.TenantID != ticket.TenantID {
		return pgx.ErrNoRows
	}
	if stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	ticket.Version++
	r.s.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, tenantID, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stored, ok := r.s.tickets[id]
	if !ok || stored.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	return stored.Clone(), nil
}

func (r ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	matched := r.filter(func(t *domain.Ticket) bool { return matchesFilter(t, filter) })
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r ticketRepo) ListForAnalytics(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return r.filter(func(t *domain.Ticket) bool { return matchesFilter(t, filter) }), nil
}

func (r ticketRepo) ListBreachCandidates(_ context.Context, now time.Time, after repository.ScanCursor, limit int) ([]domain.Ticket, error) {
	matched := r.filter(func(t *domain.Ticket) bool {
		if t.Status.IsSettled() {
			return false
		}
		firstDue := t.FirstRespondedAt == nil && !t.FirstResponseBreached && t.FirstResponseDueAt.Before(now)
		resolutionDue := !t.ResolutionBreached && t.ResolutionDueAt.Before(now)
		return firstDue || resolutionDue
	})
	return scanPage(matched, func(t *domain.Ticket) time.Time { return t.FirstResponseDueAt }, after, limit), nil
}

func (r ticketRepo) ListNoResponseCandidates(_ context.Context, after repository.ScanCursor, limit int) ([]domain.Ticket, error) {
	matched := r.filter(func(t *domain.Ticket) bool {
		return !t.Status.IsSettled() && t.FirstRespondedAt == nil
	})
	return scanPage(matched, func(t *domain.Ticket) time.Time { return t.SLAStartedAt }, after, limit), nil
}

func (r ticketRepo) ListResolved(_ context.Context, closableAt time.Time, after repository.ScanCursor, limit int) ([]domain.Ticket, error) {
	matched := r.filter(func(t *domain.Ticket) bool {
		if t.Status != domain.TicketStatusResolved || t.ResolvedAt == nil {
			return false
		}
		anchor := *t.ResolvedAt
		if t.LastCustomerReplyAt != nil && t.LastCustomerReplyAt.After(anchor) {
			anchor = *t.LastCustomerReplyAt
		}
		return !anchor.After(closableAt)
	})
	return scanPage(matched, func(t *domain.Ticket) time.Time { return *t.ResolvedAt }, after, limit), nil
}

// scanPage orders by (key, id) and returns up to limit tickets after the cursor.
func scanPage(tickets []domain.Ticket, key func(*domain.Ticket) time.Time, after repository.ScanCursor, limit int) []domain.Ticket {
	less := func(at time.Time, id string, t *domain.Ticket) bool {
		k := key(t)
		return at.Before(k) || (at.Equal(k) && id < t.ID)
	}
	sort.Slice(tickets, func(i, j int) bool {
		return less(key(&tickets[i]), tickets[i].ID, &tickets[j])
	})
	result := tickets[:0]
	for i := range tickets {
		if after.IsZero() || less(after.At, after.ID, &tickets[i]) {
			result = append(result, tickets[i])
		}
	}
	return truncate(result, limit)
}

func (r ticketRepo) filter(keep func(*domain.Ticket) bool) []domain.Ticket {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := []domain.Ticket{}
	for _, t := range r.s.tickets {
		if keep(t) {
			result = append(result, *t.Clone())
		}
	}
	return result
}

func matchesFilter(t *domain.Ticket, f repository.TicketFilter) bool {
	if t.TenantID != f.TenantID {
		return false
	}
	if f.RequesterID != nil && t.Requester.ID != *f.RequesterID {
		return false
	}
	if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	if f.Team != nil && (t.AssignedTeam == nil || *t.AssignedTeam != *f.Team) {
		return false
	}
	if f.Category != nil && t.Category != *f.Category {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func truncate(tickets []domain.Ticket, limit int) []domain.Ticket {
	if limit > 0 && len(tickets) > limit {
		return tickets[:limit]
	}
	return tickets
}

type commentRepo struct{ s *Store }

func (r commentRepo) Create(_ context.Context, comment *domain.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	r.s.comments[comment.TicketID] = append(r.s.comments[comment.TicketID], *comment)
	return nil
}

func (r commentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := append([]domain.Comment{}, r.s.comments[ticketID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type attachmentRepo struct{ s *Store }

func (r attachmentRepo) Create(_ context.Context, attachment *domain.Attachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	r.s.attachments[attachment.TicketID] = append(r.s.attachments[attachment.TicketID], *attachment)
	return nil
}

func (r attachmentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.Attachment{}, r.s.attachments[ticketID]...), nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Create(_ context.Context, entry *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	r.s.history[entry.TicketID] = append(r.s.history[entry.TicketID], *entry)
	return nil
}

func (r historyRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.TicketHistory{}, r.s.history[ticketID]...), nil
}

type firingRepo struct{ s *Store }

func (r firingRepo) Record(_ context.Context, firing *domain.EscalationFiring) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.firings[firing.TicketID] {
		if existing.RuleID == firing.RuleID && existing.InstanceKey == firing.InstanceKey {
			return false, nil
		}
	}
	if firing.ID == "" {
		firing.ID = uuid.NewString()
	}
	r.s.firings[firing.TicketID] = append(r.s.firings[firing.TicketID], *firing)
	return true, nil
}

func (r firingRepo) Exists(_ context.Context, ticketID string, ruleID int64, instanceKey string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, existing := range r.s.firings[ticketID] {
		if existing.RuleID == ruleID && existing.InstanceKey == instanceKey {
			return true, nil
		}
	}
	return false, nil
}

func (r firingRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.EscalationFiring, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.EscalationFiring{}, r.s.firings[ticketID]...), nil
}
