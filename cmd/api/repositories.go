package main

import (
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
)

type repositories struct {
	tickets     repository.TicketRepository
	comments    repository.CommentRepository
	attachments repository.AttachmentRepository
	history     repository.TicketHistoryRepository
	policies    repository.SLAPolicyRepository
	rules       repository.EscalationRuleRepository
	firings     repository.EscalationFiringRepository
	calendars   repository.BusinessCalendarRepository
	features    repository.FeatureRepository
}

// newRepositories uses Postgres when a pool is configured and the in-memory store otherwise.
func newRepositories(pg *persistence.Postgres) repositories {
	if pg.Enabled() {
		pool := pg.PoolHandle()
		return repositories{
			tickets:     repository.NewTicketRepository(pool),
			comments:    repository.NewCommentRepository(pool),
			attachments: repository.NewAttachmentRepository(pool),
			history:     repository.NewTicketHistoryRepository(pool),
			policies:    repository.NewSLAPolicyRepository(pool),
			rules:       repository.NewEscalationRuleRepository(pool),
			firings:     repository.NewEscalationFiringRepository(pool),
			calendars:   repository.NewBusinessCalendarRepository(pool),
			features:    repository.NewFeatureRepository(pool),
		}
	}
	store := memory.NewStore()
	return repositories{
		tickets:     store.Tickets(),
		comments:    store.Comments(),
		attachments: store.Attachments(),
		history:     store.History(),
		policies:    store.Policies(),
		rules:       store.Rules(),
		firings:     store.Firings(),
		calendars:   store.Calendars(),
		features:    store.Features(),
	}
}
