package members

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AnalyticsEvents is the append-only event log. There is deliberately no
// update or delete surface.
type AnalyticsEvents interface {
	Append(ctx context.Context, record *AnalyticsEvent) (*AnalyticsEvent, error)
	ListByMemberNumber(ctx context.Context, memberNumber string, limit int) ([]*AnalyticsEvent, error)
}

type analyticsEvents struct {
	repo repository.Repository[*AnalyticsEvent]
	db   *bun.DB
}

var _ AnalyticsEvents = (*analyticsEvents)(nil)

// NewAnalyticsEventsRepository builds the bun-backed event log.
func NewAnalyticsEventsRepository(db *bun.DB) AnalyticsEvents {
	repo := repository.NewRepository[*AnalyticsEvent](db, repository.ModelHandlers[*AnalyticsEvent]{
		NewRecord: func() *AnalyticsEvent { return &AnalyticsEvent{} },
		GetID: func(e *AnalyticsEvent) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *AnalyticsEvent, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
	})

	return &analyticsEvents{repo: repo, db: db}
}

func (r *analyticsEvents) Append(ctx context.Context, record *AnalyticsEvent) (*AnalyticsEvent, error) {
	prepareEventDefaults(record)
	return r.repo.Create(ctx, record)
}

func (r *analyticsEvents) ListByMemberNumber(ctx context.Context, memberNumber string, limit int) ([]*AnalyticsEvent, error) {
	var records []*AnalyticsEvent

	q := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.member_number = ?", memberNumber).
		Order("created_at DESC")

	if limit > 0 {
		q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

func prepareEventDefaults(record *AnalyticsEvent) {
	if record == nil {
		return
	}

	if record.CreatedAt == nil {
		now := time.Now().UTC()
		record.CreatedAt = &now
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
