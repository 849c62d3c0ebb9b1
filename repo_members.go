package members

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Members is the directory store. GetByMemberNumber returns a repository
// not-found error for unknown identifiers; callers translate that into the
// indistinguishable bad-credentials response.
type Members interface {
	GetByMemberNumber(ctx context.Context, memberNumber string) (*Member, error)
	GetByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (*Member, error)
	Create(ctx context.Context, record *Member) (*Member, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Member) (*Member, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...MemberStatusOption) (*Member, error)
	TrackSuccessfulLogin(ctx context.Context, record *Member) error
	ListExpiredGuests(ctx context.Context, asOf time.Time, limit int) ([]*Member, error)
	DeleteByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (int64, error)
}

type membersRepo struct {
	repo repository.Repository[*Member]
	db   *bun.DB
}

var _ Members = (*membersRepo)(nil)

// NewMembersRepository builds the bun-backed directory store.
func NewMembersRepository(db *bun.DB) Members {
	repo := repository.NewRepository[*Member](db, repository.ModelHandlers[*Member]{
		NewRecord: func() *Member { return &Member{} },
		GetID: func(m *Member) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *Member, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
		GetIdentifier: func() string { return "member_number" },
	})

	return &membersRepo{repo: repo, db: db}
}

func (r *membersRepo) GetByMemberNumber(ctx context.Context, memberNumber string) (*Member, error) {
	return r.GetByMemberNumberTx(ctx, r.db, memberNumber)
}

func (r *membersRepo) GetByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (*Member, error) {
	trimmed := strings.TrimSpace(memberNumber)
	if trimmed == "" {
		return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
			"member_number": memberNumber,
		})
	}

	record := &Member{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.member_number = ?", trimmed).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"member_number": trimmed,
			})
		}
		return nil, err
	}

	return record, nil
}

func (r *membersRepo) Create(ctx context.Context, record *Member) (*Member, error) {
	return r.CreateTx(ctx, r.db, record)
}

func (r *membersRepo) CreateTx(ctx context.Context, tx bun.IDB, record *Member) (*Member, error) {
	prepareMemberDefaults(record)
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return r.repo.CreateTx(ctx, tx, record)
}

func (r *membersRepo) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...MemberStatusOption) (*Member, error) {
	record := &Member{
		ID:     id,
		Status: status,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	return r.repo.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (r *membersRepo) TrackSuccessfulLogin(ctx context.Context, record *Member) error {
	// NOTE: going through the ORM update path would overwrite unrelated
	// columns with zero values, keep this raw.
	loggedInAt := time.Now().UTC()
	_, err := r.db.NewRaw(`
		UPDATE "members" AS "mbr"
		SET "last_login_at" = ?
		WHERE ("mbr".id = ?);
	`, loggedInAt, record.ID).Exec(ctx)

	return err
}

func (r *membersRepo) ListExpiredGuests(ctx context.Context, asOf time.Time, limit int) ([]*Member, error) {
	var records []*Member

	q := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.account_type = ?", AccountTypeGuest).
		Where("?TableAlias.expires_at IS NOT NULL").
		Where("?TableAlias.expires_at < ?", asOf).
		Order("member_number ASC")

	if limit > 0 {
		q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

func (r *membersRepo) DeleteByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (int64, error) {
	res, err := tx.NewDelete().
		Model((*Member)(nil)).
		Where("?TableAlias.member_number = ?", memberNumber).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// MemberStatusOption mutates the record before a status change is persisted.
type MemberStatusOption func(*Member)

// WithMemberSuspendedAt sets the SuspendedAt timestamp during a transition.
func WithMemberSuspendedAt(at *time.Time) MemberStatusOption {
	return func(m *Member) {
		m.SuspendedAt = at
	}
}

func prepareMemberDefaults(record *Member) {
	if record == nil {
		return
	}

	if record.AccountType == "" {
		record.AccountType = AccountTypeGuest
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil && record.MemberNumber != "" {
		record.ID = memberID(record.MemberNumber)
	}
}

// memberID derives a stable uuid primary key from the member number so
// retried creates stay idempotent.
func memberID(memberNumber string) uuid.UUID {
	if id, err := hashid.NewUUID(memberNumber); err == nil {
		return id
	}
	return uuid.New()
}
