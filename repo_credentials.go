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

// RotatePasswordSQL promotes a member to a permanent password in one
// statement: the permanent hash replaces whatever was active, the temporary
// hash is cleared, and the force flag drops.
var RotatePasswordSQL = `UPDATE "member_credentials" AS "crd"
SET
	"permanent_password_hash" = ?,
	"temporary_password_hash" = NULL,
	"force_password_change" = FALSE,
	"password_updated_at" = ?,
	"updated_at" = ?
WHERE (
	"crd"."member_number" = ?
) RETURNING *;`

// Credentials is the password-hash store, keyed by member number.
type Credentials interface {
	GetByMemberNumber(ctx context.Context, memberNumber string) (*Credential, error)
	GetByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (*Credential, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Credential) (*Credential, error)
	RotatePassword(ctx context.Context, memberNumber string, permanentHash string) error
	RotatePasswordTx(ctx context.Context, tx bun.IDB, memberNumber string, permanentHash string) error
	UpdateStatusTx(ctx context.Context, tx bun.IDB, memberNumber string, status AccountStatus) error
	TrackSuccessfulLogin(ctx context.Context, record *Credential) error
	DeleteByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (int64, error)
}

type credentialsRepo struct {
	repo repository.Repository[*Credential]
	db   *bun.DB
}

var _ Credentials = (*credentialsRepo)(nil)

// NewCredentialsRepository builds the bun-backed credential store.
func NewCredentialsRepository(db *bun.DB) Credentials {
	repo := repository.NewRepository[*Credential](db, repository.ModelHandlers[*Credential]{
		NewRecord: func() *Credential { return &Credential{} },
		GetID: func(c *Credential) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Credential, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string { return "member_number" },
	})

	return &credentialsRepo{repo: repo, db: db}
}

func (r *credentialsRepo) GetByMemberNumber(ctx context.Context, memberNumber string) (*Credential, error) {
	return r.GetByMemberNumberTx(ctx, r.db, memberNumber)
}

func (r *credentialsRepo) GetByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (*Credential, error) {
	trimmed := strings.TrimSpace(memberNumber)
	if trimmed == "" {
		return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
			"member_number": memberNumber,
		})
	}

	record := &Credential{}
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

func (r *credentialsRepo) CreateTx(ctx context.Context, tx bun.IDB, record *Credential) (*Credential, error) {
	prepareCredentialDefaults(record)
	return r.repo.CreateTx(ctx, tx, record)
}

func (r *credentialsRepo) RotatePassword(ctx context.Context, memberNumber string, permanentHash string) error {
	return r.RotatePasswordTx(ctx, r.db, memberNumber, permanentHash)
}

func (r *credentialsRepo) RotatePasswordTx(ctx context.Context, tx bun.IDB, memberNumber string, permanentHash string) error {
	now := time.Now().UTC()
	res, err := r.repo.RawTx(ctx, tx, RotatePasswordSQL, permanentHash, now, now, memberNumber)
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{
			"member_number": memberNumber,
		})
	}

	return nil
}

func (r *credentialsRepo) UpdateStatusTx(ctx context.Context, tx bun.IDB, memberNumber string, status AccountStatus) error {
	_, err := tx.NewUpdate().
		Model((*Credential)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("?TableAlias.member_number = ?", memberNumber).
		Exec(ctx)

	return err
}

func (r *credentialsRepo) TrackSuccessfulLogin(ctx context.Context, record *Credential) error {
	loggedInAt := time.Now().UTC()
	_, err := r.db.NewRaw(`
		UPDATE "member_credentials" AS "crd"
		SET "last_login_at" = ?
		WHERE ("crd".member_number = ?);
	`, loggedInAt, record.MemberNumber).Exec(ctx)

	return err
}

func (r *credentialsRepo) DeleteByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (int64, error) {
	res, err := tx.NewDelete().
		Model((*Credential)(nil)).
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

func prepareCredentialDefaults(record *Credential) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.IssuedAt == nil {
		now := time.Now().UTC()
		record.IssuedAt = &now
	}

	if record.ID == uuid.Nil && record.MemberNumber != "" {
		if id, err := hashid.NewUUID("credential:" + record.MemberNumber); err == nil {
			record.ID = id
		} else {
			record.ID = uuid.New()
		}
	}
}
