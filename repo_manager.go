package members

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Members() Members
	Credentials() Credentials
	Sequences() SequenceStore
	AnalyticsEvents() AnalyticsEvents

	UpdateMemberStatus(ctx context.Context, member *Member, status AccountStatus) (*Member, error)
}

type mngr struct {
	db          *bun.DB
	members     Members
	credentials Credentials
	sequences   SequenceStore
	events      AnalyticsEvents
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:          db,
		members:     NewMembersRepository(db),
		credentials: NewCredentialsRepository(db),
		sequences:   NewSequencesRepository(db),
		events:      NewAnalyticsEventsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.members == nil {
		return errors.New("repository members should be initialized")
	}

	if m.credentials == nil {
		return errors.New("repository credentials should be initialized")
	}

	if m.sequences == nil {
		return errors.New("repository sequences should be initialized")
	}

	if m.events == nil {
		return errors.New("repository events should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Members() Members {
	return m.members
}

func (m mngr) Credentials() Credentials {
	return m.credentials
}

func (m mngr) Sequences() SequenceStore {
	return m.sequences
}

func (m mngr) AnalyticsEvents() AnalyticsEvents {
	return m.events
}

// UpdateMemberStatus persists a status change on the member record and
// mirrors it onto the credential row in the same transaction, so the login
// path can reject suspended accounts without joining tables.
func (m mngr) UpdateMemberStatus(ctx context.Context, member *Member, status AccountStatus) (*Member, error) {
	var updated *Member

	err := m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		opts := []MemberStatusOption{}
		if status == AccountStatusSuspended {
			now := time.Now().UTC()
			opts = append(opts, WithMemberSuspendedAt(&now))
		} else {
			opts = append(opts, WithMemberSuspendedAt(nil))
		}

		record, err := m.members.UpdateStatusTx(ctx, tx, member.ID, status, opts...)
		if err != nil {
			return err
		}

		if err := m.credentials.UpdateStatusTx(ctx, tx, member.MemberNumber, status); err != nil {
			return err
		}

		updated = record
		return nil
	})

	if err != nil {
		return nil, err
	}

	return updated, nil
}
