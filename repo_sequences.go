package members

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Sequences implements SequenceStore on top of bun. Each Next call runs a
// serializable transaction with an optimistic guard on last_number so two
// concurrent callers can never observe the same value.
type Sequences struct {
	db *bun.DB
}

var _ SequenceStore = (*Sequences)(nil)

// NewSequencesRepository builds the bun-backed counter store.
func NewSequencesRepository(db *bun.DB) *Sequences {
	return &Sequences{db: db}
}

// Next atomically increments and returns the counter for the prefix,
// creating the row on first use. Contention surfaces as a retryable error
// for the allocator to handle.
func (r *Sequences) Next(ctx context.Context, yearPrefix string) (int64, error) {
	var allocated int64

	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		counter := &SequenceCounter{}
		err := tx.NewSelect().
			Model(counter).
			Where("?TableAlias.year_prefix = ?", yearPrefix).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if !repository.IsRecordNotFound(err) {
				return err
			}

			counter = &SequenceCounter{YearPrefix: yearPrefix, LastNumber: 1}
			if _, err := tx.NewInsert().Model(counter).Exec(ctx); err != nil {
				if isUniqueViolation(err) {
					// another caller created the row between our read and write
					return ErrSequenceConflict
				}
				return err
			}
			allocated = counter.LastNumber
			return nil
		}

		next := counter.LastNumber + 1
		res, err := tx.NewUpdate().
			Model((*SequenceCounter)(nil)).
			Set("last_number = ?", next).
			Set("updated_at = CURRENT_TIMESTAMP").
			Where("?TableAlias.year_prefix = ?", yearPrefix).
			Where("?TableAlias.last_number = ?", counter.LastNumber).
			Exec(ctx)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// another caller advanced the counter between our read and write
			return ErrSequenceConflict
		}

		allocated = next
		return nil
	})

	if err != nil {
		return 0, err
	}

	return allocated, nil
}

// isUniqueViolation matches the duplicate-key wording of the sqlite and
// postgres drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"unique constraint failed",
		"sqlite_constraint_unique",
		"duplicate key value",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Current returns the last allocated number for the prefix, zero when no
// allocation happened yet.
func (r *Sequences) Current(ctx context.Context, yearPrefix string) (int64, error) {
	counter := &SequenceCounter{}
	err := r.db.NewSelect().
		Model(counter).
		Where("?TableAlias.year_prefix = ?", yearPrefix).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return 0, nil
		}
		return 0, err
	}

	return counter.LastNumber, nil
}
