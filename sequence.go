package members

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
)

// memberNumberWidth is the zero-padded digit count of the sequence suffix.
const memberNumberWidth = 6

// MemberNumberPattern matches the externally visible YYNNNNNN identifier.
var MemberNumberPattern = regexp.MustCompile(`^\d{8}$`)

var yearPrefixPattern = regexp.MustCompile(`^\d{2}$`)

// SequenceStore performs one transactional increment attempt against the
// shared counter row for a year prefix. Implementations must make the
// read-increment-write atomic with respect to other callers; on contention
// they return a retryable error rather than lose or double an allocation.
type SequenceStore interface {
	Next(ctx context.Context, yearPrefix string) (int64, error)
	Current(ctx context.Context, yearPrefix string) (int64, error)
}

// Allocator hands out strictly increasing, gap-free member numbers per year
// prefix by retrying the store's transactional increment on conflict.
type Allocator struct {
	store       SequenceStore
	maxAttempts int
	backoff     time.Duration
	logger      Logger
}

// AllocatorOption customizes allocator behavior.
type AllocatorOption func(*Allocator)

// WithAllocatorMaxAttempts bounds the retry loop.
func WithAllocatorMaxAttempts(n int) AllocatorOption {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithAllocatorBackoff sets the base delay between retry attempts.
func WithAllocatorBackoff(d time.Duration) AllocatorOption {
	return func(a *Allocator) {
		if d > 0 {
			a.backoff = d
		}
	}
}

// WithAllocatorLogger overrides the logger.
func WithAllocatorLogger(l Logger) AllocatorOption {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAllocator returns an Allocator over the given store.
func NewAllocator(store SequenceStore, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		store:       store,
		maxAttempts: 5,
		backoff:     25 * time.Millisecond,
		logger:      defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// Allocate returns the next member number for the prefix, e.g. "25000042"
// when the counter for prefix "25" sat at 41. Under N concurrent callers the
// results are pairwise distinct and contiguous.
func (a *Allocator) Allocate(ctx context.Context, yearPrefix string) (string, error) {
	if !yearPrefixPattern.MatchString(yearPrefix) {
		return "", ErrInvalidMemberNumber.WithMetadata(map[string]any{
			"year_prefix": yearPrefix,
		})
	}

	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		n, err := a.store.Next(ctx, yearPrefix)
		if err == nil {
			return FormatMemberNumber(yearPrefix, n), nil
		}

		if !IsStorageConflict(err) {
			return "", err
		}

		lastErr = err
		a.logger.Debug("sequence allocation conflict, retrying", "prefix", yearPrefix, "attempt", attempt, "error", err)

		if attempt == a.maxAttempts {
			break
		}
		if err := a.sleep(ctx, attempt); err != nil {
			return "", err
		}
	}

	return "", ErrSequenceExhausted.WithMetadata(map[string]any{
		"year_prefix": yearPrefix,
		"attempts":    a.maxAttempts,
		"cause":       fmt.Sprintf("%v", lastErr),
	})
}

// sleep waits a jittered backoff or returns early when the context ends.
func (a *Allocator) sleep(ctx context.Context, attempt int) error {
	delay := a.backoff * time.Duration(attempt)
	delay += time.Duration(rand.Int64N(int64(a.backoff)))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FormatMemberNumber renders the external identifier: two digit year prefix
// plus the zero-padded six digit sequence.
func FormatMemberNumber(yearPrefix string, n int64) string {
	return fmt.Sprintf("%s%0*d", yearPrefix, memberNumberWidth, n)
}

// CurrentYearPrefix derives the two digit prefix from a point in time.
func CurrentYearPrefix(at time.Time) string {
	return at.UTC().Format("06")
}

// IsStorageConflict reports whether the error is transient contention the
// caller should retry: a serialization failure, a busy/locked SQLite file,
// or a duplicate-key race on a counter's first insert.
func IsStorageConflict(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeStorageUnavailable) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"serialization failure",
		"could not serialize access",
		"deadlock",
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
