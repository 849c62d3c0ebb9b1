package members

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// SubrecordReaper removes per-member data owned by other subsystems before
// the directory and credential rows go away. The default is a no-op.
type SubrecordReaper interface {
	ReapSubrecords(ctx context.Context, member *Member) error
}

// SubrecordReaperFunc adapts a function to the SubrecordReaper interface.
type SubrecordReaperFunc func(ctx context.Context, member *Member) error

// ReapSubrecords implements SubrecordReaper.
func (f SubrecordReaperFunc) ReapSubrecords(ctx context.Context, member *Member) error {
	if f == nil {
		return nil
	}
	return f(ctx, member)
}

type noopReaper struct{}

func (noopReaper) ReapSubrecords(context.Context, *Member) error { return nil }

// SweepReport summarizes one sweeper pass.
type SweepReport struct {
	Scanned   int        `json:"scanned"`
	Reclaimed int        `json:"reclaimed"`
	Failed    int        `json:"failed"`
	StartedAt time.Time  `json:"started_at"`
	Duration  string     `json:"duration"`
	AsOf      *time.Time `json:"as_of,omitempty"`
}

// Sweeper reclaims expired guest accounts: it deletes the directory and
// credential rows, reaps dependent records, and emits one event per guest.
// A pass is idempotent, rerunning it over the same window reclaims nothing.
type Sweeper struct {
	repo        RepositoryManager
	sink        EventSink
	reaper      SubrecordReaper
	logger      Logger
	now         func() time.Time
	interval    time.Duration
	batchSize   int
	concurrency int
}

// SweeperOption customizes Sweeper construction.
type SweeperOption func(*Sweeper)

// WithSweeperLogger overrides the logger.
func WithSweeperLogger(l Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSweeperEventSink sets the sink expiry events are published to.
func WithSweeperEventSink(sink EventSink) SweeperOption {
	return func(s *Sweeper) {
		s.sink = normalizeEventSink(sink)
	}
}

// WithSweeperClock injects a custom clock (useful for tests).
func WithSweeperClock(clock func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSweeperInterval sets the cadence of periodic runs.
func WithSweeperInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweeperBatchSize caps how many candidates one pass scans.
func WithSweeperBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithSweeperConcurrency bounds how many guests are reclaimed in parallel.
func WithSweeperConcurrency(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithSweeperReaper installs a SubrecordReaper for dependent data.
func WithSweeperReaper(r SubrecordReaper) SweeperOption {
	return func(s *Sweeper) {
		if r != nil {
			s.reaper = r
		}
	}
}

// NewSweeper wires the default Sweeper.
func NewSweeper(repo RepositoryManager, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		repo:        repo,
		sink:        noopEventSink{},
		reaper:      noopReaper{},
		logger:      defLogger{},
		now:         time.Now,
		interval:    24 * time.Hour,
		batchSize:   500,
		concurrency: 4,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Run executes a pass immediately and then on every tick until the context
// ends. Pass failures are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Sweeper) runLogged(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("sweep pass failed", "error", err)
		return
	}
	s.logger.Info("sweep pass complete", "scanned", report.Scanned, "reclaimed", report.Reclaimed, "failed", report.Failed)
}

// RunOnce reclaims every guest whose expiry passed, up to the batch size.
// Each guest is handled in its own transaction so one failure never blocks
// the rest of the batch.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	startedAt := s.now().UTC()
	report := SweepReport{StartedAt: startedAt, AsOf: &startedAt}

	candidates, err := s.repo.Members().ListExpiredGuests(ctx, startedAt, s.batchSize)
	if err != nil {
		return report, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list expired guests")
	}

	report.Scanned = len(candidates)

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, s.concurrency)
	)

	for _, member := range candidates {
		select {
		case <-ctx.Done():
			report.Duration = s.now().UTC().Sub(startedAt).String()
			return report, ctx.Err()
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(member *Member) {
			defer wg.Done()
			defer func() { <-semaphore }()

			reclaimed, err := s.reclaim(ctx, member)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				s.logger.Warn("failed to reclaim expired guest", "member_number", member.MemberNumber, "error", err)
				return
			}
			if reclaimed {
				report.Reclaimed++
			}
		}(member)
	}

	wg.Wait()
	report.Duration = s.now().UTC().Sub(startedAt).String()

	return report, nil
}

// reclaim removes one expired guest. It reports false without error when a
// concurrent pass already deleted the rows.
func (s *Sweeper) reclaim(ctx context.Context, member *Member) (bool, error) {
	if err := s.reaper.ReapSubrecords(ctx, member); err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reap dependent records")
	}

	var removed int64
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		affected, err := s.repo.Members().DeleteByMemberNumberTx(ctx, tx, member.MemberNumber)
		if err != nil {
			return err
		}
		removed = affected

		if _, err := s.repo.Credentials().DeleteByMemberNumberTx(ctx, tx, member.MemberNumber); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if removed == 0 {
		return false, nil
	}

	s.recordExpiry(ctx, member)
	return true, nil
}

func (s *Sweeper) recordExpiry(ctx context.Context, member *Member) {
	metadata := map[string]any{}
	if member.ExpiresAt != nil {
		metadata["expired_at"] = member.ExpiresAt
	}

	sink := normalizeEventSink(s.sink)
	err := sink.Record(ctx, Event{
		EventType:    EventGuestExpired,
		MemberNumber: member.MemberNumber,
		AccountType:  member.AccountType,
		Plan:         member.Plan,
		Metadata:     metadata,
		OccurredAt:   s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("sweeper event sink error", "member_number", member.MemberNumber, "error", err)
	}
}
