package members_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	members "github.com/goliatone/go-members"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockMembers implements members.Members
type MockMembers struct {
	mock.Mock
}

func (m *MockMembers) GetByMemberNumber(ctx context.Context, memberNumber string) (*members.Member, error) {
	args := m.Called(ctx, memberNumber)
	record, _ := args.Get(0).(*members.Member)
	return record, args.Error(1)
}

func (m *MockMembers) GetByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (*members.Member, error) {
	args := m.Called(ctx, tx, memberNumber)
	record, _ := args.Get(0).(*members.Member)
	return record, args.Error(1)
}

func (m *MockMembers) Create(ctx context.Context, record *members.Member) (*members.Member, error) {
	args := m.Called(ctx, record)
	created, _ := args.Get(0).(*members.Member)
	return created, args.Error(1)
}

func (m *MockMembers) CreateTx(ctx context.Context, tx bun.IDB, record *members.Member) (*members.Member, error) {
	args := m.Called(ctx, tx, record)
	created, _ := args.Get(0).(*members.Member)
	return created, args.Error(1)
}

func (m *MockMembers) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status members.AccountStatus, opts ...members.MemberStatusOption) (*members.Member, error) {
	args := m.Called(ctx, tx, id, status)
	record, _ := args.Get(0).(*members.Member)
	return record, args.Error(1)
}

func (m *MockMembers) TrackSuccessfulLogin(ctx context.Context, record *members.Member) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockMembers) ListExpiredGuests(ctx context.Context, asOf time.Time, limit int) ([]*members.Member, error) {
	args := m.Called(ctx, asOf, limit)
	records, _ := args.Get(0).([]*members.Member)
	return records, args.Error(1)
}

func (m *MockMembers) DeleteByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (int64, error) {
	args := m.Called(ctx, tx, memberNumber)
	return int64(args.Int(0)), args.Error(1)
}

// MockCredentials implements members.Credentials
type MockCredentials struct {
	mock.Mock
}

func (m *MockCredentials) GetByMemberNumber(ctx context.Context, memberNumber string) (*members.Credential, error) {
	args := m.Called(ctx, memberNumber)
	record, _ := args.Get(0).(*members.Credential)
	return record, args.Error(1)
}

func (m *MockCredentials) GetByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (*members.Credential, error) {
	args := m.Called(ctx, tx, memberNumber)
	record, _ := args.Get(0).(*members.Credential)
	return record, args.Error(1)
}

func (m *MockCredentials) CreateTx(ctx context.Context, tx bun.IDB, record *members.Credential) (*members.Credential, error) {
	args := m.Called(ctx, tx, record)
	created, _ := args.Get(0).(*members.Credential)
	return created, args.Error(1)
}

func (m *MockCredentials) RotatePassword(ctx context.Context, memberNumber string, permanentHash string) error {
	args := m.Called(ctx, memberNumber, permanentHash)
	return args.Error(0)
}

func (m *MockCredentials) RotatePasswordTx(ctx context.Context, tx bun.IDB, memberNumber string, permanentHash string) error {
	args := m.Called(ctx, tx, memberNumber, permanentHash)
	return args.Error(0)
}

func (m *MockCredentials) UpdateStatusTx(ctx context.Context, tx bun.IDB, memberNumber string, status members.AccountStatus) error {
	args := m.Called(ctx, tx, memberNumber, status)
	return args.Error(0)
}

func (m *MockCredentials) TrackSuccessfulLogin(ctx context.Context, record *members.Credential) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockCredentials) DeleteByMemberNumberTx(ctx context.Context, tx bun.IDB, memberNumber string) (int64, error) {
	args := m.Called(ctx, tx, memberNumber)
	return int64(args.Int(0)), args.Error(1)
}

// MockAnalyticsEvents implements members.AnalyticsEvents
type MockAnalyticsEvents struct {
	mock.Mock
}

func (m *MockAnalyticsEvents) Append(ctx context.Context, record *members.AnalyticsEvent) (*members.AnalyticsEvent, error) {
	args := m.Called(ctx, record)
	created, _ := args.Get(0).(*members.AnalyticsEvent)
	return created, args.Error(1)
}

func (m *MockAnalyticsEvents) ListByMemberNumber(ctx context.Context, memberNumber string, limit int) ([]*members.AnalyticsEvent, error) {
	args := m.Called(ctx, memberNumber, limit)
	records, _ := args.Get(0).([]*members.AnalyticsEvent)
	return records, args.Error(1)
}

// fakeSequenceStore is an in-memory SequenceStore. It can inject a number of
// transient conflicts before succeeding.
type fakeSequenceStore struct {
	mu        sync.Mutex
	counters  map[string]int64
	conflicts int
	failWith  error
}

func newFakeSequenceStore() *fakeSequenceStore {
	return &fakeSequenceStore{counters: map[string]int64{}}
}

func (f *fakeSequenceStore) Next(ctx context.Context, yearPrefix string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// failWith overrides the conflict error while conflicts remain
	if f.conflicts > 0 {
		f.conflicts--
		if f.failWith != nil {
			return 0, f.failWith
		}
		return 0, members.ErrSequenceConflict
	}

	f.counters[yearPrefix]++
	return f.counters[yearPrefix], nil
}

func (f *fakeSequenceStore) Current(ctx context.Context, yearPrefix string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[yearPrefix], nil
}

// MockRepositoryManager wires the mocks behind members.RepositoryManager.
// RunInTx executes the callback against a zero transaction so the Tx variants
// can be asserted on directly.
type MockRepositoryManager struct {
	MembersRepo     *MockMembers
	CredentialsRepo *MockCredentials
	SequencesRepo   members.SequenceStore
	EventsRepo      *MockAnalyticsEvents
}

func newMockRepositoryManager() *MockRepositoryManager {
	return &MockRepositoryManager{
		MembersRepo:     &MockMembers{},
		CredentialsRepo: &MockCredentials{},
		SequencesRepo:   newFakeSequenceStore(),
		EventsRepo:      &MockAnalyticsEvents{},
	}
}

func (m *MockRepositoryManager) Validate() error { return nil }

func (m *MockRepositoryManager) MustValidate() {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *MockRepositoryManager) Members() members.Members { return m.MembersRepo }

func (m *MockRepositoryManager) Credentials() members.Credentials { return m.CredentialsRepo }

func (m *MockRepositoryManager) Sequences() members.SequenceStore { return m.SequencesRepo }

func (m *MockRepositoryManager) AnalyticsEvents() members.AnalyticsEvents { return m.EventsRepo }

func (m *MockRepositoryManager) UpdateMemberStatus(ctx context.Context, member *members.Member, status members.AccountStatus) (*members.Member, error) {
	var updated *members.Member
	err := m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := m.MembersRepo.UpdateStatusTx(ctx, tx, member.ID, status)
		if err != nil {
			return err
		}
		if err := m.CredentialsRepo.UpdateStatusTx(ctx, tx, member.MemberNumber, status); err != nil {
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

// MockIdentityBackend implements members.IdentityBackend
type MockIdentityBackend struct {
	mock.Mock
}

func (m *MockIdentityBackend) EnsurePrincipal(ctx context.Context, memberNumber string) error {
	args := m.Called(ctx, memberNumber)
	return args.Error(0)
}

func (m *MockIdentityBackend) MintToken(ctx context.Context, identity members.Identity) (string, time.Time, error) {
	args := m.Called(ctx, identity)
	expiresAt, _ := args.Get(1).(time.Time)
	return args.String(0), expiresAt, args.Error(2)
}

type assertableErr string

func (e assertableErr) Error() string { return string(e) }

// recordingSink captures events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []members.Event
}

func (s *recordingSink) Record(_ context.Context, event members.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Events() []members.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]members.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) ByType(eventType members.EventType) []members.Event {
	var out []members.Event
	for _, e := range s.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
