package members_test

import (
	"context"
	"testing"
	"time"

	members "github.com/goliatone/go-members"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func expiredGuest(memberNumber string, expiredAt time.Time) *members.Member {
	return &members.Member{
		MemberNumber: memberNumber,
		AccountType:  members.AccountTypeGuest,
		Plan:         "guest",
		Status:       members.AccountStatusActive,
		ExpiresAt:    &expiredAt,
	}
}

func newTestSweeper(repo *MockRepositoryManager, sink *recordingSink, opts ...members.SweeperOption) *members.Sweeper {
	options := append([]members.SweeperOption{
		members.WithSweeperEventSink(sink),
		members.WithSweeperClock(func() time.Time { return fixedNow }),
		members.WithSweeperConcurrency(2),
	}, opts...)

	return members.NewSweeper(repo, options...)
}

func TestSweeperReclaimsExpiredGuests(t *testing.T) {
	repo := newMockRepositoryManager()
	sink := &recordingSink{}
	sweeper := newTestSweeper(repo, sink)

	expiredAt := fixedNow.Add(-time.Hour)
	candidates := []*members.Member{
		expiredGuest("25000001", expiredAt),
		expiredGuest("25000002", expiredAt),
	}

	repo.MembersRepo.On("ListExpiredGuests", mock.Anything, mock.Anything, mock.Anything).
		Return(candidates, nil)
	repo.MembersRepo.On("DeleteByMemberNumberTx", mock.Anything, mock.Anything, mock.Anything).
		Return(1, nil)
	repo.CredentialsRepo.On("DeleteByMemberNumberTx", mock.Anything, mock.Anything, mock.Anything).
		Return(1, nil)

	report, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Reclaimed)
	assert.Equal(t, 0, report.Failed)

	events := sink.ByType(members.EventGuestExpired)
	require.Len(t, events, 2)

	seen := map[string]bool{}
	for _, e := range events {
		seen[e.MemberNumber] = true
		assert.Equal(t, members.AccountTypeGuest, e.AccountType)
	}
	assert.True(t, seen["25000001"])
	assert.True(t, seen["25000002"])
}

func TestSweeperSecondRunIsIdempotent(t *testing.T) {
	repo := newMockRepositoryManager()
	sink := &recordingSink{}
	sweeper := newTestSweeper(repo, sink)

	repo.MembersRepo.On("ListExpiredGuests", mock.Anything, mock.Anything, mock.Anything).
		Return([]*members.Member{}, nil)

	report, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 0, report.Reclaimed)
	assert.Empty(t, sink.Events())
}

func TestSweeperAlreadyDeletedRowsEmitNoEvent(t *testing.T) {
	repo := newMockRepositoryManager()
	sink := &recordingSink{}
	sweeper := newTestSweeper(repo, sink)

	expiredAt := fixedNow.Add(-time.Hour)
	repo.MembersRepo.On("ListExpiredGuests", mock.Anything, mock.Anything, mock.Anything).
		Return([]*members.Member{expiredGuest("25000001", expiredAt)}, nil)
	// a concurrent pass already removed the rows
	repo.MembersRepo.On("DeleteByMemberNumberTx", mock.Anything, mock.Anything, "25000001").
		Return(0, nil)
	repo.CredentialsRepo.On("DeleteByMemberNumberTx", mock.Anything, mock.Anything, "25000001").
		Return(0, nil)

	report, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Reclaimed)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, sink.ByType(members.EventGuestExpired))
}

func TestSweeperIsolatesFailures(t *testing.T) {
	repo := newMockRepositoryManager()
	sink := &recordingSink{}
	sweeper := newTestSweeper(repo, sink)

	expiredAt := fixedNow.Add(-time.Hour)
	repo.MembersRepo.On("ListExpiredGuests", mock.Anything, mock.Anything, mock.Anything).
		Return([]*members.Member{
			expiredGuest("25000001", expiredAt),
			expiredGuest("25000002", expiredAt),
		}, nil)

	repo.MembersRepo.On("DeleteByMemberNumberTx", mock.Anything, mock.Anything, "25000001").
		Return(0, assertableErr("disk full"))
	repo.MembersRepo.On("DeleteByMemberNumberTx", mock.Anything, mock.Anything, "25000002").
		Return(1, nil)
	repo.CredentialsRepo.On("DeleteByMemberNumberTx", mock.Anything, mock.Anything, mock.Anything).
		Return(1, nil)

	report, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Reclaimed)
	assert.Equal(t, 1, report.Failed)

	events := sink.ByType(members.EventGuestExpired)
	require.Len(t, events, 1)
	assert.Equal(t, "25000002", events[0].MemberNumber)
}

func TestSweeperRunsSubrecordReaper(t *testing.T) {
	repo := newMockRepositoryManager()
	sink := &recordingSink{}

	var reaped []string
	reaper := members.SubrecordReaperFunc(func(_ context.Context, member *members.Member) error {
		reaped = append(reaped, member.MemberNumber)
		return nil
	})

	sweeper := newTestSweeper(repo, sink,
		members.WithSweeperConcurrency(1),
		members.WithSweeperReaper(reaper),
	)

	expiredAt := fixedNow.Add(-time.Hour)
	repo.MembersRepo.On("ListExpiredGuests", mock.Anything, mock.Anything, mock.Anything).
		Return([]*members.Member{expiredGuest("25000001", expiredAt)}, nil)
	repo.MembersRepo.On("DeleteByMemberNumberTx", mock.Anything, mock.Anything, mock.Anything).
		Return(1, nil)
	repo.CredentialsRepo.On("DeleteByMemberNumberTx", mock.Anything, mock.Anything, mock.Anything).
		Return(1, nil)

	_, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"25000001"}, reaped)
}

func TestSweeperFailingReaperBlocksDeletion(t *testing.T) {
	repo := newMockRepositoryManager()
	sink := &recordingSink{}

	reaper := members.SubrecordReaperFunc(func(context.Context, *members.Member) error {
		return assertableErr("reaper down")
	})

	sweeper := newTestSweeper(repo, sink, members.WithSweeperReaper(reaper))

	expiredAt := fixedNow.Add(-time.Hour)
	repo.MembersRepo.On("ListExpiredGuests", mock.Anything, mock.Anything, mock.Anything).
		Return([]*members.Member{expiredGuest("25000001", expiredAt)}, nil)

	report, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	repo.MembersRepo.AssertNotCalled(t, "DeleteByMemberNumberTx", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, sink.ByType(members.EventGuestExpired))
}
