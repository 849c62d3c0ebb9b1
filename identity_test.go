package members_test

import (
	"context"
	"testing"
	"time"

	members "github.com/goliatone/go-members"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMemberIdentity(memberNumber string, accountType members.AccountType) members.Identity {
	return members.NewIdentityFromMember(&members.Member{
		MemberNumber: memberNumber,
		AccountType:  accountType,
	})
}

func TestJWTIdentityBackendMintAndValidate(t *testing.T) {
	backend := members.NewJWTIdentityBackend(newTestConfig(), nil)

	identity := testMemberIdentity("25000042", members.AccountTypeGuest)

	token, expiresAt, err := backend.MintToken(context.Background(), identity)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := backend.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "25000042", claims.Mno)
	assert.Equal(t, members.AccountTypeGuest, claims.Role)
	assert.False(t, claims.Admin)
	assert.Equal(t, "members-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTIdentityBackendAdminClaim(t *testing.T) {
	backend := members.NewJWTIdentityBackend(newTestConfig(), nil)

	token, _, err := backend.MintToken(context.Background(), testMemberIdentity("25000001", members.AccountTypeAdmin))
	require.NoError(t, err)

	claims, err := backend.Validate(token)
	require.NoError(t, err)
	assert.True(t, claims.Admin)
}

func TestJWTIdentityBackendRejectsForeignTokens(t *testing.T) {
	backend := members.NewJWTIdentityBackend(newTestConfig(), nil)

	other := newTestConfig()
	other.signingKey = "a-completely-different-key"
	foreign := members.NewJWTIdentityBackend(other, nil)

	token, _, err := foreign.MintToken(context.Background(), testMemberIdentity("25000042", members.AccountTypeGuest))
	require.NoError(t, err)

	_, err = backend.Validate(token)
	require.Error(t, err)
}

func TestJWTIdentityBackendRejectsGarbage(t *testing.T) {
	backend := members.NewJWTIdentityBackend(newTestConfig(), nil)

	_, err := backend.Validate("not-a-token")
	require.Error(t, err)
}

func TestJWTIdentityBackendMintRequiresIdentity(t *testing.T) {
	backend := members.NewJWTIdentityBackend(newTestConfig(), nil)

	_, _, err := backend.MintToken(context.Background(), nil)
	require.Error(t, err)
}

func TestEnsurePrincipalIsIdempotent(t *testing.T) {
	backend := members.NewJWTIdentityBackend(newTestConfig(), nil)

	require.NoError(t, backend.EnsurePrincipal(context.Background(), "25000042"))
	require.NoError(t, backend.EnsurePrincipal(context.Background(), "25000042"))
	require.NoError(t, backend.EnsurePrincipal(context.Background(), "25000043"))

	require.Error(t, backend.EnsurePrincipal(context.Background(), ""))
}

func TestMemberIdentityAdapter(t *testing.T) {
	member := &members.Member{
		MemberNumber: "25000042",
		AccountType:  members.AccountTypeGuest,
	}

	identity := members.NewIdentityFromMember(member)
	assert.Equal(t, "25000042", identity.MemberNumber())
	assert.Equal(t, "guest", identity.Role())

	assert.Nil(t, members.NewIdentityFromMember(nil))
}
