package members

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// MemberClaims is the JWT payload bundled with every issued session token.
type MemberClaims struct {
	jwt.RegisteredClaims
	Mno      string         `json:"mno,omitempty"`
	Role     string         `json:"role,omitempty"`
	Admin    bool           `json:"admin,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrTokenExpired signals an expired session token.
var ErrTokenExpired = goerrors.New("token expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed signals a token that failed parsing or signature checks.
var ErrTokenMalformed = goerrors.New("token malformed or invalid", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// JWTIdentityBackend implements IdentityBackend with HS256 JWTs and an
// in-process principal registry. EnsurePrincipal is idempotent: repeating it
// for the same member number is a no-op.
type JWTIdentityBackend struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger

	mu         sync.Mutex
	principals map[string]struct{}
}

var _ IdentityBackend = (*JWTIdentityBackend)(nil)

// NewJWTIdentityBackend creates a backend from the shared configuration.
func NewJWTIdentityBackend(cfg Config, logger Logger) *JWTIdentityBackend {
	if logger == nil {
		logger = defLogger{}
	}
	return &JWTIdentityBackend{
		signingKey:      []byte(cfg.GetSigningKey()),
		tokenExpiration: cfg.GetTokenExpiration(),
		issuer:          cfg.GetIssuer(),
		audience:        jwt.ClaimStrings(cfg.GetAudience()),
		logger:          logger,
	}
}

// EnsurePrincipal registers the member number with the identity provider.
// Calling it again for a known principal succeeds without side effects.
func (b *JWTIdentityBackend) EnsurePrincipal(ctx context.Context, memberNumber string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if memberNumber == "" {
		return ErrInvalidMemberNumber
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.principals == nil {
		b.principals = map[string]struct{}{}
	}
	if _, ok := b.principals[memberNumber]; ok {
		b.logger.Debug("principal already registered", "member_number", memberNumber)
		return nil
	}

	b.principals[memberNumber] = struct{}{}
	return nil
}

// MintToken issues a signed session token for the identity.
func (b *JWTIdentityBackend) MintToken(ctx context.Context, identity Identity) (string, time.Time, error) {
	select {
	case <-ctx.Done():
		return "", time.Time{}, ctx.Err()
	default:
	}

	if identity == nil {
		return "", time.Time{}, goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(b.tokenExpiration) * time.Hour)

	claims := &MemberClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    b.issuer,
			Subject:   identity.ID(),
			Audience:  b.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Mno:   identity.MemberNumber(),
		Role:  identity.Role(),
		Admin: identity.Role() == AccountTypeAdmin,
	}

	ensureTokenID(&claims.RegisteredClaims)

	token, err := b.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

// SignClaims signs arbitrary claims using the configured signing key.
func (b *JWTIdentityBackend) SignClaims(claims *MemberClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(b.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and verifies a token string, returning structured claims.
func (b *JWTIdentityBackend) Validate(tokenString string) (*MemberClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if b.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(b.issuer))
	}
	if len(b.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(b.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &MemberClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			b.logger.Error("token validation encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return b.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*MemberClaims); ok && token.Valid {
		return claims, nil
	}

	b.logger.Error("token validation could not decode claims")
	return nil, ErrTokenMalformed
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims != nil && claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}

// MemberIdentity adapts a Member into the Identity interface for token
// generation.
type MemberIdentity struct {
	member *Member
}

// NewIdentityFromMember returns an Identity adapter for the provided member.
func NewIdentityFromMember(member *Member) Identity {
	if member == nil {
		return nil
	}
	return MemberIdentity{member: member}
}

// ID returns the member's internal ID as a string.
func (m MemberIdentity) ID() string {
	if m.member == nil {
		return ""
	}
	return m.member.ID.String()
}

// MemberNumber returns the external identifier.
func (m MemberIdentity) MemberNumber() string {
	if m.member == nil {
		return ""
	}
	return m.member.MemberNumber
}

// Role returns the account type used for authorization claims.
func (m MemberIdentity) Role() string {
	if m.member == nil {
		return ""
	}
	return string(m.member.AccountType)
}
