package members

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated principal
type Identity interface {
	ID() string
	MemberNumber() string
	Role() string
}

// IdentityBackend abstracts the identity provider the service mints bearer
// tokens from. EnsurePrincipal must be idempotent: it runs on first sight of
// a member number and again on every successful login.
type IdentityBackend interface {
	EnsurePrincipal(ctx context.Context, memberNumber string) error
	MintToken(ctx context.Context, identity Identity) (string, time.Time, error)
}

// Config holds membership options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetBcryptCost() int
	GetGuestTTL() time.Duration
	GetGuestPlan() string
	GetSweepInterval() time.Duration
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] MEMBERS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] MEMBERS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] MEMBERS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] MEMBERS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
