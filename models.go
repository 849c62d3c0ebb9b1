package members

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountType classifies how an account came to exist
type AccountType = string

const (
	// AccountTypeGuest is a self-service, time-limited account
	AccountTypeGuest AccountType = "guest"
	// AccountTypeMember is a standing account (converted out of band)
	AccountTypeMember AccountType = "member"
	// AccountTypeAdmin is an operator account
	AccountTypeAdmin AccountType = "admin"
)

// AccountStatus is the account's lifecycle status
type AccountStatus = string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
)

// Member is the directory record the rest of the application consumes
type Member struct {
	bun.BaseModel `bun:"table:members,alias:mbr"`
	ID            uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	MemberNumber  string        `bun:"member_number,notnull,unique" json:"member_number,omitempty"`
	DisplayName   string        `bun:"display_name" json:"display_name,omitempty"`
	AccountType   AccountType   `bun:"account_type,notnull" json:"account_type,omitempty"`
	Plan          string        `bun:"plan,notnull" json:"plan,omitempty"`
	Status        AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	LastLoginAt   *time.Time    `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	ExpiresAt     *time.Time    `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	SuspendedAt   *time.Time    `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	CreatedAt     *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureStatus backfills the default status on records created before the
// status column existed.
func (m *Member) EnsureStatus() {
	if m != nil && m.Status == "" {
		m.Status = AccountStatusActive
	}
}

// IsGuest reports whether the account is a self-service guest.
func (m *Member) IsGuest() bool {
	return m != nil && m.AccountType == AccountTypeGuest
}

// IsExpired reports whether a guest account's retention window has passed.
// Non-guest accounts never expire.
func (m *Member) IsExpired(at time.Time) bool {
	if m == nil || m.ExpiresAt == nil {
		return false
	}
	return m.ExpiresAt.Before(at)
}

// Validate enforces the guest/expiry invariant: ExpiresAt is set if and only
// if the account is a guest.
func (m *Member) Validate() error {
	if m == nil {
		return ErrNoEmptyString
	}
	if m.MemberNumber == "" {
		return ErrInvalidMemberNumber
	}
	if m.IsGuest() != (m.ExpiresAt != nil) {
		return ErrExpiryInvariant
	}
	return nil
}

// Credential holds per-member password hash state, keyed 1:1 with Member by
// member number. Exactly one of the two hashes is "active" at any time:
// permanent takes precedence once set.
type Credential struct {
	bun.BaseModel         `bun:"table:member_credentials,alias:crd"`
	ID                    uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	MemberNumber          string        `bun:"member_number,notnull,unique" json:"member_number,omitempty"`
	TemporaryPasswordHash string        `bun:"temporary_password_hash,nullzero" json:"-"`
	PermanentPasswordHash string        `bun:"permanent_password_hash,nullzero" json:"-"`
	ForcePasswordChange   bool          `bun:"force_password_change" json:"force_password_change,omitempty"`
	Status                AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	ExpiresAt             *time.Time    `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	IssuedAt              *time.Time    `bun:"issued_at,nullzero" json:"issued_at,omitempty"`
	LastLoginAt           *time.Time    `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	PasswordUpdatedAt     *time.Time    `bun:"password_updated_at,nullzero" json:"password_updated_at,omitempty"`
	CreatedAt             *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt             *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// ActiveHash returns the hash logins are verified against: the permanent
// hash once the member has chosen a password, the temporary one before.
func (c *Credential) ActiveHash() string {
	if c == nil {
		return ""
	}
	if c.PermanentPasswordHash != "" {
		return c.PermanentPasswordHash
	}
	return c.TemporaryPasswordHash
}

// HasCredential reports whether any hash is set at all.
func (c *Credential) HasCredential() bool {
	return c.ActiveHash() != ""
}

// IsExpired mirrors Member.IsExpired for authorization checks that only
// touch the credential record.
func (c *Credential) IsExpired(at time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(at)
}

// EnsureStatus backfills the default status.
func (c *Credential) EnsureStatus() {
	if c != nil && c.Status == "" {
		c.Status = AccountStatusActive
	}
}

// SequenceCounter is the per-year-prefix allocation state. LastNumber only
// ever increases; rows are created lazily on first allocation for a prefix.
type SequenceCounter struct {
	bun.BaseModel `bun:"table:member_sequences,alias:seq"`
	YearPrefix    string     `bun:"year_prefix,pk" json:"year_prefix,omitempty"`
	LastNumber    int64      `bun:"last_number,notnull" json:"last_number,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AnalyticsEvent is an append-only lifecycle/security event. There is no
// update or delete path: rows are written once and read by external analysis.
type AnalyticsEvent struct {
	bun.BaseModel `bun:"table:analytics_events,alias:evt"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	EventType     string         `bun:"event_type,notnull" json:"event_type,omitempty"`
	Payload       map[string]any `bun:"payload" json:"payload,omitempty"`
	AccountType   AccountType    `bun:"account_type" json:"account_type,omitempty"`
	Plan          string         `bun:"plan" json:"plan,omitempty"`
	MemberNumber  string         `bun:"member_number,nullzero" json:"member_number,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
