package members

import (
	"context"
	"regexp"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// PasswordPattern matches acceptable permanent passwords: digits only,
// eight or more.
var PasswordPattern = regexp.MustCompile(`^\d{8,}$`)

// CreateGuestRequest carries the optional attributes of a new guest account.
type CreateGuestRequest struct {
	DisplayName string
	Plan        string
}

// GuestGrant is the one-time response to guest issuance. Password holds the
// temporary cleartext and is never persisted or shown again.
type GuestGrant struct {
	MemberNumber   string    `json:"member_number"`
	Password       string    `json:"password"`
	Token          string    `json:"token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Plan           string    `json:"plan"`
}

// LoginRequest authenticates a member number against its active password.
type LoginRequest struct {
	MemberNumber string
	Password     string
}

// Session is the result of a successful login.
type Session struct {
	MemberNumber        string     `json:"member_number"`
	Token               string     `json:"token"`
	TokenExpiresAt      time.Time  `json:"token_expires_at"`
	AccountType         string     `json:"account_type"`
	Plan                string     `json:"plan"`
	ForcePasswordChange bool       `json:"force_password_change"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
}

// ChangePasswordRequest rotates the active password to a caller-chosen
// permanent one.
type ChangePasswordRequest struct {
	MemberNumber    string
	CurrentPassword string
	NewPassword     string
}

// Service implements guest issuance, login, and password rotation on top of
// the repositories and the identity backend.
type Service struct {
	repo      RepositoryManager
	allocator *Allocator
	backend   IdentityBackend
	sink      EventSink
	config    Config
	logger    Logger
	now       func() time.Time
}

// ServiceOption customizes Service construction.
type ServiceOption func(*Service)

// WithServiceLogger overrides the logger.
func WithServiceLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithServiceEventSink sets the sink lifecycle events are published to.
func WithServiceEventSink(sink EventSink) ServiceOption {
	return func(s *Service) {
		s.sink = normalizeEventSink(sink)
	}
}

// WithServiceClock injects a custom clock (useful for tests).
func WithServiceClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithServiceAllocator overrides the member number allocator.
func WithServiceAllocator(a *Allocator) ServiceOption {
	return func(s *Service) {
		if a != nil {
			s.allocator = a
		}
	}
}

// NewService wires the default Service.
func NewService(repo RepositoryManager, backend IdentityBackend, config Config, opts ...ServiceOption) *Service {
	s := &Service{
		repo:    repo,
		backend: backend,
		config:  config,
		sink:    noopEventSink{},
		logger:  defLogger{},
		now:     time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.allocator == nil {
		s.allocator = NewAllocator(repo.Sequences(), WithAllocatorLogger(s.logger))
	}

	return s
}

// CreateGuest provisions a new guest account: a fresh member number, a
// temporary numeric password, directory and credential rows, and an initial
// session token. Nothing is persisted when any step of the transaction fails.
func (s *Service) CreateGuest(ctx context.Context, req CreateGuestRequest) (*GuestGrant, error) {
	now := s.now().UTC()

	memberNumber, err := s.allocator.Allocate(ctx, CurrentYearPrefix(now))
	if err != nil {
		return nil, err
	}

	tempPassword := TemporaryPassword(TemporaryPasswordLength)
	hash, err := HashPasswordWithCost(tempPassword, s.config.GetBcryptCost())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash temporary password")
	}

	if err := s.backend.EnsurePrincipal(ctx, memberNumber); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to register principal")
	}

	plan := req.Plan
	if plan == "" {
		plan = s.config.GetGuestPlan()
	}

	expiresAt := now.Add(s.config.GetGuestTTL())

	member := &Member{
		MemberNumber: memberNumber,
		DisplayName:  req.DisplayName,
		AccountType:  AccountTypeGuest,
		Plan:         plan,
		Status:       AccountStatusActive,
		ExpiresAt:    &expiresAt,
	}

	credential := &Credential{
		MemberNumber:          memberNumber,
		TemporaryPasswordHash: hash,
		ForcePasswordChange:   true,
		Status:                AccountStatusActive,
		ExpiresAt:             &expiresAt,
		IssuedAt:              &now,
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.repo.Members().CreateTx(ctx, tx, member); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create member")
		}
		if _, err := s.repo.Credentials().CreateTx(ctx, tx, credential); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create credential")
		}
		return nil
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "guest issuance transaction failed")
	}

	token, tokenExpiresAt, err := s.backend.MintToken(ctx, NewIdentityFromMember(member))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint session token")
	}

	s.record(ctx, Event{
		EventType:    EventGuestCreated,
		MemberNumber: memberNumber,
		AccountType:  AccountTypeGuest,
		Plan:         plan,
		Metadata: map[string]any{
			"expires_at": expiresAt,
		},
		OccurredAt: now,
	})

	return &GuestGrant{
		MemberNumber:   memberNumber,
		Password:       tempPassword,
		Token:          token,
		TokenExpiresAt: tokenExpiresAt,
		ExpiresAt:      expiresAt,
		Plan:           plan,
	}, nil
}

// Login authenticates a member number and password pair. The response for an
// unknown member number is indistinguishable from a wrong password.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	now := s.now().UTC()

	if !MemberNumberPattern.MatchString(req.MemberNumber) {
		s.recordLoginFailure(ctx, "", "malformed_member_number", now)
		return nil, ErrMemberNotFound
	}

	member, err := s.repo.Members().GetByMemberNumber(ctx, req.MemberNumber)
	if err != nil {
		if IsNotFound(err) {
			s.recordLoginFailure(ctx, req.MemberNumber, "unknown_member", now)
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	if member.Status == AccountStatusSuspended {
		s.recordLoginFailure(ctx, member.MemberNumber, "suspended", now)
		return nil, ErrAccountSuspended
	}

	if member.IsGuest() && member.IsExpired(now) {
		s.recordLoginFailure(ctx, member.MemberNumber, "expired", now)
		return nil, ErrGuestExpired
	}

	credential, err := s.repo.Credentials().GetByMemberNumber(ctx, req.MemberNumber)
	if err != nil {
		if IsNotFound(err) {
			s.recordLoginFailure(ctx, member.MemberNumber, "no_credential", now)
			return nil, ErrNoCredential
		}
		return nil, err
	}

	if !credential.HasCredential() {
		s.recordLoginFailure(ctx, member.MemberNumber, "no_credential", now)
		return nil, ErrNoCredential
	}

	if err := ComparePasswordAndHash(req.Password, credential.ActiveHash()); err != nil {
		s.recordLoginFailure(ctx, member.MemberNumber, "bad_password", now)
		return nil, ErrMismatchedHashAndPassword
	}

	if err := s.backend.EnsurePrincipal(ctx, member.MemberNumber); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to register principal")
	}

	token, tokenExpiresAt, err := s.backend.MintToken(ctx, NewIdentityFromMember(member))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint session token")
	}

	s.trackLogin(ctx, member, credential)

	s.record(ctx, Event{
		EventType:    EventLoginSuccess,
		MemberNumber: member.MemberNumber,
		AccountType:  member.AccountType,
		Plan:         member.Plan,
		OccurredAt:   now,
	})

	return &Session{
		MemberNumber:        member.MemberNumber,
		Token:               token,
		TokenExpiresAt:      tokenExpiresAt,
		AccountType:         string(member.AccountType),
		Plan:                member.Plan,
		ForcePasswordChange: credential.ForcePasswordChange,
		ExpiresAt:           member.ExpiresAt,
	}, nil
}

// ChangePassword authenticates the current password and replaces it with a
// caller-chosen permanent one. The format check runs before any lookup so a
// malformed password never burns a login attempt.
func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	now := s.now().UTC()

	if !PasswordPattern.MatchString(req.NewPassword) {
		return ErrInvalidPasswordFormat
	}

	if !MemberNumberPattern.MatchString(req.MemberNumber) {
		return ErrMemberNotFound
	}

	member, err := s.repo.Members().GetByMemberNumber(ctx, req.MemberNumber)
	if err != nil {
		if IsNotFound(err) {
			return ErrMemberNotFound
		}
		return err
	}

	if member.Status == AccountStatusSuspended {
		return ErrAccountSuspended
	}

	if member.IsGuest() && member.IsExpired(now) {
		return ErrGuestExpired
	}

	credential, err := s.repo.Credentials().GetByMemberNumber(ctx, req.MemberNumber)
	if err != nil {
		if IsNotFound(err) {
			return ErrNoCredential
		}
		return err
	}

	if !credential.HasCredential() {
		return ErrNoCredential
	}

	if err := ComparePasswordAndHash(req.CurrentPassword, credential.ActiveHash()); err != nil {
		s.recordLoginFailure(ctx, member.MemberNumber, "bad_password", now)
		return ErrMismatchedHashAndPassword
	}

	hash, err := HashPasswordWithCost(req.NewPassword, s.config.GetBcryptCost())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	if err := s.repo.Credentials().RotatePassword(ctx, req.MemberNumber, hash); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate password")
	}

	s.record(ctx, Event{
		EventType:    EventPasswordChanged,
		MemberNumber: member.MemberNumber,
		AccountType:  member.AccountType,
		Plan:         member.Plan,
		OccurredAt:   now,
	})

	return nil
}

// trackLogin persists last-login bookkeeping. Failures are logged, never
// surfaced: the login already succeeded.
func (s *Service) trackLogin(ctx context.Context, member *Member, credential *Credential) {
	if err := s.repo.Members().TrackSuccessfulLogin(ctx, member); err != nil {
		s.logger.Warn("failed to track member login", "member_number", member.MemberNumber, "error", err)
	}
	if err := s.repo.Credentials().TrackSuccessfulLogin(ctx, credential); err != nil {
		s.logger.Warn("failed to track credential login", "member_number", member.MemberNumber, "error", err)
	}
}

func (s *Service) recordLoginFailure(ctx context.Context, memberNumber, reason string, at time.Time) {
	s.record(ctx, Event{
		EventType:    EventLoginFailed,
		MemberNumber: memberNumber,
		Metadata: map[string]any{
			"reason": reason,
		},
		OccurredAt: at,
	})
}

func (s *Service) record(ctx context.Context, event Event) {
	sink := normalizeEventSink(s.sink)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("event sink error", "event_type", event.EventType, "error", err)
	}
}
