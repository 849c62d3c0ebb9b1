package members

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced alongside error categories so callers can map
// conditions to localized messages without parsing English strings.
const (
	TextCodeMemberNotFound     = "MEMBER_NOT_FOUND"
	TextCodeAccountSuspended   = "ACCOUNT_SUSPENDED"
	TextCodeGuestExpired       = "GUEST_EXPIRED"
	TextCodeNoCredential       = "NO_CREDENTIAL_SET"
	TextCodeBadCredentials     = "INVALID_CREDENTIALS"
	TextCodeInvalidPassword    = "INVALID_PASSWORD_FORMAT"
	TextCodeInvalidMemberNo    = "INVALID_MEMBER_NUMBER"
	TextCodeExpiryInvariant    = "EXPIRY_GUEST_INVARIANT"
	TextCodeSequenceExhausted  = "SEQUENCE_RETRIES_EXHAUSTED"
	TextCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)

// ErrMemberNotFound is returned when no record exists for a member number.
// The message deliberately matches the wrong-password wording so the two
// outcomes are indistinguishable to a caller probing for valid numbers.
var ErrMemberNotFound = goerrors.New("invalid member number or password", goerrors.CategoryNotFound).
	WithTextCode(TextCodeMemberNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAccountSuspended is returned when the account status blocks login.
var ErrAccountSuspended = goerrors.New("account is suspended", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccountSuspended).
	WithCode(goerrors.CodeForbidden)

// ErrGuestExpired is returned when a guest account's retention window has
// passed but the sweeper has not reclaimed it yet.
var ErrGuestExpired = goerrors.New("guest account has expired", goerrors.CategoryConflict).
	WithTextCode(TextCodeGuestExpired).
	WithCode(goerrors.CodeConflict)

// ErrNoCredential is returned when a record exists but carries no hash.
var ErrNoCredential = goerrors.New("no credential set for account", goerrors.CategoryConflict).
	WithTextCode(TextCodeNoCredential).
	WithCode(goerrors.CodeConflict)

// ErrMismatchedHashAndPassword is the generic wrong-password error.
var ErrMismatchedHashAndPassword = goerrors.New("invalid member number or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeBadCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidPasswordFormat rejects passwords outside the all-digit policy.
var ErrInvalidPasswordFormat = goerrors.New("password must be all digits, 8 or more", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidMemberNumber rejects identifiers outside the YYNNNNNN format.
var ErrInvalidMemberNumber = goerrors.New("invalid member number", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidMemberNo).
	WithCode(goerrors.CodeBadRequest)

// ErrExpiryInvariant flags records violating the guest/expiry invariant.
var ErrExpiryInvariant = goerrors.New("expires_at must be set exactly for guest accounts", goerrors.CategoryValidation).
	WithTextCode(TextCodeExpiryInvariant).
	WithCode(goerrors.CodeBadRequest)

// ErrSequenceExhausted is surfaced after bounded allocation retries fail.
// It is retryable: the caller may repeat the whole operation.
var ErrSequenceExhausted = goerrors.New("member number allocation retries exhausted", goerrors.CategoryInternal).
	WithTextCode(TextCodeSequenceExhausted).
	WithCode(goerrors.CodeInternal)

// ErrSequenceConflict marks a lost optimistic write on the counter row.
// The allocator treats it as transient and retries.
var ErrSequenceConflict = goerrors.New("sequence counter write conflict", goerrors.CategoryOperation).
	WithTextCode(TextCodeStorageUnavailable).
	WithCode(goerrors.CodeConflict)

// ErrNoEmptyString guards helpers that require non-empty input.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// IsNotFound reports whether err represents a missing member record.
func IsNotFound(err error) bool {
	return hasTextCode(err, TextCodeMemberNotFound) || goerrors.IsNotFound(err)
}

// IsUnauthenticated reports a credential mismatch.
func IsUnauthenticated(err error) bool {
	return hasTextCode(err, TextCodeBadCredentials)
}

// IsPrecondition reports an expired guest or missing credential.
func IsPrecondition(err error) bool {
	return hasTextCode(err, TextCodeGuestExpired) || hasTextCode(err, TextCodeNoCredential)
}

// IsSuspended reports a suspended-account rejection.
func IsSuspended(err error) bool {
	return hasTextCode(err, TextCodeAccountSuspended)
}

// IsRetryable reports whether the caller may safely repeat the operation.
func IsRetryable(err error) bool {
	return hasTextCode(err, TextCodeSequenceExhausted) || hasTextCode(err, TextCodeStorageUnavailable)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}
