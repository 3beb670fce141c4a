package songbook

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Stable text codes surfaced to API clients.
const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeSessionDecodeError = "SESSION_DECODE_ERROR"
	TextCodeClaimsMappingError = "CLAIMS_MAPPING_ERROR"
	TextCodeDataParseError     = "DATA_PARSE_ERROR"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeTokenInvalid       = "TOKEN_INVALID"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeSessionStale       = "SESSION_STALE"
	TextCodeDeletionRequested  = "DELETION_ALREADY_REQUESTED"
	TextCodeDeletionScheduled  = "DELETION_ALREADY_SCHEDULED"
	TextCodeNoPendingDeletion  = "NO_PENDING_DELETION"
)

// ErrIdentityNotFound is returned when an account lookup comes back empty.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrMismatchedHashAndPassword is the generic credential failure. It covers
// both "no such user" and "wrong password" so login cannot be used to probe
// for account existence.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned while an account is in cooldown.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrUnableToFindSession is returned when a request carries no session token.
var ErrUnableToFindSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToDecodeSession is returned when a session token cannot be decoded.
var ErrUnableToDecodeSession = goerrors.New("unable to decode session", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeError).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToMapClaims is returned when token claims cannot be mapped.
var ErrUnableToMapClaims = goerrors.New("unable to map claims", goerrors.CategoryAuth).
	WithTextCode(TextCodeClaimsMappingError).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToParseData is a generic payload parse error.
var ErrUnableToParseData = goerrors.New("unable to parse data", goerrors.CategoryBadInput).
	WithTextCode(TextCodeDataParseError).
	WithCode(goerrors.CodeBadRequest)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenMalformed covers signature failures, garbage input, and purpose
// mismatches. Internal only; callers see CollapseTokenError.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is the internal expiry failure. Internal only; callers see
// CollapseTokenError.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid is the only token failure ever surfaced to callers. Expired,
// malformed, forged, and wrong-purpose tokens all collapse into it so the
// response cannot be used as an oracle for which case occurred.
var ErrTokenInvalid = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionStale is returned for session tokens issued before the account's
// password was last changed.
var ErrSessionStale = goerrors.New("session is no longer valid", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionStale).
	WithCode(goerrors.CodeUnauthorized)

// ErrDeletionAlreadyRequested is returned when an account already has a
// pending deletion request.
var ErrDeletionAlreadyRequested = goerrors.New("a deletion request is already pending", goerrors.CategoryConflict).
	WithTextCode(TextCodeDeletionRequested).
	WithCode(goerrors.CodeConflict)

// ErrDeletionAlreadyScheduled rejects a second confirmation; allowing it would
// push the deletion deadline forward.
var ErrDeletionAlreadyScheduled = goerrors.New("deletion has already been confirmed", goerrors.CategoryConflict).
	WithTextCode(TextCodeDeletionScheduled).
	WithCode(goerrors.CodeConflict)

// ErrNoPendingDeletion is returned when confirming an account that has no
// pending deletion request (cancelled or never requested).
var ErrNoPendingDeletion = goerrors.New("no pending deletion request", goerrors.CategoryConflict).
	WithTextCode(TextCodeNoPendingDeletion).
	WithCode(goerrors.CodeConflict)

// CollapseTokenError folds every token failure into ErrTokenInvalid. The
// expired/malformed distinction exists for logs only and must never cross a
// caller boundary.
func CollapseTokenError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return ErrTokenInvalid
}

// IsTokenExpiredError will check for expired tokens, including legacy
// string-form errors from the JWT library.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for malformed token errors.
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
