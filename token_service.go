package songbook

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Token lifetimes. Reset links are deliberately short; the email-bound flows
// get a day.
const (
	PasswordResetTokenTTL     = 30 * time.Minute
	EmailVerificationTokenTTL = 24 * time.Hour
	EmailChangeTokenTTL       = 24 * time.Hour
	AccountDeletionTokenTTL   = 24 * time.Hour
)

const (
	claimNewEmail    = "new_email"
	claimRequestedAt = "req"
)

// EmailChangeClaims is the verified payload of an email-change token.
type EmailChangeClaims struct {
	UserID   uuid.UUID
	NewEmail string
}

// DeletionClaims is the verified payload of an account-deletion token. The
// RequestedAt nonce binds the token to one specific deletion request; see
// AccountLifecycle.ConfirmDeletion.
type DeletionClaims struct {
	UserID      uuid.UUID
	RequestedAt time.Time
}

// IdentityTokens issues and verifies the four purpose-typed tokens on top of
// TokenCodec. Verification is deliberately silent: a bad signature, an
// expired token, and a wrong-purpose token are all reported as a plain false
// so callers cannot distinguish them.
type IdentityTokens struct {
	codec  *TokenCodec
	logger Logger
}

// NewIdentityTokens creates the token service.
func NewIdentityTokens(codec *TokenCodec, logger Logger) *IdentityTokens {
	if logger == nil {
		logger = defLogger{}
	}
	return &IdentityTokens{
		codec:  codec,
		logger: logger,
	}
}

// IssuePasswordReset mints a 30-minute reset token for the given email.
func (s *IdentityTokens) IssuePasswordReset(email string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", err
	}

	return s.codec.Encode(jwt.MapClaims{
		"sub":        email,
		claimPurpose: string(PurposePasswordReset),
	}, PasswordResetTokenTTL)
}

// VerifyPasswordReset returns the email the token was issued for.
func (s *IdentityTokens) VerifyPasswordReset(token string) (string, bool) {
	claims, ok := s.decode(token, PurposePasswordReset)
	if !ok {
		return "", false
	}
	return stringClaim(claims, "sub")
}

// IssueEmailVerification mints a 24-hour verification token for the email.
func (s *IdentityTokens) IssueEmailVerification(email string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", err
	}

	return s.codec.Encode(jwt.MapClaims{
		"sub":        email,
		claimPurpose: string(PurposeEmailVerification),
	}, EmailVerificationTokenTTL)
}

// VerifyEmailVerification returns the email the token was issued for.
func (s *IdentityTokens) VerifyEmailVerification(token string) (string, bool) {
	claims, ok := s.decode(token, PurposeEmailVerification)
	if !ok {
		return "", false
	}
	return stringClaim(claims, "sub")
}

// IssueEmailChange mints a token authorizing userID to take over newEmail.
func (s *IdentityTokens) IssueEmailChange(userID uuid.UUID, newEmail string) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}
	if err := validateEmail(newEmail); err != nil {
		return "", err
	}

	return s.codec.Encode(jwt.MapClaims{
		"sub":         userID.String(),
		claimNewEmail: newEmail,
		claimPurpose:  string(PurposeEmailChange),
	}, EmailChangeTokenTTL)
}

// VerifyEmailChange returns the user and target email from the token.
func (s *IdentityTokens) VerifyEmailChange(token string) (EmailChangeClaims, bool) {
	claims, ok := s.decode(token, PurposeEmailChange)
	if !ok {
		return EmailChangeClaims{}, false
	}

	userID, ok := uuidClaim(claims, "sub")
	if !ok {
		return EmailChangeClaims{}, false
	}

	newEmail, ok := stringClaim(claims, claimNewEmail)
	if !ok {
		return EmailChangeClaims{}, false
	}

	return EmailChangeClaims{UserID: userID, NewEmail: newEmail}, true
}

// IssueAccountDeletion mints a confirmation token bound to the deletion
// request made at requestedAt.
func (s *IdentityTokens) IssueAccountDeletion(userID uuid.UUID, requestedAt time.Time) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}
	if requestedAt.IsZero() {
		return "", goerrors.New("deletion request time is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	return s.codec.Encode(jwt.MapClaims{
		"sub":            userID.String(),
		claimRequestedAt: requestedAt.Unix(),
		claimPurpose:     string(PurposeAccountDeletion),
	}, AccountDeletionTokenTTL)
}

// VerifyAccountDeletion returns the user and request nonce from the token.
func (s *IdentityTokens) VerifyAccountDeletion(token string) (DeletionClaims, bool) {
	claims, ok := s.decode(token, PurposeAccountDeletion)
	if !ok {
		return DeletionClaims{}, false
	}

	userID, ok := uuidClaim(claims, "sub")
	if !ok {
		return DeletionClaims{}, false
	}

	requestedAt, ok := unixClaim(claims, claimRequestedAt)
	if !ok {
		return DeletionClaims{}, false
	}

	return DeletionClaims{UserID: userID, RequestedAt: requestedAt}, true
}

func (s *IdentityTokens) decode(token string, want TokenPurpose) (jwt.MapClaims, bool) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		s.logger.Debug("token rejected for %s: %v", want, err)
		return nil, false
	}

	got, ok := stringClaim(claims, claimPurpose)
	if !ok || !TokenPurpose(got).IsValid() || TokenPurpose(got) != want {
		s.logger.Debug("token purpose mismatch, want %s", want)
		return nil, false
	}

	return claims, true
}

func stringClaim(claims jwt.MapClaims, key string) (string, bool) {
	raw, ok := claims[key]
	if !ok {
		return "", false
	}
	val, ok := raw.(string)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func uuidClaim(claims jwt.MapClaims, key string) (uuid.UUID, bool) {
	raw, ok := stringClaim(claims, key)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func unixClaim(claims jwt.MapClaims, key string) (time.Time, bool) {
	raw, ok := claims[key]
	if !ok {
		return time.Time{}, false
	}
	// JSON round-trips numbers as float64.
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	default:
		return time.Time{}, false
	}
}

func validateEmail(email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid email address").
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}

func validateUserID(userID uuid.UUID) error {
	if userID == uuid.Nil {
		return goerrors.New("invalid user id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}
