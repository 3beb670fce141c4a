package songbook

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultDeletionGracePeriod is how long a confirmed account survives before
// the sweeper removes it.
const DefaultDeletionGracePeriod = 24 * time.Hour

// AccountLifecycle owns the account state changes that travel through signed
// tokens: deferred deletion, password rotation, email verification and email
// change.
//
// Deletion is a two step flow. RequestDeletion stamps the request and hands
// back a confirmation token; ConfirmDeletion redeems the token and schedules
// the removal a grace period out. Until the sweeper fires, CancelDeletion (or
// simply logging in) puts the account back to active.
type AccountLifecycle struct {
	repo        RepositoryManager
	tokens      *IdentityTokens
	notifier    Notifier
	activity    ActivitySink
	logger      Logger
	clock       Clock
	gracePeriod time.Duration
}

func NewAccountLifecycle(repo RepositoryManager, tokens *IdentityTokens, opts ...func(*AccountLifecycle)) *AccountLifecycle {
	l := &AccountLifecycle{
		repo:        repo,
		tokens:      tokens,
		notifier:    noopNotifier{},
		activity:    noopActivitySink{},
		logger:      defLogger{},
		clock:       SystemClock(),
		gracePeriod: DefaultDeletionGracePeriod,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func WithLifecycleNotifier(n Notifier) func(*AccountLifecycle) {
	return func(l *AccountLifecycle) {
		l.notifier = normalizeNotifier(n)
	}
}

func WithLifecycleActivitySink(s ActivitySink) func(*AccountLifecycle) {
	return func(l *AccountLifecycle) {
		l.activity = normalizeActivitySink(s)
	}
}

func WithLifecycleLogger(logger Logger) func(*AccountLifecycle) {
	return func(l *AccountLifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithLifecycleClock(clock Clock) func(*AccountLifecycle) {
	return func(l *AccountLifecycle) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func WithDeletionGracePeriod(d time.Duration) func(*AccountLifecycle) {
	return func(l *AccountLifecycle) {
		if d > 0 {
			l.gracePeriod = d
		}
	}
}

// RequestDeletion stamps deletion_requested_at and returns the confirmation
// token the user has to redeem. The token carries the request instant, so a
// token minted against an earlier, since-cancelled request will not confirm
// a later one.
func (l *AccountLifecycle) RequestDeletion(ctx context.Context, userID uuid.UUID) (string, error) {
	select {
	case <-ctx.Done():
		return "", goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during deletion request",
		)
	default:
	}

	if err := validateUserID(userID); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user id")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// truncated to seconds so the token nonce round-trips through the db
	now := l.clock.Now().UTC().Truncate(time.Second)

	var account *User

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = l.repo.Users().GetAccountTx(ctx, tx, userID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not load account")
		}

		if err := ValidateDeletionTransition(account.DeletionState(), DeletionStateRequested); err != nil {
			switch account.DeletionState() {
			case DeletionStateScheduled:
				return ErrDeletionAlreadyScheduled
			case DeletionStateRequested:
				return ErrDeletionAlreadyRequested
			}
			return err
		}

		ok, err := l.repo.Users().RequestDeletionTx(ctx, tx, userID, now)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not stamp deletion request")
		}

		if !ok {
			// a concurrent request won the race
			return ErrDeletionAlreadyRequested
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return "", richErr
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to request account deletion")
	}

	token, err := l.tokens.IssueAccountDeletion(userID, now)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue deletion token")
	}

	if err := l.notifier.SendDeletionConfirmation(ctx, account.Email, token); err != nil {
		l.logger.Warn("deletion confirmation notify error: %v", err)
	}

	l.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventDeletionRequested,
		UserID:     userID.String(),
		FromState:  DeletionStateActive,
		ToState:    DeletionStateRequested,
		OccurredAt: now,
	})

	return token, nil
}

// ConfirmDeletion redeems a confirmation token and schedules the removal at
// now plus the grace period. It returns the scheduled instant.
//
// The token is only honored while the request it was minted for is still the
// pending one: the account has to carry a matching deletion_requested_at and
// must not already be scheduled.
func (l *AccountLifecycle) ConfirmDeletion(ctx context.Context, token string) (time.Time, error) {
	select {
	case <-ctx.Done():
		return time.Time{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during deletion confirmation",
		)
	default:
	}

	claims, ok := l.tokens.VerifyAccountDeletion(token)
	if !ok {
		return time.Time{}, ErrTokenInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := l.clock.Now().UTC()
	scheduledAt := now.Add(l.gracePeriod)

	var account *User

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = l.repo.Users().GetAccountTx(ctx, tx, claims.UserID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrTokenInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not load account")
		}

		if account.DeletionRequestedAt == nil {
			return ErrNoPendingDeletion
		}

		if account.DeletionRequestedAt.Unix() != claims.RequestedAt.Unix() {
			// token was minted for a request that has since been
			// cancelled and re-issued
			return ErrTokenInvalid
		}

		if account.DeletionScheduledAt != nil {
			return ErrDeletionAlreadyScheduled
		}

		ok, err := l.repo.Users().ScheduleDeletionTx(ctx, tx, claims.UserID, scheduledAt)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not schedule deletion")
		}

		if !ok {
			return ErrDeletionAlreadyScheduled
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return time.Time{}, richErr
		}
		return time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm account deletion")
	}

	if err := l.notifier.SendDeletionScheduled(ctx, account.Email, scheduledAt); err != nil {
		l.logger.Warn("deletion scheduled notify error: %v", err)
	}

	l.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventDeletionScheduled,
		UserID:     claims.UserID.String(),
		FromState:  DeletionStateRequested,
		ToState:    DeletionStateScheduled,
		Metadata:   map[string]any{"scheduled_at": scheduledAt.Format(time.RFC3339)},
		OccurredAt: now,
	})

	return scheduledAt, nil
}

// CancelDeletion clears any pending or scheduled deletion. It is idempotent:
// cancelling an active account is a no-op and reports false.
func (l *AccountLifecycle) CancelDeletion(ctx context.Context, userID uuid.UUID) (bool, error) {
	cleared, email, err := l.clearDeletion(ctx, userID)
	if err != nil {
		return false, err
	}

	if !cleared {
		return false, nil
	}

	if err := l.notifier.SendDeletionCanceled(ctx, email); err != nil {
		l.logger.Warn("deletion canceled notify error: %v", err)
	}

	l.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventDeletionCanceled,
		UserID:     userID.String(),
		ToState:    DeletionStateActive,
		OccurredAt: l.clock.Now(),
	})

	return true, nil
}

// OnSuccessfulLogin cancels any pending deletion as a side effect of the
// user coming back. Reports whether a deletion was actually cancelled.
func (l *AccountLifecycle) OnSuccessfulLogin(ctx context.Context, userID uuid.UUID) (bool, error) {
	cleared, _, err := l.clearDeletion(ctx, userID)
	if err != nil {
		return false, err
	}

	if !cleared {
		return false, nil
	}

	l.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventDeletionCanceled,
		UserID:     userID.String(),
		ToState:    DeletionStateActive,
		Metadata:   map[string]any{"reason": "login"},
		OccurredAt: l.clock.Now(),
	})

	return true, nil
}

func (l *AccountLifecycle) clearDeletion(ctx context.Context, userID uuid.UUID) (bool, string, error) {
	select {
	case <-ctx.Done():
		return false, "", goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during deletion cancel",
		)
	default:
	}

	if err := validateUserID(userID); err != nil {
		return false, "", goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user id")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := l.clock.Now().UTC()

	var cleared bool
	var email string

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := l.repo.Users().GetAccountTx(ctx, tx, userID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not load account")
		}

		email = account.Email

		cleared, err = l.repo.Users().CancelDeletionTx(ctx, tx, userID, now)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not clear deletion fields")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return false, "", richErr
		}
		return false, "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to cancel account deletion")
	}

	return cleared, email, nil
}

// ChangePassword rotates the credential and stamps password_changed_at,
// which invalidates sessions minted before the change.
func (l *AccountLifecycle) ChangePassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
	}

	if err := validateUserID(userID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user id")
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := l.clock.Now().UTC()

	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := l.repo.Users().ChangePasswordTx(ctx, tx, userID, passwordHash, now); err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not update password")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to change password")
	}

	l.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventPasswordChanged,
		UserID:     userID.String(),
		OccurredAt: now,
	})

	return nil
}

// ResetPassword redeems a password reset token and rotates the credential.
func (l *AccountLifecycle) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, ok := l.tokens.VerifyPasswordReset(token)
	if !ok {
		return ErrTokenInvalid
	}

	account, err := l.repo.Users().GetAccountByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrTokenInvalid
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not load account")
	}

	return l.ChangePassword(ctx, account.ID, newPassword)
}

// VerifyEmail redeems a verification token and marks the address verified.
func (l *AccountLifecycle) VerifyEmail(ctx context.Context, token string) error {
	email, ok := l.tokens.VerifyEmailVerification(token)
	if !ok {
		return ErrTokenInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := l.clock.Now().UTC()

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := l.repo.Users().VerifyEmailTx(ctx, tx, email, now)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not mark email verified")
		}

		if !ok {
			return ErrTokenInvalid
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify email")
	}

	l.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventEmailVerified,
		UserID:     email,
		OccurredAt: now,
	})

	return nil
}

// RequestEmailChange issues a token binding the user to the new address. The
// swap only happens when ConfirmEmailChange redeems it.
func (l *AccountLifecycle) RequestEmailChange(ctx context.Context, userID uuid.UUID, newEmail string) (string, error) {
	token, err := l.tokens.IssueEmailChange(userID, newEmail)
	if err != nil {
		return "", err
	}

	if err := l.notifier.SendEmailVerification(ctx, newEmail, token); err != nil {
		l.logger.Warn("email change notify error: %v", err)
	}

	return token, nil
}

// ConfirmEmailChange redeems an email change token and swaps the address.
// The new address starts unverified.
func (l *AccountLifecycle) ConfirmEmailChange(ctx context.Context, token string) error {
	claims, ok := l.tokens.VerifyEmailChange(token)
	if !ok {
		return ErrTokenInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := l.clock.Now().UTC()

	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := l.repo.Users().ChangeEmailTx(ctx, tx, claims.UserID, claims.NewEmail, now)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not change email")
		}

		if !ok {
			return ErrTokenInvalid
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to change email")
	}

	l.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventEmailChanged,
		UserID:     claims.UserID.String(),
		Metadata:   map[string]any{"new_email": claims.NewEmail},
		OccurredAt: now,
	})

	return nil
}

func (l *AccountLifecycle) recordActivity(ctx context.Context, event ActivityEvent) {
	if err := normalizeActivitySink(l.activity).Record(ctx, event); err != nil {
		l.logger.Warn("activity sink error: %v", err)
	}
}
