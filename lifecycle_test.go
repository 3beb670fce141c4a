package songbook_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	songbook "github.com/songbook/go-songbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleFixture struct {
	repo     songbook.RepositoryManager
	tokens   *songbook.IdentityTokens
	life     *songbook.AccountLifecycle
	clock    *fakeClock
	sink     *capturingSink
	notifier *capturingNotifier
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()

	repo, _ := setupRepoManager(t)
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	codec := songbook.NewTokenCodec([]byte("test-signing-key"), songbook.WithCodecClock(clock))
	tokens := songbook.NewIdentityTokens(codec, testLogger{})
	sink := &capturingSink{}
	notifier := &capturingNotifier{}

	life := songbook.NewAccountLifecycle(repo, tokens,
		songbook.WithLifecycleClock(clock),
		songbook.WithLifecycleActivitySink(sink),
		songbook.WithLifecycleNotifier(notifier),
		songbook.WithLifecycleLogger(testLogger{}),
	)

	return &lifecycleFixture{
		repo:     repo,
		tokens:   tokens,
		life:     life,
		clock:    clock,
		sink:     sink,
		notifier: notifier,
	}
}

func (f *lifecycleFixture) createUser(t *testing.T, email string) *songbook.User {
	t.Helper()

	user, err := f.repo.Users().Register(context.Background(), &songbook.User{
		ID:       uuid.New(),
		Username: email[:len(email)-len("@example.com")],
		Email:    email,
	})
	require.NoError(t, err)
	return user
}

func (f *lifecycleFixture) reload(t *testing.T, id uuid.UUID) *songbook.User {
	t.Helper()

	user, err := f.repo.Users().GetByID(context.Background(), id.String())
	require.NoError(t, err)
	return user
}

func TestRequestDeletion(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	token, err := f.life.RequestDeletion(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, ok := f.tokens.VerifyAccountDeletion(token)
	require.True(t, ok)
	assert.Equal(t, user.ID, claims.UserID)

	stored := f.reload(t, user.ID)
	assert.Equal(t, songbook.DeletionStateRequested, stored.DeletionState())
	require.NotNil(t, stored.DeletionRequestedAt)
	assert.Nil(t, stored.DeletionScheduledAt)
	assert.Equal(t, claims.RequestedAt.Unix(), stored.DeletionRequestedAt.Unix())

	assert.Equal(t, []string{"alice@example.com"}, f.notifier.confirmations)

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, songbook.ActivityEventDeletionRequested, events[0].EventType)
}

func TestRequestDeletionTwiceConflicts(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	_, err := f.life.RequestDeletion(ctx, user.ID)
	require.NoError(t, err)

	_, err = f.life.RequestDeletion(ctx, user.ID)
	assert.ErrorIs(t, err, songbook.ErrDeletionAlreadyRequested)
}

func TestRequestDeletionUnknownUser(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.life.RequestDeletion(context.Background(), uuid.New())
	assert.ErrorIs(t, err, songbook.ErrIdentityNotFound)

	_, err = f.life.RequestDeletion(context.Background(), uuid.Nil)
	assert.Error(t, err)
}

func TestConfirmDeletion(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	token, err := f.life.RequestDeletion(ctx, user.ID)
	require.NoError(t, err)

	scheduledAt, err := f.life.ConfirmDeletion(ctx, token)
	require.NoError(t, err)

	wantAt := f.clock.Now().UTC().Add(songbook.DefaultDeletionGracePeriod)
	assert.True(t, scheduledAt.Equal(wantAt))

	stored := f.reload(t, user.ID)
	assert.Equal(t, songbook.DeletionStateScheduled, stored.DeletionState())
	require.NotNil(t, stored.DeletionScheduledAt)
	assert.Equal(t, wantAt.Unix(), stored.DeletionScheduledAt.Unix())

	assert.Equal(t, []string{"alice@example.com"}, f.notifier.scheduled)
}

func TestConfirmDeletionTwiceConflicts(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	token, err := f.life.RequestDeletion(ctx, user.ID)
	require.NoError(t, err)

	first, err := f.life.ConfirmDeletion(ctx, token)
	require.NoError(t, err)

	// the second confirmation must not push the deadline forward
	f.clock.Advance(time.Hour)
	_, err = f.life.ConfirmDeletion(ctx, token)
	assert.ErrorIs(t, err, songbook.ErrDeletionAlreadyScheduled)

	stored := f.reload(t, user.ID)
	require.NotNil(t, stored.DeletionScheduledAt)
	assert.Equal(t, first.Unix(), stored.DeletionScheduledAt.Unix())
}

func TestConfirmDeletionWithoutRequest(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	token, err := f.tokens.IssueAccountDeletion(user.ID, f.clock.Now())
	require.NoError(t, err)

	_, err = f.life.ConfirmDeletion(ctx, token)
	assert.ErrorIs(t, err, songbook.ErrNoPendingDeletion)
}

func TestConfirmDeletionStaleToken(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	stale, err := f.life.RequestDeletion(ctx, user.ID)
	require.NoError(t, err)

	cancelled, err := f.life.CancelDeletion(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	// a fresh request mints a different nonce
	f.clock.Advance(time.Minute)
	_, err = f.life.RequestDeletion(ctx, user.ID)
	require.NoError(t, err)

	_, err = f.life.ConfirmDeletion(ctx, stale)
	assert.ErrorIs(t, err, songbook.ErrTokenInvalid)

	stored := f.reload(t, user.ID)
	assert.Equal(t, songbook.DeletionStateRequested, stored.DeletionState())
}

func TestConfirmDeletionGarbageToken(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.life.ConfirmDeletion(context.Background(), "garbage")
	assert.ErrorIs(t, err, songbook.ErrTokenInvalid)
}

func TestCancelDeletionIsIdempotent(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	// cancelling an active account is a no-op
	cancelled, err := f.life.CancelDeletion(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	token, err := f.life.RequestDeletion(ctx, user.ID)
	require.NoError(t, err)
	_, err = f.life.ConfirmDeletion(ctx, token)
	require.NoError(t, err)

	cancelled, err = f.life.CancelDeletion(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	stored := f.reload(t, user.ID)
	assert.Equal(t, songbook.DeletionStateActive, stored.DeletionState())
	assert.Nil(t, stored.DeletionRequestedAt)
	assert.Nil(t, stored.DeletionScheduledAt)

	cancelled, err = f.life.CancelDeletion(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	assert.Equal(t, []string{"alice@example.com"}, f.notifier.canceled)
}

func TestLoginCancelsPendingDeletion(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	token, err := f.life.RequestDeletion(ctx, user.ID)
	require.NoError(t, err)
	_, err = f.life.ConfirmDeletion(ctx, token)
	require.NoError(t, err)

	cancelled, err := f.life.OnSuccessfulLogin(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	stored := f.reload(t, user.ID)
	assert.Equal(t, songbook.DeletionStateActive, stored.DeletionState())

	// a quiet no-op for accounts with nothing pending
	cancelled, err = f.life.OnSuccessfulLogin(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	// login does not send cancellation mail
	assert.Empty(t, f.notifier.canceled)
}

func TestChangePasswordStampsWatermark(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	err := f.life.ChangePassword(ctx, user.ID, "brand-new-password")
	require.NoError(t, err)

	stored := f.reload(t, user.ID)
	require.NotNil(t, stored.PasswordChangedAt)
	assert.Equal(t, f.clock.Now().UTC().Unix(), stored.PasswordChangedAt.Unix())
	assert.NoError(t, songbook.ComparePasswordAndHash("brand-new-password", stored.PasswordHash))

	err = f.life.ChangePassword(ctx, uuid.New(), "brand-new-password")
	assert.ErrorIs(t, err, songbook.ErrIdentityNotFound)
}

func TestResetPassword(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	token, err := f.tokens.IssuePasswordReset(user.Email)
	require.NoError(t, err)

	err = f.life.ResetPassword(ctx, token, "brand-new-password")
	require.NoError(t, err)

	stored := f.reload(t, user.ID)
	assert.NoError(t, songbook.ComparePasswordAndHash("brand-new-password", stored.PasswordHash))

	err = f.life.ResetPassword(ctx, "garbage", "brand-new-password")
	assert.ErrorIs(t, err, songbook.ErrTokenInvalid)
}

func TestVerifyEmail(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	token, err := f.tokens.IssueEmailVerification(user.Email)
	require.NoError(t, err)

	err = f.life.VerifyEmail(ctx, token)
	require.NoError(t, err)

	stored := f.reload(t, user.ID)
	assert.True(t, stored.EmailVerified)
	require.NotNil(t, stored.EmailVerifiedAt)

	// a token for an address we do not have
	other, err := f.tokens.IssueEmailVerification("ghost@example.com")
	require.NoError(t, err)
	err = f.life.VerifyEmail(ctx, other)
	assert.ErrorIs(t, err, songbook.ErrTokenInvalid)
}

func TestConfirmEmailChange(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "alice@example.com")

	// verify the old address first so we can observe the reset
	verify, err := f.tokens.IssueEmailVerification(user.Email)
	require.NoError(t, err)
	require.NoError(t, f.life.VerifyEmail(ctx, verify))

	token, err := f.life.RequestEmailChange(ctx, user.ID, "alice2@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice2@example.com"}, f.notifier.verifications)

	err = f.life.ConfirmEmailChange(ctx, token)
	require.NoError(t, err)

	stored := f.reload(t, user.ID)
	assert.Equal(t, "alice2@example.com", stored.Email)
	assert.False(t, stored.EmailVerified)
	assert.Nil(t, stored.EmailVerifiedAt)
}
