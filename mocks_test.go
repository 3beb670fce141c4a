package songbook_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	songbook "github.com/songbook/go-songbook"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    user_role TEXT NOT NULL DEFAULT 'user',
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    full_name TEXT,
    bio TEXT,
    avatar_url TEXT,
    is_musician BOOLEAN NOT NULL DEFAULT 0,
    password_hash TEXT,
    is_email_verified BOOLEAN NOT NULL DEFAULT 0,
    email_verified_at TIMESTAMP,
    login_attempts INTEGER NOT NULL DEFAULT 0,
    login_attempt_at TIMESTAMP,
    loggedin_at TIMESTAMP,
    password_changed_at TIMESTAMP,
    deletion_requested_at TIMESTAMP,
    deletion_scheduled_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

	sqliteCreateArtists = `CREATE TABLE artists (
    id TEXT NOT NULL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    bio TEXT,
    genre TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

	sqliteCreateSongs = `CREATE TABLE songs (
    id TEXT NOT NULL PRIMARY KEY,
    artist_id TEXT REFERENCES artists (id),
    title TEXT NOT NULL,
    lyrics TEXT,
    chords TEXT,
    song_key TEXT,
    capo INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

	sqliteCreateFavoriteSongs = `CREATE TABLE favorite_songs (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users (id),
    song_id TEXT NOT NULL REFERENCES songs (id),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (user_id, song_id)
);`
)

func setupRepoManager(t *testing.T) (songbook.RepositoryManager, *bun.DB) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	for _, stmt := range []string{
		sqliteCreateUsers,
		sqliteCreateArtists,
		sqliteCreateSongs,
		sqliteCreateFavoriteSongs,
	} {
		_, err = bunDB.Exec(stmt)
		require.NoError(t, err)
	}

	repo := songbook.NewRepositoryManager(bunDB)
	require.NoError(t, repo.Validate())

	return repo, bunDB
}

// capturingSink records activity events for assertions.
type capturingSink struct {
	mu     sync.Mutex
	events []songbook.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt songbook.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Events() []songbook.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]songbook.ActivityEvent, len(c.events))
	copy(out, c.events)
	return out
}

// capturingNotifier records outgoing notifications.
type capturingNotifier struct {
	mu                 sync.Mutex
	verifications      []string
	resets             []string
	confirmations      []string
	confirmationTokens []string
	scheduled          []string
	canceled           []string
}

func (n *capturingNotifier) SendEmailVerification(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications = append(n.verifications, email)
	return nil
}

func (n *capturingNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, email)
	return nil
}

func (n *capturingNotifier) SendDeletionConfirmation(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, email)
	n.confirmationTokens = append(n.confirmationTokens, token)
	return nil
}

func (n *capturingNotifier) SendDeletionScheduled(_ context.Context, email string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scheduled = append(n.scheduled, email)
	return nil
}

func (n *capturingNotifier) SendDeletionCanceled(_ context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.canceled = append(n.canceled, email)
	return nil
}

// testLogger discards output.
type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockIdentityProvider implements songbook.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (songbook.Identity, error) {
	args := m.Called(ctx, identifier, password)
	identity, _ := args.Get(0).(songbook.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (songbook.Identity, error) {
	args := m.Called(ctx, identifier)
	identity, _ := args.Get(0).(songbook.Identity)
	return identity, args.Error(1)
}

// MockUserTracker implements songbook.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string) (*songbook.User, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*songbook.User)
	return user, args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *songbook.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *songbook.User) error {
	return m.Called(ctx, user).Error(0)
}

// TestIdentity is a plain Identity value for table driven tests.
type TestIdentity struct {
	id       string
	username string
	email    string
	role     string
}

func (i TestIdentity) ID() string       { return i.id }
func (i TestIdentity) Username() string { return i.username }
func (i TestIdentity) Email() string    { return i.email }
func (i TestIdentity) Role() string     { return i.role }

// testConfig implements songbook.Config
type testConfig struct {
	signingKey      string
	tokenExpiration int
	issuer          string
	audience        []string
}

func newTestConfig() testConfig {
	return testConfig{
		signingKey:      "test-signing-key",
		tokenExpiration: 24,
		issuer:          "songbook-test",
		audience:        []string{"songbook"},
	}
}

func (c testConfig) GetSigningKey() string    { return c.signingKey }
func (c testConfig) GetSigningMethod() string { return "HS256" }
func (c testConfig) GetTokenExpiration() int  { return c.tokenExpiration }
func (c testConfig) GetIssuer() string        { return c.issuer }
func (c testConfig) GetAudience() []string    { return c.audience }
