package songbook

import (
	"context"
	"reflect"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type Auther struct {
	provider        IdentityProvider
	store           UserTracker
	lifecycle       *AccountLifecycle
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        []string
	logger          Logger
	activitySink    ActivitySink
	clock           Clock
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, opts Config) *Auther {
	return &Auther{
		provider:        provider,
		signingKey:      []byte(opts.GetSigningKey()),
		tokenExpiration: opts.GetTokenExpiration(),
		audience:        opts.GetAudience(),
		issuer:          opts.GetIssuer(),
		logger:          defLogger{},
		activitySink:    noopActivitySink{},
		clock:           SystemClock(),
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithUserStore enables the password change watermark check on sessions.
func (s *Auther) WithUserStore(store UserTracker) *Auther {
	s.store = store
	return s
}

// WithLifecycle wires the deletion lifecycle in, so a successful login
// cancels any pending account deletion.
func (s *Auther) WithLifecycle(lifecycle *AccountLifecycle) *Auther {
	s.lifecycle = lifecycle
	return s
}

func (s *Auther) WithClock(clock Clock) *Auther {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (s *Auther) Login(ctx context.Context, identifier, password string) (string, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, "", map[string]any{
			"identifier": identifier,
			"error":      ErrIdentityNotFound.Error(),
		})
		return "", ErrIdentityNotFound
	}

	// coming back is consent to keep the account
	if s.lifecycle != nil {
		if userID, err := uuid.Parse(identity.ID()); err == nil {
			if cancelled, err := s.lifecycle.OnSuccessfulLogin(ctx, userID); err != nil {
				s.logger.Warn("Login could not cancel pending deletion: %v", err)
			} else if cancelled {
				s.logger.Info("Login cancelled pending deletion for user %s", identity.ID())
			}
		}
	}

	token, err := s.generateJWT(identity)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return "", err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, identity.ID(), map[string]any{
		"identifier": identifier,
	})

	return token, nil
}

// IdentityFromSession resolves the session back to an identity. Sessions
// issued before the account's last password change are rejected as stale.
func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	if err := s.ensureSessionFresh(ctx, session); err != nil {
		return nil, err
	}

	identity, err := s.provider.FindIdentityByIdentifier(ctx, session.GetUserID())
	if err != nil {
		s.logger.Error("IdentityFromSession find identity by identifier: %v", err)
		return nil, err
	}

	return identity, nil
}

func (s *Auther) ensureSessionFresh(ctx context.Context, session Session) error {
	if s.store == nil {
		return nil
	}

	issuedAt := session.GetIssuedAt()
	if issuedAt == nil {
		return ErrSessionStale
	}

	user, err := s.store.GetByIdentifier(ctx, session.GetUserID())
	if err != nil {
		return err
	}

	if user.PasswordChangedAt != nil && issuedAt.Before(*user.PasswordChangedAt) {
		return ErrSessionStale
	}

	return nil
}

func (s Auther) SessionFromToken(raw string) (Session, error) {
	claims, err := s.validateToken(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %v", err)
		return nil, CollapseTokenError(err)
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims: %v", err)
		return nil, err
	}

	return session, nil
}

func (s *Auther) generateJWT(identity Identity) (string, error) {
	claims := s.newJWTClaims(identity)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

func (s *Auther) validateToken(raw string) (*JWTClaims, error) {
	claims := &JWTClaims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.clock.Now), jwt.WithExpirationRequired())

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	if !token.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

func (s *Auther) newJWTClaims(identity Identity) *JWTClaims {
	now := s.clock.Now()

	var aud jwt.ClaimStrings
	if len(s.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(s.audience))
		copy(aud, s.audience)
	}

	return &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.tokenExpiration) * time.Hour)),
			ID:        uuid.New().String(),
		},
		UID:      identity.ID(),
		UserRole: identity.Role(),
	}
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.clock.Now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := normalizeActivitySink(s.activitySink).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

var _ Authenticator = (*Auther)(nil)
