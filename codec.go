package songbook

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenCodec signs and parses expiring claim sets. It is a pure function over
// the injected secret and clock; all purpose-specific semantics live in
// IdentityTokens.
type TokenCodec struct {
	secret []byte
	clock  Clock
	logger Logger
}

type TokenCodecOption func(*TokenCodec)

// WithCodecClock injects a custom clock (useful for tests).
func WithCodecClock(clock Clock) TokenCodecOption {
	return func(c *TokenCodec) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithCodecLogger overrides the logger used by the codec.
func WithCodecLogger(logger Logger) TokenCodecOption {
	return func(c *TokenCodec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewTokenCodec creates a codec bound to a signing secret.
func NewTokenCodec(secret []byte, opts ...TokenCodecOption) *TokenCodec {
	c := &TokenCodec{
		secret: secret,
		clock:  SystemClock(),
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Encode adds exp/iat to a copy of claims and signs the set with HS256.
func (c *TokenCodec) Encode(claims jwt.MapClaims, ttl time.Duration) (string, error) {
	if len(claims) == 0 {
		return "", goerrors.New("claims must not be empty", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	if ttl <= 0 {
		return "", goerrors.New("token TTL must be positive", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"ttl": ttl.String()})
	}

	now := c.clock.Now()
	toEncode := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		toEncode[k] = v
	}
	toEncode["iat"] = jwt.NewNumericDate(now)
	toEncode["exp"] = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, toEncode)

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Decode verifies signature and expiry, returning the claim set. Failures are
// ErrTokenExpired or ErrTokenMalformed; both collapse to ErrTokenInvalid at
// any caller-facing boundary (see CollapseTokenError).
func (c *TokenCodec) Decode(tokenString string) (jwt.MapClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			c.logger.Error("TokenCodec encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.clock.Now), jwt.WithExpirationRequired())

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		c.logger.Error("TokenCodec could not map decoded claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
