package songbook_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	songbook "github.com/songbook/go-songbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCodecRoundTrip(t *testing.T) {
	codec := songbook.NewTokenCodec([]byte("test-signing-key"))

	token, err := codec.Encode(jwt.MapClaims{
		"sub":  "user@example.com",
		"type": "password_reset",
	}, time.Minute*30)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims["sub"])
	assert.Equal(t, "password_reset", claims["type"])
	assert.Contains(t, claims, "iat")
	assert.Contains(t, claims, "exp")
}

func TestTokenCodecEncodeRejectsBadInput(t *testing.T) {
	codec := songbook.NewTokenCodec([]byte("test-signing-key"))

	_, err := codec.Encode(jwt.MapClaims{}, time.Minute)
	assert.Error(t, err)

	_, err = codec.Encode(nil, time.Minute)
	assert.Error(t, err)

	_, err = codec.Encode(jwt.MapClaims{"sub": "x"}, 0)
	assert.Error(t, err)

	_, err = codec.Encode(jwt.MapClaims{"sub": "x"}, -time.Minute)
	assert.Error(t, err)
}

func TestTokenCodecRejectsWrongKey(t *testing.T) {
	codec := songbook.NewTokenCodec([]byte("test-signing-key"))
	other := songbook.NewTokenCodec([]byte("some-other-key"))

	token, err := codec.Encode(jwt.MapClaims{"sub": "x"}, time.Minute)
	require.NoError(t, err)

	_, err = other.Decode(token)
	require.Error(t, err)
	assert.True(t, songbook.IsMalformedError(err))
}

func TestTokenCodecRejectsMalformedToken(t *testing.T) {
	codec := songbook.NewTokenCodec([]byte("test-signing-key"))

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := codec.Decode(raw)
		require.Error(t, err, "token %q", raw)
		assert.True(t, songbook.IsMalformedError(err))
	}
}

func TestTokenCodecExpiry(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)

	codec := songbook.NewTokenCodec(
		[]byte("test-signing-key"),
		songbook.WithCodecClock(clock),
	)

	token, err := codec.Encode(jwt.MapClaims{"sub": "x"}, time.Minute*30)
	require.NoError(t, err)

	// still valid just inside the window
	clock.Advance(time.Minute*30 - time.Second)
	_, err = codec.Decode(token)
	require.NoError(t, err)

	// expired once the window passes
	clock.Advance(2 * time.Second)
	_, err = codec.Decode(token)
	require.Error(t, err)
	assert.True(t, songbook.IsTokenExpiredError(err))
	assert.False(t, songbook.IsMalformedError(err))
}

func TestTokenCodecRejectsUnsignedToken(t *testing.T) {
	codec := songbook.NewTokenCodec([]byte("test-signing-key"))

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "x",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Decode(raw)
	require.Error(t, err)
	assert.True(t, songbook.IsMalformedError(err))
}

func TestCollapseTokenError(t *testing.T) {
	// expired and malformed collapse to the same caller-facing error
	collapsedExpired := songbook.CollapseTokenError(songbook.ErrTokenExpired)
	collapsedMalformed := songbook.CollapseTokenError(songbook.ErrTokenMalformed)

	assert.Equal(t, collapsedExpired.TextCode, collapsedMalformed.TextCode)
	assert.Equal(t, collapsedExpired.Message, collapsedMalformed.Message)

	assert.Nil(t, songbook.CollapseTokenError(nil))
}
