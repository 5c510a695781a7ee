package orchestrator

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyHandshakeTokenRoundTrips(t *testing.T) {
	secret, err := newHandshakeSecret()
	require.NoError(t, err)

	token, err := signHandshakeToken(secret)
	require.NoError(t, err)

	require.NoError(t, verifyHandshakeToken(token, secret))
}

func TestVerifyHandshakeTokenRejectsWrongSecret(t *testing.T) {
	secret, err := newHandshakeSecret()
	require.NoError(t, err)
	other, err := newHandshakeSecret()
	require.NoError(t, err)

	token, err := signHandshakeToken(secret)
	require.NoError(t, err)

	assert.Error(t, verifyHandshakeToken(token, other))
}

func TestVerifyHandshakeTokenRejectsExpiredToken(t *testing.T) {
	secret, err := newHandshakeSecret()
	require.NoError(t, err)

	claims := handshakeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "hostd",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Second)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	assert.Error(t, verifyHandshakeToken(token, secret))
}

func TestVerifyHandshakeTokenRejectsWrongIssuer(t *testing.T) {
	secret, err := newHandshakeSecret()
	require.NoError(t, err)

	claims := handshakeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(handshakeTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	assert.Error(t, verifyHandshakeToken(token, secret))
}
