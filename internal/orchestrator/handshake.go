package orchestrator

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// controlTokenEnv names the environment variable the child runtime reads
// its handshake token from; Spawn sets it per-process, never on disk or in
// argv, so it can't leak into process listings or the service graph JSON
// written to stdin.
const controlTokenEnv = "HOSTD_CONTROL_TOKEN"

// handshakeTTL bounds how long a freshly spawned process has to complete
// the control-pipe handshake before its token expires.
const handshakeTTL = 10 * time.Second

// handshakeClaims is the short-lived token embedded in the control-pipe
// handshake so the host can authenticate that control messages on fd 3
// originate from the process it spawned, not some other local process that
// happened to inherit or guess the same descriptor (spec §4.1, §6).
type handshakeClaims struct {
	jwt.RegisteredClaims
}

// newHandshakeSecret generates a fresh per-spawn HMAC key. It exists only
// in this process and the signed token handed to the child; it is never
// reused across spawns.
func newHandshakeSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("orchestrator: generating handshake secret: %w", err)
	}
	return secret, nil
}

func signHandshakeToken(secret []byte) (string, error) {
	claims := handshakeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "hostd",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(handshakeTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// verifyHandshakeToken checks signature, issuer, and expiry; it rejects
// anything but HS256 so a malicious child can't downgrade to "none".
func verifyHandshakeToken(tokenString string, secret []byte) error {
	var claims handshakeClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer("hostd"))
	return err
}
