// Package fingerprint derives the stable 32-hex worker fingerprint used to
// name durable-object SQLite files on disk (spec §3). The derivation must
// exactly match the embedded runtime's own, so the algorithm is fixed:
//
//	K  = SHA-256(uniqueKey)
//	P1 = HMAC-SHA256(K, HMAC-SHA256(K, name)[0:16])[0:16]
//	P2 = HMAC-SHA256(K, name)[0:16]
//	fingerprint = hex(P1) || hex(P2)
package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Derive computes the 32-hex fingerprint for (uniqueKey, name).
func Derive(uniqueKey, name string) string {
	k := sha256.Sum256([]byte(uniqueKey))

	inner := hmacSum(k[:], []byte(name))
	inner16 := inner[:16]

	outer := hmacSum(k[:], inner16)
	outer16 := outer[:16]

	return hex.EncodeToString(outer16) + hex.EncodeToString(inner16)
}

func hmacSum(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
