package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken returns the hex sha256 of a bearer secret. Stores only ever see
// this value, never the token or code itself.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
