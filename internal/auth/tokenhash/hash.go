// Package tokenhash derives revocation lookup keys from raw bearer credentials.
//
// Raw credentials are never stored. Revocation entries are keyed by the
// SHA-256 digest of the credential, hex encoded. Credentials are signed
// tokens with a random jti, so an unsalted digest is not open to dictionary
// attacks.
package tokenhash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a hash in hex characters.
const Size = sha256.Size * 2

// Hash returns the lookup key for a raw credential.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
