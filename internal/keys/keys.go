// Package keys issues the access key pair attached to every stored object: a
// public retrieval key and a private deletion key, both random hex strings.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// PublicKeyLen is the length of a public key in hex characters (16 bytes).
	PublicKeyLen = 32
	// PrivateKeyLen is the length of a private key in hex characters (32 bytes).
	PrivateKeyLen = 64
)

// Pair is the credential pair issued for one stored object. The public key
// grants read access; the private key is the capability token for deletion and
// is never shown again after issuance.
type Pair struct {
	PublicKey  string
	PrivateKey string
}

// NewPair generates a fresh key pair from the system's cryptographically
// secure random source. Collisions are statistically negligible and are not
// checked. An error here means the random source itself is unavailable.
func NewPair() (Pair, error) {
	pub := make([]byte, PublicKeyLen/2)
	if _, err := rand.Read(pub); err != nil {
		return Pair{}, fmt.Errorf("read random bytes for public key: %w", err)
	}

	priv := make([]byte, PrivateKeyLen/2)
	if _, err := rand.Read(priv); err != nil {
		return Pair{}, fmt.Errorf("read random bytes for private key: %w", err)
	}

	return Pair{
		PublicKey:  hex.EncodeToString(pub),
		PrivateKey: hex.EncodeToString(priv),
	}, nil
}

// ValidPublicKey reports whether s has the exact shape of a generated public
// key: 32 lowercase hex characters.
func ValidPublicKey(s string) bool {
	return len(s) == PublicKeyLen && isLowerHex(s)
}

// ValidPrivateKey reports whether s has the exact shape of a generated private
// key: 64 lowercase hex characters.
func ValidPrivateKey(s string) bool {
	return len(s) == PrivateKeyLen && isLowerHex(s)
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
