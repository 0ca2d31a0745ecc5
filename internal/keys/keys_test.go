package keys_test

import (
	"regexp"
	"testing"

	"blobvault/internal/keys"

	"github.com/stretchr/testify/require"
)

func TestNewPairFormat(t *testing.T) {
	t.Parallel()

	pair, err := keys.NewPair()
	require.NoError(t, err, "NewPair error")

	require.Regexp(t, regexp.MustCompile(`^[a-f0-9]{32}$`), pair.PublicKey, "public key format")
	require.Regexp(t, regexp.MustCompile(`^[a-f0-9]{64}$`), pair.PrivateKey, "private key format")
}

func TestNewPairUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pair, err := keys.NewPair()
		require.NoError(t, err, "NewPair error")
		require.False(t, seen[pair.PublicKey], "public key repeated")
		require.False(t, seen[pair.PrivateKey], "private key repeated")
		seen[pair.PublicKey] = true
		seen[pair.PrivateKey] = true
	}
}

func TestValidPublicKey(t *testing.T) {
	t.Parallel()

	pair, err := keys.NewPair()
	require.NoError(t, err, "NewPair error")

	require.True(t, keys.ValidPublicKey(pair.PublicKey), "generated public key should validate")
	require.True(t, keys.ValidPrivateKey(pair.PrivateKey), "generated private key should validate")

	require.False(t, keys.ValidPublicKey(""), "empty key should not validate")
	require.False(t, keys.ValidPublicKey(pair.PrivateKey), "private key is not a public key")
	require.False(t, keys.ValidPrivateKey(pair.PublicKey), "public key is not a private key")
	require.False(t, keys.ValidPublicKey("ZZ"+pair.PublicKey[2:]), "non-hex characters should not validate")
	require.False(t, keys.ValidPublicKey("AB"+pair.PublicKey[2:]), "uppercase hex should not validate")
}
