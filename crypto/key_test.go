package crypto

import (
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "alice")
	k, err := GenerateKeyFile(path)
	require.NoError(t, err)

	_, err = GenerateKeyFile(path)
	require.Error(t, err)

	loaded, err := LoadKeyFile(path)
	require.NoError(t, err)
	require.Equal(t, k.Address(), loaded.Address())

	msg := []byte("hello")
	sig, err := loaded.Sign(msg)
	require.NoError(t, err)
	pub, err := ethcrypto.SigToPub(ethcrypto.Keccak256(msg), sig)
	require.NoError(t, err)
	require.Equal(t, k.Address(), ethcrypto.PubkeyToAddress(*pub))
}
