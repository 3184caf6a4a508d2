package thresholdCrypto

import (
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRootKeys(t *testing.T, n int) []string {
	t.Helper()
	keys := make([]string, n)
	for i := range keys {
		priv, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		keys[i] = hex.EncodeToString(priv.PubKey().SerializeCompressed())
	}
	return keys
}

func TestComputeHDPubKeyDeterministic(t *testing.T) {
	roots := testRootKeys(t, 3)
	a, err := ComputeHDPubKey("deadbeef", roots)
	require.NoError(t, err)
	b, err := ComputeHDPubKey("deadbeef", roots)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := ComputeHDPubKey("deadbeee", roots)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestComputeHDPubKeyIsValidPoint(t *testing.T) {
	roots := testRootKeys(t, 2)
	derived, err := ComputeHDPubKey("0xc0ffee", roots)
	require.NoError(t, err)

	raw, err := hex.DecodeString(derived)
	require.NoError(t, err)
	_, err = secp256k1.ParsePubKey(raw)
	assert.NoError(t, err)
}

func TestComputeHDPubKeyRejectsBadInput(t *testing.T) {
	_, err := ComputeHDPubKey("aa", nil)
	assert.Error(t, err)
	_, err = ComputeHDPubKey("not hex", testRootKeys(t, 1))
	assert.Error(t, err)
	_, err = ComputeHDPubKey("aa", []string{"zz"})
	assert.Error(t, err)
}
