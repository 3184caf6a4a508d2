package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthSigValidate(t *testing.T) {
	sig := &AuthSig{
		Sig:           "aa",
		DerivedVia:    DerivedViaEthWallet,
		SignedMessage: "msg",
		Address:       "0xabc",
	}
	assert.NoError(t, sig.Validate())

	sig.Sig = ""
	err := sig.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sig")
}

func TestParseAuthSig(t *testing.T) {
	parsed, err := ParseAuthSig(`{"sig":"aa","derivedVia":"web3.eth.personal.sign","signedMessage":"m","address":"0x1"}`)
	require.NoError(t, err)
	assert.Equal(t, "0x1", parsed.Address)

	_, err = ParseAuthSig(`{"sig":""}`)
	assert.Error(t, err)

	_, err = ParseAuthSig(`not json`)
	assert.Error(t, err)
}

func TestIsSessionKeyPair(t *testing.T) {
	valid := &SessionKeyPair{
		PublicKey: "da7716e2f3b9b0151b277abb5324a68331fdb263da40c3396d0ef08a4725c230",
		SecretKey: "8e9c2b6f013b5b30a830a51904dd0e2e3a684a966a95c0084b972ea19b4f1b0ada7716e2f3b9b0151b277abb5324a68331fdb263da40c3396d0ef08a4725c230",
	}
	assert.True(t, IsSessionKeyPair(valid))
	assert.Equal(t, SessionKeyUriPrefix+valid.PublicKey, valid.SessionKeyUri())

	assert.False(t, IsSessionKeyPair(nil))
	assert.False(t, IsSessionKeyPair(&SessionKeyPair{PublicKey: "zz", SecretKey: valid.SecretKey}))
	assert.False(t, IsSessionKeyPair(&SessionKeyPair{PublicKey: valid.PublicKey, SecretKey: "abcd"}))
}
