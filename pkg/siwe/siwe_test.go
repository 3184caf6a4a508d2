package siwe

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() *Message {
	return &Message{
		Domain:         "localhost",
		Address:        "0x9D85ca56217D2bb651b00f15e694EB7E713637D4",
		Statement:      "I further authorize the stated URI to perform the following actions on my behalf: 'pkp-signing' for 'lit-pkp://*'.",
		URI:            "lit:session:da7716e2f3b9b0151b277abb5324a68331fdb263da40c3396d0ef08a4725c230",
		Version:        "1",
		ChainID:        1,
		Nonce:          "0xabc123",
		IssuedAt:       "2024-03-01T10:00:00Z",
		ExpirationTime: "2024-03-02T10:00:00Z",
		Resources:      []string{"urn:recap:eyJhdHQiOnt9LCJwcmYiOltdfQ"},
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	m := sampleMessage()
	parsed, err := Parse(m.String())
	require.NoError(t, err)
	assert.Equal(t, m, parsed)
}

func TestParseWithoutStatementOrResources(t *testing.T) {
	m := sampleMessage()
	m.Statement = ""
	m.Resources = nil
	m.ExpirationTime = ""
	parsed, err := Parse(m.String())
	require.NoError(t, err)
	assert.Equal(t, m, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not a siwe message")
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	m := sampleMessage()
	m.Address = address
	text := m.String()

	sig, err := crypto.Sign(PersonalHash(text), key)
	require.NoError(t, err)

	require.NoError(t, VerifySignature(text, hexutil.Encode(sig), address))

	// 27/28 recovery id form is accepted too.
	shifted := make([]byte, 65)
	copy(shifted, sig)
	shifted[64] += 27
	require.NoError(t, VerifySignature(text, hexutil.Encode(shifted), address))

	// Wrong signer fails.
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherSig, err := crypto.Sign(PersonalHash(text), otherKey)
	require.NoError(t, err)
	assert.Error(t, VerifySignature(text, hexutil.Encode(otherSig), address))

	// Tampered message fails.
	assert.Error(t, VerifySignature(text+" ", hexutil.Encode(sig), address))
}
