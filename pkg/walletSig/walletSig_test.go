package walletSig

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lit-protocol/lit-go-sdk/pkg/auth"
	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
	"github.com/lit-protocol/lit-go-sdk/pkg/resources"
	"github.com/lit-protocol/lit-go-sdk/pkg/siwe"
	"github.com/lit-protocol/lit-go-sdk/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSessionUri = "lit:session:da7716e2f3b9b0151b277abb5324a68331fdb263da40c3396d0ef08a4725c230"

func signedAuthSig(t *testing.T, key *ecdsa.PrivateKey, uri string, capability *resources.CapabilityObject) *auth.AuthSig {
	t.Helper()
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	message := &siwe.Message{
		Domain:    "localhost",
		Address:   address,
		Statement: capability.Statement(),
		URI:       uri,
		Version:   siwe.DefaultVersion,
		ChainID:   1,
		Nonce:     "0xblockhash",
		IssuedAt:  "2024-03-01T10:00:00Z",
	}
	if encoded, err := capability.EncodeAsSiweResource(); err == nil && len(capability.ResourceKeys()) > 0 {
		message.Resources = []string{encoded}
	}

	text := message.String()
	sig, err := crypto.Sign(siwe.PersonalHash(text), key)
	require.NoError(t, err)

	return &auth.AuthSig{
		Sig:           hexutil.Encode(sig),
		DerivedVia:    auth.DerivedViaEthWallet,
		SignedMessage: text,
		Address:       address,
	}
}

func fullCapability() *resources.CapabilityObject {
	capability := resources.NewCapabilityObject()
	capability.AddAllCapabilitiesForResource(resources.NewPKPResource("*"))
	capability.AddAllCapabilitiesForResource(resources.NewActionResource("*"))
	return capability
}

func TestNeedToResign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	requests := []resources.ResourceAbilityRequest{
		{Resource: resources.NewPKPResource("*"), Ability: resources.AbilityPKPSigning},
	}

	t.Run("fresh signature passes", func(t *testing.T) {
		sig := signedAuthSig(t, key, testSessionUri, fullCapability())
		assert.False(t, NeedToResign(sig, testSessionUri, requests))
	})

	t.Run("broken signature", func(t *testing.T) {
		sig := signedAuthSig(t, key, testSessionUri, fullCapability())
		sig.SignedMessage += " "
		assert.True(t, NeedToResign(sig, testSessionUri, requests))
	})

	t.Run("uri mismatch", func(t *testing.T) {
		sig := signedAuthSig(t, key, "lit:session:other", fullCapability())
		assert.True(t, NeedToResign(sig, testSessionUri, requests))
	})

	t.Run("no resources", func(t *testing.T) {
		sig := signedAuthSig(t, key, testSessionUri, resources.NewCapabilityObject())
		assert.True(t, NeedToResign(sig, testSessionUri, requests))
	})

	t.Run("missing capability", func(t *testing.T) {
		capability := resources.NewCapabilityObject()
		capability.AddAllCapabilitiesForResource(resources.NewActionResource("*"))
		sig := signedAuthSig(t, key, testSessionUri, capability)
		assert.True(t, NeedToResign(sig, testSessionUri, requests))
	})
}

func TestGetWalletSigPrefersCache(t *testing.T) {
	adapter := storage.NewInMemoryAdapter()
	require.NoError(t, adapter.Set(storage.WalletSignatureKey,
		`{"sig":"aa","derivedVia":"web3.eth.personal.sign","signedMessage":"m","address":"0x1"}`))

	called := false
	provider := NewCallbackProvider("test", func(ctx context.Context, params *auth.AuthCallbackParams) (*auth.AuthSig, error) {
		called = true
		return nil, errors.New("should not be called")
	})
	acquirer := NewAcquirer(adapter, []IAuthSigProvider{provider}, zap.NewNop())

	sig, err := acquirer.GetWalletSig(context.Background(), &auth.AuthCallbackParams{})
	require.NoError(t, err)
	assert.Equal(t, "0x1", sig.Address)
	assert.False(t, called)
}

func TestGetWalletSigFallsThroughProviderChain(t *testing.T) {
	adapter := storage.NewInMemoryAdapter()
	notApplicable := NewCallbackProvider("absent", nil)
	provider := NewCallbackProvider("wallet", func(ctx context.Context, params *auth.AuthCallbackParams) (*auth.AuthSig, error) {
		return &auth.AuthSig{
			Sig:           "bb",
			DerivedVia:    auth.DerivedViaEthWallet,
			SignedMessage: "m",
			Address:       "0x2",
		}, nil
	})
	acquirer := NewAcquirer(adapter, []IAuthSigProvider{notApplicable, provider}, zap.NewNop())

	sig, err := acquirer.GetWalletSig(context.Background(), &auth.AuthCallbackParams{})
	require.NoError(t, err)
	assert.Equal(t, "0x2", sig.Address)

	// Write-through caching.
	cached, err := adapter.Get(storage.WalletSignatureKey)
	require.NoError(t, err)
	assert.Contains(t, cached, `"address":"0x2"`)
}

func TestAcquireFreshWithoutProvidersFails(t *testing.T) {
	acquirer := NewAcquirer(storage.NewInMemoryAdapter(), []IAuthSigProvider{NewCallbackProvider("absent", nil)}, zap.NewNop())
	_, err := acquirer.AcquireFresh(context.Background(), &auth.AuthCallbackParams{})
	assert.True(t, errors.Is(err, literrors.ErrParamsMissing))
}

func TestGetWalletSigRecoversFromGarbageCache(t *testing.T) {
	adapter := storage.NewInMemoryAdapter()
	require.NoError(t, adapter.Set(storage.WalletSignatureKey, "not json"))
	provider := NewCallbackProvider("wallet", func(ctx context.Context, params *auth.AuthCallbackParams) (*auth.AuthSig, error) {
		return &auth.AuthSig{Sig: "cc", DerivedVia: auth.DerivedViaEthWallet, SignedMessage: "m", Address: "0x3"}, nil
	})
	acquirer := NewAcquirer(adapter, []IAuthSigProvider{provider}, zap.NewNop())

	sig, err := acquirer.GetWalletSig(context.Background(), &auth.AuthCallbackParams{})
	require.NoError(t, err)
	assert.Equal(t, "0x3", sig.Address)
}
