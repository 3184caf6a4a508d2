// Package walletSig obtains and caches the wallet AuthSig that anchors a
// session. Acquisition walks an ordered chain of providers; the cached
// signature is re-validated against the re-sign predicate before reuse.
package walletSig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lit-protocol/lit-go-sdk/pkg/auth"
	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
	"github.com/lit-protocol/lit-go-sdk/pkg/resources"
	"github.com/lit-protocol/lit-go-sdk/pkg/siwe"
	"github.com/lit-protocol/lit-go-sdk/pkg/storage"
	"go.uber.org/zap"
)

// IAuthSigProvider is one source of wallet signatures. A provider either
// yields an AuthSig, declares itself not applicable, or fails.
type IAuthSigProvider interface {
	// Name identifies the provider in logs.
	Name() string
	// Acquire returns (sig, true, nil) on success or (nil, false, nil) when
	// the provider is not applicable for these params.
	Acquire(ctx context.Context, params *auth.AuthCallbackParams) (*auth.AuthSig, bool, error)
}

type callbackProvider struct {
	name     string
	callback auth.AuthNeededCallback
}

func (p *callbackProvider) Name() string { return p.name }

func (p *callbackProvider) Acquire(ctx context.Context, params *auth.AuthCallbackParams) (*auth.AuthSig, bool, error) {
	if p.callback == nil {
		return nil, false, nil
	}
	sig, err := p.callback(ctx, params)
	if err != nil {
		return nil, true, err
	}
	return sig, true, nil
}

// NewCallbackProvider wraps a wallet callback as a provider. A nil callback
// yields a provider that is never applicable, which keeps the provider chain
// construction unconditional at call sites.
func NewCallbackProvider(name string, callback auth.AuthNeededCallback) IAuthSigProvider {
	return &callbackProvider{name: name, callback: callback}
}

// Acquirer resolves wallet signatures from the persisted cache and an ordered
// provider chain.
type Acquirer struct {
	logger    *zap.Logger
	storage   storage.IPersistenceAdapter
	providers []IAuthSigProvider
}

// NewAcquirer creates an Acquirer. Providers are consulted in order; the first
// applicable one wins.
func NewAcquirer(adapter storage.IPersistenceAdapter, providers []IAuthSigProvider, logger *zap.Logger) *Acquirer {
	return &Acquirer{
		logger:    logger,
		storage:   adapter,
		providers: providers,
	}
}

// GetWalletSig returns the cached AuthSig when one is present and parsable,
// otherwise acquires a fresh one through the provider chain. Callers apply the
// re-sign predicate afterwards and use AcquireFresh when the cached signature
// turned out stale.
func (a *Acquirer) GetWalletSig(ctx context.Context, params *auth.AuthCallbackParams) (*auth.AuthSig, error) {
	raw, err := a.storage.Get(storage.WalletSignatureKey)
	if err == nil {
		sig, parseErr := auth.ParseAuthSig(raw)
		if parseErr == nil {
			return sig, nil
		}
		a.logger.Sugar().Warnw("Cached wallet signature is unparsable, re-acquiring",
			zap.Error(parseErr),
		)
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		a.logger.Sugar().Warnw("Failed to read wallet signature slot, re-acquiring",
			zap.Error(err),
		)
	}

	return a.AcquireFresh(ctx, params)
}

// AcquireFresh bypasses the cache and walks the provider chain. The obtained
// signature is written through to the cache; a write failure is non-fatal.
func (a *Acquirer) AcquireFresh(ctx context.Context, params *auth.AuthCallbackParams) (*auth.AuthSig, error) {
	for _, provider := range a.providers {
		sig, applicable, err := provider.Acquire(ctx, params)
		if !applicable {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("auth sig provider %s failed: %w", provider.Name(), err)
		}
		if err := sig.Validate(); err != nil {
			return nil, fmt.Errorf("auth sig provider %s returned invalid sig: %w", provider.Name(), err)
		}
		a.cache(sig)
		return sig, nil
	}
	return nil, literrors.New(literrors.KindParamsMissing,
		"no applicable auth sig provider; supply an authNeededCallback or a default auth callback")
}

func (a *Acquirer) cache(sig *auth.AuthSig) {
	encoded, err := jsonMarshal(sig)
	if err != nil {
		a.logger.Sugar().Warnw("Failed to encode wallet signature for caching", zap.Error(err))
		return
	}
	if err := a.storage.Set(storage.WalletSignatureKey, encoded); err != nil {
		a.logger.Sugar().Warnw("Failed to cache wallet signature", zap.Error(err))
	}
}

// NeedToResign reports whether the cached AuthSig is stale for the current
// session. It is stale when any of the following holds:
//  1. the SIWE message fails signature verification,
//  2. the message uri does not equal the current session key uri,
//  3. the message carries no resources,
//  4. the decoded capability object does not grant every requested
//     (resource, ability) pair.
func NeedToResign(authSig *auth.AuthSig, sessionKeyUri string, requests []resources.ResourceAbilityRequest) bool {
	if err := siwe.VerifySignature(authSig.SignedMessage, authSig.Sig, authSig.Address); err != nil {
		return true
	}
	message, err := siwe.Parse(authSig.SignedMessage)
	if err != nil {
		return true
	}
	if message.URI != sessionKeyUri {
		return true
	}
	if len(message.Resources) == 0 {
		return true
	}
	capability, err := resources.DecodeSiweResource(message.Resources[0])
	if err != nil {
		return true
	}
	for _, request := range requests {
		if !capability.VerifyCapabilitiesForResource(request.Resource, request.Ability) {
			return true
		}
	}
	return false
}

func jsonMarshal(sig *auth.AuthSig) (string, error) {
	encoded, err := json.Marshal(sig)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
