// Package auth holds the authorisation data model shared across the SDK: the
// detached AuthSig payload, the session key pair, auth methods and the wallet
// callback contracts.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lit-protocol/lit-go-sdk/pkg/resources"
)

// SessionKeyUriPrefix is prepended to the session public key hex to form the
// SIWE uri the wallet delegates to.
const SessionKeyUriPrefix = "lit:session:"

// DerivedVia tags identifying how an AuthSig was produced.
const (
	DerivedViaEthWallet      = "web3.eth.personal.sign"
	DerivedViaSessionSig     = "litSessionSignViaNacl"
	DerivedViaSignSessionKey = "lit.bls"
	AlgoEd25519              = "ed25519"
)

// AuthSig is a detached signature payload. The invariant is that Sig verifies
// SignedMessage under Address using the scheme implied by DerivedVia.
type AuthSig struct {
	Sig           string `json:"sig"`
	DerivedVia    string `json:"derivedVia"`
	SignedMessage string `json:"signedMessage"`
	Address       string `json:"address"`
	Algo          string `json:"algo,omitempty"`
}

// Validate checks that every mandatory field is populated.
func (a *AuthSig) Validate() error {
	if a == nil {
		return fmt.Errorf("auth sig is nil")
	}
	var missing []string
	if a.Sig == "" {
		missing = append(missing, "sig")
	}
	if a.DerivedVia == "" {
		missing = append(missing, "derivedVia")
	}
	if a.SignedMessage == "" {
		missing = append(missing, "signedMessage")
	}
	if a.Address == "" {
		missing = append(missing, "address")
	}
	if len(missing) > 0 {
		return fmt.Errorf("auth sig missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ParseAuthSig decodes an AuthSig from its JSON persistence form.
func ParseAuthSig(raw string) (*AuthSig, error) {
	var sig AuthSig
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		return nil, fmt.Errorf("failed to parse auth sig: %w", err)
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return &sig, nil
}

// SessionKeyPair is an Ed25519 key pair stored as lowercase hex.
type SessionKeyPair struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}

// SessionKeyUri returns the SIWE uri bound to this session key.
func (kp *SessionKeyPair) SessionKeyUri() string {
	return SessionKeyUriPrefix + kp.PublicKey
}

// IsSessionKeyPair is a structural check on a decoded value: both halves must
// be present and hex-decodable to the Ed25519 sizes (32 and 64 bytes).
func IsSessionKeyPair(kp *SessionKeyPair) bool {
	if kp == nil {
		return false
	}
	return isHexOfLength(kp.PublicKey, 64) && isHexOfLength(kp.SecretKey, 128)
}

func isHexOfLength(s string, chars int) bool {
	if len(s) != chars {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// AuthMethod is a proof from an external authentication provider (OAuth,
// passkey relay, etc.) used when the network itself signs the session key.
type AuthMethod struct {
	AuthMethodType int    `json:"authMethodType"`
	AccessToken    string `json:"accessToken"`
}

// Auth method type tags the network understands.
const (
	AuthMethodTypeEthWallet = 1
	AuthMethodTypeWebAuthn  = 3
)

// AuthCallbackParams is the full context handed to a wallet callback when a
// fresh SIWE signature is needed.
type AuthCallbackParams struct {
	// Chain is the chain name the session will operate on
	Chain string
	// Statement is the capability statement to embed in the SIWE message
	Statement string
	// Resources carries the encoded capability object (one URI)
	Resources []string
	// Expiration is the ISO-8601 expiry of the delegation
	Expiration string
	// URI is the session key uri the wallet delegates to
	URI string
	// Nonce is the latest chain blockhash
	Nonce string
	// Domain overrides the SIWE domain when set
	Domain string
	// SwitchChain asks the wallet to switch to Chain before signing
	SwitchChain bool
	// ResourceAbilityRequests are the capabilities the session will exercise
	ResourceAbilityRequests []resources.ResourceAbilityRequest
	// LitActionCode / LitActionIpfsId bind the delegation to an action
	LitActionCode   string
	LitActionIpfsId string
	// JsParams are the action parameters, when action-bound
	JsParams map[string]any
}

// AuthNeededCallback obtains an AuthSig from an external wallet. The returned
// signature must sign a SIWE message whose uri equals params.URI and whose
// first resource equals the encoded capability object.
type AuthNeededCallback func(ctx context.Context, params *AuthCallbackParams) (*AuthSig, error)
