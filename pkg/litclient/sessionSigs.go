package litclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lit-protocol/lit-go-sdk/pkg/auth"
	"github.com/lit-protocol/lit-go-sdk/pkg/combiner"
	"github.com/lit-protocol/lit-go-sdk/pkg/dispatcher"
	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
	"github.com/lit-protocol/lit-go-sdk/pkg/resources"
	"github.com/lit-protocol/lit-go-sdk/pkg/sessionKeys"
	"github.com/lit-protocol/lit-go-sdk/pkg/siwe"
	"github.com/lit-protocol/lit-go-sdk/pkg/util"
	"github.com/lit-protocol/lit-go-sdk/pkg/walletSig"
	"go.uber.org/zap"
)

// Default lifetimes of the two signature layers. The wallet delegation is
// long-lived, the per-node session signatures are minted fresh and short.
const (
	defaultWalletSigLifetime  = 24 * time.Hour
	defaultSessionSigLifetime = 5 * time.Minute
)

// SessionSigsMap maps a node URL to the session signature minted for it.
type SessionSigsMap map[string]auth.AuthSig

// SessionSigningTemplate is the per-node payload the session key signs. Its
// canonical JSON serialisation is the signed message of the session sig.
type SessionSigningTemplate struct {
	SessionKey              string                             `json:"sessionKey"`
	ResourceAbilityRequests []resources.ResourceAbilityRequest `json:"resourceAbilityRequests"`
	Capabilities            []auth.AuthSig                     `json:"capabilities"`
	IssuedAt                string                             `json:"issuedAt"`
	Expiration              string                             `json:"expiration"`
	NodeAddress             string                             `json:"nodeAddress"`
}

// GetSessionSigsParams configures a session signature mint.
type GetSessionSigsParams struct {
	// Chain is the chain the wallet delegation names
	Chain string
	// ResourceAbilityRequests are the capabilities the session needs
	ResourceAbilityRequests []resources.ResourceAbilityRequest
	// Expiration overrides the per-sig expiry (ISO-8601)
	Expiration string
	// Capability overrides the generated capability object
	Capability *resources.CapabilityObject
	// CapabilityAuthSigs are prepended to the capability chain
	CapabilityAuthSigs []auth.AuthSig
	// CapacityDelegationAuthSig, when set, rides the capability chain
	CapacityDelegationAuthSig *auth.AuthSig
	// AuthNeededCallback obtains the wallet signature
	AuthNeededCallback auth.AuthNeededCallback
	// Domain overrides the SIWE domain
	Domain string
	// SwitchChain asks the wallet to switch chains before signing
	SwitchChain bool
	// LitActionCode / LitActionIpfsId / JsParams bind the delegation to an action
	LitActionCode   string
	LitActionIpfsId string
	JsParams        map[string]any
}

// GetSessionSigs builds one session signature per connected node.
//
// The session key pair is created or reused, the wallet signature anchoring
// the capability object is obtained (or re-obtained when stale), and the
// session secret key signs one SessionSigningTemplate per node.
func (c *LitNodeClient) GetSessionSigs(ctx context.Context, params *GetSessionSigsParams) (SessionSigsMap, error) {
	conn, err := c.requireReady()
	if err != nil {
		return nil, err
	}
	if len(params.ResourceAbilityRequests) == 0 {
		return nil, literrors.New(literrors.KindParamsMissing, "resourceAbilityRequests must not be empty")
	}

	sessionKey, err := c.sessions.GetSessionKey()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain session key: %w", err)
	}
	sessionKeyUri := sessionKey.SessionKeyUri()

	capability := params.Capability
	if capability == nil {
		capability = resources.NewCapabilityObject()
		for _, request := range params.ResourceAbilityRequests {
			capability.AddAllCapabilitiesForResource(request.Resource)
		}
	}
	encodedCapability, err := capability.EncodeAsSiweResource()
	if err != nil {
		return nil, fmt.Errorf("failed to encode capability object: %w", err)
	}

	blockhash, err := c.latestBlockhash(ctx, conn)
	if err != nil {
		return nil, err
	}

	callbackParams := &auth.AuthCallbackParams{
		Chain:                   params.Chain,
		Statement:               capability.Statement(),
		Resources:               []string{encodedCapability},
		Expiration:              time.Now().UTC().Add(defaultWalletSigLifetime).Format(time.RFC3339),
		URI:                     sessionKeyUri,
		Nonce:                   blockhash,
		Domain:                  params.Domain,
		SwitchChain:             params.SwitchChain,
		ResourceAbilityRequests: params.ResourceAbilityRequests,
		LitActionCode:           params.LitActionCode,
		LitActionIpfsId:         params.LitActionIpfsId,
		JsParams:                params.JsParams,
	}

	acquirer := walletSig.NewAcquirer(c.storage, []walletSig.IAuthSigProvider{
		walletSig.NewCallbackProvider("authNeededCallback", params.AuthNeededCallback),
		walletSig.NewCallbackProvider("defaultAuthCallback", c.config.DefaultAuthCallback),
	}, c.logger)

	authSig, err := acquirer.GetWalletSig(ctx, callbackParams)
	if err != nil {
		return nil, err
	}
	if c.needToResign(authSig, sessionKeyUri, params.ResourceAbilityRequests) {
		c.logger.Sugar().Infow("Cached wallet signature is stale, re-signing",
			zap.String("sessionKeyUri", sessionKeyUri),
		)
		authSig, err = acquirer.AcquireFresh(ctx, callbackParams)
		if err != nil {
			return nil, err
		}
	}
	if err := authSig.Validate(); err != nil {
		return nil, literrors.Wrap(err, literrors.KindWalletSignatureNotFound, "wallet signature is unusable")
	}

	capabilities := make([]auth.AuthSig, 0, len(params.CapabilityAuthSigs)+2)
	capabilities = append(capabilities, params.CapabilityAuthSigs...)
	if params.CapacityDelegationAuthSig != nil {
		capabilities = append(capabilities, *params.CapacityDelegationAuthSig)
	}
	capabilities = append(capabilities, *authSig)

	expiration := params.Expiration
	if expiration == "" {
		expiration = time.Now().UTC().Add(defaultSessionSigLifetime).Format(time.RFC3339)
	}
	issuedAt := time.Now().UTC().Format(time.RFC3339)

	sigs := make(SessionSigsMap, len(conn.ConnectedNodes))
	for _, url := range conn.ConnectedNodes {
		template := SessionSigningTemplate{
			SessionKey:              sessionKey.PublicKey,
			ResourceAbilityRequests: params.ResourceAbilityRequests,
			Capabilities:            capabilities,
			IssuedAt:                issuedAt,
			Expiration:              expiration,
			NodeAddress:             url,
		}
		message, err := util.CanonicalJSON(template)
		if err != nil {
			return nil, fmt.Errorf("failed to serialise session template: %w", err)
		}
		signature, err := sessionKeys.SignDetached(sessionKey, message)
		if err != nil {
			return nil, fmt.Errorf("failed to sign session template: %w", err)
		}
		sigs[url] = auth.AuthSig{
			Sig:           signature,
			DerivedVia:    auth.DerivedViaSessionSig,
			SignedMessage: string(message),
			Address:       sessionKey.PublicKey,
			Algo:          auth.AlgoEd25519,
		}
	}
	return sigs, nil
}

// needToResign applies the staleness predicate. Wallet-derived signatures get
// the full check including ECDSA verification; network-issued signatures
// (derivedVia lit.bls) skip the wallet signature check and are re-validated on
// uri, resources and capability containment only.
func (c *LitNodeClient) needToResign(authSig *auth.AuthSig, sessionKeyUri string, requests []resources.ResourceAbilityRequest) bool {
	if authSig.DerivedVia == auth.DerivedViaSignSessionKey {
		message, err := siwe.Parse(authSig.SignedMessage)
		if err != nil || message.URI != sessionKeyUri || len(message.Resources) == 0 {
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
	return walletSig.NeedToResign(authSig, sessionKeyUri, requests)
}

// GetPkpSessionSigsParams configures a PKP-rooted session mint: the network
// itself, not an external wallet, signs the session key delegation after
// checking the supplied auth methods.
type GetPkpSessionSigsParams struct {
	GetSessionSigsParams

	// PkpPublicKey is the PKP the session is rooted at (uncompressed hex)
	PkpPublicKey string
	// AuthMethods prove control of the PKP
	AuthMethods []auth.AuthMethod
}

// GetPkpSessionSigs wraps GetSessionSigs with a callback that forwards the
// SIWE message to the committee's sign_session_key endpoint and BLS-combines
// the returned shares into the anchoring AuthSig.
func (c *LitNodeClient) GetPkpSessionSigs(ctx context.Context, params *GetPkpSessionSigsParams) (SessionSigsMap, error) {
	if params.PkpPublicKey == "" {
		return nil, literrors.New(literrors.KindParamsMissing, "pkpPublicKey is required")
	}
	if len(params.AuthMethods) == 0 {
		return nil, literrors.New(literrors.KindParamsMissing, "at least one auth method is required")
	}

	inner := params.GetSessionSigsParams
	inner.AuthNeededCallback = c.signSessionKeyCallback(params.PkpPublicKey, params.AuthMethods)
	return c.GetSessionSigs(ctx, &inner)
}

// GetLitActionSessionSigsParams configures an action-gated session mint: the
// nodes run the referenced action and only issue the delegation when it
// approves the request.
type GetLitActionSessionSigsParams struct {
	GetPkpSessionSigsParams
}

// GetLitActionSessionSigs is GetPkpSessionSigs restricted to action-bound
// delegations: exactly one of LitActionCode and LitActionIpfsId plus the
// action's JsParams are required.
func (c *LitNodeClient) GetLitActionSessionSigs(ctx context.Context, params *GetLitActionSessionSigsParams) (SessionSigsMap, error) {
	hasCode := params.LitActionCode != ""
	hasIpfs := params.LitActionIpfsId != ""
	if hasCode == hasIpfs {
		return nil, literrors.New(literrors.KindInvalidParamType,
			"exactly one of litActionCode and litActionIpfsId is required")
	}
	if len(params.JsParams) == 0 {
		return nil, literrors.New(literrors.KindParamsMissing, "jsParams are required for action-bound sessions")
	}
	return c.GetPkpSessionSigs(ctx, &params.GetPkpSessionSigsParams)
}

// signSessionKeyCallback builds the AuthNeededCallback used by PKP-rooted
// sessions: it asks every node to BLS-sign the session SIWE message under the
// PKP's authority.
func (c *LitNodeClient) signSessionKeyCallback(pkpPublicKey string, authMethods []auth.AuthMethod) auth.AuthNeededCallback {
	return func(ctx context.Context, params *auth.AuthCallbackParams) (*auth.AuthSig, error) {
		conn, err := c.requireReady()
		if err != nil {
			return nil, err
		}

		pkpAddress, err := pkpEthAddress(pkpPublicKey)
		if err != nil {
			return nil, err
		}

		message := &siwe.Message{
			Domain:         siweDomain(params.Domain),
			Address:        pkpAddress,
			Statement:      params.Statement,
			URI:            params.URI,
			Version:        siwe.DefaultVersion,
			ChainID:        1,
			Nonce:          params.Nonce,
			IssuedAt:       time.Now().UTC().Format(time.RFC3339),
			ExpirationTime: params.Expiration,
			Resources:      params.Resources,
		}
		siweText := message.String()

		requestId := dispatcher.NewRequestId()
		body := map[string]any{
			"sessionKey":      params.URI,
			"authMethods":     authMethods,
			"pkpPublicKey":    pkpPublicKey,
			"siweMessage":     siweText,
			"curveType":       combiner.CurveTypeBLS,
			"epoch":           conn.CurrentEpochNumber,
			"jsParams":        params.JsParams,
			"litActionCode":   params.LitActionCode,
			"litActionIpfsId": params.LitActionIpfsId,
		}

		result, err := c.dispatcher.FanOutAndCollect(ctx, conn.ConnectedNodes, conn.MinNodeCount, requestId,
			func(url string) (string, any, error) {
				return url + endpointSignSessionKey, body, nil
			})
		if err != nil {
			return nil, err
		}

		shares, err := decodeNodeShares(result)
		if err != nil {
			return nil, err
		}
		combined, err := c.combiner.CombineBlsShares(shares, conn.MinNodeCount)
		if err != nil {
			return nil, literrors.Wrap(err, literrors.KindNodeRequestFailed,
				"failed to combine session key signature shares").WithRequestID(result.RequestId)
		}

		signedMessage := siweText
		withSiwe := util.Filter(shares, func(s combiner.NodeShare) bool { return s.SiweMessage != "" })
		if len(withSiwe) > 0 {
			winner, _ := util.MostCommon(withSiwe, func(s combiner.NodeShare) string { return s.SiweMessage })
			signedMessage = winner.SiweMessage
		}

		return &auth.AuthSig{
			Sig:           combined.Signature,
			DerivedVia:    auth.DerivedViaSignSessionKey,
			SignedMessage: signedMessage,
			Address:       pkpAddress,
		}, nil
	}
}

// pkpEthAddress derives the Ethereum address of a PKP public key.
func pkpEthAddress(pubKeyHex string) (string, error) {
	raw, err := hex.DecodeString(stripHexPrefix(pubKeyHex))
	if err != nil {
		return "", literrors.New(literrors.KindInvalidParamType, "pkp public key is not hex")
	}
	pub, err := crypto.UnmarshalPubkey(raw)
	if err != nil {
		return "", literrors.New(literrors.KindInvalidParamType, "pkp public key is not an uncompressed secp256k1 point")
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func siweDomain(domain string) string {
	if domain == "" {
		return "localhost"
	}
	return domain
}

// decodeNodeShares parses every successful response of a batch as a NodeShare.
func decodeNodeShares(result *dispatcher.BatchResult) ([]combiner.NodeShare, error) {
	shares := make([]combiner.NodeShare, 0, len(result.Responses))
	for _, resp := range result.Responses {
		var share combiner.NodeShare
		if err := json.Unmarshal(resp.Raw, &share); err != nil {
			return nil, literrors.Wrap(err, literrors.KindUnknownError,
				"node %s returned an unparsable share", resp.Url).WithRequestID(result.RequestId)
		}
		shares = append(shares, share)
	}
	return shares, nil
}

func stripHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
