package litclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lit-protocol/lit-go-sdk/pkg/auth"
	"github.com/lit-protocol/lit-go-sdk/pkg/dispatcher"
	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
	"github.com/lit-protocol/lit-go-sdk/pkg/thresholdCrypto"
	"github.com/lit-protocol/lit-go-sdk/pkg/util"
)

// ClaimRequest is the payload handed to the mint callback after the committee
// attested a derived key.
type ClaimRequest struct {
	DerivedKeyId   string           `json:"derivedKeyId"`
	AuthMethodType int              `json:"authMethodType"`
	Signatures     []ClaimSignature `json:"signatures"`
	PubKey         string           `json:"pubkey"`
	Network        string           `json:"network"`
}

// MintCallback submits an attested claim to the on-chain relay and returns
// the transaction id.
type MintCallback func(ctx context.Context, request *ClaimRequest) (string, error)

// ClaimKeyIdParams configures a key claim.
type ClaimKeyIdParams struct {
	// AuthMethod is the authentication proof rooting the derived key
	AuthMethod auth.AuthMethod
	// MintCallback overrides the default relay submission
	MintCallback MintCallback
}

// ClaimKeyIdResult is the outcome of a claim.
type ClaimKeyIdResult struct {
	// DerivedKeyId identifies the claimed key
	DerivedKeyId string `json:"derivedKeyId"`
	// PubKey is the HD-derived public key of the claim
	PubKey string `json:"pubkey"`
	// Signatures are the per-node attestations
	Signatures []ClaimSignature `json:"signatures"`
	// MintTx is the relay transaction id
	MintTx string `json:"mintTx"`
	// RequestId identifies the node batch
	RequestId string `json:"requestId"`
}

// claimNodeResponse is one node's answer to /web/pkp/claim.
type claimNodeResponse struct {
	DerivedKeyId string `json:"derivedKeyId"`
	Signature    string `json:"signature"`
}

// ClaimKeyId asks the committee to jointly attest a key derived from an auth
// method proof, combines the attestations into an on-chain claim and submits
// it through the mint callback.
func (c *LitNodeClient) ClaimKeyId(ctx context.Context, params *ClaimKeyIdParams) (*ClaimKeyIdResult, error) {
	conn, err := c.requireReady()
	if err != nil {
		return nil, err
	}
	if params.AuthMethod.AccessToken == "" {
		return nil, literrors.New(literrors.KindParamsMissing, "auth method access token is required")
	}
	if params.AuthMethod.AuthMethodType == auth.AuthMethodTypeWebAuthn {
		return nil, literrors.New(literrors.KindInvalidArgumentException,
			"claiming is not supported for WebAuthn auth methods")
	}

	requestId := dispatcher.NewRequestId()
	result, err := c.dispatcher.FanOutAndCollect(ctx, conn.ConnectedNodes, conn.MinNodeCount, requestId,
		func(url string) (string, any, error) {
			return url + endpointPkpClaim, map[string]any{
				"authMethod": params.AuthMethod,
				"epoch":      conn.CurrentEpochNumber,
			}, nil
		})
	if err != nil {
		return nil, err
	}

	responses := make([]claimNodeResponse, 0, len(result.Responses))
	for _, resp := range result.Responses {
		var decoded claimNodeResponse
		if err := json.Unmarshal(resp.Raw, &decoded); err != nil {
			return nil, literrors.Wrap(err, literrors.KindUnknownError,
				"node %s returned an unparsable claim", resp.Url).WithRequestID(result.RequestId)
		}
		responses = append(responses, decoded)
	}

	winner, count := util.MostCommon(responses, func(r claimNodeResponse) string { return r.DerivedKeyId })
	if count < conn.MinNodeCount {
		return nil, literrors.New(literrors.KindNodeRequestFailed,
			"%d nodes agree on the derived key id, need %d", count, conn.MinNodeCount).WithRequestID(result.RequestId)
	}

	signatures := make([]ClaimSignature, 0, len(responses))
	for _, resp := range responses {
		if resp.DerivedKeyId != winner.DerivedKeyId {
			continue
		}
		sig, err := splitHexSignature(resp.Signature)
		if err != nil {
			return nil, literrors.Wrap(err, literrors.KindUnknownError,
				"malformed claim signature").WithRequestID(result.RequestId)
		}
		signatures = append(signatures, sig)
	}

	pubKey, err := thresholdCrypto.ComputeHDPubKey(winner.DerivedKeyId, conn.HDRootPubkeys)
	if err != nil {
		return nil, literrors.Wrap(err, literrors.KindUnknownError,
			"failed to derive claimed public key").WithRequestID(result.RequestId)
	}

	mint := params.MintCallback
	if mint == nil {
		mint = c.defaultMintCallback()
	}
	mintTx, err := mint(ctx, &ClaimRequest{
		DerivedKeyId:   winner.DerivedKeyId,
		AuthMethodType: params.AuthMethod.AuthMethodType,
		Signatures:     signatures,
		PubKey:         pubKey,
		Network:        c.config.Network,
	})
	if err != nil {
		return nil, fmt.Errorf("mint callback failed: %w", err)
	}

	return &ClaimKeyIdResult{
		DerivedKeyId: winner.DerivedKeyId,
		PubKey:       pubKey,
		Signatures:   signatures,
		MintTx:       mintTx,
		RequestId:    result.RequestId,
	}, nil
}

// defaultMintCallback submits the claim to the configured relay.
func (c *LitNodeClient) defaultMintCallback() MintCallback {
	return func(ctx context.Context, request *ClaimRequest) (string, error) {
		if c.config.RelayUrl == "" {
			return "", literrors.New(literrors.KindParamsMissing,
				"no mint callback supplied and no relay URL configured")
		}
		transport := c.config.Transport
		if transport == nil {
			transport = dispatcher.NewHttpTransport(&dispatcher.HttpTransportConfig{}, c.logger)
		}
		raw, err := transport.Post(ctx, c.config.RelayUrl+"/auth/claim", request, dispatcher.NewRequestId())
		if err != nil {
			return "", fmt.Errorf("relay submission failed: %w", err)
		}
		var decoded struct {
			RequestId string `json:"requestId"`
			TxHash    string `json:"txHash"`
		}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return "", fmt.Errorf("relay returned an unparsable response: %w", err)
		}
		if decoded.TxHash != "" {
			return decoded.TxHash, nil
		}
		return decoded.RequestId, nil
	}
}
