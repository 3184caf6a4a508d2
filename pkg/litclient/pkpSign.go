package litclient

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/lit-protocol/lit-go-sdk/pkg/auth"
	"github.com/lit-protocol/lit-go-sdk/pkg/dispatcher"
	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
	"github.com/lit-protocol/lit-go-sdk/pkg/thresholdCrypto"
)

// PkpSignParams configures a threshold ECDSA signature over a digest.
type PkpSignParams struct {
	// ToSign is the 32-byte digest to sign
	ToSign []byte
	// PubKey names the PKP (hex, 0x prefix optional)
	PubKey string
	// SessionSigs authorise the signing; either these or AuthMethods are required
	SessionSigs SessionSigsMap
	// AuthMethods prove control of the PKP without a session
	AuthMethods []auth.AuthMethod
}

// PkpSign requests a threshold ECDSA signature over params.ToSign under the
// named PKP. Every node must answer, and at least minNodeCount shares must
// agree to combine.
func (c *LitNodeClient) PkpSign(ctx context.Context, params *PkpSignParams) (*thresholdCrypto.EcdsaSignature, error) {
	conn, err := c.requireReady()
	if err != nil {
		return nil, err
	}
	if len(params.ToSign) == 0 {
		return nil, literrors.New(literrors.KindParamNull, "toSign must not be empty")
	}
	if params.PubKey == "" {
		return nil, literrors.New(literrors.KindParamsMissing, "pubKey is required")
	}
	if len(params.SessionSigs) == 0 && len(params.AuthMethods) == 0 {
		return nil, literrors.New(literrors.KindParamsMissing,
			"either sessionSigs or at least one auth method is required")
	}

	pubKey := params.PubKey
	if !strings.HasPrefix(pubKey, "0x") {
		pubKey = "0x" + pubKey
	}

	requestId := dispatcher.NewRequestId()
	result, err := c.dispatcher.FanOutAndCollect(ctx, conn.ConnectedNodes, len(conn.ConnectedNodes), requestId,
		func(url string) (string, any, error) {
			body := map[string]any{
				"toSign": hex.EncodeToString(params.ToSign),
				"pubkey": pubKey,
				"epoch":  conn.CurrentEpochNumber,
			}
			if len(params.SessionSigs) > 0 {
				sessionSig, ok := params.SessionSigs[url]
				if !ok {
					return "", nil, literrors.New(literrors.KindWalletSignatureNotFound,
						"no session sig for node %s", url)
				}
				body["authSig"] = sessionSig
			}
			if len(params.AuthMethods) > 0 {
				body["authMethods"] = params.AuthMethods
			}
			return url + endpointPkpSign, body, nil
		})
	if err != nil {
		return nil, err
	}

	shares, err := decodeNodeShares(result)
	if err != nil {
		return nil, err
	}
	signatures, err := c.combiner.CombineAllSignedData(shares, conn.MinNodeCount)
	if err != nil {
		return nil, literrors.Wrap(err, literrors.KindNodeRequestFailed,
			"failed to combine signature shares").WithRequestID(result.RequestId)
	}
	if len(signatures) != 1 {
		return nil, literrors.New(literrors.KindUnknownError,
			"expected exactly one signature, got %d", len(signatures)).WithRequestID(result.RequestId)
	}
	for _, sig := range signatures {
		return sig, nil
	}
	return nil, literrors.New(literrors.KindUnknownError, "no signature produced").WithRequestID(result.RequestId)
}
