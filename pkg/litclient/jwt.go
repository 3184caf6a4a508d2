package litclient

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lit-protocol/lit-go-sdk/pkg/dispatcher"
	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
)

// jwtIssuer is the iss claim of every conditional token.
const jwtIssuer = "LIT"

// GetSignedTokenParams configures a conditional signed JWT: the committee
// signs the token only for callers satisfying the conditions.
type GetSignedTokenParams struct {
	// Conditions gate the signing
	Conditions ConditionSet
	// Chain names the chain the conditions are evaluated on
	Chain string
	// SessionSigs authorise the request per node
	SessionSigs SessionSigsMap
	// Expiration bounds the token lifetime; defaults to 24h
	Expiration time.Duration
}

// GetSignedToken builds the unsigned token locally, asks every node for a
// BLS share over it and returns the compact JWT with the combined committee
// signature appended.
func (c *LitNodeClient) GetSignedToken(ctx context.Context, params *GetSignedTokenParams) (string, error) {
	conn, err := c.requireReady()
	if err != nil {
		return "", err
	}
	if len(params.SessionSigs) == 0 {
		return "", literrors.New(literrors.KindWalletSignatureNotFound, "sessionSigs are required")
	}
	if err := params.Conditions.Validate(); err != nil {
		return "", err
	}

	lifetime := params.Expiration
	if lifetime == 0 {
		lifetime = 24 * time.Hour
	}
	now := time.Now().UTC()

	claims := jwt.MapClaims{
		"iss":   jwtIssuer,
		"sub":   "",
		"chain": params.Chain,
		"iat":   now.Unix(),
		"exp":   now.Add(lifetime).Unix(),
	}
	for key, value := range params.Conditions.bodyFields() {
		claims[key] = value
	}

	token := &jwt.Token{
		Header: map[string]any{
			"alg": "BLS12-381",
			"typ": "JWT",
		},
		Claims: claims,
		Method: jwt.SigningMethodNone,
	}
	unsignedJwt, err := token.SigningString()
	if err != nil {
		return "", literrors.Wrap(err, literrors.KindUnknownError, "failed to build unsigned JWT")
	}

	requestId := dispatcher.NewRequestId()
	result, err := c.dispatcher.FanOutAndCollect(ctx, conn.ConnectedNodes, conn.MinNodeCount, requestId,
		func(url string) (string, any, error) {
			sessionSig, ok := params.SessionSigs[url]
			if !ok {
				return "", nil, literrors.New(literrors.KindWalletSignatureNotFound,
					"no session sig for node %s", url)
			}
			body := params.Conditions.bodyFields()
			body["chain"] = params.Chain
			body["authSig"] = sessionSig
			body["unsignedJwt"] = unsignedJwt
			body["iat"] = claims["iat"]
			body["exp"] = claims["exp"]
			body["epoch"] = conn.CurrentEpochNumber
			return url + endpointSigningAcc, body, nil
		})
	if err != nil {
		return "", err
	}

	shares, err := decodeNodeShares(result)
	if err != nil {
		return "", err
	}
	signedJwt, err := c.combiner.CombineAndAppendJwt(shares, conn.MinNodeCount)
	if err != nil {
		return "", literrors.Wrap(err, literrors.KindNodeRequestFailed,
			"failed to combine JWT signature shares").WithRequestID(result.RequestId)
	}
	return signedJwt, nil
}
