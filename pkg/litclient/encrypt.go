package litclient

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/lit-protocol/lit-go-sdk/pkg/auth"
	"github.com/lit-protocol/lit-go-sdk/pkg/dispatcher"
	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
	"github.com/lit-protocol/lit-go-sdk/pkg/resources"
	"github.com/lit-protocol/lit-go-sdk/pkg/thresholdCrypto"
)

// EncryptParams configures an identity-bound encryption.
type EncryptParams struct {
	// DataToEncrypt is the plaintext
	DataToEncrypt []byte
	// Conditions predicate who may later decrypt
	Conditions ConditionSet
}

// EncryptResult is the outcome of Encrypt.
type EncryptResult struct {
	// Ciphertext is the base64 encoding of the identity-bound ciphertext
	Ciphertext string `json:"ciphertext"`
	// DataToEncryptHash is the lowercase hex SHA-256 of the plaintext
	DataToEncryptHash string `json:"dataToEncryptHash"`
}

// DecryptParams configures a threshold decryption.
type DecryptParams struct {
	// Ciphertext is the base64 ciphertext produced by Encrypt
	Ciphertext string
	// DataToEncryptHash is the plaintext digest bound into the identity
	DataToEncryptHash string
	// Conditions must equal the set used at encryption time
	Conditions ConditionSet
	// Chain names the chain the conditions are evaluated on
	Chain string
	// SessionSigs authorise the decryption per node
	SessionSigs SessionSigsMap
	// AuthSig is the fallback authorisation when SessionSigs are absent
	AuthSig *auth.AuthSig
}

// IdentityParam builds the identity parameter binding a condition digest and
// a payload digest: both sides of an encrypt/decrypt pair must match
// byte-for-byte.
func IdentityParam(hashOfConditions string, hashOfPrivateData string) []byte {
	resource := resources.NewAccessControlConditionResource(
		fmt.Sprintf("%s/%s", hashOfConditions, hashOfPrivateData))
	return []byte(resource.Key())
}

// Encrypt produces a ciphertext readable only through a threshold decryption
// gated on params.Conditions. Encryption is local: only the subnet public key
// from the handshake is used.
func (c *LitNodeClient) Encrypt(ctx context.Context, params *EncryptParams) (*EncryptResult, error) {
	conn, err := c.requireReady()
	if err != nil {
		return nil, err
	}
	if len(params.DataToEncrypt) == 0 {
		return nil, literrors.New(literrors.KindParamNull, "dataToEncrypt must not be empty")
	}
	if conn.SubnetPubKey == "" {
		return nil, literrors.New(literrors.KindLitNodeClientNotReady, "subnet public key unknown")
	}

	hashOfConditions, err := params.Conditions.Hash()
	if err != nil {
		return nil, err
	}
	hashOfPrivateData := thresholdCrypto.Sha256Hex(params.DataToEncrypt)

	ciphertext, err := c.suite.Encrypt(conn.SubnetPubKey, params.DataToEncrypt,
		IdentityParam(hashOfConditions, hashOfPrivateData))
	if err != nil {
		return nil, literrors.Wrap(err, literrors.KindUnknownError, "encryption failed")
	}

	return &EncryptResult{
		Ciphertext:        base64.StdEncoding.EncodeToString(ciphertext),
		DataToEncryptHash: hashOfPrivateData,
	}, nil
}

// Decrypt collects threshold decryption shares from the committee and opens
// the ciphertext. Each node checks the conditions against the caller's
// authorisation before contributing its share.
func (c *LitNodeClient) Decrypt(ctx context.Context, params *DecryptParams) ([]byte, error) {
	conn, err := c.requireReady()
	if err != nil {
		return nil, err
	}
	if params.Ciphertext == "" || params.DataToEncryptHash == "" {
		return nil, literrors.New(literrors.KindParamsMissing, "ciphertext and dataToEncryptHash are required")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(params.Ciphertext)
	if err != nil {
		return nil, literrors.Wrap(err, literrors.KindInvalidParamType, "ciphertext is not base64")
	}

	hashOfConditions, err := params.Conditions.Hash()
	if err != nil {
		return nil, err
	}
	identityParam := IdentityParam(hashOfConditions, params.DataToEncryptHash)

	requestId := dispatcher.NewRequestId()
	result, err := c.dispatcher.FanOutAndCollect(ctx, conn.ConnectedNodes, conn.MinNodeCount, requestId,
		func(url string) (string, any, error) {
			authSig, err := c.decryptAuthSig(params, url)
			if err != nil {
				return "", nil, err
			}
			body := params.Conditions.bodyFields()
			body["dataToEncryptHash"] = params.DataToEncryptHash
			body["chain"] = params.Chain
			body["authSig"] = authSig
			body["epoch"] = conn.CurrentEpochNumber
			return url + endpointEncryptionSign, body, nil
		})
	if err != nil {
		return nil, err
	}

	shares, err := decodeNodeShares(result)
	if err != nil {
		return nil, err
	}
	cryptoShares := make([]thresholdCrypto.SignatureShare, 0, len(shares))
	for _, share := range shares {
		if share.SignatureShare == "" {
			continue
		}
		cryptoShares = append(cryptoShares, thresholdCrypto.SignatureShare{
			ShareIndex: share.ShareIndex,
			Share:      share.SignatureShare,
		})
	}
	if len(cryptoShares) < conn.MinNodeCount {
		return nil, literrors.New(literrors.KindNodeRequestFailed,
			"%d decryption shares, need at least %d", len(cryptoShares), conn.MinNodeCount).WithRequestID(result.RequestId)
	}

	plaintext, err := c.suite.VerifyAndDecryptWithSignatureShares(conn.SubnetPubKey, identityParam, ciphertext, cryptoShares)
	if err != nil {
		return nil, literrors.Wrap(err, literrors.KindUnknownError, "decryption failed").WithRequestID(result.RequestId)
	}
	return plaintext, nil
}

// decryptAuthSig resolves the per-node authorisation: the node's session sig
// wins, the plain AuthSig is the fallback, neither is an error.
func (c *LitNodeClient) decryptAuthSig(params *DecryptParams, url string) (*auth.AuthSig, error) {
	if sig, ok := params.SessionSigs[url]; ok {
		return &sig, nil
	}
	if params.AuthSig != nil {
		return params.AuthSig, nil
	}
	return nil, literrors.New(literrors.KindInvalidArgumentException,
		"no authorisation for node %s: supply sessionSigs or authSig", url)
}
