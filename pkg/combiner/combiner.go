// Package combiner turns per-node signature shares into single signatures.
// The BLS path serves decryption shares and conditional JWT signing; the
// ECDSA path serves PKP signing and signatures produced inside actions. Both
// paths first select the shares that agree on the signed message, with ties
// broken lexicographically, then hand the survivors to the crypto suite.
package combiner

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/lit-protocol/lit-go-sdk/pkg/thresholdCrypto"
	"github.com/lit-protocol/lit-go-sdk/pkg/util"
	"go.uber.org/zap"
)

// Combiner applies the share-selection policy on top of a crypto suite.
type Combiner struct {
	logger *zap.Logger
	suite  thresholdCrypto.IThresholdCrypto
}

// NewCombiner creates a Combiner over the given suite.
func NewCombiner(suite thresholdCrypto.IThresholdCrypto, logger *zap.Logger) *Combiner {
	return &Combiner{
		logger: logger,
		suite:  suite,
	}
}

// BlsCombineResult is a combined BLS signature plus the message the agreeing
// shares signed.
type BlsCombineResult struct {
	// Signature is the combined signature, compressed G2 hex
	Signature string
	// DataSigned is the winning dataSigned value across the shares
	DataSigned string
}

// CombineBlsShares combines the BLS signature shares of a node batch.
// Shares missing a required field are dropped; at least minNodeCount complete,
// agreeing shares are required. Shares are ordered by shareIndex before
// combination, and disagreement on dataSigned is logged but tolerated as long
// as the winning value retains a quorum.
func (c *Combiner) CombineBlsShares(shares []NodeShare, minNodeCount int) (*BlsCombineResult, error) {
	complete := util.Filter(shares, func(s NodeShare) bool {
		return s.SignatureShare != "" && s.DataSigned != "" && s.CurveType == CurveTypeBLS
	})
	if len(complete) < minNodeCount {
		return nil, fmt.Errorf("%d usable BLS shares, need at least %d", len(complete), minNodeCount)
	}

	sort.Slice(complete, func(i, j int) bool { return complete[i].ShareIndex < complete[j].ShareIndex })

	winner, count := util.MostCommon(complete, func(s NodeShare) string { return s.DataSigned })
	if count < len(complete) {
		c.logger.Sugar().Warnw("BLS shares disagree on signed data",
			zap.String("winner", winner.DataSigned),
			zap.Int("agreeing", count),
			zap.Int("total", len(complete)),
		)
	}
	agreeing := util.Filter(complete, func(s NodeShare) bool { return s.DataSigned == winner.DataSigned })
	if len(agreeing) < minNodeCount {
		return nil, fmt.Errorf("%d shares agree on signed data, need at least %d", len(agreeing), minNodeCount)
	}

	cryptoShares := util.Map(agreeing, func(s NodeShare, _ uint64) thresholdCrypto.SignatureShare {
		return thresholdCrypto.SignatureShare{ShareIndex: s.ShareIndex, Share: s.SignatureShare}
	})
	combined, err := c.suite.CombineSignatureShares(cryptoShares)
	if err != nil {
		return nil, fmt.Errorf("failed to combine BLS shares: %w", err)
	}
	return &BlsCombineResult{Signature: combined, DataSigned: winner.DataSigned}, nil
}

// CombineAndAppendJwt combines the shares of a conditional signing batch and
// appends the signature to the most common unsigned JWT, producing the final
// compact token.
func (c *Combiner) CombineAndAppendJwt(shares []NodeShare, minNodeCount int) (string, error) {
	result, err := c.CombineBlsShares(shares, minNodeCount)
	if err != nil {
		return "", err
	}

	withJwt := util.Filter(shares, func(s NodeShare) bool { return s.UnsignedJwt != "" })
	if len(withJwt) == 0 {
		return "", fmt.Errorf("no node returned an unsigned JWT")
	}
	winner, _ := util.MostCommon(withJwt, func(s NodeShare) string { return s.UnsignedJwt })

	sigBytes, err := hex.DecodeString(result.Signature)
	if err != nil {
		return "", fmt.Errorf("combined signature is not hex: %w", err)
	}
	return winner.UnsignedJwt + "." + base64.RawURLEncoding.EncodeToString(sigBytes), nil
}

// CombineEcdsaShares combines the ECDSA shares for one named signature.
// Shares must agree on (dataSigned, bigR, publicKey); the most common triple
// wins and needs at least minNodeCount members.
func (c *Combiner) CombineEcdsaShares(shares []SignedDataShare, minNodeCount int) (*thresholdCrypto.EcdsaSignature, error) {
	complete := util.Filter(shares, func(s SignedDataShare) bool {
		return s.SignatureShare != "" && s.DataSigned != "" && s.BigR != "" && s.PublicKey != ""
	})
	if len(complete) < minNodeCount {
		return nil, fmt.Errorf("%d usable ECDSA shares, need at least %d", len(complete), minNodeCount)
	}

	winner, count := util.MostCommon(complete, func(s SignedDataShare) string {
		return s.DataSigned + "|" + s.BigR + "|" + s.PublicKey
	})
	if count < minNodeCount {
		return nil, fmt.Errorf("%d ECDSA shares agree on the signed digest, need at least %d", count, minNodeCount)
	}
	if count < len(complete) {
		c.logger.Sugar().Warnw("ECDSA shares disagree on signed digest",
			zap.String("winner", winner.DataSigned),
			zap.Int("agreeing", count),
			zap.Int("total", len(complete)),
		)
	}
	agreeing := util.Filter(complete, func(s SignedDataShare) bool {
		return s.DataSigned == winner.DataSigned && s.BigR == winner.BigR && s.PublicKey == winner.PublicKey
	})
	sort.Slice(agreeing, func(i, j int) bool { return agreeing[i].ShareIndex < agreeing[j].ShareIndex })

	digest, err := hex.DecodeString(stripHexPrefix(winner.DataSigned))
	if err != nil {
		return nil, fmt.Errorf("signed digest is not hex: %w", err)
	}

	cryptoShares := util.Map(agreeing, func(s SignedDataShare, _ uint64) thresholdCrypto.EcdsaSignatureShare {
		return thresholdCrypto.EcdsaSignatureShare{ShareIndex: s.ShareIndex, Share: s.SignatureShare}
	})
	sig, err := thresholdCrypto.CombineEcdsaShares(winner.BigR, cryptoShares, digest, winner.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to combine ECDSA shares: %w", err)
	}
	return sig, nil
}

// CombineAllSignedData groups the named signatures across a batch of node
// shares and combines each name independently. For pkpSign batches there is
// exactly one name.
func (c *Combiner) CombineAllSignedData(shares []NodeShare, minNodeCount int) (map[string]*thresholdCrypto.EcdsaSignature, error) {
	byName := make(map[string][]SignedDataShare)
	for _, share := range shares {
		for name, data := range share.SignedData {
			byName[name] = append(byName[name], data)
		}
	}

	out := make(map[string]*thresholdCrypto.EcdsaSignature, len(byName))
	for name, named := range byName {
		sig, err := c.CombineEcdsaShares(named, minNodeCount)
		if err != nil {
			return nil, fmt.Errorf("failed to combine signature %q: %w", name, err)
		}
		out[name] = sig
	}
	return out, nil
}

func stripHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
