package combiner

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/lit-protocol/lit-go-sdk/pkg/thresholdCrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func blsShares(t *testing.T, committee *thresholdCrypto.LocalCommittee, message string, nodes []int) []NodeShare {
	t.Helper()
	out := make([]NodeShare, 0, len(nodes))
	for _, idx := range nodes {
		share, err := committee.SignShare(idx, []byte(message))
		require.NoError(t, err)
		out = append(out, NodeShare{
			Success:        true,
			SignatureShare: share.Share,
			ShareIndex:     share.ShareIndex,
			CurveType:      CurveTypeBLS,
			DataSigned:     message,
		})
	}
	return out
}

func TestCombineBlsShares(t *testing.T) {
	committee, err := thresholdCrypto.NewLocalCommittee(3, 5)
	require.NoError(t, err)
	suite := thresholdCrypto.NewBls381Suite()
	c := NewCombiner(suite, zap.NewNop())

	shares := blsShares(t, committee, "message", []int{4, 0, 2})
	result, err := c.CombineBlsShares(shares, 3)
	require.NoError(t, err)
	assert.Equal(t, "message", result.DataSigned)
	require.NoError(t, suite.VerifySignature(committee.PublicKeyHex, []byte("message"), result.Signature))
}

func TestCombineBlsSharesDropsIncomplete(t *testing.T) {
	committee, err := thresholdCrypto.NewLocalCommittee(2, 4)
	require.NoError(t, err)
	c := NewCombiner(thresholdCrypto.NewBls381Suite(), zap.NewNop())

	shares := blsShares(t, committee, "m", []int{0, 1})
	shares = append(shares, NodeShare{Success: true, CurveType: CurveTypeBLS}) // missing share fields

	result, err := c.CombineBlsShares(shares, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Signature)

	// With the incomplete share counted out, quorum of 3 is unreachable.
	_, err = c.CombineBlsShares(shares, 3)
	assert.Error(t, err)
}

func TestCombineBlsSharesToleratesMinorityDisagreement(t *testing.T) {
	committee, err := thresholdCrypto.NewLocalCommittee(2, 4)
	require.NoError(t, err)
	suite := thresholdCrypto.NewBls381Suite()
	c := NewCombiner(suite, zap.NewNop())

	shares := blsShares(t, committee, "agreed", []int{0, 1})
	shares = append(shares, blsShares(t, committee, "outlier", []int{2})...)

	result, err := c.CombineBlsShares(shares, 2)
	require.NoError(t, err)
	assert.Equal(t, "agreed", result.DataSigned)
	require.NoError(t, suite.VerifySignature(committee.PublicKeyHex, []byte("agreed"), result.Signature))
}

func TestCombineAndAppendJwt(t *testing.T) {
	committee, err := thresholdCrypto.NewLocalCommittee(2, 3)
	require.NoError(t, err)
	c := NewCombiner(thresholdCrypto.NewBls381Suite(), zap.NewNop())

	unsigned := "eyJhbGciOiJCTFMxMi0zODEifQ.eyJpc3MiOiJMSVQifQ"
	shares := blsShares(t, committee, unsigned, []int{0, 1})
	for i := range shares {
		shares[i].UnsignedJwt = unsigned
	}

	jwt, err := c.CombineAndAppendJwt(shares, 2)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(jwt, unsigned+"."))
	assert.Equal(t, 3, len(strings.Split(jwt, ".")))
}

func ecdsaNodeShares(t *testing.T, committee *thresholdCrypto.LocalCommittee, digest []byte, count int) []NodeShare {
	t.Helper()
	bigR, shares, err := committee.EcdsaSignShares(digest)
	require.NoError(t, err)
	out := make([]NodeShare, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, NodeShare{
			Success: true,
			SignedData: map[string]SignedDataShare{
				"sig": {
					SigType:        CurveTypeK256,
					DataSigned:     hex.EncodeToString(digest),
					SignatureShare: shares[i].Share,
					ShareIndex:     shares[i].ShareIndex,
					BigR:           bigR,
					PublicKey:      committee.EcdsaPublicKeyHex,
				},
			},
		})
	}
	return out
}

func TestCombineAllSignedData(t *testing.T) {
	committee, err := thresholdCrypto.NewLocalCommittee(3, 5)
	require.NoError(t, err)
	c := NewCombiner(thresholdCrypto.NewBls381Suite(), zap.NewNop())

	digest := sha256.Sum256([]byte("hello"))
	shares := ecdsaNodeShares(t, committee, digest[:], 5)

	sigs, err := c.CombineAllSignedData(shares, 3)
	require.NoError(t, err)
	require.Contains(t, sigs, "sig")
	assert.Len(t, sigs["sig"].R, 64)
	assert.Len(t, sigs["sig"].S, 64)
}

func TestCombineEcdsaSharesQuorumShortfallIsFatal(t *testing.T) {
	committee, err := thresholdCrypto.NewLocalCommittee(3, 5)
	require.NoError(t, err)
	c := NewCombiner(thresholdCrypto.NewBls381Suite(), zap.NewNop())

	digest := sha256.Sum256([]byte("hello"))
	shares := ecdsaNodeShares(t, committee, digest[:], 2)

	named := make([]SignedDataShare, 0, len(shares))
	for _, s := range shares {
		named = append(named, s.SignedData["sig"])
	}
	_, err = c.CombineEcdsaShares(named, 3)
	assert.Error(t, err)
}
