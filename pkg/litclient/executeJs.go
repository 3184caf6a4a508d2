package litclient

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/btcsuite/btcutil/base58"
	"github.com/lit-protocol/lit-go-sdk/pkg/combiner"
	"github.com/lit-protocol/lit-go-sdk/pkg/dispatcher"
	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
	"github.com/lit-protocol/lit-go-sdk/pkg/thresholdCrypto"
	"github.com/lit-protocol/lit-go-sdk/pkg/util"
	"go.uber.org/zap"
)

// Response selection strategies for ExecuteJs. Selection is always by
// majority; the strategy only decides how equal-count ties are broken. The
// historical label "leastCommon" is preserved for wire compatibility and
// behaves exactly like "mostCommon": lexicographically smallest wins.
const (
	ResponseStrategyLeastCommon = "leastCommon"
	ResponseStrategyMostCommon  = "mostCommon"
	ResponseStrategyCustom      = "custom"
)

// ExecuteJsParams configures an action execution.
type ExecuteJsParams struct {
	// Code is the action source; exactly one of Code and IpfsId is required
	Code string
	// IpfsId references an already-pinned action
	IpfsId string
	// JsParams are passed to the action as its parameter object
	JsParams map[string]any
	// SessionSigs authorise the execution, one entry per node URL
	SessionSigs SessionSigsMap
	// ResponseStrategy breaks ties between equally common responses
	ResponseStrategy string
	// CustomResponseSelector decides ties when ResponseStrategy is "custom"
	CustomResponseSelector func(tied []string) string
	// TargetNodeRange, when > 0, runs the action on that many
	// deterministically selected nodes instead of the whole committee
	TargetNodeRange int
}

// ClaimSignature is one node's attestation signature split into its parts.
type ClaimSignature struct {
	R string `json:"r"`
	S string `json:"s"`
	V byte   `json:"v"`
}

// ClaimResult aggregates the per-node attestations of one claimed key.
type ClaimResult struct {
	DerivedKeyId string           `json:"derivedKeyId"`
	Signatures   []ClaimSignature `json:"signatures"`
}

// ExecuteJsResult is the aggregated outcome of an action execution.
type ExecuteJsResult struct {
	// Response is the action's returned value, JSON-decoded when possible
	Response any `json:"response"`
	// Logs is the winning console output across nodes
	Logs string `json:"logs"`
	// Signatures holds one combined signature per name the action signed under
	Signatures map[string]*thresholdCrypto.EcdsaSignature `json:"signatures"`
	// Claims holds the key claims the action produced
	Claims map[string]ClaimResult `json:"claims"`
	// Success reports whether the winning responses succeeded
	Success bool `json:"success"`
	// RequestId identifies the node batch
	RequestId string `json:"requestId"`
}

// ExecuteJs runs an action on the committee and aggregates the per-node
// results: the majority response wins, signature shares are combined, claims
// are merged and the logs are the most common value across the nodes.
func (c *LitNodeClient) ExecuteJs(ctx context.Context, params *ExecuteJsParams) (*ExecuteJsResult, error) {
	conn, err := c.requireReady()
	if err != nil {
		return nil, err
	}

	hasCode := params.Code != ""
	hasIpfs := params.IpfsId != ""
	if hasCode == hasIpfs {
		return nil, literrors.New(literrors.KindInvalidParamType,
			"exactly one of code and ipfsId is required")
	}
	if len(params.SessionSigs) == 0 {
		return nil, literrors.New(literrors.KindWalletSignatureNotFound, "sessionSigs are required")
	}

	// jsParams must serialise deterministically; reject non-JSON values here
	// rather than inside the fan-out.
	normalizedParams, err := normalizeJsParams(params.JsParams)
	if err != nil {
		return nil, literrors.Wrap(err, literrors.KindInvalidParamType, "jsParams are not JSON-serialisable")
	}

	urls := conn.ConnectedNodes
	minRequired := conn.MinNodeCount
	if params.TargetNodeRange > 0 {
		urls, err = selectTargetNodes(params.Code, params.IpfsId, params.TargetNodeRange, conn.ConnectedNodes)
		if err != nil {
			return nil, err
		}
		if minRequired > len(urls) {
			minRequired = len(urls)
		}
		c.logger.Sugar().Debugw("Targeted execution",
			zap.Int("targetNodeRange", params.TargetNodeRange),
			zap.Strings("targets", urls),
		)
	}

	var encodedCode string
	if hasCode {
		encodedCode = base64.StdEncoding.EncodeToString([]byte(params.Code))
	}

	requestId := dispatcher.NewRequestId()
	result, err := c.dispatcher.FanOutAndCollect(ctx, urls, minRequired, requestId,
		func(url string) (string, any, error) {
			sessionSig, ok := params.SessionSigs[url]
			if !ok {
				return "", nil, literrors.New(literrors.KindWalletSignatureNotFound,
					"no session sig for node %s", url)
			}
			body := map[string]any{
				"authSig":  sessionSig,
				"jsParams": normalizedParams,
				"epoch":    conn.CurrentEpochNumber,
			}
			if hasCode {
				body["code"] = encodedCode
			} else {
				body["ipfsId"] = params.IpfsId
			}
			return url + endpointExecute, body, nil
		})
	if err != nil {
		return nil, err
	}

	shares, err := decodeNodeShares(result)
	if err != nil {
		return nil, err
	}
	return c.aggregateExecuteResult(shares, result.RequestId, conn.MinNodeCount, params)
}

func (c *LitNodeClient) aggregateExecuteResult(
	shares []combiner.NodeShare,
	requestId string,
	minNodeCount int,
	params *ExecuteJsParams,
) (*ExecuteJsResult, error) {
	winnerKey := selectResponse(shares, params.ResponseStrategy, params.CustomResponseSelector)
	winning := util.Filter(shares, func(s combiner.NodeShare) bool { return s.Response == winnerKey })
	if len(winning) == 0 {
		winning = shares
	}

	logsWinner, _ := util.MostCommon(shares, func(s combiner.NodeShare) string { return s.Logs })

	out := &ExecuteJsResult{
		Response:   parseResponse(winnerKey),
		Logs:       logsWinner.Logs,
		Signatures: map[string]*thresholdCrypto.EcdsaSignature{},
		Claims:     map[string]ClaimResult{},
		Success:    allSucceeded(winning),
		RequestId:  requestId,
	}

	hasSignedData := false
	hasClaimData := false
	for _, share := range winning {
		if len(share.SignedData) > 0 {
			hasSignedData = true
		}
		if len(share.ClaimData) > 0 {
			hasClaimData = true
		}
	}
	if !hasSignedData && !hasClaimData {
		return out, nil
	}

	if hasSignedData {
		signatures, err := c.combiner.CombineAllSignedData(winning, minNodeCount)
		if err != nil {
			return nil, literrors.Wrap(err, literrors.KindNodeRequestFailed,
				"failed to combine action signatures").WithRequestID(requestId)
		}
		out.Signatures = signatures
	}
	if hasClaimData {
		out.Claims = aggregateClaims(winning)
	}
	return out, nil
}

// selectResponse picks the majority response string. Ties between equally
// common responses are broken by the strategy; the default (and the
// "leastCommon"/"mostCommon" labels) resolve to the lexicographically
// smallest candidate.
func selectResponse(shares []combiner.NodeShare, strategy string, custom func([]string) string) string {
	counts := make(map[string]int, len(shares))
	for _, share := range shares {
		counts[share.Response]++
	}
	best := -1
	for _, count := range counts {
		if count > best {
			best = count
		}
	}
	tied := make([]string, 0, 1)
	for key, count := range counts {
		if count == best {
			tied = append(tied, key)
		}
	}
	sort.Strings(tied)
	if len(tied) > 1 && strategy == ResponseStrategyCustom && custom != nil {
		return custom(tied)
	}
	return tied[0]
}

func parseResponse(raw string) any {
	if raw == "" {
		return ""
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return decoded
	}
	return raw
}

func allSucceeded(shares []combiner.NodeShare) bool {
	for _, share := range shares {
		if !share.Success {
			return false
		}
	}
	return len(shares) > 0
}

func aggregateClaims(shares []combiner.NodeShare) map[string]ClaimResult {
	out := make(map[string]ClaimResult)
	for _, share := range shares {
		for name, claim := range share.ClaimData {
			entry := out[name]
			if entry.DerivedKeyId == "" {
				entry.DerivedKeyId = claim.DerivedKeyId
			}
			if sig, err := splitHexSignature(claim.Signature); err == nil {
				entry.Signatures = append(entry.Signatures, sig)
			}
			out[name] = entry
		}
	}
	return out
}

// splitHexSignature splits a 65-byte hex signature into its r, s, v parts.
func splitHexSignature(sigHex string) (ClaimSignature, error) {
	raw := stripHexPrefix(sigHex)
	if len(raw) != 130 {
		return ClaimSignature{}, fmt.Errorf("signature must be 65 bytes of hex, got %d chars", len(raw))
	}
	v := new(big.Int)
	if _, ok := v.SetString(raw[128:], 16); !ok {
		return ClaimSignature{}, fmt.Errorf("invalid recovery byte")
	}
	return ClaimSignature{
		R: raw[:64],
		S: raw[64:128],
		V: byte(v.Uint64()),
	}, nil
}

func normalizeJsParams(jsParams map[string]any) (map[string]any, error) {
	if jsParams == nil {
		return map[string]any{}, nil
	}
	canonical, err := util.CanonicalJSON(jsParams)
	if err != nil {
		return nil, err
	}
	var normalized map[string]any
	if err := json.Unmarshal(canonical, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// selectTargetNodes deterministically picks k distinct nodes for a payload:
// the payload's content id is hashed with an incrementing counter until k
// unique indices into urls have been produced. Every client selects the same
// subset for the same (payload, committee) pair.
func selectTargetNodes(code string, ipfsId string, k int, urls []string) ([]string, error) {
	if k < 1 || k > len(urls) {
		return nil, literrors.New(literrors.KindInvalidArgumentException,
			"targetNodeRange %d out of range for %d nodes", k, len(urls))
	}
	contentId := ipfsId
	if contentId == "" {
		contentId = IpfsCidV0(code)
	}

	selected := make([]string, 0, k)
	seen := make(map[int]struct{}, k)
	for counter := 0; len(selected) < k; counter++ {
		digest := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", counter, contentId)))
		idx := int(new(big.Int).Mod(new(big.Int).SetBytes(digest[:]), big.NewInt(int64(len(urls)))).Int64())
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		selected = append(selected, urls[idx])
	}
	return selected, nil
}

// IpfsCidV0 computes the v0 content id of a payload: the base58 multihash of
// its SHA-256 digest.
func IpfsCidV0(content string) string {
	digest := sha256.Sum256([]byte(content))
	multihash := append([]byte{0x12, 0x20}, digest[:]...)
	return base58.Encode(multihash)
}
