package litclient

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/lit-protocol/lit-go-sdk/pkg/auth"
	"github.com/lit-protocol/lit-go-sdk/pkg/combiner"
	"github.com/lit-protocol/lit-go-sdk/pkg/sessionKeys"
	"github.com/lit-protocol/lit-go-sdk/pkg/thresholdCrypto"
	"github.com/stretchr/testify/require"
)

// testNetwork simulates a committee of nodes as httptest servers sharing one
// LocalCommittee. The execute and pkp-sign handlers check the per-node session
// sig before answering; the other handlers do not.
type testNetwork struct {
	t         *testing.T
	committee *thresholdCrypto.LocalCommittee
	urls      []string
	nodeKeys  []*ecdsa.PrivateKey

	mu          sync.Mutex
	ecdsaByHash map[string]ecdsaSigning
	failing     map[int]bool
}

type ecdsaSigning struct {
	bigR   string
	shares []thresholdCrypto.EcdsaSignatureShare
}

func newTestNetwork(t *testing.T, threshold, size int) *testNetwork {
	t.Helper()
	committee, err := thresholdCrypto.NewLocalCommittee(threshold, size)
	require.NoError(t, err)

	net := &testNetwork{
		t:           t,
		committee:   committee,
		ecdsaByHash: map[string]ecdsaSigning{},
		failing:     map[int]bool{},
	}
	for i := 0; i < size; i++ {
		nodeKey, err := ethcrypto.GenerateKey()
		require.NoError(t, err)
		net.nodeKeys = append(net.nodeKeys, nodeKey)

		idx := i
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			net.handle(idx, w, r)
		}))
		t.Cleanup(server.Close)
		net.urls = append(net.urls, server.URL)
	}
	return net
}

func (n *testNetwork) setFailing(idx int, failing bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing[idx] = failing
}

func (n *testNetwork) handle(idx int, w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	failing := n.failing[idx]
	n.mu.Unlock()
	if failing {
		http.Error(w, `{"error":"node offline"}`, http.StatusInternalServerError)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"bad body"}`, http.StatusBadRequest)
		return
	}

	switch r.URL.Path {
	case "/web/handshake":
		n.writeJSON(w, map[string]any{
			"serverPublicKey":     fmt.Sprintf("server-%d", idx),
			"subnetPublicKey":     n.committee.PublicKeyHex,
			"networkPublicKeySet": n.committee.PublicKeyHex,
			"hdRootPubkeys":       n.hdRootPubkeys(),
			"latestBlockhash":     "0xe3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			"epoch":               3,
			"minNodeCount":        n.committee.Threshold,
		})
	case "/web/execute":
		n.handleExecute(idx, w, body)
	case "/web/pkp/sign":
		n.handlePkpSign(idx, w, body)
	case "/web/encryption/sign":
		n.handleEncryptionSign(idx, w, body)
	case "/web/sign_session_key":
		n.handleSignSessionKey(idx, w, body)
	case "/web/signing/access_control_condition":
		n.handleSigningAcc(idx, w, body)
	case "/web/pkp/claim":
		n.handleClaim(idx, w, body)
	case "/auth/claim":
		n.writeJSON(w, map[string]any{"requestId": "relay-1", "txHash": "0xminted"})
	default:
		http.Error(w, `{"error":"unknown endpoint"}`, http.StatusNotFound)
	}
}

func (n *testNetwork) hdRootPubkeys() []string {
	keys := make([]string, 0, 2)
	for i := 0; i < 2 && i < len(n.nodeKeys); i++ {
		keys = append(keys, hex.EncodeToString(ethcrypto.CompressPubkey(&n.nodeKeys[i].PublicKey)))
	}
	return keys
}

// requireSessionSig validates the session sig a request carries: the template
// must be addressed to this node and signed by the session key it names.
func (n *testNetwork) requireSessionSig(idx int, w http.ResponseWriter, body map[string]any) bool {
	rawSig, ok := body["authSig"]
	if !ok {
		http.Error(w, `{"error":"missing authSig"}`, http.StatusUnauthorized)
		return false
	}
	encoded, err := json.Marshal(rawSig)
	if err != nil {
		http.Error(w, `{"error":"bad authSig"}`, http.StatusUnauthorized)
		return false
	}
	var sig auth.AuthSig
	if err := json.Unmarshal(encoded, &sig); err != nil || sig.Validate() != nil {
		http.Error(w, `{"error":"bad authSig"}`, http.StatusUnauthorized)
		return false
	}
	if sig.DerivedVia != auth.DerivedViaSessionSig {
		// Plain wallet sigs are accepted without template checks.
		return true
	}

	var template SessionSigningTemplate
	if err := json.Unmarshal([]byte(sig.SignedMessage), &template); err != nil {
		http.Error(w, `{"error":"bad session template"}`, http.StatusUnauthorized)
		return false
	}
	if template.NodeAddress != n.urls[idx] {
		http.Error(w, `{"error":"session sig addressed to another node"}`, http.StatusUnauthorized)
		return false
	}
	if err := sessionKeys.VerifyDetached(sig.Address, []byte(sig.SignedMessage), sig.Sig); err != nil {
		http.Error(w, `{"error":"session sig does not verify"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

func (n *testNetwork) handleExecute(idx int, w http.ResponseWriter, body map[string]any) {
	if !n.requireSessionSig(idx, w, body) {
		return
	}

	code := ""
	if encoded, ok := body["code"].(string); ok {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			http.Error(w, `{"error":"code is not base64"}`, http.StatusBadRequest)
			return
		}
		code = string(decoded)
	}

	share := combiner.NodeShare{Success: true}
	jsParams, _ := body["jsParams"].(map[string]any)
	if toSign, ok := jsParams["toSign"].(string); ok {
		digest, err := hex.DecodeString(toSign)
		if err != nil || len(digest) != 32 {
			http.Error(w, `{"error":"bad toSign"}`, http.StatusBadRequest)
			return
		}
		signing := n.ecdsaSigningFor(digest)
		share.SignedData = map[string]combiner.SignedDataShare{
			"sig": {
				SigType:        combiner.CurveTypeK256,
				DataSigned:     toSign,
				SignatureShare: signing.shares[idx].Share,
				ShareIndex:     signing.shares[idx].ShareIndex,
				BigR:           signing.bigR,
				PublicKey:      n.committee.EcdsaPublicKeyHex,
			},
		}
	} else {
		if code == "" && body["ipfsId"] == nil {
			http.Error(w, `{"error":"missing code"}`, http.StatusBadRequest)
			return
		}
		share.Response = ""
		share.Logs = "hello world\n"
	}
	n.writeJSON(w, share)
}

// ecdsaSigningFor lazily produces the committee's coordinated signing state
// for one digest; every node of the batch sees the same nonce and shares.
func (n *testNetwork) ecdsaSigningFor(digest []byte) ecdsaSigning {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := hex.EncodeToString(digest)
	if signing, ok := n.ecdsaByHash[key]; ok {
		return signing
	}
	bigR, shares, err := n.committee.EcdsaSignShares(digest)
	require.NoError(n.t, err)
	signing := ecdsaSigning{bigR: bigR, shares: shares}
	n.ecdsaByHash[key] = signing
	return signing
}

func (n *testNetwork) handlePkpSign(idx int, w http.ResponseWriter, body map[string]any) {
	if !n.requireSessionSig(idx, w, body) {
		return
	}
	toSign, _ := body["toSign"].(string)
	digest, err := hex.DecodeString(toSign)
	if err != nil || len(digest) != 32 {
		http.Error(w, `{"error":"bad toSign"}`, http.StatusBadRequest)
		return
	}
	signing := n.ecdsaSigningFor(digest)
	n.writeJSON(w, combiner.NodeShare{
		Success: true,
		SignedData: map[string]combiner.SignedDataShare{
			"pkp-sig": {
				SigType:        combiner.CurveTypeK256,
				DataSigned:     toSign,
				SignatureShare: signing.shares[idx].Share,
				ShareIndex:     signing.shares[idx].ShareIndex,
				BigR:           signing.bigR,
				PublicKey:      n.committee.EcdsaPublicKeyHex,
			},
		},
	})
}

func (n *testNetwork) handleEncryptionSign(idx int, w http.ResponseWriter, body map[string]any) {
	if _, ok := body["authSig"]; !ok {
		http.Error(w, `{"error":"missing authSig"}`, http.StatusUnauthorized)
		return
	}
	encoded, err := json.Marshal(body["accessControlConditions"])
	if err != nil {
		http.Error(w, `{"error":"bad conditions"}`, http.StatusBadRequest)
		return
	}
	var conditions []AccessControlCondition
	if err := json.Unmarshal(encoded, &conditions); err != nil || len(conditions) == 0 {
		http.Error(w, `{"error":"bad conditions"}`, http.StatusBadRequest)
		return
	}
	conditionSet := ConditionSet{AccessControlConditions: conditions}
	hashOfConditions, err := conditionSet.Hash()
	if err != nil {
		http.Error(w, `{"error":"unhashable conditions"}`, http.StatusBadRequest)
		return
	}
	dataHash, _ := body["dataToEncryptHash"].(string)
	identity := IdentityParam(hashOfConditions, dataHash)

	share, err := n.committee.SignShare(idx, identity)
	require.NoError(n.t, err)
	n.writeJSON(w, combiner.NodeShare{
		Success:        true,
		SignatureShare: share.Share,
		ShareIndex:     share.ShareIndex,
		CurveType:      combiner.CurveTypeBLS,
		DataSigned:     hex.EncodeToString(identity),
	})
}

func (n *testNetwork) handleSignSessionKey(idx int, w http.ResponseWriter, body map[string]any) {
	siweText, _ := body["siweMessage"].(string)
	if siweText == "" {
		http.Error(w, `{"error":"missing siweMessage"}`, http.StatusBadRequest)
		return
	}
	authMethods, _ := body["authMethods"].([]any)
	if len(authMethods) == 0 {
		http.Error(w, `{"error":"missing authMethods"}`, http.StatusUnauthorized)
		return
	}
	share, err := n.committee.SignShare(idx, []byte(siweText))
	require.NoError(n.t, err)
	n.writeJSON(w, combiner.NodeShare{
		Success:        true,
		SignatureShare: share.Share,
		ShareIndex:     share.ShareIndex,
		CurveType:      combiner.CurveTypeBLS,
		DataSigned:     hex.EncodeToString([]byte(siweText)),
		SiweMessage:    siweText,
	})
}

func (n *testNetwork) handleSigningAcc(idx int, w http.ResponseWriter, body map[string]any) {
	if _, ok := body["authSig"]; !ok {
		http.Error(w, `{"error":"missing authSig"}`, http.StatusUnauthorized)
		return
	}
	unsignedJwt, _ := body["unsignedJwt"].(string)
	if unsignedJwt == "" {
		http.Error(w, `{"error":"missing unsignedJwt"}`, http.StatusBadRequest)
		return
	}
	share, err := n.committee.SignShare(idx, []byte(unsignedJwt))
	require.NoError(n.t, err)
	n.writeJSON(w, combiner.NodeShare{
		Success:        true,
		SignatureShare: share.Share,
		ShareIndex:     share.ShareIndex,
		CurveType:      combiner.CurveTypeBLS,
		DataSigned:     unsignedJwt,
		UnsignedJwt:    unsignedJwt,
	})
}

func (n *testNetwork) handleClaim(idx int, w http.ResponseWriter, body map[string]any) {
	authMethod, _ := body["authMethod"].(map[string]any)
	accessToken, _ := authMethod["accessToken"].(string)
	if accessToken == "" {
		http.Error(w, `{"error":"missing auth method"}`, http.StatusUnauthorized)
		return
	}
	derivedKeyId := thresholdCrypto.Sha256Hex([]byte(accessToken))
	digest := ethcrypto.Keccak256([]byte(derivedKeyId))
	sig, err := ethcrypto.Sign(digest, n.nodeKeys[idx])
	require.NoError(n.t, err)
	n.writeJSON(w, map[string]any{
		"derivedKeyId": derivedKeyId,
		"signature":    hex.EncodeToString(sig),
	})
}

func (n *testNetwork) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(n.t, json.NewEncoder(w).Encode(value))
}
