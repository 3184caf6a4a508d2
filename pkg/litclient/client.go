// Package litclient implements the client-side coordinator for the threshold
// signing network. A LitNodeClient connects to a committee of nodes, obtains
// capability-scoped session signatures, and drives threshold signing,
// sandboxed action execution, identity-based encryption and key claiming
// through the connected committee.
package litclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lit-protocol/lit-go-sdk/pkg/auth"
	"github.com/lit-protocol/lit-go-sdk/pkg/chainManager"
	"github.com/lit-protocol/lit-go-sdk/pkg/combiner"
	"github.com/lit-protocol/lit-go-sdk/pkg/dispatcher"
	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
	"github.com/lit-protocol/lit-go-sdk/pkg/sessionKeys"
	"github.com/lit-protocol/lit-go-sdk/pkg/storage"
	"github.com/lit-protocol/lit-go-sdk/pkg/thresholdCrypto"
	"github.com/lit-protocol/lit-go-sdk/pkg/util"
	"go.uber.org/zap"
)

// Node HTTP endpoints.
const (
	endpointHandshake      = "/web/handshake"
	endpointExecute        = "/web/execute"
	endpointPkpSign        = "/web/pkp/sign"
	endpointPkpClaim       = "/web/pkp/claim"
	endpointSigningAcc     = "/web/signing/access_control_condition"
	endpointEncryptionSign = "/web/encryption/sign"
	endpointSignSessionKey = "/web/sign_session_key"
)

// ClientState is the connection lifecycle state.
type ClientState int

const (
	StateUnconnected ClientState = iota
	StateConnecting
	StateReady
)

// ConnectionInfo is the snapshot the handshake establishes. It is immutable
// once published; reconnecting replaces the whole snapshot.
type ConnectionInfo struct {
	SubnetPubKey       string
	NetworkPubKeySet   string
	HDRootPubkeys      []string
	MinNodeCount       int
	CurrentEpochNumber int
	LatestBlockhash    string
	ConnectedNodes     []string
}

// LitNodeClientConfig holds the configuration for a LitNodeClient.
type LitNodeClientConfig struct {
	// BootstrapUrls are the node URLs to connect to
	BootstrapUrls []string
	// Network names the subnet, forwarded to mint relays
	Network string
	// MinNodeCount overrides the handshake-provided quorum when > 0
	MinNodeCount int
	// RelayUrl is the default mint relay for claimed keys
	RelayUrl string
	// DefaultAuthCallback is the last-resort wallet signature source
	DefaultAuthCallback auth.AuthNeededCallback
	// Dispatch configures fan-out timeouts and retry tolerance
	Dispatch dispatcher.DispatcherConfig
	// Transport overrides the HTTP transport, mainly for tests
	Transport dispatcher.IHttpTransport
	// Suite overrides the threshold crypto suite
	Suite thresholdCrypto.IThresholdCrypto
}

// LitNodeClient coordinates all client-side operations against the network.
type LitNodeClient struct {
	config     *LitNodeClientConfig
	logger     *zap.Logger
	storage    storage.IPersistenceAdapter
	chain      chainManager.IChainManager
	dispatcher *dispatcher.Dispatcher
	combiner   *combiner.Combiner
	suite      thresholdCrypto.IThresholdCrypto
	sessions   sessionKeys.ISessionKeyStore

	mu    sync.RWMutex
	state ClientState
	conn  ConnectionInfo
}

// NewLitNodeClient creates a client in the Unconnected state.
//
// Parameters:
//   - cfg: The client configuration
//   - adapter: The persistence adapter backing the session slots
//   - chain: The chain head source used for SIWE nonces (may be nil when the
//     handshake blockhash should be used instead)
//   - logger: A zap logger
//
// Returns:
//   - *LitNodeClient: A new client instance
//   - error: An error if the configuration is invalid
func NewLitNodeClient(
	cfg *LitNodeClientConfig,
	adapter storage.IPersistenceAdapter,
	chain chainManager.IChainManager,
	logger *zap.Logger,
) (*LitNodeClient, error) {
	if len(cfg.BootstrapUrls) == 0 {
		return nil, literrors.New(literrors.KindParamsMissing, "no bootstrap node URLs configured")
	}
	if adapter == nil {
		adapter = storage.NewInMemoryAdapter()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = dispatcher.NewHttpTransport(&dispatcher.HttpTransportConfig{
			RequestTimeout: cfg.Dispatch.NodeRequestTimeout,
		}, logger)
	}
	suite := cfg.Suite
	if suite == nil {
		suite = thresholdCrypto.NewBls381Suite()
	}

	return &LitNodeClient{
		config:     cfg,
		logger:     logger,
		storage:    adapter,
		chain:      chain,
		dispatcher: dispatcher.NewDispatcher(&cfg.Dispatch, transport, logger),
		combiner:   combiner.NewCombiner(suite, logger),
		suite:      suite,
		sessions:   sessionKeys.NewStore(adapter, logger),
	}, nil
}

// handshakeResponse is one node's answer to /web/handshake.
type handshakeResponse struct {
	ServerPublicKey   string   `json:"serverPublicKey"`
	SubnetPublicKey   string   `json:"subnetPublicKey"`
	NetworkPublicKey  string   `json:"networkPublicKey"`
	NetworkPubKeySet  string   `json:"networkPublicKeySet"`
	HDRootPubkeys     []string `json:"hdRootPubkeys"`
	LatestBlockhash   string   `json:"latestBlockhash"`
	Epoch             int      `json:"epoch"`
	MinNodeCount      int      `json:"minNodeCount"`
}

// Connect handshakes with every bootstrap node and publishes the connection
// snapshot. The per-field values are decided by majority across the answering
// nodes, with ties broken lexicographically.
func (c *LitNodeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.mu.Unlock()
		return literrors.New(literrors.KindInvalidArgumentException, "connection already in progress")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	urls := c.config.BootstrapUrls
	quorum := c.config.MinNodeCount
	if quorum == 0 {
		quorum = defaultQuorum(len(urls))
	}

	requestId := dispatcher.NewRequestId()
	c.logger.Sugar().Infow("Connecting to network",
		zap.Int("nodes", len(urls)),
		zap.Int("quorum", quorum),
		zap.String("requestId", requestId),
	)

	result, err := c.dispatcher.FanOutAndCollect(ctx, urls, quorum, requestId,
		func(url string) (string, any, error) {
			return url + endpointHandshake, map[string]any{"clientPublicKey": "test"}, nil
		})
	if err != nil {
		c.setState(StateUnconnected)
		return fmt.Errorf("handshake failed: %w", err)
	}

	responses := make([]handshakeResponse, 0, len(result.Responses))
	connected := make([]string, 0, len(result.Responses))
	for _, resp := range result.Responses {
		var decoded handshakeResponse
		if err := json.Unmarshal(resp.Raw, &decoded); err != nil {
			c.logger.Sugar().Warnw("Dropping malformed handshake response",
				zap.String("url", resp.Url),
				zap.Error(err),
			)
			continue
		}
		responses = append(responses, decoded)
		connected = append(connected, resp.Url)
	}
	if len(responses) < quorum {
		c.setState(StateUnconnected)
		return literrors.New(literrors.KindNodeRequestFailed,
			"only %d parsable handshake responses, need %d", len(responses), quorum).WithRequestID(requestId)
	}

	subnetPubKey, _ := util.MostCommon(responses, func(r handshakeResponse) string { return r.SubnetPublicKey })
	networkSet, _ := util.MostCommon(responses, func(r handshakeResponse) string { return r.NetworkPubKeySet })
	blockhash, _ := util.MostCommon(responses, func(r handshakeResponse) string { return r.LatestBlockhash })
	epoch, _ := util.MostCommon(responses, func(r handshakeResponse) string { return fmt.Sprintf("%d", r.Epoch) })
	minCount, _ := util.MostCommon(responses, func(r handshakeResponse) string { return fmt.Sprintf("%d", r.MinNodeCount) })
	hdRoots, _ := util.MostCommon(responses, func(r handshakeResponse) string {
		encoded, _ := util.CanonicalJSON(r.HDRootPubkeys)
		return string(encoded)
	})

	minNodeCount := minCount.MinNodeCount
	if c.config.MinNodeCount > 0 {
		minNodeCount = c.config.MinNodeCount
	}
	if minNodeCount == 0 {
		minNodeCount = defaultQuorum(len(connected))
	}

	c.mu.Lock()
	c.conn = ConnectionInfo{
		SubnetPubKey:       subnetPubKey.SubnetPublicKey,
		NetworkPubKeySet:   networkSet.NetworkPubKeySet,
		HDRootPubkeys:      hdRoots.HDRootPubkeys,
		MinNodeCount:       minNodeCount,
		CurrentEpochNumber: epoch.Epoch,
		LatestBlockhash:    blockhash.LatestBlockhash,
		ConnectedNodes:     connected,
	}
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Sugar().Infow("Connected to network",
		zap.Int("connectedNodes", len(connected)),
		zap.Int("minNodeCount", minNodeCount),
		zap.Int("epoch", epoch.Epoch),
	)
	return nil
}

// Disconnect drops the connection snapshot and returns to Unconnected.
func (c *LitNodeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateUnconnected
	c.conn = ConnectionInfo{}
}

// Ready reports whether the client can serve requests.
func (c *LitNodeClient) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateReady
}

// Connection returns the current connection snapshot.
func (c *LitNodeClient) Connection() ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *LitNodeClient) setState(s ClientState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// requireReady returns the connection snapshot or the readiness error every
// operation raises before any network I/O.
func (c *LitNodeClient) requireReady() (ConnectionInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateReady {
		return ConnectionInfo{}, literrors.New(literrors.KindLitNodeClientNotReady,
			"client is not connected; call Connect first")
	}
	return c.conn, nil
}

// defaultQuorum is two thirds of the committee, rounded up.
func defaultQuorum(n int) int {
	q := (2*n + 2) / 3
	if q < 1 {
		q = 1
	}
	return q
}

// latestBlockhash resolves the SIWE nonce: the configured chain source wins,
// the handshake value is the fallback.
func (c *LitNodeClient) latestBlockhash(ctx context.Context, conn ConnectionInfo) (string, error) {
	if c.chain != nil {
		hash, err := c.chain.LatestBlockhash(ctx)
		if err == nil && hash != "" {
			return hash, nil
		}
		c.logger.Sugar().Warnw("Chain head source failed, falling back to handshake blockhash", zap.Error(err))
	}
	if conn.LatestBlockhash == "" {
		return "", literrors.New(literrors.KindInvalidEthBlockhash, "no latest blockhash available")
	}
	return conn.LatestBlockhash, nil
}
