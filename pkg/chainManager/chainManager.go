// Package chainManager provides the chain head source for session signing.
// The latest Ethereum blockhash is used as the SIWE nonce of every wallet
// delegation; this package manages the RPC connection and caches the head for
// a short window so bursts of session-signature calls do not hammer the RPC.
package chainManager

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	// ErrNoBlockhash is returned when the chain head cannot be determined
	ErrNoBlockhash = errors.New("no blockhash available")
)

// IChainManager defines the interface for obtaining the chain head used as a
// session nonce. Only this narrow capability is handed to the session
// machinery; nothing there holds the full RPC client.
type IChainManager interface {
	// LatestBlockhash returns the hash of the most recent block as 0x-hex
	LatestBlockhash(ctx context.Context) (string, error)
}

// ChainConfig holds the configuration for connecting to the nonce chain.
type ChainConfig struct {
	// RPCUrl is the URL endpoint for connecting to the blockchain RPC
	RPCUrl string
	// CacheTTL bounds how long a fetched head is reused; zero disables caching
	CacheTTL time.Duration
}

// EthClientInterface is the subset of ethclient.Client this package needs.
// The indirection allows tests to substitute a fake head source.
type EthClientInterface interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// ChainManager implements IChainManager over an Ethereum RPC connection.
// This implementation is thread-safe; concurrent callers share one cached
// head.
type ChainManager struct {
	config *ChainConfig
	client EthClientInterface

	mu        sync.Mutex
	blockhash string
	fetchedAt time.Time
}

// NewChainManager creates a ChainManager connected to the configured RPC URL.
//
// Parameters:
//   - cfg: The chain configuration containing RPC URL and cache TTL
//
// Returns:
//   - *ChainManager: A new chain manager instance
//   - error: An error if the RPC connection cannot be established
func NewChainManager(cfg *ChainConfig) (*ChainManager, error) {
	client, err := ethclient.Dial(cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC URL %s: %w", cfg.RPCUrl, err)
	}
	return NewChainManagerWithClient(cfg, client), nil
}

// NewChainManagerWithClient creates a ChainManager around an existing client.
func NewChainManagerWithClient(cfg *ChainConfig, client EthClientInterface) *ChainManager {
	return &ChainManager{
		config: cfg,
		client: client,
	}
}

// LatestBlockhash returns the hash of the chain head, reusing a cached value
// inside the configured TTL. This method is thread-safe.
func (cm *ChainManager) LatestBlockhash(ctx context.Context) (string, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.blockhash != "" && cm.config.CacheTTL > 0 && time.Since(cm.fetchedAt) < cm.config.CacheTTL {
		return cm.blockhash, nil
	}

	header, err := cm.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch chain head: %w", err)
	}
	if header == nil {
		return "", ErrNoBlockhash
	}

	cm.blockhash = header.Hash().Hex()
	cm.fetchedAt = time.Now()
	return cm.blockhash, nil
}

// StaticChainSource implements IChainManager with a fixed blockhash. It backs
// deployments where the handshake already supplies the network's view of the
// head, and tests.
type StaticChainSource struct {
	Blockhash string
}

func (s *StaticChainSource) LatestBlockhash(ctx context.Context) (string, error) {
	if s.Blockhash == "" {
		return "", ErrNoBlockhash
	}
	return s.Blockhash, nil
}
