package requester

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Straits-AI/straits-agents-sub001/config"
)

// ChainClient is the blockchain surface this subsystem consumes: contract
// reads, code checks, fee levels, broadcast and receipts. *ethclient.Client
// satisfies it; tests substitute a mock.
type ChainClient interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ ChainClient = (*ethclient.Client)(nil)

// ClientPool resolves a registered chain id to a connected ChainClient,
// dialing each chain's RPC endpoint on first use. The set of chains is
// closed by the registry, so the pool never grows beyond it.
type ClientPool struct {
	registry *config.ChainRegistry
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[uint64]ChainClient
}

func NewClientPool(registry *config.ChainRegistry, logger zerolog.Logger) *ClientPool {
	return &ClientPool{
		registry: registry,
		logger:   logger.With().Str("component", "client-pool").Logger(),
		clients:  make(map[uint64]ChainClient),
	}
}

// NewClientPoolWithClients seeds the pool with pre-built clients. Test hook.
func NewClientPoolWithClients(
	registry *config.ChainRegistry,
	logger zerolog.Logger,
	clients map[uint64]ChainClient,
) *ClientPool {
	pool := NewClientPool(registry, logger)
	for id, client := range clients {
		pool.clients[id] = client
	}
	return pool
}

// WarmUp dials every registered chain concurrently so the first request
// does not pay connection latency. Failures are returned but non-fatal,
// Get retries the dial lazily.
func (p *ClientPool) WarmUp(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	for _, chainID := range p.registry.ChainIDs() {
		chainID := chainID
		g.Go(func() error {
			_, err := p.Get(chainID)
			return err
		})
	}
	return g.Wait()
}

// Get returns the client for a registered chain, failing closed for
// unregistered ids before any dialing happens.
func (p *ClientPool) Get(chainID uint64) (ChainClient, error) {
	profile, err := p.registry.GetChain(chainID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[chainID]; ok {
		return client, nil
	}

	client, err := ethclient.Dial(profile.RPCEndpoint)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Uint64("chain-id", chainID).
		Str("endpoint", profile.RPCEndpoint).
		Msg("dialed chain RPC endpoint")

	p.clients[chainID] = client
	return client, nil
}
