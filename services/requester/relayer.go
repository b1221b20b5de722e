package requester

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// Relayer wraps the single funded operator key that originates every
// settlement transaction. Nonce sequences are independent per chain, so
// broadcasts are serialized per chain id rather than globally: concurrent
// submissions on one chain can never race on the same transaction nonce,
// while a slow broadcast on one chain does not stall the others. Each
// chain's tracked nonce is reconciled against the chain's pending nonce
// after any failed broadcast.
type Relayer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	logger  zerolog.Logger

	mu     sync.Mutex // guards the chains map only
	chains map[uint64]*relayerChain
}

// relayerChain holds the relayer's nonce sequence for one chain. Its lock
// is the single-writer serializer for the shared key on that chain.
type relayerChain struct {
	mu    sync.Mutex
	nonce uint64
	known bool
}

func NewRelayer(key *ecdsa.PrivateKey, logger zerolog.Logger) *Relayer {
	return &Relayer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		logger:  logger.With().Str("component", "relayer").Logger(),
		chains:  make(map[uint64]*relayerChain),
	}
}

func (r *Relayer) chain(chainID uint64) *relayerChain {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.chains[chainID]
	if !ok {
		c = &relayerChain{}
		r.chains[chainID] = c
	}
	return c
}

func (r *Relayer) Address() common.Address {
	return r.address
}

// Broadcast signs and sends one transaction from the relayer account. The
// chain's lock is held from nonce assignment through SendTransaction, so
// per chain the key has exactly one writer at a time.
func (r *Relayer) Broadcast(
	ctx context.Context,
	client ChainClient,
	chainID uint64,
	to common.Address,
	calldata []byte,
	gasLimit uint64,
	fees *GasFees,
) (common.Hash, error) {
	c := r.chain(chainID)
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce := c.nonce
	if !c.known {
		pending, err := client.PendingNonceAt(ctx, r.address)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to fetch relayer nonce: %w", err)
		}
		nonce = pending
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		To:        &to,
		Value:     big.NewInt(0),
		Gas:       gasLimit,
		GasFeeCap: fees.MaxFeePerGas,
		GasTipCap: fees.MaxPriorityFeePerGas,
		Data:      calldata,
	})

	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))
	signed, err := types.SignTx(tx, signer, r.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign settlement transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		// drop the cached nonce so the next submission reconciles
		// against the chain instead of reusing a possibly-burned value
		c.known = false
		return common.Hash{}, fmt.Errorf("failed to broadcast settlement transaction: %w", err)
	}

	c.nonce = nonce + 1
	c.known = true

	r.logger.Info().
		Uint64("chain-id", chainID).
		Uint64("nonce", nonce).
		Str("tx-hash", signed.Hash().Hex()).
		Msg("settlement transaction broadcast")

	return signed.Hash(), nil
}
