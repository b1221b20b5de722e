package requester

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/Straits-AI/straits-agents-sub001/config"
	"github.com/Straits-AI/straits-agents-sub001/models"
	"github.com/Straits-AI/straits-agents-sub001/storage"
)

const mappingKeyPrefix = "op:"

// ReceiptResolver maps operation hashes to the settlement transactions that
// carried them, and translates mined transaction receipts into operation
// receipts. Mappings expire after the configured TTL; expired mappings mean
// the operation is reported as not found even if it was in fact mined.
type ReceiptResolver struct {
	logger  zerolog.Logger
	store   storage.Store
	clients *ClientPool
	ttl     time.Duration
}

func NewReceiptResolver(
	logger zerolog.Logger,
	store storage.Store,
	clients *ClientPool,
	ttl time.Duration,
) *ReceiptResolver {
	return &ReceiptResolver{
		logger:  logger.With().Str("component", "receipts").Logger(),
		store:   store,
		clients: clients,
		ttl:     ttl,
	}
}

// RecordMapping stores the operation hash to settlement transaction hash
// mapping with the resolver's TTL.
func (r *ReceiptResolver) RecordMapping(
	ctx context.Context,
	opHash common.Hash,
	txHash common.Hash,
) error {
	err := r.store.Set(ctx, mappingKey(opHash), txHash.Bytes(), r.ttl)
	if err != nil {
		return fmt.Errorf("failed to record operation mapping: %w", err)
	}

	r.logger.Debug().
		Str("op-hash", opHash.Hex()).
		Str("tx-hash", txHash.Hex()).
		Msg("operation mapping recorded")

	return nil
}

// TransactionFor returns the settlement transaction hash recorded for the
// operation hash, or storage.ErrNotFound when no live mapping exists.
func (r *ReceiptResolver) TransactionFor(
	ctx context.Context,
	opHash common.Hash,
) (common.Hash, error) {
	raw, err := r.store.Get(ctx, mappingKey(opHash))
	if err != nil {
		return common.Hash{}, err
	}

	return common.BytesToHash(raw), nil
}

// GetReceipt resolves the operation receipt for the given operation hash. A
// nil receipt with a nil error means the operation is known but the
// settlement transaction is not yet mined. storage.ErrNotFound is returned
// when no mapping exists.
func (r *ReceiptResolver) GetReceipt(
	ctx context.Context,
	chain config.ChainProfile,
	opHash common.Hash,
) (*models.OperationReceipt, error) {
	txHash, err := r.TransactionFor(ctx, opHash)
	if err != nil {
		return nil, err
	}

	client, err := r.clients.Get(chain.ChainID)
	if err != nil {
		return nil, err
	}

	txReceipt, err := client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch transaction receipt: %w", err)
	}

	gasUsed := new(big.Int).SetUint64(txReceipt.GasUsed)
	gasPrice := txReceipt.EffectiveGasPrice
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}

	receipt := models.NewOperationReceipt(
		opHash,
		txHash,
		chain.EntryPoint,
		txReceipt.BlockNumber.Uint64(),
		txReceipt.Status == types.ReceiptStatusSuccessful,
		gasUsed,
		new(big.Int).Mul(gasUsed, gasPrice),
		gasPrice,
	)

	// The transaction-level figures cover the whole bundle. When the
	// EntryPoint emitted the operation event, its per-operation figures
	// are authoritative for success and gas accounting.
	for _, log := range txReceipt.Logs {
		event, err := ParseOperationEvent(log)
		if err != nil {
			continue
		}
		if event.OperationHash != opHash {
			continue
		}
		receipt.Sender = event.Sender
		receipt.Success = event.Success
		receipt.ActualGasUsed = (*hexutil.Big)(event.ActualGasUsed)
		receipt.ActualGasCost = (*hexutil.Big)(event.ActualGasCost)
		break
	}

	return receipt, nil
}

func mappingKey(opHash common.Hash) string {
	return mappingKeyPrefix + opHash.Hex()
}
