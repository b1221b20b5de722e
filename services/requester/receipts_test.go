package requester

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Straits-AI/straits-agents-sub001/config"
	"github.com/Straits-AI/straits-agents-sub001/storage"
	"github.com/Straits-AI/straits-agents-sub001/storage/memory"
)

func testResolver(t *testing.T, client ChainClient) (*ReceiptResolver, config.ChainProfile) {
	t.Helper()

	registry := config.NewChainRegistry(nil)
	chain, err := registry.GetChain(8453)
	require.NoError(t, err)

	pool := NewClientPoolWithClients(registry, zerolog.Nop(), map[uint64]ChainClient{
		8453: client,
	})

	resolver := NewReceiptResolver(zerolog.Nop(), memory.New(time.Hour), pool, time.Hour)
	return resolver, chain
}

func minedReceipt(status uint64) *types.Receipt {
	return &types.Receipt{
		Status:            status,
		BlockNumber:       big.NewInt(123),
		GasUsed:           450_000,
		EffectiveGasPrice: big.NewInt(2_000_000_000),
	}
}

func operationEventLog(opHash common.Hash, sender common.Address, success bool) *types.Log {
	data, err := entryPointABIParsed.Events["UserOperationEvent"].Inputs.NonIndexed().Pack(
		big.NewInt(7),
		success,
		big.NewInt(900_000_000_000_000),
		big.NewInt(420_000),
	)
	if err != nil {
		panic(err)
	}

	return &types.Log{
		Topics: []common.Hash{
			UserOperationEventID(),
			opHash,
			common.BytesToHash(sender.Bytes()),
			common.Hash{},
		},
		Data: data,
	}
}

func TestReceiptResolver(t *testing.T) {
	ctx := context.Background()
	opHash := common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	txHash := common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")
	sender := common.HexToAddress("0x3333333333333333333333333333333333333333")

	t.Run("unmapped hash is not found", func(t *testing.T) {
		resolver, chain := testResolver(t, &mockChainClient{})

		_, err := resolver.GetReceipt(ctx, chain, opHash)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("mapped but unmined yields no receipt", func(t *testing.T) {
		resolver, chain := testResolver(t, &mockChainClient{})
		require.NoError(t, resolver.RecordMapping(ctx, opHash, txHash))

		receipt, err := resolver.GetReceipt(ctx, chain, opHash)
		require.NoError(t, err)
		assert.Nil(t, receipt)
	})

	t.Run("mined success with matching event", func(t *testing.T) {
		mined := minedReceipt(types.ReceiptStatusSuccessful)
		mined.Logs = []*types.Log{operationEventLog(opHash, sender, true)}

		resolver, chain := testResolver(t, &mockChainClient{
			transactionReceipt: func(common.Hash) (*types.Receipt, error) {
				return mined, nil
			},
		})
		require.NoError(t, resolver.RecordMapping(ctx, opHash, txHash))

		receipt, err := resolver.GetReceipt(ctx, chain, opHash)
		require.NoError(t, err)
		require.NotNil(t, receipt)

		assert.True(t, receipt.Success)
		assert.Equal(t, opHash, receipt.OperationHash)
		assert.Equal(t, txHash, receipt.TransactionHash)
		assert.Equal(t, chain.EntryPoint, receipt.EntryPoint)
		assert.Equal(t, sender, receipt.Sender)
		// per-operation figures from the event override the bundle totals
		assert.Equal(t, big.NewInt(420_000), (*big.Int)(receipt.ActualGasUsed))
		assert.Equal(t, big.NewInt(900_000_000_000_000), (*big.Int)(receipt.ActualGasCost))
	})

	t.Run("mined without event keeps bundle figures", func(t *testing.T) {
		resolver, chain := testResolver(t, &mockChainClient{
			transactionReceipt: func(common.Hash) (*types.Receipt, error) {
				return minedReceipt(types.ReceiptStatusSuccessful), nil
			},
		})
		require.NoError(t, resolver.RecordMapping(ctx, opHash, txHash))

		receipt, err := resolver.GetReceipt(ctx, chain, opHash)
		require.NoError(t, err)
		require.NotNil(t, receipt)

		assert.True(t, receipt.Success)
		assert.Equal(t, big.NewInt(450_000), (*big.Int)(receipt.ActualGasUsed))
		expectedCost := new(big.Int).Mul(big.NewInt(450_000), big.NewInt(2_000_000_000))
		assert.Equal(t, expectedCost, (*big.Int)(receipt.ActualGasCost))
	})

	t.Run("mined revert reports failure", func(t *testing.T) {
		mined := minedReceipt(types.ReceiptStatusFailed)
		mined.Logs = []*types.Log{operationEventLog(opHash, sender, false)}

		resolver, chain := testResolver(t, &mockChainClient{
			transactionReceipt: func(common.Hash) (*types.Receipt, error) {
				return mined, nil
			},
		})
		require.NoError(t, resolver.RecordMapping(ctx, opHash, txHash))

		receipt, err := resolver.GetReceipt(ctx, chain, opHash)
		require.NoError(t, err)
		require.NotNil(t, receipt)
		assert.False(t, receipt.Success)
	})

	t.Run("transaction lookup round-trips", func(t *testing.T) {
		resolver, _ := testResolver(t, &mockChainClient{})
		require.NoError(t, resolver.RecordMapping(ctx, opHash, txHash))

		got, err := resolver.TransactionFor(ctx, opHash)
		require.NoError(t, err)
		assert.Equal(t, txHash, got)
	})
}
