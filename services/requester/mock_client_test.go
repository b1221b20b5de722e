package requester

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// mockChainClient satisfies ChainClient with per-call hooks. Unset hooks
// return zero values.
type mockChainClient struct {
	codeAt             func(common.Address) ([]byte, error)
	callContract       func(ethereum.CallMsg) ([]byte, error)
	pendingNonceAt     func(common.Address) (uint64, error)
	suggestGasPrice    func() (*big.Int, error)
	suggestGasTipCap   func() (*big.Int, error)
	sendTransaction    func(*types.Transaction) error
	transactionReceipt func(common.Hash) (*types.Receipt, error)
}

func (m *mockChainClient) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	if m.codeAt == nil {
		return nil, nil
	}
	return m.codeAt(account)
}

func (m *mockChainClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if m.callContract == nil {
		return nil, nil
	}
	return m.callContract(msg)
}

func (m *mockChainClient) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	if m.pendingNonceAt == nil {
		return 0, nil
	}
	return m.pendingNonceAt(account)
}

func (m *mockChainClient) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	if m.suggestGasPrice == nil {
		return big.NewInt(0), nil
	}
	return m.suggestGasPrice()
}

func (m *mockChainClient) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	if m.suggestGasTipCap == nil {
		return big.NewInt(0), nil
	}
	return m.suggestGasTipCap()
}

func (m *mockChainClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if m.sendTransaction == nil {
		return nil
	}
	return m.sendTransaction(tx)
}

func (m *mockChainClient) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	if m.transactionReceipt == nil {
		return nil, ethereum.NotFound
	}
	return m.transactionReceipt(txHash)
}

var _ ChainClient = (*mockChainClient)(nil)
