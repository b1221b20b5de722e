package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// OperationReceipt is the uniform receipt shape returned once the settlement
// transaction of a user operation is mined. It is never returned in a
// partial or pending form, callers poll until the transaction is included.
type OperationReceipt struct {
	OperationHash     common.Hash    `json:"userOpHash"`
	TransactionHash   common.Hash    `json:"transactionHash"`
	EntryPoint        common.Address `json:"entryPoint"`
	Sender            common.Address `json:"sender,omitempty"`
	BlockNumber       hexutil.Uint64 `json:"blockNumber"`
	Success           bool           `json:"success"`
	ActualGasUsed     *hexutil.Big   `json:"actualGasUsed"`
	ActualGasCost     *hexutil.Big   `json:"actualGasCost"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
}

// NewOperationReceipt builds a receipt from mined transaction data. The
// actual gas figures default to the transaction-level values and are
// refined from the EntryPoint's UserOperationEvent when available.
func NewOperationReceipt(
	opHash common.Hash,
	txHash common.Hash,
	entryPoint common.Address,
	blockNumber uint64,
	success bool,
	gasUsed *big.Int,
	gasCost *big.Int,
	effectiveGasPrice *big.Int,
) *OperationReceipt {
	return &OperationReceipt{
		OperationHash:     opHash,
		TransactionHash:   txHash,
		EntryPoint:        entryPoint,
		BlockNumber:       hexutil.Uint64(blockNumber),
		Success:           success,
		ActualGasUsed:     (*hexutil.Big)(gasUsed),
		ActualGasCost:     (*hexutil.Big)(gasCost),
		EffectiveGasPrice: (*hexutil.Big)(effectiveGasPrice),
	}
}
