package requester

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Straits-AI/straits-agents-sub001/models"
)

// entryPointABI covers the EntryPoint v0.7 surface this subsystem uses:
// handleOps for self-bundled submission, getUserOpHash for the canonical
// operation hash (the hash binds EntryPoint address and chain id, so it is
// always read from the contract and never recomputed locally), getNonce for
// account nonces, and the UserOperationEvent emitted per executed operation.
const entryPointABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "sender", "type": "address"},
					{"internalType": "uint256", "name": "nonce", "type": "uint256"},
					{"internalType": "bytes", "name": "initCode", "type": "bytes"},
					{"internalType": "bytes", "name": "callData", "type": "bytes"},
					{"internalType": "bytes32", "name": "accountGasLimits", "type": "bytes32"},
					{"internalType": "uint256", "name": "preVerificationGas", "type": "uint256"},
					{"internalType": "bytes32", "name": "gasFees", "type": "bytes32"},
					{"internalType": "bytes", "name": "paymasterAndData", "type": "bytes"},
					{"internalType": "bytes", "name": "signature", "type": "bytes"}
				],
				"internalType": "struct PackedUserOperation[]",
				"name": "ops",
				"type": "tuple[]"
			},
			{"internalType": "address payable", "name": "beneficiary", "type": "address"}
		],
		"name": "handleOps",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "sender", "type": "address"},
					{"internalType": "uint256", "name": "nonce", "type": "uint256"},
					{"internalType": "bytes", "name": "initCode", "type": "bytes"},
					{"internalType": "bytes", "name": "callData", "type": "bytes"},
					{"internalType": "bytes32", "name": "accountGasLimits", "type": "bytes32"},
					{"internalType": "uint256", "name": "preVerificationGas", "type": "uint256"},
					{"internalType": "bytes32", "name": "gasFees", "type": "bytes32"},
					{"internalType": "bytes", "name": "paymasterAndData", "type": "bytes"},
					{"internalType": "bytes", "name": "signature", "type": "bytes"}
				],
				"internalType": "struct PackedUserOperation",
				"name": "userOp",
				"type": "tuple"
			}
		],
		"name": "getUserOpHash",
		"outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "sender", "type": "address"},
			{"internalType": "uint192", "name": "key", "type": "uint192"}
		],
		"name": "getNonce",
		"outputs": [{"internalType": "uint256", "name": "nonce", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "userOpHash", "type": "bytes32"},
			{"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "paymaster", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "nonce", "type": "uint256"},
			{"indexed": false, "internalType": "bool", "name": "success", "type": "bool"},
			{"indexed": false, "internalType": "uint256", "name": "actualGasCost", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "actualGasUsed", "type": "uint256"}
		],
		"name": "UserOperationEvent",
		"type": "event"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "opIndex", "type": "uint256"},
			{"internalType": "string", "name": "reason", "type": "string"}
		],
		"name": "FailedOp",
		"type": "error"
	}
]`

var entryPointABIParsed abi.ABI

func init() {
	parsed, err := abi.JSON(bytes.NewReader([]byte(entryPointABI)))
	if err != nil {
		panic(fmt.Sprintf("failed to parse EntryPoint ABI: %v", err))
	}
	entryPointABIParsed = parsed
}

// EncodeHandleOps encodes the calldata for EntryPoint.handleOps with the
// given packed operations and beneficiary.
func EncodeHandleOps(ops []*models.PackedUserOperation, beneficiary common.Address) ([]byte, error) {
	values := make([]models.PackedUserOperation, len(ops))
	for i, op := range ops {
		values[i] = *op
	}

	data, err := entryPointABIParsed.Pack("handleOps", values, beneficiary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode handleOps: %w", err)
	}
	return data, nil
}

// EncodeGetUserOpHash encodes the calldata for EntryPoint.getUserOpHash.
func EncodeGetUserOpHash(op *models.PackedUserOperation) ([]byte, error) {
	data, err := entryPointABIParsed.Pack("getUserOpHash", *op)
	if err != nil {
		return nil, fmt.Errorf("failed to encode getUserOpHash: %w", err)
	}
	return data, nil
}

// EncodeGetNonce encodes the calldata for EntryPoint.getNonce with the
// default (zero) nonce key.
func EncodeGetNonce(sender common.Address) ([]byte, error) {
	data, err := entryPointABIParsed.Pack("getNonce", sender, big.NewInt(0))
	if err != nil {
		return nil, fmt.Errorf("failed to encode getNonce: %w", err)
	}
	return data, nil
}

// HandleOpsSelector returns the 4-byte function selector for handleOps.
func HandleOpsSelector() []byte {
	return entryPointABIParsed.Methods["handleOps"].ID
}

// UserOperationEventID is the topic identifying UserOperationEvent logs.
func UserOperationEventID() common.Hash {
	return entryPointABIParsed.Events["UserOperationEvent"].ID
}

// OperationEvent is the decoded UserOperationEvent for one operation.
type OperationEvent struct {
	OperationHash common.Hash
	Sender        common.Address
	Paymaster     common.Address
	Nonce         *big.Int
	Success       bool
	ActualGasCost *big.Int
	ActualGasUsed *big.Int
}

// ParseOperationEvent decodes a UserOperationEvent log. The caller is
// expected to have matched the log against UserOperationEventID already;
// a log with a different signature is rejected.
func ParseOperationEvent(log *types.Log) (*OperationEvent, error) {
	if len(log.Topics) != 4 || log.Topics[0] != UserOperationEventID() {
		return nil, fmt.Errorf("log is not a UserOperationEvent")
	}

	values, err := entryPointABIParsed.Events["UserOperationEvent"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack UserOperationEvent data: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected UserOperationEvent arity: %d", len(values))
	}

	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonce type %T", values[0])
	}
	success, ok := values[1].(bool)
	if !ok {
		return nil, fmt.Errorf("unexpected success type %T", values[1])
	}
	actualGasCost, ok := values[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected actualGasCost type %T", values[2])
	}
	actualGasUsed, ok := values[3].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected actualGasUsed type %T", values[3])
	}

	return &OperationEvent{
		OperationHash: log.Topics[1],
		Sender:        common.BytesToAddress(log.Topics[2].Bytes()),
		Paymaster:     common.BytesToAddress(log.Topics[3].Bytes()),
		Nonce:         nonce,
		Success:       success,
		ActualGasCost: actualGasCost,
		ActualGasUsed: actualGasUsed,
	}, nil
}
