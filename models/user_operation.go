package models

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// UserOperation is the draft form of an ERC-4337 user operation, the shape
// callers submit and the smart account client assembles. It is mutated in
// stages (base fields, gas, paymaster fields, signature) and packed exactly
// once into a PackedUserOperation.
// See: https://eips.ethereum.org/EIPS/eip-4337
type UserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	InitCode                      []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

// PackedUserOperation is the canonical encoded form the EntryPoint v0.7
// contract expects. Gas limit and fee pairs are concatenated into single
// 32-byte fields, paymaster fields into one bytes blob. Any field order or
// width deviation silently breaks on-chain validation, so this struct is
// produced only by (*UserOperation).Pack and never mutated afterwards.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// Pack derives the canonical packed representation of the draft.
//
// accountGasLimits = verificationGasLimit (high 128 bits) | callGasLimit (low 128 bits)
// gasFees          = maxPriorityFeePerGas (high 128 bits) | maxFeePerGas (low 128 bits)
// paymasterAndData = paymaster (20) ‖ pmVerificationGas (16) ‖ pmPostOpGas (16) ‖ data,
// or empty when no paymaster is set.
func (uo *UserOperation) Pack() (*PackedUserOperation, error) {
	accountGasLimits, err := packUint128Pair(uo.VerificationGasLimit, uo.CallGasLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to pack account gas limits: %w", err)
	}

	gasFees, err := packUint128Pair(uo.MaxPriorityFeePerGas, uo.MaxFeePerGas)
	if err != nil {
		return nil, fmt.Errorf("failed to pack gas fees: %w", err)
	}

	paymasterAndData, err := uo.packPaymasterAndData()
	if err != nil {
		return nil, err
	}

	return &PackedUserOperation{
		Sender:             uo.Sender,
		Nonce:              uo.Nonce,
		InitCode:           uo.InitCode,
		CallData:           uo.CallData,
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: uo.PreVerificationGas,
		GasFees:            gasFees,
		PaymasterAndData:   paymasterAndData,
		Signature:          uo.Signature,
	}, nil
}

func (uo *UserOperation) packPaymasterAndData() ([]byte, error) {
	if uo.Paymaster == (common.Address{}) {
		return nil, nil
	}

	verificationGas, err := uint128Bytes(uo.PaymasterVerificationGasLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to pack paymaster verification gas: %w", err)
	}
	postOpGas, err := uint128Bytes(uo.PaymasterPostOpGasLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to pack paymaster post-op gas: %w", err)
	}

	blob := make([]byte, 0, 52+len(uo.PaymasterData))
	blob = append(blob, uo.Paymaster.Bytes()...)
	blob = append(blob, verificationGas...)
	blob = append(blob, postOpGas...)
	blob = append(blob, uo.PaymasterData...)
	return blob, nil
}

// packUint128Pair concatenates two 128-bit values into a single bytes32,
// high value first. Values exceeding 128 bits are an error, never truncated.
func packUint128Pair(high, low *big.Int) ([32]byte, error) {
	var result [32]byte

	highBytes, err := uint128Bytes(high)
	if err != nil {
		return result, err
	}
	lowBytes, err := uint128Bytes(low)
	if err != nil {
		return result, err
	}

	copy(result[0:16], highBytes)
	copy(result[16:32], lowBytes)
	return result, nil
}

func uint128Bytes(v *big.Int) ([]byte, error) {
	b := make([]byte, 16)
	if v == nil {
		return b, nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s cannot be packed", v)
	}
	u, overflow := uint256.FromBig(v)
	if overflow || u.BitLen() > 128 {
		return nil, fmt.Errorf("value %s exceeds 128 bits", v)
	}
	v.FillBytes(b)
	return b, nil
}

// UnpackUint128Pair splits a packed bytes32 back into its (high, low)
// 128-bit halves. The inverse of packUint128Pair, used by receipt decoding
// and by packing round-trip tests.
func UnpackUint128Pair(packed [32]byte) (*big.Int, *big.Int) {
	high := new(big.Int).SetBytes(packed[0:16])
	low := new(big.Int).SetBytes(packed[16:32])
	return high, low
}

// UnpackPaymasterAndData splits a paymasterAndData blob into its parts.
// An empty blob means no paymaster.
func UnpackPaymasterAndData(blob []byte) (common.Address, *big.Int, *big.Int, []byte, error) {
	if len(blob) == 0 {
		return common.Address{}, nil, nil, nil, nil
	}
	if len(blob) < 52 {
		return common.Address{}, nil, nil, nil,
			fmt.Errorf("paymasterAndData too short: %d bytes", len(blob))
	}
	paymaster := common.BytesToAddress(blob[:20])
	verificationGas := new(big.Int).SetBytes(blob[20:36])
	postOpGas := new(big.Int).SetBytes(blob[36:52])
	return paymaster, verificationGas, postOpGas, blob[52:], nil
}

// UserOperationArgs is the JSON-RPC wire form of a draft operation, as
// accepted by eth_sendUserOperation.
type UserOperationArgs struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	InitCode                      *hexutil.Bytes  `json:"initCode,omitempty"`
	CallData                      *hexutil.Bytes  `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 *hexutil.Bytes  `json:"paymasterData,omitempty"`
	Signature                     *hexutil.Bytes  `json:"signature"`
}

// ToUserOperation validates the wire form and converts it to a draft.
func (args *UserOperationArgs) ToUserOperation() (*UserOperation, error) {
	uo := &UserOperation{
		Sender: args.Sender,
		Nonce:  big.NewInt(0),
	}

	if args.Nonce != nil {
		uo.Nonce = args.Nonce.ToInt()
	}
	if args.InitCode != nil {
		uo.InitCode = *args.InitCode
	}

	if args.CallData == nil {
		return nil, fmt.Errorf("callData is required")
	}
	uo.CallData = *args.CallData

	required := []struct {
		name  string
		value *hexutil.Big
		dst   **big.Int
	}{
		{"callGasLimit", args.CallGasLimit, &uo.CallGasLimit},
		{"verificationGasLimit", args.VerificationGasLimit, &uo.VerificationGasLimit},
		{"preVerificationGas", args.PreVerificationGas, &uo.PreVerificationGas},
		{"maxFeePerGas", args.MaxFeePerGas, &uo.MaxFeePerGas},
		{"maxPriorityFeePerGas", args.MaxPriorityFeePerGas, &uo.MaxPriorityFeePerGas},
	}
	for _, field := range required {
		if field.value == nil {
			return nil, fmt.Errorf("%s is required", field.name)
		}
		*field.dst = field.value.ToInt()
	}

	if args.Paymaster != nil {
		uo.Paymaster = *args.Paymaster
		if args.PaymasterVerificationGasLimit != nil {
			uo.PaymasterVerificationGasLimit = args.PaymasterVerificationGasLimit.ToInt()
		}
		if args.PaymasterPostOpGasLimit != nil {
			uo.PaymasterPostOpGasLimit = args.PaymasterPostOpGasLimit.ToInt()
		}
		if args.PaymasterData != nil {
			uo.PaymasterData = *args.PaymasterData
		}
	}

	if args.Signature == nil {
		return nil, fmt.Errorf("signature is required")
	}
	uo.Signature = *args.Signature

	return uo, nil
}
