package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// The draft of a user operation is assembled in a fixed order: base fields,
// then gas limits and fees, then paymaster fields, then the signature. Each
// stage below returns the next stage's type, so a skipped stage is a compile
// error rather than a silent zero-valued field on chain.

// OpBuilder holds the base fields of a draft operation.
type OpBuilder struct {
	op UserOperation
}

func NewOpBuilder(
	sender common.Address,
	nonce *big.Int,
	initCode []byte,
	callData []byte,
) *OpBuilder {
	return &OpBuilder{op: UserOperation{
		Sender:   sender,
		Nonce:    nonce,
		InitCode: initCode,
		CallData: callData,
	}}
}

// WithGas sets gas limits and fee fields, advancing to the paymaster stage.
func (b *OpBuilder) WithGas(
	callGasLimit *big.Int,
	verificationGasLimit *big.Int,
	preVerificationGas *big.Int,
	maxFeePerGas *big.Int,
	maxPriorityFeePerGas *big.Int,
) *GasedOpBuilder {
	op := b.op
	op.CallGasLimit = callGasLimit
	op.VerificationGasLimit = verificationGasLimit
	op.PreVerificationGas = preVerificationGas
	op.MaxFeePerGas = maxFeePerGas
	op.MaxPriorityFeePerGas = maxPriorityFeePerGas
	return &GasedOpBuilder{op: op}
}

// GasedOpBuilder is a draft with gas and fee fields populated.
type GasedOpBuilder struct {
	op UserOperation
}

// WithPaymaster attaches paymaster fields (stub fields during estimation,
// real fields before signing).
func (b *GasedOpBuilder) WithPaymaster(
	paymaster common.Address,
	verificationGasLimit *big.Int,
	postOpGasLimit *big.Int,
	data []byte,
) *SponsoredOpBuilder {
	op := b.op
	op.Paymaster = paymaster
	op.PaymasterVerificationGasLimit = verificationGasLimit
	op.PaymasterPostOpGasLimit = postOpGasLimit
	op.PaymasterData = data
	return &SponsoredOpBuilder{op: op}
}

// WithoutPaymaster advances past the paymaster stage for operations paying
// gas in the native currency.
func (b *GasedOpBuilder) WithoutPaymaster() *SponsoredOpBuilder {
	return &SponsoredOpBuilder{op: b.op}
}

// SponsoredOpBuilder is a draft awaiting only its signature.
type SponsoredOpBuilder struct {
	op UserOperation
}

// Draft returns the unsigned operation, used to compute the hash to sign.
func (b *SponsoredOpBuilder) Draft() UserOperation {
	return b.op
}

// Signed finalizes the draft with the owner signature.
func (b *SponsoredOpBuilder) Signed(signature []byte) *UserOperation {
	op := b.op
	op.Signature = signature
	return &op
}
