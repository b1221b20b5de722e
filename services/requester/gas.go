package requester

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Static gas limits returned by eth_estimateUserOperationGas. Dynamic
// simulation is deliberately avoided: the limits are tuned generously so
// that nearly all operations fit, at the cost of overpaying. Unspent gas is
// refunded by the EntryPoint, so the overshoot only affects the required
// allowance, not the collected cost.
const (
	staticCallGasLimit                  = 300_000
	staticVerificationGasLimit          = 600_000
	staticPreVerificationGas            = 60_000
	staticPaymasterVerificationGasLimit = 200_000
	staticPaymasterPostOpGasLimit       = 120_000

	// broadcast gas on top of the operation's own limits, covering the
	// handleOps loop and calldata costs
	handleOpsOverhead = 100_000
)

// gasFeeBufferPercent is applied to both the priority fee and the max fee
// read from the network, reducing stuck-transaction risk if conditions
// shift between estimation and inclusion.
const gasFeeBufferPercent = 20

// GasEstimate is the static gas-limit object served to callers.
type GasEstimate struct {
	CallGasLimit                  hexutil.Uint64 `json:"callGasLimit"`
	VerificationGasLimit          hexutil.Uint64 `json:"verificationGasLimit"`
	PreVerificationGas            hexutil.Uint64 `json:"preVerificationGas"`
	PaymasterVerificationGasLimit hexutil.Uint64 `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       hexutil.Uint64 `json:"paymasterPostOpGasLimit"`
}

// StaticGasEstimate returns the fixed conservative limits.
func StaticGasEstimate() GasEstimate {
	return GasEstimate{
		CallGasLimit:                  staticCallGasLimit,
		VerificationGasLimit:          staticVerificationGasLimit,
		PreVerificationGas:            staticPreVerificationGas,
		PaymasterVerificationGasLimit: staticPaymasterVerificationGasLimit,
		PaymasterPostOpGasLimit:       staticPaymasterPostOpGasLimit,
	}
}

// TotalGas sums every limit in the estimate, the figure fee quotes and
// approval sizing are based on.
func (e GasEstimate) TotalGas() *big.Int {
	total := uint64(e.CallGasLimit) +
		uint64(e.VerificationGasLimit) +
		uint64(e.PreVerificationGas) +
		uint64(e.PaymasterVerificationGasLimit) +
		uint64(e.PaymasterPostOpGasLimit)
	return new(big.Int).SetUint64(total)
}

// GasFees carries the two EIP-1559 fee fields used in drafts and in the
// settlement transaction.
type GasFees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// SuggestGasFees reads current network fee levels and applies the safety
// buffer to both fields.
func SuggestGasFees(ctx context.Context, client ChainClient) (*GasFees, error) {
	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	return &GasFees{
		MaxFeePerGas:         buffered(gasPrice),
		MaxPriorityFeePerGas: buffered(tip),
	}, nil
}

func buffered(fee *big.Int) *big.Int {
	b := new(big.Int).Mul(fee, big.NewInt(100+gasFeeBufferPercent))
	return b.Div(b, big.NewInt(100))
}
