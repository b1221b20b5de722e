package requester

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/Straits-AI/straits-agents-sub001/config"
	"github.com/Straits-AI/straits-agents-sub001/metrics"
	"github.com/Straits-AI/straits-agents-sub001/models"
	errs "github.com/Straits-AI/straits-agents-sub001/models/errors"
)

const (
	minedPollInterval = time.Second
	minedPollTimeout  = 2 * time.Minute

	// maxBundleGasLimit bounds the settlement transaction's gas limit. A
	// bundle past this can never fit a block on the supported chains, so
	// it is rejected before the relayer pays for a doomed broadcast.
	maxBundleGasLimit = 30_000_000
)

// Bundler submits packed operations straight to the EntryPoint with the
// funded relayer key. This is the self-bundling path: the process serving
// requests is also the one originating the settlement transaction, there is
// no third-party bundler anywhere.
type Bundler struct {
	logger      zerolog.Logger
	clients     *ClientPool
	relayer     *Relayer
	beneficiary common.Address
	collector   metrics.Collector
}

func NewBundler(
	logger zerolog.Logger,
	clients *ClientPool,
	relayer *Relayer,
	beneficiary common.Address,
	collector metrics.Collector,
) *Bundler {
	return &Bundler{
		logger:      logger.With().Str("component", "bundler").Logger(),
		clients:     clients,
		relayer:     relayer,
		beneficiary: beneficiary,
		collector:   collector,
	}
}

// Submit broadcasts handleOps([op], beneficiary) from the relayer account
// and returns the settlement transaction hash. It returns once the
// transaction is broadcast; inclusion is observed separately through
// receipt polling.
func (b *Bundler) Submit(
	ctx context.Context,
	op *models.PackedUserOperation,
	chain config.ChainProfile,
) (common.Hash, error) {
	if b.relayer == nil {
		return common.Hash{}, errs.ErrRelayerNotConfigured
	}

	client, err := b.clients.Get(chain.ChainID)
	if err != nil {
		return common.Hash{}, err
	}

	calldata, err := EncodeHandleOps([]*models.PackedUserOperation{op}, b.beneficiary)
	if err != nil {
		return common.Hash{}, err
	}

	gasLimit, err := bundleGasLimit(op)
	if err != nil {
		b.collector.OperationDropped(chain.ChainID)
		return common.Hash{}, err
	}

	fees, err := SuggestGasFees(ctx, client)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch gas fees: %w", err)
	}

	txHash, err := b.relayer.Broadcast(
		ctx,
		client,
		chain.ChainID,
		chain.EntryPoint,
		calldata,
		gasLimit,
		fees,
	)
	if err != nil {
		b.collector.OperationDropped(chain.ChainID)
		return common.Hash{}, err
	}

	b.collector.OperationSubmitted(chain.ChainID)
	if len(op.PaymasterAndData) > 0 {
		b.collector.OperationSponsored(chain.ChainID)
	}
	b.logger.Info().
		Uint64("chain-id", chain.ChainID).
		Str("sender", op.Sender.Hex()).
		Str("tx-hash", txHash.Hex()).
		Msg("user operation submitted to EntryPoint")

	return txHash, nil
}

// bundleGasLimit sums the operation's own limits plus the handleOps
// overhead. The packed fields are authoritative here, not the draft. The
// individual fields each fit 128 bits, so the sum must be range-checked:
// a truncated limit would broadcast a transaction that cannot execute.
func bundleGasLimit(op *models.PackedUserOperation) (uint64, error) {
	verificationGas, callGas := models.UnpackUint128Pair(op.AccountGasLimits)

	total := new(big.Int).Add(verificationGas, callGas)
	if op.PreVerificationGas != nil {
		total.Add(total, op.PreVerificationGas)
	}
	if _, pmVerification, pmPostOp, _, err := models.UnpackPaymasterAndData(op.PaymasterAndData); err == nil {
		if pmVerification != nil {
			total.Add(total, pmVerification)
		}
		if pmPostOp != nil {
			total.Add(total, pmPostOp)
		}
	}
	total.Add(total, big.NewInt(handleOpsOverhead))

	if !total.IsUint64() || total.Uint64() > maxBundleGasLimit {
		return 0, fmt.Errorf("%w: bundle gas limit %s exceeds maximum %d",
			errs.ErrInvalid, total, maxBundleGasLimit)
	}

	return total.Uint64(), nil
}

// OperationHash reads the canonical operation hash from the EntryPoint.
// The on-chain value binds the EntryPoint address and chain id; computing
// it locally risks drifting from on-chain semantics, so it never is.
func (b *Bundler) OperationHash(
	ctx context.Context,
	op *models.PackedUserOperation,
	chain config.ChainProfile,
) (common.Hash, error) {
	client, err := b.clients.Get(chain.ChainID)
	if err != nil {
		return common.Hash{}, err
	}

	calldata, err := EncodeGetUserOpHash(op)
	if err != nil {
		return common.Hash{}, err
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &chain.EntryPoint,
		Data: calldata,
	}, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read operation hash: %w", err)
	}
	if len(result) != common.HashLength {
		return common.Hash{}, fmt.Errorf("unexpected getUserOpHash result length: %d", len(result))
	}

	return common.BytesToHash(result), nil
}

// AccountNonce reads the sender's next operation nonce from the EntryPoint
// (nonce key zero).
func (b *Bundler) AccountNonce(
	ctx context.Context,
	chain config.ChainProfile,
	sender common.Address,
) (*big.Int, error) {
	client, err := b.clients.Get(chain.ChainID)
	if err != nil {
		return nil, err
	}

	calldata, err := EncodeGetNonce(sender)
	if err != nil {
		return nil, err
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &chain.EntryPoint,
		Data: calldata,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read account nonce: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

// WaitMined polls for the settlement transaction receipt until it is
// included or the timeout elapses.
func (b *Bundler) WaitMined(
	ctx context.Context,
	chainID uint64,
	txHash common.Hash,
) (*types.Receipt, error) {
	client, err := b.clients.Get(chainID)
	if err != nil {
		return nil, err
	}

	var receipt *types.Receipt
	backoff := retry.WithMaxDuration(minedPollTimeout, retry.NewConstant(minedPollInterval))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := client.TransactionReceipt(ctx, txHash)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("transaction %s not mined: %w", txHash, err))
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return receipt, nil
}

// EstimateGas returns the static conservative limits.
func (b *Bundler) EstimateGas() GasEstimate {
	return StaticGasEstimate()
}
