package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/Straits-AI/straits-agents-sub001/config"
	"github.com/Straits-AI/straits-agents-sub001/metrics"
	"github.com/Straits-AI/straits-agents-sub001/models"
	errs "github.com/Straits-AI/straits-agents-sub001/models/errors"
	"github.com/Straits-AI/straits-agents-sub001/services/requester"
	"github.com/Straits-AI/straits-agents-sub001/storage"
)

// BundlerAPI serves the conventional bundler methods. Each call is
// stateless: the chain profile is resolved per request and no state is
// held between dispatches beyond the shared store.
type BundlerAPI struct {
	logger    zerolog.Logger
	bundler   *requester.Bundler
	resolver  *requester.ReceiptResolver
	collector metrics.Collector
}

func NewBundlerAPI(
	logger zerolog.Logger,
	bundler *requester.Bundler,
	resolver *requester.ReceiptResolver,
	collector metrics.Collector,
) *BundlerAPI {
	return &BundlerAPI{
		logger:    logger.With().Str("component", "bundler-api").Logger(),
		bundler:   bundler,
		resolver:  resolver,
		collector: collector,
	}
}

// SendUserOperation validates, packs and self-bundles the caller's
// operation, returning the EntryPoint-derived operation hash. The caller
// identity has already been authenticated and counted against the quota by
// the dispatcher.
func (a *BundlerAPI) SendUserOperation(
	ctx context.Context,
	chain config.ChainProfile,
	args models.UserOperationArgs,
	entryPoint common.Address,
) (common.Hash, error) {
	l := a.logger.With().
		Str("endpoint", EthSendUserOperation).
		Uint64("chain-id", chain.ChainID).
		Str("sender", args.Sender.Hex()).
		Logger()

	if entryPoint != chain.EntryPoint {
		return common.Hash{}, errs.NewUnsupportedEntryPointError(entryPoint.Hex())
	}

	draft, err := args.ToUserOperation()
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %s", errs.ErrInvalid, err)
	}

	packed, err := draft.Pack()
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %s", errs.ErrInvalid, err)
	}

	opHash, err := a.bundler.OperationHash(ctx, packed, chain)
	if err != nil {
		return common.Hash{}, err
	}

	txHash, err := a.bundler.Submit(ctx, packed, chain)
	if err != nil {
		l.Error().Err(err).Msg("failed to submit user operation")
		return common.Hash{}, err
	}

	if err := a.resolver.RecordMapping(ctx, opHash, txHash); err != nil {
		l.Error().Err(err).Msg("failed to record operation mapping")
	}

	l.Info().
		Str("op-hash", opHash.Hex()).
		Str("tx-hash", txHash.Hex()).
		Msg("user operation accepted")

	return opHash, nil
}

// EstimateUserOperationGas returns the static conservative limits. No
// simulation is performed: the limits are tuned generously so most
// operations fit, at the cost of overpaying.
func (a *BundlerAPI) EstimateUserOperationGas(
	_ context.Context,
	_ config.ChainProfile,
) (requester.GasEstimate, error) {
	return a.bundler.EstimateGas(), nil
}

// GetUserOperationReceipt returns the mined operation receipt, or nil when
// the hash is unknown or its settlement transaction is not yet mined.
// Callers poll until a receipt appears or their mapping expires.
func (a *BundlerAPI) GetUserOperationReceipt(
	ctx context.Context,
	chain config.ChainProfile,
	opHash common.Hash,
) (*models.OperationReceipt, error) {
	receipt, err := a.resolver.GetReceipt(ctx, chain, opHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return receipt, nil
}

// GetUserOperationByHash returns the hash-to-transaction lookup, or nil
// when no live mapping exists.
func (a *BundlerAPI) GetUserOperationByHash(
	ctx context.Context,
	chain config.ChainProfile,
	opHash common.Hash,
) (*OperationLookup, error) {
	txHash, err := a.resolver.TransactionFor(ctx, opHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &OperationLookup{
		UserOperationHash: opHash.Hex(),
		TransactionHash:   txHash.Hex(),
		EntryPoint:        chain.EntryPoint.Hex(),
	}, nil
}

// SupportedEntryPoints returns the single deployed EntryPoint.
func (a *BundlerAPI) SupportedEntryPoints(
	_ context.Context,
	chain config.ChainProfile,
) ([]common.Address, error) {
	return []common.Address{chain.EntryPoint}, nil
}

// ChainID returns the selected chain id in hex.
func (a *BundlerAPI) ChainID(
	_ context.Context,
	chain config.ChainProfile,
) (hexutil.Uint64, error) {
	return hexutil.Uint64(chain.ChainID), nil
}
