package account

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/Straits-AI/straits-agents-sub001/config"
	"github.com/Straits-AI/straits-agents-sub001/models"
	errs "github.com/Straits-AI/straits-agents-sub001/models/errors"
	"github.com/Straits-AI/straits-agents-sub001/services/requester"
)

// defaultExchangeRate converts a wei-denominated gas cost into stablecoin
// units (6 decimals). Tuned for chains whose native token trades near the
// stablecoin: 1e18 wei maps to 1e6 stablecoin units.
var defaultExchangeRate = big.NewRat(1, 1_000_000_000_000)

// Client drives a single owner-keyed smart account across every supported
// chain: it derives the account address, assembles and signs operations,
// submits them through the bundler and resolves their receipts.
type Client struct {
	logger       zerolog.Logger
	registry     *config.ChainRegistry
	clients      *requester.ClientPool
	bundler      *requester.Bundler
	resolver     *requester.ReceiptResolver
	sponsor      *requester.Sponsor
	ownerKey     *ecdsa.PrivateKey
	ownerAddress common.Address
	address      common.Address
	exchangeRate *big.Rat
}

func NewClient(
	logger zerolog.Logger,
	registry *config.ChainRegistry,
	clients *requester.ClientPool,
	bundler *requester.Bundler,
	resolver *requester.ReceiptResolver,
	sponsor *requester.Sponsor,
	ownerKey *ecdsa.PrivateKey,
) *Client {
	ownerAddress := crypto.PubkeyToAddress(ownerKey.PublicKey)
	return &Client{
		logger:       logger.With().Str("component", "account").Logger(),
		registry:     registry,
		clients:      clients,
		bundler:      bundler,
		resolver:     resolver,
		sponsor:      sponsor,
		ownerKey:     ownerKey,
		ownerAddress: ownerAddress,
		address:      DeriveAddress(ownerAddress),
		exchangeRate: defaultExchangeRate,
	}
}

// Address returns the smart account address, identical on every chain.
func (c *Client) Address() common.Address {
	return c.address
}

// IsDeployed reports whether the account contract exists on the chain yet.
// An undeployed account must carry init code with its next operation.
func (c *Client) IsDeployed(ctx context.Context, chainID uint64) (bool, error) {
	client, err := c.clients.Get(chainID)
	if err != nil {
		return false, err
	}

	code, err := client.CodeAt(ctx, c.address, nil)
	if err != nil {
		return false, fmt.Errorf("failed to check account code: %w", err)
	}

	return len(code) > 0, nil
}

// SendOperation assembles, signs and submits one operation carrying the
// given calls, waits for the settlement transaction to be mined and returns
// the uniform receipt. On chains with a paymaster the batch is prefixed
// with the allowance top-up and the operation is sponsor-signed.
func (c *Client) SendOperation(
	ctx context.Context,
	chainID uint64,
	calls []Call,
) (*models.OperationReceipt, error) {
	chain, err := c.registry.GetChain(chainID)
	if err != nil {
		return nil, err
	}

	client, err := c.clients.Get(chainID)
	if err != nil {
		return nil, err
	}

	deployed, err := c.IsDeployed(ctx, chainID)
	if err != nil {
		return nil, err
	}

	var initCode []byte
	if !deployed {
		if initCode, err = EncodeInitCode(c.ownerAddress); err != nil {
			return nil, err
		}
	}

	nonce, err := c.bundler.AccountNonce(ctx, chain, c.address)
	if err != nil {
		return nil, err
	}

	batch, err := BuildCalls(chain, calls)
	if err != nil {
		return nil, err
	}
	callData, err := EncodeExecuteBatch(batch)
	if err != nil {
		return nil, err
	}

	estimate := requester.StaticGasEstimate()
	fees, err := requester.SuggestGasFees(ctx, client)
	if err != nil {
		return nil, err
	}

	gased := models.NewOpBuilder(c.address, nonce, initCode, callData).
		WithGas(
			new(big.Int).SetUint64(uint64(estimate.CallGasLimit)),
			new(big.Int).SetUint64(uint64(estimate.VerificationGasLimit)),
			new(big.Int).SetUint64(uint64(estimate.PreVerificationGas)),
			fees.MaxFeePerGas,
			fees.MaxPriorityFeePerGas,
		)

	var sponsored *models.SponsoredOpBuilder
	if chain.HasPaymaster() {
		if err := c.checkPaymasterFunds(ctx, chain, estimate, fees); err != nil {
			return nil, err
		}

		fields, err := c.sponsor.RealFields(chain.Paymaster, c.address)
		if err != nil {
			return nil, err
		}
		sponsored = fields.Apply(gased)
	} else {
		sponsored = gased.WithoutPaymaster()
	}

	draft := sponsored.Draft()
	unsigned, err := draft.Pack()
	if err != nil {
		return nil, err
	}

	opHash, err := c.bundler.OperationHash(ctx, unsigned, chain)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(accounts.TextHash(opHash.Bytes()), c.ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign operation: %w", err)
	}

	packed, err := sponsored.Signed(signature).Pack()
	if err != nil {
		return nil, err
	}

	txHash, err := c.bundler.Submit(ctx, packed, chain)
	if err != nil {
		return nil, err
	}

	if err := c.resolver.RecordMapping(ctx, opHash, txHash); err != nil {
		c.logger.Error().Err(err).
			Str("op-hash", opHash.Hex()).
			Msg("failed to record operation mapping")
	}

	if _, err := c.bundler.WaitMined(ctx, chainID, txHash); err != nil {
		return nil, err
	}

	receipt, err := c.resolver.GetReceipt(ctx, chain, opHash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, fmt.Errorf("mined transaction %s has no retrievable receipt", txHash)
	}

	c.logger.Info().
		Uint64("chain-id", chainID).
		Str("op-hash", opHash.Hex()).
		Str("tx-hash", txHash.Hex()).
		Bool("success", receipt.Success).
		Msg("operation settled")

	return receipt, nil
}

// checkPaymasterFunds mirrors the paymaster's own validation: the account
// must hold at least the marked-up stablecoin quote, or validation reverts
// the whole operation on chain. Failing here saves a doomed broadcast.
func (c *Client) checkPaymasterFunds(
	ctx context.Context,
	chain config.ChainProfile,
	estimate requester.GasEstimate,
	fees *requester.GasFees,
) error {
	quote := requester.Quote(estimate.TotalGas(), fees.MaxFeePerGas, c.exchangeRate)

	balance, err := c.StablecoinBalance(ctx, chain.ChainID)
	if err != nil {
		return err
	}

	if balance.Cmp(quote.Cost) < 0 {
		c.logger.Warn().
			Uint64("chain-id", chain.ChainID).
			Str("balance", balance.String()).
			Str("quote", quote.Cost.String()).
			Msg("stablecoin balance below paymaster quote")
		return errs.ErrPaymasterRejected
	}

	return nil
}

// StablecoinBalance reads the account's balance of the chain's stablecoin.
func (c *Client) StablecoinBalance(ctx context.Context, chainID uint64) (*big.Int, error) {
	chain, err := c.registry.GetChain(chainID)
	if err != nil {
		return nil, err
	}

	client, err := c.clients.Get(chainID)
	if err != nil {
		return nil, err
	}

	calldata, err := EncodeBalanceOf(c.address)
	if err != nil {
		return nil, err
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &chain.Stablecoin,
		Data: calldata,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read stablecoin balance: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

// Transfer sends stablecoin from the smart account to the given address.
func (c *Client) Transfer(
	ctx context.Context,
	chainID uint64,
	to common.Address,
	amount *big.Int,
) (*models.OperationReceipt, error) {
	chain, err := c.registry.GetChain(chainID)
	if err != nil {
		return nil, err
	}

	calldata, err := EncodeTransfer(to, amount)
	if err != nil {
		return nil, err
	}

	return c.SendOperation(ctx, chainID, []Call{
		{To: chain.Stablecoin, Value: big.NewInt(0), Data: calldata},
	})
}

// Approve grants a stablecoin allowance from the smart account.
func (c *Client) Approve(
	ctx context.Context,
	chainID uint64,
	spender common.Address,
	amount *big.Int,
) (*models.OperationReceipt, error) {
	chain, err := c.registry.GetChain(chainID)
	if err != nil {
		return nil, err
	}

	calldata, err := EncodeApprove(spender, amount)
	if err != nil {
		return nil, err
	}

	return c.SendOperation(ctx, chainID, []Call{
		{To: chain.Stablecoin, Value: big.NewInt(0), Data: calldata},
	})
}

// Withdraw transfers stablecoin from the smart account back to the owner's
// externally-owned address.
func (c *Client) Withdraw(
	ctx context.Context,
	chainID uint64,
	amount *big.Int,
) (*models.OperationReceipt, error) {
	return c.Transfer(ctx, chainID, c.ownerAddress, amount)
}
