package send

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Straits-AI/straits-agents-sub001/config"
	"github.com/Straits-AI/straits-agents-sub001/metrics"
	"github.com/Straits-AI/straits-agents-sub001/services/account"
	"github.com/Straits-AI/straits-agents-sub001/services/requester"
	"github.com/Straits-AI/straits-agents-sub001/storage/memory"
)

// Cmd sends stablecoin from the owner's smart account without going through
// a running gateway: it assembles, signs and self-bundles the operation
// locally with the same components the gateway uses.
var Cmd = &cobra.Command{
	Use:   "send",
	Short: "Sends stablecoin from the smart account",
	RunE: func(command *cobra.Command, _ []string) error {
		cfg := config.Default()
		if err := cfg.LoadEnv(envFile); err != nil {
			return fmt.Errorf("failed to load environment: %w", err)
		}
		if cfg.RelayerKey == nil {
			return fmt.Errorf("RELAYER_PRIVATE_KEY is required to settle the operation")
		}

		ownerHex := os.Getenv("OWNER_PRIVATE_KEY")
		if ownerHex == "" {
			return fmt.Errorf("OWNER_PRIVATE_KEY is required to sign the operation")
		}
		ownerKey, err := crypto.HexToECDSA(ownerHex)
		if err != nil {
			return fmt.Errorf("invalid owner private key: %w", err)
		}

		recipient := common.HexToAddress(to)
		if recipient == (common.Address{}) {
			return fmt.Errorf("invalid recipient address: %s", to)
		}
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok || value.Sign() <= 0 {
			return fmt.Errorf("invalid amount: %s", amount)
		}

		logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)
		registry := config.NewChainRegistry(cfg.ChainOverrides)
		chain, err := registry.GetChain(chainID)
		if err != nil {
			return err
		}

		var sponsor *requester.Sponsor
		if signerHex := os.Getenv("PAYMASTER_SIGNER_KEY"); signerHex != "" {
			signerKey, err := crypto.HexToECDSA(signerHex)
			if err != nil {
				return fmt.Errorf("invalid paymaster signer key: %w", err)
			}
			sponsor = requester.NewSponsor(signerKey)
		} else {
			sponsor = requester.NewSponsor(nil)
		}

		collector := metrics.NewNoopCollector()
		pool := requester.NewClientPool(registry, logger)
		relayer := requester.NewRelayer(cfg.RelayerKey, logger)
		bundler := requester.NewBundler(logger, pool, relayer, relayer.Address(), collector)

		store := memory.New(cfg.OperationTTL)
		defer func() { _ = store.Close() }()
		resolver := requester.NewReceiptResolver(logger, store, pool, cfg.OperationTTL)

		client := account.NewClient(logger, registry, pool, bundler, resolver, sponsor, ownerKey)
		fmt.Printf("smart account: %s\n", client.Address().Hex())

		receipt, err := client.Transfer(command.Context(), chainID, recipient, value)
		if err != nil {
			return err
		}

		fmt.Printf("operation:     %s\n", receipt.OperationHash.Hex())
		fmt.Printf("transaction:   %s\n", fmt.Sprintf(chain.ExplorerURL, receipt.TransactionHash.Hex()))
		fmt.Printf("success:       %t\n", receipt.Success)

		return nil
	},
}

var (
	envFile string
	to      string
	amount  string
	chainID uint64
)

func init() {
	Cmd.Flags().StringVar(&envFile, "env-file", "", "Path to a .env file with secret configuration")
	Cmd.Flags().Uint64Var(&chainID, "chain-id", 8453, "Chain to send on")
	Cmd.Flags().StringVar(&to, "to", "", "Recipient address")
	Cmd.Flags().StringVar(&amount, "amount", "", "Amount in stablecoin base units")
	_ = Cmd.MarkFlagRequired("to")
	_ = Cmd.MarkFlagRequired("amount")
}
