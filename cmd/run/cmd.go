package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Straits-AI/straits-agents-sub001/bootstrap"
	"github.com/Straits-AI/straits-agents-sub001/config"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the bundler gateway",
	RunE: func(command *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(command.Context())
		defer cancel()

		if err := parseConfigFromFlags(); err != nil {
			return fmt.Errorf("failed to parse flags: %w", err)
		}

		done := make(chan struct{})
		ready := make(chan struct{})
		go func() {
			defer close(done)

			err := bootstrap.Run(ctx, cfg, ready)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Err(err).Msg("gateway runtime error")
			}
		}()

		<-ready

		osSig := make(chan os.Signal, 1)
		signal.Notify(osSig, syscall.SIGINT, syscall.SIGTERM)

		// wait for the gateway to exit or for a shutdown signal
		select {
		case <-osSig:
			log.Info().Msg("OS signal to shutdown received, shutting down")
			cancel()
		case <-done:
			log.Info().Msg("done, shutting down")
		}

		<-done

		return nil
	},
}

func parseConfigFromFlags() error {
	if err := cfg.LoadEnv(envFile); err != nil {
		return err
	}

	if defaultChainID != 0 {
		cfg.DefaultChainID = defaultChainID
	}

	if beneficiary != "" {
		cfg.Beneficiary = common.HexToAddress(beneficiary)
		if cfg.Beneficiary == (common.Address{}) {
			return fmt.Errorf("invalid beneficiary address: %s", beneficiary)
		}
	}

	if operationTTL != "" {
		ttl, err := time.ParseDuration(operationTTL)
		if err != nil {
			return fmt.Errorf("invalid operation TTL %s: %w", operationTTL, err)
		}
		cfg.OperationTTL = ttl
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %s", logLevel)
	}
	cfg.LogLevel = level

	if logWriter == "stderr" {
		cfg.LogWriter = os.Stderr
	}

	return nil
}

var cfg = config.Default()
var (
	envFile,
	beneficiary,
	operationTTL,
	logLevel,
	logWriter string
	defaultChainID uint64
)

func init() {
	Cmd.Flags().StringVar(&envFile, "env-file", "", "Path to a .env file with secret configuration")
	Cmd.Flags().Uint64Var(&defaultChainID, "default-chain-id", 0, "Chain id used when a request does not select a chain")
	Cmd.Flags().StringVar(&beneficiary, "beneficiary", "", "Address receiving the EntryPoint gas refund, defaults to the relayer address")
	Cmd.Flags().StringVar(&operationTTL, "operation-ttl", "", "How long operation-to-transaction mappings are kept, e.g. 1h")
	Cmd.Flags().StringVar(&cfg.RPCHost, "rpc-host", cfg.RPCHost, "Host for the JSON-RPC server")
	Cmd.Flags().IntVar(&cfg.RPCPort, "rpc-port", cfg.RPCPort, "Port for the JSON-RPC server")
	Cmd.Flags().IntVar(&cfg.MetricsPort, "metrics-port", cfg.MetricsPort, "Port for the Prometheus metrics server")
	Cmd.Flags().StringVar(&cfg.TracesEndpoint, "traces-endpoint", "", "OTLP traces endpoint, tracing is disabled when empty")
	Cmd.Flags().IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Submissions allowed per caller per window")
	Cmd.Flags().StringVar(&logLevel, "log-level", "info", "Define verbosity of the log output ('debug', 'info', 'warn', 'error', 'fatal', 'panic')")
	Cmd.Flags().StringVar(&logWriter, "log-writer", "stdout", "Log writer used for output ('stdout', 'stderr')")
}
