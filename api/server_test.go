package api

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Straits-AI/straits-agents-sub001/config"
	"github.com/Straits-AI/straits-agents-sub001/metrics"
	"github.com/Straits-AI/straits-agents-sub001/models"
	"github.com/Straits-AI/straits-agents-sub001/services/requester"
	"github.com/Straits-AI/straits-agents-sub001/storage/memory"
)

var testOpHash = common.HexToHash("0x5555555555555555555555555555555555555555555555555555555555555555")

// stubChain answers getUserOpHash reads and accepts broadcasts.
type stubChain struct {
	broadcasts int
}

func (s *stubChain) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

func (s *stubChain) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return testOpHash.Bytes(), nil
}

func (s *stubChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, nil
}

func (s *stubChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (s *stubChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(100_000_000), nil
}

func (s *stubChain) SendTransaction(context.Context, *types.Transaction) error {
	s.broadcasts++
	return nil
}

func (s *stubChain) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

type testHarness struct {
	server   *Server
	verifier *HMACVerifier
	store    *memory.Store
	chain    *stubChain
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	cfg := config.Default()
	cfg.SessionSecret = []byte("test-secret")

	registry := config.NewChainRegistry(nil)
	store := memory.New(time.Hour)
	collector := metrics.NewNoopCollector()

	chain := &stubChain{}
	pool := requester.NewClientPoolWithClients(registry, zerolog.Nop(), map[uint64]requester.ChainClient{
		8453: chain,
	})

	relayerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	relayer := requester.NewRelayer(relayerKey, zerolog.Nop())

	bundler := requester.NewBundler(zerolog.Nop(), pool, relayer, relayer.Address(), collector)
	resolver := requester.NewReceiptResolver(zerolog.Nop(), store, pool, cfg.OperationTTL)

	verifier := NewHMACVerifier(cfg.SessionSecret)
	quota := NewQuota(zerolog.Nop(), store, cfg.RateLimit, cfg.RateLimitWindow, collector)
	bundlerAPI := NewBundlerAPI(zerolog.Nop(), bundler, resolver, collector)

	server := NewServer(
		zerolog.Nop(),
		cfg,
		registry,
		bundlerAPI,
		verifier,
		quota,
		nil,
		collector,
		trace.NewNoopTracerProvider().Tracer("test"),
	)

	return &testHarness{server: server, verifier: verifier, store: store, chain: chain}
}

func (h *testHarness) post(t *testing.T, url string, body string, token string) rpcResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()

	h.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (h *testHarness) call(t *testing.T, url, method, params, token string) rpcResponse {
	t.Helper()
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"%s","params":%s}`, method, params)
	return h.post(t, url, body, token)
}

func opParams(entryPoint common.Address) string {
	args := models.UserOperationArgs{
		Sender:               common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Nonce:                (*hexutil.Big)(big.NewInt(0)),
		CallData:             ptr(hexutil.Bytes{0x01}),
		CallGasLimit:         (*hexutil.Big)(big.NewInt(300_000)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(600_000)),
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(60_000)),
		MaxFeePerGas:         (*hexutil.Big)(big.NewInt(30_000_000_000)),
		MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(1_500_000_000)),
		Signature:            ptr(hexutil.Bytes{0x02}),
	}

	encoded, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf(`[%s, %q]`, encoded, entryPoint.Hex())
}

func validOpParams() string {
	return opParams(config.EntryPointAddress)
}

func ptr[T any](v T) *T { return &v }

func TestServer_Envelope(t *testing.T) {
	h := newTestHarness(t)

	t.Run("rejects invalid JSON", func(t *testing.T) {
		resp := h.post(t, "/", "{not json", "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeParse, resp.Error.Code)
	})

	t.Run("rejects a bad envelope", func(t *testing.T) {
		resp := h.post(t, "/", `{"jsonrpc":"1.0","id":1,"method":"eth_chainId"}`, "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeInvalidRequest, resp.Error.Code)
	})

	t.Run("rejects unknown methods", func(t *testing.T) {
		resp := h.call(t, "/", "eth_getBalance", `[]`, "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeMethodNotFound, resp.Error.Code)
	})

	t.Run("unknown method wins over an unknown chain", func(t *testing.T) {
		resp := h.call(t, "/?chain=999", "eth_getBalance", `[]`, "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeMethodNotFound, resp.Error.Code)
	})
}

func TestServer_ReadMethods(t *testing.T) {
	h := newTestHarness(t)

	t.Run("chain id defaults to the configured chain", func(t *testing.T) {
		resp := h.call(t, "/", EthChainID, `[]`, "")
		require.Nil(t, resp.Error)
		assert.Equal(t, "0x2105", resp.Result)
	})

	t.Run("chain id follows the query parameter", func(t *testing.T) {
		resp := h.call(t, "/?chain=8453", EthChainID, `[]`, "")
		require.Nil(t, resp.Error)
		assert.Equal(t, "0x2105", resp.Result)
	})

	t.Run("unregistered chain is rejected", func(t *testing.T) {
		resp := h.call(t, "/?chain=999", EthChainID, `[]`, "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeInvalidParams, resp.Error.Code)
	})

	t.Run("supported entry points", func(t *testing.T) {
		resp := h.call(t, "/", EthSupportedEntryPoints, `[]`, "")
		require.Nil(t, resp.Error)

		entryPoints, ok := resp.Result.([]any)
		require.True(t, ok)
		require.Len(t, entryPoints, 1)
		hex, ok := entryPoints[0].(string)
		require.True(t, ok)
		assert.Equal(t, config.EntryPointAddress, common.HexToAddress(hex))
	})

	t.Run("gas estimate is static", func(t *testing.T) {
		resp := h.call(t, "/", EthEstimateUserOperationGas, `[]`, "")
		require.Nil(t, resp.Error)

		estimate, ok := resp.Result.(map[string]any)
		require.True(t, ok)
		assert.Contains(t, estimate, "callGasLimit")
		assert.Contains(t, estimate, "verificationGasLimit")
		assert.Contains(t, estimate, "preVerificationGas")
	})

	t.Run("unknown operation hash yields null", func(t *testing.T) {
		resp := h.call(t, "/", EthGetUserOperationReceipt,
			`["0x9999999999999999999999999999999999999999999999999999999999999999"]`, "")
		require.Nil(t, resp.Error)
		assert.Nil(t, resp.Result)
	})
}

func TestServer_SendUserOperation(t *testing.T) {
	t.Run("accepts a well-formed operation", func(t *testing.T) {
		h := newTestHarness(t)
		token := h.verifier.SignSession("alice")

		resp := h.call(t, "/", EthSendUserOperation, validOpParams(), token)
		require.Nil(t, resp.Error)

		opHash, ok := resp.Result.(string)
		require.True(t, ok)
		assert.Len(t, opHash, 66)
		assert.Equal(t, testOpHash.Hex(), opHash)
		assert.Equal(t, 1, h.chain.broadcasts)

		// the mapping is queryable immediately
		lookup := h.call(t, "/", EthGetUserOperationByHash, fmt.Sprintf(`[%q]`, opHash), "")
		require.Nil(t, lookup.Error)
		require.NotNil(t, lookup.Result)
	})

	t.Run("unauthenticated callers leave no quota trace", func(t *testing.T) {
		h := newTestHarness(t)

		resp := h.call(t, "/", EthSendUserOperation, validOpParams(), "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeAuthRequired, resp.Error.Code)
		assert.Equal(t, 0, h.chain.broadcasts)

		// the failed attempt consumed no quota: ten more still fit
		token := h.verifier.SignSession("alice")
		for i := 0; i < 10; i++ {
			ok := h.call(t, "/", EthSendUserOperation, validOpParams(), token)
			require.Nil(t, ok.Error)
		}
	})

	t.Run("forged tokens are rejected", func(t *testing.T) {
		h := newTestHarness(t)

		resp := h.call(t, "/", EthSendUserOperation, validOpParams(), "alice:deadbeef")
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeAuthRequired, resp.Error.Code)
	})

	t.Run("eleventh submission in a window is rejected", func(t *testing.T) {
		h := newTestHarness(t)
		token := h.verifier.SignSession("bob")

		for i := 0; i < 10; i++ {
			resp := h.call(t, "/", EthSendUserOperation, validOpParams(), token)
			require.Nil(t, resp.Error)
		}

		resp := h.call(t, "/", EthSendUserOperation, validOpParams(), token)
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeRateLimited, resp.Error.Code)
		assert.Equal(t, 10, h.chain.broadcasts)
	})

	t.Run("quota is per caller", func(t *testing.T) {
		h := newTestHarness(t)

		for i := 0; i < 11; i++ {
			token := h.verifier.SignSession(fmt.Sprintf("caller-%d", i))
			resp := h.call(t, "/", EthSendUserOperation, validOpParams(), token)
			require.Nil(t, resp.Error)
		}
	})

	t.Run("foreign entry point is rejected before packing", func(t *testing.T) {
		h := newTestHarness(t)
		token := h.verifier.SignSession("alice")

		foreign := common.HexToAddress("0x0000000000000000000000000000000000000001")
		resp := h.call(t, "/", EthSendUserOperation, opParams(foreign), token)
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeInvalidParams, resp.Error.Code)
		assert.Equal(t, 0, h.chain.broadcasts)
	})

	t.Run("unregistered chain records nothing", func(t *testing.T) {
		h := newTestHarness(t)
		token := h.verifier.SignSession("alice")

		resp := h.call(t, "/?chain=999", EthSendUserOperation, validOpParams(), token)
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeInvalidParams, resp.Error.Code)
		assert.Equal(t, 0, h.chain.broadcasts)

		lookup := h.call(t, "/", EthGetUserOperationByHash, fmt.Sprintf(`[%q]`, testOpHash.Hex()), "")
		require.Nil(t, lookup.Error)
		assert.Nil(t, lookup.Result)
	})

	t.Run("malformed params are rejected", func(t *testing.T) {
		h := newTestHarness(t)
		token := h.verifier.SignSession("alice")

		resp := h.call(t, "/", EthSendUserOperation, `["not-an-op"]`, token)
		require.NotNil(t, resp.Error)
		assert.Equal(t, codeInvalidParams, resp.Error.Code)
	})
}
