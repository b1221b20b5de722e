package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-limiter"
	"go.opentelemetry.io/otel/trace"

	"github.com/Straits-AI/straits-agents-sub001/config"
	"github.com/Straits-AI/straits-agents-sub001/metrics"
	"github.com/Straits-AI/straits-agents-sub001/models"
	errs "github.com/Straits-AI/straits-agents-sub001/models/errors"
)

const maxRequestSize = 1 << 20 // 1 MiB

// Server dispatches JSON-RPC 2.0 requests over HTTP to the bundler API.
// The chain is selected with the `chain` query parameter and defaults to
// the configured chain. The fee-spending method is gated twice: session
// authentication first, then the per-caller quota, so an unauthenticated
// request never consumes quota.
type Server struct {
	logger    zerolog.Logger
	cfg       *config.Config
	registry  *config.ChainRegistry
	api       *BundlerAPI
	verifier  SessionVerifier
	quota     *Quota
	transport limiter.Store
	collector metrics.Collector
	tracer    trace.Tracer
	server    *http.Server
}

func NewServer(
	logger zerolog.Logger,
	cfg *config.Config,
	registry *config.ChainRegistry,
	api *BundlerAPI,
	verifier SessionVerifier,
	quota *Quota,
	transport limiter.Store,
	collector metrics.Collector,
	tracer trace.Tracer,
) *Server {
	s := &Server{
		logger:    logger.With().Str("component", "api-server").Logger(),
		cfg:       cfg,
		registry:  registry,
		api:       api,
		verifier:  verifier,
		quota:     quota,
		transport: transport,
		collector: collector,
		tracer:    tracer,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", s)

	addr := net.JoinHostPort(cfg.RPCHost, strconv.Itoa(cfg.RPCPort))
	s.server = &http.Server{Addr: addr, Handler: mux}

	return s
}

func (s *Server) Ready() <-chan struct{} {
	ready := make(chan struct{})

	go func() {
		listener, err := net.Listen("tcp", s.server.Addr)
		if err != nil {
			s.logger.Err(err).Msg("error listening on address")
			close(ready)
			return
		}

		s.logger.Info().Str("address", s.server.Addr).Msg("JSON-RPC server started")
		close(ready)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Err(err).Msg("error serving JSON-RPC server")
		}
	}()

	return ready
}

func (s *Server) Done() <-chan struct{} {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Err(err).Msg("error shutting down JSON-RPC server")
		}
	}()

	return ctx.Done()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	l := s.logger.With().Str("request-id", requestID).Logger()

	defer func() {
		if reason := recover(); reason != nil {
			err := fmt.Errorf("%v", reason)
			s.collector.ServerPanicked(err)
			l.Error().Err(err).Msg("panic while serving request")
			writeResponse(l, w, rpcResponse{
				JSONRPC: "2.0",
				Error:   newRPCError(codeInternal, "internal error"),
			})
		}
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
		return
	}

	if s.transport != nil {
		_, _, _, ok, _ := s.transport.Take(r.Context(), remoteAddr(r))
		if !ok {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		writeResponse(l, w, rpcResponse{
			JSONRPC: "2.0",
			Error:   newRPCError(codeParse, "failed to read request"),
		})
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(l, w, rpcResponse{
			JSONRPC: "2.0",
			Error:   newRPCError(codeParse, "invalid JSON"),
		})
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if req.JSONRPC != "2.0" || req.Method == "" {
		resp.Error = newRPCError(codeInvalidRequest, "invalid request envelope")
		writeResponse(l, w, resp)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), req.Method)
	defer span.End()

	result, rpcErr := s.dispatch(ctx, l, r, req)
	if rpcErr != nil {
		s.collector.ApiErrorOccurred()
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}

	s.collector.MeasureRequestDuration(start, req.Method)
	writeResponse(l, w, resp)
}

func (s *Server) dispatch(
	ctx context.Context,
	l zerolog.Logger,
	r *http.Request,
	req rpcRequest,
) (any, *rpcError) {
	// method membership is decided before the chain is resolved, so an
	// unknown method reports method-not-found no matter what the query
	// string carries
	switch req.Method {
	case EthSendUserOperation, EthEstimateUserOperationGas, EthGetUserOperationReceipt,
		EthGetUserOperationByHash, EthSupportedEntryPoints, EthChainID:
	default:
		return nil, newRPCError(codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method))
	}

	chain, err := s.selectChain(r)
	if err != nil {
		return nil, newRPCError(codeInvalidParams, err.Error())
	}

	switch req.Method {
	case EthSendUserOperation:
		return s.sendUserOperation(ctx, l, r, chain, req.Params)

	case EthEstimateUserOperationGas:
		estimate, err := s.api.EstimateUserOperationGas(ctx, chain)
		if err != nil {
			return nil, errorToRPC(err)
		}
		return estimate, nil

	case EthGetUserOperationReceipt:
		opHash, rpcErr := decodeHashParam(req.Params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		receipt, err := s.api.GetUserOperationReceipt(ctx, chain, opHash)
		if err != nil {
			return nil, errorToRPC(err)
		}
		if receipt == nil {
			return json.RawMessage("null"), nil
		}
		return receipt, nil

	case EthGetUserOperationByHash:
		opHash, rpcErr := decodeHashParam(req.Params)
		if rpcErr != nil {
			return nil, rpcErr
		}
		lookup, err := s.api.GetUserOperationByHash(ctx, chain, opHash)
		if err != nil {
			return nil, errorToRPC(err)
		}
		if lookup == nil {
			return json.RawMessage("null"), nil
		}
		return lookup, nil

	case EthSupportedEntryPoints:
		entryPoints, err := s.api.SupportedEntryPoints(ctx, chain)
		if err != nil {
			return nil, errorToRPC(err)
		}
		return entryPoints, nil

	case EthChainID:
		chainID, err := s.api.ChainID(ctx, chain)
		if err != nil {
			return nil, errorToRPC(err)
		}
		return chainID, nil

	default:
		return nil, newRPCError(codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method))
	}
}

// sendUserOperation gates the only fee-spending method: the session is
// verified before the quota is touched, so rejected callers leave no
// counter behind.
func (s *Server) sendUserOperation(
	ctx context.Context,
	l zerolog.Logger,
	r *http.Request,
	chain config.ChainProfile,
	params json.RawMessage,
) (any, *rpcError) {
	caller, err := s.verifier.Verify(bearerToken(r))
	if err != nil {
		return nil, errorToRPC(errs.ErrAuthRequired)
	}

	if err := s.quota.Allow(ctx, caller); err != nil {
		return nil, errorToRPC(err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(params, &raw); err != nil || len(raw) != 2 {
		return nil, newRPCError(codeInvalidParams, "expected [userOperation, entryPoint]")
	}

	var args models.UserOperationArgs
	if err := json.Unmarshal(raw[0], &args); err != nil {
		return nil, newRPCError(codeInvalidParams, "malformed user operation")
	}
	var entryPoint common.Address
	if err := json.Unmarshal(raw[1], &entryPoint); err != nil {
		return nil, newRPCError(codeInvalidParams, "malformed entry point address")
	}

	l.Info().
		Str("caller", caller).
		Uint64("chain-id", chain.ChainID).
		Str("sender", args.Sender.Hex()).
		Msg("received eth_sendUserOperation request")

	opHash, err := s.api.SendUserOperation(ctx, chain, args, entryPoint)
	if err != nil {
		return nil, errorToRPC(err)
	}

	return opHash, nil
}

// selectChain resolves the chain query parameter, failing closed on ids
// missing from the registry before any chain work starts.
func (s *Server) selectChain(r *http.Request) (config.ChainProfile, error) {
	chainID := s.cfg.DefaultChainID
	if param := r.URL.Query().Get("chain"); param != "" {
		parsed, err := strconv.ParseUint(param, 10, 64)
		if err != nil {
			return config.ChainProfile{}, fmt.Errorf("invalid chain parameter: %s", param)
		}
		chainID = parsed
	}

	return s.registry.GetChain(chainID)
}

func decodeHashParam(params json.RawMessage) (common.Hash, *rpcError) {
	var raw []common.Hash
	if err := json.Unmarshal(params, &raw); err != nil || len(raw) != 1 {
		return common.Hash{}, newRPCError(codeInvalidParams, "expected [operationHash]")
	}
	return raw[0], nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	return token
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeResponse(l zerolog.Logger, w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		l.Error().Err(err).Msg("failed to write response")
	}
}
