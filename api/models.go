package api

import (
	"errors"

	"github.com/goccy/go-json"

	errs "github.com/Straits-AI/straits-agents-sub001/models/errors"
)

// Version is overridden at build time.
var Version = "development"

// Method names served by the facade.
const (
	EthSendUserOperation        = "eth_sendUserOperation"
	EthEstimateUserOperationGas = "eth_estimateUserOperationGas"
	EthGetUserOperationReceipt  = "eth_getUserOperationReceipt"
	EthGetUserOperationByHash   = "eth_getUserOperationByHash"
	EthSupportedEntryPoints     = "eth_supportedEntryPoints"
	EthChainID                  = "eth_chainId"
)

// JSON-RPC 2.0 error codes.
const (
	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeAuthRequired   = -32000
	codeRateLimited    = -32005
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newRPCError(code int, message string) *rpcError {
	return &rpcError{Code: code, Message: message}
}

// errorToRPC maps subsystem errors onto the wire codes. Anything not
// explicitly classified is an internal error; its details never leak to
// the caller.
func errorToRPC(err error) *rpcError {
	switch {
	case errors.Is(err, errs.ErrRateLimit):
		return newRPCError(codeRateLimited, err.Error())
	case errors.Is(err, errs.ErrAuthRequired),
		errors.Is(err, errs.ErrRelayerNotConfigured):
		return newRPCError(codeAuthRequired, err.Error())
	case errors.Is(err, errs.ErrInvalid),
		errors.Is(err, errs.ErrNotSupported):
		return newRPCError(codeInvalidParams, err.Error())
	case errors.Is(err, errs.ErrPaymasterRejected):
		return newRPCError(codeInvalidParams, err.Error())
	default:
		return newRPCError(codeInternal, "internal error")
	}
}

// OperationLookup is the eth_getUserOperationByHash result shape.
type OperationLookup struct {
	UserOperationHash string `json:"userOperationHash"`
	TransactionHash   string `json:"transactionHash"`
	EntryPoint        string `json:"entryPoint"`
}
