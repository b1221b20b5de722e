package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalid      = errors.New("invalid request")
	ErrInternal     = errors.New("internal error")
	ErrNotSupported = errors.New("endpoint is not supported")

	// ErrRateLimit is returned when a caller exhausts its per-window quota
	// on the fee-spending method. The request is rejected before any chain
	// work is performed.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrAuthRequired is returned when the fee-spending method is invoked
	// without a valid caller session.
	ErrAuthRequired = errors.New("authentication required")

	// ErrRelayerNotConfigured is returned when a submission is attempted
	// on a chain for which no funded relayer key was configured.
	ErrRelayerNotConfigured = errors.New("relayer not configured")

	// ErrPaymasterRejected surfaces an on-chain paymaster validation
	// failure, most commonly an insufficient stablecoin balance. The whole
	// operation reverts atomically, no partial execution takes place.
	ErrPaymasterRejected = errors.New("paymaster rejected operation")
)

// UnsupportedChainError is returned for any operation that references a
// chain id missing from the registry. It is raised before any chain
// interaction happens.
type UnsupportedChainError struct {
	ChainID uint64
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("unsupported chain id: %d", e.ChainID)
}

func (e *UnsupportedChainError) Unwrap() error {
	return ErrNotSupported
}

func NewUnsupportedChainError(chainID uint64) *UnsupportedChainError {
	return &UnsupportedChainError{ChainID: chainID}
}

// UnsupportedEntryPointError is returned when a caller names an EntryPoint
// address other than the deployed one. Rejected before packing.
type UnsupportedEntryPointError struct {
	EntryPoint string
}

func (e *UnsupportedEntryPointError) Error() string {
	return fmt.Sprintf("unsupported entry point: %s", e.EntryPoint)
}

func (e *UnsupportedEntryPointError) Unwrap() error {
	return ErrNotSupported
}

func NewUnsupportedEntryPointError(entryPoint string) *UnsupportedEntryPointError {
	return &UnsupportedEntryPointError{EntryPoint: entryPoint}
}
