package config

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/Straits-AI/straits-agents-sub001/models/errors"
)

func TestChainRegistry(t *testing.T) {
	registry := NewChainRegistry(nil)

	t.Run("supports built-in chains", func(t *testing.T) {
		for _, chainID := range []uint64{137, 8453, 42220, 84532} {
			assert.True(t, registry.IsSupported(chainID))

			chain, err := registry.GetChain(chainID)
			require.NoError(t, err)
			assert.Equal(t, chainID, chain.ChainID)
		}
	})

	t.Run("rejects unregistered chain ids", func(t *testing.T) {
		assert.False(t, registry.IsSupported(999))

		_, err := registry.GetChain(999)
		require.Error(t, err)

		var unsupported *errs.UnsupportedChainError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, uint64(999), unsupported.ChainID)
	})

	t.Run("entry point is identical on every chain", func(t *testing.T) {
		for _, chainID := range registry.ChainIDs() {
			chain, err := registry.GetChain(chainID)
			require.NoError(t, err)
			assert.Equal(t, EntryPointAddress, chain.EntryPoint)
		}
	})

	t.Run("overrides replace endpoint and paymaster", func(t *testing.T) {
		paymaster := common.HexToAddress("0x00000000000000000000000000000000000000aa")
		overridden := NewChainRegistry(map[uint64]ChainOverride{
			8453: {RPCEndpoint: "http://localhost:8545", Paymaster: paymaster},
		})

		chain, err := overridden.GetChain(8453)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8545", chain.RPCEndpoint)
		assert.Equal(t, paymaster, chain.Paymaster)
		assert.True(t, chain.HasPaymaster())

		// other chains are untouched
		original, err := overridden.GetChain(137)
		require.NoError(t, err)
		assert.NotEqual(t, paymaster, original.Paymaster)
	})

	t.Run("overrides never add chains", func(t *testing.T) {
		overridden := NewChainRegistry(map[uint64]ChainOverride{
			999: {RPCEndpoint: "http://localhost:8545"},
		})

		assert.False(t, overridden.IsSupported(999))
	})
}
