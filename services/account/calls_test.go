package account

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Straits-AI/straits-agents-sub001/config"
)

func TestBuildCalls(t *testing.T) {
	stablecoin := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	paymaster := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	target := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	intended := []Call{{To: target, Value: big.NewInt(0), Data: []byte{0x01}}}

	t.Run("prepends the allowance top-up when sponsored", func(t *testing.T) {
		chain := config.ChainProfile{
			ChainID:    8453,
			Paymaster:  paymaster,
			Stablecoin: stablecoin,
		}

		calls, err := BuildCalls(chain, intended)
		require.NoError(t, err)
		require.Len(t, calls, 2)

		assert.Equal(t, stablecoin, calls[0].To)
		expected, err := EncodeApprove(paymaster, paymasterAllowance)
		require.NoError(t, err)
		assert.Equal(t, expected, calls[0].Data)

		assert.Equal(t, intended[0], calls[1])
	})

	t.Run("leaves the batch alone without a paymaster", func(t *testing.T) {
		chain := config.ChainProfile{ChainID: 8453, Stablecoin: stablecoin}

		calls, err := BuildCalls(chain, intended)
		require.NoError(t, err)
		assert.Equal(t, intended, calls)
	})
}

func TestEncodeExecuteBatch(t *testing.T) {
	target := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	calldata, err := EncodeExecuteBatch([]Call{
		{To: target, Data: []byte{0x01, 0x02}},
		{To: target, Value: big.NewInt(5), Data: nil},
	})
	require.NoError(t, err)

	selector := crypto.Keccak256([]byte("executeBatch(address[],uint256[],bytes[])"))[:4]
	assert.True(t, bytes.HasPrefix(calldata, selector))
}

func TestEncodeTokenCalls(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	t.Run("transfer selector", func(t *testing.T) {
		calldata, err := EncodeTransfer(to, big.NewInt(1))
		require.NoError(t, err)

		selector := crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
		assert.True(t, bytes.HasPrefix(calldata, selector))
	})

	t.Run("approve selector", func(t *testing.T) {
		calldata, err := EncodeApprove(to, big.NewInt(1))
		require.NoError(t, err)

		selector := crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
		assert.True(t, bytes.HasPrefix(calldata, selector))
	})
}
