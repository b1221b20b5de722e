package models

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpBuilder(t *testing.T) {
	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	paymaster := common.HexToAddress("0x2222222222222222222222222222222222222222")

	t.Run("assembles a sponsored draft", func(t *testing.T) {
		op := NewOpBuilder(sender, big.NewInt(3), nil, []byte{0x01}).
			WithGas(
				big.NewInt(300_000),
				big.NewInt(600_000),
				big.NewInt(60_000),
				big.NewInt(30_000_000_000),
				big.NewInt(1_500_000_000),
			).
			WithPaymaster(paymaster, big.NewInt(200_000), big.NewInt(120_000), []byte{0xaa}).
			Signed([]byte{0xbb})

		assert.Equal(t, sender, op.Sender)
		assert.Equal(t, big.NewInt(3), op.Nonce)
		assert.Equal(t, paymaster, op.Paymaster)
		assert.Equal(t, []byte{0xaa}, op.PaymasterData)
		assert.Equal(t, []byte{0xbb}, op.Signature)
	})

	t.Run("assembles an unsponsored draft", func(t *testing.T) {
		op := NewOpBuilder(sender, big.NewInt(0), nil, []byte{0x01}).
			WithGas(
				big.NewInt(300_000),
				big.NewInt(600_000),
				big.NewInt(60_000),
				big.NewInt(30_000_000_000),
				big.NewInt(1_500_000_000),
			).
			WithoutPaymaster().
			Signed([]byte{0xbb})

		assert.Equal(t, common.Address{}, op.Paymaster)

		packed, err := op.Pack()
		require.NoError(t, err)
		assert.Empty(t, packed.PaymasterAndData)
	})

	t.Run("draft is unaffected by later signing", func(t *testing.T) {
		staged := NewOpBuilder(sender, big.NewInt(0), nil, []byte{0x01}).
			WithGas(
				big.NewInt(300_000),
				big.NewInt(600_000),
				big.NewInt(60_000),
				big.NewInt(30_000_000_000),
				big.NewInt(1_500_000_000),
			).
			WithoutPaymaster()

		draft := staged.Draft()
		signed := staged.Signed([]byte{0xbb})

		assert.Empty(t, draft.Signature)
		assert.Equal(t, []byte{0xbb}, signed.Signature)
	})
}
