package requester

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Straits-AI/straits-agents-sub001/models"
)

// The paymaster resells gas for the chain's stablecoin. Its on-chain
// validation step checks the sender's stablecoin balance against the quoted
// cost and returns a context; the post-op step collects
// transferFrom(sender, paymaster, actualCost) using the gas actually spent.
// The client therefore pre-approves at least the estimated cost in the same
// operation; unspent approval stays usable for future operations. An
// insufficient balance reverts the whole operation atomically.

// feeMarkupPercent is the fixed safety markup applied to every quote.
const feeMarkupPercent = 10

// sponsorshipValidity bounds how long signed paymaster fields remain
// acceptable on chain. Generous enough for broadcast plus inclusion.
const sponsorshipValidity = 10 * time.Minute

// sponsorValiditySkew tolerates clock drift between this process and block
// timestamps when setting the validity window's lower bound.
const sponsorValiditySkew = 2 * time.Minute

// paymasterDataLength is 6 bytes validUntil, 6 bytes validAfter and a
// 65-byte sponsor signature.
const paymasterDataLength = 6 + 6 + 65

// PaymasterFeeQuote is the stablecoin cost of one operation:
// ceil(estimatedGas × gasPrice × exchangeRate × (1 + markup)).
type PaymasterFeeQuote struct {
	EstimatedGas *big.Int
	GasPrice     *big.Int
	// Cost is denominated in stablecoin base units, markup included.
	Cost *big.Int
}

// Quote prices an operation in the stablecoin. exchangeRate converts wei to
// stablecoin base units. The result is rounded up, so the quote never
// undercuts the real cost.
func Quote(estimatedGas, gasPrice *big.Int, exchangeRate *big.Rat) *PaymasterFeeQuote {
	wei := new(big.Int).Mul(estimatedGas, gasPrice)

	num := new(big.Int).Mul(wei, exchangeRate.Num())
	num.Mul(num, big.NewInt(100+feeMarkupPercent))
	den := new(big.Int).Mul(exchangeRate.Denom(), big.NewInt(100))

	cost := new(big.Int)
	rem := new(big.Int)
	cost.QuoRem(num, den, rem)
	if rem.Sign() > 0 {
		cost.Add(cost, big.NewInt(1))
	}

	return &PaymasterFeeQuote{
		EstimatedGas: estimatedGas,
		GasPrice:     gasPrice,
		Cost:         cost,
	}
}

// PaymasterFields is the sponsor-provided portion of a draft: the paymaster
// address, its two gas limits and the validity-window payload.
type PaymasterFields struct {
	Paymaster            common.Address
	VerificationGasLimit *big.Int
	PostOpGasLimit       *big.Int
	Data                 []byte
}

// Apply attaches the fields at the builder's paymaster stage.
func (f PaymasterFields) Apply(builder *models.GasedOpBuilder) *models.SponsoredOpBuilder {
	return builder.WithPaymaster(f.Paymaster, f.VerificationGasLimit, f.PostOpGasLimit, f.Data)
}

// Sponsor signs paymaster validity windows with the operator key.
type Sponsor struct {
	key *ecdsa.PrivateKey
}

func NewSponsor(key *ecdsa.PrivateKey) *Sponsor {
	return &Sponsor{key: key}
}

// StubFields returns placeholder paymaster fields used only during gas
// estimation. The payload is sized exactly like the real one so estimates
// are never under-sized, but its signature can never validate.
func (s *Sponsor) StubFields(paymaster common.Address) PaymasterFields {
	data := make([]byte, paymasterDataLength)
	for i := range data {
		data[i] = 0xff
	}
	return PaymasterFields{
		Paymaster:            paymaster,
		VerificationGasLimit: big.NewInt(staticPaymasterVerificationGasLimit),
		PostOpGasLimit:       big.NewInt(staticPaymasterPostOpGasLimit),
		Data:                 data,
	}
}

// RealFields signs a validity window for the sender and returns the fields
// attached just before final signing.
func (s *Sponsor) RealFields(paymaster, sender common.Address) (PaymasterFields, error) {
	if s.key == nil {
		return PaymasterFields{}, fmt.Errorf("no sponsor key configured")
	}

	now := time.Now()
	validUntil := uint48Bytes(uint64(now.Add(sponsorshipValidity).Unix()))
	validAfter := uint48Bytes(uint64(now.Add(-sponsorValiditySkew).Unix()))

	digest := crypto.Keccak256(
		sender.Bytes(),
		paymaster.Bytes(),
		validUntil,
		validAfter,
	)
	signature, err := crypto.Sign(accounts.TextHash(digest), s.key)
	if err != nil {
		return PaymasterFields{}, fmt.Errorf("failed to sign paymaster data: %w", err)
	}

	data := make([]byte, 0, paymasterDataLength)
	data = append(data, validUntil...)
	data = append(data, validAfter...)
	data = append(data, signature...)

	return PaymasterFields{
		Paymaster:            paymaster,
		VerificationGasLimit: big.NewInt(staticPaymasterVerificationGasLimit),
		PostOpGasLimit:       big.NewInt(staticPaymasterPostOpGasLimit),
		Data:                 data,
	}, nil
}

func uint48Bytes(v uint64) []byte {
	b := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
