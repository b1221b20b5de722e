package config

import (
	"github.com/ethereum/go-ethereum/common"

	errs "github.com/Straits-AI/straits-agents-sub001/models/errors"
)

// EntryPointAddress is the canonical ERC-4337 v0.7 EntryPoint, deployed at
// the same address on every supported chain.
var EntryPointAddress = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

// NativeCurrency describes the chain's gas token, used for display only.
// All user-facing costs are denominated in the chain's stablecoin.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// ChainProfile is the static metadata for one supported chain. The registry
// of profiles is closed: one entry per supported chain, resolved by lookup.
type ChainProfile struct {
	ChainID     uint64
	Name        string
	Currency    NativeCurrency
	ExplorerURL string // template, %s replaced by the transaction hash
	RPCEndpoint string
	Paymaster   common.Address // zero address when gas is paid natively
	Stablecoin  common.Address
	EntryPoint  common.Address
}

// HasPaymaster reports whether operations on this chain are sponsored by
// the stablecoin paymaster.
func (p ChainProfile) HasPaymaster() bool {
	return p.Paymaster != (common.Address{})
}

// defaultChains is the built-in registry. RPC endpoints and paymaster
// addresses can be overridden per chain through configuration.
var defaultChains = map[uint64]ChainProfile{
	137: {
		ChainID:     137,
		Name:        "Polygon",
		Currency:    NativeCurrency{Name: "Polygon", Symbol: "POL", Decimals: 18},
		ExplorerURL: "https://polygonscan.com/tx/%s",
		RPCEndpoint: "https://polygon-rpc.com",
		Stablecoin:  common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
		EntryPoint:  EntryPointAddress,
	},
	8453: {
		ChainID:     8453,
		Name:        "Base",
		Currency:    NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		ExplorerURL: "https://basescan.org/tx/%s",
		RPCEndpoint: "https://mainnet.base.org",
		Stablecoin:  common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		EntryPoint:  EntryPointAddress,
	},
	42220: {
		ChainID:     42220,
		Name:        "Celo",
		Currency:    NativeCurrency{Name: "Celo", Symbol: "CELO", Decimals: 18},
		ExplorerURL: "https://celoscan.io/tx/%s",
		RPCEndpoint: "https://forno.celo.org",
		Stablecoin:  common.HexToAddress("0x765DE816845861e75A25fCA122bb6898B8B1282a"),
		EntryPoint:  EntryPointAddress,
	},
	84532: {
		ChainID:     84532,
		Name:        "Base Sepolia",
		Currency:    NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		ExplorerURL: "https://sepolia.basescan.org/tx/%s",
		RPCEndpoint: "https://sepolia.base.org",
		Stablecoin:  common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
		EntryPoint:  EntryPointAddress,
	},
}

// ChainRegistry resolves chain ids to chain profiles. Operations that
// reference an unregistered chain id fail closed before any chain work.
type ChainRegistry struct {
	chains map[uint64]ChainProfile
}

// NewChainRegistry returns the built-in registry with the given overrides
// applied. Overrides may only refine registered chains (RPC endpoint,
// paymaster address), they never introduce new ones.
func NewChainRegistry(overrides map[uint64]ChainOverride) *ChainRegistry {
	chains := make(map[uint64]ChainProfile, len(defaultChains))
	for id, profile := range defaultChains {
		if o, ok := overrides[id]; ok {
			if o.RPCEndpoint != "" {
				profile.RPCEndpoint = o.RPCEndpoint
			}
			if o.Paymaster != (common.Address{}) {
				profile.Paymaster = o.Paymaster
			}
		}
		chains[id] = profile
	}
	return &ChainRegistry{chains: chains}
}

// ChainOverride carries the per-deployment settings for a registered chain.
type ChainOverride struct {
	RPCEndpoint string
	Paymaster   common.Address
}

// IsSupported reports whether the chain id is registered.
func (r *ChainRegistry) IsSupported(chainID uint64) bool {
	_, ok := r.chains[chainID]
	return ok
}

// GetChain returns the profile for a registered chain id. It never returns
// a default profile for unknown ids.
func (r *ChainRegistry) GetChain(chainID uint64) (ChainProfile, error) {
	profile, ok := r.chains[chainID]
	if !ok {
		return ChainProfile{}, errs.NewUnsupportedChainError(chainID)
	}
	return profile, nil
}

// ChainIDs returns the registered chain ids.
func (r *ChainRegistry) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	return ids
}
