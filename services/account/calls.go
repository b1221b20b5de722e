package account

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Straits-AI/straits-agents-sub001/config"
)

// paymasterAllowance is the fixed stablecoin approval granted to the
// paymaster, denominated in the smallest stablecoin unit (6 decimals, so
// 100 whole tokens). Deliberately generous: one approval amortizes across
// many operations, and unspent allowance stays usable.
var paymasterAllowance = big.NewInt(100_000_000)

// Call is one account-level call, executed atomically with its batch.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

const smartAccountABI = `[
	{
		"inputs": [
			{"internalType": "address[]", "name": "dest", "type": "address[]"},
			{"internalType": "uint256[]", "name": "value", "type": "uint256[]"},
			{"internalType": "bytes[]", "name": "func", "type": "bytes[]"}
		],
		"name": "executeBatch",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const erc20ABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "spender", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	accountABI abi.ABI
	tokenABI   abi.ABI
)

func init() {
	var err error
	if accountABI, err = abi.JSON(strings.NewReader(smartAccountABI)); err != nil {
		panic(fmt.Errorf("invalid account ABI: %w", err))
	}
	if tokenABI, err = abi.JSON(strings.NewReader(erc20ABI)); err != nil {
		panic(fmt.Errorf("invalid token ABI: %w", err))
	}
}

// BuildCalls prepares the batch executed by one operation. On chains with a
// stablecoin paymaster the fixed allowance top-up is prepended, so the
// approval and the intended calls land atomically: the paymaster's post-op
// transferFrom can never observe the approval without the calls, or the
// calls without the approval.
func BuildCalls(chain config.ChainProfile, intended []Call) ([]Call, error) {
	if !chain.HasPaymaster() {
		return intended, nil
	}

	approve, err := EncodeApprove(chain.Paymaster, paymasterAllowance)
	if err != nil {
		return nil, err
	}

	calls := make([]Call, 0, len(intended)+1)
	calls = append(calls, Call{To: chain.Stablecoin, Value: big.NewInt(0), Data: approve})
	calls = append(calls, intended...)
	return calls, nil
}

// EncodeExecuteBatch encodes the batch into the smart account's
// executeBatch calldata.
func EncodeExecuteBatch(calls []Call) ([]byte, error) {
	dests := make([]common.Address, len(calls))
	values := make([]*big.Int, len(calls))
	data := make([][]byte, len(calls))
	for i, call := range calls {
		dests[i] = call.To
		values[i] = call.Value
		if values[i] == nil {
			values[i] = big.NewInt(0)
		}
		data[i] = call.Data
	}

	calldata, err := accountABI.Pack("executeBatch", dests, values, data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode executeBatch: %w", err)
	}
	return calldata, nil
}

func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	calldata, err := tokenABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approve: %w", err)
	}
	return calldata, nil
}

func EncodeTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	calldata, err := tokenABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer: %w", err)
	}
	return calldata, nil
}

func EncodeBalanceOf(holder common.Address) ([]byte, error) {
	calldata, err := tokenABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("failed to encode balanceOf: %w", err)
	}
	return calldata, nil
}
