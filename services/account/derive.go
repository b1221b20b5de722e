package account

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// The account factory and its salt are fixed deployment constants, identical
// on every supported chain. Address derivation therefore depends only on the
// owner key: the same owner gets the same account address everywhere.
var (
	accountFactoryAddress = common.HexToAddress("0x91E60e0613810449d098b0b5Ec8b51A0FE8c8985")
	accountSalt           = big.NewInt(0)
)

const accountFactoryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "uint256", "name": "salt", "type": "uint256"}
		],
		"name": "createAccount",
		"outputs": [{"internalType": "contract SimpleAccount", "name": "ret", "type": "address"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var factoryABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(accountFactoryABI))
	if err != nil {
		panic(fmt.Errorf("invalid factory ABI: %w", err))
	}
	factoryABI = parsed
}

// DeriveAddress computes the counterfactual CREATE2 address of the smart
// account owned by the given key. The factory deploys with
// salt = keccak256(abi.encode(owner, salt)), so the address is derivable
// without any chain interaction.
func DeriveAddress(owner common.Address) common.Address {
	innerSalt := crypto.Keccak256Hash(
		common.LeftPadBytes(owner.Bytes(), 32),
		common.LeftPadBytes(accountSalt.Bytes(), 32),
	)

	createCalldata, err := factoryABI.Pack("createAccount", owner, accountSalt)
	if err != nil {
		// arguments are static, packing cannot fail
		panic(err)
	}
	initCodeHash := crypto.Keccak256(createCalldata)

	return crypto.CreateAddress2(accountFactoryAddress, innerSalt, initCodeHash)
}

// EncodeInitCode returns the init code attached to the first operation of an
// undeployed account: the factory address followed by the createAccount
// calldata the EntryPoint forwards to it.
func EncodeInitCode(owner common.Address) ([]byte, error) {
	calldata, err := factoryABI.Pack("createAccount", owner, accountSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode createAccount: %w", err)
	}

	initCode := make([]byte, 0, common.AddressLength+len(calldata))
	initCode = append(initCode, accountFactoryAddress.Bytes()...)
	initCode = append(initCode, calldata...)
	return initCode, nil
}
