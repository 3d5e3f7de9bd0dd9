package aa

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const lightAccountFactoryABI = `[
	{"type":"function","name":"createAccount","stateMutability":"nonpayable",
	 "inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],
	 "outputs":[{"name":"ret","type":"address"}]},
	{"type":"function","name":"getAddress","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

const lightAccountABI = `[
	{"type":"function","name":"execute","stateMutability":"nonpayable",
	 "inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],
	 "outputs":[]},
	{"type":"function","name":"executeBatch","stateMutability":"nonpayable",
	 "inputs":[{"name":"dest","type":"address[]"},{"name":"func","type":"bytes[]"}],
	 "outputs":[]}
]`

const entryPointABI = `[
	{"type":"function","name":"getNonce","stateMutability":"view",
	 "inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],
	 "outputs":[{"name":"nonce","type":"uint256"}]}
]`

const demoContractABI = `[
	{"type":"function","name":"changeX","stateMutability":"nonpayable",
	 "inputs":[{"name":"_x","type":"uint256"}],
	 "outputs":[]}
]`

var (
	factoryABI = mustABI(lightAccountFactoryABI)
	accountABI = mustABI(lightAccountABI)
	epABI      = mustABI(entryPointABI)
	demoABI    = mustABI(demoContractABI)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// Call is one call executed by the smart account
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// ChangeXCall returns a call to the demo contract's changeX(uint256)
func ChangeXCall(contract common.Address, x int64) (Call, error) {
	data, err := demoABI.Pack("changeX", big.NewInt(x))
	if err != nil {
		return Call{}, fmt.Errorf("failed to encode changeX: %w", err)
	}
	return Call{To: contract, Data: data}, nil
}

// encodeCalls builds account calldata: execute for a single call,
// executeBatch otherwise. Batched calls cannot carry value.
func encodeCalls(calls []Call) ([]byte, error) {
	switch len(calls) {
	case 0:
		return nil, fmt.Errorf("at least one call is required")
	case 1:
		c := calls[0]
		return accountABI.Pack("execute", c.To, orZero(c.Value), orEmptyBytes(c.Data))
	}

	dests := make([]common.Address, len(calls))
	datas := make([][]byte, len(calls))
	for i, c := range calls {
		if c.Value != nil && c.Value.Sign() != 0 {
			return nil, fmt.Errorf("call %d: batched calls cannot transfer value", i)
		}
		dests[i] = c.To
		datas[i] = orEmptyBytes(c.Data)
	}
	return accountABI.Pack("executeBatch", dests, datas)
}

func orEmptyBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// initCode is factory address ++ createAccount(owner, salt)
func initCode(factory, owner common.Address, salt *big.Int) ([]byte, error) {
	data, err := factoryABI.Pack("createAccount", owner, orZero(salt))
	if err != nil {
		return nil, err
	}
	return append(factory.Bytes(), data...), nil
}
