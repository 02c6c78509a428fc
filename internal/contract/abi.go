package contract

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// mintABIJSON 铸造合约ABI
// 合约边界：只读方法读取销售配置与状态，两个payable方法执行铸造。
const mintABIJSON = `[
	{"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"maxSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"maxMintAmountPerTx","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"cost","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"paused","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"name":"whitelistMintEnabled","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"name":"merkleRoot","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
	{"name":"mint","type":"function","stateMutability":"payable","inputs":[{"name":"_mintAmount","type":"uint256"}],"outputs":[]},
	{"name":"whitelistMint","type":"function","stateMutability":"payable","inputs":[{"name":"_mintAmount","type":"uint256"},{"name":"_merkleProof","type":"bytes32[]"}],"outputs":[]}
]`

var (
	mintABI     *abi.ABI
	mintABIOnce sync.Once
)

// MintABI 返回解析后的合约ABI
func MintABI() *abi.ABI {
	mintABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(mintABIJSON))
		if err != nil {
			// ABI为编译期常量，解析失败属于程序错误
			panic("解析铸造合约ABI失败: " + err.Error())
		}
		mintABI = &parsed
	})
	return mintABI
}
