package contract

import (
	"context"
	"fmt"
	"math/big"

	"mintgate/internal/errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Backend 合约调用后端
// 提供者实现该接口；测试中使用内存假后端。
type Backend interface {
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Handle 已解析的合约句柄
// 只有确认目标地址存在合约代码后才能构造；
// 对未解析句柄发起读写属于调用方的程序错误，调用方必须先完成解析。
type Handle struct {
	address common.Address
	abi     *abi.ABI
	backend Backend
	chainID uint64
}

// Resolve 解析合约
// 检查目标地址在当前链上是否存在可执行代码，
// 代码缺失返回合约未就绪错误，不构造句柄。
func Resolve(ctx context.Context, backend Backend, addressHex string, chainID uint64, logger *logrus.Logger) (*Handle, *errors.MintError) {
	if !common.IsHexAddress(addressHex) {
		return nil, errors.NewMintError(errors.KindContractUnready, errors.SeverityHigh,
			"INVALID_CONTRACT_ADDRESS", fmt.Sprintf("合约地址无效: %s", addressHex))
	}

	address := common.HexToAddress(addressHex)

	code, err := backend.CodeAt(ctx, address)
	if err != nil {
		return nil, errors.WrapError(err, errors.KindContractUnready, errors.SeverityHigh,
			"CODE_CHECK_FAILED", "读取合约代码失败")
	}

	if len(code) == 0 {
		logger.Warnf("地址 %s 上没有合约代码 (链 %d)", address.Hex(), chainID)
		return nil, errors.ErrContractNotDeployed
	}

	logger.Infof("合约已解析: %s (链 %d, 代码 %d 字节)", address.Hex(), chainID, len(code))
	return &Handle{
		address: address,
		abi:     MintABI(),
		backend: backend,
		chainID: chainID,
	}, nil
}

// Address 返回合约地址
func (h *Handle) Address() common.Address {
	return h.address
}

// ChainID 返回句柄绑定的链ID
func (h *Handle) ChainID() uint64 {
	return h.chainID
}

// call 执行只读合约调用并解包结果
func (h *Handle) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := h.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("编码调用 %s 失败: %w", method, err)
	}

	output, err := h.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &h.address,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("调用 %s 失败: %w", method, err)
	}

	results, err := h.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("解码 %s 返回值失败: %w", method, err)
	}
	return results, nil
}

// callUint64 读取uint256并收敛为uint64
func (h *Handle) callUint64(ctx context.Context, method string) (uint64, error) {
	results, err := h.call(ctx, method)
	if err != nil {
		return 0, err
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("%s 返回值类型不符", method)
	}
	return value.Uint64(), nil
}

// callBigInt 读取uint256
func (h *Handle) callBigInt(ctx context.Context, method string) (*big.Int, error) {
	results, err := h.call(ctx, method)
	if err != nil {
		return nil, err
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s 返回值类型不符", method)
	}
	return value, nil
}

// callBool 读取bool
func (h *Handle) callBool(ctx context.Context, method string) (bool, error) {
	results, err := h.call(ctx, method)
	if err != nil {
		return false, err
	}
	value, ok := results[0].(bool)
	if !ok {
		return false, fmt.Errorf("%s 返回值类型不符", method)
	}
	return value, nil
}

// callBytes32 读取bytes32
func (h *Handle) callBytes32(ctx context.Context, method string) ([32]byte, error) {
	results, err := h.call(ctx, method)
	if err != nil {
		return [32]byte{}, err
	}
	value, ok := results[0].([32]byte)
	if !ok {
		return [32]byte{}, fmt.Errorf("%s 返回值类型不符", method)
	}
	return value, nil
}

// PackMint 编码公售铸造调用
func (h *Handle) PackMint(amount uint64) ([]byte, error) {
	return h.abi.Pack("mint", new(big.Int).SetUint64(amount))
}

// PackWhitelistMint 编码白名单铸造调用（附带Merkle证明）
func (h *Handle) PackWhitelistMint(amount uint64, proof [][32]byte) ([]byte, error) {
	return h.abi.Pack("whitelistMint", new(big.Int).SetUint64(amount), proof)
}
