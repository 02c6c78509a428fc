package contract

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContractAddress = "0x1234567890123456789012345678901234567890"

// fakeBackend 内存假后端
// 按方法名返回预置结果；failMethods中的方法返回错误。
type fakeBackend struct {
	mu          sync.Mutex
	code        []byte
	results     map[string][]interface{}
	failMethods map[string]bool
	callCount   map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		code: []byte{0x60, 0x80, 0x60, 0x40},
		results: map[string][]interface{}{
			"totalSupply":          {big.NewInt(120)},
			"maxSupply":            {big.NewInt(1000)},
			"maxMintAmountPerTx":   {big.NewInt(5)},
			"cost":                 {big.NewInt(10000000000000000)}, // 0.01 ETH
			"paused":               {false},
			"whitelistMintEnabled": {true},
			"merkleRoot":           {[32]byte{0xab, 0xcd}},
		},
		failMethods: make(map[string]bool),
		callCount:   make(map[string]int),
	}
}

func (fb *fakeBackend) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return fb.code, nil
}

func (fb *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("调用数据过短")
	}

	method, err := MintABI().MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}

	fb.mu.Lock()
	fb.callCount[method.Name]++
	fail := fb.failMethods[method.Name]
	values := fb.results[method.Name]
	fb.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("模拟的节点错误: %s", method.Name)
	}

	return method.Outputs.Pack(values...)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func resolveTestHandle(t *testing.T, backend *fakeBackend) *Handle {
	t.Helper()
	handle, mintErr := Resolve(context.Background(), backend, testContractAddress, 1, testLogger())
	require.Nil(t, mintErr)
	return handle
}

func TestResolve(t *testing.T) {
	backend := newFakeBackend()
	handle := resolveTestHandle(t, backend)

	assert.Equal(t, common.HexToAddress(testContractAddress), handle.Address())
	assert.Equal(t, uint64(1), handle.ChainID())
}

func TestResolve_InvalidAddress(t *testing.T) {
	backend := newFakeBackend()

	_, mintErr := Resolve(context.Background(), backend, "not-an-address", 1, testLogger())
	require.NotNil(t, mintErr)
	assert.Equal(t, "INVALID_CONTRACT_ADDRESS", mintErr.Code)
}

func TestResolve_NoCode(t *testing.T) {
	backend := newFakeBackend()
	backend.code = nil

	// 地址上没有合约代码视为合约未就绪
	_, mintErr := Resolve(context.Background(), backend, testContractAddress, 1, testLogger())
	require.NotNil(t, mintErr)
	assert.Equal(t, "CONTRACT_NOT_DEPLOYED", mintErr.Code)
}

func TestSynchronizer_Refresh(t *testing.T) {
	backend := newFakeBackend()
	handle := resolveTestHandle(t, backend)
	syncer := NewSynchronizer(handle, testLogger())

	snapshot, err := syncer.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(120), snapshot.TotalSupply)
	assert.Equal(t, uint64(1000), snapshot.MaxSupply)
	assert.Equal(t, uint64(5), snapshot.MaxMintPerTx)
	assert.Equal(t, big.NewInt(10000000000000000), snapshot.TokenPrice)
	assert.False(t, snapshot.IsPaused)
	assert.True(t, snapshot.IsWhitelistEnabled)
	assert.False(t, snapshot.FetchedAt.IsZero())

	// merkleRoot以0x前缀十六进制呈现
	expectedRoot := "0xabcd" + hex.EncodeToString(make([]byte, 30))
	assert.Equal(t, expectedRoot, snapshot.MerkleRoot)

	// 七项读取各发起一次
	backend.mu.Lock()
	defer backend.mu.Unlock()
	for _, method := range []string{"totalSupply", "maxSupply", "maxMintAmountPerTx",
		"cost", "paused", "whitelistMintEnabled", "merkleRoot"} {
		assert.Equal(t, 1, backend.callCount[method], "方法 %s 调用次数不符", method)
	}
}

func TestSynchronizer_Refresh_FailFast(t *testing.T) {
	backend := newFakeBackend()
	backend.failMethods["cost"] = true

	handle := resolveTestHandle(t, backend)
	syncer := NewSynchronizer(handle, testLogger())

	// 任一读取失败则整次刷新失败，不发布部分快照
	snapshot, err := syncer.Refresh(context.Background())
	assert.Error(t, err)
	assert.Nil(t, snapshot)
}

func TestPackMint(t *testing.T) {
	backend := newFakeBackend()
	handle := resolveTestHandle(t, backend)

	data, err := handle.PackMint(3)
	require.NoError(t, err)

	method, err := MintABI().MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "mint", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3), args[0])
}

func TestPackWhitelistMint(t *testing.T) {
	backend := newFakeBackend()
	handle := resolveTestHandle(t, backend)

	proof := [][32]byte{{0x01}, {0x02}}
	data, err := handle.PackWhitelistMint(2, proof)
	require.NoError(t, err)

	method, err := MintABI().MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "whitelistMint", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2), args[0])
	assert.Equal(t, proof, args[1])
}
