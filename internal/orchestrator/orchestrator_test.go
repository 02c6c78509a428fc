package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"mintgate/internal/contract"
	"mintgate/internal/errors"
	"mintgate/internal/provider"
	"mintgate/internal/whitelist"
	"mintgate/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContractAddress = "0x1234567890123456789012345678901234567890"

var whitelistedAddresses = []string{
	"0x5B38Da6a701c568545dCfcB03FcB875f56beddC4",
	"0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2",
	"0x4B20993Bc481177ec7E8f571ceCaE8A9e22C02db",
}

// fakeProvider 内存假提供者
// 记录发送的交易参数，回执在pendingPolls次轮询后返回。
type fakeProvider struct {
	mu            sync.Mutex
	sendErr       error
	sentArgs      []provider.SendTxArgs
	txHash        common.Hash
	receipt       *types.Receipt
	receiptErr    error
	pendingPolls  int
	receiptPolled int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		txHash: common.HexToHash("0xaaaa000000000000000000000000000000000000000000000000000000000001"),
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(123456),
			GasUsed:     91000,
		},
	}
}

func (fp *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return nil, fmt.Errorf("未实现")
}

func (fp *fakeProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	return nil, fmt.Errorf("未实现")
}

func (fp *fakeProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (fp *fakeProvider) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (fp *fakeProvider) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return nil, fmt.Errorf("未实现")
}

func (fp *fakeProvider) SendTransaction(ctx context.Context, args provider.SendTxArgs) (common.Hash, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.sendErr != nil {
		return common.Hash{}, fp.sendErr
	}
	fp.sentArgs = append(fp.sentArgs, args)
	return fp.txHash, nil
}

func (fp *fakeProvider) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.receiptErr != nil {
		return nil, fp.receiptErr
	}
	if fp.receiptPolled < fp.pendingPolls {
		fp.receiptPolled++
		return nil, ethereum.NotFound
	}
	return fp.receipt, nil
}

func (fp *fakeProvider) sendCount() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return len(fp.sentArgs)
}

func (fp *fakeProvider) URL() string { return "fake://provider" }
func (fp *fakeProvider) Close()      {}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testTree(t *testing.T) *whitelist.Tree {
	t.Helper()
	tree, err := whitelist.NewTree(whitelistedAddresses, testLogger())
	require.NoError(t, err)
	return tree
}

func testHandle(t *testing.T, fp *fakeProvider) *contract.Handle {
	t.Helper()
	handle, mintErr := contract.Resolve(context.Background(), fp, testContractAddress, 1, testLogger())
	require.Nil(t, mintErr)
	return handle
}

func testSnapshot() *models.ContractSnapshot {
	return &models.ContractSnapshot{
		TotalSupply:        120,
		MaxSupply:          1000,
		MaxMintPerTx:       5,
		TokenPrice:         big.NewInt(10000000000000000), // 0.01 ETH
		IsPaused:           false,
		IsWhitelistEnabled: true,
		FetchedAt:          time.Now(),
	}
}

func testSession() *models.WalletSession {
	return models.NewWalletSession(whitelistedAddresses[0], 1, "Ethereum Mainnet")
}

func newTestOrchestrator(t *testing.T, fp *fakeProvider) *Orchestrator {
	t.Helper()
	logger := testLogger()
	orch := NewOrchestrator(fp, testTree(t), nil, nil, errors.NewErrorHandler(logger), logger)
	orch.SetPollInterval(time.Millisecond)
	return orch
}

func TestSubmitMint_Public(t *testing.T) {
	fp := newFakeProvider()
	orch := newTestOrchestrator(t, fp)
	handle := testHandle(t, fp)

	mintTx, mintErr := orch.SubmitMint(context.Background(), handle, testSession(), testSnapshot(),
		models.MintKindPublic, 3)

	require.Nil(t, mintErr)
	assert.Equal(t, models.MintStatusPending, mintTx.Status)
	assert.Equal(t, fp.txHash.Hex(), mintTx.Hash)
	assert.NotNil(t, orch.InFlight())

	// 支付金额 = 数量 × 单价
	require.Equal(t, 1, fp.sendCount())
	sent := fp.sentArgs[0]
	assert.Equal(t, new(big.Int).Mul(big.NewInt(3), big.NewInt(10000000000000000)), sent.Value)
	assert.Equal(t, common.HexToAddress(testContractAddress), sent.To)

	// 调用数据编码为 mint(amount)
	method, err := contract.MintABI().MethodById(sent.Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "mint", method.Name)
}

func TestSubmitMint_Whitelist(t *testing.T) {
	fp := newFakeProvider()
	orch := newTestOrchestrator(t, fp)
	handle := testHandle(t, fp)
	tree := testTree(t)

	mintTx, mintErr := orch.SubmitMint(context.Background(), handle, testSession(), testSnapshot(),
		models.MintKindWhitelist, 2)

	require.Nil(t, mintErr)
	assert.Equal(t, models.MintKindWhitelist, mintTx.Kind)

	// 调用数据编码为 whitelistMint(amount, proof)，证明与本地树一致
	require.Equal(t, 1, fp.sendCount())
	sent := fp.sentArgs[0]
	method, err := contract.MintABI().MethodById(sent.Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "whitelistMint", method.Name)

	args, err := method.Inputs.Unpack(sent.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2), args[0])
	assert.Equal(t, proofToBytes32(tree.ProofFor(whitelistedAddresses[0])), args[1])
}

func TestSubmitMint_LocalRefusals(t *testing.T) {
	fp := newFakeProvider()
	orch := newTestOrchestrator(t, fp)
	handle := testHandle(t, fp)

	tests := []struct {
		name         string
		kind         models.MintKind
		amount       uint64
		session      *models.WalletSession
		mutate       func(s *models.ContractSnapshot)
		expectedCode string
	}{
		{"未连接会话", models.MintKindPublic, 1, nil, nil, "NO_ACCOUNTS"},
		{"售罄", models.MintKindPublic, 1, testSession(),
			func(s *models.ContractSnapshot) { s.TotalSupply = s.MaxSupply }, "SOLD_OUT"},
		{"数量为零", models.MintKindPublic, 0, testSession(), nil, "AMOUNT_EXCEEDS_LIMIT"},
		{"超过单笔上限", models.MintKindPublic, 6, testSession(), nil, "AMOUNT_EXCEEDS_LIMIT"},
		{"超出剩余供应", models.MintKindPublic, 5, testSession(),
			func(s *models.ContractSnapshot) { s.TotalSupply = s.MaxSupply - 2 }, "SOLD_OUT"},
		{"公售暂停", models.MintKindPublic, 1, testSession(),
			func(s *models.ContractSnapshot) { s.IsPaused = true }, "SALE_PAUSED"},
		{"白名单未开启", models.MintKindWhitelist, 1, testSession(),
			func(s *models.ContractSnapshot) { s.IsWhitelistEnabled = false }, "WHITELIST_DISABLED"},
		{"不在白名单", models.MintKindWhitelist, 1,
			models.NewWalletSession("0x0000000000000000000000000000000000000001", 1, "Ethereum Mainnet"),
			nil, "NOT_WHITELISTED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := testSnapshot()
			if tt.mutate != nil {
				tt.mutate(snapshot)
			}

			_, mintErr := orch.SubmitMint(context.Background(), handle, tt.session, snapshot, tt.kind, tt.amount)
			require.NotNil(t, mintErr)
			assert.Equal(t, tt.expectedCode, mintErr.Code)

			// 本地拒绝：不发起网络请求，在途令牌已释放
			assert.Equal(t, 0, fp.sendCount())
			assert.Nil(t, orch.InFlight())
		})
	}
}

func TestSubmitMint_SingleFlight(t *testing.T) {
	fp := newFakeProvider()
	orch := newTestOrchestrator(t, fp)
	handle := testHandle(t, fp)

	_, mintErr := orch.SubmitMint(context.Background(), handle, testSession(), testSnapshot(),
		models.MintKindPublic, 1)
	require.Nil(t, mintErr)

	// 第二次提交在本地拒绝，不发起网络请求
	_, mintErr = orch.SubmitMint(context.Background(), handle, testSession(), testSnapshot(),
		models.MintKindPublic, 1)
	require.NotNil(t, mintErr)
	assert.Equal(t, "MINT_IN_FLIGHT", mintErr.Code)
	assert.Equal(t, 1, fp.sendCount())
}

func TestSubmitMint_UserRejected(t *testing.T) {
	fp := newFakeProvider()
	fp.sendErr = fmt.Errorf("MetaMask Tx Signature: User denied transaction signature.")
	orch := newTestOrchestrator(t, fp)
	handle := testHandle(t, fp)

	_, mintErr := orch.SubmitMint(context.Background(), handle, testSession(), testSnapshot(),
		models.MintKindPublic, 1)

	require.NotNil(t, mintErr)
	assert.Equal(t, errors.KindUserDeclined, mintErr.Kind)
	// 提交失败后在途令牌立即释放，可再次发起
	assert.Nil(t, orch.InFlight())
}

func TestInFlight_ReturnsCopy(t *testing.T) {
	fp := newFakeProvider()
	fp.pendingPolls = 50
	orch := newTestOrchestrator(t, fp)
	handle := testHandle(t, fp)

	mintTx, mintErr := orch.SubmitMint(context.Background(), handle, testSession(), testSnapshot(),
		models.MintKindPublic, 1)
	require.Nil(t, mintErr)

	// 外部拿到的是副本：修改它不影响编排器内部状态
	external := orch.InFlight()
	require.NotNil(t, external)
	external.Status = models.MintStatusFailed
	assert.Equal(t, models.MintStatusPending, orch.InFlight().Status)

	// 确认流程更新在途交易期间，并发读取并序列化副本不产生撕裂状态
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			snapshot := orch.InFlight()
			if snapshot == nil {
				return
			}
			if _, err := json.Marshal(snapshot); err != nil {
				t.Errorf("序列化在途交易失败: %v", err)
				return
			}
		}
	}()

	settleErr := orch.AwaitConfirmation(context.Background(), mintTx)
	require.Nil(t, settleErr)
	<-done

	assert.Equal(t, models.MintStatusConfirmed, mintTx.Status)
	assert.Nil(t, orch.InFlight())
}

func TestAwaitConfirmation_Confirmed(t *testing.T) {
	fp := newFakeProvider()
	fp.pendingPolls = 2 // 前两次轮询回执未上链
	orch := newTestOrchestrator(t, fp)
	handle := testHandle(t, fp)

	refreshed := false
	orch.SetConfirmedCallback(func(ctx context.Context) { refreshed = true })

	mintTx, mintErr := orch.SubmitMint(context.Background(), handle, testSession(), testSnapshot(),
		models.MintKindPublic, 1)
	require.Nil(t, mintErr)

	settleErr := orch.AwaitConfirmation(context.Background(), mintTx)
	require.Nil(t, settleErr)

	assert.Equal(t, models.MintStatusConfirmed, mintTx.Status)
	assert.Equal(t, uint64(123456), mintTx.BlockNumber)
	assert.Equal(t, uint64(91000), mintTx.GasUsed)
	assert.True(t, refreshed, "确认后必须触发快照刷新")
	assert.Nil(t, orch.InFlight())
}

func TestAwaitConfirmation_Reverted(t *testing.T) {
	fp := newFakeProvider()
	fp.receipt.Status = types.ReceiptStatusFailed
	orch := newTestOrchestrator(t, fp)
	handle := testHandle(t, fp)

	refreshed := false
	orch.SetConfirmedCallback(func(ctx context.Context) { refreshed = true })

	mintTx, mintErr := orch.SubmitMint(context.Background(), handle, testSession(), testSnapshot(),
		models.MintKindPublic, 1)
	require.Nil(t, mintErr)

	settleErr := orch.AwaitConfirmation(context.Background(), mintTx)
	require.NotNil(t, settleErr)

	assert.Equal(t, models.MintStatusFailed, mintTx.Status)
	assert.Equal(t, "EXECUTION_REVERTED", settleErr.Code)
	assert.False(t, refreshed, "失败时不刷新快照")
	assert.Nil(t, orch.InFlight())
}
