package orchestrator

import (
	"context"
	"math/big"
	"sync"
	"time"

	"mintgate/internal/contract"
	"mintgate/internal/decoder"
	"mintgate/internal/errors"
	"mintgate/internal/events"
	"mintgate/internal/journal"
	"mintgate/internal/provider"
	"mintgate/internal/whitelist"
	"mintgate/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// DefaultReceiptPollInterval 回执轮询间隔
const DefaultReceiptPollInterval = 3 * time.Second

// ConfirmedFunc 铸造确认后的回调（触发快照刷新）
type ConfirmedFunc func(ctx context.Context)

// Orchestrator 交易编排器
// 提交铸造调用、跟踪其生命周期、确认后触发状态刷新。
// 单会话任何时刻最多一笔在途交易：第二次提交在本地直接拒绝，
// 不排队也不发起网络请求，避免余额被重复占用。
type Orchestrator struct {
	provider      provider.Provider
	tree          *whitelist.Tree
	journal       *journal.Journal
	sink          events.Sink
	revertDecoder *decoder.RevertDecoder
	errorHandler  *errors.ErrorHandler
	logger        *logrus.Logger
	pollInterval  time.Duration
	onConfirmed   ConfirmedFunc

	mu       sync.Mutex
	inFlight *models.MintTransaction // 在途令牌，终态时清空
}

// NewOrchestrator 创建交易编排器
func NewOrchestrator(p provider.Provider, tree *whitelist.Tree, mintJournal *journal.Journal,
	sink events.Sink, errorHandler *errors.ErrorHandler, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		provider:      p,
		tree:          tree,
		journal:       mintJournal,
		sink:          sink,
		revertDecoder: decoder.NewRevertDecoder(logger),
		errorHandler:  errorHandler,
		logger:        logger,
		pollInterval:  DefaultReceiptPollInterval,
	}
}

// SetConfirmedCallback 设置确认回调
func (o *Orchestrator) SetConfirmedCallback(fn ConfirmedFunc) {
	o.onConfirmed = fn
}

// SetPollInterval 设置回执轮询间隔（测试用）
func (o *Orchestrator) SetPollInterval(interval time.Duration) {
	o.pollInterval = interval
}

// InFlight 返回当前在途交易的副本（没有时为nil）
// 确认流程仍会更新内部实例，调用方拿到的视图不随之改变，也不会读到撕裂状态。
func (o *Orchestrator) InFlight() *models.MintTransaction {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight == nil {
		return nil
	}
	snapshot := *o.inFlight
	return &snapshot
}

// SubmitMint 提交铸造调用
// 本地校验全部通过后发送交易，立即返回Pending状态的交易句柄，
// 不等待确认。kind为白名单时附带Merkle证明，支付金额为 amount × 单价。
func (o *Orchestrator) SubmitMint(ctx context.Context, handle *contract.Handle,
	session *models.WalletSession, snapshot *models.ContractSnapshot,
	kind models.MintKind, amount uint64) (*models.MintTransaction, *errors.MintError) {

	// 占用在途令牌；已占用时本地拒绝，不发起任何网络请求
	o.mu.Lock()
	if o.inFlight != nil {
		o.mu.Unlock()
		return nil, errors.ErrMintInFlight
	}
	reservation := &models.MintTransaction{
		Kind:        kind,
		Amount:      amount,
		Status:      models.MintStatusPending,
		SubmittedAt: time.Now(),
	}
	o.inFlight = reservation
	o.mu.Unlock()

	mintTx, mintErr := o.submit(ctx, handle, session, snapshot, reservation)
	if mintErr != nil {
		o.clearInFlight()
		o.errorHandler.Handle(mintErr)
		return nil, mintErr
	}

	return mintTx, nil
}

// submit 校验并发送铸造交易
func (o *Orchestrator) submit(ctx context.Context, handle *contract.Handle,
	session *models.WalletSession, snapshot *models.ContractSnapshot,
	mintTx *models.MintTransaction) (*models.MintTransaction, *errors.MintError) {

	if session == nil {
		return nil, errors.ErrNoAccounts
	}
	if handle == nil || snapshot == nil {
		return nil, errors.ErrContractNotResolved
	}

	// 售罄后拒绝任何数量的铸造
	if snapshot.SoldOut() {
		return nil, errors.ErrSoldOut
	}
	if mintTx.Amount == 0 || mintTx.Amount > snapshot.MaxMintPerTx {
		return nil, errors.ErrAmountExceedsLimit
	}
	if snapshot.TotalSupply+mintTx.Amount > snapshot.MaxSupply {
		return nil, errors.ErrSoldOut
	}

	var data []byte
	var err error

	switch mintTx.Kind {
	case models.MintKindWhitelist:
		if !snapshot.IsWhitelistEnabled {
			return nil, errors.ErrWhitelistDisabled
		}
		// 单叶树的合法证明为空，成员判定不能依赖证明长度
		if !o.tree.Contains(session.Address) {
			return nil, errors.ErrNotWhitelisted
		}
		proof := o.tree.ProofFor(session.Address)
		data, err = handle.PackWhitelistMint(mintTx.Amount, proofToBytes32(proof))
	default:
		if snapshot.IsPaused {
			return nil, errors.ErrSalePaused
		}
		data, err = handle.PackMint(mintTx.Amount)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.KindTransaction, errors.SeverityMedium,
			"ENCODE_FAILED", "编码铸造调用失败")
	}

	value := snapshot.TotalCost(mintTx.Amount)
	from := common.HexToAddress(session.Address)

	txHash, err := o.provider.SendTransaction(ctx, provider.SendTxArgs{
		From:  from,
		To:    handle.Address(),
		Value: value,
		Data:  data,
	})
	if err != nil {
		// 按优先级提取最具体的错误信息后归类
		return nil, errors.Classify(err, o.revertDecoder)
	}

	mintTx.Hash = txHash.Hex()
	mintTx.Value = value
	mintTx.From = session.Address

	o.logger.Infof("铸造交易已提交: %s (kind=%s amount=%d value=%s)",
		mintTx.Hash, mintTx.Kind, mintTx.Amount, value.String())

	o.publishEvent(models.NewLifecycleEvent(models.EventMintSubmitted).
		WithAddress(session.Address).
		WithTxHash(mintTx.Hash).
		WithDetail("kind", string(mintTx.Kind)))

	return mintTx, nil
}

// AwaitConfirmation 等待交易确认
// 阻塞当前调用流（不阻塞其他操作）直到链上返回回执。
// 确认后触发快照刷新；失败时保证不刷新快照。
func (o *Orchestrator) AwaitConfirmation(ctx context.Context, mintTx *models.MintTransaction) *errors.MintError {
	defer o.clearInFlight()

	receipt, err := o.pollReceipt(ctx, common.HexToHash(mintTx.Hash))
	if err != nil {
		mintErr := errors.Classify(err, o.revertDecoder).WithTxHash(mintTx.Hash)
		// 字段更新与InFlight的副本读取共用同一把锁
		o.mu.Lock()
		mintTx.Status = models.MintStatusFailed
		mintTx.CompletedAt = time.Now()
		mintTx.Error = mintErr.Message
		o.mu.Unlock()
		o.finishFailed(mintTx, mintErr)
		return mintErr
	}

	o.mu.Lock()
	mintTx.ApplyReceipt(receipt)
	failed := mintTx.Status == models.MintStatusFailed
	o.mu.Unlock()

	if failed {
		// 不复用预定义错误实例：WithTxHash会修改接收者
		mintErr := errors.NewMintError(errors.KindTransaction, errors.SeverityMedium,
			"EXECUTION_REVERTED", "交易执行被回滚").WithTxHash(mintTx.Hash)
		o.mu.Lock()
		mintTx.Error = mintErr.Message
		o.mu.Unlock()
		o.finishFailed(mintTx, mintErr)
		return mintErr
	}

	o.logger.Infof("铸造交易已确认: %s (区块 %d, gas %d)", mintTx.Hash, mintTx.BlockNumber, mintTx.GasUsed)
	o.recordTerminal(mintTx)
	o.publishEvent(models.NewLifecycleEvent(models.EventMintConfirmed).
		WithAddress(mintTx.From).
		WithTxHash(mintTx.Hash).
		WithDetail("amount", big.NewInt(int64(mintTx.Amount)).String()))

	// 确认后刷新合约快照
	if o.onConfirmed != nil {
		o.onConfirmed(ctx)
	}

	return nil
}

// pollReceipt 轮询交易回执直到上链
func (o *Orchestrator) pollReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := o.provider.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if err != ethereum.NotFound {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// finishFailed 处理失败终态：记录流水并上报错误，不触发刷新
func (o *Orchestrator) finishFailed(mintTx *models.MintTransaction, mintErr *errors.MintError) {
	o.logger.Warnf("铸造交易失败: %s: %s", mintTx.Hash, mintErr.Message)
	o.recordTerminal(mintTx)
	o.errorHandler.Handle(mintErr)
	o.publishEvent(models.NewLifecycleEvent(models.EventMintFailed).
		WithAddress(mintTx.From).
		WithTxHash(mintTx.Hash).
		WithDetail("reason", mintErr.Message))
}

// recordTerminal 将终态交易写入流水
func (o *Orchestrator) recordTerminal(mintTx *models.MintTransaction) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Record(mintTx); err != nil {
		o.logger.Warnf("写入铸造流水失败: %v", err)
	}
}

// publishEvent 发布生命周期事件
func (o *Orchestrator) publishEvent(event *models.LifecycleEvent) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Publish(event); err != nil {
		o.logger.Warnf("发布事件失败: %v", err)
	}
}

// clearInFlight 释放在途令牌
func (o *Orchestrator) clearInFlight() {
	o.mu.Lock()
	o.inFlight = nil
	o.mu.Unlock()
}

// proofToBytes32 转换证明为ABI参数形式
func proofToBytes32(proof []whitelist.Hash) [][32]byte {
	out := make([][32]byte, len(proof))
	for i, h := range proof {
		out[i] = h
	}
	return out
}
