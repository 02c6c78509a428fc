package session

import (
	"context"
	"sync"
	"sync/atomic"

	"mintgate/internal/config"
	"mintgate/internal/contract"
	"mintgate/internal/errors"
	"mintgate/internal/events"
	"mintgate/internal/journal"
	"mintgate/internal/logging"
	"mintgate/internal/orchestrator"
	"mintgate/internal/provider"
	"mintgate/internal/wallet"
	"mintgate/internal/whitelist"
	"mintgate/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Status 会话状态
type Status string

const (
	StatusDisconnected     Status = "disconnected"      // 未连接
	StatusConnecting       Status = "connecting"        // 连接中
	StatusConnected        Status = "connected"         // 已连接
	StatusUnsupportedChain Status = "unsupported_chain" // 链不受支持（切链前为终态）
)

// View 对外暴露的可观察状态
// 整体替换，绝不做字段级修改，展示层任何时刻读到的都是一致视图。
type View struct {
	Status        Status                   `json:"status"`
	Session       *models.WalletSession    `json:"session,omitempty"`
	Snapshot      *models.ContractSnapshot `json:"snapshot,omitempty"`
	ContractReady bool                     `json:"contract_ready"`
	Loading       bool                     `json:"loading"`
	LastError     *errors.MintError        `json:"last_error,omitempty"`
	InFlight      *models.MintTransaction  `json:"in_flight,omitempty"`
}

// eventKind 入站消息类型
type eventKind int

const (
	evConnectRequested  eventKind = iota // 连接请求
	evAccountsChanged                    // 提供者账户变更
	evChainChanged                       // 提供者链变更
	evSnapshotRefreshed                  // 快照刷新完成
	evMintSettled                        // 铸造到达终态
	evErrorDismissed                     // 用户关闭错误提示
)

// event 入站消息
// 提供者回调与命令统一作为消息投递给状态机，按到达顺序处理，
// 前一条消息的状态迁移完成之前不处理下一条。
type event struct {
	kind     eventKind
	accounts []common.Address
	chainID  uint64
	snapshot *models.ContractSnapshot
	err      *errors.MintError
	epoch    uint64 // 异步结果携带发起时的纪元
}

// Controller 会话控制器
// 组合钱包会话管理、合约状态同步与交易编排，
// 独占持有唯一的会话状态对象并向展示层暴露。
type Controller struct {
	cfg          *config.Config
	logger       *logrus.Logger
	structured   *logging.StructuredLogger
	manager      *wallet.Manager
	tree         *whitelist.Tree
	mintJournal  *journal.Journal
	sink         events.Sink
	errorHandler *errors.ErrorHandler

	eventChan chan *event
	epoch     atomic.Uint64 // 初始化纪元：过期的初始化结果直接丢弃

	mu     sync.RWMutex
	view   View
	prov   provider.Provider
	handle *contract.Handle
	syncer *contract.Synchronizer
	orch   *orchestrator.Orchestrator
}

// NewController 创建会话控制器
func NewController(cfg *config.Config, tree *whitelist.Tree, mintJournal *journal.Journal,
	sink events.Sink, logger *logrus.Logger, logCfg *logging.LogConfig) (*Controller, error) {

	structured, err := logging.NewStructuredLogger(logCfg)
	if err != nil {
		return nil, err
	}

	return &Controller{
		cfg:          cfg,
		logger:       logger,
		structured:   structured,
		manager:      wallet.NewManager(cfg, logger),
		tree:         tree,
		mintJournal:  mintJournal,
		sink:         sink,
		errorHandler: errors.NewErrorHandler(logger),
		eventChan:    make(chan *event, 16),
		view:         View{Status: StatusDisconnected},
	}, nil
}

// Start 启动控制器
// 探测钱包提供者并发起首次连接。探测失败不是致命错误：
// 控制器进入只读模式，白名单查询与状态查看仍然可用。
func (c *Controller) Start(ctx context.Context) {
	go c.run(ctx)

	prov, detectErr := c.manager.Detect(ctx)
	if detectErr != nil {
		c.errorHandler.Handle(detectErr)
		c.replaceView(View{Status: StatusDisconnected, LastError: detectErr})
		c.logger.Warn("进入只读模式：无钱包提供者")
		return
	}

	logging.NewRPCLogger(c.structured, "web3_clientVersion", prov.URL()).Info("钱包提供者已连接")

	// 后台维护端点健康缓存，再次探测时直接落到健康端点
	c.manager.StartHealthChecker(ctx)

	orch := orchestrator.NewOrchestrator(prov, c.tree, c.mintJournal, c.sink, c.errorHandler, c.logger)
	orch.SetConfirmedCallback(c.refreshAfterMint)

	c.mu.Lock()
	c.prov = prov
	c.orch = orch
	c.mu.Unlock()

	// 监听提供者侧的账户与链变更
	c.manager.Subscribe(ctx, prov,
		func(accounts []common.Address) {
			c.post(&event{kind: evAccountsChanged, accounts: accounts})
		},
		func(chainID uint64) {
			c.post(&event{kind: evChainChanged, chainID: chainID})
		})

	c.post(&event{kind: evConnectRequested})
}

// run 状态机主循环
// 所有状态迁移都在这里串行执行，保证消息按到达顺序完整处理。
func (c *Controller) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("会话控制器已停止")
			return
		case ev := <-c.eventChan:
			c.handleEvent(ctx, ev)
		}
	}
}

// handleEvent 唯一的状态迁移函数
func (c *Controller) handleEvent(ctx context.Context, ev *event) {
	switch ev.kind {
	case evConnectRequested:
		c.initialize(ctx, c.epoch.Add(1))

	case evAccountsChanged:
		// 账户变更重做完整初始化：新账户可能属于不同的信任层级
		c.publishEvent(models.NewLifecycleEvent(models.EventAccountChanged))
		if len(ev.accounts) == 0 {
			c.epoch.Add(1)
			c.replaceView(View{Status: StatusDisconnected})
			c.publishEvent(models.NewLifecycleEvent(models.EventSessionDisconnected))
			return
		}
		c.initialize(ctx, c.epoch.Add(1))

	case evChainChanged:
		// 链变更不可原地恢复：合约地址与价格都与链绑定，整体重置后重新初始化
		c.publishEvent(models.NewLifecycleEvent(models.EventChainChanged).WithChainID(ev.chainID))
		c.replaceView(View{Status: StatusDisconnected})
		c.initialize(ctx, c.epoch.Add(1))

	case evSnapshotRefreshed:
		// 刷新发起后若已发生链/账户重置，旧链句柄读出的快照必须丢弃
		if ev.epoch != c.epoch.Load() {
			c.logger.Debugf("丢弃过期的快照刷新结果 (纪元 %d, 当前 %d)", ev.epoch, c.epoch.Load())
			return
		}
		c.updateView(func(v View) View {
			v.Snapshot = ev.snapshot
			return v
		})

	case evMintSettled:
		c.updateView(func(v View) View {
			v.Loading = false
			v.InFlight = nil
			if ev.err != nil {
				v.LastError = ev.err
			}
			return v
		})

	case evErrorDismissed:
		// 关闭错误提示不隐式重试失败的操作
		c.updateView(func(v View) View {
			v.LastError = nil
			return v
		})
	}
}

// initialize 完整的会话初始化
// 连接 → 链检查 → 合约解析 → 快照刷新。任何一步结束时如果
// 纪元已更新（更新的变更事件已到达），结果直接丢弃。
func (c *Controller) initialize(ctx context.Context, epoch uint64) {
	c.mu.RLock()
	prov := c.prov
	c.mu.RUnlock()

	if prov == nil {
		return
	}

	c.replaceView(View{Status: StatusConnecting, Loading: true})

	session, err := c.manager.Connect(ctx, prov)
	if err != nil {
		mintErr := errors.Classify(err, nil)
		c.errorHandler.Handle(mintErr)
		c.applyIfCurrent(epoch, View{Status: StatusDisconnected, LastError: mintErr})
		return
	}

	// 链不在支持集合内：切链前为终态，不发起任何合约读取
	if !c.manager.IsSupportedChain(session.Chain.ChainID) {
		c.errorHandler.Handle(errors.ErrUnsupportedChain)
		c.applyIfCurrent(epoch, View{
			Status:    StatusUnsupportedChain,
			Session:   session,
			LastError: errors.ErrUnsupportedChain,
		})
		return
	}

	network, _ := c.cfg.NetworkForChainID(session.Chain.ChainID)

	handle, resolveErr := contract.Resolve(ctx, prov, network.ContractAddress, session.Chain.ChainID, c.logger)
	if resolveErr != nil {
		// 合约未就绪："contract not ready" 状态保持到重新连接，禁止铸造
		c.errorHandler.Handle(resolveErr)
		c.applyIfCurrent(epoch, View{
			Status:    StatusConnected,
			Session:   session,
			LastError: resolveErr,
		})
		return
	}

	syncer := contract.NewSynchronizer(handle, c.logger)

	snapshot, refreshErr := syncer.Refresh(ctx)
	if refreshErr != nil {
		mintErr := errors.Classify(refreshErr, nil)
		c.errorHandler.Handle(mintErr)
		c.applyIfCurrent(epoch, View{
			Status:    StatusConnected,
			Session:   session,
			LastError: mintErr,
		})
		return
	}

	c.verifyMerkleRoot(snapshot)

	if !c.applyIfCurrent(epoch, View{
		Status:        StatusConnected,
		Session:       session,
		Snapshot:      snapshot,
		ContractReady: true,
	}) {
		return
	}

	c.mu.Lock()
	c.handle = handle
	c.syncer = syncer
	c.mu.Unlock()

	logging.NewSessionLogger(c.structured, session.Address).
		Info("会话初始化完成", "chain", session.Chain.Name, "supply", snapshot.TotalSupply)
	c.publishEvent(models.NewLifecycleEvent(models.EventSessionConnected).
		WithAddress(session.Address).
		WithChainID(session.Chain.ChainID))
}

// verifyMerkleRoot 本地树根与链上配置根交叉校验
// 规范化规则（大小写、排序、补齐）的任何不一致都会让合法用户
// 无法通过链上验证，必须在这里暴露出来。
func (c *Controller) verifyMerkleRoot(snapshot *models.ContractSnapshot) {
	localRoot := c.tree.Root().Hex()
	if snapshot.MerkleRoot != localRoot {
		c.logger.Warnf("Merkle根不一致: 本地 %s, 链上 %s（白名单铸造可能全部失败）",
			localRoot, snapshot.MerkleRoot)
		c.errorHandler.Handle(errors.NewMintError(errors.KindContractUnready, errors.SeverityHigh,
			"MERKLE_ROOT_MISMATCH", "本地白名单树根与链上配置不一致"))
	}
}

// Mint 发起公售铸造
func (c *Controller) Mint(ctx context.Context, amount uint64) (*models.MintTransaction, *errors.MintError) {
	return c.submitMint(ctx, models.MintKindPublic, amount)
}

// WhitelistMint 发起白名单铸造
func (c *Controller) WhitelistMint(ctx context.Context, amount uint64) (*models.MintTransaction, *errors.MintError) {
	return c.submitMint(ctx, models.MintKindWhitelist, amount)
}

// submitMint 提交铸造并在后台等待确认
// 提交立刻返回Pending交易；确认流程不阻塞状态机主循环。
func (c *Controller) submitMint(ctx context.Context, kind models.MintKind, amount uint64) (*models.MintTransaction, *errors.MintError) {
	c.mu.RLock()
	view := c.view
	handle := c.handle
	orch := c.orch
	c.mu.RUnlock()

	if orch == nil {
		c.errorHandler.Handle(errors.ErrNoProvider)
		return nil, errors.ErrNoProvider
	}

	// 网络不匹配时直接拒绝，不发起任何合约读取
	if view.Status == StatusUnsupportedChain {
		c.errorHandler.Handle(errors.ErrUnsupportedChain)
		return nil, errors.ErrUnsupportedChain
	}

	if view.Status != StatusConnected || !view.ContractReady {
		c.errorHandler.Handle(errors.ErrContractNotResolved)
		return nil, errors.ErrContractNotResolved
	}

	mintTx, mintErr := orch.SubmitMint(ctx, handle, view.Session, view.Snapshot, kind, amount)
	if mintErr != nil {
		return nil, mintErr
	}

	logging.NewMintLogger(c.structured, string(kind), mintTx.Hash).
		Info("铸造交易已提交", "amount", amount, "value", mintTx.Value.String())

	// 对外只暴露副本：确认流程还会继续更新编排器内部的实例
	submitted := *mintTx
	c.updateView(func(v View) View {
		v.Loading = true
		v.InFlight = &submitted
		return v
	})

	// 后台等待确认，终态后通过消息回到状态机
	go func() {
		settleErr := orch.AwaitConfirmation(context.Background(), mintTx)
		c.post(&event{kind: evMintSettled, err: settleErr})
	}()

	return &submitted, nil
}

// refreshAfterMint 铸造确认后的快照刷新
// 在确认协程中执行；结果事件携带发起时的纪元，重置后到达的结果被丢弃。
func (c *Controller) refreshAfterMint(ctx context.Context) {
	epoch := c.epoch.Load()

	c.mu.RLock()
	syncer := c.syncer
	c.mu.RUnlock()

	if syncer == nil {
		return
	}

	snapshot, err := syncer.Refresh(ctx)
	if err != nil {
		c.logger.Warnf("铸造后刷新快照失败: %v", err)
		return
	}

	c.post(&event{kind: evSnapshotRefreshed, snapshot: snapshot, epoch: epoch})
	c.publishEvent(models.NewLifecycleEvent(models.EventSnapshotRefreshed))
}

// ProofFor 查询地址的白名单Merkle证明
func (c *Controller) ProofFor(address string) []string {
	return c.tree.ProofHex(address)
}

// Contains 查询地址是否在白名单内
func (c *Controller) Contains(address string) bool {
	return c.tree.Contains(address)
}

// DismissError 关闭当前错误提示
func (c *Controller) DismissError() {
	c.post(&event{kind: evErrorDismissed})
}

// Reconnect 重新发起连接
func (c *Controller) Reconnect() {
	c.post(&event{kind: evConnectRequested})
}

// View 返回当前可观察状态（值拷贝）
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	view := c.view
	if c.orch != nil {
		view.InFlight = c.orch.InFlight()
	}
	return view
}

// ErrorStats 返回错误统计
func (c *Controller) ErrorStats() *errors.ErrorStats {
	return c.errorHandler.Stats()
}

// EndpointStats 返回提供者端点健康统计
func (c *Controller) EndpointStats() map[string]interface{} {
	return c.manager.EndpointStats()
}

// Close 关闭控制器持有的资源
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prov != nil {
		c.prov.Close()
		c.prov = nil
	}
}

// post 投递入站消息
func (c *Controller) post(ev *event) {
	c.eventChan <- ev
}

// replaceView 整体替换可观察状态
func (c *Controller) replaceView(view View) {
	c.mu.Lock()
	c.view = view
	c.mu.Unlock()
}

// updateView 基于当前值构造新视图后整体替换
func (c *Controller) updateView(fn func(View) View) {
	c.mu.Lock()
	c.view = fn(c.view)
	c.mu.Unlock()
}

// applyIfCurrent 仅当纪元仍然有效时应用视图
// 过期的初始化结果直接丢弃，避免旧数据覆盖新状态。
func (c *Controller) applyIfCurrent(epoch uint64, view View) bool {
	if c.epoch.Load() != epoch {
		c.logger.Debugf("丢弃过期的初始化结果 (纪元 %d, 当前 %d)", epoch, c.epoch.Load())
		return false
	}
	c.replaceView(view)
	return true
}

// publishEvent 发布生命周期事件
func (c *Controller) publishEvent(event *models.LifecycleEvent) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Publish(event); err != nil {
		c.logger.Warnf("发布事件失败: %v", err)
	}
}
