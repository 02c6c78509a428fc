package wallet

import (
	"context"
	"fmt"
	"time"

	"mintgate/internal/config"
	"mintgate/internal/connection"
	"mintgate/internal/errors"
	"mintgate/internal/provider"
	"mintgate/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Manager 钱包会话管理器
// 负责探测提供者、建立会话、监听账户与链的变更。
// 端点集合由管理器持有，跨多次探测与重连复用健康缓存。
type Manager struct {
	cfg          *config.Config
	logger       *logrus.Logger
	pollInterval time.Duration
	endpoints    *connection.EndpointSet
}

// NewManager 创建钱包会话管理器
func NewManager(cfg *config.Config, logger *logrus.Logger) *Manager {
	pollInterval := 5 * time.Second
	timeout := 15 * time.Second
	var urls []string

	if cfg.Provider != nil {
		if cfg.Provider.PollInterval != "" {
			if parsed, err := time.ParseDuration(cfg.Provider.PollInterval); err == nil {
				pollInterval = parsed
			} else {
				logger.Warnf("解析轮询间隔失败，使用默认值5s: %v", err)
			}
		}
		if parsed, err := time.ParseDuration(cfg.Provider.Timeout); err == nil {
			timeout = parsed
		}
		urls = append([]string{cfg.Provider.URL}, cfg.Provider.FallbackURLs...)
	}

	return &Manager{
		cfg:          cfg,
		logger:       logger,
		pollInterval: pollInterval,
		endpoints:    connection.NewEndpointSet(urls, timeout, logger),
	}
}

// Detect 探测钱包提供者
func (m *Manager) Detect(ctx context.Context) (provider.Provider, *errors.MintError) {
	return provider.Detect(ctx, m.cfg.Provider, m.endpoints, m.logger)
}

// StartHealthChecker 启动端点周期健康检查
func (m *Manager) StartHealthChecker(ctx context.Context) {
	m.endpoints.StartHealthChecker(ctx, m.pollInterval)
}

// EndpointStats 返回端点健康统计
func (m *Manager) EndpointStats() map[string]interface{} {
	return m.endpoints.Stats()
}

// Connect 建立钱包会话
// 请求账户访问并读取当前链，返回首个账户构成的会话。
// 提供者返回的错误（用户拒绝、请求已挂起）原样归类后向上传递。
func (m *Manager) Connect(ctx context.Context, p provider.Provider) (*models.WalletSession, error) {
	accounts, err := p.RequestAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, errors.ErrNoAccounts
	}

	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	session := models.NewWalletSession(accounts[0].Hex(), chainID.Uint64(), m.chainName(chainID.Uint64()))
	m.logger.Infof("钱包会话已建立: %s @ %s", session.ShortAddress(), session.Chain.Name)
	return session, nil
}

// IsSupportedChain 判断链ID是否在支持集合内
func (m *Manager) IsSupportedChain(chainID uint64) bool {
	_, err := m.cfg.NetworkForChainID(chainID)
	return err == nil
}

// chainName 返回链的展示名称
func (m *Manager) chainName(chainID uint64) string {
	if network, err := m.cfg.NetworkForChainID(chainID); err == nil {
		return network.Name
	}
	return fmt.Sprintf("chain %d", chainID)
}

// Subscribe 监听提供者侧的账户与链变更
// 通过轮询提供者实现，变更以回调形式按发生顺序逐个通知，
// 前一个回调处理完成前不会发出下一个。
func (m *Manager) Subscribe(ctx context.Context, p provider.Provider,
	onAccountsChanged func(accounts []common.Address), onChainChanged func(chainID uint64)) {

	go func() {
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()

		var lastAccount common.Address
		var lastChainID uint64
		initialized := false

		for {
			select {
			case <-ctx.Done():
				m.logger.Debug("账户/链变更监听已停止")
				return
			case <-ticker.C:
			}

			accounts, err := p.Accounts(ctx)
			if err != nil {
				m.logger.Debugf("轮询账户失败: %v", err)
				continue
			}

			chainID, err := p.ChainID(ctx)
			if err != nil {
				m.logger.Debugf("轮询链ID失败: %v", err)
				continue
			}

			var currentAccount common.Address
			if len(accounts) > 0 {
				currentAccount = accounts[0]
			}

			if !initialized {
				lastAccount = currentAccount
				lastChainID = chainID.Uint64()
				initialized = true
				continue
			}

			// 链变更优先于账户变更处理：跨链状态不可延续
			if chainID.Uint64() != lastChainID {
				m.logger.Infof("检测到链变更: %d -> %d", lastChainID, chainID.Uint64())
				lastChainID = chainID.Uint64()
				lastAccount = currentAccount
				onChainChanged(chainID.Uint64())
				continue
			}

			if currentAccount != lastAccount {
				m.logger.Infof("检测到账户变更: %s -> %s", lastAccount.Hex(), currentAccount.Hex())
				lastAccount = currentAccount
				onAccountsChanged(accounts)
			}
		}
	}()
}
