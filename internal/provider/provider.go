package provider

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"mintgate/internal/config"
	"mintgate/internal/connection"
	"mintgate/internal/errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// SendTxArgs 交易发送参数
// 签名由提供者侧完成（eth_sendTransaction），本进程不持有私钥。
type SendTxArgs struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Provider 钱包提供者边界
// 会话所需的全部能力：请求账户、读取链ID、读取地址代码、
// 发送带资金的合约调用、查询回执。账户/链变更通知由上层轮询实现。
type Provider interface {
	// RequestAccounts 请求账户访问授权
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Accounts 读取当前已授权账户（不触发授权请求）
	Accounts(ctx context.Context) ([]common.Address, error)

	// ChainID 读取当前链ID
	ChainID(ctx context.Context) (*big.Int, error)

	// CodeAt 读取地址上的合约代码
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)

	// CallContract 执行只读合约调用
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)

	// SendTransaction 发送带资金的合约调用，立即返回交易哈希
	SendTransaction(ctx context.Context, args SendTxArgs) (common.Hash, error)

	// TransactionReceipt 查询交易回执，交易未上链时返回ethereum.NotFound
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// URL 返回提供者地址（用于日志）
	URL() string

	// Close 关闭底层连接
	Close()
}

// Detect 探测钱包提供者
// 按优先级尝试配置的主端点与备用端点，连接第一个能响应身份查询的。
// 端点集合由调用方持有，健康缓存跨多次探测复用。
// 探测失败是可恢复情况：上层降级为只读模式，不阻塞其余功能。
func Detect(ctx context.Context, cfg *config.ProviderConfig, endpoints *connection.EndpointSet, logger *logrus.Logger) (Provider, *errors.MintError) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.ErrNoProvider
	}

	timeout := parseDurationOr(cfg.Timeout, 15*time.Second)
	if endpoints == nil {
		endpoints = connection.NewEndpointSet(append([]string{cfg.URL}, cfg.FallbackURLs...), timeout, logger)
	}

	var lastErr error
	for attempt := 0; attempt < endpoints.Len(); attempt++ {
		url, pickErr := endpoints.PickHealthy(ctx)
		if pickErr != nil {
			lastErr = pickErr
			break
		}

		p, err := dialProbe(ctx, url, timeout, logger)
		if err != nil {
			endpoints.MarkUnhealthy(url)
			lastErr = err
			continue
		}
		return p, nil
	}

	logger.Warnf("连接钱包提供者失败: %v", lastErr)
	return nil, errors.WrapError(lastErr, errors.KindEnvironment, errors.SeverityMedium,
		"NO_PROVIDER", "未检测到可用的钱包提供者")
}

// dialProbe 连接单个端点并确认其响应身份查询
func dialProbe(ctx context.Context, url string, timeout time.Duration, logger *logrus.Logger) (*rpcProvider, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p, err := dialRPC(dialCtx, url, timeout, logger)
	if err != nil {
		return nil, err
	}

	version, err := p.clientVersion(dialCtx)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("钱包提供者无响应: %w", err)
	}

	logger.Infof("已检测到钱包提供者: %s (%s)", version, url)
	return p, nil
}

// parseDurationOr 解析时长，失败时使用默认值
func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
