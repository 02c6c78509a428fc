package provider

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// rpcProvider 基于JSON-RPC的钱包提供者实现
// 账户管理与交易签名在提供者侧完成，本实现只做调用转发。
type rpcProvider struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	url     string
	timeout time.Duration
	logger  *logrus.Logger
}

// dialRPC 建立到提供者的连接
func dialRPC(ctx context.Context, url string, timeout time.Duration, logger *logrus.Logger) (*rpcProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("连接提供者失败: %w", err)
	}

	return &rpcProvider{
		rpc:     client,
		eth:     ethclient.NewClient(client),
		url:     url,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// clientVersion 查询提供者身份
func (p *rpcProvider) clientVersion(ctx context.Context) (string, error) {
	var version string
	if err := p.rpc.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		return "", err
	}
	return version, nil
}

// RequestAccounts 请求账户访问授权
// 优先使用eth_requestAccounts（触发提供者侧授权流程），
// 提供者不支持时回退到eth_accounts。提供者返回的错误原样向上传递。
func (p *rpcProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var raw []string
	err := p.rpc.CallContext(ctx, &raw, "eth_requestAccounts")
	if err != nil {
		if !isMethodNotFound(err) {
			return nil, err
		}
		p.logger.Debug("提供者不支持 eth_requestAccounts，回退到 eth_accounts")
		if err := p.rpc.CallContext(ctx, &raw, "eth_accounts"); err != nil {
			return nil, err
		}
	}

	return toAddresses(raw), nil
}

// Accounts 读取当前已授权账户
func (p *rpcProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var raw []string
	if err := p.rpc.CallContext(ctx, &raw, "eth_accounts"); err != nil {
		return nil, err
	}
	return toAddresses(raw), nil
}

// ChainID 读取当前链ID
func (p *rpcProvider) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.eth.ChainID(ctx)
}

// CodeAt 读取地址上的合约代码
func (p *rpcProvider) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.eth.CodeAt(ctx, address, nil)
}

// CallContract 执行只读合约调用
func (p *rpcProvider) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.eth.CallContract(ctx, msg, nil)
}

// SendTransaction 通过提供者发送交易
// 使用eth_sendTransaction，签名在提供者侧完成。
func (p *rpcProvider) SendTransaction(ctx context.Context, args SendTxArgs) (common.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := map[string]interface{}{
		"from": args.From,
		"to":   args.To,
		"data": hexutil.Bytes(args.Data),
	}
	if args.Value != nil {
		params["value"] = (*hexutil.Big)(args.Value)
	}

	var txHash common.Hash
	if err := p.rpc.CallContext(ctx, &txHash, "eth_sendTransaction", params); err != nil {
		return common.Hash{}, err
	}

	return txHash, nil
}

// TransactionReceipt 查询交易回执
func (p *rpcProvider) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.eth.TransactionReceipt(ctx, txHash)
}

// URL 返回提供者地址
func (p *rpcProvider) URL() string {
	return p.url
}

// Close 关闭底层连接
func (p *rpcProvider) Close() {
	p.rpc.Close()
}

// toAddresses 转换地址列表
func toAddresses(raw []string) []common.Address {
	addresses := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		if common.IsHexAddress(s) {
			addresses = append(addresses, common.HexToAddress(s))
		}
	}
	return addresses
}

// isMethodNotFound 判断是否为方法不存在错误
func isMethodNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "method not found") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "does not exist")
}
