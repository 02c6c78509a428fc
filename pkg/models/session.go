package models

import (
	"fmt"
	"strings"
)

// ChainInfo 当前连接的链信息
type ChainInfo struct {
	ChainID uint64 `json:"chain_id"`
	Name    string `json:"name"`
}

// WalletSession 钱包会话
// 连接成功时创建；账户或链发生变化时整体替换；断开连接时置为nil。
// 会话对象由会话控制器独占持有，任何时候都不做字段级修改，
// 避免展示层读到部分更新的状态。
type WalletSession struct {
	Address string     `json:"address"`
	Chain   *ChainInfo `json:"chain"`
}

// NewWalletSession 创建钱包会话
func NewWalletSession(address string, chainID uint64, chainName string) *WalletSession {
	return &WalletSession{
		Address: strings.ToLower(address),
		Chain: &ChainInfo{
			ChainID: chainID,
			Name:    chainName,
		},
	}
}

// ShortAddress 返回缩略地址（用于日志展示）
func (s *WalletSession) ShortAddress() string {
	if len(s.Address) < 10 {
		return s.Address
	}
	return fmt.Sprintf("%s...%s", s.Address[:6], s.Address[len(s.Address)-4:])
}
