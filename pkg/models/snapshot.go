package models

import (
	"math/big"
	"time"
)

// ContractSnapshot 合约状态快照
// 一次性原子读取的合约配置与状态，所有字段在逻辑上属于同一时间点。
// 每次状态变更交易确认后整体替换，对其他组件只读。
type ContractSnapshot struct {
	TotalSupply        uint64    `json:"total_supply"`
	MaxSupply          uint64    `json:"max_supply"`
	MaxMintPerTx       uint64    `json:"max_mint_per_tx"`
	TokenPrice         *big.Int  `json:"token_price"` // 单位：wei
	IsPaused           bool      `json:"is_paused"`
	IsWhitelistEnabled bool      `json:"is_whitelist_enabled"`
	MerkleRoot         string    `json:"merkle_root"`
	FetchedAt          time.Time `json:"fetched_at"`
}

// SoldOut 判断是否售罄
// totalSupply >= maxSupply 时视为售罄，客户端必须拒绝后续铸造请求。
func (s *ContractSnapshot) SoldOut() bool {
	return s.TotalSupply >= s.MaxSupply
}

// TotalCost 计算铸造amount个所需的支付金额
func (s *ContractSnapshot) TotalCost(amount uint64) *big.Int {
	return new(big.Int).Mul(s.TokenPrice, new(big.Int).SetUint64(amount))
}
