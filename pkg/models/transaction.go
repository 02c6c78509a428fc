package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// MintKind 铸造类型
type MintKind string

const (
	MintKindPublic    MintKind = "public"    // 公售铸造
	MintKindWhitelist MintKind = "whitelist" // 白名单铸造
)

// MintStatus 铸造交易状态
type MintStatus string

const (
	MintStatusPending   MintStatus = "pending"   // 已提交，等待上链
	MintStatusConfirmed MintStatus = "confirmed" // 已确认
	MintStatusFailed    MintStatus = "failed"    // 执行失败或被回滚
)

// MintTransaction 铸造交易
// 钱包接受铸造调用时创建；链上回执返回后转为Confirmed或Failed。
// 终态之后不再保留在内存中，同一会话任何时刻最多一笔在途交易。
type MintTransaction struct {
	Hash        string     `json:"hash"`
	Kind        MintKind   `json:"kind"`
	Amount      uint64     `json:"amount"`
	Value       *big.Int   `json:"value"` // 实际支付金额，单位wei
	From        string     `json:"from"`
	Status      MintStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt time.Time  `json:"completed_at,omitempty"`
	BlockNumber uint64     `json:"block_number,omitempty"`
	GasUsed     uint64     `json:"gas_used,omitempty"`
}

// IsTerminal 判断是否已到达终态
func (t *MintTransaction) IsTerminal() bool {
	return t.Status == MintStatusConfirmed || t.Status == MintStatusFailed
}

// ApplyReceipt 根据链上回执更新交易状态
func (t *MintTransaction) ApplyReceipt(receipt *types.Receipt) {
	if receipt == nil {
		return
	}

	t.CompletedAt = time.Now()
	if receipt.BlockNumber != nil {
		t.BlockNumber = receipt.BlockNumber.Uint64()
	}
	t.GasUsed = receipt.GasUsed

	if receipt.Status == types.ReceiptStatusSuccessful {
		t.Status = MintStatusConfirmed
	} else {
		t.Status = MintStatusFailed
	}
}
