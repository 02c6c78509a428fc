package models

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

func TestSnapshot_SoldOut(t *testing.T) {
	tests := []struct {
		name        string
		totalSupply uint64
		maxSupply   uint64
		expected    bool
	}{
		{"未售罄", 100, 1000, false},
		{"恰好售罄", 1000, 1000, true},
		{"超发视为售罄", 1001, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := &ContractSnapshot{TotalSupply: tt.totalSupply, MaxSupply: tt.maxSupply}
			assert.Equal(t, tt.expected, snapshot.SoldOut())
		})
	}
}

func TestSnapshot_TotalCost(t *testing.T) {
	snapshot := &ContractSnapshot{TokenPrice: big.NewInt(10000000000000000)} // 0.01 ETH

	assert.Equal(t, big.NewInt(30000000000000000), snapshot.TotalCost(3))
	assert.Equal(t, big.NewInt(0), snapshot.TotalCost(0))
}

func TestWalletSession_Normalization(t *testing.T) {
	session := NewWalletSession("0x5B38Da6a701c568545dCfcB03FcB875f56beddC4", 1, "Ethereum Mainnet")

	assert.Equal(t, "0x5b38da6a701c568545dcfcb03fcb875f56beddc4", session.Address)
	assert.Equal(t, "0x5b38...ddc4", session.ShortAddress())
}

func TestMintTransaction_ApplyReceipt(t *testing.T) {
	mintTx := &MintTransaction{Hash: "0x01", Status: MintStatusPending}
	assert.False(t, mintTx.IsTerminal())

	mintTx.ApplyReceipt(&types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(123),
		GasUsed:     91000,
	})

	assert.Equal(t, MintStatusConfirmed, mintTx.Status)
	assert.Equal(t, uint64(123), mintTx.BlockNumber)
	assert.Equal(t, uint64(91000), mintTx.GasUsed)
	assert.False(t, mintTx.CompletedAt.IsZero())
	assert.True(t, mintTx.IsTerminal())

	// 回滚的回执转为失败终态
	failed := &MintTransaction{Hash: "0x02", Status: MintStatusPending}
	failed.ApplyReceipt(&types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(124)})
	assert.Equal(t, MintStatusFailed, failed.Status)

	// 空回执不改变状态
	pending := &MintTransaction{Hash: "0x03", Status: MintStatusPending}
	pending.ApplyReceipt(nil)
	assert.Equal(t, MintStatusPending, pending.Status)
}
