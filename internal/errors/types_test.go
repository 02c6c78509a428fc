package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMintError(t *testing.T) {
	err := NewMintError(KindTransaction, SeverityMedium, "TEST_ERROR", "测试错误")

	assert.NotNil(t, err)
	assert.Equal(t, KindTransaction, err.Kind)
	assert.Equal(t, SeverityMedium, err.Severity)
	assert.Equal(t, "TEST_ERROR", err.Code)
	assert.Equal(t, "测试错误", err.Message)
	assert.True(t, err.Recoverable) // 交易错误可由用户重新发起
	assert.False(t, err.Timestamp.IsZero())
}

func TestWrapError(t *testing.T) {
	originalErr := errors.New("原始错误")
	wrappedErr := WrapError(originalErr, KindEnvironment, SeverityMedium, "WRAPPED_ERROR", "包装错误")

	assert.NotNil(t, wrappedErr)
	assert.Equal(t, KindEnvironment, wrappedErr.Kind)
	assert.Equal(t, SeverityMedium, wrappedErr.Severity)
	assert.Equal(t, "WRAPPED_ERROR", wrappedErr.Code)
	assert.Equal(t, "包装错误", wrappedErr.Message)
	assert.Equal(t, originalErr, wrappedErr.Cause)
	assert.Contains(t, wrappedErr.Error(), "原始错误")
}

func TestMintError_Error(t *testing.T) {
	// 测试没有原因的错误
	err := NewMintError(KindTransaction, SeverityLow, "TEST_CODE", "测试消息")
	expected := "[TEST_CODE] 测试消息"
	assert.Equal(t, expected, err.Error())

	// 测试有原因的错误
	originalErr := errors.New("原始错误")
	wrappedErr := WrapError(originalErr, KindTransaction, SeverityLow, "TEST_CODE", "测试消息")
	expectedWithCause := "[TEST_CODE] 测试消息: 原始错误"
	assert.Equal(t, expectedWithCause, wrappedErr.Error())
}

func TestMintError_Unwrap(t *testing.T) {
	originalErr := errors.New("原始错误")
	wrappedErr := WrapError(originalErr, KindEnvironment, SeverityMedium, "WRAPPED", "包装")

	assert.Equal(t, originalErr, wrappedErr.Unwrap())

	standaloneErr := NewMintError(KindTransaction, SeverityLow, "STANDALONE", "独立错误")
	assert.Nil(t, standaloneErr.Unwrap())
}

func TestMintError_WithContext(t *testing.T) {
	err := NewMintError(KindTransaction, SeverityMedium, "MINT_ERROR", "铸造错误")

	err.WithContext("amount", 3)
	err.WithContext("account", "0x5B38Da6a701c568545dCfcB03FcB875f56beddC4")

	assert.NotNil(t, err.Context)
	assert.Equal(t, 3, err.Context["amount"])
	assert.Equal(t, "0x5B38Da6a701c568545dCfcB03FcB875f56beddC4", err.Context["account"])
}

func TestMintError_WithTxHash(t *testing.T) {
	err := NewMintError(KindTransaction, SeverityMedium, "TX_ERROR", "交易错误")

	txHash := "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	err.WithTxHash(txHash)

	assert.NotNil(t, err.TxHash)
	assert.Equal(t, txHash, *err.TxHash)
}

func TestDetermineRecoverable(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected bool
	}{
		{KindEnvironment, true},      // 降级为只读模式后其余功能仍可用
		{KindUserDeclined, true},     // 用户可重新发起
		{KindTransaction, true},      // 可重新发起，但绝不自动重试
		{KindNetworkMismatch, false}, // 切链前为终态
		{KindContractUnready, false}, // 重新部署前无法恢复
	}

	for _, tt := range tests {
		result := determineRecoverable(tt.kind)
		assert.Equal(t, tt.expected, result, "kind=%v", tt.kind)
	}
}

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		expected string
	}{
		{KindEnvironment, "Environment"},
		{KindUserDeclined, "UserDeclined"},
		{KindNetworkMismatch, "NetworkMismatch"},
		{KindContractUnready, "ContractUnready"},
		{KindTransaction, "Transaction"},
		{ErrorKind(999), "Unknown(999)"}, // 未知类别
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.kind.String())
	}
}

func TestErrorSeverity_String(t *testing.T) {
	tests := []struct {
		severity ErrorSeverity
		expected string
	}{
		{SeverityLow, "Low"},
		{SeverityMedium, "Medium"},
		{SeverityHigh, "High"},
		{SeverityCritical, "Critical"},
		{ErrorSeverity(999), "Unknown(999)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.severity.String())
	}
}

func TestPredefinedErrors(t *testing.T) {
	// 测试预定义错误是否正确初始化
	assert.Equal(t, KindEnvironment, ErrNoProvider.Kind)
	assert.Equal(t, "NO_PROVIDER", ErrNoProvider.Code)
	assert.True(t, ErrNoProvider.Recoverable)

	assert.Equal(t, KindUserDeclined, ErrUserRejected.Kind)
	assert.Equal(t, "USER_REJECTED", ErrUserRejected.Code)
	assert.True(t, ErrUserRejected.Recoverable)

	assert.Equal(t, KindNetworkMismatch, ErrUnsupportedChain.Kind)
	assert.Equal(t, SeverityHigh, ErrUnsupportedChain.Severity)
	assert.False(t, ErrUnsupportedChain.Recoverable)

	assert.Equal(t, KindContractUnready, ErrContractNotDeployed.Kind)
	assert.False(t, ErrContractNotDeployed.Recoverable)

	assert.Equal(t, KindTransaction, ErrMintInFlight.Kind)
	assert.Equal(t, "MINT_IN_FLIGHT", ErrMintInFlight.Code)
}

// 基准测试
func BenchmarkNewMintError(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewMintError(KindTransaction, SeverityMedium, "BENCH_ERROR", "基准测试错误")
	}
}

func BenchmarkMintError_Error(b *testing.B) {
	err := NewMintError(KindTransaction, SeverityMedium, "BENCH_ERROR", "基准测试错误")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = err.Error()
	}
}
