package errors

import (
	"fmt"
	"time"
)

// ErrorKind 错误类别
// 与用户可见的错误分类一一对应，决定可恢复性和提示方式。
type ErrorKind int

const (
	// KindEnvironment 环境错误：未检测到可用的钱包提供者，降级为只读模式
	KindEnvironment ErrorKind = iota

	// KindUserDeclined 用户拒绝：连接或交易被钱包用户拒绝，可完全恢复，不重试
	KindUserDeclined

	// KindNetworkMismatch 网络不匹配：当前链不在支持列表内，切链前为终态
	KindNetworkMismatch

	// KindContractUnready 合约未就绪：配置地址上没有合约代码，阻塞所有铸造操作
	KindContractUnready

	// KindTransaction 交易错误：提交被拒绝或链上执行回滚，不自动重试
	KindTransaction
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// MintError 自定义错误类型
type MintError struct {
	Kind        ErrorKind              `json:"kind"`
	Severity    ErrorSeverity          `json:"severity"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Cause       error                  `json:"-"`
	Recoverable bool                   `json:"recoverable"`
	TxHash      *string                `json:"tx_hash,omitempty"`
}

// Error 实现error接口
func (e *MintError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *MintError) Unwrap() error {
	return e.Cause
}

// IsRecoverable 判断是否可恢复
func (e *MintError) IsRecoverable() bool {
	return e.Recoverable
}

// WithContext 添加上下文信息
func (e *MintError) WithContext(key string, value interface{}) *MintError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithTxHash 添加交易哈希
func (e *MintError) WithTxHash(txHash string) *MintError {
	e.TxHash = &txHash
	return e
}

// NewMintError 创建新的错误
func NewMintError(kind ErrorKind, severity ErrorSeverity, code, message string) *MintError {
	return &MintError{
		Kind:        kind,
		Severity:    severity,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		Recoverable: determineRecoverable(kind),
	}
}

// WrapError 包装现有错误
func WrapError(err error, kind ErrorKind, severity ErrorSeverity, code, message string) *MintError {
	return &MintError{
		Kind:        kind,
		Severity:    severity,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		Cause:       err,
		Recoverable: determineRecoverable(kind),
	}
}

// determineRecoverable 根据错误类别判断是否可恢复
func determineRecoverable(kind ErrorKind) bool {
	switch kind {
	case KindUserDeclined:
		// 用户拒绝后可以重新发起
		return true
	case KindEnvironment:
		// 环境错误降级为只读，界面其余部分仍可用
		return true
	case KindTransaction:
		// 交易失败后可由用户重新发起，但绝不自动重试
		return true
	case KindNetworkMismatch, KindContractUnready:
		// 切链或重新部署之前无法恢复
		return false
	default:
		return false
	}
}

// 预定义错误
var (
	// 环境错误
	ErrNoProvider = NewMintError(
		KindEnvironment,
		SeverityMedium,
		"NO_PROVIDER",
		"未检测到可用的钱包提供者",
	)

	ErrNoAccounts = NewMintError(
		KindEnvironment,
		SeverityMedium,
		"NO_ACCOUNTS",
		"钱包中没有可用账户",
	)

	// 用户拒绝
	ErrUserRejected = NewMintError(
		KindUserDeclined,
		SeverityLow,
		"USER_REJECTED",
		"用户拒绝了请求",
	)

	// 网络不匹配
	ErrUnsupportedChain = NewMintError(
		KindNetworkMismatch,
		SeverityHigh,
		"UNSUPPORTED_CHAIN",
		"当前链不在支持的网络列表内",
	)

	// 合约未就绪
	ErrContractNotDeployed = NewMintError(
		KindContractUnready,
		SeverityHigh,
		"CONTRACT_NOT_DEPLOYED",
		"配置地址上未部署合约代码",
	)

	ErrContractNotResolved = NewMintError(
		KindContractUnready,
		SeverityHigh,
		"CONTRACT_NOT_RESOLVED",
		"合约尚未完成解析，禁止铸造操作",
	)

	// 交易错误
	ErrMintInFlight = NewMintError(
		KindTransaction,
		SeverityLow,
		"MINT_IN_FLIGHT",
		"已有一笔铸造交易在途，请等待其完成",
	)

	ErrSoldOut = NewMintError(
		KindTransaction,
		SeverityLow,
		"SOLD_OUT",
		"藏品已售罄",
	)

	ErrSalePaused = NewMintError(
		KindTransaction,
		SeverityLow,
		"SALE_PAUSED",
		"销售已暂停",
	)

	ErrWhitelistDisabled = NewMintError(
		KindTransaction,
		SeverityLow,
		"WHITELIST_DISABLED",
		"白名单铸造未开启",
	)

	ErrNotWhitelisted = NewMintError(
		KindTransaction,
		SeverityLow,
		"NOT_WHITELISTED",
		"当前账户不在白名单内",
	)

	ErrAmountExceedsLimit = NewMintError(
		KindTransaction,
		SeverityLow,
		"AMOUNT_EXCEEDS_LIMIT",
		"铸造数量超过单笔上限",
	)

	ErrExecutionReverted = NewMintError(
		KindTransaction,
		SeverityMedium,
		"EXECUTION_REVERTED",
		"交易执行被回滚",
	)
)

// 错误类别字符串映射
var kindNames = map[ErrorKind]string{
	KindEnvironment:     "Environment",
	KindUserDeclined:    "UserDeclined",
	KindNetworkMismatch: "NetworkMismatch",
	KindContractUnready: "ContractUnready",
	KindTransaction:     "Transaction",
}

// String 返回错误类别的字符串表示
func (k ErrorKind) String() string {
	if name, exists := kindNames[k]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", k)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}
