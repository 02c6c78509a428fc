package validation

import (
	"fmt"
	"regexp"
	"strings"

	"mintgate/internal/config"
	"mintgate/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// 地址与哈希格式
var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	hashPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []*errors.MintError `json:"errors,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

// Validator 请求与配置验证器
type Validator struct {
	logger     *logrus.Logger
	strictMode bool // 严格模式：警告也视为失败
}

// NewValidator 创建验证器
func NewValidator(logger *logrus.Logger, strictMode bool) *Validator {
	return &Validator{
		logger:     logger,
		strictMode: strictMode,
	}
}

// ValidateAddress 验证以太坊地址格式
func (v *Validator) ValidateAddress(address string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if !addressPattern.MatchString(address) {
		result.Valid = false
		result.Errors = append(result.Errors, errors.NewMintError(
			errors.KindTransaction, errors.SeverityLow,
			"INVALID_ADDRESS", fmt.Sprintf("地址格式无效: %s", address)))
		return result
	}

	// 混合大小写时校验EIP-55校验和
	if address != strings.ToLower(address) && address != strings.ToUpper(address[:2])+strings.ToUpper(address[2:]) {
		checksummed := common.HexToAddress(address).Hex()
		if checksummed != address {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("地址校验和不匹配: %s (应为 %s)", address, checksummed))
			if v.strictMode {
				result.Valid = false
			}
		}
	}

	return result
}

// ValidateTxHash 验证交易哈希格式
func (v *Validator) ValidateTxHash(hash string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if !hashPattern.MatchString(hash) {
		result.Valid = false
		result.Errors = append(result.Errors, errors.NewMintError(
			errors.KindTransaction, errors.SeverityLow,
			"INVALID_TX_HASH", fmt.Sprintf("交易哈希格式无效: %s", hash)))
	}

	return result
}

// ValidateMintAmount 验证铸造数量
// maxPerTx 为链上读到的单笔上限；为0时回退到静态配置。
func (v *Validator) ValidateMintAmount(amount uint64, maxPerTx uint64, saleCfg *config.SaleConfig) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if maxPerTx == 0 && saleCfg != nil {
		maxPerTx = saleCfg.MaxMintPerTx
	}

	if amount == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, errors.NewMintError(
			errors.KindTransaction, errors.SeverityLow,
			"INVALID_AMOUNT", "铸造数量必须大于0"))
		return result
	}

	if maxPerTx > 0 && amount > maxPerTx {
		result.Valid = false
		result.Errors = append(result.Errors, errors.NewMintError(
			errors.KindTransaction, errors.SeverityLow,
			"AMOUNT_EXCEEDS_LIMIT", fmt.Sprintf("铸造数量 %d 超过单笔上限 %d", amount, maxPerTx)))
	}

	return result
}

// ValidateConfig 验证主配置
func (v *Validator) ValidateConfig(cfg *config.Config) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if cfg == nil {
		result.Valid = false
		result.Errors = append(result.Errors, errors.NewMintError(
			errors.KindEnvironment, errors.SeverityCritical,
			"CONFIG_MISSING", "配置为空"))
		return result
	}

	if err := cfg.Validate(); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, errors.WrapError(err,
			errors.KindEnvironment, errors.SeverityCritical,
			"CONFIG_INVALID", "配置校验失败"))
	}

	// 未配置超时/轮询间隔时给出提示
	if cfg.Provider != nil {
		if cfg.Provider.Timeout == "" {
			result.Warnings = append(result.Warnings, "未配置提供者超时，将使用默认值")
		}
		if cfg.Provider.PollInterval == "" {
			result.Warnings = append(result.Warnings, "未配置轮询间隔，将使用默认值")
		}
	}

	if v.strictMode && len(result.Warnings) > 0 {
		result.Valid = false
	}

	if !result.Valid {
		for _, validationErr := range result.Errors {
			v.logger.Warnf("配置验证失败: %s", validationErr.Message)
		}
	}

	return result
}

// ValidateAllowlist 验证白名单地址列表
func (v *Validator) ValidateAllowlist(addresses []string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if len(addresses) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, errors.NewMintError(
			errors.KindEnvironment, errors.SeverityHigh,
			"ALLOWLIST_EMPTY", "白名单地址列表为空"))
		return result
	}

	seen := make(map[string]bool, len(addresses))
	for _, address := range addresses {
		normalized := strings.ToLower(strings.TrimSpace(address))
		if !addressPattern.MatchString(normalized) {
			result.Valid = false
			result.Errors = append(result.Errors, errors.NewMintError(
				errors.KindEnvironment, errors.SeverityMedium,
				"INVALID_ALLOWLIST_ADDRESS", fmt.Sprintf("白名单地址格式无效: %s", address)))
			continue
		}
		if seen[normalized] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("白名单地址重复: %s", normalized))
		}
		seen[normalized] = true
	}

	return result
}
