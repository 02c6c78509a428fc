package errors

import (
	"strings"

	"mintgate/internal/decoder"
)

// providerDataError 携带附加数据的provider错误
// go-ethereum的rpc.DataError实现了该接口，回滚数据通过ErrorData返回。
type providerDataError interface {
	Error() string
	ErrorData() interface{}
}

// providerCodedError 携带JSON-RPC错误码的provider错误
type providerCodedError interface {
	Error() string
	ErrorCode() int
}

// EIP-1193定义的用户拒绝错误码
const codeUserRejected = 4001

// ExtractMessage 按固定优先级从provider错误中提取最具体的提示信息
// 优先级：嵌套的provider错误数据（回滚原因解码） > 错误消息内嵌的回滚原因 > 原始provider消息。
func ExtractMessage(err error, revertDecoder *decoder.RevertDecoder) string {
	if err == nil {
		return ""
	}

	// 第一优先级：provider附带的回滚数据
	if dataErr, ok := err.(providerDataError); ok {
		if dataHex, ok := dataErr.ErrorData().(string); ok && revertDecoder != nil {
			if reason, decoded := revertDecoder.DecodeHex(dataHex); decoded {
				return reason
			}
		}
	}

	// 第二优先级：错误消息中内嵌的回滚原因
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted:"); idx >= 0 {
		reason := strings.TrimSpace(msg[idx+len("execution reverted:"):])
		if reason != "" {
			return reason
		}
	}

	// 第三优先级：原始provider消息
	return msg
}

// Classify 将provider返回的原始错误归入错误分类
// 已经是MintError的错误原样返回，不做二次包装。
func Classify(err error, revertDecoder *decoder.RevertDecoder) *MintError {
	if err == nil {
		return nil
	}

	if mintErr, ok := err.(*MintError); ok {
		return mintErr
	}

	message := ExtractMessage(err, revertDecoder)

	// 用户拒绝：EIP-1193错误码或常见提示语
	if codedErr, ok := err.(providerCodedError); ok && codedErr.ErrorCode() == codeUserRejected {
		return WrapError(err, KindUserDeclined, SeverityLow, "USER_REJECTED", message)
	}

	// 分类依据原始错误文本：提取后的消息可能已剥掉回滚前缀
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "user denied") || strings.Contains(lower, "user rejected"):
		return WrapError(err, KindUserDeclined, SeverityLow, "USER_REJECTED", message)
	case strings.Contains(lower, "request already pending"):
		return WrapError(err, KindUserDeclined, SeverityLow, "REQUEST_PENDING", message)
	case strings.Contains(lower, "execution reverted") || strings.Contains(lower, "revert"):
		return WrapError(err, KindTransaction, SeverityMedium, "EXECUTION_REVERTED", message)
	case strings.Contains(lower, "insufficient funds"):
		return WrapError(err, KindTransaction, SeverityMedium, "INSUFFICIENT_FUNDS", message)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "i/o timeout"):
		return WrapError(err, KindEnvironment, SeverityMedium, "PROVIDER_UNREACHABLE", message)
	default:
		return WrapError(err, KindTransaction, SeverityMedium, "PROVIDER_ERROR", message)
	}
}
