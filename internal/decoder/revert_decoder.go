package decoder

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"
)

// 回滚数据的函数选择器
const (
	// ErrorSelector Error(string) 的4字节选择器
	ErrorSelector = "08c379a0"

	// PanicSelector Panic(uint256) 的4字节选择器
	PanicSelector = "4e487b71"
)

// Panic错误码到说明的映射（Solidity内置）
var panicReasons = map[uint64]string{
	0x00: "generic panic",
	0x01: "assertion failed",
	0x11: "arithmetic overflow or underflow",
	0x12: "division or modulo by zero",
	0x21: "invalid enum value",
	0x22: "invalid storage byte array access",
	0x31: "pop on empty array",
	0x32: "array index out of bounds",
	0x41: "out of memory",
	0x51: "call to uninitialized function",
}

// RevertDecoder 回滚原因解码器
// 从合约回滚返回的ABI编码数据中还原可读的错误信息。
type RevertDecoder struct {
	logger *logrus.Logger
}

// NewRevertDecoder 创建回滚原因解码器
func NewRevertDecoder(logger *logrus.Logger) *RevertDecoder {
	return &RevertDecoder{logger: logger}
}

// DecodeHex 解码十六进制形式的回滚数据
// 返回解码后的原因字符串；无法识别时第二个返回值为false。
func (d *RevertDecoder) DecodeHex(dataHex string) (string, bool) {
	dataHex = strings.TrimPrefix(dataHex, "0x")
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		d.logger.Debugf("回滚数据不是合法的十六进制: %v", err)
		return "", false
	}
	return d.Decode(data)
}

// Decode 解码回滚数据
func (d *RevertDecoder) Decode(data []byte) (string, bool) {
	// 选择器4字节 + 至少一个32字节字
	if len(data) < 4+32 {
		return "", false
	}

	selector := hex.EncodeToString(data[:4])
	payload := data[4:]

	switch selector {
	case ErrorSelector:
		return decodeErrorString(payload)
	case PanicSelector:
		return decodePanicCode(payload)
	default:
		// 自定义错误，仅返回选择器提示
		d.logger.Debugf("未知的回滚选择器: 0x%s", selector)
		return "", false
	}
}

// decodeErrorString 解码 Error(string)
// 布局：offset(32) + length(32) + 字符串内容（右补零）
func decodeErrorString(payload []byte) (string, bool) {
	if len(payload) < 64 {
		return "", false
	}

	offset := new(big.Int).SetBytes(payload[:32])
	if !offset.IsUint64() || offset.Uint64()+32 > uint64(len(payload)) {
		return "", false
	}

	lengthStart := offset.Uint64()
	length := new(big.Int).SetBytes(payload[lengthStart : lengthStart+32])
	strStart := lengthStart + 32

	if !length.IsUint64() || strStart+length.Uint64() > uint64(len(payload)) {
		return "", false
	}

	reason := string(payload[strStart : strStart+length.Uint64()])
	if reason == "" {
		return "", false
	}
	return reason, true
}

// decodePanicCode 解码 Panic(uint256)
func decodePanicCode(payload []byte) (string, bool) {
	if len(payload) < 32 {
		return "", false
	}

	code := new(big.Int).SetBytes(payload[:32])
	if !code.IsUint64() {
		return "", false
	}

	if reason, exists := panicReasons[code.Uint64()]; exists {
		return fmt.Sprintf("panic 0x%02x: %s", code.Uint64(), reason), true
	}
	return fmt.Sprintf("panic 0x%02x", code.Uint64()), true
}
