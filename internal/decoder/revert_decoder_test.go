package decoder

import (
	"encoding/hex"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newDecoder() *RevertDecoder {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewRevertDecoder(logger)
}

// word 构造单个32字节大端整数字
func word(value uint64) []byte {
	buf := make([]byte, 32)
	for i := 0; value > 0; i++ {
		buf[31-i] = byte(value)
		value >>= 8
	}
	return buf
}

// encodeErrorString 构造 Error(string) 编码数据
func encodeErrorString(reason string) []byte {
	selector, _ := hex.DecodeString(ErrorSelector)

	data := append([]byte{}, selector...)
	data = append(data, word(0x20)...)
	data = append(data, word(uint64(len(reason)))...)

	content := make([]byte, (len(reason)+31)/32*32)
	copy(content, reason)
	return append(data, content...)
}

// encodePanic 构造 Panic(uint256) 编码数据
func encodePanic(code uint64) []byte {
	selector, _ := hex.DecodeString(PanicSelector)
	return append(append([]byte{}, selector...), word(code)...)
}

func TestDecode_ErrorString(t *testing.T) {
	d := newDecoder()

	tests := []struct {
		name   string
		reason string
	}{
		{"短字符串", "Paused"},
		{"正好32字节", "0123456789abcdef0123456789abcdef"},
		{"超过32字节", "The whitelist sale has not started yet, please wait"},
		{"中文原因", "白名单销售未开启"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := d.Decode(encodeErrorString(tt.reason))
			assert.True(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestDecode_PanicCode(t *testing.T) {
	d := newDecoder()

	// 已知panic码
	reason, ok := d.Decode(encodePanic(0x11))
	assert.True(t, ok)
	assert.Equal(t, "panic 0x11: arithmetic overflow or underflow", reason)

	// 未登记的panic码只返回十六进制码
	reason, ok = d.Decode(encodePanic(0x99))
	assert.True(t, ok)
	assert.Equal(t, "panic 0x99", reason)
}

func TestDecode_Invalid(t *testing.T) {
	d := newDecoder()

	// 数据过短
	_, ok := d.Decode([]byte{0x08, 0xc3, 0x79, 0xa0})
	assert.False(t, ok)

	// 未知选择器（自定义错误）
	custom := append([]byte{0xde, 0xad, 0xbe, 0xef}, word(0)...)
	_, ok = d.Decode(custom)
	assert.False(t, ok)

	// 空字符串原因视为无法解码
	_, ok = d.Decode(encodeErrorString(""))
	assert.False(t, ok)
}

func TestDecodeHex(t *testing.T) {
	d := newDecoder()

	dataHex := "0x" + hex.EncodeToString(encodeErrorString("Sold out"))
	reason, ok := d.DecodeHex(dataHex)
	assert.True(t, ok)
	assert.Equal(t, "Sold out", reason)

	// 非法十六进制
	_, ok = d.DecodeHex("0xzz")
	assert.False(t, ok)
}
