package whitelist

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddresses = []string{
	"0x5B38Da6a701c568545dCfcB03FcB875f56beddC4",
	"0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2",
	"0x4B20993Bc481177ec7E8f571ceCaE8A9e22C02db",
	"0x78731D3Ca6b7E34aC0F824c42a7cC18A495cabaB",
	"0x617F2E2fD72FD9D5503197092aC168c91465E7f2",
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNewTree(t *testing.T) {
	tree, err := NewTree(testAddresses, testLogger())

	require.NoError(t, err)
	assert.Equal(t, len(testAddresses), tree.Len())
	assert.NotEqual(t, Hash{}, tree.Root())
}

func TestNewTree_Empty(t *testing.T) {
	_, err := NewTree(nil, testLogger())
	assert.Error(t, err)
}

func TestNewTree_InvalidAddress(t *testing.T) {
	_, err := NewTree([]string{"not-an-address"}, testLogger())
	assert.Error(t, err)
}

func TestNewTree_DuplicatesIgnored(t *testing.T) {
	// 同一地址不同大小写只计一次
	tree, err := NewTree([]string{
		"0x5B38Da6a701c568545dCfcB03FcB875f56beddC4",
		"0x5b38da6a701c568545dcfcb03fcb875f56beddc4",
	}, testLogger())

	require.NoError(t, err)
	assert.Equal(t, 1, tree.Len())
}

func TestNewTree_Deterministic(t *testing.T) {
	// 相同地址集合无论输入顺序如何，树根必须一致
	tree1, err := NewTree(testAddresses, testLogger())
	require.NoError(t, err)

	reversed := make([]string, len(testAddresses))
	for i, addr := range testAddresses {
		reversed[len(testAddresses)-1-i] = addr
	}
	tree2, err := NewTree(reversed, testLogger())
	require.NoError(t, err)

	assert.Equal(t, tree1.Root(), tree2.Root())
}

func TestContains(t *testing.T) {
	tree, err := NewTree(testAddresses, testLogger())
	require.NoError(t, err)

	// 大小写不敏感
	assert.True(t, tree.Contains("0x5B38Da6a701c568545dCfcB03FcB875f56beddC4"))
	assert.True(t, tree.Contains("0x5b38da6a701c568545dcfcb03fcb875f56beddc4"))

	assert.False(t, tree.Contains("0x0000000000000000000000000000000000000001"))
	assert.False(t, tree.Contains("garbage"))
}

func TestProofFor_MembersVerify(t *testing.T) {
	tree, err := NewTree(testAddresses, testLogger())
	require.NoError(t, err)

	// 每个成员的证明都必须能通过根校验
	for _, addr := range testAddresses {
		proof := tree.ProofFor(addr)
		assert.NotEmpty(t, proof, "地址 %s 的证明为空", addr)
		assert.True(t, Verify(addr, proof, tree.Root()), "地址 %s 的证明校验失败", addr)
	}
}

func TestProofFor_NonMember(t *testing.T) {
	tree, err := NewTree(testAddresses, testLogger())
	require.NoError(t, err)

	assert.Nil(t, tree.ProofFor("0x0000000000000000000000000000000000000001"))
	assert.Nil(t, tree.ProofHex("0x0000000000000000000000000000000000000001"))
}

func TestProofFor_SingleLeaf(t *testing.T) {
	// 单叶树：根即叶子，合法证明为空
	tree, err := NewTree(testAddresses[:1], testLogger())
	require.NoError(t, err)

	proof := tree.ProofFor(testAddresses[0])
	assert.Empty(t, proof)
	assert.True(t, Verify(testAddresses[0], proof, tree.Root()))
}

func TestProofFor_OddLeaves(t *testing.T) {
	// 奇数叶子触发复制补齐路径
	tree, err := NewTree(testAddresses[:3], testLogger())
	require.NoError(t, err)

	for _, addr := range testAddresses[:3] {
		proof := tree.ProofFor(addr)
		assert.True(t, Verify(addr, proof, tree.Root()), "地址 %s 的证明校验失败", addr)
	}
}

func TestVerify_WrongProof(t *testing.T) {
	tree, err := NewTree(testAddresses, testLogger())
	require.NoError(t, err)

	// 用别人的证明校验必然失败
	proof := tree.ProofFor(testAddresses[0])
	assert.False(t, Verify(testAddresses[1], proof, tree.Root()))

	// 非成员地址配任何证明都失败
	assert.False(t, Verify("0x0000000000000000000000000000000000000001", proof, tree.Root()))
}

func TestProofHex(t *testing.T) {
	tree, err := NewTree(testAddresses, testLogger())
	require.NoError(t, err)

	hexProof := tree.ProofHex(testAddresses[0])
	rawProof := tree.ProofFor(testAddresses[0])

	require.Equal(t, len(rawProof), len(hexProof))
	for i, h := range rawProof {
		assert.Equal(t, h.Hex(), hexProof[i])
	}
}

// 基准测试
func BenchmarkProofFor(b *testing.B) {
	tree, _ := NewTree(testAddresses, testLogger())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.ProofFor(testAddresses[0])
	}
}
