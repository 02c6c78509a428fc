package whitelist

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// HashSize 节点哈希长度
const HashSize = 32

// Hash Merkle树节点哈希
type Hash [HashSize]byte

// Hex 返回0x前缀的十六进制表示
func (h Hash) Hex() string {
	return hexutil.Encode(h[:])
}

// Tree 白名单Merkle树
// 启动时从固定地址列表构建一次，此后只读，生成证明无需加锁。
// 树按层存储为哈希数组（levels[0]为排序后的叶子），
// 证明生成只做下标游走，不维护指针节点。
type Tree struct {
	levels [][]Hash
	index  map[common.Address]int // 地址到叶子下标
	root   Hash
}

// NewTree 构建白名单Merkle树
// 规则：地址规范化后keccak256作为叶子，叶子按字节序排序；
// 奇数节点层复制最后一个节点补齐（与链上验证器的约定一致）；
// 父节点哈希对按字节序交换后再拼接，保证证明与位置无关。
func NewTree(addresses []string, logger *logrus.Logger) (*Tree, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("白名单地址列表为空")
	}

	type leafEntry struct {
		addr common.Address
		hash Hash
	}

	entries := make([]leafEntry, 0, len(addresses))
	seen := make(map[common.Address]bool, len(addresses))

	for _, raw := range addresses {
		normalized := strings.TrimSpace(strings.ToLower(raw))
		if !common.IsHexAddress(normalized) {
			return nil, fmt.Errorf("无效的白名单地址: %s", raw)
		}

		addr := common.HexToAddress(normalized)
		if seen[addr] {
			logger.Warnf("白名单地址重复，已忽略: %s", normalized)
			continue
		}
		seen[addr] = true

		var leaf Hash
		copy(leaf[:], crypto.Keccak256(addr.Bytes()))
		entries = append(entries, leafEntry{addr: addr, hash: leaf})
	}

	// 叶子按字节序排序，保证相同地址列表在任何运行中得到相同的树
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].hash[:], entries[j].hash[:]) < 0
	})

	leaves := make([]Hash, len(entries))
	index := make(map[common.Address]int, len(entries))
	for i, entry := range entries {
		leaves[i] = entry.hash
		index[entry.addr] = i
	}

	tree := &Tree{
		levels: buildLevels(leaves),
		index:  index,
	}
	tree.root = tree.levels[len(tree.levels)-1][0]

	logger.Infof("白名单Merkle树已构建，叶子数: %d，根: %s", len(leaves), tree.root.Hex())
	return tree, nil
}

// buildLevels 自底向上构建各层哈希
func buildLevels(leaves []Hash) [][]Hash {
	current := make([]Hash, len(leaves))
	copy(current, leaves)
	levels := [][]Hash{current}

	for len(current) > 1 {
		next := make([]Hash, 0, (len(current)+1)/2)

		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
			} else {
				// 奇数节点：复制自身补齐
				next = append(next, hashPair(current[i], current[i]))
			}
		}

		levels = append(levels, next)
		current = next
	}

	return levels
}

// hashPair 计算父节点哈希
// 左右子节点按字节序交换后拼接，与链上验证器的可交换哈希约定一致。
func hashPair(a, b Hash) Hash {
	var parent Hash
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	copy(parent[:], crypto.Keccak256(a[:], b[:]))
	return parent
}

// Root 返回树根
func (t *Tree) Root() Hash {
	return t.root
}

// Len 返回白名单地址数量
func (t *Tree) Len() int {
	return len(t.index)
}

// Contains 判断地址是否在白名单内
// 不生成完整证明的轻量存在性检查。
func (t *Tree) Contains(address string) bool {
	if !common.IsHexAddress(address) {
		return false
	}
	_, exists := t.index[common.HexToAddress(address)]
	return exists
}

// ProofFor 生成地址的Merkle证明
// 返回从叶子到根的兄弟哈希序列；空序列通常表示地址不在名单内，
// 唯一例外是单地址名单：其成员的合法证明就是空序列（叶子即根），
// 成员判定应使用Contains而不是证明长度。证明按需重算，不做缓存。
func (t *Tree) ProofFor(address string) []Hash {
	if !common.IsHexAddress(address) {
		return nil
	}

	idx, exists := t.index[common.HexToAddress(address)]
	if !exists {
		return nil
	}

	var proof []Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		var sibling int
		if idx%2 == 0 {
			sibling = idx + 1
		} else {
			sibling = idx - 1
		}

		if sibling < len(level) {
			proof = append(proof, level[sibling])
		} else {
			// 层尾奇数节点，兄弟即自身
			proof = append(proof, level[idx])
		}

		idx /= 2
	}

	return proof
}

// ProofHex 生成十六进制形式的证明（用于CLI和API输出）
func (t *Tree) ProofHex(address string) []string {
	proof := t.ProofFor(address)
	if len(proof) == 0 {
		return nil
	}

	out := make([]string, len(proof))
	for i, h := range proof {
		out[i] = h.Hex()
	}
	return out
}

// Verify 验证Merkle证明
// 从叶子出发逐层合并兄弟哈希，校验最终结果等于给定根。
func Verify(address string, proof []Hash, root Hash) bool {
	if !common.IsHexAddress(address) {
		return false
	}

	var current Hash
	copy(current[:], crypto.Keccak256(common.HexToAddress(address).Bytes()))

	for _, sibling := range proof {
		current = hashPair(current, sibling)
	}

	return current == root
}
