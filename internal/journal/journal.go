package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mintgate/pkg/models"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDBPath 默认数据库路径
	DefaultDBPath = "./data/journal.db"

	// 存储桶名称
	MintBucket  = "mints"
	StatsBucket = "stats"

	// 统计键
	TotalMintedKey  = "total_minted"
	LastMintTimeKey = "last_mint_time"
)

// Journal 铸造流水
// 终态铸造交易的持久化记录，供运维查询；
// 在途交易本身不落盘，内存中到达终态即丢弃。
type Journal struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	mu     sync.RWMutex
}

// NewJournal 创建铸造流水
func NewJournal(dbPath string, logger *logrus.Logger) (*Journal, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	// 打开BoltDB数据库
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开流水数据库失败: %w", err)
	}

	journal := &Journal{
		db:     db,
		logger: logger,
		dbPath: dbPath,
	}

	// 初始化数据库结构
	if err := journal.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	return journal, nil
}

// initDB 初始化存储桶
func (j *Journal) initDB() error {
	return j.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(MintBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(StatsBucket)); err != nil {
			return err
		}
		return nil
	})
}

// Record 记录一笔终态铸造交易
func (j *Journal) Record(mintTx *models.MintTransaction) error {
	if mintTx == nil || !mintTx.IsTerminal() {
		return fmt.Errorf("只记录终态交易")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(mintTx)
	if err != nil {
		return fmt.Errorf("序列化铸造记录失败: %w", err)
	}

	err = j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(MintBucket))
		// 键按提交时间排序，保证List按时间顺序返回
		key := fmt.Sprintf("%d_%s", mintTx.SubmittedAt.UnixNano(), mintTx.Hash)
		if err := bucket.Put([]byte(key), data); err != nil {
			return err
		}

		// 更新统计
		if mintTx.Status == models.MintStatusConfirmed {
			stats := tx.Bucket([]byte(StatsBucket))
			total := readUint64(stats.Get([]byte(TotalMintedKey)))
			if err := stats.Put([]byte(TotalMintedKey), encodeUint64(total+mintTx.Amount)); err != nil {
				return err
			}
			if err := stats.Put([]byte(LastMintTimeKey), []byte(mintTx.CompletedAt.Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("写入铸造记录失败: %w", err)
	}

	j.logger.Debugf("铸造记录已写入流水: %s (%s)", mintTx.Hash, mintTx.Status)
	return nil
}

// List 返回最近的铸造记录（按提交时间倒序）
func (j *Journal) List(limit int) ([]*models.MintTransaction, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var records []*models.MintTransaction
	err := j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(MintBucket)).Cursor()
		for k, v := cursor.Last(); k != nil && len(records) < limit; k, v = cursor.Prev() {
			var record models.MintTransaction
			if err := json.Unmarshal(v, &record); err != nil {
				j.logger.Warnf("解析铸造记录失败，已跳过: %v", err)
				continue
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("读取铸造流水失败: %w", err)
	}

	return records, nil
}

// TotalMinted 返回累计确认的铸造数量
func (j *Journal) TotalMinted() (uint64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var total uint64
	err := j.db.View(func(tx *bolt.Tx) error {
		total = readUint64(tx.Bucket([]byte(StatsBucket)).Get([]byte(TotalMintedKey)))
		return nil
	})
	return total, err
}

// Close 关闭流水数据库
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}

// encodeUint64 编码计数值
func encodeUint64(value uint64) []byte {
	return []byte(fmt.Sprintf("%d", value))
}

// readUint64 读取计数值
func readUint64(data []byte) uint64 {
	if data == nil {
		return 0
	}
	var value uint64
	fmt.Sscanf(string(data), "%d", &value)
	return value
}
