package contract

import (
	"context"
	"math/big"
	"sync"
	"time"

	"mintgate/internal/errors"
	"mintgate/internal/retry"
	"mintgate/pkg/models"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

// Synchronizer 合约状态同步器
// 并发读取合约配置与状态并汇合为一份原子快照。
// 任一读取失败则整次刷新失败，不发布部分更新的快照。
type Synchronizer struct {
	handle  *Handle
	retrier *retry.Retrier
	logger  *logrus.Logger
}

// NewSynchronizer 创建合约状态同步器
// 句柄必须已完成解析（Resolve）。
func NewSynchronizer(handle *Handle, logger *logrus.Logger) *Synchronizer {
	return &Synchronizer{
		handle:  handle,
		retrier: retry.NewRetrier(retry.ReadRetryConfig, logger),
		logger:  logger,
	}
}

// Refresh 刷新合约状态快照
// 七项读取并发发起，全部成功后汇合为一份快照；
// 合约解析完成后以及每次铸造确认后都必须调用。
func (s *Synchronizer) Refresh(ctx context.Context) (*models.ContractSnapshot, error) {
	var (
		totalSupply        uint64
		maxSupply          uint64
		maxMintPerTx       uint64
		tokenPrice         *big.Int
		isPaused           bool
		isWhitelistEnabled bool
		merkleRoot         [32]byte
	)

	reads := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"totalSupply", func(ctx context.Context) error {
			var err error
			totalSupply, err = s.handle.callUint64(ctx, "totalSupply")
			return err
		}},
		{"maxSupply", func(ctx context.Context) error {
			var err error
			maxSupply, err = s.handle.callUint64(ctx, "maxSupply")
			return err
		}},
		{"maxMintAmountPerTx", func(ctx context.Context) error {
			var err error
			maxMintPerTx, err = s.handle.callUint64(ctx, "maxMintAmountPerTx")
			return err
		}},
		{"cost", func(ctx context.Context) error {
			var err error
			tokenPrice, err = s.handle.callBigInt(ctx, "cost")
			return err
		}},
		{"paused", func(ctx context.Context) error {
			var err error
			isPaused, err = s.handle.callBool(ctx, "paused")
			return err
		}},
		{"whitelistMintEnabled", func(ctx context.Context) error {
			var err error
			isWhitelistEnabled, err = s.handle.callBool(ctx, "whitelistMintEnabled")
			return err
		}},
		{"merkleRoot", func(ctx context.Context) error {
			var err error
			merkleRoot, err = s.handle.callBytes32(ctx, "merkleRoot")
			return err
		}},
	}

	// 并发发起全部读取，汇合时快速失败
	var wg sync.WaitGroup
	errChan := make(chan error, len(reads))

	for _, read := range reads {
		wg.Add(1)
		go func(name string, fn func(ctx context.Context) error) {
			defer wg.Done()
			if err := s.retrier.Execute(ctx, name, func() error { return fn(ctx) }); err != nil {
				errChan <- err
			}
		}(read.name, read.fn)
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		s.logger.Warnf("刷新合约快照失败: %v", err)
		return nil, errors.WrapError(err, errors.KindContractUnready, errors.SeverityMedium,
			"REFRESH_FAILED", "读取合约状态失败")
	}

	snapshot := &models.ContractSnapshot{
		TotalSupply:        totalSupply,
		MaxSupply:          maxSupply,
		MaxMintPerTx:       maxMintPerTx,
		TokenPrice:         tokenPrice,
		IsPaused:           isPaused,
		IsWhitelistEnabled: isWhitelistEnabled,
		MerkleRoot:         hexutil.Encode(merkleRoot[:]),
		FetchedAt:          time.Now(),
	}

	s.logger.Debugf("合约快照已刷新: supply=%d/%d paused=%v whitelist=%v",
		snapshot.TotalSupply, snapshot.MaxSupply, snapshot.IsPaused, snapshot.IsWhitelistEnabled)
	return snapshot, nil
}

// Handle 返回底层合约句柄
func (s *Synchronizer) Handle() *Handle {
	return s.handle
}
