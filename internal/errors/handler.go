package errors

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCallback 错误回调函数
type ErrorCallback func(err *MintError)

// ErrorHandler 错误处理器
// 统一记录、统计并分发错误，展示层通过回调获得可关闭的错误提示。
type ErrorHandler struct {
	logger    *logrus.Logger
	stats     *ErrorStats
	mu        sync.RWMutex
	callbacks []ErrorCallback
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:    logger,
		stats:     NewErrorStats(),
		callbacks: make([]ErrorCallback, 0),
	}
}

// RegisterCallback 注册错误回调
func (eh *ErrorHandler) RegisterCallback(callback ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, callback)
}

// Handle 处理错误
func (eh *ErrorHandler) Handle(err *MintError) {
	if err == nil {
		return
	}

	eh.mu.Lock()
	eh.stats.RecordError(err)
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	eh.mu.Unlock()

	// 按严重级别选择日志输出
	entry := eh.logger.WithFields(logrus.Fields{
		"kind":        err.Kind.String(),
		"code":        err.Code,
		"recoverable": err.Recoverable,
	})

	switch err.Severity {
	case SeverityLow:
		entry.Info(err.Message)
	case SeverityMedium:
		entry.Warn(err.Message)
	default:
		entry.Error(err.Message)
	}

	for _, callback := range callbacks {
		callback(err)
	}
}

// Stats 获取错误统计快照
func (eh *ErrorHandler) Stats() *ErrorStats {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	return eh.stats
}

// ErrorStats 错误统计
type ErrorStats struct {
	TotalErrors   int            `json:"total_errors"`
	ErrorsByKind  map[string]int `json:"errors_by_kind"`
	ErrorsByCode  map[string]int `json:"errors_by_code"`
	RecentErrors  []*MintError   `json:"recent_errors"`
	LastError     *MintError     `json:"last_error"`
	LastErrorTime time.Time      `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByKind: make(map[string]int),
		ErrorsByCode: make(map[string]int),
		RecentErrors: make([]*MintError, 0),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *MintError) {
	es.TotalErrors++
	es.ErrorsByKind[err.Kind.String()]++
	es.ErrorsByCode[err.Code]++

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	// 保留最近100个错误
	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > 100 {
		es.RecentErrors = es.RecentErrors[1:]
	}
}
