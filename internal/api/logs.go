package api

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry 日志条目
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogManager 日志管理器
// 内存环形缓冲，保存最近的日志供 /logs 接口查询。
type LogManager struct {
	logs    []LogEntry
	maxLogs int
	mu      sync.RWMutex
}

// NewLogManager 创建日志管理器
func NewLogManager(maxLogs int) *LogManager {
	return &LogManager{
		logs:    make([]LogEntry, 0, maxLogs),
		maxLogs: maxLogs,
	}
}

// AddLog 添加日志
func (lm *LogManager) AddLog(entry *logrus.Entry) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.logs = append(lm.logs, LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    entry.Data,
	})

	// 超过上限时移除最旧的日志
	if len(lm.logs) > lm.maxLogs {
		lm.logs = lm.logs[1:]
	}
}

// GetLogs 获取最近的日志，可按级别过滤
func (lm *LogManager) GetLogs(level string, limit int) []LogEntry {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	if limit <= 0 || limit > len(lm.logs) {
		limit = len(lm.logs)
	}

	logs := make([]LogEntry, limit)
	copy(logs, lm.logs[len(lm.logs)-limit:])

	if level != "" {
		filtered := make([]LogEntry, 0)
		for _, log := range logs {
			if log.Level == level {
				filtered = append(filtered, log)
			}
		}
		return filtered
	}

	return logs
}

// ClearLogs 清空日志
func (lm *LogManager) ClearLogs() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.logs = make([]LogEntry, 0, lm.maxLogs)
}

// LogHook 日志钩子
type LogHook struct {
	manager *LogManager
}

// NewLogHook 创建日志钩子
func NewLogHook(manager *LogManager) *LogHook {
	return &LogHook{manager: manager}
}

// Fire 实现 logrus.Hook 接口
func (h *LogHook) Fire(entry *logrus.Entry) error {
	h.manager.AddLog(entry)
	return nil
}

// Levels 实现 logrus.Hook 接口
func (h *LogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
