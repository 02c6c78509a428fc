package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mintgate/internal/config"
	"mintgate/pkg/models"

	"github.com/sirupsen/logrus"
)

// Sink 生命周期事件下游
type Sink interface {
	Publish(event *models.LifecycleEvent) error
	Close() error
}

// NewSink 按配置创建事件下游
func NewSink(cfg *config.EventsConfig, logger *logrus.Logger) (Sink, error) {
	if cfg == nil {
		cfg = &config.EventsConfig{Format: "file", Directory: "./outputs"}
	}

	switch cfg.Format {
	case "kafka":
		brokers := []string{"localhost:9092"}
		topics := map[string]string{
			"session": "mintgate_session_events",
			"mints":   "mintgate_mint_events",
		}
		if cfg.Kafka != nil {
			if len(cfg.Kafka.Brokers) > 0 {
				brokers = cfg.Kafka.Brokers
			}
			if len(cfg.Kafka.Topics) > 0 {
				topics = cfg.Kafka.Topics
			}
		}
		return NewKafkaSink(brokers, topics, logger)

	case "file", "":
		return NewFileSink(cfg.Directory, logger)

	case "none":
		return &NopSink{}, nil

	default:
		return nil, fmt.Errorf("未知的事件输出格式: %s", cfg.Format)
	}
}

// FileSink 文件事件下游
// 事件按JSON行追加写入，文件名带启动时间戳。
type FileSink struct {
	file   *os.File
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewFileSink 创建文件事件下游
func NewFileSink(directory string, logger *logrus.Logger) (*FileSink, error) {
	if directory == "" {
		directory = "./outputs"
	}

	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("创建事件输出目录失败: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(directory, fmt.Sprintf("events_%s.json", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("创建事件文件失败: %w", err)
	}

	logger.Infof("事件输出到文件: %s", path)
	return &FileSink{
		file:   file,
		logger: logger,
	}, nil
}

// Publish 写入事件
func (fs *FileSink) Publish(event *models.LifecycleEvent) error {
	if event == nil {
		return nil
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("写入事件失败: %w", err)
	}
	return nil
}

// Close 关闭事件文件
func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}

// NopSink 空事件下游
type NopSink struct{}

// Publish 丢弃事件
func (ns *NopSink) Publish(event *models.LifecycleEvent) error { return nil }

// Close 无操作
func (ns *NopSink) Close() error { return nil }
