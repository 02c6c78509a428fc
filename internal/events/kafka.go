package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mintgate/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// KafkaSink Kafka事件下游
type KafkaSink struct {
	logger   *logrus.Logger
	topics   map[string]string // 事件分类到topic的映射
	producer sarama.SyncProducer
}

// NewKafkaSink 创建Kafka事件下游
func NewKafkaSink(brokers []string, topics map[string]string, logger *logrus.Logger) (*KafkaSink, error) {
	logger.Infof("初始化Kafka事件下游，brokers: %v", brokers)

	// 配置Kafka生产者
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0

	// 创建同步生产者
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者已创建")

	return &KafkaSink{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}, nil
}

// Publish 发送事件到Kafka
func (k *KafkaSink) Publish(event *models.LifecycleEvent) error {
	if event == nil {
		return nil
	}

	topic := k.topicFor(event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.StringEncoder(data),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送事件到Kafka失败: %w", err)
	}

	k.logger.Debugf("事件已发送到Kafka topic '%s' (partition: %d, offset: %d): %s",
		topic, partition, offset, event.Type)
	return nil
}

// topicFor 按事件类型选择topic
// mint_* 事件进入mints主题，其余进入session主题。
func (k *KafkaSink) topicFor(eventType models.EventType) string {
	category := "session"
	if strings.HasPrefix(string(eventType), "mint_") {
		category = "mints"
	}

	if topic, exists := k.topics[category]; exists {
		return topic
	}
	return "mintgate_" + category + "_events"
}

// Close 关闭Kafka生产者
func (k *KafkaSink) Close() error {
	return k.producer.Close()
}
