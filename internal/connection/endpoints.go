package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// Endpoint 单个候选提供者端点
type Endpoint struct {
	URL       string
	isHealthy bool
	lastCheck time.Time
}

// EndpointSet 提供者端点集合
// 按配置顺序保存候选RPC地址，带健康缓存。探测钱包提供者时
// 从第一个健康端点开始尝试，主端点不可用时自动落到备用端点。
type EndpointSet struct {
	endpoints []*Endpoint
	timeout   time.Duration
	cacheFor  time.Duration
	logger    *logrus.Logger
	mu        sync.Mutex
}

// NewEndpointSet 创建端点集合
// urls 按优先级排列，第一个是主端点。
func NewEndpointSet(urls []string, timeout time.Duration, logger *logrus.Logger) *EndpointSet {
	endpoints := make([]*Endpoint, 0, len(urls))
	for _, url := range urls {
		if url == "" {
			continue
		}
		endpoints = append(endpoints, &Endpoint{URL: url, isHealthy: true})
	}

	return &EndpointSet{
		endpoints: endpoints,
		timeout:   timeout,
		cacheFor:  30 * time.Second,
		logger:    logger,
	}
}

// Len 返回端点数量
func (es *EndpointSet) Len() int {
	return len(es.endpoints)
}

// PickHealthy 按优先级返回第一个健康端点的地址
// 健康状态带缓存；缓存过期时现场探测。所有端点都不健康时返回错误。
func (es *EndpointSet) PickHealthy(ctx context.Context) (string, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	for _, ep := range es.endpoints {
		if time.Since(ep.lastCheck) < es.cacheFor {
			if ep.isHealthy {
				return ep.URL, nil
			}
			continue
		}

		ep.isHealthy = es.probe(ctx, ep.URL)
		ep.lastCheck = time.Now()

		if ep.isHealthy {
			return ep.URL, nil
		}
		es.logger.Warnf("提供者端点 %s 健康检查失败", ep.URL)
	}

	return "", fmt.Errorf("没有可用的健康端点")
}

// MarkUnhealthy 标记端点为不健康
// 调用失败后由使用方反馈，让下次选择跳过这个端点。
func (es *EndpointSet) MarkUnhealthy(url string) {
	es.mu.Lock()
	defer es.mu.Unlock()

	for _, ep := range es.endpoints {
		if ep.URL == url {
			ep.isHealthy = false
			ep.lastCheck = time.Now()
			return
		}
	}
}

// probe 探测端点可用性
func (es *EndpointSet) probe(ctx context.Context, url string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, es.timeout)
	defer cancel()

	client, err := ethclient.DialContext(probeCtx, url)
	if err != nil {
		return false
	}
	defer client.Close()

	_, err = client.ChainID(probeCtx)
	return err == nil
}

// StartHealthChecker 启动周期健康检查
func (es *EndpointSet) StartHealthChecker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				es.checkAll(ctx)
			}
		}
	}()
}

// checkAll 检查所有端点
func (es *EndpointSet) checkAll(ctx context.Context) {
	es.mu.Lock()
	defer es.mu.Unlock()

	for _, ep := range es.endpoints {
		ep.isHealthy = es.probe(ctx, ep.URL)
		ep.lastCheck = time.Now()

		if ep.isHealthy {
			es.logger.Debugf("端点 %s 健康检查通过", ep.URL)
		} else {
			es.logger.Warnf("端点 %s 健康检查失败", ep.URL)
		}
	}
}

// Stats 返回端点健康统计
func (es *EndpointSet) Stats() map[string]interface{} {
	es.mu.Lock()
	defer es.mu.Unlock()

	stats := make(map[string]interface{})
	for _, ep := range es.endpoints {
		stats[ep.URL] = map[string]interface{}{
			"is_healthy": ep.isHealthy,
			"last_check": ep.lastCheck.Format(time.RFC3339),
		}
	}
	return stats
}
