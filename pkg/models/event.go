package models

import "time"

// EventType 生命周期事件类型
type EventType string

const (
	EventSessionConnected    EventType = "session_connected"
	EventSessionDisconnected EventType = "session_disconnected"
	EventAccountChanged      EventType = "account_changed"
	EventChainChanged        EventType = "chain_changed"
	EventSnapshotRefreshed   EventType = "snapshot_refreshed"
	EventMintSubmitted       EventType = "mint_submitted"
	EventMintConfirmed       EventType = "mint_confirmed"
	EventMintFailed          EventType = "mint_failed"
)

// LifecycleEvent 会话与交易生命周期事件
// 输出到事件下游（文件或Kafka），供运维侧观察铸造过程。
type LifecycleEvent struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Address   string            `json:"address,omitempty"`
	ChainID   uint64            `json:"chain_id,omitempty"`
	TxHash    string            `json:"tx_hash,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// NewLifecycleEvent 创建生命周期事件
func NewLifecycleEvent(eventType EventType) *LifecycleEvent {
	return &LifecycleEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Detail:    make(map[string]string),
	}
}

// WithAddress 附加账户地址
func (e *LifecycleEvent) WithAddress(address string) *LifecycleEvent {
	e.Address = address
	return e
}

// WithChainID 附加链ID
func (e *LifecycleEvent) WithChainID(chainID uint64) *LifecycleEvent {
	e.ChainID = chainID
	return e
}

// WithTxHash 附加交易哈希
func (e *LifecycleEvent) WithTxHash(hash string) *LifecycleEvent {
	e.TxHash = hash
	return e
}

// WithDetail 附加键值详情
func (e *LifecycleEvent) WithDetail(key, value string) *LifecycleEvent {
	e.Detail[key] = value
	return e
}
