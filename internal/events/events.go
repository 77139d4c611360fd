package events

import (
	"context"
	"sync"
	"time"

	"NexusAI-Core/internal/intent"
)

// Type 标识一条执行事件的种类。
type Type string

const (
	TypePlanResolved  Type = "plan.resolved"
	TypePlanExecuting Type = "plan.executing"
	TypePlanCompleted Type = "plan.completed"
	TypePlanFailed    Type = "plan.failed"
)

// Event 是对外广播的执行进度事件，供行情条、前端轮询等订阅方消费。
type Event struct {
	Type      Type         `json:"type"`
	PlanID    string       `json:"plan_id"`
	Kind      intent.Kind  `json:"kind"`
	Chain     intent.Chain `json:"chain"`
	Hash      string       `json:"hash,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// Publisher 把事件投递给订阅方。投递失败不应阻断执行主流程。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Stamp 补齐事件时间戳后返回事件本身。
func Stamp(event Event) Event {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	return event
}

// MemoryPublisher 把事件保留在内存里，用于测试与单机部署。
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher 创建内存事件发布器。
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 追加事件。
func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Stamp(event))
	return nil
}

// Events 返回已发布事件的副本。
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Close 清空缓存。
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
	return nil
}
