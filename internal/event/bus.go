package event

import (
	"sync"

	"gearline/internal/types"
)

// EventType 定义事件的类型
type EventType string

// 定义所有业务事件类型
const (
	UnitStarted     EventType = "UnitStarted"     // 工件开始（或重工后重新开始）流转
	StepApproved    EventType = "StepApproved"    // 工站质检通过
	StepRejected    EventType = "StepRejected"    // 工站质检不合格
	UnitReprocessed EventType = "UnitReprocessed" // 本地重试用尽，转交重工流程
	UnitCompleted   EventType = "UnitCompleted"   // 工件完成全部工序
	UnitDiscarded   EventType = "UnitDiscarded"   // 工件超出重工上限被报废
)

// Event 结构体定义了事件的数据负载
type Event struct {
	Type    EventType     // 事件类型
	UnitID  string        // 关联的工件 ID
	Product string        // 产品类型
	Station string        // 关联的工站 (UnitStarted 为切片的首个工站，UnitReprocessed 为失败工站)
	Attempt int           // 全局尝试次数
	Record  *types.Record // 对应的时间线记录 (UnitStarted / UnitReprocessed 为空)
}

// ForRecord 根据时间线记录的结果构造对应的事件
func ForRecord(rec types.Record) Event {
	e := Event{UnitID: rec.UnitID, Product: rec.Product, Station: rec.Station, Attempt: rec.Attempt, Record: &rec}
	switch rec.Outcome {
	case types.OutcomeApproved:
		e.Type = StepApproved
	case types.OutcomeRejected:
		e.Type = StepRejected
	case types.OutcomeCompleted:
		e.Type = UnitCompleted
	case types.OutcomeDiscarded:
		e.Type = UnitDiscarded
	}
	return e
}

// Handler 是事件处理函数的签名
type Handler func(e Event)

// Bus 是一个简单的内存事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler // 存储事件类型到多个处理函数的映射
}

// NewBus 创建一个新的事件总线实例
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe 订阅一个特定类型的事件
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll 为所有事件类型注册同一个处理器
func (b *Bus) SubscribeAll(handler Handler) {
	for _, t := range []EventType{UnitStarted, StepApproved, StepRejected, UnitReprocessed, UnitCompleted, UnitDiscarded} {
		b.Subscribe(t, handler)
	}
}

// Publish 发布一个事件，按订阅顺序同步调用处理器。
// 仿真在单个 goroutine 中运行，同步分发保证处理器看到的顺序与时间线一致。
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.handlers[e.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(e)
	}
}
