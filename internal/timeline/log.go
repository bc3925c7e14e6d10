package timeline

import (
	"sync"

	"gearline/internal/event"
	"gearline/internal/types"
)

// Log 是仿真共享的时间线记录，只追加、不修改。
// 每条记录追加后都会发布到事件总线 (bus 可为空)。
type Log struct {
	mu      sync.RWMutex
	records []types.Record
	bus     *event.Bus
}

// NewLog 创建一个空的时间线
func NewLog(bus *event.Bus) *Log {
	return &Log{bus: bus}
}

// Append 追加一条记录并发布对应的事件
func (l *Log) Append(rec types.Record) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	if l.bus != nil {
		l.bus.Publish(event.ForRecord(rec))
	}
}

// Len 返回记录数
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records 按追加顺序返回所有记录的副本
func (l *Log) Records() []types.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Record, len(l.records))
	copy(out, l.records)
	return out
}
