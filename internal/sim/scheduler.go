package sim

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"

	"gearline/internal/metrics"
)

// Scheduler 是单线程的离散事件调度器。
// 它维护仿真时钟和按时间排序的待处理事件队列，所有挂起点（获取资源、加工、检验）
// 都以延续函数的形式登记到队列中，按非递减的仿真时间依次触发。
type Scheduler struct {
	now       float64    // 当前仿真时刻（分钟）
	seq       uint64     // 下一个登记序号
	pq        eventQueue // 待处理事件
	processed uint64     // 已触发的事件数
	logger    *slog.Logger
}

// NewScheduler 创建一个时钟位于 0 的调度器
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pq:     make(eventQueue, 0),
		logger: logger.With("component", "scheduler"),
	}
}

// Now 返回当前仿真时刻
func (s *Scheduler) Now() float64 { return s.now }

// Pending 返回尚未触发的事件数
func (s *Scheduler) Pending() int { return s.pq.Len() }

// Processed 返回已触发的事件数
func (s *Scheduler) Processed() uint64 { return s.processed }

// After 在 delay 分钟之后触发 fn；delay 为 0 时在当前时刻、排在已登记事件之后触发
func (s *Scheduler) After(delay float64, fn func()) {
	if delay < 0 {
		panic(fmt.Sprintf("sim: negative delay %v", delay))
	}
	heap.Push(&s.pq, &item{at: s.now + delay, seq: s.seq, fn: fn})
	s.seq++
	metrics.PendingEvents.Inc()
}

// Run 按时间顺序触发事件，直到队列为空。
// 仿真时钟本身没有超时，只有 ctx 被取消时才会提前返回。
func (s *Scheduler) Run(ctx context.Context) error {
	for s.pq.Len() > 0 {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("仿真被取消", "sim_minutes", s.now, "pending", s.Pending())
			return err
		}
		s.step()
	}
	s.logger.Debug("事件队列已清空", "sim_minutes", s.now, "processed", s.processed)
	return nil
}

// step 取出最早的事件并执行
func (s *Scheduler) step() {
	it := heap.Pop(&s.pq).(*item)
	metrics.PendingEvents.Dec()
	s.now = it.at
	s.processed++
	it.fn()
}
