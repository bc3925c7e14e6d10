package engine

import (
	"log/slog"

	"gearline/internal/event"
	"gearline/internal/fsm"
	"gearline/internal/routing"
	"gearline/internal/sim"
	"gearline/internal/station"
	"gearline/internal/timeline"
	"gearline/internal/types"
)

// line 是一次运行中所有流程共享的仿真上下文
type line struct {
	sched  *sim.Scheduler
	proc   *station.Processor
	router *routing.Router
	log    *timeline.Log
	bus    *event.Bus
	logger *slog.Logger
}

// flow 驱动一个工件依次通过当前的工序切片。
// 工站重试用尽时，它把工件交给一个新的 flow（全局尝试次数加一）后结束自身。
type flow struct {
	line   *line
	unit   *types.Unit
	idx    int
	logger *slog.Logger
}

func newFlow(l *line, u *types.Unit) *flow {
	return &flow{
		line:   l,
		unit:   u,
		logger: l.logger.With("unit_id", u.ID, "product", u.Product, "attempt", u.Attempt),
	}
}

// start 是流程的入口，由调度器在派生时刻调用
func (f *flow) start() {
	f.fire(fsm.EventStart)
	first := ""
	if len(f.unit.Slice) > 0 {
		first = f.unit.Slice[0].Station
	}
	f.publish(event.Event{Type: event.UnitStarted, UnitID: f.unit.ID, Product: f.unit.Product, Station: first, Attempt: f.unit.Attempt})
	f.next()
}

func (f *flow) next() {
	if f.idx >= len(f.unit.Slice) {
		f.terminate(types.OutcomeCompleted)
		return
	}
	f.line.proc.Process(f.unit, f.unit.Slice[f.idx], f.onStage)
}

func (f *flow) onStage(r station.Result) {
	if r.Approved {
		f.idx++
		f.next()
		return
	}
	if f.unit.Attempt >= types.MaxGlobalAttempts {
		f.logger.Info("超出重工上限，工件报废", "failed_station", r.FailedStation)
		f.terminate(types.OutcomeDiscarded)
		return
	}
	f.handoff(r.FailedStation)
}

// handoff 解析重工切片，并把工件的所有权转交给新的流程
func (f *flow) handoff(failed string) {
	slice := f.line.router.Resolve(f.unit.Route, failed, f.unit.Product)
	f.fire(fsm.EventEscalate)
	f.publish(event.Event{Type: event.UnitReprocessed, UnitID: f.unit.ID, Product: f.unit.Product, Station: failed, Attempt: f.unit.Attempt})

	f.unit.Attempt++
	f.unit.Slice = slice
	successor := newFlow(f.line, f.unit)
	f.logger.Debug("转交重工流程", "failed_station", failed, "restart_at", slice[0].Station, "next_attempt", f.unit.Attempt)
	f.line.sched.After(0, successor.start)
}

func (f *flow) terminate(outcome types.Outcome) {
	marker := types.MarkerCompleted
	ev := fsm.EventFinish
	if outcome == types.OutcomeDiscarded {
		marker = types.MarkerDiscarded
		ev = fsm.EventDiscard
	}
	now := f.line.sched.Now()
	f.fire(ev)
	f.line.log.Append(types.Record{
		Timestamp:  f.line.proc.Timestamp(now),
		Product:    f.unit.Product,
		UnitID:     f.unit.ID,
		Station:    marker,
		Attempt:    f.unit.Attempt,
		Outcome:    outcome,
		SimMinutes: now,
	})
}

func (f *flow) fire(e fsm.Event) {
	if err := f.unit.Lifecycle.Fire(e); err != nil {
		f.logger.Error("工件状态转移失败", "error", err)
	}
}

func (f *flow) publish(e event.Event) {
	if f.line.bus != nil {
		f.line.bus.Publish(e)
	}
}
