package handlers

import (
	"log/slog"

	"gearline/internal/event"
	"gearline/internal/fsm"
	"gearline/internal/metrics"
	"gearline/internal/web"
)

// RegisterEventHandlers 将所有事件处理器注册到事件总线
// 这是事件驱动架构的核心，将不同的业务关注点（监控、UI、日志）解耦；st 为空时不注册 UI 处理器
func RegisterEventHandlers(bus *event.Bus, st *web.StateTracker, logger *slog.Logger) {
	registerMetrics(bus)
	if st != nil {
		registerStateTracker(bus, st)
	}
	registerAudit(bus, logger)
}

// --- 指标处理器 (Metrics Handler) ---
func registerMetrics(bus *event.Bus) {
	// 订阅工站质检事件，记录结果、等待时间与加工耗时
	step := func(e event.Event) {
		if e.Record == nil {
			return
		}
		metrics.RecordsTotal.WithLabelValues(e.Station, string(e.Record.Outcome)).Inc()
		metrics.StationWaitMinutes.WithLabelValues(e.Station).Observe(e.Record.Wait)
		metrics.StationDurationMinutes.WithLabelValues(e.Station).Observe(e.Record.Duration)
	}
	bus.Subscribe(event.StepApproved, step)
	bus.Subscribe(event.StepRejected, step)

	// 订阅终态事件，按产品类型统计完成与报废
	terminal := func(e event.Event) {
		if e.Record == nil {
			return
		}
		metrics.RecordsTotal.WithLabelValues(e.Station, string(e.Record.Outcome)).Inc()
		metrics.UnitsTerminalTotal.WithLabelValues(e.Product, string(e.Record.Outcome)).Inc()
	}
	bus.Subscribe(event.UnitCompleted, terminal)
	bus.Subscribe(event.UnitDiscarded, terminal)

	// 订阅重工事件，统计各失败工站触发的重工次数
	bus.Subscribe(event.UnitReprocessed, func(e event.Event) {
		metrics.ReprocessHandoffsTotal.WithLabelValues(e.Product, e.Station).Inc()
	})
}

// --- Web UI 处理器 (Web UI Handler) ---
func registerStateTracker(bus *event.Bus, st *web.StateTracker) {
	// 订阅工件开始事件，首次出现时加入追踪器
	bus.Subscribe(event.UnitStarted, func(e event.Event) {
		st.AddUnit(e.UnitID, e.Product, e.Attempt)
		st.UpdateUnitState(e.UnitID, e.Station, fsm.StateReady, e.Attempt, 0)
	})
	// 订阅质检事件，更新工件所在工站
	step := func(e event.Event) {
		st.UpdateUnitState(e.UnitID, e.Station, fsm.StateReady, e.Attempt, e.Record.SimMinutes)
	}
	bus.Subscribe(event.StepApproved, step)
	bus.Subscribe(event.StepRejected, step)
	// 订阅重工事件
	bus.Subscribe(event.UnitReprocessed, func(e event.Event) {
		st.UpdateUnitState(e.UnitID, e.Station, fsm.StateRework, e.Attempt, 0)
	})
	// 订阅终态事件
	bus.Subscribe(event.UnitCompleted, func(e event.Event) {
		st.UpdateUnitState(e.UnitID, "", fsm.StateCompleted, e.Attempt, e.Record.SimMinutes)
	})
	bus.Subscribe(event.UnitDiscarded, func(e event.Event) {
		st.UpdateUnitState(e.UnitID, "", fsm.StateDiscarded, e.Attempt, e.Record.SimMinutes)
	})
	// 每条时间线记录都推送到 /ws
	bus.SubscribeAll(func(e event.Event) {
		if e.Record != nil {
			st.StreamRecord(*e.Record)
		}
	})
}

// --- 日志处理器 (Logging Handler) ---
func registerAudit(bus *event.Bus, logger *slog.Logger) {
	// 订阅关键业务事件，记录审计日志
	bus.Subscribe(event.UnitReprocessed, func(e event.Event) {
		logger.Info("工件转入重工", "unit_id", e.UnitID, "product", e.Product, "failed_station", e.Station, "attempt", e.Attempt)
	})
	bus.Subscribe(event.UnitDiscarded, func(e event.Event) {
		logger.Warn("工件报废", "unit_id", e.UnitID, "product", e.Product, "attempt", e.Attempt)
	})
	bus.Subscribe(event.UnitCompleted, func(e event.Event) {
		logger.Debug("工件完成", "unit_id", e.UnitID, "product", e.Product, "attempt", e.Attempt)
	})
}
