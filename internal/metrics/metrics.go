package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 定义 Prometheus 监控指标
var (
	// PendingEvents 仪表盘：调度器中尚未触发的事件数量
	PendingEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linesim_pending_events",
		Help: "The number of scheduled events waiting in the simulation queue",
	})

	// RecordsTotal 计数器：按工站和质量结果统计的时间线记录
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linesim_records_total",
		Help: "The total number of timeline records by station and outcome",
	}, []string{"station", "outcome"})

	// UnitsTerminalTotal 计数器：按产品类型统计完成/报废的工件
	UnitsTerminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linesim_units_terminal_total",
		Help: "The total number of units that reached a terminal outcome",
	}, []string{"product", "outcome"})

	// ReprocessHandoffsTotal 计数器：工站重试用尽后转入重工流程的次数
	ReprocessHandoffsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linesim_reprocess_handoffs_total",
		Help: "The total number of reprocessing hand-offs by product and failing station",
	}, []string{"product", "station"})

	// StationWaitMinutes 直方图：各工站排队等待时间分布（仿真分钟）
	StationWaitMinutes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linesim_station_wait_minutes",
		Help:    "Simulated minutes spent waiting for a station slot",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"station"})

	// StationDurationMinutes 直方图：各工站加工（含检验）耗时分布（仿真分钟）
	StationDurationMinutes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linesim_station_duration_minutes",
		Help:    "Simulated minutes of service plus inspection per station attempt",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"station"})
)
