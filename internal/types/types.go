package types

import (
	"time"

	"gearline/internal/fsm"
)

// 质量检验与重工的上限
const (
	MaxLocalAttempts   = 3 // 单个工站内的本地重试上限
	MaxGlobalAttempts  = 3 // 工件整体的重工（全局尝试）上限
	InspectionOverhead = 2 // 非检验工站在释放资源后追加的检验耗时（分钟）
)

// 终态记录使用的工站标记
const (
	MarkerCompleted = "PROCESO COMPLETADO"
	MarkerDiscarded = "DESCARTE DEFINITIVO"
)

// Outcome 定义记录的质量结果
type Outcome string

const (
	OutcomeApproved  Outcome = "APPROVED"
	OutcomeRejected  Outcome = "REJECTED"
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeDiscarded Outcome = "DISCARDED"
)

// Label 返回 CSV 中使用的西班牙语标签
func (o Outcome) Label() string {
	switch o {
	case OutcomeApproved:
		return "APROBADO"
	case OutcomeRejected:
		return "RECHAZADO"
	case OutcomeCompleted:
		return "COMPLETADO"
	case OutcomeDiscarded:
		return "DESCARTADO"
	}
	return string(o)
}

// Terminal 表示该结果是否结束了工件的生命周期
func (o Outcome) Terminal() bool {
	return o == OutcomeCompleted || o == OutcomeDiscarded
}

// ParseOutcome 将 CSV 标签或内部名称解析为 Outcome
func ParseOutcome(s string) (Outcome, bool) {
	for _, o := range []Outcome{OutcomeApproved, OutcomeRejected, OutcomeCompleted, OutcomeDiscarded} {
		if s == string(o) || s == o.Label() {
			return o, true
		}
	}
	return "", false
}

// Stage 定义工艺路线中的一个工站访问
type Stage struct {
	Station     string  `mapstructure:"station" json:"station"`                       // 工站名称
	MeanMinutes float64 `mapstructure:"mean_minutes" json:"mean_minutes"`             // 平均加工时间（分钟）
	Capacity    int     `mapstructure:"capacity" json:"capacity"`                     // 工站容量（同名工站以首次声明为准）
	RejectProb  float64 `mapstructure:"reject_probability" json:"reject_probability"` // 质检不合格概率
}

// Route 是某一产品类型的有序工站序列，构建后不再修改
type Route []Stage

// Product 定义产品类型、订单数量及其工艺路线
type Product struct {
	Name     string `mapstructure:"name"`
	Quantity int    `mapstructure:"quantity"`
	Route    Route  `mapstructure:"route"`
}

// Record 是时间线上的一条事件记录，追加后不可修改
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	Product    string    `json:"product"`
	UnitID     string    `json:"unit_id"`
	Station    string    `json:"station"`
	Duration   float64   `json:"duration_min"`
	Wait       float64   `json:"wait_min"`
	Attempt    int       `json:"attempt"`
	Outcome    Outcome   `json:"outcome"`
	SimMinutes float64   `json:"sim_minutes"` // 记录产生时的仿真时钟
}

// Unit 表示生产线上的一个工件。
// 同一时刻只有一个流程控制器拥有它；重工时所有权转交给新的流程。
type Unit struct {
	ID        string   // 工件唯一标识
	Product   string   // 产品类型
	Attempt   int      // 全局尝试次数 (1..MaxGlobalAttempts)
	Route     Route    // 原始工艺路线，重工切片总是从这里推导
	Slice     Route    // 当前要执行的工序切片（完整路线或重工后的后缀）
	Lifecycle *fsm.FSM // 生命周期状态机
}
