package routing

import (
	"log/slog"

	"gearline/internal/types"
)

// Gate 定义一个检验关口：该关口重试用尽后需要返工的上游工站
type Gate struct {
	Station string   `mapstructure:"station"`
	Redo    []string `mapstructure:"redo"`
}

// FullReprocess 定义某产品类型中失败后需从自身起完整重做的工站
type FullReprocess struct {
	Product  string   `mapstructure:"product"`
	Stations []string `mapstructure:"stations"`
}

// Router 决定工站本地重试用尽后需要重做的工序切片
type Router struct {
	gates  map[string][]string
	full   map[string]map[string]bool
	logger *slog.Logger
}

// NewRouter 根据检验关口表和完整重做表创建路由器
func NewRouter(gates []Gate, full []FullReprocess, logger *slog.Logger) *Router {
	r := &Router{
		gates:  make(map[string][]string),
		full:   make(map[string]map[string]bool),
		logger: logger.With("component", "router"),
	}
	for _, g := range gates {
		r.gates[g.Station] = append([]string(nil), g.Redo...)
	}
	for _, f := range full {
		set, ok := r.full[f.Product]
		if !ok {
			set = make(map[string]bool)
			r.full[f.Product] = set
		}
		for _, st := range f.Stations {
			set[st] = true
		}
	}
	return r
}

// IsGate 判断工站是否配置为检验关口
func (r *Router) IsGate(station string) bool {
	_, ok := r.gates[station]
	return ok
}

// Targets 返回需要重做的工站名称列表
func (r *Router) Targets(station, product string) []string {
	if redo, ok := r.gates[station]; ok {
		return redo
	}
	if r.full[product][station] {
		return []string{station}
	}
	return []string{station}
}

// Resolve 在原始路线中找到最早出现在目标列表里的工序，返回从该工序到路线末尾的切片。
// 若目标工站都不在路线中，则回退为完整的原始路线并记录诊断日志。
func (r *Router) Resolve(route types.Route, station, product string) types.Route {
	targets := r.Targets(station, product)
	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t] = true
	}
	for i, stage := range route {
		if wanted[stage.Station] {
			return route[i:]
		}
	}
	r.logger.Warn("重工目标工站不在工艺路线中，回退为完整路线",
		"product", product, "failed_station", station, "gate", r.IsGate(station), "targets", targets)
	return route
}
