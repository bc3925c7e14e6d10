package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"gearline/internal/calendar"
	"gearline/internal/event"
	"gearline/internal/fsm"
	"gearline/internal/routing"
	"gearline/internal/sim"
	"gearline/internal/station"
	"gearline/internal/timeline"
	"gearline/internal/types"
	"gearline/internal/util"
)

// DefaultVariance 是加工时间标准差占均值的默认比例
const DefaultVariance = 0.20

// Options 定义一次仿真运行所需的输入
type Options struct {
	Products       []types.Product         // 产品类型、订单数量与工艺路线（按配置顺序）
	Calendar       *calendar.Calendar      // 工作日历
	Router         *routing.Router         // 重工路由表，为空时只重做失败工序
	InspectionRule *station.InspectionRule // 检验工站判定规则，为空时使用默认规则
	Variance       *float64                // 加工时间波动比例，为空时使用 DefaultVariance；0 表示加工时间固定为均值
	Seed           *int64                  // 随机种子，为空时使用当前时间
	Bus            *event.Bus              // 事件总线，可为空
	Logger         *slog.Logger
}

// StationStats 描述运行结束后单个工站的资源使用情况
type StationStats struct {
	Name       string `json:"name" yaml:"name"`
	Capacity   int    `json:"capacity" yaml:"capacity"`
	Inspection bool   `json:"inspection" yaml:"inspection"`
	Peak       int    `json:"peak" yaml:"peak"`
}

// Result 是一次仿真运行的结果
type Result struct {
	RunID      string         `json:"run_id"`
	Seed       int64          `json:"seed"`
	Units      int            `json:"units"`
	SimMinutes float64        `json:"sim_minutes"`
	Events     uint64         `json:"events"`
	Records    []types.Record `json:"records"`
	Stations   []StationStats `json:"stations"`
}

// Engine 是运行驱动：构建资源池，在 t=0 为每个订单工件派生流程，并运行时钟直到没有待处理事件
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// New 校验运行参数并创建引擎
func New(opts Options) (*Engine, error) {
	if opts.Calendar == nil {
		return nil, errors.New("engine: calendar is required")
	}
	if len(opts.Products) == 0 {
		return nil, errors.New("engine: at least one product is required")
	}
	for _, p := range opts.Products {
		if len(p.Route) == 0 {
			return nil, fmt.Errorf("engine: product %q has an empty route", p.Name)
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Router == nil {
		opts.Router = routing.NewRouter(nil, nil, opts.Logger)
	}
	if opts.InspectionRule == nil {
		rule, err := station.CompileInspectionRule("")
		if err != nil {
			return nil, err
		}
		opts.InspectionRule = rule
	}
	if opts.Variance == nil {
		v := DefaultVariance
		opts.Variance = &v
	} else if *opts.Variance < 0 {
		return nil, fmt.Errorf("engine: variance must be >= 0, got %v", *opts.Variance)
	}
	return &Engine{opts: opts, logger: opts.Logger.With("component", "engine")}, nil
}

// IsInspection 使用本引擎的规则判定检验工站
func (e *Engine) IsInspection(name string) bool {
	return e.opts.InspectionRule.IsInspection(name)
}

// Run 执行一次完整的仿真。
// 每次调用都从全新的时钟、资源池和时间线开始；相同种子的两次运行产生相同的记录序列。
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	runID, ok := util.RunIDFromContext(ctx)
	if !ok {
		runID = util.NewRunID()
	}
	logger := e.logger.With("run_id", runID)

	seed := time.Now().UnixNano()
	if e.opts.Seed != nil {
		seed = *e.opts.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	sched := sim.NewScheduler(logger)
	pool := sim.NewPool(sched, logger)
	for _, p := range e.opts.Products {
		for _, st := range p.Route {
			pool.Declare(st.Station, st.Capacity, e.IsInspection(st.Station))
		}
	}

	log := timeline.NewLog(e.opts.Bus)
	l := &line{
		sched:  sched,
		proc:   station.NewProcessor(sched, pool, e.opts.Calendar, rng, *e.opts.Variance, log, logger),
		router: e.opts.Router,
		log:    log,
		bus:    e.opts.Bus,
		logger: logger,
	}

	units := 0
	for _, p := range e.opts.Products {
		for i := 0; i < p.Quantity; i++ {
			id, err := uuid.NewRandomFromReader(rng)
			if err != nil {
				return nil, fmt.Errorf("生成工件 ID 失败: %w", err)
			}
			u := &types.Unit{
				ID:        id.String(),
				Product:   p.Name,
				Attempt:   1,
				Route:     p.Route,
				Slice:     p.Route,
				Lifecycle: fsm.NewFSM(id.String()),
			}
			sched.After(0, newFlow(l, u).start)
			units++
		}
	}
	logger.Info("开始仿真", "seed", seed, "units", units, "stations", len(pool.Resources()),
		"inspection_rule", e.opts.InspectionRule.Source())

	runErr := sched.Run(ctx)

	res := &Result{
		RunID:      runID,
		Seed:       seed,
		Units:      units,
		SimMinutes: sched.Now(),
		Events:     sched.Processed(),
		Records:    log.Records(),
	}
	for _, r := range pool.Resources() {
		res.Stations = append(res.Stations, StationStats{Name: r.Name, Capacity: r.Capacity, Inspection: r.Inspection, Peak: r.Peak()})
	}
	if runErr != nil {
		queued := map[string]int{}
		for _, r := range pool.Resources() {
			if n := r.Waiting(); n > 0 {
				queued[r.Name] = n
			}
		}
		logger.Warn("仿真中断", "sim_minutes", res.SimMinutes, "pending", sched.Pending(), "queued", queued)
		return res, fmt.Errorf("仿真中断: %w", runErr)
	}

	logger.Info("仿真结束",
		"sim_minutes", res.SimMinutes,
		"finished_at", e.opts.Calendar.Map(res.SimMinutes).Format(timeline.TimestampLayout),
		"records", len(res.Records),
		"events", res.Events)
	return res, nil
}
