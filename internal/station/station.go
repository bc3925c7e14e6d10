package station

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"gearline/internal/calendar"
	"gearline/internal/fsm"
	"gearline/internal/sim"
	"gearline/internal/timeline"
	"gearline/internal/types"
)

// Result 表示一次工站处理（含本地重试）的结果
type Result struct {
	Approved      bool
	FailedStation string // 本地重试用尽时的失败工站
}

// Processor 执行工件在某个工站上的一次处理：获取资源、加工、质检和有限次的本地重试
type Processor struct {
	sched    *sim.Scheduler
	pool     *sim.Pool
	cal      *calendar.Calendar
	rng      *rand.Rand
	variance float64 // 加工时间标准差占均值的比例
	log      *timeline.Log
	logger   *slog.Logger
}

// NewProcessor 创建工站处理器
func NewProcessor(
	sched *sim.Scheduler,
	pool *sim.Pool,
	cal *calendar.Calendar,
	rng *rand.Rand,
	variance float64,
	log *timeline.Log,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		sched:    sched,
		pool:     pool,
		cal:      cal,
		rng:      rng,
		variance: variance,
		log:      log,
		logger:   logger.With("component", "station"),
	}
}

// Process 在 stage 对应的工站上处理工件，结束后以延续的形式调用 done
func (p *Processor) Process(u *types.Unit, stage types.Stage, done func(Result)) {
	res, ok := p.pool.Get(stage.Station)
	if !ok {
		// 资源池由运行驱动根据所有路线预先构建
		panic(fmt.Sprintf("station: %q is not declared in the resource pool", stage.Station))
	}
	run := &stageRun{
		p:      p,
		unit:   u,
		stage:  stage,
		res:    res,
		local:  1,
		done:   done,
		logger: p.logger.With("unit_id", u.ID, "product", u.Product, "station", stage.Station, "attempt", u.Attempt),
	}
	run.acquire()
}

// Duration 按正态分布抽取加工时间，取整且至少为 1 分钟
func (p *Processor) Duration(mean float64) float64 {
	d := p.rng.NormFloat64()*mean*p.variance + mean
	return math.Max(1, math.Round(d))
}

// Timestamp 将仿真时刻映射为工作日历时间
func (p *Processor) Timestamp(now float64) time.Time {
	return p.cal.Map(now)
}

// stageRun 保存一次工站处理在各个挂起点之间的状态
type stageRun struct {
	p           *Processor
	unit        *types.Unit
	stage       types.Stage
	res         *sim.Resource
	local       int // 本地尝试次数
	requestedAt float64
	done        func(Result)
	logger      *slog.Logger
}

func (r *stageRun) acquire() {
	r.fire(fsm.EventRequest)
	r.requestedAt = r.p.sched.Now()
	r.res.Acquire(r.serve)
}

func (r *stageRun) serve() {
	r.fire(fsm.EventGrant)
	wait := r.p.sched.Now() - r.requestedAt
	service := r.p.Duration(r.stage.MeanMinutes)

	r.p.sched.After(service, func() {
		r.res.Release()
		r.fire(fsm.EventInspect)
		if r.res.Inspection {
			// 检验工站的加工时间即为检验时间
			r.verdict(service, wait)
			return
		}
		r.p.sched.After(types.InspectionOverhead, func() {
			r.verdict(service+types.InspectionOverhead, wait)
		})
	})
}

func (r *stageRun) verdict(duration, wait float64) {
	now := r.p.sched.Now()
	approved := r.p.rng.Float64() >= r.stage.RejectProb

	rec := types.Record{
		Timestamp:  r.p.Timestamp(now),
		Product:    r.unit.Product,
		UnitID:     r.unit.ID,
		Station:    r.stage.Station,
		Duration:   duration,
		Wait:       wait,
		Attempt:    r.unit.Attempt,
		SimMinutes: now,
	}

	if approved {
		rec.Outcome = types.OutcomeApproved
		r.p.log.Append(rec)
		r.fire(fsm.EventPass)
		r.done(Result{Approved: true})
		return
	}

	rec.Outcome = types.OutcomeRejected
	r.p.log.Append(rec)
	r.fire(fsm.EventReject)
	r.logger.Debug("质检不合格", "local_attempt", r.local, "duration", duration, "wait", wait)

	r.local++
	if r.local > types.MaxLocalAttempts {
		r.done(Result{FailedStation: r.stage.Station})
		return
	}
	r.acquire()
}

func (r *stageRun) fire(e fsm.Event) {
	if r.unit.Lifecycle == nil {
		return
	}
	if err := r.unit.Lifecycle.Fire(e); err != nil {
		r.logger.Error("工件状态转移失败", "error", err)
	}
}
