package sim

import (
	"fmt"
	"log/slog"
)

// Resource 是容量受限的工站资源，等待者按到达顺序 (FIFO) 获得服务位
type Resource struct {
	Name       string
	Capacity   int
	Inspection bool // 是否为检验工站

	sched   *Scheduler
	inUse   int
	peak    int
	waiters []func()
}

// Acquire 申请一个服务位；获得后在当前时刻以延续的形式调用 granted
func (r *Resource) Acquire(granted func()) {
	if r.inUse < r.Capacity {
		r.inUse++
		r.trackPeak()
		r.sched.After(0, granted)
		return
	}
	r.waiters = append(r.waiters, granted)
}

// Release 归还服务位，并把它交给队首的等待者
func (r *Resource) Release() {
	if r.inUse == 0 {
		panic(fmt.Sprintf("sim: release of idle resource %q", r.Name))
	}
	r.inUse--
	if len(r.waiters) == 0 {
		return
	}
	next := r.waiters[0]
	r.waiters[0] = nil
	r.waiters = r.waiters[1:]
	r.inUse++
	r.trackPeak()
	r.sched.After(0, next)
}

// InUse 返回当前占用的服务位数
func (r *Resource) InUse() int { return r.inUse }

// Waiting 返回排队等待的请求数
func (r *Resource) Waiting() int { return len(r.waiters) }

// Peak 返回运行期间同时占用服务位的最大数量
func (r *Resource) Peak() int { return r.peak }

func (r *Resource) trackPeak() {
	if r.inUse > r.peak {
		r.peak = r.inUse
	}
}

// Pool 按名称管理共享的工站资源
type Pool struct {
	sched     *Scheduler
	resources map[string]*Resource
	order     []string
	logger    *slog.Logger
}

// NewPool 创建一个空的资源池
func NewPool(sched *Scheduler, logger *slog.Logger) *Pool {
	return &Pool{
		sched:     sched,
		resources: make(map[string]*Resource),
		logger:    logger.With("component", "resource_pool"),
	}
}

// Declare 在首次引用时创建工站；之后对同名工站的声明沿用首次的容量
func (p *Pool) Declare(name string, capacity int, inspection bool) *Resource {
	if r, ok := p.resources[name]; ok {
		if r.Capacity != capacity {
			p.logger.Warn("工站容量声明冲突，沿用首次声明", "station", name, "capacity", r.Capacity, "ignored", capacity)
		}
		return r
	}
	r := &Resource{Name: name, Capacity: capacity, Inspection: inspection, sched: p.sched}
	p.resources[name] = r
	p.order = append(p.order, name)
	return r
}

// Get 按名称查找工站
func (p *Pool) Get(name string) (*Resource, bool) {
	r, ok := p.resources[name]
	return r, ok
}

// Resources 按声明顺序返回所有工站
func (p *Pool) Resources() []*Resource {
	out := make([]*Resource, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.resources[name])
	}
	return out
}
