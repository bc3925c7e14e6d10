package web

import (
	"sync"

	"gearline/internal/fsm"
	"gearline/internal/types"
)

// UnitState 定义了用于 UI 展示的工件状态
// 这是一个简化的视图，只包含前端需要的数据
type UnitState struct {
	ID         string  `json:"id"`
	Product    string  `json:"product"`
	Station    string  `json:"station"`
	Status     string  `json:"status"`
	Attempt    int     `json:"attempt"`
	SimMinutes float64 `json:"sim_minutes"`
}

// GlobalState 代表整条生产线的实时状态快照
type GlobalState struct {
	Units  map[string]UnitState `json:"units"`
	Counts map[string]int       `json:"counts"` // 各状态的工件数量
}

// unitMessage 是推送给 WebSocket 客户端的增量更新
type unitMessage struct {
	Type string    `json:"type"`
	Unit UnitState `json:"unit"`
}

// recordMessage 把一条时间线记录推送给 WebSocket 客户端
type recordMessage struct {
	Type   string       `json:"type"`
	Record types.Record `json:"record"`
}

// StateTracker 负责追踪所有工件的实时状态，并通知前端更新
type StateTracker struct {
	mu    sync.RWMutex
	units map[string]UnitState
	hub   *Hub
}

// NewStateTracker 创建一个新的 StateTracker 实例，hub 可为空
func NewStateTracker(hub *Hub) *StateTracker {
	return &StateTracker{
		units: make(map[string]UnitState),
		hub:   hub,
	}
}

// AddUnit 将一个新工件添加到状态追踪器中，并广播；已存在的工件保持不变
func (st *StateTracker) AddUnit(id, product string, attempt int) {
	st.mu.Lock()
	u, ok := st.units[id]
	if !ok {
		u = UnitState{ID: id, Product: product, Status: string(fsm.StateReady), Attempt: attempt}
		st.units[id] = u
	}
	st.mu.Unlock()

	if !ok {
		st.notify(u)
	}
}

// UpdateUnitState 更新单个工件的状态，并向所有客户端广播该工件的最新状态
func (st *StateTracker) UpdateUnitState(id, station string, status fsm.State, attempt int, simMinutes float64) {
	st.mu.Lock()
	u, ok := st.units[id]
	if ok {
		u.Station = station
		u.Status = string(status)
		u.Attempt = attempt
		u.SimMinutes = simMinutes
		st.units[id] = u
	}
	st.mu.Unlock()
	// 注意：如果工件不存在，这里不会创建。新工件通过 AddUnit 添加。

	if ok {
		st.notify(u)
	}
}

func (st *StateTracker) notify(u UnitState) {
	if st.hub != nil {
		st.hub.Broadcast(unitMessage{Type: "unit", Unit: u})
	}
}

// StreamRecord 向所有客户端推送一条时间线记录
func (st *StateTracker) StreamRecord(rec types.Record) {
	if st.hub != nil {
		st.hub.Broadcast(recordMessage{Type: "record", Record: rec})
	}
}

// Unit 返回单个工件的当前状态
func (st *StateTracker) Unit(id string) (UnitState, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	u, ok := st.units[id]
	return u, ok
}

// GetStateSnapshot 返回当前全局状态的一个深拷贝副本
// 用于新客户端连接时获取一次全量数据
func (st *StateTracker) GetStateSnapshot() GlobalState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	// 创建深拷贝以避免并发问题
	snapshot := GlobalState{Units: make(map[string]UnitState, len(st.units)), Counts: make(map[string]int)}
	for id, u := range st.units {
		snapshot.Units[id] = u
		snapshot.Counts[u.Status]++
	}
	return snapshot
}
