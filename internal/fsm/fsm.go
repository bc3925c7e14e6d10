package fsm

import (
	"fmt"
	"sync"
)

// State 定义状态类型
type State string

// Event 定义事件类型
type Event string

const (
	StateCreated      State = "CREATED"
	StateReady        State = "READY"         // 工序之间，等待申请下一个工站
	StateWaiting      State = "WAITING"       // 排队等待工站服务位
	StateProcessing   State = "PROCESSING"    // 占用工站加工中
	StateQualityCheck State = "QUALITY_CHECK" // 质检中
	StateRework       State = "REWORK"        // 已转交重工流程
	StateCompleted    State = "COMPLETED"
	StateDiscarded    State = "DISCARDED"
)

const (
	EventStart    Event = "START"
	EventRequest  Event = "REQUEST"
	EventGrant    Event = "GRANT"
	EventInspect  Event = "INSPECT"
	EventPass     Event = "PASS"
	EventReject   Event = "REJECT"
	EventEscalate Event = "ESCALATE"
	EventFinish   Event = "FINISH"
	EventDiscard  Event = "DISCARD"
)

// FSM 是单个工件的生命周期状态机
type FSM struct {
	Current State
	mu      sync.Mutex
	// transitions 定义状态转移表: CurrentState -> Event -> NextState
	transitions map[State]map[Event]State
	TargetID    string // 关联的工件 ID
}

func NewFSM(targetID string) *FSM {
	fsm := &FSM{
		Current:     StateCreated,
		TargetID:    targetID,
		transitions: make(map[State]map[Event]State),
	}
	fsm.initTransitions()
	return fsm
}

func (f *FSM) initTransitions() {
	f.addTransition(StateCreated, EventStart, StateReady)

	f.addTransition(StateReady, EventRequest, StateWaiting)
	f.addTransition(StateWaiting, EventGrant, StateProcessing)
	f.addTransition(StateProcessing, EventInspect, StateQualityCheck)
	f.addTransition(StateQualityCheck, EventPass, StateReady)
	f.addTransition(StateQualityCheck, EventReject, StateReady) // 本地重试或上报失败

	f.addTransition(StateReady, EventEscalate, StateRework)
	f.addTransition(StateRework, EventStart, StateReady)

	f.addTransition(StateReady, EventFinish, StateCompleted)
	f.addTransition(StateReady, EventDiscard, StateDiscarded)
}

func (f *FSM) addTransition(from State, event Event, to State) {
	if _, ok := f.transitions[from]; !ok {
		f.transitions[from] = make(map[Event]State)
	}
	f.transitions[from][event] = to
}

// State 返回当前状态
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Current
}

// Terminal 表示工件是否已到达终态
func (f *FSM) Terminal() bool {
	s := f.State()
	return s == StateCompleted || s == StateDiscarded
}

// Fire 触发事件
func (f *FSM) Fire(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// 查找合法的转移
	nextState, ok := f.transitions[f.Current][event]
	if !ok {
		return fmt.Errorf("invalid transition for %s: cannot fire event %s from state %s", f.TargetID, event, f.Current)
	}
	f.Current = nextState
	return nil
}
