package sim

// item 是待处理事件队列中的元素
type item struct {
	at    float64 // 触发的仿真时刻（分钟）
	seq   uint64  // 登记序号，同一时刻按登记顺序触发
	fn    func()  // 事件触发时执行的延续
	index int     // 元素在堆中的索引
}

// eventQueue 实现了 heap.Interface 接口，是按 (时刻, 登记序号) 排序的最小堆
type eventQueue []*item

func (q eventQueue) Len() int { return len(q) }

// Less 先比较触发时刻，时刻相同时按登记顺序
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}

// Pop 移除并返回最早的事件
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // 避免内存泄漏
	it.index = -1
	*q = old[0 : n-1]
	return it
}
