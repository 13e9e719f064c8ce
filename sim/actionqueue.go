package sim

import (
	"container/heap"
	"math"
	"sync"
)

// An ActionQueue is a queue of timed actions ordered by fire time.
//
// The queue never holds two actions with exactly the same fire time. A
// colliding time is advanced to the next representable float64 until it is
// unique, which preserves insertion order among same-instant schedules and
// keeps all fire times strictly increasing.
type ActionQueue struct {
	sync.Mutex

	actions  actionHeap
	occupied map[VTime]struct{}
}

// NewActionQueue creates and returns an empty ActionQueue.
func NewActionQueue() *ActionQueue {
	q := &ActionQueue{
		actions:  make(actionHeap, 0),
		occupied: make(map[VTime]struct{}),
	}
	heap.Init(&q.actions)

	return q
}

// Push adds an action to the queue, perturbing its fire time until unique.
// It returns the fire time actually assigned.
func (q *ActionQueue) Push(ta *TimedAction) VTime {
	q.Lock()
	defer q.Unlock()

	t := ta.fireTime
	for _, taken := q.occupied[t]; taken; _, taken = q.occupied[t] {
		t = VTime(math.Nextafter(float64(t), math.MaxFloat64))
	}

	ta.fireTime = t
	q.occupied[t] = struct{}{}
	heap.Push(&q.actions, ta)

	return t
}

// Pop removes and returns the action with the earliest fire time.
func (q *ActionQueue) Pop() *TimedAction {
	q.Lock()
	defer q.Unlock()

	ta := heap.Pop(&q.actions).(*TimedAction)
	delete(q.occupied, ta.fireTime)

	return ta
}

// Peek returns the earliest action without removing it.
func (q *ActionQueue) Peek() *TimedAction {
	q.Lock()
	defer q.Unlock()

	return q.actions[0]
}

// Len returns the number of actions in the queue.
func (q *ActionQueue) Len() int {
	q.Lock()
	defer q.Unlock()

	return len(q.actions)
}

// NextTime returns the earliest fire time, or ok=false on an empty queue.
func (q *ActionQueue) NextTime() (t VTime, ok bool) {
	q.Lock()
	defer q.Unlock()

	if len(q.actions) == 0 {
		return 0, false
	}

	return q.actions[0].fireTime, true
}

// Shift moves every queued fire time by delta. It is used when a clock is
// soft-reset to re-synchronize with another clock.
func (q *ActionQueue) Shift(delta VTime) {
	q.Lock()
	defer q.Unlock()

	occupied := make(map[VTime]struct{}, len(q.actions))
	for _, ta := range q.actions {
		ta.fireTime += delta
		occupied[ta.fireTime] = struct{}{}
	}
	q.occupied = occupied

	heap.Init(&q.actions)
}

// Clear drops all queued actions.
func (q *ActionQueue) Clear() {
	q.Lock()
	defer q.Unlock()

	q.actions = q.actions[:0]
	q.occupied = make(map[VTime]struct{})
}

type actionHeap []*TimedAction

// Len returns the length of the heap.
func (h actionHeap) Len() int {
	return len(h)
}

// Less determines the order between two actions. Less returns true if the
// i-th action fires before the j-th action.
func (h actionHeap) Less(i, j int) bool {
	return h[i].fireTime < h[j].fireTime
}

// Swap changes the position of two actions in the heap.
func (h actionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

// Push adds an action into the heap.
func (h *actionHeap) Push(x interface{}) {
	*h = append(*h, x.(*TimedAction))
}

// Pop removes and returns the next action to fire.
func (h *actionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	ta := old[n-1]
	*h = old[0 : n-1]

	return ta
}
