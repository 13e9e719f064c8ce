package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"runtime/debug"
	"time"
)

const workerChanDepth = 16

// An ActiveClock is the worker-side wrapper around one local clock: the
// clock itself, the forth/back channel pair, and a back-reference to the
// master. Code running on the worker goroutine reaches the master and other
// workers through it; everyone else must go through the RemoteClockHandle.
type ActiveClock struct {
	id     int
	clock  *Clock
	master *Clock

	forth chan Message
	back  chan Message

	syncDt    VTime
	lastFault *Fault
	isolate   bool
}

// A RemoteClockHandle is the channel-only handle the master holds for one
// worker clock. It never touches the worker's registry directly; every
// operation is a message on the worker's forth channel.
type RemoteClockHandle struct {
	id     int
	master *Clock
	forth  chan Message
}

type inboxItem struct {
	from int
	msg  Message
}

// Fork spawns one worker per additional available processor, each owning a
// fresh local clock time-synchronized to this clock. This clock becomes the
// master of the group.
func (c *Clock) Fork() []*RemoteClockHandle {
	n := runtime.GOMAXPROCS(0) - 1
	if n < 1 {
		n = 1
	}

	return c.ForkN(n)
}

// ForkN spawns exactly n workers.
func (c *Clock) ForkN(n int) []*RemoteClockHandle {
	if c.inbox == nil {
		c.inbox = make(chan inboxItem, 4*workerChanDepth)
		c.activeWorkers = make(map[int]*ActiveClock)
	}

	handles := make([]*RemoteClockHandle, 0, n)
	for i := 0; i < n; i++ {
		handles = append(handles, c.forkOne())
	}

	return handles
}

func (c *Clock) forkOne() *RemoteClockHandle {
	c.mu.Lock()
	id := masterClockID + 1 + len(c.workers)
	dt := c.dt
	c.mu.Unlock()

	local := NewClock()
	local.id = id
	local.unit = c.unit
	local.converter = c.converter
	local.logger = c.logger
	_ = local.Init()

	// One-shot handshake: the worker starts at the master's current time
	// and sampling interval.
	local.writeNow(c.readNow())
	if dt > 0 {
		local.mu.Lock()
		local.dt = dt
		local.tn = local.readNow() + dt
		local.mu.Unlock()
	}

	ac := &ActiveClock{
		id:      id,
		clock:   local,
		master:  c,
		forth:   make(chan Message, workerChanDepth),
		back:    make(chan Message, workerChanDepth),
		isolate: true,
	}
	local.active = ac

	handle := &RemoteClockHandle{id: id, master: c, forth: ac.forth}

	c.mu.Lock()
	c.workers = append(c.workers, handle)
	c.activeWorkers[id] = ac
	c.mu.Unlock()

	go ac.serve()

	c.pumpWG.Add(1)
	go c.pump(id, ac.back)

	return handle
}

// pump forwards one worker's responses into the master's single inbox, so
// the master can service all workers from one loop.
func (c *Clock) pump(id int, back chan Message) {
	defer c.pumpWG.Done()

	for m := range back {
		c.inbox <- inboxItem{from: id, msg: m}
	}
}

// Workers returns the handles of all forked workers.
func (c *Clock) Workers() []*RemoteClockHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*RemoteClockHandle(nil), c.workers...)
}

// Worker returns the handle for the worker clock with the given id.
func (c *Clock) Worker(id int) (*RemoteClockHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range c.workers {
		if h.id == id {
			return h, nil
		}
	}

	return nil, fmt.Errorf("no worker clock with id %d", id)
}

// AnyWorker picks a worker at random, for coarse load balancing of
// placement-indifferent work.
func (c *Clock) AnyWorker() (*RemoteClockHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.workers) == 0 {
		return nil, errors.New("clock has no forked workers")
	}

	return c.workers[rand.Intn(len(c.workers))], nil
}

// RunSynced advances the master and every worker by duration in lockstep
// rounds of dtSync. Each round, the master sends Run(dtSync) to every
// worker, waits for all Done acknowledgements, and only then advances its
// own dtSync slice, bounding cross-thread ordering uncertainty to one
// synchronization interval.
func (c *Clock) RunSynced(duration, dtSync VTime) (RunSummary, error) {
	c.mu.Lock()
	nWorkers := len(c.workers)
	c.mu.Unlock()

	if nWorkers == 0 {
		return c.Run(duration)
	}

	if dtSync <= 0 {
		return RunSummary{}, errors.New("synchronization interval must be positive")
	}

	rounds := int(math.Round(float64(duration / dtSync)))
	total := RunSummary{}

	for r := 0; r < rounds; r++ {
		c.mu.Lock()
		for _, h := range c.workers {
			h.forth <- RunMsg{Duration: dtSync, Sync: true}
		}
		pending := len(c.workers)
		c.mu.Unlock()

		c.collectRound(pending)

		summary, err := c.Run(dtSync)
		if err != nil {
			return total, err
		}

		total.Events += summary.Events
		total.Ticks += summary.Ticks
		total.FinalTime = summary.FinalTime
		total.Stopped = summary.Stopped

		if total.Stopped {
			break
		}
	}

	return total, nil
}

// collectRound services the inbox until every worker acknowledged the
// current round, routing forwarded and master-bound registrations along the
// way.
func (c *Clock) collectRound(pending int) {
	for pending > 0 {
		item := <-c.inbox

		switch m := item.msg.(type) {
		case DoneMsg:
			pending--
		case ErrorMsg:
			c.diag(fmt.Errorf("worker %d: %s", item.from, m.Fault.Err))
		case ForwardMsg:
			c.routeForward(item.from, m)
		case RegisterMsg:
			c.registerLocal(m)
		default:
			c.diag(fmt.Errorf("unexpected %T from worker %d", item.msg, item.from))
		}
	}
}

// routeForward relays a worker-to-worker request. The master is the only
// legal path between two workers.
func (c *Clock) routeForward(from int, m ForwardMsg) {
	if m.To == masterClockID {
		if reg, ok := m.Msg.(RegisterMsg); ok {
			c.registerLocal(reg)
			return
		}

		c.diag(fmt.Errorf("worker %d forwarded %T to master", from, m.Msg))
		return
	}

	h, err := c.Worker(m.To)
	if err != nil {
		c.diag(fmt.Errorf("worker %d forwarded to unknown clock %d", from, m.To))
		return
	}

	h.forth <- m.Msg
}

// registerLocal applies a RegisterMsg to the master's own clock. Times are
// clamped to the master's now so a late-arriving registration never moves
// virtual time backwards.
func (c *Clock) registerLocal(m RegisterMsg) {
	switch m.Kind {
	case RegTimed:
		t := m.Time
		if now := c.CurrentTime(); t < now {
			t = now
		}
		if m.Interval > 0 {
			c.queue.Push(NewRepeatingAction(m.Action, t, m.Interval))
			c.refreshNextEvent()
		} else {
			c.ScheduleAt(m.Action, t)
		}
	case RegCond:
		c.ScheduleOn(m.Action, m.Preds...)
	case RegSample:
		c.RegisterPeriodic(m.Action, m.Interval)
	}
}

// awaitResponse waits for a ResponseMsg from one worker, servicing other
// inbox traffic meanwhile.
func (c *Clock) awaitResponse(from int) (ResponseMsg, error) {
	for {
		item := <-c.inbox

		if item.from == from {
			if r, ok := item.msg.(ResponseMsg); ok {
				return r, nil
			}
		}

		switch m := item.msg.(type) {
		case ErrorMsg:
			if item.from == from {
				return ResponseMsg{}, fmt.Errorf("worker %d: %s", item.from, m.Fault.Err)
			}
			c.diag(fmt.Errorf("worker %d: %s", item.from, m.Fault.Err))
		case ForwardMsg:
			c.routeForward(item.from, m)
		case RegisterMsg:
			c.registerLocal(m)
		default:
			c.diag(fmt.Errorf("unexpected %T from worker %d", item.msg, item.from))
		}
	}
}

// Collapse stops every worker, closes their channels, and dissolves the
// group. The master clock remains usable on its own afterwards.
func (c *Clock) Collapse() {
	c.mu.Lock()
	workers := c.workers
	c.workers = nil
	c.activeWorkers = nil
	c.mu.Unlock()

	for _, h := range workers {
		h.forth <- StopMsg{}
		close(h.forth)
	}

	c.pumpWG.Wait()

	for {
		select {
		case <-c.inbox:
		default:
			return
		}
	}
}

// ID returns the id of the worker clock behind the handle.
func (h *RemoteClockHandle) ID() int {
	return h.id
}

// ScheduleAt registers a to fire at time t on the worker clock.
func (h *RemoteClockHandle) ScheduleAt(a Action, t VTime) {
	h.forth <- RegisterMsg{Kind: RegTimed, Action: a, Time: t}
}

// ScheduleAtSync registers a to fire at t, aligned to the next
// synchronization boundary, for cross-thread dependencies that must not
// reorder.
func (h *RemoteClockHandle) ScheduleAtSync(a Action, t VTime) {
	h.forth <- RegisterMsg{Kind: RegTimed, Action: a, Time: t, Sync: true}
}

// ScheduleEvery registers a to fire at t and then every d on the worker
// clock.
func (h *RemoteClockHandle) ScheduleEvery(a Action, t, d VTime) {
	h.forth <- RegisterMsg{Kind: RegTimed, Action: a, Time: t, Interval: d}
}

// ScheduleOn registers a to fire the first tick all preds hold on the worker
// clock.
func (h *RemoteClockHandle) ScheduleOn(a Action, preds ...Predicate) {
	h.forth <- RegisterMsg{Kind: RegCond, Action: a, Preds: preds}
}

// RegisterPeriodic registers a to run once per sampling tick on the worker
// clock.
func (h *RemoteClockHandle) RegisterPeriodic(a Action, dt VTime) {
	h.forth <- RegisterMsg{Kind: RegSample, Action: a, Interval: dt}
}

// Query returns the worker's full clock snapshot.
func (h *RemoteClockHandle) Query() (ClockSnapshot, error) {
	h.forth <- QueryMsg{}

	resp, err := h.master.awaitResponse(h.id)
	if err != nil {
		return ClockSnapshot{}, err
	}
	if resp.Snapshot == nil {
		return ClockSnapshot{}, errors.New("worker returned an empty snapshot")
	}

	return *resp.Snapshot, nil
}

// Diag returns the worker's last captured fault, nil if it never faulted.
// The worker keeps running either way.
func (h *RemoteClockHandle) Diag() (*Fault, error) {
	h.forth <- DiagMsg{}

	resp, err := h.master.awaitResponse(h.id)
	if err != nil {
		return nil, err
	}

	return resp.Fault, nil
}

// Reset clears the worker's registry (hard) or re-synchronizes its time to
// the master's (soft).
func (h *RemoteClockHandle) Reset(hard bool) {
	h.forth <- ResetMsg{Hard: hard, Time: h.master.CurrentTime()}
}

// Active returns the worker context when c is a worker's local clock, nil
// otherwise. Only code already running on the worker goroutine may use it.
func (c *Clock) Active() *ActiveClock {
	return c.active
}

// Clock returns the worker's local clock.
func (ac *ActiveClock) Clock() *Clock {
	return ac.clock
}

// MasterID returns the id of the master clock.
func (ac *ActiveClock) MasterID() int {
	return ac.master.id
}

// DisableFaultIsolation makes the worker re-raise faults instead of
// reporting them and continuing.
func (ac *ActiveClock) DisableFaultIsolation() {
	ac.isolate = false
}

// ScheduleOnMaster registers a to fire at t on the master clock. Workers may
// register back to the master directly.
func (ac *ActiveClock) ScheduleOnMaster(a Action, t VTime) {
	ac.back <- RegisterMsg{Kind: RegTimed, Action: a, Time: t}
}

// ScheduleToPeer registers a to fire at t on another worker. The request is
// routed through the master; workers never talk peer-to-peer.
func (ac *ActiveClock) ScheduleToPeer(cid int, a Action, t VTime) {
	ac.back <- ForwardMsg{To: cid, Msg: RegisterMsg{Kind: RegTimed, Action: a, Time: t}}
}

// serve is the worker's event loop. Faults in handlers are caught, recorded
// for Diag, and reported back as Error messages; the loop keeps going unless
// fault isolation is disabled.
func (ac *ActiveClock) serve() {
	for msg := range ac.forth {
		if _, ok := msg.(StopMsg); ok {
			break
		}

		ac.dispatch(msg)
	}

	close(ac.back)
}

func (ac *ActiveClock) dispatch(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			ac.captureFault(r)

			if !ac.isolate {
				panic(r)
			}
		}
	}()

	switch m := msg.(type) {
	case RegisterMsg:
		ac.register(m)
	case QueryMsg:
		s := ac.clock.Snapshot()
		ac.back <- ResponseMsg{Snapshot: &s}
	case RunMsg:
		ac.runSlice(m)
	case SyncMsg:
		ac.clock.resyncTo(m.Time)
	case ResetMsg:
		if m.Hard {
			_ = ac.clock.Reset(true)
		} else {
			ac.clock.resyncTo(m.Time)
		}
	case DiagMsg:
		ac.back <- ResponseMsg{Fault: ac.lastFault}
	default:
		ac.back <- ErrorMsg{Fault: Fault{
			Err:  fmt.Sprintf("unhandled message %T", msg),
			Time: ac.clock.CurrentTime(),
		}}
	}
}

// runSlice advances the local clock by one synchronization slice. A fault
// inside a fired action is captured without losing the Done acknowledgement,
// so the lockstep round always completes.
func (ac *ActiveClock) runSlice(m RunMsg) {
	if m.Sync {
		ac.syncDt = m.Duration
	}

	start := time.Now()

	func() {
		defer func() {
			if r := recover(); r != nil {
				ac.captureFault(r)
				// The unwound run left the clock Busy.
				ac.clock.setState(StateIdle)

				if !ac.isolate {
					panic(r)
				}
			}
		}()

		if _, err := ac.clock.Run(m.Duration); err != nil {
			ac.captureErr(err)
		}
	}()

	ac.back <- DoneMsg{WallNS: time.Since(start).Nanoseconds()}
}

func (ac *ActiveClock) register(m RegisterMsg) {
	t := m.Time
	if m.Sync && ac.syncDt > 0 {
		t = VTime(math.Ceil(float64(t/ac.syncDt))) * ac.syncDt
	}

	// Clamp to the local now so registrations aimed at the past cannot move
	// virtual time backwards when they fire.
	if now := ac.clock.CurrentTime(); t < now {
		t = now
	}

	switch m.Kind {
	case RegTimed:
		if m.Interval > 0 {
			ac.clock.queue.Push(NewRepeatingAction(m.Action, t, m.Interval))
			ac.clock.refreshNextEvent()
		} else {
			ac.clock.ScheduleAt(m.Action, t)
		}
	case RegCond:
		ac.clock.ScheduleOn(m.Action, m.Preds...)
	case RegSample:
		ac.clock.RegisterPeriodic(m.Action, m.Interval)
	}
}

func (ac *ActiveClock) captureFault(r interface{}) {
	f := Fault{
		Err:   fmt.Sprint(r),
		Stack: string(debug.Stack()),
		Time:  ac.clock.CurrentTime(),
	}
	ac.lastFault = &f
	ac.back <- ErrorMsg{Fault: f}
}

func (ac *ActiveClock) captureErr(err error) {
	f := Fault{
		Err:  err.Error(),
		Time: ac.clock.CurrentTime(),
	}
	ac.lastFault = &f
	ac.back <- ErrorMsg{Fault: f}
}
