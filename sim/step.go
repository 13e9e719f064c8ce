package sim

import "errors"

// ErrEmptySchedule reports a step taken with nothing scheduled and no
// sampling interval active. It is a diagnostic, not a failure.
var ErrEmptySchedule = errors.New("step with empty schedule and no sampling interval")

// A RunSummary describes what a Run (or a resumed run) did. It is returned
// even when the run was stopped early.
type RunSummary struct {
	Events    uint64
	Ticks     uint64
	FinalTime VTime
	Stopped   bool
}

// StepOnce advances the clock by a single step: either the next timed action
// fires or one sampling tick executes, whichever comes first.
func (c *Clock) StepOnce() error {
	if err := c.transition(CmdStep); err != nil {
		return err
	}

	err := c.doStep()
	c.setState(StateIdle)

	return err
}

// Run advances the clock by duration, firing every timed, sample, and
// conditional action that falls in the interval. It returns a summary of the
// run even when stopped early via Stop.
func (c *Clock) Run(duration VTime) (RunSummary, error) {
	if duration < 0 {
		return RunSummary{}, errors.New("run duration must not be negative")
	}

	if err := c.transition(CmdRun); err != nil {
		return RunSummary{}, err
	}

	now := c.readNow()

	c.mu.Lock()
	c.endTime = now + duration
	if c.dt > 0 && c.tn <= now {
		c.tn = now + c.dt
	}
	c.mu.Unlock()

	c.stopReq.Store(false)

	return c.runBusy(), nil
}

// Stop halts a running clock. The stepping loop observes the request at the
// next iteration and leaves the clock Halted, keeping the remaining duration
// for Resume. Stopping a clock that is not Busy is a reported diagnostic.
func (c *Clock) Stop() error {
	if err := c.transition(CmdStop); err != nil {
		return err
	}

	c.stopReq.Store(true)

	return nil
}

// Resume continues a halted run for the remaining portion of its original
// duration.
func (c *Clock) Resume() (RunSummary, error) {
	if err := c.transition(CmdResume); err != nil {
		return RunSummary{}, err
	}

	c.stopReq.Store(false)

	return c.runBusy(), nil
}

func (c *Clock) runBusy() RunSummary {
	c.inRun.Store(true)
	defer c.inRun.Store(false)

	c.mu.Lock()
	ev0 := c.evCount
	sc0 := c.scCount
	end := c.endTime
	c.mu.Unlock()

	for !c.stopReq.Load() && c.withinHorizon(end) {
		_ = c.doStep()
	}

	if c.stopReq.Load() {
		// Stop's transition already moved the state to Halted.
		return c.summarize(ev0, sc0, c.readNow(), true)
	}

	c.drainEndTime(end)
	c.writeNow(end)

	c.mu.Lock()
	if c.tev < end {
		c.tev = end
	}
	if c.tn < end {
		c.tn = end
	}
	c.mu.Unlock()

	// A Stop can still land between the last loop check and here, from an
	// action fired during the end-time drain.
	if c.stopReq.Load() {
		return c.summarize(ev0, sc0, end, true)
	}

	c.setState(StateIdle)

	return c.summarize(ev0, sc0, end, false)
}

func (c *Clock) summarize(ev0, sc0 uint64, final VTime, stopped bool) RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	return RunSummary{
		Events:    c.evCount - ev0,
		Ticks:     c.scCount - sc0,
		FinalTime: final,
		Stopped:   stopped,
	}
}

// withinHorizon reports whether the next tick or the next timed action still
// falls inside (now, end]. Actions clamped to exactly now also count; they
// are removed when fired, so progress is guaranteed.
func (c *Clock) withinHorizon(end VTime) bool {
	now := c.readNow()

	c.mu.Lock()
	dt := c.dt
	tn := c.tn
	c.mu.Unlock()

	// The tick cadence accumulates float error over long runs; a tick that
	// lands within tolerance past the horizon still belongs to this run.
	if dt > 0 && tn > now && tn <= end+endTimeTolerance {
		return true
	}

	if t, ok := c.queue.NextTime(); ok && t >= now && t <= end {
		return true
	}

	return false
}

// drainEndTime fires actions that landed within floating-point tolerance
// past the run horizon, so a run never strands an action scheduled for
// exactly its end time.
func (c *Clock) drainEndTime(end VTime) {
	for {
		t, ok := c.queue.NextTime()
		if !ok || t > end+endTimeTolerance {
			return
		}

		c.fireNext()
	}
}

// doStep performs one advance of the clock: when a sampling interval is
// active and the next tick does not come after the next timed action, a tick
// executes; otherwise the next timed action fires. Stepping with an empty
// registry and no sampling interval is a reported no-op.
func (c *Clock) doStep() error {
	c.inStep.Store(true)
	defer c.inStep.Store(false)

	// Refresh the cached next-event time if it went stale.
	now := c.readNow()
	if next, ok := c.queue.NextTime(); ok {
		c.mu.Lock()
		if c.tev <= now || c.tev != next {
			c.tev = next
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	dt := c.dt
	tn := c.tn
	tev := c.tev
	c.mu.Unlock()

	pending := c.queue.Len()

	switch {
	case pending > 0 && dt > 0:
		if tn <= tev {
			c.tick()
		} else {
			c.fireNext()
		}
	case pending > 0:
		c.fireNext()
	case dt > 0:
		c.tick()
	default:
		err := ErrEmptySchedule
		c.diag(err)
		return err
	}

	return nil
}

// tick advances time to the next sampling point, runs every sample action in
// registration order, then fires conditional actions until none remain
// ready. A tick that coincides exactly with the next timed action fires that
// action as well.
func (c *Clock) tick() {
	c.mu.Lock()
	tn := c.tn
	end := c.endTime
	samples := append([]*SampleAction(nil), c.samples...)
	c.mu.Unlock()

	// Keep time monotonic when drift pushed the tick a hair past the run
	// horizon. Only a run in progress has a live horizon; a single step
	// outside one must advance to tn unclamped.
	tickTime := tn
	if c.inRun.Load() && tickTime > end {
		tickTime = end
	}

	c.writeNow(tickTime)

	if c.NumHooks() > 0 {
		c.InvokeHook(HookCtx{Domain: c, Pos: HookPosTick, Now: tickTime})
	}

	for _, sa := range samples {
		sa.action()
	}

	c.evaluateConds()

	c.mu.Lock()
	c.scCount++
	coincide := c.queue.Len() > 0 && c.tev == tn
	c.tn = tn + c.dt
	c.mu.Unlock()

	if coincide {
		c.fireNext()
	}
}

// evaluateConds fires every conditional action whose conjunction holds,
// repeating the scan until a full pass fires nothing. A fired action is
// removed before it runs, giving at-most-once semantics.
func (c *Clock) evaluateConds() {
	for {
		c.mu.Lock()
		snapshot := append([]*CondAction(nil), c.conds...)
		c.mu.Unlock()

		var ready []*CondAction
		for _, ca := range snapshot {
			if ca.ready() {
				ready = append(ready, ca)
			}
		}

		if len(ready) == 0 {
			return
		}

		c.removeConds(ready)

		for _, ca := range ready {
			c.fire(ca.action, ca)
		}
	}
}

func (c *Clock) removeConds(fired []*CondAction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.conds[:0]
outer:
	for _, ca := range c.conds {
		for _, f := range fired {
			if ca == f {
				continue outer
			}
		}
		remaining = append(remaining, ca)
	}
	c.conds = remaining
}

// fireNext pops and executes the earliest timed action, advancing time to
// its firing time. Repeating actions reschedule themselves one interval
// after the firing time.
func (c *Clock) fireNext() {
	ta := c.queue.Pop()

	c.writeNow(ta.fireTime)

	c.fire(ta.action, ta)

	if ta.interval > 0 {
		ta.fireTime += ta.interval
		c.queue.Push(ta)
	}

	c.refreshNextEvent()
}

// fire executes one action between the firing hooks and counts it.
func (c *Clock) fire(a Action, item interface{}) {
	now := c.readNow()

	hookCtx := HookCtx{
		Domain: c,
		Pos:    HookPosBeforeFiring,
		Now:    now,
		Item:   item,
	}
	c.InvokeHook(hookCtx)

	a()

	hookCtx.Pos = HookPosAfterFiring
	c.InvokeHook(hookCtx)

	c.mu.Lock()
	c.evCount++
	c.mu.Unlock()
}
