package sim

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// ClockState is the lifecycle state of a Clock.
type ClockState int

// The states a Clock can be in.
const (
	StateUndefined ClockState = iota
	StateIdle
	StateBusy
	StateHalted
)

func (s ClockState) String() string {
	switch s {
	case StateUndefined:
		return "Undefined"
	case StateIdle:
		return "Idle"
	case StateBusy:
		return "Busy"
	case StateHalted:
		return "Halted"
	}

	return fmt.Sprintf("ClockState(%d)", int(s))
}

// Command drives the clock state machine.
type Command int

// The commands understood by the clock state machine.
const (
	CmdInit Command = iota
	CmdStep
	CmdRun
	CmdStop
	CmdResume
	CmdReset
)

func (c Command) String() string {
	switch c {
	case CmdInit:
		return "Init"
	case CmdStep:
		return "Step"
	case CmdRun:
		return "Run"
	case CmdStop:
		return "Stop"
	case CmdResume:
		return "Resume"
	case CmdReset:
		return "Reset"
	}

	return fmt.Sprintf("Command(%d)", int(c))
}

// A TransitionError reports an unhandled (state, command) combination. It
// signals a programming error upstream; the clock state is left unchanged.
type TransitionError struct {
	State ClockState
	Cmd   Command
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("unhandled transition: %s in state %s", e.Cmd, e.State)
}

// Tunable constants of the sampling-rate heuristics. Conditions must be
// polled often enough to be detected promptly; the exact divisor carries no
// correctness requirement.
const (
	condPollDivisor  = 100
	fallbackSampling = VTime(0.01)
	endTimeTolerance = VTime(1e-9)
	masterClockID    = 1
	defaultClockUnit = UnitSecond
)

// A Clock owns virtual time and the registry of pending work. It is the unit
// of scheduling: timed actions fire in time order, sample actions run every
// sampling tick, and conditional actions fire the first tick their predicate
// holds.
type Clock struct {
	HookableBase

	id        int
	unit      Unit
	converter UnitConverter
	logger    *log.Logger

	timeLock sync.RWMutex
	time     VTime

	state   ClockState
	dt      VTime // sampling interval, 0 means event-driven
	endTime VTime
	tev     VTime // cached next-event time, never below time
	tn      VTime // cached next-tick time, never below time

	evCount uint64
	scCount uint64

	queue *ActionQueue

	mu        sync.Mutex
	conds     []*CondAction
	samples   []*SampleAction
	processes map[string]*Process

	inStep  atomic.Bool
	inRun   atomic.Bool
	stopReq atomic.Bool

	// master only
	workers       []*RemoteClockHandle
	activeWorkers map[int]*ActiveClock
	inbox         chan inboxItem
	pumpWG        sync.WaitGroup

	// worker only
	active *ActiveClock
}

// NewClock creates a Clock in the Undefined state, using seconds as its time
// unit.
func NewClock() *Clock {
	c := &Clock{
		id:        masterClockID,
		unit:      defaultClockUnit,
		logger:    log.Default(),
		queue:     NewActionQueue(),
		processes: make(map[string]*Process),
	}

	return c
}

// WithUnit sets the unit the clock counts time in and the converter used for
// dimensioned time values.
func (c *Clock) WithUnit(u Unit, conv UnitConverter) *Clock {
	c.unit = u
	c.converter = conv

	return c
}

// WithLogger redirects the clock's diagnostics.
func (c *Clock) WithLogger(l *log.Logger) *Clock {
	c.logger = l

	return c
}

// ID returns the clock id. A master clock is 1; worker clocks count up from
// 2.
func (c *Clock) ID() int {
	return c.id
}

// State returns the current state of the clock state machine.
func (c *Clock) State() ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// CurrentTime returns the current virtual time of the clock.
func (c *Clock) CurrentTime() VTime {
	return c.readNow()
}

// SamplingInterval returns the active sampling interval, 0 when the clock is
// purely event-driven.
func (c *Clock) SamplingInterval() VTime {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dt
}

// EventCount returns the number of timed and conditional actions fired.
func (c *Clock) EventCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.evCount
}

// TickCount returns the number of sampling ticks taken.
func (c *Clock) TickCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.scCount
}

func (c *Clock) readNow() VTime {
	c.timeLock.RLock()
	t := c.time
	c.timeLock.RUnlock()

	return t
}

func (c *Clock) writeNow(t VTime) {
	c.timeLock.Lock()
	c.time = t
	c.timeLock.Unlock()
}

// transition applies a command to the state machine. It is the single place
// where states change. Unknown (state, command) pairs fall through to the
// default case and come back as a TransitionError diagnostic with the state
// untouched.
func (c *Clock) transition(cmd Command) error {
	if err := c.applyCmd(cmd); err != nil {
		c.diag(err)
		return err
	}

	return nil
}

func (c *Clock) applyCmd(cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateUndefined:
		switch cmd {
		case CmdInit:
			c.state = StateIdle
			return nil
		case CmdStep, CmdRun:
			// Auto-initialize on first use.
			c.state = StateBusy
			return nil
		case CmdReset:
			c.state = StateIdle
			return nil
		}

	case StateIdle:
		switch cmd {
		case CmdStep, CmdRun:
			c.state = StateBusy
			return nil
		case CmdReset:
			return nil
		}

	case StateBusy:
		switch cmd {
		case CmdStop:
			c.state = StateHalted
			return nil
		}

	case StateHalted:
		switch cmd {
		case CmdResume:
			c.state = StateBusy
			return nil
		case CmdReset:
			c.state = StateIdle
			return nil
		}
	}

	return &TransitionError{State: c.state, Cmd: cmd}
}

func (c *Clock) setState(s ClockState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// diag reports a non-fatal condition through the logger and the Diag hook.
func (c *Clock) diag(err error) {
	c.logger.Printf("clock %d: %s", c.id, err)
	c.InvokeHook(HookCtx{
		Domain: c,
		Pos:    HookPosDiag,
		Now:    c.readNow(),
		Item:   err,
	})
}

// Init moves a freshly created clock from Undefined to Idle.
func (c *Clock) Init() error {
	return c.transition(CmdInit)
}

// ScheduleAt registers a to fire at time t. A time in the past is clamped to
// now. If t collides with an already queued firing time, it is advanced to
// the next representable value until unique. The time actually assigned is
// returned, so callers can observe firing order for same-instant schedules.
func (c *Clock) ScheduleAt(a Action, t VTime) VTime {
	now := c.readNow()
	if t < now {
		t = now
	}

	adjusted := c.queue.Push(NewTimedAction(a, t))
	c.refreshNextEvent()

	return adjusted
}

// ScheduleAfter registers a to fire d after the current time.
func (c *Clock) ScheduleAfter(a Action, d VTime) VTime {
	return c.ScheduleAt(a, c.readNow()+d)
}

// ScheduleEvery registers a to fire at the current time and then every d
// after each firing.
func (c *Clock) ScheduleEvery(a Action, d VTime) VTime {
	now := c.readNow()
	adjusted := c.queue.Push(NewRepeatingAction(a, now, d))
	c.refreshNextEvent()

	return adjusted
}

// ScheduleAtTime is ScheduleAt for a dimensioned time value. The clock hands
// the value to its UnitConverter to obtain the magnitude in its own unit.
func (c *Clock) ScheduleAtTime(a Action, t Time) (VTime, error) {
	v, err := c.magnitude(t)
	if err != nil {
		return 0, err
	}

	return c.ScheduleAt(a, v), nil
}

// ScheduleAfterTime is ScheduleAfter for a dimensioned time value.
func (c *Clock) ScheduleAfterTime(a Action, d Time) (VTime, error) {
	v, err := c.magnitude(d)
	if err != nil {
		return 0, err
	}

	return c.ScheduleAfter(a, v), nil
}

func (c *Clock) magnitude(t Time) (VTime, error) {
	if t.Unit == c.unit || t.Unit == UnitNone {
		return VTime(t.Value), nil
	}

	if c.converter == nil {
		return 0, fmt.Errorf("no unit converter configured to convert %s to %s",
			t.Unit, c.unit)
	}

	v, err := c.converter.Magnitude(t, c.unit)
	if err != nil {
		return 0, err
	}

	return VTime(v), nil
}

// ScheduleOn registers a to fire the first time all preds hold. If the clock
// is mid-step and the conjunction already holds, a runs immediately and
// synchronously without being registered. Otherwise the action joins the
// condition list and, if the clock is purely event-driven, a sampling
// interval is derived so conditions are polled promptly.
func (c *Clock) ScheduleOn(a Action, preds ...Predicate) VTime {
	ca := NewCondAction(a, preds...)
	if c.inStep.Load() && ca.ready() {
		a()
		return c.readNow()
	}

	c.mu.Lock()
	c.conds = append(c.conds, ca)
	if c.dt == 0 {
		c.dt = c.deriveSamplingFromHorizonLocked()
		c.tn = c.readNow() + c.dt
	}
	c.mu.Unlock()

	return c.readNow()
}

// RegisterPeriodic registers a to run once per sampling tick, before
// conditional actions are evaluated. When dt is positive and no sampling
// interval is active yet, dt becomes the clock's sampling interval; when dt
// is 0 an interval is derived from historical event density.
func (c *Clock) RegisterPeriodic(a Action, dt VTime) VTime {
	sa := NewSampleAction(a)

	c.mu.Lock()
	c.samples = append(c.samples, sa)
	if c.dt == 0 {
		if dt > 0 {
			c.dt = dt
		} else {
			c.dt = c.deriveSamplingFromDensityLocked()
		}
		c.tn = c.readNow() + c.dt
	}
	c.mu.Unlock()

	return c.readNow()
}

func (c *Clock) deriveSamplingFromHorizonLocked() VTime {
	remaining := c.endTime - c.readNow()
	if remaining <= 0 {
		return fallbackSampling
	}

	return remaining / condPollDivisor
}

func (c *Clock) deriveSamplingFromDensityLocked() VTime {
	if c.evCount == 0 {
		return fallbackSampling
	}

	return c.readNow() / VTime(c.evCount) / condPollDivisor
}

func (c *Clock) refreshNextEvent() {
	if t, ok := c.queue.NextTime(); ok {
		c.mu.Lock()
		c.tev = t
		c.mu.Unlock()
	}
}

// Reset returns the clock to a defined starting point. A hard reset clears
// the whole registry, zeroes time and the diagnostic counters, and moves the
// clock to Idle. A soft reset keeps the registry but moves time back to 0,
// shifting every scheduled firing time by the same delta.
func (c *Clock) Reset(hard bool) error {
	if err := c.transition(CmdReset); err != nil {
		return err
	}

	if hard {
		c.queue.Clear()
		c.mu.Lock()
		c.conds = nil
		c.samples = nil
		c.processes = make(map[string]*Process)
		c.dt = 0
		c.endTime = 0
		c.tev = 0
		c.tn = 0
		c.evCount = 0
		c.scCount = 0
		c.mu.Unlock()
		c.writeNow(0)

		return nil
	}

	c.resyncTo(0)

	return nil
}

// resyncTo shifts the clock's notion of now to t, dragging all scheduled
// firing times along. It is how a worker clock re-synchronizes to its
// master.
func (c *Clock) resyncTo(t VTime) {
	delta := t - c.readNow()

	c.queue.Shift(delta)

	c.mu.Lock()
	c.tev += delta
	c.tn += delta
	c.endTime += delta
	if c.tev < t {
		c.tev = t
	}
	if c.tn < t {
		c.tn = t
	}
	c.mu.Unlock()

	c.writeNow(t)
}

// Snapshot captures the clock's observable state for diagnosis.
func (c *Clock) Snapshot() ClockSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ClockSnapshot{
		ID:      c.id,
		Time:    c.readNow(),
		State:   c.state,
		Dt:      c.dt,
		TEv:     c.tev,
		TN:      c.tn,
		Events:  c.evCount,
		Ticks:   c.scCount,
		Pending: c.queue.Len(),
		Conds:   len(c.conds),
		Samples: len(c.samples),
	}
}

// A ClockSnapshot is a point-in-time copy of a clock's observable state.
type ClockSnapshot struct {
	ID      int
	Time    VTime
	State   ClockState
	Dt      VTime
	TEv     VTime
	TN      VTime
	Events  uint64
	Ticks   uint64
	Pending int
	Conds   int
	Samples int
}
