package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInterrupted is the stop signal delivered to a process. A process
// observes it at its next suspension point and unwinds its loop.
var ErrInterrupted = errors.New("process interrupted")

// ErrProcessDone is returned by a process body to terminate its loop
// normally.
var ErrProcessDone = errors.New("process done")

// ProcessState is the simplified lifecycle of a registered process.
type ProcessState int

// The states a process can be in.
const (
	ProcRunning ProcessState = iota
	ProcHalted
	ProcFailed
)

func (s ProcessState) String() string {
	switch s {
	case ProcRunning:
		return "Running"
	case ProcHalted:
		return "Halted"
	case ProcFailed:
		return "Failed"
	}

	return fmt.Sprintf("ProcessState(%d)", int(s))
}

// A Process is a cooperative, suspendable unit of user computation
// synchronized with a clock. Its body runs in a loop on a dedicated
// goroutine and must voluntarily suspend through Delay, Wait, or Now; a body
// that never suspends starves everything else on its clock.
type Process struct {
	id    string
	clock *Clock
	body  func(*Process) error

	intr chan error

	mu    sync.Mutex
	state ProcessState
	err   error
}

// RegisterProcess registers body under id and starts its loop. A colliding
// id is bumped deterministically (id#2, id#3, ...). The body is re-invoked
// until it returns ErrProcessDone, is interrupted, or faults; a fault is
// isolated to the process and recorded for inspection.
func (c *Clock) RegisterProcess(id string, body func(*Process) error) *Process {
	p := &Process{
		clock: c,
		body:  body,
		intr:  make(chan error, 1),
	}

	c.mu.Lock()
	p.id = id
	for n := 2; ; n++ {
		if _, taken := c.processes[p.id]; !taken {
			break
		}
		p.id = fmt.Sprintf("%s#%d", id, n)
	}
	c.processes[p.id] = p
	c.mu.Unlock()

	go p.loop()

	return p
}

// ID returns the possibly-deduplicated identifier of the process.
func (p *Process) ID() string {
	return p.id
}

// State returns the current state of the process.
func (p *Process) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Err returns the fault that failed the process, if any.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

// Clock returns the clock the process is synchronized with.
func (p *Process) Clock() *Clock {
	return p.clock
}

func (p *Process) loop() {
	for {
		err := p.cycle()

		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrProcessDone), errors.Is(err, ErrInterrupted):
			p.setState(ProcHalted, nil)
			return
		default:
			p.setState(ProcFailed, err)
			return
		}
	}
}

// cycle runs the body once, converting a panic into an isolated fault.
func (p *Process) cycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("process %s: %v", p.id, r)
		}
	}()

	return p.body(p)
}

func (p *Process) setState(s ProcessState, err error) {
	p.mu.Lock()
	p.state = s
	p.err = err
	p.mu.Unlock()
}

// Delay suspends the process for d units of virtual time. A wake-up action
// is scheduled d after now; the process blocks until it fires. Returns the
// interrupt signal if one arrives first.
func (p *Process) Delay(d VTime) error {
	return p.suspend(func(wake Action) {
		p.clock.ScheduleAfter(wake, d)
	})
}

// DelayTime is Delay for a dimensioned time value.
func (p *Process) DelayTime(d Time) error {
	v, err := p.clock.magnitude(d)
	if err != nil {
		return err
	}

	return p.Delay(v)
}

// Wait suspends the process until all preds hold. If the conjunction already
// holds, Wait returns immediately without suspending.
func (p *Process) Wait(preds ...Predicate) error {
	all := true
	for _, pred := range preds {
		if !pred() {
			all = false
			break
		}
	}
	if all {
		return nil
	}

	return p.suspend(func(wake Action) {
		p.clock.ScheduleOn(wake, preds...)
	})
}

// Now submits a to run synchronously inside the clock's own timeline and
// blocks until it has executed, so side effects such as I/O stay ordered
// with simulated time instead of racing ahead of it.
func (p *Process) Now(a Action) error {
	return p.suspend(func(wake Action) {
		p.clock.ScheduleAt(func() {
			a()
			wake()
		}, p.clock.CurrentTime())
	})
}

// Interrupt delivers a stop signal to the process. A nil sig delivers
// ErrInterrupted. The signal is observed at the process's next suspension
// point; in-flight synchronous work is never preempted.
func (p *Process) Interrupt(sig error) {
	if sig == nil {
		sig = ErrInterrupted
	}

	select {
	case p.intr <- sig:
	default:
	}
}

// suspend parks the process on a single-slot rendezvous channel that lives
// for exactly one suspension. An interrupt aborts the suspension but the
// wake-up action stays scheduled; it deposits into the dead channel when it
// fires, so it can never resume a later suspension.
func (p *Process) suspend(schedule func(wake Action)) error {
	ch := make(chan struct{}, 1)
	schedule(func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	})

	select {
	case <-ch:
		return nil
	case err := <-p.intr:
		return err
	}
}

// Interrupt delivers a stop signal to the process registered under id.
func (c *Clock) Interrupt(id string, sig error) error {
	c.mu.Lock()
	p, ok := c.processes[id]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("no process registered under id %q", id)
	}

	p.Interrupt(sig)

	return nil
}

// Processes lists the registered processes in id order, so callers can
// enumerate the table and inspect failures.
func (c *Clock) Processes() []*Process {
	c.mu.Lock()
	ps := make([]*Process, 0, len(c.processes))
	for _, p := range c.processes {
		ps = append(ps, p)
	}
	c.mu.Unlock()

	sort.Slice(ps, func(i, j int) bool { return ps[i].id < ps[j].id })

	return ps
}
