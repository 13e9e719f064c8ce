package sim

// A Message is one command or response carried over the per-worker channel
// pair of an active clock. All wire traffic stays in-process.
type Message interface {
	isMessage()
}

// RegKind selects what a RegisterMsg registers.
type RegKind int

// The kinds of registrations a RegisterMsg can carry.
const (
	RegTimed RegKind = iota
	RegCond
	RegSample
)

// A RegisterMsg registers an action on the receiving clock. For RegTimed,
// Time is the absolute firing time and a positive Interval makes the action
// repeat. For RegSample, Interval is the sampling interval. Sync forces the
// firing to wait for a full synchronization boundary, for causal
// dependencies that must not reorder across threads.
type RegisterMsg struct {
	Kind     RegKind
	Action   Action
	Preds    []Predicate
	Time     VTime
	Interval VTime
	Sync     bool
}

// A QueryMsg asks a worker for a full snapshot of its local clock.
type QueryMsg struct{}

// A RunMsg tells a worker to advance its local clock by exactly Duration.
// Sync marks the message as part of a lockstep round.
type RunMsg struct {
	Duration VTime
	Sync     bool
}

// A SyncMsg re-synchronizes a worker's local time to the master's.
type SyncMsg struct {
	Time VTime
}

// A ResetMsg clears a worker's registry (hard) or just re-synchronizes its
// time (soft).
type ResetMsg struct {
	Hard bool
	Time VTime
}

// A DiagMsg asks a worker for its last captured fault without killing it.
type DiagMsg struct{}

// A DoneMsg acknowledges a completed RunMsg, reporting the wall-clock time
// the slice took.
type DoneMsg struct {
	WallNS int64
}

// A ForwardMsg asks the master to route Msg to the worker To. Workers never
// talk peer-to-peer; this is the only path between two workers.
type ForwardMsg struct {
	To  int
	Msg Message
}

// An ErrorMsg reports a fault caught inside a worker's event loop.
type ErrorMsg struct {
	Fault Fault
}

// A StopMsg cleanly collapses a worker: its channels are drained and closed.
type StopMsg struct{}

// A ResponseMsg answers a QueryMsg (Snapshot) or a DiagMsg (Fault, which may
// be nil when the worker never faulted).
type ResponseMsg struct {
	Snapshot *ClockSnapshot
	Fault    *Fault
}

// A Fault records an error caught in a worker, with the stack captured at
// the point of failure.
type Fault struct {
	Err   string
	Stack string
	Time  VTime
}

func (RegisterMsg) isMessage() {}
func (QueryMsg) isMessage()    {}
func (RunMsg) isMessage()      {}
func (SyncMsg) isMessage()     {}
func (ResetMsg) isMessage()    {}
func (DiagMsg) isMessage()     {}
func (DoneMsg) isMessage()     {}
func (ForwardMsg) isMessage()  {}
func (ErrorMsg) isMessage()    {}
func (StopMsg) isMessage()     {}
func (ResponseMsg) isMessage() {}
