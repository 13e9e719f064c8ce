package sim

// An Action is an opaque unit of work registered on a clock. Actions carry no
// arguments; they close over whatever data they need.
type Action func()

// A Predicate is a boolean check evaluated during sampling ticks.
type Predicate func() bool

// A TimedAction fires at a specific virtual time. A positive interval makes
// the action reschedule itself interval after every firing.
type TimedAction struct {
	ID       string
	action   Action
	fireTime VTime
	interval VTime
}

// NewTimedAction creates a one-shot TimedAction that fires at time t.
func NewTimedAction(a Action, t VTime) *TimedAction {
	return &TimedAction{
		ID:       GetIDGenerator().Generate(),
		action:   a,
		fireTime: t,
	}
}

// NewRepeatingAction creates a TimedAction that fires at time t and then
// every interval after that.
func NewRepeatingAction(a Action, t, interval VTime) *TimedAction {
	ta := NewTimedAction(a, t)
	ta.interval = interval

	return ta
}

// Time returns the time at which the action fires.
func (ta *TimedAction) Time() VTime {
	return ta.fireTime
}

// Interval returns the repeat interval, 0 for one-shot actions.
func (ta *TimedAction) Interval() VTime {
	return ta.interval
}

// A CondAction fires exactly once, at the first sampling tick at which all of
// its predicates hold. It is removed from the clock the instant it fires and
// is never re-armed.
type CondAction struct {
	ID     string
	action Action
	preds  []Predicate
}

// NewCondAction creates a CondAction guarded by the conjunction of preds.
func NewCondAction(a Action, preds ...Predicate) *CondAction {
	return &CondAction{
		ID:     GetIDGenerator().Generate(),
		action: a,
		preds:  preds,
	}
}

func (ca *CondAction) ready() bool {
	for _, p := range ca.preds {
		if !p() {
			return false
		}
	}

	return true
}

// A SampleAction runs once per sampling tick, before conditional actions are
// evaluated, in registration order. It lives until the clock is reset.
type SampleAction struct {
	ID     string
	action Action
}

// NewSampleAction creates a SampleAction.
func NewSampleAction(a Action) *SampleAction {
	return &SampleAction{
		ID:     GetIDGenerator().Generate(),
		action: a,
	}
}
