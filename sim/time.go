package sim

import "fmt"

// VTime defines a point in simulated time, in the unit of the owning clock.
type VTime float64

// Unit identifies a time unit that a dimensioned time value can carry.
type Unit int

// Units that a caller can attach to a time value.
const (
	UnitNone Unit = iota
	UnitNanosecond
	UnitMicrosecond
	UnitMillisecond
	UnitSecond
	UnitMinute
	UnitHour
)

func (u Unit) String() string {
	switch u {
	case UnitNone:
		return "none"
	case UnitNanosecond:
		return "ns"
	case UnitMicrosecond:
		return "us"
	case UnitMillisecond:
		return "ms"
	case UnitSecond:
		return "s"
	case UnitMinute:
		return "min"
	case UnitHour:
		return "h"
	}

	return fmt.Sprintf("Unit(%d)", int(u))
}

// A Time is a dimensioned time value as supplied by a caller. Bare VTime
// values bypass conversion entirely; a Time goes through the clock's
// UnitConverter before it is used.
type Time struct {
	Value float64
	Unit  Unit
}

// A UnitConverter converts a dimensioned time value into the magnitude of a
// target unit. It is an external collaborator of the clock; the clock calls
// it whenever a caller passes a non-bare number.
type UnitConverter interface {
	Magnitude(t Time, target Unit) (float64, error)
}

// TimeTeller can be used to get the current virtual time.
type TimeTeller interface {
	CurrentTime() VTime
}

// Scheduler can be used to register future work on a clock.
type Scheduler interface {
	ScheduleAt(a Action, t VTime) VTime
	ScheduleAfter(a Action, d VTime) VTime
	ScheduleEvery(a Action, d VTime) VTime
	ScheduleOn(a Action, preds ...Predicate) VTime
	RegisterPeriodic(a Action, dt VTime) VTime
}
