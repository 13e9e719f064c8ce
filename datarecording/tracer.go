package datarecording

import (
	"fmt"

	"github.com/tempuslab/tempus/sim"
)

// A FiringTrace is one recorded occurrence on a clock: a fired action or a
// sampling tick.
type FiringTrace struct {
	Time   float64
	Kind   string
	Action string
}

// An ActionTracer records every firing and tick of the clock it is hooked to
// into one table of a DataRecorder.
type ActionTracer struct {
	recorder DataRecorder
	table    string
}

// NewActionTracer creates an ActionTracer writing to the named table.
func NewActionTracer(recorder DataRecorder, table string) *ActionTracer {
	recorder.CreateTable(table, FiringTrace{})

	return &ActionTracer{
		recorder: recorder,
		table:    table,
	}
}

// Func records after-firing and tick occurrences, ignoring everything else.
func (t *ActionTracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case sim.HookPosAfterFiring, sim.HookPosTick:
	default:
		return
	}

	trace := FiringTrace{
		Time: float64(ctx.Now),
		Kind: ctx.Pos.Name,
	}

	switch item := ctx.Item.(type) {
	case *sim.TimedAction:
		trace.Action = item.ID
	case *sim.CondAction:
		trace.Action = item.ID
	case nil:
	default:
		trace.Action = fmt.Sprintf("%T", item)
	}

	t.recorder.InsertData(t.table, trace)
}
