package sim

import (
	"log"
	"reflect"
)

// A LogHook is a hook that records information from the simulation into a
// logger.
type LogHook interface {
	Hook
}

// LogHookBase provides the common logic for all LogHooks.
type LogHookBase struct {
	*log.Logger
}

// ActionLogger is a hook that prints every firing and tick of the clock it
// is attached to.
type ActionLogger struct {
	LogHookBase
}

// NewActionLogger returns a new ActionLogger that writes into the given
// logger.
func NewActionLogger(logger *log.Logger) *ActionLogger {
	h := new(ActionLogger)
	h.Logger = logger

	return h
}

// Func writes the firing information into the logger.
func (h *ActionLogger) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosBeforeFiring:
		h.Printf("%.10f, fire %s", ctx.Now, reflect.TypeOf(ctx.Item))
	case HookPosTick:
		h.Printf("%.10f, tick", ctx.Now)
	case HookPosDiag:
		h.Printf("%.10f, diag: %v", ctx.Now, ctx.Item)
	}
}
