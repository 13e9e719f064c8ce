package sim

// HookPos defines the enum of possible hooking positions
type HookPos struct {
	Name string
}

// HookPosBeforeFiring is a hook position that triggers right before a timed,
// conditional, or sample action executes.
var HookPosBeforeFiring = &HookPos{Name: "BeforeFiring"}

// HookPosAfterFiring is a hook position that triggers right after an action
// executed.
var HookPosAfterFiring = &HookPos{Name: "AfterFiring"}

// HookPosTick is a hook position that triggers at every sampling tick.
var HookPosTick = &HookPos{Name: "Tick"}

// HookPosDiag is a hook position that carries non-fatal diagnostics, such as
// unhandled state-machine transitions or stepping an empty schedule.
var HookPosDiag = &HookPos{Name: "Diag"}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Now    VTime
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accept Hooks
type Hookable interface {
	// AcceptHook registers a hook
	AcceptHook(hook Hook)
}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface.
type HookableBase struct {
	Hooks []Hook
}

// NewHookableBase creates a HookableBase object
func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.Hooks = make([]Hook, 0)
	return h
}

// AcceptHook register a hook
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.Hooks)
}

// InvokeHook triggers the register Hooks
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
