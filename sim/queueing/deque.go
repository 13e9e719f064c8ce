// Package queueing provides bounded containers for entities that move
// through a simulated system.
package queueing

import (
	"log"
	"sync"

	"github.com/tempuslab/tempus/sim"
)

// HookPosDequePush marks when an element is pushed into the deque.
var HookPosDequePush = &sim.HookPos{Name: "Deque Push"}

// HookPosDequePop marks when an element is popped from the deque.
var HookPosDequePop = &sim.HookPos{Name: "Deque Pop"}

// A Deque is a bounded double-ended queue for anything. It is not
// goroutine-safe on its own; callers that share one across goroutines must
// bracket their access with Lock and Unlock.
type Deque interface {
	sim.Hookable

	Name() string
	CanPush() bool
	Push(e interface{})
	PushFront(e interface{})
	Pop() interface{}
	PopBack() interface{}
	Peek() interface{}
	Capacity() int
	Size() int
	Clear()

	Lock()
	Unlock()
}

// DequeBuilder is a builder for Deque.
type DequeBuilder struct {
	capacity int
}

// WithCapacity defines the capacity of the deque.
func (b DequeBuilder) WithCapacity(capacity int) DequeBuilder {
	b.capacity = capacity
	return b
}

// Build builds a new Deque.
func (b DequeBuilder) Build(name string) Deque {
	return &dequeImpl{
		name:     name,
		capacity: b.capacity,
	}
}

type dequeImpl struct {
	sim.HookableBase
	sync.Mutex

	name     string
	elements []interface{}
	capacity int
}

// Name returns the name of the deque.
func (d *dequeImpl) Name() string {
	return d.name
}

func (d *dequeImpl) CanPush() bool {
	return len(d.elements) < d.capacity
}

func (d *dequeImpl) Push(e interface{}) {
	if len(d.elements) >= d.capacity {
		log.Panic("deque overflow")
	}

	d.elements = append(d.elements, e)

	d.invoke(HookPosDequePush, e)
}

func (d *dequeImpl) PushFront(e interface{}) {
	if len(d.elements) >= d.capacity {
		log.Panic("deque overflow")
	}

	d.elements = append([]interface{}{e}, d.elements...)

	d.invoke(HookPosDequePush, e)
}

func (d *dequeImpl) Pop() interface{} {
	if len(d.elements) == 0 {
		return nil
	}

	e := d.elements[0]
	d.elements = d.elements[1:]

	d.invoke(HookPosDequePop, e)

	return e
}

func (d *dequeImpl) PopBack() interface{} {
	if len(d.elements) == 0 {
		return nil
	}

	e := d.elements[len(d.elements)-1]
	d.elements = d.elements[:len(d.elements)-1]

	d.invoke(HookPosDequePop, e)

	return e
}

func (d *dequeImpl) Peek() interface{} {
	if len(d.elements) == 0 {
		return nil
	}

	return d.elements[0]
}

func (d *dequeImpl) Capacity() int {
	return d.capacity
}

func (d *dequeImpl) Size() int {
	return len(d.elements)
}

func (d *dequeImpl) Clear() {
	d.elements = nil
}

func (d *dequeImpl) invoke(pos *sim.HookPos, e interface{}) {
	if d.NumHooks() == 0 {
		return
	}

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    pos,
		Item:   e,
	})
}
