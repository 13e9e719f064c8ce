// Package simulation wires a clock, a data recorder, and an optional monitor
// into one application-level harness.
package simulation

import (
	"github.com/tempuslab/tempus/datarecording"
	"github.com/tempuslab/tempus/monitoring"
	"github.com/tempuslab/tempus/sim"
	"github.com/tempuslab/tempus/sim/queueing"
)

// A Simulation provides the services required to define a simulation.
type Simulation struct {
	id string

	clock        *sim.Clock
	workers      []*sim.RemoteClockHandle
	dataRecorder datarecording.DataRecorder
	tracer       *datarecording.ActionTracer
	monitor      *monitoring.Monitor

	deques         []queueing.Deque
	dequeNameIndex map[string]int
}

// ID returns the unique name of this simulation run.
func (s *Simulation) ID() string {
	return s.id
}

// Clock returns the clock driving the simulation.
func (s *Simulation) Clock() *sim.Clock {
	return s.clock
}

// Workers returns the handles of the forked worker clocks, if any.
func (s *Simulation) Workers() []*sim.RemoteClockHandle {
	return s.workers
}

// GetDataRecorder returns the data recorder used in the simulation.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor used in the simulation, nil when monitoring
// is disabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// RegisterDeque registers a resource container with the simulation.
func (s *Simulation) RegisterDeque(d queueing.Deque) {
	name := d.Name()
	if _, ok := s.dequeNameIndex[name]; ok {
		panic("deque " + name + " already registered")
	}

	s.deques = append(s.deques, d)
	s.dequeNameIndex[name] = len(s.deques) - 1

	if s.monitor != nil {
		s.monitor.RegisterDeque(d)
	}
}

// GetDequeByName returns the deque with the given name, nil when unknown.
func (s *Simulation) GetDequeByName(name string) queueing.Deque {
	i, ok := s.dequeNameIndex[name]
	if !ok {
		return nil
	}

	return s.deques[i]
}

// Deques returns all registered deques.
func (s *Simulation) Deques() []queueing.Deque {
	return append([]queueing.Deque(nil), s.deques...)
}

// Terminate flushes recorded data and dissolves the worker group.
func (s *Simulation) Terminate() {
	s.dataRecorder.Flush()
	s.clock.Collapse()
}
