package simulation

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/xid"

	"github.com/tempuslab/tempus/datarecording"
	"github.com/tempuslab/tempus/monitoring"
	"github.com/tempuslab/tempus/sim"
)

// Builder can be used to build a simulation.
type Builder struct {
	numWorkers     int
	monitorOn      bool
	monitorPort    int
	tracingOn      bool
	outputFileName string
}

// MakeBuilder creates a new builder. A .env file or the environment can
// preset monitoring and tracing: TEMPUS_MONITOR=off disables the monitor, a
// numeric TEMPUS_MONITOR picks its port, and TEMPUS_TRACE=on enables firing
// traces.
func MakeBuilder() Builder {
	// Absence of a .env file is fine.
	_ = godotenv.Load()

	b := Builder{
		monitorOn: true,
	}

	switch v := os.Getenv("TEMPUS_MONITOR"); v {
	case "", "on":
	case "off":
		b.monitorOn = false
	default:
		if port, err := strconv.Atoi(v); err == nil {
			b.monitorPort = port
		}
	}

	if os.Getenv("TEMPUS_TRACE") == "on" {
		b.tracingOn = true
	}

	return b
}

// WithWorkers forks n worker clocks for lockstep parallel runs.
func (b Builder) WithWorkers(n int) Builder {
	b.numWorkers = n
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithTracing records every firing and tick into the data recorder.
func (b Builder) WithTracing() Builder {
	b.tracingOn = true
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		dequeNameIndex: make(map[string]int),
	}

	s.id = xid.New().String()

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "tempus_sim_" + s.id
	}
	s.dataRecorder = datarecording.New(outputPath)

	s.clock = sim.NewClock()
	if err := s.clock.Init(); err != nil {
		panic(err)
	}

	if b.numWorkers > 0 {
		s.workers = s.clock.ForkN(b.numWorkers)
	}

	if b.tracingOn {
		s.tracer = datarecording.NewActionTracer(s.dataRecorder, "traces")
		s.clock.AcceptHook(s.tracer)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.RegisterClock(s.clock)

		if err := s.monitor.StartServer(); err != nil {
			panic(err)
		}
	}

	return s
}
