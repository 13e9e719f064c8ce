package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tempuslab/tempus/sim"
	"github.com/tempuslab/tempus/sim/queueing"
	"github.com/tempuslab/tempus/simulation"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a small demonstration simulation.",
	Long: "`demo` runs a producer/consumer scenario with timed, periodic, " +
		"and conditional actions and prints the run summary.",
	Run: runDemo,
}

func init() {
	demoCmd.Flags().Float64("duration", 10, "virtual time to simulate")
	demoCmd.Flags().Float64("dt", 0.1, "sampling interval")
	demoCmd.Flags().Int("workers", 0, "number of worker clocks")
	demoCmd.Flags().Bool("trace", false, "record firing traces")
	demoCmd.Flags().Bool("no-monitor", false, "disable the monitoring server")

	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, _ []string) {
	duration, _ := cmd.Flags().GetFloat64("duration")
	dt, _ := cmd.Flags().GetFloat64("dt")
	workers, _ := cmd.Flags().GetInt("workers")
	trace, _ := cmd.Flags().GetBool("trace")
	noMonitor, _ := cmd.Flags().GetBool("no-monitor")

	builder := simulation.MakeBuilder().WithWorkers(workers)
	if trace {
		builder = builder.WithTracing()
	}
	if noMonitor {
		builder = builder.WithoutMonitoring()
	}

	s := builder.Build()
	defer s.Terminate()

	c := s.Clock()

	jobs := queueing.DequeBuilder{}.
		WithCapacity(16).
		Build("Jobs")
	s.RegisterDeque(jobs)

	produced, consumed := 0, 0

	c.RegisterProcess("producer", func(p *sim.Process) error {
		for i := 0; ; i++ {
			if err := p.Delay(1.0); err != nil {
				return err
			}

			job := i
			if err := p.Now(func() {
				if jobs.CanPush() {
					jobs.Push(job)
					produced++
				}
			}); err != nil {
				return err
			}
		}
	})

	c.RegisterPeriodic(func() {
		for jobs.Size() > 0 {
			jobs.Pop()
			consumed++
		}
	}, sim.VTime(dt))

	c.ScheduleOn(func() {
		fmt.Println("first job produced")
	}, func() bool { return produced > 0 })

	c.ScheduleAt(func() {
		fmt.Printf("halfway at t=%.2f\n", float64(c.CurrentTime()))
	}, sim.VTime(duration/2))

	summary, err := runClock(c, sim.VTime(duration), workers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("produced %d jobs, consumed %d\n", produced, consumed)
	fmt.Printf("events=%d ticks=%d finalTime=%.2f\n",
		summary.Events, summary.Ticks, float64(summary.FinalTime))
}

func runClock(
	c *sim.Clock,
	duration sim.VTime,
	workers int,
) (sim.RunSummary, error) {
	if workers > 0 {
		return c.RunSynced(duration, duration/10)
	}

	return c.Run(duration)
}
