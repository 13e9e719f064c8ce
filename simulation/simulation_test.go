package simulation

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tempuslab/tempus/sim/queueing"
)

var _ = Describe("Simulation", func() {
	var simulation *Simulation

	BeforeEach(func() {
		simulation = MakeBuilder().WithoutMonitoring().Build()
	})

	AfterEach(func() {
		simulation.Terminate()

		os.Remove("tempus_sim_" + simulation.ID() + ".sqlite3")
	})

	It("should carry a named, initialized clock", func() {
		Expect(simulation.ID()).ToNot(BeEmpty())
		Expect(simulation.Clock()).ToNot(BeNil())
		Expect(simulation.GetDataRecorder()).ToNot(BeNil())
		Expect(simulation.GetMonitor()).To(BeNil())
	})

	It("should register a deque", func() {
		d := queueing.DequeBuilder{}.WithCapacity(4).Build("Queue")

		simulation.RegisterDeque(d)

		Expect(simulation.GetDequeByName("Queue")).To(Equal(d))
		Expect(simulation.GetDequeByName("Missing")).To(BeNil())
		Expect(simulation.Deques()).To(HaveLen(1))
	})

	It("should reject duplicate deque names", func() {
		d1 := queueing.DequeBuilder{}.WithCapacity(4).Build("Queue")
		d2 := queueing.DequeBuilder{}.WithCapacity(8).Build("Queue")

		simulation.RegisterDeque(d1)

		Expect(func() {
			simulation.RegisterDeque(d2)
		}).To(Panic())
	})

	It("should run a small scenario end to end", func() {
		c := simulation.Clock()

		count := 0
		c.ScheduleAt(func() { count++ }, 1.0)
		c.ScheduleEvery(func() { count++ }, 2.0)

		// The repeating action fires at 0, 2, and 4.
		summary, err := c.Run(4)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(4))
		Expect(summary.Events).To(Equal(uint64(4)))
	})

	Context("Builder", func() {
		var customSim *Simulation

		AfterEach(func() {
			if customSim != nil {
				customSim.Terminate()
				os.Remove("test_custom_output.sqlite3")
				customSim = nil
			}
		})

		It("should allow custom output file to be set", func() {
			customSim = MakeBuilder().
				WithoutMonitoring().
				WithOutputFileName("test_custom_output").
				Build()

			Expect(customSim).ToNot(BeNil())
			Expect(customSim.GetDataRecorder()).ToNot(BeNil())
		})

		It("should reject a monitor port without monitoring", func() {
			Expect(func() {
				MakeBuilder().
					WithoutMonitoring().
					WithMonitorPort(8080).
					Build()
			}).To(Panic())
		})

		It("should fork worker clocks when asked", func() {
			customSim = MakeBuilder().
				WithoutMonitoring().
				WithOutputFileName("test_custom_output").
				WithWorkers(2).
				Build()

			Expect(customSim.Workers()).To(HaveLen(2))
			Expect(customSim.Clock().Workers()).To(HaveLen(2))
		})
	})
})
