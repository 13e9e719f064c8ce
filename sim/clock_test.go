package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Clock", func() {
	var c *Clock

	BeforeEach(func() {
		c = NewClock()
	})

	Context("state machine", func() {
		It("should start Undefined and become Idle on Init", func() {
			Expect(c.State()).To(Equal(StateUndefined))
			Expect(c.Init()).To(Succeed())
			Expect(c.State()).To(Equal(StateIdle))
		})

		It("should report unhandled transitions without changing state", func() {
			Expect(c.Init()).To(Succeed())

			err := c.Stop()
			Expect(err).To(BeAssignableToTypeOf(&TransitionError{}))
			Expect(c.State()).To(Equal(StateIdle))

			_, err = c.Resume()
			Expect(err).To(BeAssignableToTypeOf(&TransitionError{}))
			Expect(c.State()).To(Equal(StateIdle))
		})

		It("should report stepping an empty schedule as a diagnostic", func() {
			err := c.StepOnce()
			Expect(err).To(MatchError(ErrEmptySchedule))
			Expect(c.State()).To(Equal(StateIdle))
		})

		It("should surface unhandled transitions through the Diag hook", func() {
			rec := &diagRecorder{}
			c.AcceptHook(rec)

			Expect(c.Init()).To(Succeed())
			Expect(c.Stop()).ToNot(Succeed())

			Expect(rec.errs).To(HaveLen(1))
			Expect(rec.errs[0]).To(BeAssignableToTypeOf(&TransitionError{}))
		})
	})

	Context("scheduling", func() {
		It("should clamp times in the past to now", func() {
			c.ScheduleAt(func() {}, 5.0)
			summary, err := c.Run(5)
			Expect(err).ToNot(HaveOccurred())
			Expect(summary.FinalTime).To(Equal(VTime(5.0)))

			t := c.ScheduleAt(func() {}, 1.0)
			Expect(t).To(Equal(VTime(5.0)))
		})

		It("should convert dimensioned times through the unit converter", func() {
			mockCtrl := gomock.NewController(GinkgoT())
			defer mockCtrl.Finish()

			converter := NewMockUnitConverter(mockCtrl)
			converter.EXPECT().
				Magnitude(Time{Value: 1500, Unit: UnitMillisecond}, UnitSecond).
				Return(1.5, nil)

			c.WithUnit(UnitSecond, converter)

			t, err := c.ScheduleAtTime(func() {},
				Time{Value: 1500, Unit: UnitMillisecond})
			Expect(err).ToNot(HaveOccurred())
			Expect(t).To(Equal(VTime(1.5)))
		})

		It("should not consult the converter for bare magnitudes", func() {
			t, err := c.ScheduleAtTime(func() {}, Time{Value: 2.5})
			Expect(err).ToNot(HaveOccurred())
			Expect(t).To(Equal(VTime(2.5)))
		})
	})

	Context("running", func() {
		It("should fire timed and repeating actions over the horizon", func() {
			fired := make([]int, 10)
			for i := 0; i < 10; i++ {
				i := i
				c.ScheduleAfter(func() { fired[i]++ }, VTime(i+1))
			}

			everyCount := 0
			c.ScheduleEvery(func() { everyCount++ }, 1.0)

			summary, err := c.Run(10)
			Expect(err).ToNot(HaveOccurred())

			for i := 0; i < 10; i++ {
				Expect(fired[i]).To(Equal(1))
			}
			Expect(everyCount).To(Equal(11))
			Expect(summary.Events).To(Equal(uint64(21)))
			Expect(summary.FinalTime).To(Equal(VTime(10.0)))
			Expect(c.State()).To(Equal(StateIdle))
			Expect(c.CurrentTime()).To(Equal(VTime(10.0)))
		})

		It("should fire same-instant schedules in insertion order", func() {
			var order []int
			for i := 0; i < 4; i++ {
				i := i
				c.ScheduleAt(func() { order = append(order, i) }, 1.0)
			}

			_, err := c.Run(2)
			Expect(err).ToNot(HaveOccurred())
			Expect(order).To(Equal([]int{0, 1, 2, 3}))
		})

		It("should not fire an action twice when run again", func() {
			count := 0
			c.ScheduleAt(func() { count++ }, 1.0)

			_, err := c.Run(10)
			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(1))

			summary, err := c.Run(10)
			Expect(err).ToNot(HaveOccurred())
			Expect(count).To(Equal(1))
			Expect(summary.Events).To(Equal(uint64(0)))
			Expect(summary.FinalTime).To(Equal(VTime(20.0)))
		})

		It("should take one tick per sampling interval", func() {
			ticks := 0
			c.RegisterPeriodic(func() { ticks++ }, 0.1)

			summary, err := c.Run(1)
			Expect(err).ToNot(HaveOccurred())
			Expect(ticks).To(Equal(10))
			Expect(summary.Ticks).To(Equal(uint64(10)))
			Expect(summary.FinalTime).To(Equal(VTime(1.0)))
		})

		It("should keep advancing time when stepped after a completed run", func() {
			ticks := 0
			c.RegisterPeriodic(func() { ticks++ }, 0.5)

			_, err := c.Run(1)
			Expect(err).ToNot(HaveOccurred())
			Expect(c.CurrentTime()).To(Equal(VTime(1.0)))

			for i := 0; i < 3; i++ {
				Expect(c.StepOnce()).To(Succeed())
			}

			Expect(c.CurrentTime()).To(Equal(VTime(2.5)))
			Expect(ticks).To(Equal(5))
		})
	})

	Context("conditional actions", func() {
		It("should fire exactly once and be removed", func() {
			flag := false
			fired := 0

			c.ScheduleOn(func() { fired++ }, func() bool { return flag })
			c.ScheduleAt(func() { flag = true }, 0.5)

			_, err := c.Run(1)
			Expect(err).ToNot(HaveOccurred())
			Expect(fired).To(Equal(1))
			Expect(c.Snapshot().Conds).To(Equal(0))
		})

		It("should run an already-true predicate synchronously mid-step", func() {
			ran := false

			c.ScheduleAt(func() {
				c.ScheduleOn(func() { ran = true }, func() bool { return true })
				Expect(ran).To(BeTrue())
			}, 1.0)

			_, err := c.Run(2)
			Expect(err).ToNot(HaveOccurred())
			Expect(c.Snapshot().Conds).To(Equal(0))
		})
	})

	Context("stop and resume", func() {
		It("should halt mid-run and complete on resume with identical counts", func() {
			runClock := func(withStop bool) (uint64, VTime) {
				clk := NewClock()
				for i := 0; i < 10; i++ {
					clk.ScheduleAfter(func() {}, VTime(i+1))
				}
				clk.ScheduleAt(func() {
					if withStop {
						Expect(clk.Stop()).To(Succeed())
					}
				}, 5.5)

				summary, err := clk.Run(10)
				Expect(err).ToNot(HaveOccurred())

				if withStop {
					Expect(summary.Stopped).To(BeTrue())
					Expect(clk.State()).To(Equal(StateHalted))

					resumed, err := clk.Resume()
					Expect(err).ToNot(HaveOccurred())
					Expect(resumed.Stopped).To(BeFalse())

					summary.Events += resumed.Events
					summary.FinalTime = resumed.FinalTime
				}

				Expect(clk.State()).To(Equal(StateIdle))

				return summary.Events, summary.FinalTime
			}

			plainEvents, plainFinal := runClock(false)
			stoppedEvents, stoppedFinal := runClock(true)

			Expect(stoppedEvents).To(Equal(plainEvents))
			Expect(stoppedFinal).To(Equal(plainFinal))
		})

		It("should stay halted when stopped by an action drained at the horizon", func() {
			clk := NewClock()

			// Both inner schedules target the horizon. The second collides
			// and is perturbed a hair past it, so it only fires during the
			// end-time drain after the stepping loop has exited.
			clk.ScheduleAt(func() {
				clk.ScheduleAt(func() {}, 2.0)
				clk.ScheduleAt(func() { Expect(clk.Stop()).To(Succeed()) }, 2.0)
			}, 2.0)

			summary, err := clk.Run(2)
			Expect(err).ToNot(HaveOccurred())
			Expect(summary.Stopped).To(BeTrue())
			Expect(clk.State()).To(Equal(StateHalted))

			resumed, err := clk.Resume()
			Expect(err).ToNot(HaveOccurred())
			Expect(resumed.Stopped).To(BeFalse())
			Expect(clk.State()).To(Equal(StateIdle))
		})
	})

	Context("reset", func() {
		It("should reproduce the firing sequence of a fresh clock after a hard reset", func() {
			schedule := func(clk *Clock, order *[]string) {
				clk.ScheduleAt(func() { *order = append(*order, "c") }, 3.0)
				clk.ScheduleAt(func() { *order = append(*order, "a") }, 1.0)
				clk.ScheduleAt(func() { *order = append(*order, "b") }, 2.0)
			}

			var fresh []string
			freshClock := NewClock()
			schedule(freshClock, &fresh)
			_, err := freshClock.Run(5)
			Expect(err).ToNot(HaveOccurred())

			var replay []string
			c.ScheduleAt(func() {}, 0.5)
			_, err = c.Run(2)
			Expect(err).ToNot(HaveOccurred())

			Expect(c.Reset(true)).To(Succeed())
			Expect(c.CurrentTime()).To(Equal(VTime(0.0)))
			Expect(c.EventCount()).To(Equal(uint64(0)))

			schedule(c, &replay)
			_, err = c.Run(5)
			Expect(err).ToNot(HaveOccurred())

			Expect(replay).To(Equal(fresh))
		})

		It("should shift scheduled times on a soft reset", func() {
			c.ScheduleAt(func() {}, 5.0)
			_, err := c.Run(3)
			Expect(err).ToNot(HaveOccurred())
			Expect(c.CurrentTime()).To(Equal(VTime(3.0)))

			Expect(c.Reset(false)).To(Succeed())
			Expect(c.CurrentTime()).To(Equal(VTime(0.0)))

			t, ok := c.queue.NextTime()
			Expect(ok).To(BeTrue())
			Expect(t).To(Equal(VTime(2.0)))
		})
	})
})

type diagRecorder struct {
	errs []error
}

func (r *diagRecorder) Func(ctx HookCtx) {
	if ctx.Pos != HookPosDiag {
		return
	}

	if err, ok := ctx.Item.(error); ok {
		r.errs = append(r.errs, err)
	}
}
