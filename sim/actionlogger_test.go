package sim

import (
	"bytes"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ActionLogger", func() {
	It("should log firings, ticks, and diagnostics", func() {
		buf := &bytes.Buffer{}
		logger := log.New(buf, "", 0)

		c := NewClock().WithLogger(logger)
		c.AcceptHook(NewActionLogger(logger))

		c.ScheduleAt(func() {}, 1.0)
		c.RegisterPeriodic(func() {}, 0.5)

		_, err := c.Run(1)
		Expect(err).ToNot(HaveOccurred())

		out := buf.String()
		Expect(out).To(ContainSubstring("fire"))
		Expect(out).To(ContainSubstring("tick"))

		empty := NewClock().WithLogger(logger)
		empty.AcceptHook(NewActionLogger(logger))

		err = empty.StepOnce()
		Expect(err).To(MatchError(ErrEmptySchedule))
		Expect(buf.String()).To(ContainSubstring("diag"))
	})
})
