package sim

import (
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ActiveClock", func() {
	var (
		master  *Clock
		workers []*RemoteClockHandle
	)

	BeforeEach(func() {
		master = NewClock()
		Expect(master.Init()).To(Succeed())
		workers = master.ForkN(2)
	})

	AfterEach(func() {
		master.Collapse()
	})

	It("should fork workers with synchronized clocks and fresh ids", func() {
		Expect(workers).To(HaveLen(2))
		Expect(workers[0].ID()).To(Equal(2))
		Expect(workers[1].ID()).To(Equal(3))
		Expect(master.Workers()).To(HaveLen(2))

		snap, err := workers[0].Query()
		Expect(err).ToNot(HaveOccurred())
		Expect(snap.ID).To(Equal(2))
		Expect(snap.Time).To(Equal(master.CurrentTime()))
		Expect(snap.State).To(Equal(StateIdle))
	})

	It("should keep workers in lockstep over a synchronized run", func() {
		var fired int32
		w2 := workers[0]

		w2.ScheduleAt(func() { atomic.AddInt32(&fired, 1) }, 1.0)
		w2.RegisterPeriodic(func() {}, 0.05)

		summary, err := master.RunSynced(10, 0.5)
		Expect(err).ToNot(HaveOccurred())
		Expect(summary.FinalTime).To(Equal(VTime(10.0)))
		Expect(master.CurrentTime()).To(Equal(VTime(10.0)))

		snap, err := w2.Query()
		Expect(err).ToNot(HaveOccurred())
		Expect(snap.Time).To(Equal(VTime(10.0)))
		Expect(snap.Ticks).To(Equal(uint64(200)))
		Expect(atomic.LoadInt32(&fired)).To(Equal(int32(1)))
	})

	It("should let a worker register back to the master", func() {
		var fired int32
		w2 := workers[0]
		ac := master.activeWorkers[w2.ID()]

		w2.ScheduleAt(func() {
			ac.ScheduleOnMaster(func() { atomic.AddInt32(&fired, 1) }, 2.0)
		}, 1.0)

		_, err := master.RunSynced(5, 1.0)
		Expect(err).ToNot(HaveOccurred())
		Expect(atomic.LoadInt32(&fired)).To(Equal(int32(1)))
	})

	It("should route worker-to-worker requests through the master", func() {
		var fired int32
		w2 := workers[0]
		w3 := workers[1]
		ac := master.activeWorkers[w2.ID()]

		w2.ScheduleAt(func() {
			ac.ScheduleToPeer(w3.ID(), func() { atomic.AddInt32(&fired, 1) }, 3.0)
		}, 1.0)

		_, err := master.RunSynced(6, 1.0)
		Expect(err).ToNot(HaveOccurred())
		Expect(atomic.LoadInt32(&fired)).To(Equal(int32(1)))
	})

	It("should align sync-flagged registrations to a synchronization boundary", func() {
		w2 := workers[0]
		local := master.activeWorkers[w2.ID()].clock

		// One round teaches the worker its synchronization interval.
		_, err := master.RunSynced(0.5, 0.5)
		Expect(err).ToNot(HaveOccurred())

		w2.ScheduleAtSync(func() {}, 1.3)

		Eventually(func() int { return local.Snapshot().Pending }).
			Should(Equal(1))

		t, ok := local.queue.NextTime()
		Expect(ok).To(BeTrue())
		Expect(t).To(Equal(VTime(1.5)))
	})

	It("should clamp registrations aimed at the past to the worker's now", func() {
		var fired int32
		w2 := workers[0]
		local := master.activeWorkers[w2.ID()].clock

		_, err := master.RunSynced(2, 1.0)
		Expect(err).ToNot(HaveOccurred())

		// The worker sits at t=2; a repeating registration starting at t=1
		// must begin firing at the worker's now, not drag it backwards.
		w2.ScheduleEvery(func() { atomic.AddInt32(&fired, 1) }, 1.0, 0.5)

		Eventually(func() int { return local.Snapshot().Pending }).
			Should(Equal(1))

		t, ok := local.queue.NextTime()
		Expect(ok).To(BeTrue())
		Expect(t).To(BeNumerically(">=", 2.0))

		_, err = master.RunSynced(1, 1.0)
		Expect(err).ToNot(HaveOccurred())
		Expect(atomic.LoadInt32(&fired)).To(Equal(int32(3)))

		snap, err := w2.Query()
		Expect(err).ToNot(HaveOccurred())
		Expect(snap.Time).To(Equal(VTime(3.0)))
	})

	It("should capture worker faults without killing the worker loop", func() {
		w2 := workers[0]

		w2.ScheduleAt(func() { panic("worker blew up") }, 1.0)

		_, err := master.RunSynced(2, 1.0)
		Expect(err).ToNot(HaveOccurred())

		fault, err := w2.Diag()
		Expect(err).ToNot(HaveOccurred())
		Expect(fault).ToNot(BeNil())
		Expect(fault.Err).To(ContainSubstring("worker blew up"))
		Expect(fault.Stack).ToNot(BeEmpty())

		// The worker still answers queries and keeps running.
		snap, err := w2.Query()
		Expect(err).ToNot(HaveOccurred())
		Expect(snap.State).To(Equal(StateIdle))
	})

	It("should report no fault on a healthy worker", func() {
		fault, err := workers[1].Diag()
		Expect(err).ToNot(HaveOccurred())
		Expect(fault).To(BeNil())
	})

	It("should reset a worker registry on a hard reset", func() {
		w2 := workers[0]
		local := master.activeWorkers[w2.ID()].clock

		w2.ScheduleAt(func() {}, 4.0)

		Eventually(func() int { return local.Snapshot().Pending }).
			Should(Equal(1))

		w2.Reset(true)

		Eventually(func() int { return local.Snapshot().Pending }).
			Should(Equal(0))
	})

	It("should pick a random worker for placement-indifferent work", func() {
		h, err := master.AnyWorker()
		Expect(err).ToNot(HaveOccurred())
		Expect(h.ID()).To(BeElementOf(2, 3))
	})

	It("should collapse cleanly and leave the master usable", func() {
		master.Collapse()
		Expect(master.Workers()).To(BeEmpty())

		count := 0
		master.ScheduleAt(func() { count++ }, 1.0)

		_, err := master.Run(2)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(1))
	})
})
