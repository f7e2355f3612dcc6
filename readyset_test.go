package snitray

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gleak"
)

var _ = Describe("readySet", func() {
	var goroutines gleak.GoroutineSnapshot

	BeforeEach(func() {
		goroutines = gleak.Goroutines()
	})

	AfterEach(func() {
		Eventually(gleak.Goroutines).ShouldNot(gleak.HaveLeaked(goroutines))
	})

	It("wakes a blocked waiter exactly once per ring", func() {
		rs := newReadySet()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		rs.wake(wakeSource{kind: wakeNewItem})

		Expect(rs.wait(ctx)).To(Succeed())

		drained := rs.drain()
		Expect(drained).To(HaveLen(1))
		Expect(drained[0].kind).To(Equal(wakeNewItem))
	})

	It("tolerates duplicate wakes without blocking the doorbell", func() {
		rs := newReadySet()
		rs.wake(wakeSource{kind: wakeFuture, index: 1})
		rs.wake(wakeSource{kind: wakeFuture, index: 2})
		rs.wake(wakeSource{kind: wakeFuture, index: 3})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(rs.wait(ctx)).To(Succeed())

		drained := rs.drain()
		Expect(drained).To(HaveLen(3))
	})

	It("returns nil from drain when nothing is queued", func() {
		rs := newReadySet()
		Expect(rs.drain()).To(BeNil())
	})

	It("returns the caller's context error when cancelled before any wake", func() {
		rs := newReadySet()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := rs.wait(ctx)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("unblocks concurrent waiters from a goroutine wake", func() {
		rs := newReadySet()
		done := make(chan error, 1)

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			done <- rs.wait(ctx)
		}()

		time.Sleep(10 * time.Millisecond)
		rs.wake(wakeSource{kind: wakeDisconnect, dest: Destination(":1.1")})

		Eventually(done).Should(Receive(BeNil()))
	})
})
