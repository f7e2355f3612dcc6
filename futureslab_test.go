package snitray

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("futureSlab", func() {
	It("keeps a reserved index stable until it is taken", func() {
		slab := newFutureSlab()
		idx := slab.reserve()

		_, ok := slab.take(idx)
		Expect(ok).To(BeFalse(), "unresolved slot must not be takeable")

		slab.resolve(idx, loopEvent{event: &Event{Kind: EventRemove, Destination: "d"}})

		ev, ok := slab.take(idx)
		Expect(ok).To(BeTrue())
		Expect(ev.event.Destination).To(Equal(Destination("d")))

		_, ok = slab.take(idx)
		Expect(ok).To(BeFalse(), "a taken slot cannot be taken twice")
	})

	It("reuses a freed index rather than growing unboundedly", func() {
		slab := newFutureSlab()
		first := slab.reserve()
		slab.resolve(first, loopEvent{})
		_, _ = slab.take(first)

		second := slab.reserve()
		Expect(second).To(Equal(first))
	})

	It("wakes the readySet with the reserved index once spawned work completes", func() {
		slab := newFutureSlab()
		rs := newReadySet()

		idx := slab.spawn(context.Background(), rs, func(ctx context.Context) loopEvent {
			return loopEvent{event: &Event{Kind: EventAdd, Destination: "x"}}
		})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(rs.wait(ctx)).To(Succeed())

		drained := rs.drain()
		Expect(drained).To(ConsistOf(wakeSource{kind: wakeFuture, index: idx}))

		ev, ok := slab.take(idx)
		Expect(ok).To(BeTrue())
		Expect(ev.event.Destination).To(Equal(Destination("x")))
	})

	It("reports accurate occupancy while work is pending", func() {
		slab := newFutureSlab()
		block := make(chan struct{})
		rs := newReadySet()

		idx := slab.spawn(context.Background(), rs, func(ctx context.Context) loopEvent {
			<-block
			return loopEvent{}
		})
		Expect(slab.len()).To(Equal(1))

		close(block)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(rs.wait(ctx)).To(Succeed())
		_, _ = slab.take(idx)
		Expect(slab.len()).To(Equal(0))
	})
})
