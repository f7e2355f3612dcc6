package snitray

import (
	"context"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trayhost/snitray/internal/busproto"
	"github.com/trayhost/snitray/internal/testbus"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = Describe("loop", func() {
	const dest = ":1.50"

	var (
		conn       *testbus.Conn
		watcherObj dbus.BusObject
		l          *loop
		ctx        context.Context
		cancel     context.CancelFunc
	)

	BeforeEach(func() {
		conn = testbus.New()
		watcherObj = conn.Object(busproto.WatcherInterface, busproto.WatcherPath)
		l = newLoop(conn, watcherObj, discardLogger(), 100*time.Millisecond, false)
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	registerItem := func(props map[string]dbus.Variant) {
		conn.Handle(dest, DefaultItemPath, busproto.PropertiesInterface+".GetAll", func(args []interface{}) ([]interface{}, error) {
			return []interface{}{props}, nil
		})
		l.newItemCh <- dest
		l.rs.wake(wakeSource{kind: wakeNewItem})
	}

	It("emits an Add event for a newly registered item with no menu", func() {
		registerItem(map[string]dbus.Variant{
			"Id":     dbus.MakeVariant("app"),
			"Title":  dbus.MakeVariant("App"),
			"Status": dbus.MakeVariant("Passive"),
		})

		events, err := l.next(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Kind).To(Equal(EventAdd))
		Expect(events[0].Destination).To(Equal(Destination(dest)))
		Expect(events[0].Snapshot.ID).To(Equal("app"))

		Expect(l.items.contains(Destination(dest))).To(BeTrue())
	})

	It("refetches and reports a single property on a property-change wake", func() {
		registerItem(map[string]dbus.Variant{
			"Id":       dbus.MakeVariant("app"),
			"IconName": dbus.MakeVariant("old-icon"),
		})
		_, err := l.next(ctx)
		Expect(err).NotTo(HaveOccurred())

		conn.Handle(dest, DefaultItemPath, busproto.PropertiesInterface+".Get", func(args []interface{}) ([]interface{}, error) {
			return []interface{}{dbus.MakeVariant("new-icon")}, nil
		})

		item, ok := l.items.get(Destination(dest))
		Expect(ok).To(BeTrue())
		item.propertyCh <- propertySignal{member: "NewIcon"}
		l.rs.wake(wakeSource{kind: wakePropertyChange, dest: Destination(dest)})

		events, err := l.next(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Kind).To(Equal(EventUpdate))
		Expect(events[0].Update.Tag).To(Equal(UpdateIcon))
		Expect(*events[0].Update.Text).To(Equal("new-icon"))
	})

	It("folds a NewIconThemePath signal into an Icon update's theme-path field", func() {
		registerItem(map[string]dbus.Variant{
			"Id":            dbus.MakeVariant("app"),
			"IconThemePath": dbus.MakeVariant("/usr/share/icons"),
		})
		_, err := l.next(ctx)
		Expect(err).NotTo(HaveOccurred())

		conn.Handle(dest, DefaultItemPath, busproto.PropertiesInterface+".Get", func(args []interface{}) ([]interface{}, error) {
			Expect(args).To(HaveLen(2))
			Expect(args[1]).To(Equal("IconThemePath"))
			return []interface{}{dbus.MakeVariant("/custom/icons")}, nil
		})

		item, ok := l.items.get(Destination(dest))
		Expect(ok).To(BeTrue())
		item.propertyCh <- propertySignal{member: "NewIconThemePath"}
		l.rs.wake(wakeSource{kind: wakePropertyChange, dest: Destination(dest)})

		events, err := l.next(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Update.Tag).To(Equal(UpdateIcon))
		Expect(events[0].Update.Text).To(BeNil())
		Expect(*events[0].Update.IconThemePath).To(Equal("/custom/icons"))
	})

	It("logs and ignores an unrecognized signal without producing an event", func() {
		registerItem(map[string]dbus.Variant{"Id": dbus.MakeVariant("app")})
		_, err := l.next(ctx)
		Expect(err).NotTo(HaveOccurred())

		item, ok := l.items.get(Destination(dest))
		Expect(ok).To(BeTrue())
		item.propertyCh <- propertySignal{member: "SomeFutureSignal"}
		l.rs.wake(wakeSource{kind: wakePropertyChange, dest: Destination(dest)})

		shortCtx, shortCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer shortCancel()
		_, err = l.next(shortCtx)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("finalizes removal and emits Remove on a name-owner departure", func() {
		registerItem(map[string]dbus.Variant{"Id": dbus.MakeVariant("app")})
		_, err := l.next(ctx)
		Expect(err).NotTo(HaveOccurred())

		conn.Handle(busproto.WatcherInterface, busproto.WatcherPath, busproto.WatcherInterface+".UnregisterStatusNotifierItem", func(args []interface{}) ([]interface{}, error) {
			return nil, nil
		})

		item, ok := l.items.get(Destination(dest))
		Expect(ok).To(BeTrue())
		item.ownerCh <- ownerChange{newOwner: ""}
		l.rs.wake(wakeSource{kind: wakeDisconnect, dest: Destination(dest)})

		events, err := l.next(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Kind).To(Equal(EventRemove))
		Expect(l.items.contains(Destination(dest))).To(BeFalse())
	})

	It("clears every tracked item when a watcher takeover is configured to do so", func() {
		l.clearAllOnTakeover = true
		registerItem(map[string]dbus.Variant{"Id": dbus.MakeVariant("app")})
		_, err := l.next(ctx)
		Expect(err).NotTo(HaveOccurred())

		l.rs.wake(wakeSource{kind: wakeTakeover})

		events, err := l.next(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(ConsistOf(Event{Kind: EventRemove, Destination: Destination(dest)}))
		Expect(l.items.destinations()).To(BeEmpty())
	})
})
