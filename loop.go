package snitray

import (
	"context"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/trayhost/snitray/internal/busproto"
)

// loop is the Go rendition of spec.md's LoopCore: the single goroutine that
// owns readySet, futureSlab and itemTracker, and turns drained wakeSources
// into Events. Its state is mutated only from the goroutine running
// Client.Next; bringup goroutines only read the tracker and register match
// rules, and the dispatcher only feeds channels and wakes the readySet.
type loop struct {
	conn       busproto.Conn
	log        *slog.Logger
	rs         *readySet
	slab       *futureSlab
	items      *itemTracker
	watcherObj dbus.BusObject

	activationTimeout  time.Duration
	clearAllOnTakeover bool

	newItemCh chan string // fed by the dispatcher on StatusNotifierItemRegistered

	buffered []Event
}

func newLoop(conn busproto.Conn, watcherObj dbus.BusObject, log *slog.Logger, activationTimeout time.Duration, clearAllOnTakeover bool) *loop {
	return &loop{
		conn:               conn,
		log:                log,
		rs:                 newReadySet(),
		slab:               newFutureSlab(),
		items:              newItemTracker(),
		watcherObj:         watcherObj,
		activationTimeout:  activationTimeout,
		clearAllOnTakeover: clearAllOnTakeover,
		newItemCh:          make(chan string, 32),
	}
}

// next blocks until at least one Event is ready and returns the full batch
// that became ready together, the Go analogue of spec.md's single poll()
// call draining everything the current wake round surfaced.
func (l *loop) next(ctx context.Context) ([]Event, error) {
	for {
		if len(l.buffered) > 0 {
			out := l.buffered
			l.buffered = nil
			return out, nil
		}
		if err := l.rs.wait(ctx); err != nil {
			return nil, err
		}
		l.drainReady(ctx)
	}
}

// drainReady processes every wakeSource queued since the last drain,
// spawning futures or appending directly-available Events to l.buffered.
func (l *loop) drainReady(ctx context.Context) {
	for _, src := range l.rs.drain() {
		l.wakeFrom(ctx, src)
	}
}

func (l *loop) wakeFrom(ctx context.Context, src wakeSource) {
	switch src.kind {
	case wakeNewItem:
		l.wakeFromNewItem(ctx)
	case wakeFuture:
		l.wakeFromFuture(src.index)
	case wakeDisconnect:
		l.wakeFromDisconnect(ctx, src.dest)
	case wakePropertyChange:
		l.wakeFromPropertyChange(ctx, src.dest)
	case wakeLayoutUpdate:
		l.wakeFromLayoutUpdate(ctx, src.dest)
	case wakeTakeover:
		l.wakeFromTakeover()
	}
}

// wakeFromTakeover handles another process claiming the watcher name out
// from under us. Per the configured policy, either every tracked item is
// dropped (emitting a Remove for each, since none of them re-registers with
// the new watcher automatically) or the takeover is logged and ignored,
// leaving already-tracked items exactly as they are.
func (l *loop) wakeFromTakeover() {
	if !l.clearAllOnTakeover {
		l.log.Warn("another process claimed the StatusNotifierWatcher name")
		return
	}
	for _, dest := range l.items.destinations() {
		l.items.remove(dest)
		l.buffered = append(l.buffered, Event{Kind: EventRemove, Destination: dest})
	}
}

func (l *loop) wakeFromNewItem(ctx context.Context) {
	for {
		var addr string
		select {
		case addr = <-l.newItemCh:
		default:
			return
		}
		l.spawnBringup(ctx, addr)
	}
}

func (l *loop) wakeFromFuture(index int) {
	le, ok := l.slab.take(index)
	if !ok {
		return
	}
	if le.apply != nil {
		le.apply()
	}
	if le.err != nil {
		l.log.Warn("tray future failed", "error", le.err)
	}
	if le.event != nil {
		l.buffered = append(l.buffered, *le.event)
	}
}

func (l *loop) wakeFromDisconnect(ctx context.Context, dest Destination) {
	item, ok := l.items.get(dest)
	if !ok {
		return
	}
	for _, rec := range item.drainOwnerChanges() {
		if rec.newOwner != "" {
			continue // ownership handed to a new unique name, not a departure
		}
		l.spawnRemoval(ctx, dest)
	}
}

func (l *loop) wakeFromPropertyChange(ctx context.Context, dest Destination) {
	item, ok := l.items.get(dest)
	if !ok {
		return
	}
	for _, rec := range item.drainPropertySignals() {
		if _, ok := normalizeSignalMember(rec.member); !ok {
			l.log.Warn("unrecognized property-change signal", "member", rec.member, "destination", dest)
			continue
		}
		l.spawnPropertyRefetch(ctx, item, rec.member)
	}
}

func (l *loop) wakeFromLayoutUpdate(ctx context.Context, dest Destination) {
	item, ok := l.items.get(dest)
	if !ok {
		return
	}
	for _, rec := range item.drainLayoutSignals() {
		if rec.diff != nil {
			l.buffered = append(l.buffered, Event{
				Kind:        EventUpdate,
				Destination: dest,
				Update:      UpdateKind{Tag: UpdateMenuDiff, MenuDiff: rec.diff},
			})
			continue
		}
		l.spawnLayoutRefetch(ctx, item)
	}
}

// spawnBringup fetches a newly registered item's full property set and arms
// the signal subscriptions that feed it, off the loop goroutine. Its apply
// closure registers the trackedItem once every subscription is live and, if
// the item declares a menu, spawns the initial layout fetch whose UpdateMenu
// follows the Add. Signals that arrive between arming and apply find no
// tracked destination and are dropped by the dispatcher.
func (l *loop) spawnBringup(ctx context.Context, addr string) {
	l.slab.spawn(ctx, l.rs, func(ctx context.Context) loopEvent {
		dest, path := ParseAddress(addr)
		if l.items.contains(dest) {
			return loopEvent{}
		}
		itemObj := l.conn.Object(string(dest), path)

		props, err := busproto.GetAllProperties(ctx, itemObj, busproto.ItemInterface)
		if err != nil {
			return loopEvent{err: errors.Wrapf(ErrBusTransport, "fetching properties of %s: %v", addr, err)}
		}
		snap, err := decodeItemSnapshot(props)
		if err != nil {
			return loopEvent{err: err}
		}

		var menuObj dbus.BusObject
		if snap.MenuPath != "" {
			menuObj = l.conn.Object(string(dest), snap.MenuPath)
		}

		item := newTrackedItem(dest, itemObj, menuObj, snap.MenuPath)

		if err := l.armItemSubscriptions(item); err != nil {
			return loopEvent{err: errors.Wrapf(ErrBusTransport, "subscribing to %s: %v", addr, err)}
		}

		return loopEvent{
			event: &Event{Kind: EventAdd, Destination: dest, Snapshot: snap},
			apply: func() {
				l.items.add(item)
				if item.hasMenu() {
					l.spawnLayoutRefetch(ctx, item)
				}
			},
		}
	})
}

// armItemSubscriptions registers the match rules that feed an item's
// ownerCh, propertyCh and (if it has a menu) layoutCh.
func (l *loop) armItemSubscriptions(item *trackedItem) error {
	if err := l.conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/DBus"),
		dbus.WithMatchInterface(busproto.DBusInterface),
		dbus.WithMatchSender(busproto.DBusInterface),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, string(item.dest)),
	); err != nil {
		return err
	}
	if err := l.conn.AddMatchSignal(
		dbus.WithMatchInterface(busproto.ItemInterface),
		dbus.WithMatchSender(string(item.dest)),
	); err != nil {
		return err
	}
	if item.hasMenu() {
		if err := l.conn.AddMatchSignal(
			dbus.WithMatchInterface(busproto.MenuInterface),
			dbus.WithMatchSender(string(item.dest)),
		); err != nil {
			return err
		}
	}
	return nil
}

func (l *loop) spawnRemoval(ctx context.Context, dest Destination) {
	l.slab.spawn(ctx, l.rs, func(ctx context.Context) loopEvent {
		service := string(dest)
		if err := busproto.UnregisterItem(ctx, l.watcherObj, service); err != nil {
			l.log.Warn("unregister with watcher failed", "destination", dest, "error", err)
		}
		return loopEvent{
			event: &Event{Kind: EventRemove, Destination: dest},
			apply: func() { l.items.remove(dest) },
		}
	})
}

func (l *loop) spawnPropertyRefetch(ctx context.Context, item *trackedItem, member string) {
	dest := item.dest
	obj := item.itemObj
	l.slab.spawn(ctx, l.rs, func(ctx context.Context) loopEvent {
		update, err := fetchPropertyUpdate(ctx, obj, member)
		if err != nil {
			return loopEvent{err: err}
		}
		return loopEvent{event: &Event{Kind: EventUpdate, Destination: dest, Update: update}}
	})
}

func (l *loop) spawnLayoutRefetch(ctx context.Context, item *trackedItem) {
	dest := item.dest
	obj := item.menuObj
	l.slab.spawn(ctx, l.rs, func(ctx context.Context) loopEvent {
		revision, root, err := busproto.GetLayout(ctx, obj, 0, -1, nil)
		if err != nil {
			return loopEvent{err: errors.Wrapf(ErrBusTransport, "refetching layout for %s: %v", dest, err)}
		}
		menu := &TrayMenu{Revision: revision, Root: convertMenuNode(root)}
		return loopEvent{event: &Event{Kind: EventUpdate, Destination: dest, Update: UpdateKind{Tag: UpdateMenu, Menu: menu}}}
	})
}
