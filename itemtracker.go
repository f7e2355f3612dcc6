package snitray

import (
	"sync"

	"github.com/godbus/dbus/v5"
)

// propertySignal is one decoded NewAttentionIcon/NewIcon/.../NewToolTip
// notification, named by the bare member name so decoder.go can normalize
// it without itemTracker knowing the property taxonomy.
type propertySignal struct {
	member string
}

// layoutSignal is one decoded DBusMenu change notification: either a bare
// LayoutUpdated (requiring a GetLayout refetch) or an ItemsPropertiesUpdated
// carrying its diff payload directly.
type layoutSignal struct {
	diff []MenuPropertyDiff // non-nil only for ItemsPropertiesUpdated
}

// ownerChange is a decoded NameOwnerChanged record for a tracked item's bus
// name: newOwner == "" means the name was released, i.e. the item vanished.
type ownerChange struct {
	newOwner string
}

// trackedItem is the per-Destination subscription bundle, the Go rendition
// of spec.md's ItemTracker entry: one buffered channel per WakeSource kind
// the item can produce, fed by the connection-wide signal dispatcher and
// drained exclusively by the loop goroutine.
type trackedItem struct {
	dest    Destination
	itemObj dbus.BusObject
	menuObj dbus.BusObject // nil if the item declares no menu
	menuPath dbus.ObjectPath

	ownerCh    chan ownerChange
	propertyCh chan propertySignal
	layoutCh   chan layoutSignal
}

func newTrackedItem(dest Destination, itemObj, menuObj dbus.BusObject, menuPath dbus.ObjectPath) *trackedItem {
	return &trackedItem{
		dest:       dest,
		itemObj:    itemObj,
		menuObj:    menuObj,
		menuPath:   menuPath,
		ownerCh:    make(chan ownerChange, 4),
		propertyCh: make(chan propertySignal, 16),
		layoutCh:   make(chan layoutSignal, 16),
	}
}

// hasMenu reports whether this item advertised a Menu property.
func (t *trackedItem) hasMenu() bool { return t.menuObj != nil }

// itemTracker is the map of live per-item subscriptions, keyed by
// Destination. It is read by the connection-wide signal dispatcher goroutine
// (to route an incoming *dbus.Signal to the right channels) and written only
// by the loop goroutine (on bringup and on removal finalization), so it
// needs its own mutex despite the single-owner discipline that governs the
// channels' contents.
type itemTracker struct {
	mu    sync.RWMutex
	items map[Destination]*trackedItem
}

func newItemTracker() *itemTracker {
	return &itemTracker{items: make(map[Destination]*trackedItem)}
}

func (t *itemTracker) add(item *trackedItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[item.dest] = item
}

func (t *itemTracker) remove(dest Destination) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, dest)
}

func (t *itemTracker) get(dest Destination) (*trackedItem, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[dest]
	return item, ok
}

func (t *itemTracker) contains(dest Destination) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.items[dest]
	return ok
}

// destinations returns a snapshot of every currently tracked Destination,
// used when the watcher takeover policy clears all tracked items.
func (t *itemTracker) destinations() []Destination {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Destination, 0, len(t.items))
	for d := range t.items {
		out = append(out, d)
	}
	return out
}

// drainOwnerChanges non-blockingly drains item's owner-change channel.
func (t *trackedItem) drainOwnerChanges() []ownerChange {
	var out []ownerChange
	for {
		select {
		case rec := <-t.ownerCh:
			out = append(out, rec)
		default:
			return out
		}
	}
}

// drainPropertySignals non-blockingly drains item's property-change channel.
func (t *trackedItem) drainPropertySignals() []propertySignal {
	var out []propertySignal
	for {
		select {
		case rec := <-t.propertyCh:
			out = append(out, rec)
		default:
			return out
		}
	}
}

// drainLayoutSignals non-blockingly drains item's layout-change channel.
func (t *trackedItem) drainLayoutSignals() []layoutSignal {
	var out []layoutSignal
	for {
		select {
		case rec := <-t.layoutCh:
			out = append(out, rec)
		default:
			return out
		}
	}
}
