// Package busproto is the thin collaborator between the event-loop
// multiplexer and the raw session bus: it owns the handful of D-Bus method
// calls and property fetches the protocol needs, and nothing else. It is
// deliberately unglamorous, the same way engineclient.EngineClient is a thin
// black box in front of the Docker/containerd/CRI SDKs for the teacher this
// module is adapted from.
package busproto

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// Well-known interface, path and member names for the tray protocol suite.
const (
	WatcherInterface = "org.kde.StatusNotifierWatcher"
	WatcherPath      = dbus.ObjectPath("/StatusNotifierWatcher")

	ItemInterface = "org.kde.StatusNotifierItem"

	MenuInterface = "com.canonical.dbusmenu"

	PropertiesInterface = "org.freedesktop.DBus.Properties"
	DBusInterface       = "org.freedesktop.DBus"
)

// Conn is the subset of *dbus.Conn the tray client depends on. Production
// code is handed a real *dbus.Conn, which already satisfies this interface;
// tests are handed a fake.
type Conn interface {
	Names() []string
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	ReleaseName(name string) (dbus.ReleaseNameReply, error)
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Close() error
}

var _ Conn = (*dbus.Conn)(nil)

// GetAllProperties fetches every property of iface at obj via the standard
// org.freedesktop.DBus.Properties.GetAll method.
func GetAllProperties(ctx context.Context, obj dbus.BusObject, iface string) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	call := obj.CallWithContext(ctx, PropertiesInterface+".GetAll", 0, iface)
	if call.Err != nil {
		return nil, call.Err
	}
	if err := call.Store(&props); err != nil {
		return nil, err
	}
	return props, nil
}

// GetLayout calls the DBusMenu GetLayout method and decodes the recursive
// (revision, (id, properties, children)) reply into a revision number and a
// tree of MenuNodes.
func GetLayout(ctx context.Context, obj dbus.BusObject, parent int32, depth int32, propertyFilter []string) (uint32, MenuNode, error) {
	call := obj.CallWithContext(ctx, MenuInterface+".GetLayout", 0, parent, depth, propertyFilter)
	if call.Err != nil {
		return 0, MenuNode{}, call.Err
	}
	if len(call.Body) != 2 {
		return 0, MenuNode{}, dbus.MakeFailedError(errInvalidLayoutReply)
	}
	revision, ok := call.Body[0].(uint32)
	if !ok {
		return 0, MenuNode{}, dbus.MakeFailedError(errInvalidLayoutReply)
	}
	root, err := decodeMenuNode(call.Body[1])
	if err != nil {
		return 0, MenuNode{}, err
	}
	return revision, root, nil
}

// MenuNode is the raw decoded shape of a DBusMenu layout entry, mirroring
// the wire signature (ia{sv}av) before the caller maps it into the public
// snitray.MenuItem tree.
type MenuNode struct {
	ID         int32
	Properties map[string]dbus.Variant
	Children   []MenuNode
}

var errInvalidLayoutReply = dbusError("malformed GetLayout reply")

type dbusError string

func (e dbusError) Error() string { return string(e) }

// decodeMenuNode walks the (ia{sv}av) tuple that GetLayout returns, recursing
// into each child (itself wrapped in a dbus.Variant around the same tuple
// shape).
func decodeMenuNode(raw interface{}) (MenuNode, error) {
	tuple, ok := raw.([]interface{})
	if !ok || len(tuple) != 3 {
		return MenuNode{}, dbus.MakeFailedError(errInvalidLayoutReply)
	}
	id, ok := tuple[0].(int32)
	if !ok {
		return MenuNode{}, dbus.MakeFailedError(errInvalidLayoutReply)
	}
	props, ok := tuple[1].(map[string]dbus.Variant)
	if !ok {
		return MenuNode{}, dbus.MakeFailedError(errInvalidLayoutReply)
	}
	rawChildren, ok := tuple[2].([]dbus.Variant)
	if !ok {
		return MenuNode{}, dbus.MakeFailedError(errInvalidLayoutReply)
	}
	children := make([]MenuNode, 0, len(rawChildren))
	for _, rc := range rawChildren {
		child, err := decodeMenuNode(rc.Value())
		if err != nil {
			return MenuNode{}, err
		}
		children = append(children, child)
	}
	return MenuNode{ID: id, Properties: props, Children: children}, nil
}

// Event calls the DBusMenu Event method: notifies the menu provider that the
// user interacted with item id.
func Event(ctx context.Context, obj dbus.BusObject, id int32, eventID string, data dbus.Variant, timestamp uint32) error {
	return obj.CallWithContext(ctx, MenuInterface+".Event", 0, id, eventID, data, timestamp).Err
}

// AboutToShow calls the DBusMenu AboutToShow method, returning whether the
// menu provider wants the layout refreshed before display.
func AboutToShow(ctx context.Context, obj dbus.BusObject, id int32) (bool, error) {
	var needsUpdate bool
	call := obj.CallWithContext(ctx, MenuInterface+".AboutToShow", 0, id)
	if call.Err != nil {
		return false, call.Err
	}
	if err := call.Store(&needsUpdate); err != nil {
		return false, err
	}
	return needsUpdate, nil
}

// Activate calls the SNI Activate method (primary mouse action).
func Activate(ctx context.Context, obj dbus.BusObject, x, y int32) error {
	return obj.CallWithContext(ctx, ItemInterface+".Activate", 0, x, y).Err
}

// SecondaryActivate calls the SNI SecondaryActivate method.
func SecondaryActivate(ctx context.Context, obj dbus.BusObject, x, y int32) error {
	return obj.CallWithContext(ctx, ItemInterface+".SecondaryActivate", 0, x, y).Err
}

// RegisterHost registers a host's well-known name with the watcher.
func RegisterHost(ctx context.Context, watcher dbus.BusObject, name string) error {
	return watcher.CallWithContext(ctx, WatcherInterface+".RegisterStatusNotifierHost", 0, name).Err
}

// UnregisterItem asks the watcher to unregister a service, best-effort.
func UnregisterItem(ctx context.Context, watcher dbus.BusObject, service string) error {
	return watcher.CallWithContext(ctx, WatcherInterface+".UnregisterStatusNotifierItem", 0, service).Err
}

// RegisteredItems reads the watcher's RegisteredStatusNotifierItems
// property.
func RegisteredItems(ctx context.Context, watcher dbus.BusObject) ([]string, error) {
	var items []string
	call := watcher.CallWithContext(ctx, PropertiesInterface+".Get", 0, WatcherInterface, "RegisteredStatusNotifierItems")
	if call.Err != nil {
		return nil, call.Err
	}
	var v dbus.Variant
	if err := call.Store(&v); err != nil {
		return nil, err
	}
	if err := v.Store(&items); err != nil {
		return nil, err
	}
	return items, nil
}
