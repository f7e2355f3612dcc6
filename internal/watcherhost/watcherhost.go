// Package watcherhost implements the org.kde.StatusNotifierWatcher side of
// the protocol: the well-known registry that items register themselves
// with and hosts watch for registrations. Real desktop environments each
// run exactly one of these; a tray client that finds none already running
// is expected to stand one up itself so the rest of the ecosystem keeps
// working, which is what Attach does.
//
// Adapted from the StatusNotifierWatcher server in the systray example this
// module drew its godbus wiring from: exported methods plus prop.Export for
// the read-only properties, and conn.Emit for the registration signals.
package watcherhost

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

const (
	busName   = "org.kde.StatusNotifierWatcher"
	path      = dbus.ObjectPath("/StatusNotifierWatcher")
	iface     = "org.kde.StatusNotifierWatcher"
	protoVers = int32(0)
)

// Watcher is an attached StatusNotifierWatcher server instance, or a no-op
// handle if another process already owns the role.
type Watcher struct {
	conn   *dbus.Conn
	owner  bool
	mu     sync.Mutex
	items  map[string]struct{}
	hosts  map[string]struct{}
	export *prop.Properties
}

// Attach claims the StatusNotifierWatcher name if nobody holds it yet and
// exports the registry methods and properties. If the name is already
// owned, Attach exports nothing and returns a handle whose Owner reports
// false: some other process is already serving the role, which is the
// common case on a running desktop. The registry methods of such a handle
// are never exported and must not be called on it.
func Attach(conn *dbus.Conn) (*Watcher, error) {
	w := &Watcher{conn: conn, items: map[string]struct{}{}, hosts: map[string]struct{}{}}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return w, nil // somebody else already serves the watcher role
	}
	w.owner = true

	if err := conn.Export(w, path, iface); err != nil {
		return nil, err
	}

	propsSpec := map[string]map[string]*prop.Prop{
		iface: {
			"RegisteredStatusNotifierItems": {
				Value:    []string{},
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"IsStatusNotifierHostRegistered": {
				Value:    false,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"ProtocolVersion": {
				Value:    protoVers,
				Writable: false,
				Emit:     prop.EmitFalse,
			},
		},
	}
	exported, err := prop.Export(conn, path, propsSpec)
	if err != nil {
		return nil, err
	}
	w.export = exported

	node := &introspect.Node{
		Name: string(path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: iface,
				Methods: []introspect.Method{
					{Name: "RegisterStatusNotifierItem", Args: []introspect.Arg{
						{Name: "service", Type: "s", Direction: "in"},
					}},
					{Name: "RegisterStatusNotifierHost", Args: []introspect.Arg{
						{Name: "service", Type: "s", Direction: "in"},
					}},
					{Name: "UnregisterStatusNotifierItem", Args: []introspect.Arg{
						{Name: "service", Type: "s", Direction: "in"},
					}},
				},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, err
	}

	return w, nil
}

// Owner reports whether this process won the watcher role.
func (w *Watcher) Owner() bool { return w.owner }

// RegisterStatusNotifierItem is the exported D-Bus method items call to
// announce themselves.
func (w *Watcher) RegisterStatusNotifierItem(service string, c dbus.Sender) *dbus.Error {
	addr := service
	if len(addr) == 0 || addr[0] != ':' {
		addr = string(c)
	}
	w.mu.Lock()
	w.items[addr] = struct{}{}
	items := w.itemsLocked()
	w.mu.Unlock()

	w.export.SetMust(iface, "RegisteredStatusNotifierItems", items)
	_ = w.conn.Emit(path, iface+".StatusNotifierItemRegistered", addr)
	return nil
}

// UnregisterStatusNotifierItem removes a previously registered item.
func (w *Watcher) UnregisterStatusNotifierItem(service string) *dbus.Error {
	w.mu.Lock()
	delete(w.items, service)
	items := w.itemsLocked()
	w.mu.Unlock()

	w.export.SetMust(iface, "RegisteredStatusNotifierItems", items)
	_ = w.conn.Emit(path, iface+".StatusNotifierItemUnregistered", service)
	return nil
}

// RegisterStatusNotifierHost is the exported D-Bus method hosts call to
// announce themselves.
func (w *Watcher) RegisterStatusNotifierHost(service string) *dbus.Error {
	w.mu.Lock()
	w.hosts[service] = struct{}{}
	w.mu.Unlock()

	w.export.SetMust(iface, "IsStatusNotifierHostRegistered", true)
	_ = w.conn.Emit(path, iface+".StatusNotifierHostRegistered")
	return nil
}

func (w *Watcher) itemsLocked() []string {
	out := make([]string, 0, len(w.items))
	for item := range w.items {
		out = append(out, item)
	}
	return out
}
