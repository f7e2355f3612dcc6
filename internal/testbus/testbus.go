// Package testbus is a fake session bus backend for exercising the tray
// client without a real D-Bus daemon: a hook-based method dispatcher in the
// style of mockingmoby's pre/post API hooks, wired to busproto.Conn's
// interface instead of a container engine's HTTP API.
package testbus

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/trayhost/snitray/internal/busproto"
)

// MethodHook answers one method call with a reply body or an error.
type MethodHook func(args []interface{}) ([]interface{}, error)

// Conn is a fake implementation of busproto.Conn. Method calls are answered
// by hooks registered with Handle; anything unregistered returns a
// not-implemented error, so tests fail loudly on an unexpected call rather
// than hanging.
type Conn struct {
	mu       sync.Mutex
	names    map[string]bool
	hooks    map[string]MethodHook // key: "dest|path|iface.method"
	matches  []dbus.MatchOption
	signalCh chan<- *dbus.Signal
	closed   bool
}

// New returns an empty fake connection with no claimed names and no method
// hooks.
func New() *Conn {
	return &Conn{names: map[string]bool{}, hooks: map[string]MethodHook{}}
}

var _ busproto.Conn = (*Conn)(nil)

// Handle registers the reply for a method call on a specific destination
// and path.
func (c *Conn) Handle(dest string, path dbus.ObjectPath, method string, hook MethodHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[dest+"|"+string(path)+"|"+method] = hook
}

// Emit delivers sig to whatever channel a test's code registered via
// Signal, as if it arrived from the bus.
func (c *Conn) Emit(sig *dbus.Signal) {
	c.mu.Lock()
	ch := c.signalCh
	c.mu.Unlock()
	if ch != nil {
		ch <- sig
	}
}

// Names reports every name this fake connection has claimed.
func (c *Conn) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.names))
	for n := range c.names {
		out = append(out, n)
	}
	return out
}

// RequestName always succeeds as the primary owner unless the name was
// already claimed by an earlier call, matching the common single-claimant
// shape these tests need.
func (c *Conn) RequestName(name string, _ dbus.RequestNameFlags) (dbus.RequestNameReply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.names[name] {
		return dbus.RequestNameReplyAlreadyOwner, nil
	}
	c.names[name] = true
	return dbus.RequestNameReplyPrimaryOwner, nil
}

// ReleaseName releases a previously claimed name.
func (c *Conn) ReleaseName(name string) (dbus.ReleaseNameReply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.names, name)
	return dbus.ReleaseNameReplyReleased, nil
}

// Object returns a fake BusObject bound to dest and path.
func (c *Conn) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	return &object{conn: c, dest: dest, path: path}
}

// Signal registers ch as the sole signal delivery channel.
func (c *Conn) Signal(ch chan<- *dbus.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signalCh = ch
}

// RemoveSignal unregisters ch if it is the currently registered channel.
func (c *Conn) RemoveSignal(ch chan<- *dbus.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signalCh == ch {
		c.signalCh = nil
	}
}

// AddMatchSignal and RemoveMatchSignal record the match rules a test wants
// to assert were requested; the fake never filters delivery by them.
func (c *Conn) AddMatchSignal(options ...dbus.MatchOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matches = append(c.matches, options...)
	return nil
}

func (c *Conn) RemoveMatchSignal(options ...dbus.MatchOption) error {
	return nil
}

// Export is a no-op: Export's contract is about routing incoming calls,
// which this fake never receives from the outside.
func (c *Conn) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	return nil
}

// Close marks the fake connection closed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type object struct {
	conn *Conn
	dest string
	path dbus.ObjectPath
}

func (o *object) call(method string, args []interface{}) *dbus.Call {
	o.conn.mu.Lock()
	hook, ok := o.conn.hooks[o.dest+"|"+string(o.path)+"|"+method]
	o.conn.mu.Unlock()
	if !ok {
		return &dbus.Call{Err: dbus.MakeFailedError(notImplemented(method))}
	}
	body, err := hook(args)
	if err != nil {
		return &dbus.Call{Err: err}
	}
	return &dbus.Call{Body: body}
}

type notImplementedError string

func (e notImplementedError) Error() string { return "testbus: no hook for " + string(e) }

func notImplemented(method string) error { return notImplementedError(method) }

func (o *object) Call(method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	return o.call(method, args)
}

func (o *object) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	return o.call(method, args)
}

func (o *object) Go(method string, _ dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	call := o.call(method, args)
	if ch != nil {
		ch <- call
	}
	return call
}

func (o *object) GoWithContext(_ context.Context, method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	return o.Go(method, flags, ch, args...)
}

func (o *object) GetProperty(p string) (dbus.Variant, error) {
	call := o.call("org.freedesktop.DBus.Properties.Get", []interface{}{p})
	if call.Err != nil {
		return dbus.Variant{}, call.Err
	}
	if len(call.Body) != 1 {
		return dbus.Variant{}, notImplementedError(p)
	}
	v, _ := call.Body[0].(dbus.Variant)
	return v, nil
}

func (o *object) StoreProperty(p string, value interface{}) error {
	return notImplementedError(p)
}

func (o *object) AddMatchSignal(iface, member string, options ...dbus.MatchOption) error {
	return o.conn.AddMatchSignal(options...)
}

func (o *object) RemoveMatchSignal(iface, member string, options ...dbus.MatchOption) error {
	return nil
}

func (o *object) Destination() string { return o.dest }

func (o *object) Path() dbus.ObjectPath { return o.path }

var _ dbus.BusObject = (*object)(nil)
