package snitray

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/trayhost/snitray/internal/busproto"
	"github.com/trayhost/snitray/internal/watcherhost"
)

// bootstrapResult is everything Client needs once bootstrap has succeeded.
type bootstrapResult struct {
	conn     *dbus.Conn
	loop     *loop
	hostName string
	signalCh chan *dbus.Signal
}

// bootstrap is the Go rendition of spec.md's Bootstrap component: open the
// session bus, stand up a StatusNotifierWatcher if none exists yet, claim a
// unique host name (retried with backoff, since a name collision at
// startup is transient contention rather than a fatal condition), register
// as a host, discover already-registered items, and arm the connection-wide
// signal dispatcher before handing control to the steady-state loop.
func bootstrap(ctx context.Context, log *slog.Logger, activationTimeout time.Duration, clearAllOnTakeover bool) (*bootstrapResult, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, initFailed("connect session bus", err)
	}

	if _, err := watcherhost.Attach(conn); err != nil {
		conn.Close()
		return nil, initFailed("attach watcher host", err)
	}

	watcherObj := conn.Object(busproto.WatcherInterface, busproto.WatcherPath)

	hostName, err := claimHostName(conn)
	if err != nil {
		conn.Close()
		return nil, initFailed("claim host name", err)
	}

	if err := busproto.RegisterHost(ctx, watcherObj, hostName); err != nil {
		conn.Close()
		return nil, initFailed("register host", err)
	}

	signalCh := make(chan *dbus.Signal, 64)
	conn.Signal(signalCh)

	if err := armWatcherSubscriptions(conn); err != nil {
		conn.Close()
		return nil, initFailed("subscribe to watcher", err)
	}

	l := newLoop(conn, watcherObj, log, activationTimeout, clearAllOnTakeover)

	existing, err := busproto.RegisteredItems(ctx, watcherObj)
	if err != nil {
		log.Warn("failed to list already-registered items", "error", err)
	}
	for _, addr := range existing {
		l.newItemCh <- addr
		l.rs.wake(wakeSource{kind: wakeNewItem})
	}

	return &bootstrapResult{conn: conn, loop: l, hostName: hostName, signalCh: signalCh}, nil
}

// claimHostName requests a unique org.kde.StatusNotifierHost-<pid>[-n] name,
// retrying with numbered suffixes under a bounded backoff when a collision
// is reported. This is the one place in the protocol where retrying a
// one-time setup call with cenkalti/backoff is appropriate; the steady-state
// loop itself never retries on a clock.
func claimHostName(conn *dbus.Conn) (string, error) {
	pid := os.Getpid()
	var claimed string

	attempt := 0
	operation := func() error {
		name := fmt.Sprintf("org.kde.StatusNotifierHost-%d", pid)
		if attempt > 0 {
			name = fmt.Sprintf("org.kde.StatusNotifierHost-%d-%d", pid, attempt)
		}
		reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
		if err != nil {
			return err
		}
		switch reply {
		case dbus.RequestNameReplyPrimaryOwner, dbus.RequestNameReplyAlreadyOwner:
			claimed = name
			return nil
		default:
			attempt++
			return errors.Errorf("name %s unavailable", name)
		}
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 8)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return claimed, nil
}

// armWatcherSubscriptions subscribes to the signals bootstrap and the loop
// need from the watcher: new-item registrations and a takeover of the
// watcher name itself.
func armWatcherSubscriptions(conn *dbus.Conn) error {
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(busproto.WatcherPath),
		dbus.WithMatchInterface(busproto.WatcherInterface),
		dbus.WithMatchMember("StatusNotifierItemRegistered"),
	); err != nil {
		return err
	}
	return conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/DBus"),
		dbus.WithMatchInterface(busproto.DBusInterface),
		dbus.WithMatchSender(busproto.DBusInterface),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, busproto.WatcherInterface),
	)
}

// dispatchSignals is the connection-wide signal-dispatch goroutine: it owns
// the one subscription channel for the lifetime of the Client's context and
// routes every incoming signal to the right trackedItem channel or to l's
// own newItem/takeover channels, waking the loop's readySet accordingly.
// It never touches itemTracker's or futureSlab's internals directly, only
// the public channel-based API those types expose.
func dispatchSignals(ctx context.Context, l *loop, signalCh chan *dbus.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			routeSignal(l, sig)
		}
	}
}

func routeSignal(l *loop, sig *dbus.Signal) {
	switch sig.Name {
	case busproto.WatcherInterface + ".StatusNotifierItemRegistered":
		if len(sig.Body) != 1 {
			return
		}
		addr, ok := sig.Body[0].(string)
		if !ok {
			return
		}
		select {
		case l.newItemCh <- addr:
			l.rs.wake(wakeSource{kind: wakeNewItem})
		default:
			l.log.Warn("new-item queue full, dropping registration", "address", addr)
		}

	case busproto.DBusInterface + ".NameOwnerChanged":
		routeNameOwnerChanged(l, sig)

	default:
		routeItemOrMenuSignal(l, sig)
	}
}

func routeNameOwnerChanged(l *loop, sig *dbus.Signal) {
	if len(sig.Body) != 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)

	if name == busproto.WatcherInterface && newOwner != "" {
		l.rs.wake(wakeSource{kind: wakeTakeover})
		return
	}

	dest := Destination(name)
	item, ok := l.items.get(dest)
	if !ok {
		return
	}
	select {
	case item.ownerCh <- ownerChange{newOwner: newOwner}:
		l.rs.wake(wakeSource{kind: wakeDisconnect, dest: dest})
	default:
	}
}

func routeItemOrMenuSignal(l *loop, sig *dbus.Signal) {
	dest := Destination(sig.Sender)
	item, ok := l.items.get(dest)
	if !ok {
		return
	}

	switch sig.Name {
	case busproto.MenuInterface + ".LayoutUpdated":
		select {
		case item.layoutCh <- layoutSignal{}:
			l.rs.wake(wakeSource{kind: wakeLayoutUpdate, dest: dest})
		default:
		}
	case busproto.MenuInterface + ".ItemsPropertiesUpdated":
		diff := decodeItemsPropertiesUpdated(sig.Body)
		select {
		case item.layoutCh <- layoutSignal{diff: diff}:
			l.rs.wake(wakeSource{kind: wakeLayoutUpdate, dest: dest})
		default:
		}
	default:
		member := memberOf(sig.Name)
		if _, ok := normalizeSignalMember(member); ok {
			select {
			case item.propertyCh <- propertySignal{member: member}:
				l.rs.wake(wakeSource{kind: wakePropertyChange, dest: dest})
			default:
			}
		} else {
			l.log.Warn("unrecognized signal", "name", sig.Name, "sender", sig.Sender)
		}
	}
}

func memberOf(fullName string) string {
	for i := len(fullName) - 1; i >= 0; i-- {
		if fullName[i] == '.' {
			return fullName[i+1:]
		}
	}
	return fullName
}

// decodeItemsPropertiesUpdated decodes an ItemsPropertiesUpdated signal body
// of shape (a(ia{sv}), a(ias)): updated properties per id, then removed
// property names per id.
func decodeItemsPropertiesUpdated(body []interface{}) []MenuPropertyDiff {
	if len(body) != 2 {
		return nil
	}
	updated, _ := body[0].([][]interface{})
	removed, _ := body[1].([][]interface{})

	diffs := map[int32]*MenuPropertyDiff{}
	order := []int32{}
	get := func(id int32) *MenuPropertyDiff {
		if d, ok := diffs[id]; ok {
			return d
		}
		d := &MenuPropertyDiff{ID: id}
		diffs[id] = d
		order = append(order, id)
		return d
	}

	for _, entry := range updated {
		if len(entry) != 2 {
			continue
		}
		id, ok := entry[0].(int32)
		if !ok {
			continue
		}
		props, ok := entry[1].(map[string]dbus.Variant)
		if !ok {
			continue
		}
		get(id).Updated = props
	}
	for _, entry := range removed {
		if len(entry) != 2 {
			continue
		}
		id, ok := entry[0].(int32)
		if !ok {
			continue
		}
		names, ok := entry[1].([]string)
		if !ok {
			continue
		}
		get(id).Removed = names
	}

	out := make([]MenuPropertyDiff, 0, len(order))
	for _, id := range order {
		out = append(out, *diffs[id])
	}
	return out
}
