package snitray

import (
	"context"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/trayhost/snitray/internal/busproto"
)

// ActivationRequest names the interaction a consumer wants relayed to the
// application that owns a tracked item: the SNI primary/secondary click
// methods, or a DBusMenu item click.
type ActivationRequest struct {
	Destination Destination

	// Kind selects which D-Bus method is invoked.
	Kind ActivationKind

	// X, Y are the screen coordinates passed to Activate/SecondaryActivate.
	X, Y int32

	// MenuItemID is the DBusMenu item id for ActivateMenuItem.
	MenuItemID int32
	// EventID is usually "clicked" for ActivateMenuItem.
	EventID string
}

// ActivationKind selects which activation method an ActivationRequest
// triggers.
type ActivationKind int

const (
	ActivatePrimary ActivationKind = iota
	ActivateSecondary
	ActivateMenuItem
)

// activator is the Go rendition of spec.md's Activator: activation calls
// are fire-and-forget from the consumer's point of view, bounded by a
// timeout and logged rather than surfaced as errors, since a slow or wedged
// application on the other end of the bus must never stall the caller.
type activator struct {
	conn    busproto.Conn
	items   *itemTracker
	log     *slog.Logger
	timeout time.Duration
}

func newActivator(conn busproto.Conn, items *itemTracker, log *slog.Logger, timeout time.Duration) *activator {
	return &activator{conn: conn, items: items, log: log, timeout: timeout}
}

// Activate relays req to the owning application, best-effort. It never
// blocks the caller past its configured timeout; a timed-out or failed call
// is logged, not returned, matching the fire-and-forget nature of tray
// activation.
func (a *activator) Activate(ctx context.Context, req ActivationRequest) error {
	item, ok := a.items.get(req.Destination)
	if !ok {
		return errors.Errorf("snitray: no tracked item for destination %s", req.Destination)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var err error
	switch req.Kind {
	case ActivatePrimary:
		err = busproto.Activate(callCtx, item.itemObj, req.X, req.Y)
	case ActivateSecondary:
		err = busproto.SecondaryActivate(callCtx, item.itemObj, req.X, req.Y)
	case ActivateMenuItem:
		if !item.hasMenu() {
			return errors.Errorf("snitray: destination %s has no menu", req.Destination)
		}
		eventID := req.EventID
		if eventID == "" {
			eventID = "clicked"
		}
		err = busproto.Event(callCtx, item.menuObj, req.MenuItemID, eventID, dbus.MakeVariant(""), 0)
	}

	if err != nil {
		a.log.Warn("activation failed", "destination", req.Destination, "kind", req.Kind, "error", err)
	}
	return nil
}

// AboutToShowMenuItem calls DBusMenu's AboutToShow for id, reporting whether
// the caller should refetch the layout before displaying it.
func (a *activator) AboutToShowMenuItem(ctx context.Context, dest Destination, id int32) (bool, error) {
	item, ok := a.items.get(dest)
	if !ok {
		return false, errors.Errorf("snitray: no tracked item for destination %s", dest)
	}
	if !item.hasMenu() {
		return false, errors.Errorf("snitray: destination %s has no menu", dest)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	return busproto.AboutToShow(callCtx, item.menuObj, id)
}
