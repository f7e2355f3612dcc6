package snitray

import (
	"context"
	"log/slog"
	"time"
)

const defaultActivationTimeout = time.Second

// Options configures New. The zero value is valid and selects every
// default: a one-second activation timeout, watcher takeovers logged and
// ignored rather than clearing tracked items, and slog.Default() as logger.
type Options struct {
	// ActivationTimeout bounds Activate and AboutToShowMenuItem calls.
	// Zero selects defaultActivationTimeout.
	ActivationTimeout time.Duration

	// ClearAllOnWatcherTakeover selects the Remove-everything policy when
	// another process claims the StatusNotifierWatcher name out from
	// under this client; false leaves tracked items as they are.
	ClearAllOnWatcherTakeover bool

	// Logger receives warnings about transport and protocol errors, none
	// of which are ever surfaced through Next. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ActivationTimeout <= 0 {
		o.ActivationTimeout = defaultActivationTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Client is the tray protocol event-loop multiplexer: a single session bus
// connection shared by every tracked item, and a pull-style stream of
// Events consumed via Next. Bootstrap failures are the only errors New
// returns; once running, transport and decode errors on the event stream
// are logged and swallowed, and Next returns only its context's error (see
// ErrInitFailed and the sentinel errors in errors.go).
type Client struct {
	bootstrap *bootstrapResult
	activator *activator
}

// New opens a session bus connection, registers as a StatusNotifierHost
// (standing up a StatusNotifierWatcher itself if none exists yet), and
// returns a Client ready to stream Events via Next. ctx bounds the
// lifetime of the signal-dispatch goroutine New starts: cancelling it stops
// that goroutine but does not close the connection, which Close releases.
func New(ctx context.Context, opts Options) (*Client, error) {
	opts = opts.withDefaults()

	boot, err := bootstrap(ctx, opts.Logger, opts.ActivationTimeout, opts.ClearAllOnWatcherTakeover)
	if err != nil {
		return nil, err
	}

	go dispatchSignals(ctx, boot.loop, boot.signalCh)

	return &Client{
		bootstrap: boot,
		activator: newActivator(boot.loop.conn, boot.loop.items, opts.Logger, opts.ActivationTimeout),
	}, nil
}

// Next blocks until at least one Event is ready and returns the full batch
// that became ready together. It returns ctx.Err() once ctx is done.
func (c *Client) Next(ctx context.Context) ([]Event, error) {
	return c.bootstrap.loop.next(ctx)
}

// Activate relays an activation request to the application owning the
// targeted item, best-effort and bounded by the client's activation
// timeout.
func (c *Client) Activate(ctx context.Context, req ActivationRequest) error {
	return c.activator.Activate(ctx, req)
}

// AboutToShowMenuItem calls DBusMenu's AboutToShow for a menu item,
// reporting whether the caller should refetch the layout before display.
func (c *Client) AboutToShowMenuItem(ctx context.Context, dest Destination, menuItemID int32) (bool, error) {
	return c.activator.AboutToShowMenuItem(ctx, dest, menuItemID)
}

// HostName returns the unique StatusNotifierHost name this Client claimed.
func (c *Client) HostName() string {
	return c.bootstrap.hostName
}

// Close releases the session bus connection. It does not cancel the
// context passed to New; callers that want the dispatcher goroutine to
// stop should cancel that context themselves.
func (c *Client) Close() error {
	return c.bootstrap.conn.Close()
}
