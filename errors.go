package snitray

import "github.com/pkg/errors"

// Sentinel error kinds. None of these ever terminate the event stream; they
// are wrapped with context via github.com/pkg/errors and logged, never
// returned to the stream consumer (spec.md §7: "the public event stream has
// no error variant").
var (
	// ErrMissingProperty means decoding an item snapshot failed because a
	// required protocol field was absent.
	ErrMissingProperty = errors.New("snitray: required item property missing")
	// ErrBusTransport means a bus round-trip (method call or property
	// fetch) failed at the transport level.
	ErrBusTransport = errors.New("snitray: bus transport error")
	// ErrUnregisterFailed means UnregisterStatusNotifierItem failed during
	// Remove finalization; the Remove event is still emitted.
	ErrUnregisterFailed = errors.New("snitray: failed to unregister item with watcher")
	// ErrUnknownSignal means a raw signal name did not match the New<X>
	// property-change convention nor any known DBusMenu signal.
	ErrUnknownSignal = errors.New("snitray: unrecognized signal")
)

// ErrInitFailed wraps a Bootstrap failure (opening the bus, claiming the
// host name, registering with the watcher). Bootstrap errors are the only
// ones New surfaces to the caller, per spec.md §7: they are fatal for the
// client and never occur once the stream is running.
type ErrInitFailed struct {
	Step string
	Err  error
}

func (e *ErrInitFailed) Error() string {
	return "snitray: bootstrap failed at " + e.Step + ": " + e.Err.Error()
}

func (e *ErrInitFailed) Unwrap() error { return e.Err }

func initFailed(step string, err error) error {
	return &ErrInitFailed{Step: step, Err: err}
}
