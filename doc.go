/*

Package snitray is a client for the desktop tray protocol suite built atop the
D-Bus session bus: the StatusNotifierItem (SNI) and DBusMenu interfaces.

It discovers tray items exported by applications via the
org.kde.StatusNotifierWatcher registry, materializes their declared
properties and menu layouts, tracks updates over the life of each item,
detects their disappearance, and emits a coherent stream of typed Events to a
consumer such as a status bar, dock, or panel.

Usage

    import "github.com/trayhost/snitray"

    client, err := snitray.New(context.Background(), snitray.Options{})
    if err != nil {
        panic(err)
    }
    defer client.Close()

    for {
        batch, err := client.Next(context.Background())
        if err != nil {
            break // the context passed to Next is done
        }
        for _, ev := range batch {
            fmt.Printf("%+v\n", ev)
        }
    }

The hard engineering this package implements is the event-loop multiplexer: a
single goroutine-owned state machine that fans a single wakeup doorbell out
across many independent event sources (new-item announcements, per-item
signal streams, per-item property refetches, per-menu layout refetches,
name-owner-lost notifications), remembers precisely which source woke since
the last drain, resumes only those sources, and linearizes their outputs into
an ordered sequence of Events. See loop.go and readyset.go for the design.

*/
package snitray
