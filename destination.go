package snitray

import (
	"strings"

	"github.com/godbus/dbus/v5"
)

// DefaultItemPath is the object path a tray item is assumed to export its
// StatusNotifierItem interface on when an item address names only a bus name,
// without an explicit object path suffix.
const DefaultItemPath = dbus.ObjectPath("/StatusNotifierItem")

// Destination is the bus name of an application exporting a tray item, such
// as ":1.52". Destinations are the primary identity for tracked items: there
// is exactly one tracked Item per Destination (spec invariant I1).
type Destination string

// String renders the destination as plain text.
func (d Destination) String() string {
	return string(d)
}

// ParseAddress splits a StatusNotifierItemRegistered address into its
// Destination and object path. Addresses take the form
// "destination/path-suffix"; if no slash is present the object path defaults
// to DefaultItemPath, otherwise the suffix is prefixed with a leading slash.
//
//	ParseAddress("dest/a/b/c") == ("dest", "/a/b/c")
//	ParseAddress("dest")       == ("dest", "/StatusNotifierItem")
func ParseAddress(address string) (Destination, dbus.ObjectPath) {
	if idx := strings.IndexByte(address, '/'); idx >= 0 {
		return Destination(address[:idx]), dbus.ObjectPath(address[idx:])
	}
	return Destination(address), DefaultItemPath
}

// address reassembles the canonical address string for this destination and
// path, the inverse of ParseAddress.
func address(dest Destination, path dbus.ObjectPath) string {
	return string(dest) + string(path)
}
