package snitray

import "github.com/godbus/dbus/v5"

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	// EventAdd reports a newly tracked item and its initial snapshot.
	EventAdd EventKind = iota
	// EventUpdate reports a change to an already-tracked item.
	EventUpdate
	// EventRemove reports that a tracked item has disappeared.
	EventRemove
)

// Event is the tagged union delivered to consumers of a Client's event
// stream. Within the events observed for a single Destination, an Add
// always precedes any Update or Remove, and at most one Remove is ever
// emitted (spec invariants I4, I5).
type Event struct {
	Kind        EventKind
	Destination Destination
	Snapshot    *ItemSnapshot // populated only for EventAdd
	Update      UpdateKind    // populated only for EventUpdate
}

// UpdateTag identifies which field of an UpdateKind is meaningful.
type UpdateTag int

const (
	UpdateAttentionIcon UpdateTag = iota
	UpdateIcon
	UpdateOverlayIcon
	// UpdateOverlayStatus is never produced by the decoder: no SNI signal
	// maps to it. It is retained as a named tag only because the update
	// taxonomy names it explicitly.
	UpdateOverlayStatus
	UpdateTitle
	UpdateTooltip
	UpdateStatus
	UpdateMenuConnect
	UpdateMenu
	UpdateMenuDiff
)

// UpdateKind is the payload of an EventUpdate, a tagged union over the kinds
// of change a tracked item can report.
type UpdateKind struct {
	Tag UpdateTag

	// Text carries the payload for AttentionIcon, Icon, OverlayIcon and
	// Title; nil means the property was unset.
	Text *string
	// IconThemePath carries the theme-path companion to an Icon update
	// when the change originated from a NewIconThemePath signal rather
	// than a NewIcon signal; nil for every other update, and nil on an
	// Icon update that was itself triggered by NewIcon.
	IconThemePath *string
	// ToolTip carries the payload for Tooltip; nil means unset.
	ToolTip *ToolTip
	// Status carries the payload for Status.
	Status ItemStatus
	// MenuPath carries the payload for MenuConnect.
	MenuPath dbus.ObjectPath
	// Menu carries the payload for Menu.
	Menu *TrayMenu
	// MenuDiff carries the payload for MenuDiff.
	MenuDiff []MenuPropertyDiff
}

// ItemStatus is the SNI Status property, decoded from its string wire form.
type ItemStatus int

const (
	StatusPassive ItemStatus = iota
	StatusActive
	StatusNeedsAttention
)

// ParseItemStatus decodes the wire representation of the Status property.
// An unrecognized value defaults to StatusPassive, per spec.md's "default on
// parse failure" rule for the Status update.
func ParseItemStatus(s string) ItemStatus {
	switch s {
	case "Active":
		return StatusActive
	case "NeedsAttention":
		return StatusNeedsAttention
	default:
		return StatusPassive
	}
}

// String renders the wire representation of an ItemStatus.
func (s ItemStatus) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusNeedsAttention:
		return "NeedsAttention"
	default:
		return "Passive"
	}
}

// IconPixmap is a single ARGB32 bitmap, network byte order, as carried in the
// IconPixmap/AttentionIconPixmap/OverlayIconPixmap properties and in a
// ToolTip's icon.
type IconPixmap struct {
	Width  int32
	Height int32
	Data   []byte
}

// ToolTip is the decoded (sa(iiay)ss) ToolTip property: an icon name, a
// fallback pixmap list, a title and a body.
type ToolTip struct {
	IconName   string
	IconPixmap []IconPixmap
	Title      string
	Body       string
}

// ItemSnapshot is the fully decoded set of StatusNotifierItem properties
// fetched at bringup time, emitted as the payload of an EventAdd.
type ItemSnapshot struct {
	Category          string
	ID                string
	Title             string
	Status            ItemStatus
	IconName          *string
	IconThemePath     *string
	AttentionIconName *string
	OverlayIconName   *string
	ToolTip           *ToolTip
	ItemIsMenu        bool
	WindowID          uint32
	// MenuPath is the object path advertised by the Menu property; empty if
	// the item declares no menu. When non-empty, a follow-up EventUpdate
	// carrying UpdateMenu is emitted once the initial layout resolves.
	MenuPath dbus.ObjectPath
}

// MenuItem is one node of a decoded DBusMenu layout tree.
type MenuItem struct {
	ID         int32
	Properties map[string]dbus.Variant
	Children   []MenuItem
}

// TrayMenu is a full DBusMenu layout, as returned by GetLayout and carried by
// an UpdateMenu event.
type TrayMenu struct {
	Revision uint32
	Root     MenuItem
}

// MenuPropertyDiff is one entry of an ItemsPropertiesUpdated signal: the
// properties that changed (or were removed) for a single menu item ID,
// carried by an UpdateMenuDiff event.
type MenuPropertyDiff struct {
	ID      int32
	Updated map[string]dbus.Variant
	Removed []string
}
