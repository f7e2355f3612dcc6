package snitray

import (
	"context"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/trayhost/snitray/internal/busproto"
)

// propertyNormalization maps the bare member name of an SNI property-change
// signal to the UpdateTag it refetches and reports, per spec.md's
// "New<X> -> property to refetch" table. OverlayStatus is deliberately
// absent: no signal advertises it. NewIconThemePath folds into the same
// UpdateIcon tag as NewIcon, per SPEC_FULL.md's recovered-detail note: it
// is a companion to the icon update, not a tag of its own.
var propertyNormalization = map[string]UpdateTag{
	"NewAttentionIcon": UpdateAttentionIcon,
	"NewIcon":          UpdateIcon,
	"NewIconThemePath": UpdateIcon,
	"NewOverlayIcon":   UpdateOverlayIcon,
	"NewTitle":         UpdateTitle,
	"NewToolTip":       UpdateTooltip,
	"NewStatus":        UpdateStatus,
}

// normalizeSignalMember resolves a raw SNI signal member name to the
// UpdateTag it represents. ok is false for anything not in the table,
// including the DBusMenu signals handled on a separate channel.
func normalizeSignalMember(member string) (UpdateTag, bool) {
	tag, ok := propertyNormalization[member]
	return tag, ok
}

// wirePropertyForMember names the SNI property to fetch via Properties.Get
// in order to satisfy a given signal member. This is keyed by member rather
// than by UpdateTag because NewIcon and NewIconThemePath share a tag but
// refetch different properties.
func wirePropertyForMember(member string) string {
	switch member {
	case "NewAttentionIcon":
		return "AttentionIconName"
	case "NewIcon":
		return "IconName"
	case "NewIconThemePath":
		return "IconThemePath"
	case "NewOverlayIcon":
		return "OverlayIconName"
	case "NewTitle":
		return "Title"
	case "NewToolTip":
		return "ToolTip"
	case "NewStatus":
		return "Status"
	default:
		return ""
	}
}

// optionalString returns nil for an empty string, matching the SNI
// convention that an empty icon/title property means "not set".
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// decodeItemSnapshot builds an ItemSnapshot from a StatusNotifierItem's full
// property set, as fetched at bringup via Properties.GetAll. Required
// fields absent from props yield ErrMissingProperty; everything else is
// treated as optional and zero-valued when missing, matching real-world SNI
// implementations' uneven property coverage.
func decodeItemSnapshot(props map[string]dbus.Variant) (*ItemSnapshot, error) {
	category, _ := props["Category"].Value().(string)
	id, ok := props["Id"].Value().(string)
	if !ok || id == "" {
		return nil, errors.Wrap(ErrMissingProperty, "Id")
	}
	title, _ := props["Title"].Value().(string)
	statusStr, _ := props["Status"].Value().(string)
	iconName, _ := props["IconName"].Value().(string)
	iconThemePath, _ := props["IconThemePath"].Value().(string)
	attentionIconName, _ := props["AttentionIconName"].Value().(string)
	overlayIconName, _ := props["OverlayIconName"].Value().(string)
	itemIsMenu, _ := props["ItemIsMenu"].Value().(bool)
	windowID, _ := props["WindowId"].Value().(uint32)
	menuPath, _ := props["Menu"].Value().(dbus.ObjectPath)

	snap := &ItemSnapshot{
		Category:          category,
		ID:                id,
		Title:             title,
		Status:            ParseItemStatus(statusStr),
		IconName:          optionalString(iconName),
		IconThemePath:     optionalString(iconThemePath),
		AttentionIconName: optionalString(attentionIconName),
		OverlayIconName:   optionalString(overlayIconName),
		ItemIsMenu:        itemIsMenu,
		WindowID:          windowID,
		MenuPath:          menuPath,
	}

	if tt, ok := props["ToolTip"]; ok {
		tip, err := decodeToolTip(tt)
		if err == nil {
			snap.ToolTip = tip
		}
	}

	return snap, nil
}

// decodeToolTip decodes the (sa(iiay)ss) ToolTip property.
func decodeToolTip(v dbus.Variant) (*ToolTip, error) {
	tuple, ok := v.Value().([]interface{})
	if !ok || len(tuple) != 4 {
		return nil, errors.Wrap(ErrMissingProperty, "ToolTip")
	}
	iconName, _ := tuple[0].(string)
	title, _ := tuple[2].(string)
	body, _ := tuple[3].(string)

	tip := &ToolTip{IconName: iconName, Title: title, Body: body}

	if rawPixmaps, ok := tuple[1].([][]interface{}); ok {
		for _, rp := range rawPixmaps {
			if len(rp) != 3 {
				continue
			}
			w, _ := rp[0].(int32)
			h, _ := rp[1].(int32)
			data, _ := rp[2].([]byte)
			tip.IconPixmap = append(tip.IconPixmap, IconPixmap{Width: w, Height: h, Data: data})
		}
	}

	return tip, nil
}

// convertMenuNode maps the raw busproto.MenuNode tree onto the public
// MenuItem tree.
func convertMenuNode(n busproto.MenuNode) MenuItem {
	children := make([]MenuItem, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, convertMenuNode(c))
	}
	return MenuItem{ID: n.ID, Properties: n.Properties, Children: children}
}

// fetchPropertyUpdate refetches the one property that member's signal
// announced changed and builds the UpdateKind payload it satisfies. Used by
// the property-change future spawned for each drained propertySignal.
// member, not just its UpdateTag, is required here because NewIcon and
// NewIconThemePath share a tag but refetch different properties into
// different UpdateKind fields.
func fetchPropertyUpdate(ctx context.Context, obj dbus.BusObject, member string) (UpdateKind, error) {
	tag, ok := normalizeSignalMember(member)
	if !ok {
		return UpdateKind{}, errors.Wrapf(ErrUnknownSignal, "member %s", member)
	}
	name := wirePropertyForMember(member)

	call := obj.CallWithContext(ctx, busproto.PropertiesInterface+".Get", 0, busproto.ItemInterface, name)
	if call.Err != nil {
		return UpdateKind{}, errors.Wrap(ErrBusTransport, call.Err.Error())
	}
	var v dbus.Variant
	if err := call.Store(&v); err != nil {
		return UpdateKind{}, errors.Wrap(ErrBusTransport, err.Error())
	}

	switch member {
	case "NewAttentionIcon", "NewIcon", "NewOverlayIcon", "NewTitle":
		s, _ := v.Value().(string)
		return UpdateKind{Tag: tag, Text: optionalString(s)}, nil
	case "NewIconThemePath":
		s, _ := v.Value().(string)
		return UpdateKind{Tag: tag, IconThemePath: optionalString(s)}, nil
	case "NewStatus":
		s, _ := v.Value().(string)
		return UpdateKind{Tag: tag, Status: ParseItemStatus(s)}, nil
	case "NewToolTip":
		tip, err := decodeToolTip(v)
		if err != nil {
			return UpdateKind{Tag: tag}, nil
		}
		return UpdateKind{Tag: tag, ToolTip: tip}, nil
	default:
		return UpdateKind{}, errors.Wrapf(ErrUnknownSignal, "member %s", member)
	}
}
