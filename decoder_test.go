package snitray

import (
	"github.com/godbus/dbus/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trayhost/snitray/internal/busproto"
)

var _ = Describe("decodeItemSnapshot", func() {
	It("decodes a fully populated property set", func() {
		props := map[string]dbus.Variant{
			"Category":      dbus.MakeVariant("ApplicationStatus"),
			"Id":            dbus.MakeVariant("my-app"),
			"Title":         dbus.MakeVariant("My App"),
			"Status":        dbus.MakeVariant("Active"),
			"IconName":      dbus.MakeVariant("my-app-icon"),
			"IconThemePath": dbus.MakeVariant("/usr/share/icons"),
			"ItemIsMenu":    dbus.MakeVariant(true),
			"WindowId":      dbus.MakeVariant(uint32(42)),
			"Menu":          dbus.MakeVariant(dbus.ObjectPath("/MenuBar")),
		}

		snap, err := decodeItemSnapshot(props)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.ID).To(Equal("my-app"))
		Expect(snap.Status).To(Equal(StatusActive))
		Expect(*snap.IconName).To(Equal("my-app-icon"))
		Expect(snap.ItemIsMenu).To(BeTrue())
		Expect(snap.WindowID).To(Equal(uint32(42)))
		Expect(snap.MenuPath).To(Equal(dbus.ObjectPath("/MenuBar")))
	})

	It("rejects a property set missing Id", func() {
		_, err := decodeItemSnapshot(map[string]dbus.Variant{
			"Title": dbus.MakeVariant("no id here"),
		})
		Expect(err).To(MatchError(ErrMissingProperty))
	})

	It("treats an empty icon name as unset", func() {
		props := map[string]dbus.Variant{
			"Id":       dbus.MakeVariant("x"),
			"IconName": dbus.MakeVariant(""),
		}
		snap, err := decodeItemSnapshot(props)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.IconName).To(BeNil())
	})

	It("defaults an unrecognized status to Passive", func() {
		props := map[string]dbus.Variant{
			"Id":     dbus.MakeVariant("x"),
			"Status": dbus.MakeVariant("SomethingNew"),
		}
		snap, err := decodeItemSnapshot(props)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Status).To(Equal(StatusPassive))
	})
})

var _ = Describe("normalizeSignalMember", func() {
	It("maps every documented New<X> signal to its update tag", func() {
		cases := map[string]UpdateTag{
			"NewAttentionIcon": UpdateAttentionIcon,
			"NewIcon":          UpdateIcon,
			"NewOverlayIcon":   UpdateOverlayIcon,
			"NewTitle":         UpdateTitle,
			"NewToolTip":       UpdateTooltip,
			"NewStatus":        UpdateStatus,
		}
		for member, tag := range cases {
			got, ok := normalizeSignalMember(member)
			Expect(ok).To(BeTrue(), member)
			Expect(got).To(Equal(tag), member)
		}
	})

	It("rejects signals outside the property-change convention", func() {
		_, ok := normalizeSignalMember("LayoutUpdated")
		Expect(ok).To(BeFalse())
	})

	It("folds NewIconThemePath into the Icon update tag", func() {
		tag, ok := normalizeSignalMember("NewIconThemePath")
		Expect(ok).To(BeTrue())
		Expect(tag).To(Equal(UpdateIcon))
	})

	It("resolves a distinct wire property per member even when tags collide", func() {
		Expect(wirePropertyForMember("NewIcon")).To(Equal("IconName"))
		Expect(wirePropertyForMember("NewIconThemePath")).To(Equal("IconThemePath"))
	})

	It("maps every mapped member to a non-empty wire property name", func() {
		for member := range propertyNormalization {
			Expect(wirePropertyForMember(member)).NotTo(BeEmpty(), member)
		}
	})
})

var _ = Describe("convertMenuNode", func() {
	It("preserves structure and id across recursion", func() {
		raw := busproto.MenuNode{
			ID: 0,
			Children: []busproto.MenuNode{
				{ID: 1, Properties: map[string]dbus.Variant{"label": dbus.MakeVariant("Quit")}},
				{ID: 2, Children: []busproto.MenuNode{{ID: 3}}},
			},
		}
		root := convertMenuNode(raw)
		Expect(root.ID).To(Equal(int32(0)))
		Expect(root.Children).To(HaveLen(2))
		Expect(root.Children[1].Children).To(HaveLen(1))
		Expect(root.Children[1].Children[0].ID).To(Equal(int32(3)))
	})
})
