package busproto

import (
	"github.com/godbus/dbus/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("decodeMenuNode", func() {
	It("decodes a leaf node with no children", func() {
		raw := []interface{}{
			int32(3),
			map[string]dbus.Variant{"label": dbus.MakeVariant("Quit")},
			[]dbus.Variant{},
		}
		node, err := decodeMenuNode(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(node.ID).To(Equal(int32(3)))
		Expect(node.Children).To(BeEmpty())
		Expect(node.Properties["label"].Value()).To(Equal("Quit"))
	})

	It("recurses into nested children wrapped as variants", func() {
		child := dbus.MakeVariant([]interface{}{
			int32(2),
			map[string]dbus.Variant{},
			[]dbus.Variant{},
		})
		raw := []interface{}{
			int32(0),
			map[string]dbus.Variant{},
			[]dbus.Variant{child},
		}
		node, err := decodeMenuNode(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(node.Children).To(HaveLen(1))
		Expect(node.Children[0].ID).To(Equal(int32(2)))
	})

	It("rejects a malformed tuple", func() {
		_, err := decodeMenuNode([]interface{}{int32(1)})
		Expect(err).To(HaveOccurred())
	})
})
