package snitray

import (
	"github.com/godbus/dbus/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseAddress", func() {
	DescribeTable("splitting addresses",
		func(addr string, wantDest Destination, wantPath dbus.ObjectPath) {
			dest, path := ParseAddress(addr)
			Expect(dest).To(Equal(wantDest))
			Expect(path).To(Equal(wantPath))
		},
		Entry("bare destination defaults to the standard item path", ":1.52", Destination(":1.52"), DefaultItemPath),
		Entry("destination with an explicit path suffix", ":1.52/a/b/c", Destination(":1.52"), dbus.ObjectPath("/a/b/c")),
		Entry("well-known name with a path suffix", "org.example.App/StatusNotifierItem", Destination("org.example.App"), dbus.ObjectPath("/StatusNotifierItem")),
	)

	It("round-trips through address()", func() {
		dest, path := ParseAddress(":1.7/custom/path")
		Expect(address(dest, path)).To(Equal(":1.7/custom/path"))
	})
})
