package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("truncate", func() {
	It("returns the string unchanged when within the limit", func() {
		Expect(Truncate("short", 10)).To(Equal("short"))
	})

	It("returns the string unchanged when exactly at the limit", func() {
		Expect(Truncate("12345", 5)).To(Equal("12345"))
	})

	It("truncates with ellipsis when over the limit", func() {
		Expect(Truncate("this is a long string", 10)).To(Equal("this is a ..."))
	})

	It("never splits a multibyte character", func() {
		Expect(Truncate("héllo wörld", 7)).To(Equal("héllo w..."))
	})
})

var _ = Describe("ShortID", func() {
	It("keeps short IDs", func() {
		Expect(ShortID("abc")).To(Equal("abc"))
	})

	It("cuts long IDs to eight characters", func() {
		Expect(ShortID("0123456789abcdef")).To(Equal("01234567"))
	})
})

var _ = Describe("VersionString", func() {
	It("includes the build metadata", func() {
		Expect(VersionString()).To(Equal("chatstream dev (HEAD, built dev)"))
	})
})
