package api

import (
	"bytes"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/time/rate"

	"github.com/papercomputeco/chatstream/pkg/logger"
)

type failingWriter struct{ writes int }

func (f *failingWriter) Write(p []byte) (int, error) {
	f.writes++
	return 0, errors.New("closed pipe")
}

var _ = Describe("frames", func() {
	DescribeTable("encodeFrame",
		func(event, data, want string) {
			Expect(encodeFrame(event, data)).To(Equal(want))
		},
		Entry("token", "token", "hi", "event: token\ndata: hi\n\n"),
		Entry("empty data", "done", "", "event: done\ndata:\n\n"),
		Entry("multi-line", "token", "a\nb", "event: token\ndata: a\ndata: b\n\n"),
		Entry("CRLF and CR", "token", "a\r\nb\rc", "event: token\ndata: a\ndata: b\ndata: c\n\n"),
		Entry("leading space kept", "token", " x", "event: token\ndata:  x\n\n"),
		Entry("trailing newline", "token", "a\n", "event: token\ndata: a\ndata: \n\n"),
	)

	It("stops writing after the first failure", func() {
		w := &failingWriter{}
		failed := 0
		fw := &frameWriter{w: w, onFail: func() { failed++ }}

		Expect(fw.token("a")).To(HaveOccurred())
		Expect(fw.done()).To(HaveOccurred())
		Expect(w.writes).To(Equal(1))
		Expect(failed).To(Equal(1))
	})

	It("writes frames in order", func() {
		var b strings.Builder
		fw := &frameWriter{w: &b}
		Expect(fw.token("x")).To(Succeed())
		Expect(fw.fail("boom")).To(Succeed())
		Expect(b.String()).To(Equal("event: token\ndata: x\n\nevent: error\ndata: boom\n\n"))
	})

	It("logs an error frame the client never received", func() {
		var buf bytes.Buffer
		fw := &frameWriter{w: &failingWriter{}}

		abort(logger.New(logger.WithWriter(&buf)), fw, "completion failed")

		Expect(fw.err).To(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("client went away before error frame"))
		Expect(buf.String()).To(ContainSubstring("completion failed"))
		Expect(buf.String()).To(ContainSubstring("closed pipe"))
	})

	It("logs nothing when the error frame is written", func() {
		var (
			buf bytes.Buffer
			b   strings.Builder
		)

		abort(logger.New(logger.WithWriter(&buf)), &frameWriter{w: &b}, "completion failed")

		Expect(b.String()).To(Equal("event: error\ndata: completion failed\n\n"))
		Expect(buf.Len()).To(BeZero())
	})
})

var _ = Describe("pacer", func() {
	DescribeTable("limitFor",
		func(in float64, unlimited bool) {
			lim := limitFor(in)
			if unlimited {
				Expect(lim).To(Equal(rate.Inf))
			} else {
				Expect(float64(lim)).To(Equal(in))
			}
		},
		Entry("zero", 0.0, true),
		Entry("negative", -1.0, true),
		Entry("positive", 5.0, false),
	)
})
