package api

import (
	"io"
	"strings"
)

const (
	eventToken = "token"
	eventDone  = "done"
	eventError = "error"
)

// lineBreaks folds every line terminator of the wire format into "\n".
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// frameWriter writes text/event-stream frames and remembers the first
// write error. Once a write fails every later write is skipped and the
// stream's context is cancelled, which stops the generator.
type frameWriter struct {
	w      io.Writer
	onFail func()
	err    error
}

func (f *frameWriter) token(text string) error {
	return f.frame(eventToken, text)
}

func (f *frameWriter) done() error {
	return f.frame(eventDone, "")
}

func (f *frameWriter) fail(message string) error {
	return f.frame(eventError, message)
}

func (f *frameWriter) frame(event, data string) error {
	if f.err != nil {
		return f.err
	}

	if _, err := io.WriteString(f.w, encodeFrame(event, data)); err != nil {
		f.err = err
		if f.onFail != nil {
			f.onFail()
		}
	}
	return f.err
}

// encodeFrame renders one frame. Data containing line breaks is split over
// several data lines, which the reader joins back with "\n".
func encodeFrame(event, data string) string {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')

	if data == "" {
		b.WriteString("data:\n")
	} else {
		for _, line := range strings.Split(lineBreaks.Replace(data), "\n") {
			b.WriteString("data: ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	b.WriteByte('\n')
	return b.String()
}
