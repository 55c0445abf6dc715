package sse

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	frameTerminator = []byte("\n\n")
	crlf            = []byte("\r\n")
	lf              = []byte("\n")
)

// Decoder incrementally turns raw stream chunks into Events.
//
// ┌────────────┐   ┌──────────────┐   ┌──────────────┐   ┌──────────────┐
// │ Feed(chunk)│──▶│ UTF-8 decode │──▶│ \r\n → \n    │──▶│ frame buffer │
// └────────────┘   └──────────────┘   └──────────────┘   └──────────────┘
// │
// ▼
// ┌──────────────┐
// │ Next() Event │
// └──────────────┘
//
// The UTF-8 decoder is owned for the lifetime of the Decoder and carries
// incomplete multi-byte sequences from one chunk to the next, so a rune split
// across a chunk boundary decodes correctly. The frame terminator search runs
// over the cumulative buffer, never per chunk.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	text    transform.Transformer
	scratch []byte

	// carry holds undecoded bytes from the tail of the previous chunk.
	carry []byte

	// heldCR is set when a chunk ended in '\r' and we do not yet know
	// whether a '\n' follows in the next chunk.
	heldCR bool

	// buf is normalized text not yet split into frames.
	buf []byte

	// scanned is how much of buf has already been searched for a terminator.
	scanned int

	closed bool
}

// NewDecoder returns an empty Decoder. A leading UTF-8 byte order mark in
// the stream is stripped.
func NewDecoder() *Decoder {
	return &Decoder{
		text:    unicode.UTF8BOM.NewDecoder(),
		scratch: make([]byte, 4096),
	}
}

// Feed appends a chunk of raw bytes to the decoder. Call Next afterwards to
// drain any frames the chunk completed. Feed after Close is a no-op.
func (d *Decoder) Feed(chunk []byte) {
	if d.closed || len(chunk) == 0 {
		return
	}
	d.appendNormalized(d.decode(chunk, false))
}

// Close flushes the text decoder at end of stream. Frames completed by the
// flush are still returned by Next; an unterminated trailing frame is never
// returned.
func (d *Decoder) Close() {
	if d.closed {
		return
	}
	d.appendNormalized(d.decode(nil, true))
	if d.heldCR {
		d.buf = append(d.buf, '\r')
		d.heldCR = false
	}
	d.closed = true
}

// Next returns the next complete, non-blank frame. The boolean is false when
// no complete frame is buffered yet. Blank and whitespace-only frames
// (keep-alives) are consumed silently.
func (d *Decoder) Next() (Event, bool) {
	for {
		from := max(d.scanned-1, 0)
		idx := bytes.Index(d.buf[from:], frameTerminator)
		if idx < 0 {
			d.scanned = len(d.buf)
			return Event{}, false
		}

		end := from + idx
		raw := string(d.buf[:end])
		d.buf = append(d.buf[:0], d.buf[end+len(frameTerminator):]...)
		d.scanned = 0

		if strings.TrimSpace(raw) == "" {
			continue
		}

		return parseFrame(raw), true
	}
}

// Buffered reports how many bytes are held that do not yet form a complete
// frame, including undecoded carry-over.
func (d *Decoder) Buffered() int {
	n := len(d.buf) + len(d.carry)
	if d.heldCR {
		n++
	}
	return n
}

// decode runs the chunk through the owned UTF-8 transformer. Bytes that end
// mid-rune are kept in carry for the next call.
func (d *Decoder) decode(chunk []byte, atEOF bool) []byte {
	src := chunk
	if len(d.carry) > 0 {
		src = append(d.carry, chunk...)
		d.carry = nil
	}

	var out []byte
	for {
		nDst, nSrc, err := d.text.Transform(d.scratch, src, atEOF)
		out = append(out, d.scratch[:nDst]...)
		src = src[nSrc:]

		switch err {
		case transform.ErrShortDst:
			continue
		case transform.ErrShortSrc:
			d.carry = append([]byte(nil), src...)
		}

		return out
	}
}

// appendNormalized converts "\r\n" to "\n" and appends to the frame buffer.
func (d *Decoder) appendNormalized(text []byte) {
	if len(text) == 0 {
		return
	}

	if d.heldCR {
		d.heldCR = false
		if text[0] != '\n' {
			d.buf = append(d.buf, '\r')
		}
	}

	if text[len(text)-1] == '\r' {
		d.heldCR = true
		text = text[:len(text)-1]
	}

	d.buf = append(d.buf, bytes.ReplaceAll(text, crlf, lf)...)
}

// parseFrame parses one blank-line delimited frame.
//
// Lines beginning with "event:" set the type (trimmed). Lines beginning with
// "data:" contribute their remainder, with a single leading space stripped,
// and multiple data lines are joined with "\n". Lines beginning with "id:"
// set the ID. Everything else, including ":" comment lines, is ignored.
func parseFrame(raw string) Event {
	ev := Event{Type: DefaultEventType}
	var data []string

	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			if name := strings.TrimSpace(strings.TrimPrefix(line, "event:")); name != "" {
				ev.Type = name
			}
		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(value, " "))
		case strings.HasPrefix(line, "id:"):
			ev.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		}
	}

	ev.Data = strings.Join(data, "\n")
	return ev
}
