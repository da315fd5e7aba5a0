package sse

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const scratchSize = 4096

// Decoder incrementally decodes UTF-8 bytes and splits them into lines.
//
// Chunks may end in the middle of a multi-byte character or in the middle of
// a line. The undecoded tail bytes and the unterminated text tail are both
// carried into the next Feed, so a character or line split across chunks is
// reassembled exactly. Invalid byte sequences decode to U+FFFD.
//
// There is no bound on the carry-over: a single line that never terminates
// grows it without limit.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	utf8    transform.Transformer
	pending []byte
	carry   string
	scratch []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		utf8:    unicode.UTF8.NewDecoder(),
		scratch: make([]byte, scratchSize),
	}
}

// Feed decodes chunk and returns every line it completes, without the
// terminating "\n". Text after the last "\n" is held until the next Feed or
// Finish.
func (d *Decoder) Feed(chunk []byte) []string {
	text := d.carry + d.decode(chunk, false)

	lines := strings.Split(text, "\n")
	d.carry = lines[len(lines)-1]

	return lines[:len(lines)-1]
}

// Finish flushes the decoder. Undecodable trailing bytes become U+FFFD and
// the carry-over is returned as a final line when it is non-empty. The
// Decoder is empty afterwards and may be reused.
func (d *Decoder) Finish() (string, bool) {
	line := d.carry + d.decode(nil, true)
	d.carry = ""
	d.utf8.Reset()

	return line, line != ""
}

// Buffered reports how many bytes of input are held back, counting both the
// undecoded tail and the text carry-over.
func (d *Decoder) Buffered() int {
	return len(d.pending) + len(d.carry)
}

func (d *Decoder) decode(chunk []byte, atEOF bool) string {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}

	var out strings.Builder
	for {
		nDst, nSrc, err := d.utf8.Transform(d.scratch, src, atEOF)
		out.Write(d.scratch[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
			return out.String()
		case errors.Is(err, transform.ErrShortDst):
			continue
		case errors.Is(err, transform.ErrShortSrc):
			// A character is split at the chunk boundary. Keep its leading
			// bytes until the rest arrives.
			d.pending = append([]byte(nil), src...)
			return out.String()
		default:
			out.WriteRune(utf8.RuneError)
			return out.String()
		}
	}
}
