package sse

import (
	"errors"
	"fmt"
	"io"
)

const readSize = 4096

// Reader yields delta and end events from a response body.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌──────────────────────┐
// │     Decoder      │──▶│ tee io.Writer (opt.) │
// └──────────────────┘   └──────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Parser      │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │ Event (delta|end)│
// └──────────────────┘
//
// The tee receives the exact bytes read from the source, which makes it
// useful for dumping a raw stream to disk while it is consumed.
type Reader struct {
	src    io.Reader
	tee    io.Writer
	dec    *Decoder
	parser *Parser

	buf   []byte
	lines []string
	eof   bool
	done  bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithTee copies every byte read from the source to w.
func WithTee(w io.Writer) ReaderOption {
	return func(r *Reader) {
		r.tee = w
	}
}

// NewReader returns a Reader over src. A nil parser logs nothing.
func NewReader(src io.Reader, parser *Parser, opts ...ReaderOption) *Reader {
	if parser == nil {
		parser = NewParser(nil)
	}

	r := &Reader{
		src:    src,
		dec:    NewDecoder(),
		parser: parser,
		buf:    make([]byte, readSize),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Next blocks until the next EventDelta or EventEnd is available. Ignored
// lines are skipped. After EventEnd, or once the source is exhausted, Next
// returns io.EOF without reading further. Read errors from the source are
// returned as-is.
func (r *Reader) Next() (Event, error) {
	for {
		if r.done {
			return Event{}, io.EOF
		}

		for len(r.lines) > 0 {
			line := r.lines[0]
			r.lines = r.lines[1:]

			ev := r.parser.Parse(line)
			switch ev.Kind {
			case EventEnd:
				r.finish()
				return ev, nil
			case EventDelta:
				return ev, nil
			}
		}

		if r.eof {
			r.done = true
			if line, ok := r.dec.Finish(); ok {
				if ev := r.parser.Parse(line); ev.Kind != EventIgnored {
					return ev, nil
				}
			}
			return Event{}, io.EOF
		}

		if err := r.fill(); err != nil {
			return Event{}, err
		}
	}
}

func (r *Reader) fill() error {
	n, err := r.src.Read(r.buf)
	if n > 0 {
		if r.tee != nil {
			if _, werr := r.tee.Write(r.buf[:n]); werr != nil {
				return fmt.Errorf("writing stream copy: %w", werr)
			}
		}
		r.lines = r.dec.Feed(r.buf[:n])
	}

	if errors.Is(err, io.EOF) {
		r.eof = true
		return nil
	}

	return err
}

func (r *Reader) finish() {
	r.done = true
	r.lines = nil
	r.dec.Finish()
}
