// Package sse turns a raw chat-completions response body into stream events.
// It handles the single OpenAI-style line protocol: every event is a
// "data: " line carrying a JSON chunk, and "data: [DONE]" ends the stream.
//
// The pipeline has three parts. A Decoder reassembles complete lines from
// arbitrary network chunks, a Parser classifies each line, and a Reader glues
// both to an io.Reader, optionally teeing the raw bytes elsewhere.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
package sse

// EventKind classifies a parsed line.
type EventKind int

const (
	// EventIgnored is any line that carries no text: blank lines, comments,
	// unknown fields, malformed frames, and chunks without delta content.
	EventIgnored EventKind = iota

	// EventDelta carries one fragment of assistant text.
	EventDelta

	// EventEnd is the termination marker. Consumers stop reading once they
	// see it, whether or not the body has more bytes.
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventEnd:
		return "end"
	default:
		return "ignored"
	}
}

// Event is the result of parsing one line of the response body.
type Event struct {
	Kind EventKind

	// Text is the delta content. It is only set for EventDelta.
	Text string
}
