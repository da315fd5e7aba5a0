package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

const (
	// DataPrefix starts every line that carries a JSON chunk.
	DataPrefix = "data: "

	// DoneMarker is the full line that terminates a stream.
	DoneMarker = "data: [DONE]"

	maxLoggedFrame = 256
)

// FrameParseError describes a data line whose payload is not a valid chunk.
// The parser logs it and carries on; it never ends a stream.
type FrameParseError struct {
	Payload string
	Err     error
}

func (e *FrameParseError) Error() string {
	return fmt.Sprintf("malformed frame %q: %v", utils.Truncate(e.Payload, maxLoggedFrame), e.Err)
}

func (e *FrameParseError) Unwrap() error {
	return e.Err
}

// Parser classifies response lines. It holds no per-stream state and may be
// shared between streams.
type Parser struct {
	logger *slog.Logger
}

// NewParser returns a Parser that reports dropped frames to log at debug
// level. A nil log discards them.
func NewParser(log *slog.Logger) *Parser {
	if log == nil {
		log = logger.Nop()
	}
	return &Parser{logger: log}
}

// Parse turns one line into an Event. It never fails: anything that is not
// a delta or the termination marker is EventIgnored.
func (p *Parser) Parse(line string) Event {
	ev, err := ParseLine(line)
	if err != nil {
		p.logger.Debug("ignoring malformed frame", "error", err)
	}
	return ev
}

// ParseLine is Parse without logging. The error is a *FrameParseError when a
// data line carries invalid JSON; the returned Event is EventIgnored then.
func ParseLine(line string) (Event, error) {
	trimmed := strings.TrimSpace(line)

	if strings.EqualFold(trimmed, DoneMarker) {
		return Event{Kind: EventEnd}, nil
	}

	payload, ok := strings.CutPrefix(trimmed, DataPrefix)
	if !ok {
		return Event{Kind: EventIgnored}, nil
	}
	payload = strings.TrimSpace(payload)

	var chunk llm.ChatCompletionChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return Event{Kind: EventIgnored}, &FrameParseError{Payload: payload, Err: err}
	}

	text := chunk.DeltaContent()
	if text == "" {
		return Event{Kind: EventIgnored}, nil
	}

	return Event{Kind: EventDelta, Text: text}, nil
}
