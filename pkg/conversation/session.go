// Package conversation holds the chat state machine.
//
// A Session owns the message log and at most one in-flight reply stream.
// It moves Idle -> Submitting -> Streaming -> Idle; success, failure, and
// abort all return it to Idle so the user can submit again. Every change is
// published to observers as a Snapshot.
package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/sse"
)

const (
	// ErrorMessage is appended when a reply fails.
	ErrorMessage = "An error occurred."

	// CancelledMessage is appended when the user aborts a reply.
	CancelledMessage = "The request was cancelled."

	// DefaultHistoryWindow is used when Config.HistoryWindow is unset.
	DefaultHistoryWindow = 5
)

// Opener opens a reply stream for the given history. Cancelling ctx must
// unblock reads on the returned body.
type Opener interface {
	Open(ctx context.Context, history []llm.Message) (io.ReadCloser, error)
}

// Config configures a Session.
type Config struct {
	// Opener is required.
	Opener Opener

	// Model is reported in snapshots for display. It does not select the
	// model; the Opener does.
	Model string

	// HistoryWindow is the initial window. Zero means DefaultHistoryWindow;
	// negative values clamp to 1.
	HistoryWindow int

	// Greeting, when non-empty, seeds the log with an assistant message.
	Greeting string

	// RequestTimeout bounds each reply. Zero disables it.
	RequestTimeout time.Duration

	// Parser classifies stream lines. Nil uses a parser logging to Logger.
	Parser *sse.Parser

	// Tee receives a copy of every raw byte read from reply streams.
	Tee io.Writer

	Logger *slog.Logger
}

// Session is the conversation state machine. It is safe for concurrent use.
type Session struct {
	opener  Opener
	parser  *sse.Parser
	tee     io.Writer
	timeout time.Duration
	model   string
	logger  *slog.Logger

	mu       sync.Mutex
	messages []llm.Message
	pending  string
	window   int
	state    State
	cancel   context.CancelFunc
	gen      uint64
	idle     chan struct{}

	observers  map[uint64]Observer
	order      []uint64
	nextObsID  uint64
	publishing sync.Mutex
}

// NewSession creates an idle Session.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Opener == nil {
		return nil, errors.New("opener is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	parser := cfg.Parser
	if parser == nil {
		parser = sse.NewParser(log)
	}

	window := cfg.HistoryWindow
	if window == 0 {
		window = DefaultHistoryWindow
	}

	idle := make(chan struct{})
	close(idle)

	s := &Session{
		opener:    cfg.Opener,
		parser:    parser,
		tee:       cfg.Tee,
		timeout:   cfg.RequestTimeout,
		model:     cfg.Model,
		logger:    log,
		window:    clampWindow(window),
		state:     StateIdle,
		idle:      idle,
		observers: make(map[uint64]Observer),
	}

	if cfg.Greeting != "" {
		s.messages = append(s.messages, llm.NewAssistantMessage(cfg.Greeting))
	}

	return s, nil
}

// Submit appends text as a user message and starts streaming the reply.
// It is a no-op returning false when text is blank or a reply is already
// in flight. The pending input is cleared only when the submission is
// accepted.
func (s *Session) Submit(text string) bool {
	s.mu.Lock()
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return false
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		s.logger.Debug("submit rejected while a reply is in flight")
		return false
	}

	s.messages = append(s.messages, llm.NewUserMessage(text))
	s.pending = ""
	s.setStateLocked(StateSubmitting)

	window := s.window
	history := tail(s.messages, window)

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.idle = make(chan struct{})
	s.setStateLocked(StateStreaming)
	s.mu.Unlock()

	s.logger.Info("submitting message",
		"generation", gen,
		"history", len(history),
		"window", window,
	)
	s.notify()

	go s.consume(ctx, gen, history)

	return true
}

// Abort cancels the in-flight reply. It is a no-op returning false unless
// the Session is streaming. Once Abort returns, no further text from the
// aborted stream is applied.
func (s *Session) Abort() bool {
	s.mu.Lock()
	if s.state != StateStreaming {
		s.mu.Unlock()
		return false
	}

	gen := s.gen
	s.cancel()
	// Bumping the generation makes the consume loop of the aborted stream
	// stale, so anything it reads after this point is dropped.
	s.gen++
	s.messages = append(s.messages, llm.NewAssistantMessage(CancelledMessage))
	s.finishLocked()
	s.mu.Unlock()

	s.logger.Info("reply aborted", "generation", gen)
	s.notify()

	return true
}

// SetHistoryWindow sets how many trailing messages future submissions send.
// Values below 1 clamp to 1. The existing log is never truncated.
func (s *Session) SetHistoryWindow(n int) {
	n = clampWindow(n)

	s.mu.Lock()
	if s.window == n {
		s.mu.Unlock()
		return
	}
	s.window = n
	s.mu.Unlock()

	s.logger.Debug("history window changed", "window", n)
	s.notify()
}

// HistoryWindow returns the current history window.
func (s *Session) HistoryWindow() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// SetInput records the text the user is composing.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	if s.pending == text {
		s.mu.Unlock()
		return
	}
	s.pending = text
	s.mu.Unlock()

	s.notify()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive a Snapshot after every change and
// returns a function that removes it.
func (s *Session) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
		for i, o := range s.order {
			if o == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

// Wait blocks until the Session is idle or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) consume(ctx context.Context, gen uint64, history []llm.Message) {
	start := time.Now()
	log := s.logger.With("generation", gen)

	body, err := s.opener.Open(ctx, history)
	if err != nil {
		s.fail(gen, err)
		return
	}
	defer body.Close()

	var opts []sse.ReaderOption
	if s.tee != nil {
		opts = append(opts, sse.WithTee(s.tee))
	}
	r := sse.NewReader(body, s.parser, opts...)

	deltas := 0
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			log.Debug("stream exhausted without end marker")
			break
		}
		if err != nil {
			s.fail(gen, err)
			return
		}

		if ev.Kind == sse.EventEnd {
			break
		}
		if !s.applyDelta(gen, ev.Text) {
			log.Debug("dropping delta from stale stream")
			return
		}
		deltas++
	}

	if s.complete(gen) {
		log.Info("reply complete",
			"deltas", deltas,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
}

// applyDelta appends text to the trailing assistant message, starting one if
// needed. It returns false when gen no longer owns the Session.
func (s *Session) applyDelta(gen uint64, text string) bool {
	s.mu.Lock()
	if gen != s.gen || s.state != StateStreaming {
		s.mu.Unlock()
		return false
	}

	last := len(s.messages) - 1
	if last < 0 || !s.messages[last].IsAssistant() {
		s.messages = append(s.messages, llm.NewAssistantMessage(""))
		last++
	}
	s.messages[last].Content += text
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *Session) complete(gen uint64) bool {
	s.mu.Lock()
	if gen != s.gen || s.state != StateStreaming {
		s.mu.Unlock()
		return false
	}
	s.finishLocked()
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateStreaming {
		s.mu.Unlock()
		s.logger.Debug("ignoring error from stale stream", "generation", gen, "error", err)
		return
	}
	s.messages = append(s.messages, llm.NewAssistantMessage(ErrorMessage))
	s.finishLocked()
	s.mu.Unlock()

	s.logger.Error("reply failed", "generation", gen, "error", err)
	s.notify()
}

// finishLocked returns the Session to idle. s.mu must be held.
func (s *Session) finishLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.setStateLocked(StateIdle)
	close(s.idle)
}

func (s *Session) setStateLocked(to State) {
	if s.state == to {
		return
	}
	s.logger.Debug("conversation state changed", "from", s.state, "to", to)
	s.state = to
}

func (s *Session) snapshotLocked() Snapshot {
	msgs := make([]llm.Message, len(s.messages))
	copy(msgs, s.messages)

	return Snapshot{
		Messages:      msgs,
		PendingInput:  s.pending,
		IsStreaming:   s.state == StateStreaming,
		HistoryWindow: s.window,
		State:         s.state,
		Model:         s.model,
	}
}

// notify delivers the latest snapshot to every observer. Deliveries are
// serialized, and each one reads the state at delivery time, so observers
// never see an older snapshot after a newer one.
func (s *Session) notify() {
	s.publishing.Lock()
	defer s.publishing.Unlock()

	s.mu.Lock()
	if len(s.order) == 0 {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	observers := make([]Observer, 0, len(s.order))
	for _, id := range s.order {
		observers = append(observers, s.observers[id])
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func clampWindow(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// tail copies the last n messages of msgs.
func tail(msgs []llm.Message, n int) []llm.Message {
	if n > len(msgs) {
		n = len(msgs)
	}
	out := make([]llm.Message, n)
	copy(out, msgs[len(msgs)-n:])
	return out
}
