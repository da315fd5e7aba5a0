package conversation

import "github.com/papercomputeco/chatstream/pkg/llm"

// State is the position of a Session in its submit cycle.
type State int

const (
	// StateIdle accepts submissions.
	StateIdle State = iota

	// StateSubmitting is held while the user message is appended and the
	// outbound history is computed.
	StateSubmitting

	// StateStreaming means a reply is being read. Exactly one stream can be
	// active, and only in this state.
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of a Session. It shares nothing with the
// Session and may be kept or modified freely.
type Snapshot struct {
	// Messages is the full conversation log, oldest first.
	Messages []llm.Message

	// PendingInput is the text the user is composing.
	PendingInput string

	// IsStreaming is true while a reply is being read.
	IsStreaming bool

	// HistoryWindow is how many trailing messages the next submission sends.
	HistoryWindow int

	State State

	// Model is the model replies come from, for display.
	Model string
}

// LastMessage returns the trailing message and whether there is one.
func (s Snapshot) LastMessage() (llm.Message, bool) {
	if len(s.Messages) == 0 {
		return llm.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Observer receives a Snapshot after every change. Observers run on the
// goroutine that made the change and must not block or call back into the
// Session synchronously.
type Observer func(Snapshot)
