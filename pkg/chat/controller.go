// Package chat exposes a conversation to a renderer.
//
// The Controller forwards renderer actions to the conversation and hands
// back read-only snapshots. It holds no state of its own.
package chat

import (
	"context"

	"github.com/papercomputeco/chatstream/pkg/conversation"
)

// Conversation is the state machine a Controller drives.
// *conversation.Session implements it.
type Conversation interface {
	Submit(text string) bool
	Abort() bool
	SetHistoryWindow(n int)
	SetInput(text string)
	Snapshot() conversation.Snapshot
	Subscribe(fn conversation.Observer) func()
	Wait(ctx context.Context) error
}

// Controller is the renderer-facing surface of a conversation.
type Controller struct {
	conv Conversation
}

// NewController returns a Controller for conv.
func NewController(conv Conversation) *Controller {
	return &Controller{conv: conv}
}

// Submit sends the pending input, as a form submit would. It reports
// whether the submission was accepted.
func (c *Controller) Submit() bool {
	return c.conv.Submit(c.conv.Snapshot().PendingInput)
}

// OnInputChange records the text being composed.
func (c *Controller) OnInputChange(text string) {
	c.conv.SetInput(text)
}

// SetHistoryWindow sets how many trailing messages future submissions send.
func (c *Controller) SetHistoryWindow(n int) {
	c.conv.SetHistoryWindow(n)
}

// Abort cancels the in-flight reply, if any.
func (c *Controller) Abort() bool {
	return c.conv.Abort()
}

// Snapshot returns the current conversation state.
func (c *Controller) Snapshot() conversation.Snapshot {
	return c.conv.Snapshot()
}

// Subscribe registers fn for state changes and returns its remover.
func (c *Controller) Subscribe(fn conversation.Observer) func() {
	return c.conv.Subscribe(fn)
}

// Wait blocks until no reply is in flight or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	return c.conv.Wait(ctx)
}
