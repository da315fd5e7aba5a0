package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/llm"
)

const (
	exitCommand    = "/exit"
	historyCommand = "/history"
)

// plainRenderer prints the conversation line by line. Assistant replies are
// written as they grow by diffing each snapshot against what has already
// been printed.
type plainRenderer struct {
	ctrl *chat.Controller
	in   io.Reader
	out  io.Writer

	// echo prints user messages, for input that the terminal did not
	// already show (pipes, files).
	echo bool

	mu      sync.Mutex
	next    int // index of the first message not completely printed
	written int // bytes of Messages[next] already printed
}

func newPlainRenderer(ctrl *chat.Controller, in io.Reader, out io.Writer, echo bool) *plainRenderer {
	return &plainRenderer{
		ctrl: ctrl,
		in:   in,
		out:  out,
		echo: echo,
	}
}

// run reads lines until EOF, /exit, or ctx is cancelled. Each accepted
// submission blocks until its reply has finished streaming.
func (r *plainRenderer) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := r.ctrl.Subscribe(r.render)
	defer unsubscribe()

	snap := r.ctrl.Snapshot()
	printBanner(r.out, snap)
	r.render(snap)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		r.prompt()

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(r.out)
			select {
			case err := <-scanErr:
				if err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
			default:
			}
			return nil
		}

		input := strings.TrimSpace(line)
		switch {
		case input == "":
			continue
		case input == exitCommand:
			return nil
		case isHistoryCommand(input):
			r.setHistoryWindow(input)
			continue
		}

		r.ctrl.OnInputChange(input)
		if !r.ctrl.Submit() {
			r.printf("  %s %s\n", cliui.WarnStyle.Render("!"), "A reply is still streaming.")
			continue
		}

		start := time.Now()
		if err := r.ctrl.Wait(ctx); err != nil {
			r.ctrl.Abort()
			_ = r.ctrl.Wait(context.Background())
			r.render(r.ctrl.Snapshot())
			return nil
		}

		// Observers may still be delivering the final snapshot; render the
		// current one so the reply is complete before the next prompt.
		r.render(r.ctrl.Snapshot())
		r.printf("  %s\n\n", cliui.DimStyle.Render(cliui.FormatDuration(time.Since(start))))
	}
}

// render prints whatever part of snap has not been printed yet. It is
// safe to call with stale snapshots.
func (r *plainRenderer) render(snap conversation.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.next < len(snap.Messages) {
		msg := snap.Messages[r.next]
		last := r.next == len(snap.Messages)-1

		if len(msg.Content) < r.written {
			return
		}

		if msg.Role == llm.RoleUser {
			if r.echo {
				fmt.Fprintf(r.out, "%s%s\n", cliui.UserPrompt, msg.Content)
			}
			r.next++
			r.written = 0
			continue
		}

		if r.written == 0 {
			fmt.Fprint(r.out, cliui.AssistantPrompt)
		}
		fmt.Fprint(r.out, msg.Content[r.written:])
		r.written = len(msg.Content)

		if last && snap.IsStreaming {
			return
		}

		fmt.Fprint(r.out, "\n\n")
		r.next++
		r.written = 0
	}
}

func (r *plainRenderer) prompt() {
	if r.echo {
		return
	}
	r.printf("%s", cliui.UserPrompt)
}

func (r *plainRenderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *plainRenderer) setHistoryWindow(input string) {
	n, err := parseHistoryCommand(input)
	if err != nil {
		r.printf("  %s %v\n\n", cliui.FailMark, err)
		return
	}

	r.ctrl.SetHistoryWindow(n)
	r.printf("  %s History window set to %d messages\n\n",
		cliui.SuccessMark, r.ctrl.Snapshot().HistoryWindow)
}

func isHistoryCommand(input string) bool {
	return input == historyCommand || strings.HasPrefix(input, historyCommand+" ")
}

// parseHistoryCommand reads N from "/history N".
func parseHistoryCommand(input string) (int, error) {
	arg := strings.TrimSpace(strings.TrimPrefix(input, historyCommand))
	if arg == "" {
		return 0, fmt.Errorf("usage: %s N", historyCommand)
	}

	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid history window %q: must be a number", arg)
	}
	return n, nil
}

// interruptContext returns a context that is cancelled by the first
// interrupt received while nothing is streaming. An interrupt during a
// reply aborts the reply instead.
func interruptContext(parent context.Context, ctrl *chat.Controller) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if !ctrl.Abort() {
					cancel()
					return
				}
			}
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}
