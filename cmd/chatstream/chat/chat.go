// Package chatcmder provides the chat command: an interactive, streaming
// chat against an OpenAI-compatible chat completions endpoint.
package chatcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/credentials"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/transport"
)

// logFileName is the session log written inside the .chatstream/ directory.
const logFileName = "chatstream.log"

type chatCommander struct {
	endpoint       string
	model          string
	historyWindow  uint
	greeting       string
	requestTimeout string
	plain          bool
	dump           string
	debug          bool
	configDir      string

	viper  *viper.Viper
	logger *slog.Logger
}

var chatFlags = config.FlagSet{
	config.FlagEndpoint: {
		Name:        "endpoint",
		Shorthand:   "e",
		ViperKey:    "client.endpoint",
		Description: "Chat completions endpoint URL",
	},
	config.FlagModel: {
		Name:        "model",
		Shorthand:   "m",
		ViperKey:    "client.model",
		Description: "Model identifier sent with every request",
	},
	config.FlagHistoryWindow: {
		Name:        "history-window",
		Shorthand:   "w",
		ViperKey:    "chat.history_window",
		Description: "Number of most recent messages sent with each request",
	},
	config.FlagGreeting: {
		Name:        "greeting",
		ViperKey:    "chat.greeting",
		Description: "Assistant greeting that opens the conversation (empty disables it)",
	},
	config.FlagRequestTimeout: {
		Name:        "request-timeout",
		ViperKey:    "chat.request_timeout",
		Description: "Upper bound on a single streamed reply, e.g. 2m (0s disables it)",
	},
}

var chatFlagKeys = []string{
	config.FlagEndpoint,
	config.FlagModel,
	config.FlagHistoryWindow,
	config.FlagGreeting,
	config.FlagRequestTimeout,
}

const chatLongDesc string = `Start an interactive chat session.

Each message is sent with the most recent part of the conversation (the
history window) and the reply is rendered as it streams in. Only one reply
streams at a time.

The API key is read from OPENAI_API_KEY, falling back to the key stored with
"chatstream auth openai".

In the terminal UI:
  enter              Send the message
  esc                Stop the reply that is streaming
  ctrl+up/ctrl+down  Widen or narrow the history window
  ctrl+c             Stop and quit

Typed commands (both modes):
  /history N         Set the history window to N messages
  /exit              Quit

Use --plain for a line-oriented session; it is also used automatically when
stdin is not a terminal. In plain mode Ctrl+C stops a streaming reply, and
quits when nothing is streaming.

Examples:
  chatstream chat
  chatstream chat --model gpt-4o-mini --history-window 10
  chatstream chat --endpoint http://127.0.0.1:8090/v1/chat/completions
  echo "hello" | chatstream chat --plain`

const chatShortDesc string = "Interactive streaming chat"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, chatFlags, chatFlagKeys)

			cmder.viper = v
			cmder.endpoint = v.GetString("client.endpoint")
			cmder.model = v.GetString("client.model")
			cmder.historyWindow = v.GetUint("chat.history_window")
			cmder.greeting = v.GetString("chat.greeting")
			cmder.requestTimeout = v.GetString("chat.request_timeout")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, chatFlags, config.FlagEndpoint, &cmder.endpoint)
	config.AddStringFlag(cmd, chatFlags, config.FlagModel, &cmder.model)
	config.AddUintFlag(cmd, chatFlags, config.FlagHistoryWindow, &cmder.historyWindow)
	config.AddStringFlag(cmd, chatFlags, config.FlagGreeting, &cmder.greeting)
	config.AddStringFlag(cmd, chatFlags, config.FlagRequestTimeout, &cmder.requestTimeout)
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Line-oriented output instead of the terminal UI")
	cmd.Flags().StringVar(&cmder.dump, "dump", "", "Append every raw reply stream to this file")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	plain := c.plain || !isTerminal(in)

	logFile, err := c.openLog()
	if err != nil {
		return err
	}
	defer logFile.Close()

	c.logger = c.newLogger(logFile, plain)

	timeout, err := config.ParseRequestTimeout(c.requestTimeout)
	if err != nil {
		return err
	}

	// Fail before drawing anything when no key is configured. The transport
	// resolves the key again on every request.
	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	resolver := credentials.NewResolver(credentials.DefaultProvider, mgr)
	if _, err := resolver.APIKey(); err != nil {
		return err
	}

	client, err := transport.New(transport.Config{
		Endpoint:    c.endpoint,
		Model:       c.model,
		Credentials: resolver,
		Logger:      c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}

	var tee io.Writer
	if c.dump != "" {
		dumpFile, err := os.OpenFile(c.dump, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening dump file: %w", err)
		}
		defer dumpFile.Close()
		tee = dumpFile
	}

	session, err := conversation.NewSession(conversation.Config{
		Opener:         client,
		Model:          client.Model(),
		HistoryWindow:  int(c.historyWindow),
		Greeting:       c.greeting,
		RequestTimeout: timeout,
		Tee:            tee,
		Logger:         c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}

	ctrl := chat.NewController(session)
	watchConfig(c.viper, ctrl, c.logger)

	c.logger.Info("chat session started",
		"endpoint", c.endpoint,
		"model", client.Model(),
		"credential_source", resolver.Source(),
		"plain", plain,
	)

	if plain {
		ctx, stop := interruptContext(ctx, ctrl)
		defer stop()
		return newPlainRenderer(ctrl, in, out, !isTerminal(in)).run(ctx)
	}

	return runTUI(ctx, ctrl)
}

// openLog opens the session log in the resolved .chatstream/ directory,
// creating ~/.chatstream/ when needed.
func (c *chatCommander) openLog() (*os.File, error) {
	target, err := dotdir.NewManager().EnsureTarget(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(target, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// newLogger writes JSON records to the session log. The terminal UI owns
// stdout, so only plain mode with --debug also logs to stderr.
func (c *chatCommander) newLogger(logFile io.Writer, plain bool) *slog.Logger {
	fileLogger := logger.New(
		logger.WithWriter(logFile),
		logger.WithJSON(true),
		logger.WithDebug(c.debug),
	)
	if !plain || !c.debug {
		return fileLogger
	}

	return logger.Multi(fileLogger, logger.New(
		logger.WithWriter(os.Stderr),
		logger.WithPretty(true),
		logger.WithDebug(true),
	))
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printBanner(w io.Writer, snap conversation.Snapshot) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s  %s %s\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(snap.Model),
		cliui.KeyStyle.Render("History:"),
		cliui.NameStyle.Render(fmt.Sprintf("%d messages", snap.HistoryWindow)),
	)
	fmt.Fprintf(w, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /history N sets the window, /exit or Ctrl+D quits."))
}
