// Package mockcmder provides the mock command, a local OpenAI-compatible
// chat completions server for offline use.
package mockcmder

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/mockserver"
)

type mockCommander struct {
	listen       string
	apiKey       string
	model        string
	fragmentSize int
	delay        time.Duration
	debug        bool

	logger *slog.Logger
}

var mockFlags = config.FlagSet{
	config.FlagMockListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "mock.listen",
		Description: "Address for the mock server to listen on",
	},
}

const mockLongDesc string = `Run a local mock chat completions server.

The server speaks the same streaming protocol as the OpenAI chat completions
endpoint and echoes the last user message back word by word. Point the chat
command at it to try chatstream without an API key or network access:

  chatstream mock --api-key test
  OPENAI_API_KEY=test chatstream chat --endpoint http://127.0.0.1:8090/v1/chat/completions

--fragment-size splits the stream into writes of a few bytes regardless of
line or character boundaries, and --delay slows each write down, which is
useful for watching incremental rendering.`

const mockShortDesc string = "Run a local mock completions server"

func NewMockCmd() *cobra.Command {
	cmder := &mockCommander{}

	cmd := &cobra.Command{
		Use:   "mock",
		Short: mockShortDesc,
		Long:  mockLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, mockFlags, []string{config.FlagMockListen})
			cmder.listen = v.GetString("mock.listen")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, mockFlags, config.FlagMockListen, &cmder.listen)
	cmd.Flags().StringVar(&cmder.apiKey, "api-key", "", "Require this bearer token on completion requests")
	cmd.Flags().StringVar(&cmder.model, "model", "", "Model name reported when the request does not name one")
	cmd.Flags().IntVar(&cmder.fragmentSize, "fragment-size", 0, "Split the stream into writes of at most this many bytes (0 writes whole frames)")
	cmd.Flags().DurationVar(&cmder.delay, "delay", 50*time.Millisecond, "Pause between writes")

	return cmd
}

func (c *mockCommander) serverConfig() mockserver.Config {
	return mockserver.Config{
		ListenAddr:   c.listen,
		APIKey:       c.apiKey,
		Model:        c.model,
		FragmentSize: c.fragmentSize,
		Delay:        c.delay,
	}
}

func (c *mockCommander) run() error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))

	if c.fragmentSize < 0 {
		return fmt.Errorf("invalid fragment size %d: must not be negative", c.fragmentSize)
	}

	server := mockserver.NewServer(c.serverConfig(), c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("mock server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}
