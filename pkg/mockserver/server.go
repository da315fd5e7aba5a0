package mockserver

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

const (
	// CompletionsPath is the route completions are served on.
	CompletionsPath = "/v1/chat/completions"

	defaultModel = "mock-1"
)

// Server is a mock chat completions server.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new mock server.
func NewServer(config Config, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if config.Responder == nil {
		config.Responder = EchoResponder
	}
	if config.Model == "" {
		config.Model = defaultModel
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		logger: log,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Post(CompletionsPath, s.handleCompletions)

	return s
}

// Run starts the mock server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting mock completions server",
		"listen", s.config.ListenAddr,
		"auth", s.config.APIKey != "",
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting mock completions server", "listen", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown gracefully shuts down the mock server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying fiber app, mainly for in-memory tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleCompletions(c *fiber.Ctx) error {
	if s.config.APIKey != "" && c.Get(fiber.HeaderAuthorization) != "Bearer "+s.config.APIKey {
		return c.Status(fiber.StatusUnauthorized).JSON(
			llm.NewErrorResponse("invalid_request_error", "Incorrect API key provided."),
		)
	}

	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(
			llm.NewErrorResponse("invalid_request_error", "request body is not valid JSON"),
		)
	}
	if len(req.Messages) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(
			llm.NewErrorResponse("invalid_request_error", "messages must not be empty"),
		)
	}
	if !req.Stream {
		return c.Status(fiber.StatusBadRequest).JSON(
			llm.NewErrorResponse("invalid_request_error", "only streaming requests are supported"),
		)
	}

	model := req.Model
	if model == "" {
		model = s.config.Model
	}

	stream, err := s.buildStream(model, s.config.Responder(req.Messages))
	if err != nil {
		s.logger.Error("failed to build stream", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(
			llm.NewErrorResponse("server_error", "internal error"),
		)
	}

	s.logger.Debug("streaming mock reply",
		"request_id", c.Get("X-Request-ID"),
		"model", model,
		"messages", len(req.Messages),
		"bytes", len(stream),
	)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// io.Pipe gives backpressure: each Write blocks until fasthttp has
	// consumed it and flushed the chunk to the socket.
	pr, pw := io.Pipe()
	go s.writeFragments(pw, stream)

	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (s *Server) writeFragments(pw *io.PipeWriter, stream []string) {
	for i, frag := range fragment(stream, s.config.FragmentSize) {
		if i > 0 && s.config.Delay > 0 {
			time.Sleep(s.config.Delay)
		}
		if _, err := io.WriteString(pw, frag); err != nil {
			s.logger.Debug("client went away mid-stream", "error", err)
			return
		}
	}
	pw.Close()
}

// buildStream renders reply as SSE frames: a role chunk, one chunk per word,
// a finish chunk, and the termination marker.
func (s *Server) buildStream(model, reply string) ([]string, error) {
	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	chunks := make([]llm.ChatCompletionChunk, 0, 8)

	first := llm.NewDeltaChunk(id, model, created, "")
	first.Choices[0].Delta.Role = llm.RoleAssistant
	chunks = append(chunks, first)

	for _, word := range splitWords(reply) {
		chunks = append(chunks, llm.NewDeltaChunk(id, model, created, word))
	}

	stop := "stop"
	last := llm.NewDeltaChunk(id, model, created, "")
	last.Choices[0].Delta = llm.ChunkDelta{}
	last.Choices[0].FinishReason = &stop
	chunks = append(chunks, last)

	frames := make([]string, 0, len(chunks)+1)
	for _, chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			return nil, fmt.Errorf("encoding chunk: %w", err)
		}
		frames = append(frames, "data: "+string(data)+"\n\n")
	}
	frames = append(frames, "data: [DONE]\n\n")

	return frames, nil
}

// fragment regroups frames into writes of at most size bytes. A size of
// zero or less leaves the frames as they are.
func fragment(frames []string, size int) []string {
	if size <= 0 {
		return frames
	}

	raw := strings.Join(frames, "")
	out := make([]string, 0, len(raw)/size+1)
	for len(raw) > size {
		out = append(out, raw[:size])
		raw = raw[size:]
	}
	if raw != "" {
		out = append(out, raw)
	}
	return out
}
