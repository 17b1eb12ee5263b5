// Package llm provides the generation client backed by a local Ollama server.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"productrag/internal/domain"
	"productrag/internal/logger"
	"productrag/internal/port"
	"productrag/internal/telemetry"
)

var _ port.Generator = (*OllamaClient)(nil)

// Default configuration values.
const (
	DefaultHost        = "http://localhost:11434"
	DefaultModel       = "llama3:8b"
	DefaultTimeout     = 60 * time.Second
	DefaultPingTimeout = 5 * time.Second
	DefaultRestartWait = 3 * time.Second
)

// Config holds configuration for the Ollama client.
type Config struct {
	Host        string
	Model       string
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int

	// Timeout bounds one generation call. It is advisory: a model that is
	// still loading may keep the server busy after the client gives up.
	Timeout     time.Duration
	PingTimeout time.Duration

	// RestartCommand is run once when the server is unreachable.
	// Empty disables the restart attempt.
	RestartCommand []string
	RestartWait    time.Duration

	Logger *zap.Logger
}

// OllamaClient calls the Ollama chat API.
type OllamaClient struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	restartOnce sync.Once
	// startProcess is swapped in tests.
	startProcess func(name string, args ...string) error
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  options       `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type options struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

func NewOllamaClient(cfg Config) *OllamaClient {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = DefaultPingTimeout
	}
	if cfg.RestartWait <= 0 {
		cfg.RestartWait = DefaultRestartWait
	}

	return &OllamaClient{
		cfg:          cfg,
		client:       &http.Client{},
		logger:       logger.OrNop(cfg.Logger).With(zap.String("model", cfg.Model)),
		startProcess: startDetached,
	}
}

func (c *OllamaClient) ModelName() string {
	return c.cfg.Model
}

// Ping checks that the server answers /api/version.
func (c *OllamaClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Host+"/api/version", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLLMUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: /api/version returned status %d", domain.ErrLLMUnavailable, resp.StatusCode)
	}
	return nil
}

// ensureRunning pings the server and, the first time it is down, runs the
// restart command. Every caller that saw the server down pings once more.
func (c *OllamaClient) ensureRunning(ctx context.Context) error {
	err := c.Ping(ctx)
	if err == nil {
		return nil
	}
	if len(c.cfg.RestartCommand) == 0 {
		return err
	}

	restarted := false
	c.restartOnce.Do(func() {
		restarted = true
		c.logger.Warn("ollama server not responding, trying to start it",
			zap.Strings("command", c.cfg.RestartCommand), zap.Error(err))

		if startErr := c.startProcess(c.cfg.RestartCommand[0], c.cfg.RestartCommand[1:]...); startErr != nil {
			c.logger.Error("failed to start ollama server", zap.Error(startErr))
			return
		}

		select {
		case <-time.After(c.cfg.RestartWait):
		case <-ctx.Done():
		}
	})

	// Callers that waited on someone else's restart see the server as it
	// is now, not the ping error from before the restart.
	if err := c.Ping(ctx); err != nil {
		return err
	}
	if restarted {
		c.logger.Info("ollama server started")
	}
	return nil
}

// Generate sends prompt as the user turn with system as the system turn.
// Errors wrap domain.ErrLLMUnavailable or domain.ErrLLMTimeout.
func (c *OllamaClient) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "OllamaClient.Generate",
		attribute.String("model", c.cfg.Model),
		attribute.Int("max_tokens", req.MaxTokens))
	defer span.End()

	text, err := c.generate(ctx, req)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLLMTimeout):
		outcome = "timeout"
	case errors.Is(err, domain.ErrLLMUnavailable):
		outcome = "unavailable"
	default:
		outcome = "error"
	}
	telemetry.LLMRequestsTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		telemetry.AddSpanError(ctx, err)
		c.logger.Warn("generation failed", zap.String("reason", outcome), zap.Error(err))
		return "", err
	}
	return text, nil
}

func (c *OllamaClient) generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	if err := c.ensureRunning(ctx); err != nil {
		return "", err
	}

	var messages []chatMessage
	if req.SystemContext != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemContext})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   false,
		Options: options{
			Temperature: c.cfg.Temperature,
			TopP:        c.cfg.TopP,
			TopK:        c.cfg.TopK,
			NumPredict:  c.cfg.MaxTokens,
		},
	}
	if req.Temperature > 0 {
		body.Options.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		body.Options.NumPredict = req.MaxTokens
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: ollama returned status %d: %s", domain.ErrLLMUnavailable, resp.StatusCode, preview(data))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(data, &chatResp); err != nil {
		return "", fmt.Errorf("failed to decode chat response (body: %s): %w", preview(data), err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrLLMUnavailable, chatResp.Error)
	}

	c.logger.Debug("response generated", zap.Duration("elapsed", time.Since(start)))
	return chatResp.Message.Content, nil
}

// HasModel reports whether the configured model is pulled on the server.
func (c *OllamaClient) HasModel(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Host+"/api/tags", http.NoBody)
	if err != nil {
		return false, fmt.Errorf("failed to create tags request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: /api/tags returned status %d", domain.ErrLLMUnavailable, resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, fmt.Errorf("failed to decode tags: %w", err)
	}

	want := c.cfg.Model
	for _, m := range tags.Models {
		for _, name := range []string{m.Name, m.Model} {
			if name == want || (!strings.Contains(want, ":") && name == want+":latest") {
				return true, nil
			}
		}
	}
	return false, nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrLLMTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrLLMUnavailable, err)
}

func preview(body []byte) string {
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
