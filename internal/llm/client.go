// Package llm answers questions about the transcript through an Azure
// OpenAI chat deployment.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	placeholderPrefix = "YOUR_"

	defaultAPIVersion = "2024-06-01"
	defaultTimeout    = 60 * time.Second

	systemPrompt = "You are a helpful assistant. Answer the question based only on the provided podcast transcript snippet. If the snippet does not contain the answer, say so."
)

// ErrCredentialsMissing is returned by Validate when the endpoint, key or
// deployment is absent or still a template placeholder.
var ErrCredentialsMissing = errors.New("llm credentials are not configured")

// Config holds the Azure OpenAI connection settings.
type Config struct {
	Endpoint   string
	Key        string
	Deployment string
	APIVersion string
	Timeout    time.Duration
}

// Client implements ports.Answerer over the chat completions API.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With("component", "llm"),
	}
}

// Validate checks credentials locally; it never issues a request.
func (c *Client) Validate() error {
	if isPlaceholder(c.cfg.Endpoint) {
		return fmt.Errorf("%w: endpoint", ErrCredentialsMissing)
	}
	if isPlaceholder(c.cfg.Key) {
		return fmt.Errorf("%w: api key", ErrCredentialsMissing)
	}
	if isPlaceholder(c.cfg.Deployment) {
		return fmt.Errorf("%w: deployment", ErrCredentialsMissing)
	}
	return nil
}

func isPlaceholder(value string) bool {
	trimmed := strings.TrimSpace(value)
	return trimmed == "" || strings.HasPrefix(trimmed, placeholderPrefix)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Ask sends the question grounded on the transcript snippet and returns the
// model's answer.
func (c *Client) Ask(ctx context.Context, question, contextText string) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	payload := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Transcript snippet:\n%s\n\nQuestion: %s", contextText, question)},
		},
		Temperature: 0.2,
		MaxTokens:   400,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint, err := c.completionsURL()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.Key)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode llm response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(parsed.Error.Message)
		if message == "" {
			message = strings.TrimSpace(string(data))
		}
		return "", fmt.Errorf("llm returned status %d: %s", resp.StatusCode, message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}

	answer := strings.TrimSpace(parsed.Choices[0].Message.Content)
	c.log.Debug("llm answered", "question_len", len(question), "answer_len", len(answer))
	return answer, nil
}

func (c *Client) completionsURL() (string, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(c.cfg.Endpoint), "/"))
	if err != nil {
		return "", fmt.Errorf("invalid llm endpoint: %w", err)
	}
	base.Path += fmt.Sprintf("/openai/deployments/%s/chat/completions", url.PathEscape(c.cfg.Deployment))
	query := base.Query()
	query.Set("api-version", c.cfg.APIVersion)
	base.RawQuery = query.Encode()
	return base.String(), nil
}
