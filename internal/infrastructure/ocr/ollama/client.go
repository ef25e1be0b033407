// Package ollama transcribes receipt images with a local vision model served
// by Ollama, for deployments that keep receipts off third-party APIs.
package ollama

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dcmshi/expense-tracker/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llava"

	transcribePrompt = "You read receipts. Transcribe every line of text on this receipt exactly as printed, " +
		"top to bottom, keeping each price on the line of its item. Return plain text only, no markdown."
)

var ErrNoText = errors.New("Ollama returned no text - image may be unreadable")

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string, executor *resilience.Executor) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// ExtractText asks the model for a transcription. Ollama takes raw base64
// images without a MIME type, so the caller must pass a decodable image
// rather than a PDF.
func (c *Client) ExtractText(ctx context.Context, image []byte, _ string) (string, error) {
	req := generateRequest{
		Model:  c.model,
		Prompt: transcribePrompt,
		Images: []string{base64.StdEncoding.EncodeToString(image)},
		Stream: false,
	}

	text, err := resilience.Call(ctx, c.executor, "ollama.generate", func(callCtx context.Context) (string, error) {
		var resp generateResponse
		if err := c.postJSON(callCtx, "/api/generate", req, &resp, "generate"); err != nil {
			return "", err
		}
		return stripFences(resp.Response), nil
	}, classifyOllamaError)
	if err != nil {
		return "", resilience.WrapTemporary("ollama generate", err, classifyOllamaError)
	}
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// stripFences drops a surrounding markdown code block, which vision models
// add even when told not to.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	} else {
		text = ""
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
