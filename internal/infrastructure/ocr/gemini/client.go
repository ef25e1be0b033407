// Package gemini transcribes receipt images with a Gemini model. It is the
// alternative to Cloud Vision when only a Gemini API key is at hand.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/dcmshi/expense-tracker/internal/infrastructure/resilience"
)

const (
	DefaultModel = "gemini-2.5-flash"

	transcribePrompt = "Transcribe every line of text on this receipt exactly as printed, top to bottom. " +
		"Keep prices on the same line as their item. Do not summarize, translate or add commentary. " +
		"Return plain text only."
)

var ErrNoText = errors.New("Gemini returned no text - image may be unreadable")

type Options struct {
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Executor   *resilience.Executor
}

type Client struct {
	client   *genai.Client
	model    string
	executor *resilience.Executor
}

func New(ctx context.Context, apiKey string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{client: client, model: model, executor: opts.Executor}, nil
}

func (c *Client) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)}

	text, err := resilience.Call(ctx, c.executor, "gemini.generate", func(callCtx context.Context) (string, error) {
		resp, err := c.client.Models.GenerateContent(callCtx, c.model, contents, config)
		if err != nil {
			return "", fmt.Errorf("gemini generate content: %w", err)
		}
		text := cleanTranscript(resp.Text())
		if text == "" {
			return "", ErrNoText
		}
		return text, nil
	}, classifyGeminiError)
	if err != nil {
		return "", resilience.WrapTemporary("gemini generate", err, classifyGeminiError)
	}
	return text, nil
}

// cleanTranscript drops the markdown fence some models wrap plain text in.
func cleanTranscript(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, ErrNoText) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyRemoteError(&resilience.HTTPStatusError{
			Service:    "gemini",
			Operation:  "generate",
			StatusCode: apiErr.Code,
			Body:       apiErr.Message,
		})
	}
	return resilience.ClassifyRemoteError(err)
}
