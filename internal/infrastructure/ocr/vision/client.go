// Package vision recognizes receipt text with Google Cloud Vision
// TEXT_DETECTION.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"

	"github.com/dcmshi/expense-tracker/internal/infrastructure/resilience"
)

var (
	ErrMissingAPIKey = errors.New("GOOGLE_VISION_API_KEY is not configured")
	ErrNoText        = errors.New("Vision API returned no text - image may be unreadable")
)

type Options struct {
	// Endpoint overrides the API base URL.
	Endpoint   string
	HTTPClient *http.Client
	Executor   *resilience.Executor
}

type Client struct {
	service  *visionapi.Service
	executor *resilience.Executor
}

// New builds a client. A missing key is not an error here so that the
// worker still starts; every recognition call then fails with
// ErrMissingAPIKey and the job is retried or failed like any other error.
func New(ctx context.Context, apiKey string, opts Options) (*Client, error) {
	c := &Client{executor: opts.Executor}
	if strings.TrimSpace(apiKey) == "" {
		return c, nil
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	service, err := visionapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create vision service: %w", err)
	}
	c.service = service
	return c, nil
}

// ExtractText returns the full text annotation of the image. The MIME type is
// not needed by Vision, which sniffs the content itself.
func (c *Client) ExtractText(ctx context.Context, image []byte, _ string) (string, error) {
	if c.service == nil {
		return "", ErrMissingAPIKey
	}

	text, err := resilience.Call(ctx, c.executor, "vision.annotate", func(callCtx context.Context) (string, error) {
		return c.annotate(callCtx, image)
	}, classifyVisionError)
	if err != nil {
		return "", resilience.WrapTemporary("vision annotate", err, classifyVisionError)
	}
	return text, nil
}

func (c *Client) annotate(ctx context.Context, image []byte) (string, error) {
	req := &visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{{
			Image:    &visionapi.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*visionapi.Feature{{Type: "TEXT_DETECTION"}},
		}},
	}
	resp, err := c.service.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("vision annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", ErrNoText
	}

	first := resp.Responses[0]
	if first.Error != nil && first.Error.Code != 0 {
		return "", &annotateError{Code: first.Error.Code, Message: first.Error.Message}
	}
	if len(first.TextAnnotations) == 0 || strings.TrimSpace(first.TextAnnotations[0].Description) == "" {
		return "", ErrNoText
	}
	// The first annotation holds the whole text of the image.
	return first.TextAnnotations[0].Description, nil
}

// annotateError is a per-image failure reported inside a 200 response. Code
// is a google.rpc.Code.
type annotateError struct {
	Code    int64
	Message string
}

func (e *annotateError) Error() string {
	return fmt.Sprintf("Vision API error %d: %s", e.Code, e.Message)
}
