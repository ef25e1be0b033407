// Package expo delivers job outcome notifications through the Expo push
// service to the single registered device.
package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
	"github.com/dcmshi/expense-tracker/internal/core/ports"
	"github.com/dcmshi/expense-tracker/internal/infrastructure/resilience"
)

const DefaultPushURL = "https://exp.host/--/api/v2/push/send"

const reviewScreen = "EditVerify"

type message struct {
	To    string         `json:"to"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

type pushResponse struct {
	Data struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"data"`
}

type Notifier struct {
	pushURL    string
	tokens     ports.DeviceTokenStore
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(pushURL string, tokens ports.DeviceTokenStore, executor *resilience.Executor) *Notifier {
	if strings.TrimSpace(pushURL) == "" {
		pushURL = DefaultPushURL
	}
	return &Notifier{
		pushURL:    pushURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		executor:   executor,
	}
}

// NotifyJobOutcome sends the review prompt for awaiting_user and failed jobs.
// Other statuses and a missing device token are silently ignored.
func (n *Notifier) NotifyJobOutcome(ctx context.Context, expenseID string, status domain.ProcessingStatus) error {
	var title, body string
	switch status {
	case domain.StatusAwaitingUser:
		title, body = "Receipt processed", "Your receipt has been processed. Tap to review."
	case domain.StatusFailed:
		title, body = "Processing failed", "We could not process your receipt. Tap to enter details manually."
	default:
		return nil
	}

	token, err := n.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("load device token: %w", err)
	}
	if token == "" {
		return nil
	}

	msg := message{
		To:    token,
		Title: title,
		Body:  body,
		Data:  map[string]any{"expenseId": expenseID, "screen": reviewScreen},
	}
	err = n.executor.Execute(ctx, "expo.push", func(callCtx context.Context) error {
		return n.send(callCtx, msg)
	}, resilience.ClassifyRemoteError)
	return resilience.WrapTemporary("expo push", err, resilience.ClassifyRemoteError)
}

func (n *Notifier) send(ctx context.Context, msg message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.pushURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("expo push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &resilience.HTTPStatusError{Service: "expo", Operation: "push", StatusCode: resp.StatusCode, Body: string(text)}
	}

	var ticket pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return fmt.Errorf("decode push response: %w", err)
	}
	if ticket.Data.Status == "error" {
		return fmt.Errorf("expo rejected push: %s", ticket.Data.Message)
	}
	return nil
}
