package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dcmshi/expense-tracker/internal/core/domain"
)

func TestExtractTextSendsBase64Image(t *testing.T) {
	var payload generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"METRO\nTOTAL 23.40\n","done":true}`))
	}))
	defer server.Close()

	client := New(server.URL+"/", "llava:13b", nil)
	text, err := client.ExtractText(context.Background(), []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "METRO\nTOTAL 23.40" {
		t.Fatalf("unexpected text %q", text)
	}
	if payload.Model != "llava:13b" || payload.Stream {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if len(payload.Images) != 1 || payload.Images[0] != "anBlZw==" {
		t.Fatalf("unexpected images %v", payload.Images)
	}
}

func TestExtractTextStripsCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":"` + "```text\\nCOSTCO\\nTOTAL 54.10\\n```" + `"}`))
	}))
	defer server.Close()

	text, err := New(server.URL, "", nil).ExtractText(context.Background(), []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if text != "COSTCO\nTOTAL 54.10" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":"   "}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "", nil).ExtractText(context.Background(), []byte("png"), "image/png")
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestExtractTextIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL, "", nil).ExtractText(context.Background(), []byte("png"), "image/png")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestMissingModelIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model 'llava' not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, "", nil).ExtractText(context.Background(), []byte("png"), "image/png")
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
