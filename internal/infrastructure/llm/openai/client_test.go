package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/resilience"
)

func newTestClient(url string) *Client {
	return New(Config{APIKey: "test", BaseURL: url + "/v1", ChatModel: "gpt-test", EmbedModel: "embed-test"},
		resilience.NewExecutor(resilience.Config{
			RetryMaxAttempts:    3,
			RetryInitialBackoff: time.Millisecond,
			RetryMaxBackoff:     time.Millisecond,
			BreakerEnabled:      false,
		}))
}

func chatReply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}}},
	})
}

func TestEmbedOrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{2, 2}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 1}},
			},
		})
	}))
	defer server.Close()

	vectors, err := NewEmbedder(newTestClient(server.URL)).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Fatalf("vectors not ordered by index: %v", vectors)
	}
}

func TestClassifierAndGenerator(t *testing.T) {
	var lastBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&lastBody)
		chatReply(w, "YES")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ok, err := NewClassifier(client).Classify(context.Background(), domain.RelevanceRequest{Question: "q", EvidenceText: "t"})
	if err != nil || !ok {
		t.Fatalf("expected affirmative verdict, got %v %v", ok, err)
	}

	answer, err := NewGenerator(client).Generate(context.Background(), domain.GenerationRequest{Role: "auditor", Question: "q", Context: "ctx"})
	if err != nil || answer != "YES" {
		t.Fatalf("unexpected answer %q %v", answer, err)
	}
	messages, _ := lastBody["messages"].([]any)
	if len(messages) != 2 || lastBody["model"] != "gpt-test" {
		t.Fatalf("unexpected request body: %v", lastBody)
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" || !strings.HasPrefix(first["content"].(string), "auditor") {
		t.Fatalf("unexpected system message: %v", first)
	}
}

func TestGenerateSurfacesTemporaryWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	_, err := NewGenerator(newTestClient(server.URL)).Generate(context.Background(), domain.GenerationRequest{Question: "q"})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single call, got %d", calls.Load())
	}
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{0.5}}},
		})
	}))
	defer server.Close()

	vec, err := NewEmbedder(newTestClient(server.URL)).EmbedQuery(context.Background(), "a")
	if err != nil || len(vec) != 1 {
		t.Fatalf("expected success after retries, got %v %v", vec, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestBadRequestIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer server.Close()

	_, err := NewEmbedder(newTestClient(server.URL)).Embed(context.Background(), []string{"a"})
	if err == nil || errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
