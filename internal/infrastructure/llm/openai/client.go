// Package openai adapts OpenAI-compatible chat and embedding endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/llm/prompt"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/resilience"
)

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Dimensions int
}

type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel openai.EmbeddingModel
	dimensions int
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		api:        openai.NewClientWithConfig(clientCfg),
		chatModel:  cfg.ChatModel,
		embedModel: openai.EmbeddingModel(cfg.EmbedModel),
		dimensions: cfg.Dimensions,
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.client.embedModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.client.dimensions > 0 {
		req.Dimensions = e.client.dimensions
	}

	var resp openai.EmbeddingResponse
	err := e.client.executor.Execute(ctx, "openai.embed", func(ctx context.Context) error {
		var callErr error
		resp, callErr = e.client.api.CreateEmbeddings(ctx, req)
		return wrapAPIError("openai embed", callErr)
	}, resilience.TemporaryClassifier)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: expected %d vectors, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) Classify(ctx context.Context, req domain.RelevanceRequest) (bool, error) {
	system, user := prompt.Relevance(req)
	reply, err := c.client.chat(ctx, "openai.classify", system, user, 4)
	if err != nil {
		return false, err
	}
	return prompt.IsAffirmative(reply), nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	system, user := prompt.Generation(req)
	return g.client.chat(ctx, "openai.generate", system, user, 0)
}

// chat runs one completion without retry.
func (c *Client) chat(ctx context.Context, operation, system, user string, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: maxTokens,
	}

	var resp openai.ChatCompletionResponse
	err := c.executor.ExecuteOnce(ctx, operation, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, req)
		return wrapAPIError(operation, callErr)
	}, resilience.TemporaryClassifier)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty completion", operation)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// wrapAPIError tags rate limits, server errors and network failures as
// temporary.
func wrapAPIError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if retryableStatus(apiErr.HTTPStatusCode) {
			return domain.WrapError(domain.ErrTemporary, operation, err)
		}
		return fmt.Errorf("%s: api error %d: %s", operation, apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if retryableStatus(reqErr.HTTPStatusCode) {
			return domain.WrapError(domain.ErrTemporary, operation, err)
		}
		return fmt.Errorf("%s: request error %d: %w", operation, reqErr.HTTPStatusCode, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
