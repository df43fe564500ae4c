package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/llm/prompt"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient httpDoer
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: newHTTPClient(timeout),
		executor:   executor,
	}
}

// Classifier implements the relevance check with a YES/NO completion.
type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) Classify(ctx context.Context, req domain.RelevanceRequest) (bool, error) {
	system, user := prompt.Relevance(req)
	reply, err := c.client.generate(ctx, "classify", map[string]any{
		"model":   c.client.genModel,
		"system":  system,
		"prompt":  user,
		"stream":  false,
		"options": map[string]any{"temperature": 0},
	})
	if err != nil {
		return false, err
	}
	return prompt.IsAffirmative(reply), nil
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

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.executor.Execute(ctx, "ollama.embed", func(ctx context.Context) error {
		return resilience.WrapTemporary("ollama embed", e.client.postJSON(ctx, "/api/embed", request, &response, "embed"), resilience.HTTPClassifier)
	}, resilience.HTTPClassifier)
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
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

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	system, user := prompt.Generation(req)
	return g.client.generate(ctx, "generate", map[string]any{
		"model":  g.client.genModel,
		"system": system,
		"prompt": user,
		"stream": false,
	})
}

// generate runs a single completion. Completions are never retried.
func (c *Client) generate(ctx context.Context, operation string, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	err := c.executor.ExecuteOnce(ctx, "ollama."+operation, func(ctx context.Context) error {
		return resilience.WrapTemporary("ollama "+operation, c.postJSON(ctx, "/api/generate", reqBody, &response, operation), resilience.HTTPClassifier)
	}, resilience.HTTPClassifier)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
