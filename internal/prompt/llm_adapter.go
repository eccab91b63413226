package prompt

import (
	"context"
	"fmt"

	"github.com/XiaoConstantine/dspy-go/pkg/core"

	"github.com/longregen/gepa/internal/llm"
)

// ClientAdapter adapts the OpenAI-compatible llm.Client to dspy-go's
// core.LLM interface so Predict modules can run against it. Only plain
// generation is implemented: that is all the pipeline stages use.
type ClientAdapter struct {
	client *llm.Client
}

// NewClientAdapter creates a new LLM client adapter.
func NewClientAdapter(client *llm.Client) *ClientAdapter {
	return &ClientAdapter{client: client}
}

// Generate implements the dspy-go LLM interface.
func (a *ClientAdapter) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.LLMResponse, error) {
	content, err := a.client.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, fmt.Errorf("llm chat failed: %w", err)
	}
	return &core.LLMResponse{Content: content}, nil
}

func (a *ClientAdapter) GenerateWithJSON(ctx context.Context, prompt string, opts ...core.GenerateOption) (map[string]interface{}, error) {
	return nil, fmt.Errorf("GenerateWithJSON not implemented: pipeline stages use plain generation")
}

func (a *ClientAdapter) GenerateWithFunctions(ctx context.Context, prompt string, functions []map[string]interface{}, opts ...core.GenerateOption) (map[string]interface{}, error) {
	return nil, fmt.Errorf("GenerateWithFunctions not implemented: pipeline stages use plain generation")
}

func (a *ClientAdapter) CreateEmbedding(ctx context.Context, input string, opts ...core.EmbeddingOption) (*core.EmbeddingResult, error) {
	return nil, fmt.Errorf("CreateEmbedding not implemented: no embedding stages")
}

func (a *ClientAdapter) CreateEmbeddings(ctx context.Context, inputs []string, opts ...core.EmbeddingOption) (*core.BatchEmbeddingResult, error) {
	return nil, fmt.Errorf("CreateEmbeddings not implemented: no embedding stages")
}

func (a *ClientAdapter) StreamGenerate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.StreamResponse, error) {
	return nil, fmt.Errorf("StreamGenerate not implemented: optimization runs in batch mode")
}

func (a *ClientAdapter) GenerateWithContent(ctx context.Context, content []core.ContentBlock, opts ...core.GenerateOption) (*core.LLMResponse, error) {
	return nil, fmt.Errorf("GenerateWithContent not implemented: text-only pipelines")
}

func (a *ClientAdapter) StreamGenerateWithContent(ctx context.Context, content []core.ContentBlock, opts ...core.GenerateOption) (*core.StreamResponse, error) {
	return nil, fmt.Errorf("StreamGenerateWithContent not implemented: text-only pipelines")
}

// ProviderName returns the provider name.
func (a *ClientAdapter) ProviderName() string {
	return "openai-compatible"
}

// ModelID returns the model identifier.
func (a *ClientAdapter) ModelID() string {
	return a.client.Model
}

// Capabilities returns the capabilities of this LLM.
func (a *ClientAdapter) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityChat, core.CapabilityCompletion}
}
