package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable marks a provider that is present but not configured. The
// query path treats it as fatal at startup, never as a silent zero vector.
var ErrUnavailable = errors.New("ai provider unavailable")

type IProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string) (string, error)
	EmbedBatch(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error)
}

type IGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// IEmbedder turns text into fixed-dimension vectors. taskType distinguishes
// document embedding from query embedding for providers that care.
type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error)
	ModelName() string
}

type generator struct {
	provider IProvider
	model    string
}

func NewGenerator(p IProvider, model string) IGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.provider.Generate(ctx, g.model, prompt)
}

type embedder struct {
	provider IProvider
	model    string
}

func NewEmbedder(p IProvider, model string) IEmbedder {
	return &embedder{provider: p, model: model}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	vectors, err := e.provider.EmbedBatch(ctx, e.model, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return vectors[0], nil
}

func (e *embedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return e.provider.EmbedBatch(ctx, e.model, texts, taskType)
}

func (e *embedder) ModelName() string {
	return e.model
}

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}
