package inference

import (
	"context"
	"strings"
	"time"

	"github.com/codegenie/apiserver/internal/apperr"
	"github.com/codegenie/apiserver/internal/logging"
)

// Gateway is the generate/explain facade over the model server.
type Gateway struct {
	catalog *Catalog
	client  Client
	log     logging.Logger
}

func NewGateway(catalog *Catalog, client Client, log logging.Logger) *Gateway {
	return &Gateway{catalog: catalog, client: client, log: log.With("component", "inference")}
}

// Models lists the names the gateway accepts.
func (g *Gateway) Models() []string {
	return g.catalog.Names()
}

// Generate writes code in language for prompt. An empty model name picks
// the default generation model.
func (g *Gateway) Generate(ctx context.Context, prompt, language, modelName string) (string, error) {
	if modelName == "" {
		modelName = DefaultGenerateModel
	}
	model, err := g.catalog.Lookup(modelName)
	if err != nil {
		return "", err
	}
	return g.complete(ctx, "generate", model, GeneratePrompt(model.Family, prompt, language), generateParams)
}

// Explain describes code in the requested style.
func (g *Gateway) Explain(ctx context.Context, code, style, modelName string) (string, error) {
	if modelName == "" {
		modelName = DefaultExplainModel
	}
	model, err := g.catalog.Lookup(modelName)
	if err != nil {
		return "", err
	}
	return g.complete(ctx, "explain", model, ExplainPrompt(model.Family, code, style), explainParams)
}

func (g *Gateway) complete(ctx context.Context, task string, model Model, prompt string, params Params) (string, error) {
	start := time.Now()
	text, err := g.client.Complete(ctx, model, prompt, params)
	g.log.Debug(ctx, "model call finished",
		"task", task,
		"model", model.Name,
		"prompt_bytes", len(prompt),
		"duration", time.Since(start),
	)
	if err != nil {
		g.log.Error(ctx, "model call failed", "task", task, "model", model.Name, "error", err)
		return "", apperr.Wrap(apperr.ErrUpstream, task, err)
	}
	out := Clean(model.Family, text)
	if strings.TrimSpace(out) == "" {
		g.log.Warn(ctx, "model returned empty output", "task", task, "model", model.Name)
	}
	return out, nil
}
