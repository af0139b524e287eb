package pricing

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

type Table struct {
	Providers map[string]map[string]ModelPricing
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Providers: providers}, nil
}

// Cost calculates total cost for a request. Prices are per 1K tokens.
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	p, ok := t.lookup(provider, model)
	if !ok {
		return 0
	}
	return p.cost(inputTokens, outputTokens)
}

// CostForModel prices a routed model id such as "openai/gpt-4o". The
// provider is the part before the first slash; an id without one matches the
// first provider listing the model. ok is false when the model is not priced.
func (t *Table) CostForModel(id string, inputTokens, outputTokens int) (cost float64, ok bool) {
	provider, model, found := strings.Cut(id, "/")
	if !found {
		provider, model = t.providerOf(id), id
	}
	p, ok := t.lookup(provider, model)
	if !ok {
		return 0, false
	}
	return p.cost(inputTokens, outputTokens), true
}

func (t *Table) lookup(provider, model string) (ModelPricing, bool) {
	if t == nil || t.Providers == nil {
		return ModelPricing{}, false
	}
	models, ok := t.Providers[provider]
	if !ok {
		return ModelPricing{}, false
	}
	p, ok := models[model]
	return p, ok
}

func (t *Table) providerOf(model string) string {
	if t == nil {
		return ""
	}
	names := make([]string, 0, len(t.Providers))
	for name := range t.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := t.Providers[name][model]; ok {
			return name
		}
	}
	return ""
}

func (p ModelPricing) cost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)/1000.0)*p.Input + (float64(outputTokens)/1000.0)*p.Output
}
