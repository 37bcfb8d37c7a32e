package llm

import "strings"

// ModelPrice is USD per one million tokens.
type ModelPrice struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// Pricing maps a bare model name (no provider prefix) to its price.
type Pricing map[string]ModelPrice

// DefaultPricing returns list prices for common OpenAI and Anthropic models.
func DefaultPricing() Pricing {
	return Pricing{
		"gpt-4o":            {InputPerMillion: 2.50, OutputPerMillion: 10.00},
		"gpt-4o-mini":       {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"gpt-4.1":           {InputPerMillion: 2.00, OutputPerMillion: 8.00},
		"gpt-4.1-mini":      {InputPerMillion: 0.40, OutputPerMillion: 1.60},
		"gpt-4.1-nano":      {InputPerMillion: 0.10, OutputPerMillion: 0.40},
		"o3-mini":           {InputPerMillion: 1.10, OutputPerMillion: 4.40},
		"claude-opus-4":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},
		"claude-sonnet-4":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
		"claude-3-7-sonnet": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
		"claude-3-5-sonnet": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
		"claude-3-5-haiku":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
		"claude-haiku-4-5":  {InputPerMillion: 1.00, OutputPerMillion: 5.00},
	}
}

// Lookup finds the price for model, accepting "provider/model" names and dated
// snapshots ("claude-sonnet-4-20250514") by longest prefix match.
func (p Pricing) Lookup(model string) (ModelPrice, bool) {
	_, name := SplitModel(model)
	if price, ok := p[name]; ok {
		return price, true
	}

	best := ""
	for key := range p {
		if strings.HasPrefix(name, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return ModelPrice{}, false
	}
	return p[best], true
}

// Cost returns the USD cost of usage on model. Unknown models cost 0.
func (p Pricing) Cost(model string, usage TokenUsage) float64 {
	price, ok := p.Lookup(model)
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)*price.InputPerMillion/1e6 +
		float64(usage.OutputTokens)*price.OutputPerMillion/1e6
}

// SplitModel splits "provider/model" on the first slash. Names without a
// provider default to "openai".
func SplitModel(model string) (provider, name string) {
	if i := strings.Index(model, "/"); i > 0 {
		return model[:i], model[i+1:]
	}
	return "openai", model
}
