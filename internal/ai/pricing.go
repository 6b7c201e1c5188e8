package ai

import "strings"

// Prices in currency units per million tokens. Vendor prefixes such as
// "openai/" are stripped before lookup; unknown models get the conservative
// default so cost totals never read zero for billable work.
type modelPrice struct {
	InputPerM  float64
	OutputPerM float64
}

var modelPrices = map[string]modelPrice{
	"gpt-4.1":                {2.00, 8.00},
	"gpt-4.1-mini":           {0.40, 1.60},
	"gpt-4.1-nano":           {0.10, 0.40},
	"gpt-4o":                 {2.50, 10.00},
	"gpt-4o-mini":            {0.15, 0.60},
	"qwen-plus":              {0.40, 1.20},
	"qwen-turbo":             {0.05, 0.20},
	"deepseek-chat":          {0.27, 1.10},
	"text-embedding-3-small": {0.02, 0},
	"text-embedding-3-large": {0.13, 0},
}

var defaultPrice = modelPrice{1.00, 3.00}

// Cost converts token usage into monetary cost for the given model.
func Cost(model string, usage TokenUsage) float64 {
	price := priceFor(model)
	return float64(usage.InputTokens)/1e6*price.InputPerM +
		float64(usage.OutputTokens)/1e6*price.OutputPerM
}

func priceFor(model string) modelPrice {
	name := strings.ToLower(strings.TrimSpace(model))
	if index := strings.LastIndex(name, "/"); index >= 0 {
		name = name[index+1:]
	}

	if price, ok := modelPrices[name]; ok {
		return price
	}

	// Longest-prefix match tolerates dated variants like gpt-4.1-2025-04-14.
	best := ""
	for known := range modelPrices {
		if strings.HasPrefix(name, known) && len(known) > len(best) {
			best = known
		}
	}
	if best != "" {
		return modelPrices[best]
	}
	return defaultPrice
}
