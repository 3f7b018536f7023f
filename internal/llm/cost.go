package llm

import "strings"

// Rough chars-per-token ratio used when a backend does not report counts.
const charsPerToken = 4

type pricing struct {
	inputPerMillion  float64
	outputPerMillion float64
}

// Hosted pricing by model-name prefix; longest prefix wins. Local models
// cost nothing.
var hostedPricing = []struct {
	prefix string
	p      pricing
}{
	{"gpt-4o-mini", pricing{inputPerMillion: 0.15, outputPerMillion: 0.60}},
	{"gpt-4o", pricing{inputPerMillion: 2.50, outputPerMillion: 10.00}},
	{"gpt-4", pricing{inputPerMillion: 30.00, outputPerMillion: 60.00}},
	{"gpt-3.5", pricing{inputPerMillion: 0.50, outputPerMillion: 1.50}},
}

var defaultHostedPricing = pricing{inputPerMillion: 2.50, outputPerMillion: 10.00}

func CalculateCost(backend, model string, promptTokens, completionTokens int) float64 {
	if backend == BackendLocal {
		return 0
	}
	p := defaultHostedPricing
	for _, entry := range hostedPricing {
		if strings.HasPrefix(model, entry.prefix) {
			p = entry.p
			break
		}
	}
	return (float64(promptTokens)/1_000_000)*p.inputPerMillion +
		(float64(completionTokens)/1_000_000)*p.outputPerMillion
}

func estimateTokens(messages []ChatMessage) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / charsPerToken
}
