package llm

import "strings"

// modelRate holds USD cost per million tokens.
type modelRate struct {
	input  float64
	output float64
}

// modelRates maps model name fragments to published per-million-token
// prices. Matching is by substring so versioned model ids resolve without
// an exhaustive table. Unknown models estimate at zero.
var modelRates = []struct {
	fragment string
	rate     modelRate
}{
	{"claude-opus", modelRate{input: 15.0, output: 75.0}},
	{"claude-sonnet", modelRate{input: 3.0, output: 15.0}},
	{"claude-haiku", modelRate{input: 0.80, output: 4.0}},
	{"gpt-4o-mini", modelRate{input: 0.15, output: 0.60}},
	{"gpt-4o", modelRate{input: 2.50, output: 10.0}},
}

// EstimateCost returns the estimated USD cost of a request against the
// given model. The estimate is best-effort and used only for telemetry.
func EstimateCost(model string, usage TokenUsage) float64 {
	for _, entry := range modelRates {
		if strings.Contains(model, entry.fragment) {
			return float64(usage.InputTokens)/1e6*entry.rate.input +
				float64(usage.OutputTokens)/1e6*entry.rate.output
		}
	}
	return 0
}
