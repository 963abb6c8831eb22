package llm

import "strings"

// modelRate holds per-million-token USD prices.
type modelRate struct {
	inputPerMTok  float64
	outputPerMTok float64
}

// rateTable maps model identifier prefixes to prices. Unknown models cost
// zero rather than guessing; OpenRouter reports cost on the wire instead.
var rateTable = map[string]modelRate{
	"gpt-4o":            {inputPerMTok: 2.50, outputPerMTok: 10.00},
	"gpt-4o-mini":       {inputPerMTok: 0.15, outputPerMTok: 0.60},
	"claude-sonnet-4":   {inputPerMTok: 3.00, outputPerMTok: 15.00},
	"claude-haiku-4":    {inputPerMTok: 1.00, outputPerMTok: 5.00},
	"claude-3-5-sonnet": {inputPerMTok: 3.00, outputPerMTok: 15.00},
	"claude-3-5-haiku":  {inputPerMTok: 0.80, outputPerMTok: 4.00},
}

// estimateCost computes USD cost from token counts and the rate table.
func estimateCost(model string, inputTokens, outputTokens int) float64 {
	var best modelRate
	bestLen := 0
	for prefix, rate := range rateTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best = rate
			bestLen = len(prefix)
		}
	}
	if bestLen == 0 {
		return 0
	}
	return float64(inputTokens)/1e6*best.inputPerMTok +
		float64(outputTokens)/1e6*best.outputPerMTok
}
