package session

import "strings"

// modelRate is the per-million-token price of a model.
type modelRate struct {
	Input  float64
	Output float64
}

// rates holds per-model pricing in dollars per million tokens. Lookup is by
// substring so dated model ids resolve to their family.
var rates = map[string]modelRate{
	"claude-sonnet": {Input: 3.0, Output: 15.0},
	"claude-haiku":  {Input: 0.8, Output: 4.0},
	"claude-opus":   {Input: 15.0, Output: 75.0},
}

// defaultRate applies when the model id matches no known family.
var defaultRate = modelRate{Input: 3.0, Output: 15.0}

// EstimateCost returns the dollar cost of a call with the given token counts.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	rate := defaultRate
	for family, r := range rates {
		if strings.Contains(model, family) {
			rate = r
			break
		}
	}
	return float64(inputTokens)/1e6*rate.Input + float64(outputTokens)/1e6*rate.Output
}
