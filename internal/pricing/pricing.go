package pricing

import (
	"fmt"

	"whspr/internal/domain"
)

// Rate is USD per million tokens.
type Rate struct {
	Input  float64
	Output float64
}

var rates = map[string]Rate{
	"openai/gpt-oss-120b": {Input: 0, Output: 0},
	"claude-sonnet-4-5":   {Input: 3.0, Output: 15.0},
	"claude-haiku-4-5":    {Input: 0.8, Output: 4.0},
	"claude-opus-4-5":     {Input: 15.0, Output: 75.0},
}

// Lookup returns the rate for a bare model name.
func Lookup(model string) (Rate, bool) {
	r, ok := rates[model]
	return r, ok
}

// Cost is zero for models without a known rate.
func Cost(model string, usage domain.Usage) float64 {
	r, ok := rates[model]
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)/1_000_000*r.Input + float64(usage.OutputTokens)/1_000_000*r.Output
}

// Format keeps small costs visible by widening precision.
func Format(cost float64) string {
	switch {
	case cost == 0:
		return "$0.00"
	case cost < 0.0001:
		return fmt.Sprintf("$%.6f", cost)
	case cost < 0.01:
		return fmt.Sprintf("$%.4f", cost)
	default:
		return fmt.Sprintf("$%.2f", cost)
	}
}
