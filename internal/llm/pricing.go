package llm

import "strings"

// modelPrice is USD per million tokens.
type modelPrice struct {
	input  float64
	output float64
}

var prices = map[string]modelPrice{
	"sonnet": {input: 3.00, output: 15.00},
	"haiku":  {input: 0.80, output: 4.00},
}

// Cost estimates the USD cost of a call. Unknown models are priced at the
// sonnet rate so cost tracking over-reports rather than under-reports.
func Cost(model string, usage Usage) float64 {
	p := prices["sonnet"]
	for family, fp := range prices {
		if strings.Contains(model, family) {
			p = fp
			break
		}
	}
	return float64(usage.InputTokens)*p.input/1e6 + float64(usage.OutputTokens)*p.output/1e6
}
