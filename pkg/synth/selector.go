// Weighted scenario selection: one draw from the shared RNG stream per
// trace, proportional to each scenario's declared weight.
package synth

import "math/rand/v2"

// Selector picks a scenario per trace proportional to its Weight. It
// consumes the same RNG stream the engine uses for the rest of the trace,
// per the reproducibility requirement: a fixed seed must always pick the
// same scenario before anything else is drawn.
type Selector struct {
	scenarios    []*Scenario
	cumulWeights []int
	totalWeight  int
}

// NewSelector builds a Selector over scenarios. It panics if scenarios is
// empty; callers are expected to have already validated at least one
// scenario exists.
func NewSelector(scenarios []*Scenario) *Selector {
	if len(scenarios) == 0 {
		panic("synth: NewSelector requires at least one scenario")
	}
	cumul := make([]int, len(scenarios))
	total := 0
	for i, s := range scenarios {
		w := s.Weight
		if w < 1 {
			w = 1
		}
		total += w
		cumul[i] = total
	}
	return &Selector{scenarios: scenarios, cumulWeights: cumul, totalWeight: total}
}

// Select draws one scenario using rng, with probability proportional to
// its weight.
func (s *Selector) Select(rng *rand.Rand) *Scenario {
	r := rng.IntN(s.totalWeight)
	for i, cw := range s.cumulWeights {
		if r < cw {
			return s.scenarios[i]
		}
	}
	return s.scenarios[len(s.scenarios)-1]
}
