package patterns

import "math"

const (
	// MethodMultiplicative labels predictions from PredictCombinedLift.
	MethodMultiplicative = "multiplicative_with_interactions"

	baseConfidence       = 0.6
	synergyConfidence    = 0.2
	noConflictConfidence = 0.2
	sizeDecay            = 0.9
)

// conflictPenalty is the factor applied per conflict of each severity.
var conflictPenalty = map[Severity]float64{
	SeverityHigh:   0.70,
	SeverityMedium: 0.85,
	SeverityLow:    0.95,
}

type Prediction struct {
	Lift       float64   `json:"lift"`
	Confidence float64   `json:"confidence"`
	Method     string    `json:"method"`
	Breakdown  Breakdown `json:"breakdown"`
}

// Breakdown records each intermediate value of a prediction.
type Breakdown struct {
	Individual        []float64 `json:"individual_lifts"`
	Additive          float64   `json:"additive_naive"`
	Multiplicative    float64   `json:"multiplicative"`
	SynergyMultiplier float64   `json:"synergy_multiplier"`
	ConflictPenalty   float64   `json:"conflict_penalty"`
	Final             float64   `json:"final"`
}

// PredictCombinedLift compounds the individual lifts, scales the result by
// every synergy boost and conflict penalty, and floors it at zero.
func PredictCombinedLift(patterns []Pattern, synergies []Synergy, conflicts []Conflict) Prediction {
	b := Breakdown{
		Individual:        make([]float64, len(patterns)),
		SynergyMultiplier: 1,
		ConflictPenalty:   1,
	}

	product := 1.0
	for i, p := range patterns {
		lift := p.Lift()
		b.Individual[i] = lift
		b.Additive += lift
		product *= 1 + lift/100
	}
	b.Multiplicative = (product - 1) * 100

	for _, s := range synergies {
		b.SynergyMultiplier *= s.ExpectedBoost
	}
	for _, c := range conflicts {
		if factor, ok := conflictPenalty[c.Severity]; ok {
			b.ConflictPenalty *= factor
		}
	}

	b.Final = math.Max(0, b.Multiplicative*b.SynergyMultiplier*b.ConflictPenalty)

	return Prediction{
		Lift:       b.Final,
		Confidence: predictionConfidence(len(patterns), len(synergies) > 0, len(conflicts) == 0),
		Method:     MethodMultiplicative,
		Breakdown:  b,
	}
}

func predictionConfidence(size int, hasSynergy, conflictFree bool) float64 {
	confidence := baseConfidence
	if hasSynergy {
		confidence += synergyConfidence
	}
	if conflictFree {
		confidence += noConflictConfidence
	}
	if size > 2 {
		confidence *= math.Pow(sizeDecay, float64(size-2))
	}
	return math.Min(1, math.Max(0, confidence))
}
