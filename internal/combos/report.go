package combos

import (
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
)

const maxPlanCombinations = 3

type Report struct {
	Summary            Summary       `json:"summary"`
	TopCombinations    []Combination `json:"top_combinations"`
	ImplementationPlan []Phase       `json:"implementation_plan"`
	Recommendations    []string      `json:"recommendations"`
}

type Summary struct {
	TotalTested       int     `json:"total_tested"`
	PromisingFound    int     `json:"promising_found"`
	ConflictsDetected int     `json:"conflicts_detected"`
	TopPredictedLift  float64 `json:"top_predicted_lift"`
	MedianLift        float64 `json:"median_predicted_lift"`
}

// Phase is one step of the rollout plan. ExpectedImpact is the compounded
// lift of this phase and every phase before it.
type Phase struct {
	Phase          int        `json:"phase"`
	Name           string     `json:"name"`
	Action         string     `json:"action"`
	Combinations   [][]string `json:"combinations"`
	ExpectedImpact float64    `json:"expected_impact"`
}

func buildReport(ranked []Combination, limit int) *Report {
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	top := ranked
	if len(top) > limit {
		top = top[:limit]
	}

	return &Report{
		Summary:            summarize(ranked),
		TopCombinations:    top,
		ImplementationPlan: plan(ranked),
		Recommendations:    recommendations(ranked),
	}
}

func summarize(ranked []Combination) Summary {
	s := Summary{TotalTested: len(ranked)}

	lifts := make(stats.Float64Data, 0, len(ranked))
	for _, c := range ranked {
		if c.Priority != PriorityLow {
			s.PromisingFound++
		}
		if len(c.Conflicts) > 0 {
			s.ConflictsDetected++
		}
		lifts = append(lifts, c.PredictedLift)
	}

	if len(ranked) > 0 {
		s.TopPredictedLift = round1(ranked[0].PredictedLift)
		if median, err := lifts.Median(); err == nil {
			s.MedianLift = round1(median)
		}
	}
	return s
}

func plan(ranked []Combination) []Phase {
	var phases []Phase
	cumulative := 1.0

	add := func(name, action string, priority Priority) {
		var combos [][]string
		for _, c := range ranked {
			if c.Priority != priority {
				continue
			}
			if len(combos) == 0 {
				cumulative *= 1 + c.PredictedLift/100
			}
			combos = append(combos, c.Patterns)
			if len(combos) == maxPlanCombinations {
				break
			}
		}
		if len(combos) == 0 {
			return
		}
		phases = append(phases, Phase{
			Phase:          len(phases) + 1,
			Name:           name,
			Action:         action,
			Combinations:   combos,
			ExpectedImpact: round1((cumulative - 1) * 100),
		})
	}

	add("Immediate", "Launch A/B tests for high-priority combinations", PriorityHigh)
	add("Follow-up", "Test medium-priority combinations once phase results are in", PriorityMedium)

	phases = append(phases, Phase{
		Phase:          len(phases) + 1,
		Name:           "Ongoing monitoring",
		Action:         "Track live lift against predictions and retire underperforming patterns",
		Combinations:   [][]string{},
		ExpectedImpact: round1((cumulative - 1) * 100),
	})
	return phases
}

func recommendations(ranked []Combination) []string {
	var recs []string

	var best *Combination
	for i := range ranked {
		if ranked[i].Priority == PriorityHigh {
			best = &ranked[i]
			break
		}
	}
	if best != nil {
		recs = append(recs, fmt.Sprintf("Start with %s: %.1f%% predicted lift",
			strings.Join(best.PatternNames, " + "), best.PredictedLift))
	} else {
		recs = append(recs, "No high-priority combinations found; test individual patterns first")
	}

	synergyCounts := make(map[string]int)
	conflicted := 0
	for _, c := range ranked {
		for _, s := range c.Synergies {
			synergyCounts[s.Type]++
		}
		if c.HasHighSeverityConflict() {
			conflicted++
		}
	}

	if conflicted > 0 {
		recs = append(recs, fmt.Sprintf("%d combinations modify the same elements and should not run together", conflicted))
	}

	if len(synergyCounts) > 0 {
		types := make([]string, 0, len(synergyCounts))
		for t := range synergyCounts {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool {
			if synergyCounts[types[i]] != synergyCounts[types[j]] {
				return synergyCounts[types[i]] > synergyCounts[types[j]]
			}
			return types[i] < types[j]
		})
		recs = append(recs, fmt.Sprintf("Most frequent synergy: %s (%d combinations)", types[0], synergyCounts[types[0]]))
	}

	return recs
}

func round1(v float64) float64 {
	r, err := stats.Round(v, 1)
	if err != nil {
		return v
	}
	return r
}
