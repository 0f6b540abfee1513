package combos

import (
	"fmt"
	"sort"
	"strings"

	"github.com/landing-lab/landing-lab/internal/patterns"
)

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

const (
	highPriorityScore   = 15
	mediumPriorityScore = 8
)

// Combination is one analysed candidate. Rank is assigned after sorting.
type Combination struct {
	Rank           int                 `json:"rank"`
	Patterns       []string            `json:"patterns"`
	PatternNames   []string            `json:"pattern_names"`
	PredictedLift  float64             `json:"predicted_lift"`
	Confidence     float64             `json:"confidence"`
	Conflicts      []patterns.Conflict `json:"conflicts"`
	Synergies      []patterns.Synergy  `json:"synergies"`
	Complexity     Complexity          `json:"implementation_complexity"`
	Recommendation string              `json:"recommendation"`
	Priority       Priority            `json:"priority"`
	Breakdown      patterns.Breakdown  `json:"breakdown"`
}

// Evaluate runs conflict, synergy and lift analysis over one pattern set.
func Evaluate(set []patterns.Pattern) Combination {
	conflicts := patterns.DetectConflicts(set)
	synergies := patterns.DetectSynergies(set)
	pred := patterns.PredictCombinedLift(set, synergies, conflicts)

	c := Combination{
		Patterns:      make([]string, len(set)),
		PatternNames:  make([]string, len(set)),
		PredictedLift: pred.Lift,
		Confidence:    pred.Confidence,
		Conflicts:     conflicts,
		Synergies:     synergies,
		Complexity:    AssessComplexity(set),
		Breakdown:     pred.Breakdown,
	}
	if c.Conflicts == nil {
		c.Conflicts = []patterns.Conflict{}
	}
	if c.Synergies == nil {
		c.Synergies = []patterns.Synergy{}
	}
	for i, p := range set {
		c.Patterns[i] = p.ID
		c.PatternNames[i] = p.DisplayName()
	}

	c.Priority = c.priority()
	c.Recommendation = c.recommend()
	return c
}

// AssessComplexity scores pattern count plus 2 for animation, 1 for
// personalization and 1 for dynamic content.
func AssessComplexity(set []patterns.Pattern) Complexity {
	score := len(set)
	var animated, personal, dynamic bool
	for _, p := range set {
		animated = animated || p.IsAnimation()
		personal = personal || p.Category == patterns.CategoryPersonalization
		dynamic = dynamic || p.IsDynamic()
	}
	if animated {
		score += 2
	}
	if personal {
		score++
	}
	if dynamic {
		score++
	}

	switch {
	case score <= 3:
		return ComplexityLow
	case score <= 6:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

// Score is lift weighted by confidence, halved for high complexity.
func (c *Combination) Score() float64 {
	score := c.PredictedLift * c.Confidence
	if c.Complexity == ComplexityHigh {
		score /= 2
	}
	return score
}

func (c *Combination) HasHighSeverityConflict() bool {
	return patterns.HasHighSeverity(c.Conflicts)
}

func (c *Combination) priority() Priority {
	if c.HasHighSeverityConflict() {
		return PriorityLow
	}
	switch score := c.Score(); {
	case score >= highPriorityScore:
		return PriorityHigh
	case score >= mediumPriorityScore:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func (c *Combination) recommend() string {
	lift, conf := c.PredictedLift, c.Confidence
	switch {
	case c.HasHighSeverityConflict():
		return fmt.Sprintf("Avoid: %s", highSeverityDescriptions(c.Conflicts))
	case lift >= 20 && conf >= 0.7 && c.Complexity != ComplexityHigh:
		return fmt.Sprintf("Strongly recommended: %.1f%% predicted lift with %.0f%% confidence", lift, conf*100)
	case lift >= 10 && conf >= 0.6:
		return fmt.Sprintf("Recommended: %.1f%% predicted lift, validate with an A/B test", lift)
	case lift >= 5 && len(c.Conflicts) == 0:
		return fmt.Sprintf("Consider testing: modest %.1f%% predicted lift", lift)
	default:
		return "Not recommended: predicted lift does not justify the effort"
	}
}

func highSeverityDescriptions(conflicts []patterns.Conflict) string {
	var parts []string
	for _, c := range conflicts {
		if c.Severity == patterns.SeverityHigh {
			parts = append(parts, c.Description)
		}
	}
	return strings.Join(parts, "; ")
}

// key identifies a set regardless of the order its ids were added in.
func key(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, "+")
}
