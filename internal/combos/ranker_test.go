package combos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landing-lab/landing-lab/internal/patterns"
)

func liftOf(v float64) *float64 { return &v }

func fixture() *patterns.Catalogue {
	p := func(id, category, status string, lift float64, targets ...string) patterns.Pattern {
		return patterns.Pattern{
			ID:          id,
			Name:        id,
			Category:    category,
			Status:      status,
			Targets:     targets,
			Performance: patterns.Performance{AverageLift: liftOf(lift)},
		}
	}
	return &patterns.Catalogue{
		Version: "1",
		Patterns: []patterns.Pattern{
			p("reviews", patterns.CategorySocialProof, "production", 8, "#reviews"),
			p("stock", patterns.CategoryScarcity, "production", 6, "#stock"),
			p("timer", patterns.CategoryUrgency, "production", 12, "#banner"),
			p("me", patterns.CategoryPersonalization, "production", 10, "#headline"),
			p("seal", patterns.CategoryTrust, "production", 5, "#banner"),
			p("confetti", patterns.CategoryAnimation, "draft", 30),
		},
	}
}

func run(t *testing.T, cat *patterns.Catalogue, opts Options) *Report {
	t.Helper()
	report, err := NewRanker(patterns.StaticSource(cat), nil).TestAllCombinations(context.Background(), opts)
	require.NoError(t, err)
	return report
}

func find(t *testing.T, report *Report, ids ...string) Combination {
	t.Helper()
	want := key(ids)
	for _, c := range report.TopCombinations {
		if key(c.Patterns) == want {
			return c
		}
	}
	t.Fatalf("combination %v not in report", ids)
	return Combination{}
}

func TestRanker_PairsOnly(t *testing.T) {
	opts := DefaultOptions()
	opts.Limit = 100
	report := run(t, fixture(), opts)

	assert.Equal(t, 10, report.Summary.TotalTested)
	require.Len(t, report.TopCombinations, 10)

	first := report.TopCombinations[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, []string{"timer", "me"}, first.Patterns)
	assert.InDelta(t, 23.2*1.30, first.PredictedLift, 1e-9)
	assert.Equal(t, PriorityHigh, first.Priority)
	assert.Equal(t, ComplexityLow, first.Complexity)
	assert.Contains(t, first.Recommendation, "Strongly recommended")
	assert.Equal(t, 30.2, report.Summary.TopPredictedLift)

	for i := 1; i < len(report.TopCombinations); i++ {
		assert.GreaterOrEqual(t, report.TopCombinations[i-1].PredictedLift, report.TopCombinations[i].PredictedLift)
		assert.Equal(t, i+1, report.TopCombinations[i].Rank)
	}
}

func TestRanker_HighSeverityConflictForcesLow(t *testing.T) {
	opts := DefaultOptions()
	opts.Limit = 100
	report := run(t, fixture(), opts)

	c := find(t, report, "timer", "seal")
	require.True(t, c.HasHighSeverityConflict())
	assert.Greater(t, c.PredictedLift, 10.0)
	assert.Equal(t, PriorityLow, c.Priority)
	assert.Contains(t, c.Recommendation, "Avoid")
	assert.Equal(t, 1, report.Summary.ConflictsDetected)
}

func TestRanker_ProductionFilter(t *testing.T) {
	opts := DefaultOptions()
	opts.ProductionOnly = false
	opts.Limit = 100
	report := run(t, fixture(), opts)

	assert.Equal(t, 15, report.Summary.TotalTested)
	c := find(t, report, "confetti", "reviews")
	assert.Equal(t, ComplexityMedium, c.Complexity)
}

func TestRanker_Triples(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeTriples = true
	opts.TopPairs = 1
	opts.Limit = 100
	report := run(t, fixture(), opts)

	assert.Equal(t, 13, report.Summary.TotalTested)
	triples := 0
	for _, c := range report.TopCombinations {
		if len(c.Patterns) == 3 {
			triples++
			assert.Equal(t, []string{"timer", "me"}, c.Patterns[:2])
		}
	}
	assert.Equal(t, 3, triples)
}

func TestRanker_TriplesAreDeduplicated(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeTriples = true
	opts.TopPairs = 2
	opts.Limit = 100
	report := run(t, fixture(), opts)

	assert.Equal(t, 15, report.Summary.TotalTested)
	seen := make(map[string]bool)
	for _, c := range report.TopCombinations {
		k := key(c.Patterns)
		assert.False(t, seen[k], "duplicate %s", k)
		seen[k] = true
	}
}

func TestRanker_TripleThreshold(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeTriples = true
	opts.TripleThreshold = 1000
	report := run(t, fixture(), opts)

	assert.Equal(t, 10, report.Summary.TotalTested)
}

func TestRanker_Limit(t *testing.T) {
	opts := DefaultOptions()
	opts.Limit = 3
	report := run(t, fixture(), opts)

	assert.Len(t, report.TopCombinations, 3)
	assert.Equal(t, 10, report.Summary.TotalTested)
}

func TestRanker_Plan(t *testing.T) {
	opts := DefaultOptions()
	opts.Limit = 100
	report := run(t, fixture(), opts)

	require.Len(t, report.ImplementationPlan, 3)
	immediate, followUp, monitoring := report.ImplementationPlan[0], report.ImplementationPlan[1], report.ImplementationPlan[2]

	assert.Equal(t, 1, immediate.Phase)
	assert.Equal(t, []string{"timer", "me"}, immediate.Combinations[0])
	assert.LessOrEqual(t, len(immediate.Combinations), maxPlanCombinations)
	assert.InDelta(t, 30.2, immediate.ExpectedImpact, 0.05)

	// timer+stock is the strongest MEDIUM pair at 18.72%.
	assert.Equal(t, []string{"stock", "timer"}, followUp.Combinations[0])
	assert.InDelta(t, (1.3016*1.1872-1)*100, followUp.ExpectedImpact, 0.05)

	assert.Equal(t, 3, monitoring.Phase)
	assert.Equal(t, followUp.ExpectedImpact, monitoring.ExpectedImpact)

	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "timer + me")
}

func TestRanker_MissingLiftDoesNotAbort(t *testing.T) {
	cat := &patterns.Catalogue{Patterns: []patterns.Pattern{
		{ID: "a", Category: "copy", Status: "production"},
		{ID: "b", Category: "layout", Status: "production", Performance: patterns.Performance{AverageLift: liftOf(7)}},
	}}
	report := run(t, cat, DefaultOptions())

	require.Len(t, report.TopCombinations, 1)
	assert.InDelta(t, 7, report.TopCombinations[0].PredictedLift, 1e-9)
}

func TestRanker_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewRanker(patterns.StaticSource(nil), nil).TestAllCombinations(ctx, DefaultOptions())
	assert.ErrorIs(t, err, patterns.ErrCatalogueMissing)

	cat := fixture()
	cat.Patterns = cat.Patterns[:1]
	_, err = NewRanker(patterns.StaticSource(cat), nil).TestAllCombinations(ctx, DefaultOptions())
	assert.ErrorIs(t, err, ErrTooFewPatterns)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewRanker(patterns.StaticSource(fixture()), nil).TestAllCombinations(cancelled, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssessComplexity(t *testing.T) {
	tests := []struct {
		name       string
		categories []string
		dynamic    bool
		want       Complexity
	}{
		{"plain pair", []string{"copy", "layout"}, false, ComplexityLow},
		{"personalized pair", []string{patterns.CategoryPersonalization, "layout"}, false, ComplexityLow},
		{"animated pair", []string{patterns.CategoryAnimation, "layout"}, false, ComplexityMedium},
		{"animated personalized triple", []string{patterns.CategoryAnimation, patterns.CategoryPersonalization, "copy"}, false, ComplexityMedium},
		{"everything", []string{patterns.CategoryAnimation, patterns.CategoryPersonalization, "copy"}, true, ComplexityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var set []patterns.Pattern
			for i, c := range tt.categories {
				set = append(set, patterns.Pattern{ID: string(rune('a' + i)), Category: c, DynamicContent: tt.dynamic && i == 2})
			}
			assert.Equal(t, tt.want, AssessComplexity(set))
		})
	}
}
