package stats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/landing-lab/landing-lab/internal/metrics"
	"github.com/landing-lab/landing-lab/internal/store"
)

type Outcome string

const (
	OutcomeNoData           Outcome = "no_data"
	OutcomeInsufficientData Outcome = "insufficient_data"
	OutcomeSignificant      Outcome = "significant"
	OutcomeNotSignificant   Outcome = "not_significant"
)

// Analysis is the significance report for one experiment.
type Analysis struct {
	TestID         string                 `json:"testId"`
	TestName       string                 `json:"testName"`
	Status         store.ExperimentStatus `json:"status"`
	Outcome        Outcome                `json:"outcome"`
	Variants       []VariantResult        `json:"variants"`
	Control        string                 `json:"control"`
	BestVariant    string                 `json:"bestVariant"`
	Winner         string                 `json:"winner,omitempty"`
	Confidence     float64                `json:"confidence"`
	PValue         float64                `json:"pValue"`
	ChiSquare      float64                `json:"chiSquare"`
	ExactPValue    float64                `json:"exactPValue"`
	Lift           *float64               `json:"lift,omitempty"`
	Recommendation string                 `json:"recommendation"`
	ReadyToScale   bool                   `json:"readyToScale"`
	MinSampleSize  int                    `json:"minSampleSize"`
}

// VariantResult contains statistics for a single variant
type VariantResult struct {
	VariantID          string  `json:"variantId"`
	Name               string  `json:"name"`
	Impressions        int     `json:"impressions"`
	Conversions        int     `json:"conversions"`
	ConversionRate     float64 `json:"conversionRate"`
	AvgTimeOnPage      float64 `json:"avgTimeOnPage"`
	AvgScrollDepth     float64 `json:"avgScrollDepth"`
	CTAClickRate       float64 `json:"ctaClickRate"`
	SampleSize         int     `json:"sampleSize"`
	MeetsMinimumSample bool    `json:"meetsMinimumSample"`
	CILower            float64 `json:"ciLower"`
	CIUpper            float64 `json:"ciUpper"`
}

// ExperimentSource loads experiment definitions.
type ExperimentSource interface {
	GetExperiment(ctx context.Context, id string) (*store.Experiment, error)
}

// LedgerSource lists the recorded counters for an experiment.
type LedgerSource interface {
	Entries(ctx context.Context, experimentID string) ([]*store.LedgerEntry, error)
}

type Analyzer struct {
	experiments ExperimentSource
	ledger      LedgerSource
	logger      *slog.Logger
}

func NewAnalyzer(experiments ExperimentSource, ledger LedgerSource, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{experiments: experiments, ledger: ledger, logger: logger}
}

// Analyze computes per-variant rates and, once both the control and the best
// treatment meet the minimum sample size, a chi-square test between them.
// Unknown experiments return an error wrapping store.ErrNotFound; missing or
// insufficient data is reported through Analysis.Outcome.
func (a *Analyzer) Analyze(ctx context.Context, experimentID string) (*Analysis, error) {
	exp, err := a.experiments.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	entries, err := a.ledger.Entries(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	analysis := Evaluate(exp, entries)
	metrics.Analyses.WithLabelValues(string(analysis.Outcome)).Inc()
	a.logger.Info("experiment analyzed",
		"experiment", exp.ID,
		"outcome", analysis.Outcome,
		"best", analysis.BestVariant,
		"p_value", analysis.PValue,
	)

	return analysis, nil
}

// Evaluate builds the analysis from an experiment and its ledger entries.
func Evaluate(exp *store.Experiment, entries []*store.LedgerEntry) *Analysis {
	byVariant := make(map[string]*store.LedgerEntry, len(entries))
	for _, e := range entries {
		byVariant[e.VariantID] = e
	}

	analysis := &Analysis{
		TestID:        exp.ID,
		TestName:      exp.Name,
		Status:        exp.Status,
		Variants:      make([]VariantResult, len(exp.Variants)),
		PValue:        1,
		ExactPValue:   1,
		MinSampleSize: exp.MinSampleSize,
	}

	confidence := exp.ConfidenceLevel
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}

	// best leads overall; challenger is the strongest non-control variant
	// and is the one tested against the control.
	best, challenger := 0, 1
	totalImpressions := 0
	for i, v := range exp.Variants {
		var entry store.LedgerEntry
		if e, ok := byVariant[v.ID]; ok {
			entry = *e
		}
		totalImpressions += entry.Impressions

		lower, upper := WilsonInterval(entry.Conversions, entry.Impressions, confidence)
		analysis.Variants[i] = VariantResult{
			VariantID:          v.ID,
			Name:               v.Name,
			Impressions:        entry.Impressions,
			Conversions:        entry.Conversions,
			ConversionRate:     rate(entry.Conversions, entry.Impressions),
			AvgTimeOnPage:      average(entry.TimeOnPage, entry.Impressions),
			AvgScrollDepth:     average(entry.ScrollDepth, entry.Impressions),
			CTAClickRate:       rate(entry.CTAClicks, entry.Impressions),
			SampleSize:         entry.Impressions,
			MeetsMinimumSample: entry.Impressions >= exp.MinSampleSize,
			CILower:            lower,
			CIUpper:            upper,
		}

		if analysis.Variants[i].ConversionRate > analysis.Variants[best].ConversionRate {
			best = i
		}
		if i > 1 && analysis.Variants[i].ConversionRate > analysis.Variants[challenger].ConversionRate {
			challenger = i
		}
	}
	if challenger >= len(analysis.Variants) {
		challenger = 0
	}

	if len(analysis.Variants) == 0 {
		analysis.Outcome = OutcomeNoData
		analysis.Recommendation = "Experiment has no variants."
		return analysis
	}

	control := analysis.Variants[0]
	leader := analysis.Variants[best]
	rival := analysis.Variants[challenger]
	analysis.Control = control.VariantID
	analysis.BestVariant = leader.VariantID

	if totalImpressions == 0 {
		analysis.Outcome = OutcomeNoData
		analysis.Recommendation = "No data recorded yet."
		return analysis
	}

	if !control.MeetsMinimumSample || !rival.MeetsMinimumSample {
		analysis.Outcome = OutcomeInsufficientData
		analysis.Recommendation = needMoreData(analysis.Variants, exp.MinSampleSize)
		return analysis
	}

	result := ChiSquareTest(control.Conversions, control.Impressions, rival.Conversions, rival.Impressions)
	analysis.Confidence = result.Confidence
	analysis.PValue = result.PValue
	analysis.ChiSquare = result.Statistic
	analysis.ExactPValue = result.ExactPValue

	if !result.Significant || result.Confidence < confidence {
		analysis.Outcome = OutcomeNotSignificant
		analysis.Recommendation = "Continue test. No significant difference detected yet."
		return analysis
	}

	analysis.Outcome = OutcomeSignificant
	if best == 0 {
		analysis.Recommendation = "Control performs best. Keep the current version."
		return analysis
	}

	analysis.Winner = leader.VariantID
	analysis.ReadyToScale = true
	if control.ConversionRate > 0 {
		lift := (leader.ConversionRate - control.ConversionRate) / control.ConversionRate * 100
		analysis.Lift = &lift
		analysis.Recommendation = fmt.Sprintf("Implement %s: %.1f%% lift with %.1f%% confidence.",
			leader.Name, lift, result.Confidence*100)
	} else {
		analysis.Recommendation = fmt.Sprintf("Implement %s: control has no conversions, %.1f%% confidence.",
			leader.Name, result.Confidence*100)
	}

	return analysis
}

func needMoreData(variants []VariantResult, minSample int) string {
	parts := make([]string, len(variants))
	for i, v := range variants {
		parts[i] = fmt.Sprintf("%s=%d", v.VariantID, v.SampleSize)
	}
	return fmt.Sprintf("Need more data. Current samples: %s (minimum %d per variant).",
		strings.Join(parts, ", "), minSample)
}

func average(sum float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return sum / float64(n)
}
