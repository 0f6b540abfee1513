package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Critical chi-square values for one degree of freedom.
const (
	critical001 = 10.83
	critical01  = 6.63
	critical05  = 3.84

	// SignificanceThreshold is the p-value below which a result is significant.
	SignificanceThreshold = 0.05
)

// ChiSquareResult is the outcome of a 2x2 chi-square test between two
// variants' conversion counts.
type ChiSquareResult struct {
	Statistic   float64 `json:"chiSquare"`
	PValue      float64 `json:"pValue"`
	Confidence  float64 `json:"confidence"`
	Significant bool    `json:"significant"`
	// ExactPValue is the df=1 chi-square survival function. It is
	// informational; the verdict uses the banded PValue.
	ExactPValue float64 `json:"exactPValue"`
	Rate1       float64 `json:"rate1"`
	Rate2       float64 `json:"rate2"`
	// Lift is the relative improvement of variant 2 over variant 1 in
	// percent, or 0 when variant 1 has no conversions.
	Lift float64 `json:"lift"`
}

// ChiSquareTest compares (conversions1 of impressions1) against
// (conversions2 of impressions2) with a 2x2 contingency table. The
// statistic maps to a p-value through fixed critical bands; below the 0.05
// band p is approximated by e^(-statistic/2).
func ChiSquareTest(conversions1, impressions1, conversions2, impressions2 int) ChiSquareResult {
	observed := [2][2]float64{
		{float64(conversions1), float64(impressions1 - conversions1)},
		{float64(conversions2), float64(impressions2 - conversions2)},
	}

	rowTotals := [2]float64{float64(impressions1), float64(impressions2)}
	colTotals := [2]float64{
		observed[0][0] + observed[1][0],
		observed[0][1] + observed[1][1],
	}
	total := rowTotals[0] + rowTotals[1]

	statistic := 0.0
	if total > 0 {
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				expected := rowTotals[i] * colTotals[j] / total
				// Empty marginals carry no evidence either way.
				if expected == 0 {
					continue
				}
				diff := observed[i][j] - expected
				statistic += diff * diff / expected
			}
		}
	}

	pValue := bandedPValue(statistic)

	result := ChiSquareResult{
		Statistic:   statistic,
		PValue:      pValue,
		Confidence:  1 - pValue,
		Significant: pValue < SignificanceThreshold,
		ExactPValue: distuv.ChiSquared{K: 1}.Survival(statistic),
		Rate1:       rate(conversions1, impressions1),
		Rate2:       rate(conversions2, impressions2),
	}
	if result.Rate1 > 0 {
		result.Lift = (result.Rate2 - result.Rate1) / result.Rate1 * 100
	}

	return result
}

func bandedPValue(statistic float64) float64 {
	switch {
	case statistic >= critical001:
		return 0.001
	case statistic >= critical01:
		return 0.01
	case statistic >= critical05:
		return 0.05
	default:
		return math.Exp(-statistic / 2)
	}
}

func rate(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den)
}
