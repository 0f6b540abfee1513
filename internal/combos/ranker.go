// Package combos enumerates pattern combinations, predicts their combined
// lift and ranks them into an implementation plan.
package combos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/landing-lab/landing-lab/internal/metrics"
	"github.com/landing-lab/landing-lab/internal/patterns"
)

// ErrTooFewPatterns is returned when fewer than two patterns are eligible.
var ErrTooFewPatterns = errors.New("need at least 2 eligible patterns")

type Options struct {
	ProductionOnly bool
	IncludeTriples bool
	// TopPairs is how many of the best pairs are extended into triples.
	TopPairs int
	// TripleThreshold is the predicted lift a pair must exceed to be extended.
	TripleThreshold float64
	// Limit caps the number of combinations in the report.
	Limit       int
	Concurrency int
}

func DefaultOptions() Options {
	return Options{
		ProductionOnly:  true,
		TopPairs:        5,
		TripleThreshold: 10,
		Limit:           10,
	}
}

// CatalogueSource provides the current pattern catalogue.
type CatalogueSource interface {
	Catalogue() *patterns.Catalogue
}

type Ranker struct {
	source CatalogueSource
	logger *slog.Logger
}

func NewRanker(source CatalogueSource, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{source: source, logger: logger}
}

// TestAllCombinations scores every eligible pair, optionally extends the best
// pairs into triples, and returns the ranked report.
func (r *Ranker) TestAllCombinations(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	defer func() {
		metrics.CombinationRunDuration.Observe(time.Since(start).Seconds())
	}()

	opts = withDefaults(opts)

	cat := r.source.Catalogue()
	if cat == nil {
		return nil, patterns.ErrCatalogueMissing
	}
	eligible := cat.Eligible(opts.ProductionOnly)
	if len(eligible) < 2 {
		return nil, fmt.Errorf("%w: found %d", ErrTooFewPatterns, len(eligible))
	}

	pairs, err := evaluateAll(ctx, enumeratePairs(eligible), opts.Concurrency)
	if err != nil {
		return nil, err
	}
	candidates := pairs

	if opts.IncludeTriples {
		sets := extendPairs(eligible, rankByLift(pairs), opts.TopPairs, opts.TripleThreshold)
		triples, err := evaluateAll(ctx, sets, opts.Concurrency)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, triples...)
	}

	candidates = rankByLift(candidates)

	r.logger.Info("combination analysis complete",
		"eligible", len(eligible),
		"tested", len(candidates),
		"triples", opts.IncludeTriples,
		"duration", time.Since(start),
	)

	return buildReport(candidates, opts.Limit), nil
}

func withDefaults(opts Options) Options {
	d := DefaultOptions()
	if opts.TopPairs <= 0 {
		opts.TopPairs = d.TopPairs
	}
	if opts.Limit <= 0 {
		opts.Limit = d.Limit
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	return opts
}

func enumeratePairs(eligible []patterns.Pattern) [][]patterns.Pattern {
	var sets [][]patterns.Pattern
	for i := 0; i < len(eligible); i++ {
		for j := i + 1; j < len(eligible); j++ {
			sets = append(sets, []patterns.Pattern{eligible[i], eligible[j]})
		}
	}
	return sets
}

// extendPairs adds each remaining eligible pattern to the top pairs whose lift
// exceeds threshold. Triples reachable from more than one pair appear once.
func extendPairs(eligible []patterns.Pattern, ranked []Combination, top int, threshold float64) [][]patterns.Pattern {
	byID := make(map[string]patterns.Pattern, len(eligible))
	for _, p := range eligible {
		byID[p.ID] = p
	}

	seen := make(map[string]bool)
	var sets [][]patterns.Pattern
	for i, pair := range ranked {
		if i >= top || pair.PredictedLift <= threshold {
			break
		}
		for _, extra := range eligible {
			if extra.ID == pair.Patterns[0] || extra.ID == pair.Patterns[1] {
				continue
			}
			ids := []string{pair.Patterns[0], pair.Patterns[1], extra.ID}
			k := key(ids)
			if seen[k] {
				continue
			}
			seen[k] = true
			sets = append(sets, []patterns.Pattern{byID[ids[0]], byID[ids[1]], extra})
		}
	}
	return sets
}

// evaluateAll scores sets in parallel; results keep the input order.
func evaluateAll(ctx context.Context, sets [][]patterns.Pattern, concurrency int) ([]Combination, error) {
	results := make([]Combination, len(sets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, set := range sets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = Evaluate(set)
			metrics.CombinationsEvaluated.WithLabelValues(strconv.Itoa(len(set))).Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// rankByLift sorts by predicted lift, highest first. Ties keep enumeration
// order, so pairs precede triples.
func rankByLift(in []Combination) []Combination {
	out := append([]Combination(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PredictedLift > out[j].PredictedLift
	})
	return out
}
