package assign

import (
	"context"
	"log/slog"

	"github.com/landing-lab/landing-lab/internal/metrics"
	"github.com/landing-lab/landing-lab/internal/store"
)

// ExperimentSource loads experiment definitions.
type ExperimentSource interface {
	GetExperiment(ctx context.Context, id string) (*store.Experiment, error)
}

// Assignment is the variant chosen for one visitor.
type Assignment struct {
	ExperimentID   string                `json:"experimentId"`
	VisitorID      string                `json:"visitorId"`
	VariantID      string                `json:"variantId"`
	VariantName    string                `json:"variantName"`
	Bucket         float64               `json:"bucket"`
	IsControl      bool                  `json:"isControl"`
	Active         bool                  `json:"active"`
	Implementation *store.Implementation `json:"implementation,omitempty"`
}

type Service struct {
	experiments ExperimentSource
	logger      *slog.Logger
}

func NewService(experiments ExperimentSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{experiments: experiments, logger: logger}
}

// AssignVariant returns the same variant for the same (experiment, visitor)
// pair for as long as the experiment definition is unchanged. Unknown
// experiments return an error wrapping store.ErrNotFound.
func (s *Service) AssignVariant(ctx context.Context, experimentID, visitorID string) (*Assignment, error) {
	exp, err := s.experiments.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	bucket := Bucket(experimentID, visitorID)
	idx := PickVariant(exp.Variants, bucket)
	v := exp.Variants[idx]

	metrics.Assignments.WithLabelValues(exp.ID, v.ID).Inc()
	s.logger.Debug("variant assigned",
		"experiment", exp.ID,
		"visitor", visitorID,
		"variant", v.ID,
		"bucket", bucket,
	)

	return &Assignment{
		ExperimentID:   exp.ID,
		VisitorID:      visitorID,
		VariantID:      v.ID,
		VariantName:    v.Name,
		Bucket:         bucket,
		IsControl:      idx == 0,
		Active:         exp.Status == store.StatusActive,
		Implementation: v.Implementation,
	}, nil
}

// PickVariant walks variants in stored order, accumulating traffic
// percentages, and returns the index of the first variant whose cumulative
// threshold is >= bucket. Variants with no traffic are never picked. It falls
// back to the control (index 0) when rounding leaves the bucket above every
// threshold.
func PickVariant(variants []store.Variant, bucket float64) int {
	cumulative := 0.0
	for i, v := range variants {
		cumulative += v.TrafficPercent
		if v.TrafficPercent > 0 && cumulative >= bucket {
			return i
		}
	}
	return 0
}
