package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/landing-lab/landing-lab/internal/metrics"
	"github.com/landing-lab/landing-lab/internal/store"
)

// Defaults fill definition fields left at their zero value.
type Defaults struct {
	MinSampleSize   int
	ConfidenceLevel float64
}

type Options struct {
	Defaults Defaults
	// Timeout bounds each storage call. Zero means no timeout.
	Timeout time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

// Registry validates and stores experiment definitions.
type Registry struct {
	repo     store.ExperimentRepository
	defaults Defaults
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewRegistry(repo store.ExperimentRepository, opts Options) *Registry {
	r := &Registry{
		repo:     repo,
		defaults: opts.Defaults,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if r.defaults.MinSampleSize <= 0 {
		r.defaults.MinSampleSize = DefaultMinSampleSize
	}
	if r.defaults.ConfidenceLevel <= 0 || r.defaults.ConfidenceLevel >= 1 {
		r.defaults.ConfidenceLevel = DefaultConfidenceLevel
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// CreateExperiment validates def and stores it. Nothing is written when
// validation fails.
func (r *Registry) CreateExperiment(ctx context.Context, def Definition) (*store.Experiment, error) {
	if err := def.Validate(); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			metrics.ValidationFailures.WithLabelValues(ve.Field).Inc()
		}
		return nil, err
	}

	exp := def.build(r.now(), r.defaults)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.repo.InsertExperiment(ctx, exp); err != nil {
		if errors.Is(err, store.ErrExists) {
			return nil, &ValidationError{Field: "testId", Message: fmt.Sprintf("experiment %q already exists", exp.ID), Err: err}
		}
		metrics.StorageErrors.WithLabelValues("insert_experiment").Inc()
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}

	metrics.ExperimentsCreated.Inc()
	r.logger.Info("experiment created",
		"experiment", exp.ID,
		"variants", len(exp.Variants),
		"min_sample_size", exp.MinSampleSize,
	)

	return exp, nil
}

// GetExperiment returns the experiment or an error wrapping store.ErrNotFound.
func (r *Registry) GetExperiment(ctx context.Context, id string) (*store.Experiment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	exp, err := r.repo.GetExperiment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("experiment %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		metrics.StorageErrors.WithLabelValues("get_experiment").Inc()
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func (r *Registry) ListExperiments(ctx context.Context) ([]*store.Experiment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	experiments, err := r.repo.ListExperiments(ctx)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("list_experiments").Inc()
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	return experiments, nil
}

// StopExperiment moves an active experiment to stopped. Stopping an already
// stopped experiment returns it unchanged.
func (r *Registry) StopExperiment(ctx context.Context, id, reason string) (*store.Experiment, error) {
	exp, err := r.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}

	if exp.Status == store.StatusStopped {
		r.logger.Debug("experiment already stopped", "experiment", id)
		return exp, nil
	}

	now := r.now()
	exp.Status = store.StatusStopped
	exp.StopReason = reason
	exp.EndDate = &now
	exp.UpdatedAt = now

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.repo.UpdateExperiment(ctx, exp); err != nil {
		metrics.StorageErrors.WithLabelValues("update_experiment").Inc()
		return nil, fmt.Errorf("failed to stop experiment: %w", err)
	}

	metrics.ExperimentsStopped.Inc()
	r.logger.Info("experiment stopped", "experiment", id, "reason", reason)

	return exp, nil
}

func (r *Registry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
