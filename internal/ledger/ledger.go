// Package ledger accumulates per-variant engagement and conversion counters.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/landing-lab/landing-lab/internal/metrics"
	"github.com/landing-lab/landing-lab/internal/store"
)

var ErrExperimentStopped = errors.New("experiment is stopped")

// ExperimentSource loads experiment definitions.
type ExperimentSource interface {
	GetExperiment(ctx context.Context, id string) (*store.Experiment, error)
}

type Options struct {
	// Timeout bounds each storage call. Zero means no timeout.
	Timeout time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

// Ledger records events. Each update is an atomic read-modify-write in the
// repository, so concurrent callers never lose increments.
type Ledger struct {
	repo        store.LedgerRepository
	experiments ExperimentSource
	timeout     time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func New(repo store.LedgerRepository, experiments ExperimentSource, opts Options) *Ledger {
	l := &Ledger{
		repo:        repo,
		experiments: experiments,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// RecordEvent adds one impression for the variant and applies the optional
// counters carried by data. The updated entry is persisted before returning.
func (l *Ledger) RecordEvent(ctx context.Context, experimentID, variantID string, data EventData) (*store.LedgerEntry, error) {
	exp, err := l.experiments.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if _, ok := exp.Variant(variantID); !ok {
		return nil, fmt.Errorf("variant %q in experiment %q: %w", variantID, experimentID, store.ErrNotFound)
	}
	if exp.Status != store.StatusActive {
		return nil, fmt.Errorf("record event for %q: %w", experimentID, ErrExperimentStopped)
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	now := l.now()
	entry, err := l.repo.UpdateLedger(ctx, experimentID, variantID, func(entry *store.LedgerEntry) {
		apply(entry, data, now)
	})
	if err != nil {
		metrics.StorageErrors.WithLabelValues("update_ledger").Inc()
		return nil, fmt.Errorf("failed to update ledger: %w", err)
	}

	metrics.Events.WithLabelValues(experimentID, variantID, "impression").Inc()
	if data.Converted() {
		metrics.Events.WithLabelValues(experimentID, variantID, "conversion").Inc()
	}
	if data.CTAClick() {
		metrics.Events.WithLabelValues(experimentID, variantID, "cta_click").Inc()
	}

	l.logger.Debug("event recorded",
		"experiment", experimentID,
		"variant", variantID,
		"impressions", entry.Impressions,
		"conversions", entry.Conversions,
	)

	return entry, nil
}

// Entries returns every ledger entry recorded for the experiment.
func (l *Ledger) Entries(ctx context.Context, experimentID string) ([]*store.LedgerEntry, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	entries, err := l.repo.ListLedger(ctx, experimentID)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("list_ledger").Inc()
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	return entries, nil
}

func apply(entry *store.LedgerEntry, data EventData, now time.Time) {
	entry.Impressions++
	if data.Converted() {
		entry.Conversions++
	}
	if v, ok := data.TimeOnPage(); ok {
		entry.TimeOnPage += v
	}
	if v, ok := data.ScrollDepth(); ok {
		entry.ScrollDepth += v
	}
	if data.CTAClick() {
		entry.CTAClicks++
	}

	entry.Events = append(entry.Events, store.RecordedEvent{
		ID:        uuid.NewString(),
		Timestamp: now,
		Data:      data.clone(),
	})
	if over := len(entry.Events) - store.MaxRecentEvents; over > 0 {
		entry.Events = append([]store.RecordedEvent(nil), entry.Events[over:]...)
	}
	entry.UpdatedAt = now
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}
