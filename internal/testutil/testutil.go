package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/landing-lab/landing-lab/internal/store"
)

// SetupTestStore creates a test database and returns the store.
// Uses t.TempDir() for automatic cleanup on test completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// SplitExperiment returns an active experiment with the given variants split
// evenly, the first variant acting as control.
func SplitExperiment(id string, minSample int, variantIDs ...string) *store.Experiment {
	share := 100.0 / float64(len(variantIDs))
	split := make(map[string]float64, len(variantIDs))
	variants := make([]store.Variant, len(variantIDs))
	for i, v := range variantIDs {
		split[v] = share
		variants[i] = store.Variant{ID: v, Name: v, TrafficPercent: share}
	}

	now := time.Unix(1700000000, 0)
	return &store.Experiment{
		ID:              id,
		Name:            id,
		Page:            "index",
		Variants:        variants,
		TrafficSplit:    split,
		MinSampleSize:   minSample,
		ConfidenceLevel: 0.95,
		PrimaryMetric:   "conversion_rate",
		Status:          store.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
