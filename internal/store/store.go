package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// StorageError marks a persistence failure. These are infrastructure faults
// and may succeed when retried, unlike validation or not-found errors.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err came from the storage layer.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// ExperimentRepository persists experiment definitions.
type ExperimentRepository interface {
	InsertExperiment(ctx context.Context, exp *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	UpdateExperiment(ctx context.Context, exp *Experiment) error
}

// LedgerRepository persists per-variant event counters.
type LedgerRepository interface {
	LoadLedger(ctx context.Context, experimentID, variantID string) (*LedgerEntry, error)
	SaveLedger(ctx context.Context, entry *LedgerEntry) error
	// UpdateLedger loads the entry for the pair (a zero entry if none exists),
	// applies fn and saves it atomically, returning the saved entry.
	UpdateLedger(ctx context.Context, experimentID, variantID string, fn func(*LedgerEntry)) (*LedgerEntry, error)
	ListLedger(ctx context.Context, experimentID string) ([]*LedgerEntry, error)
}

// Store defines the interface for experiment and ledger storage
type Store interface {
	ExperimentRepository
	LedgerRepository

	// Lifecycle
	Close() error
}
