package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and dry runs.
// Values are copied on the way in and out, including implementations, dates
// and event payload maps. Payload values nested inside a payload are not
// cloned.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment
	order       []string
	ledger      map[ledgerKey]*LedgerEntry
}

type ledgerKey struct {
	experimentID string
	variantID    string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]*Experiment),
		ledger:      make(map[ledgerKey]*LedgerEntry),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) InsertExperiment(ctx context.Context, exp *Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.experiments[exp.ID]; ok {
		return fmt.Errorf("experiment %q: %w", exp.ID, ErrExists)
	}
	m.experiments[exp.ID] = copyExperiment(exp)
	m.order = append(m.order, exp.ID)
	return nil
}

func (m *MemoryStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyExperiment(exp), nil
}

func (m *MemoryStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	experiments := make([]*Experiment, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		experiments = append(experiments, copyExperiment(m.experiments[m.order[i]]))
	}
	return experiments, nil
}

func (m *MemoryStore) UpdateExperiment(ctx context.Context, exp *Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.experiments[exp.ID]; !ok {
		return ErrNotFound
	}
	m.experiments[exp.ID] = copyExperiment(exp)
	return nil
}

func (m *MemoryStore) LoadLedger(ctx context.Context, experimentID, variantID string) (*LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.ledger[ledgerKey{experimentID, variantID}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyLedger(entry), nil
}

func (m *MemoryStore) SaveLedger(ctx context.Context, entry *LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ledger[ledgerKey{entry.ExperimentID, entry.VariantID}] = copyLedger(entry)
	return nil
}

func (m *MemoryStore) UpdateLedger(ctx context.Context, experimentID, variantID string, fn func(*LedgerEntry)) (*LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ledgerKey{experimentID, variantID}
	entry := &LedgerEntry{ExperimentID: experimentID, VariantID: variantID}
	if current, ok := m.ledger[key]; ok {
		entry = copyLedger(current)
	}

	fn(entry)

	m.ledger[key] = copyLedger(entry)
	return entry, nil
}

func (m *MemoryStore) ListLedger(ctx context.Context, experimentID string) ([]*LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*LedgerEntry
	for key, entry := range m.ledger {
		if key.experimentID == experimentID {
			entries = append(entries, copyLedger(entry))
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].VariantID < entries[j].VariantID
	})
	return entries, nil
}

func copyExperiment(exp *Experiment) *Experiment {
	c := *exp
	c.Variants = make([]Variant, len(exp.Variants))
	for i, v := range exp.Variants {
		if v.Implementation != nil {
			impl := Implementation{Patches: slices.Clone(v.Implementation.Patches)}
			v.Implementation = &impl
		}
		c.Variants[i] = v
	}
	c.TrafficSplit = maps.Clone(exp.TrafficSplit)
	c.SecondaryMetrics = slices.Clone(exp.SecondaryMetrics)
	c.StartDate = copyTime(exp.StartDate)
	c.EndDate = copyTime(exp.EndDate)
	return &c
}

func copyLedger(entry *LedgerEntry) *LedgerEntry {
	c := *entry
	if entry.Events != nil {
		c.Events = make([]RecordedEvent, len(entry.Events))
		for i, ev := range entry.Events {
			ev.Data = maps.Clone(ev.Data)
			c.Events[i] = ev
		}
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
