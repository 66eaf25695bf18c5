// Package testkit provides in-memory fakes for the engine and ledger ports so
// services can be exercised without an external simulator or database.
package testkit

import (
	"context"
	"sort"
	"sync"

	"episweep/domain/core"
	"episweep/domain/sweep"
	"episweep/ports"
)

// TestKit bundles the fakes a service test usually needs.
type TestKit struct {
	engines *FakeEngineFactory
	ledger  *InMemoryLedgerAdapter
}

// NewTestKit creates a new test kit instance
func NewTestKit() *TestKit {
	return &TestKit{
		engines: NewFakeEngineFactory(),
		ledger:  NewInMemoryLedgerAdapter(),
	}
}

// Engines returns the shared fake engine factory.
func (t *TestKit) Engines() *FakeEngineFactory {
	return t.engines
}

// Ledger returns the shared in-memory ledger.
func (t *TestKit) Ledger() *InMemoryLedgerAdapter {
	return t.ledger
}

// InMemoryLedgerAdapter implements ports.SweepLedger with in-memory storage
type InMemoryLedgerAdapter struct {
	records map[core.ID][]sweep.CellRecord
	closed  bool
	mu      sync.RWMutex
}

var _ ports.SweepLedger = (*InMemoryLedgerAdapter)(nil)

func NewInMemoryLedgerAdapter() *InMemoryLedgerAdapter {
	return &InMemoryLedgerAdapter{
		records: make(map[core.ID][]sweep.CellRecord),
	}
}

func (s *InMemoryLedgerAdapter) RecordCell(ctx context.Context, record sweep.CellRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return core.NewStoreError("record_cell", record.Key(), context.Canceled)
	}
	s.records[record.SweepID] = append(s.records[record.SweepID], record)
	return nil
}

func (s *InMemoryLedgerAdapter) ListCells(ctx context.Context, sweepID core.ID) ([]sweep.CellRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]sweep.CellRecord(nil), s.records[sweepID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (s *InMemoryLedgerAdapter) ListCellsByStatus(ctx context.Context, sweepID core.ID, status sweep.CellStatus) ([]sweep.CellRecord, error) {
	all, err := s.ListCells(ctx, sweepID)
	if err != nil {
		return nil, err
	}
	var out []sweep.CellRecord
	for _, r := range all {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryLedgerAdapter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
