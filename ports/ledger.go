package ports

import (
	"context"

	"episweep/domain/core"
	"episweep/domain/sweep"
)

// SweepLedgerWriter records cell outcomes. Records are append-only.
type SweepLedgerWriter interface {
	RecordCell(ctx context.Context, record sweep.CellRecord) error
}

// SweepLedgerReader provides read-only access to recorded outcomes.
type SweepLedgerReader interface {
	ListCells(ctx context.Context, sweepID core.ID) ([]sweep.CellRecord, error)
	ListCellsByStatus(ctx context.Context, sweepID core.ID, status sweep.CellStatus) ([]sweep.CellRecord, error)
}

// SweepLedger combines read and write access.
type SweepLedger interface {
	SweepLedgerWriter
	SweepLedgerReader
	Close() error
}
