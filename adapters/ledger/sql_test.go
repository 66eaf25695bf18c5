package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"episweep/domain/core"
	"episweep/domain/sweep"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSN(t *testing.T) {
	testCases := []struct {
		dsn, driver, source string
	}{
		{"postgres://u:p@localhost/episweep?sslmode=disable", DriverPostgres, "postgres://u:p@localhost/episweep?sslmode=disable"},
		{"postgresql://localhost/x", DriverPostgres, "postgresql://localhost/x"},
		{"sqlite://:memory:", DriverSQLite, ":memory:"},
		{"sqlite:///tmp/ledger.db", DriverSQLite, "/tmp/ledger.db"},
		{"results/ledger.db", DriverSQLite, "results/ledger.db"},
		{"file:ledger?mode=memory", DriverSQLite, "file:ledger?mode=memory"},
	}
	for _, tc := range testCases {
		driver, source, err := ParseDSN(tc.dsn)
		require.NoError(t, err, tc.dsn)
		assert.Equal(t, tc.driver, driver, tc.dsn)
		assert.Equal(t, tc.source, source, tc.dsn)
	}

	_, _, err := ParseDSN("mysql://localhost")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestSQLLedger_RoundTripOnSQLite(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	defer l.Close()

	id := core.NewID()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ok := sweep.CellRecord{
		SweepID:  id,
		Point:    sweep.GridPoint{Arm: "non_novid", AdoptionPct: 40, TenTimesR: 25, Seed: 23649},
		Status:   sweep.CellExecuted,
		Duration: 1500 * time.Millisecond,
		At:       at,
	}
	failed := sweep.CellRecord{
		SweepID:   id,
		Point:     sweep.GridPoint{Arm: "novid", AdoptionPct: 0, TenTimesR: 10, Seed: 1},
		Status:    sweep.CellFailed,
		ErrorKind: core.KindSimulation,
		Error:     "simulation failed: diverged",
		At:        at,
	}
	other := ok
	other.SweepID = core.NewID()

	require.NoError(t, l.RecordCell(ctx, ok))
	require.NoError(t, l.RecordCell(ctx, failed))
	require.NoError(t, l.RecordCell(ctx, other))

	all, err := l.ListCells(ctx, id)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ok, all[0])
	assert.Equal(t, failed, all[1])

	onlyFailed, err := l.ListCellsByStatus(ctx, id, sweep.CellFailed)
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, "simulation failed: diverged", onlyFailed[0].Error)
}

func TestSQLLedger_ReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	id := core.NewID()

	l, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, l.RecordCell(ctx, sweep.CellRecord{SweepID: id, Point: sweep.GridPoint{Arm: "novid", Seed: 1}, Status: sweep.CellSkipped}))
	require.NoError(t, l.Close())

	l, err = Open(ctx, path)
	require.NoError(t, err)
	defer l.Close()
	all, err := l.ListCells(ctx, id)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
