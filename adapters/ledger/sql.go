// Package ledger records sweep cell outcomes in a SQL database, Postgres or
// SQLite depending on the DSN.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"episweep/domain/core"
	"episweep/domain/sweep"
	"episweep/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names as registered with database/sql.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLLedger implements ports.SweepLedger with sqlx.
type SQLLedger struct {
	db     *sqlx.DB
	driver string
}

var _ ports.SweepLedger = (*SQLLedger)(nil)

// ParseDSN picks the driver for dsn: postgres:// and postgresql:// go to
// Postgres; sqlite://path, file: URIs and *.db paths go to SQLite.
func ParseDSN(dsn string) (driver, source string, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "file:"), strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"), dsn == ":memory:":
		return DriverSQLite, dsn, nil
	default:
		return "", "", core.NewConfigurationError("ledger_dsn", fmt.Sprintf("cannot infer driver from %q", dsn))
	}
}

// Open connects and creates the schema if it does not exist.
func Open(ctx context.Context, dsn string) (*SQLLedger, error) {
	driver, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, driver, source)
	if err != nil {
		return nil, core.NewStoreError("open_ledger", driver, err)
	}
	if driver == DriverSQLite {
		// Every new connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return NewSQLLedger(ctx, db)
}

// NewSQLLedger wraps an open connection and migrates it.
func NewSQLLedger(ctx context.Context, db *sqlx.DB) (*SQLLedger, error) {
	l := &SQLLedger{db: db, driver: db.DriverName()}
	if err := l.migrate(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SQLLedger) migrate(ctx context.Context) error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if l.driver == DriverPostgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sweep_cells (
			` + idColumn + `,
			sweep_id      TEXT    NOT NULL,
			cell_key      TEXT    NOT NULL,
			arm           TEXT    NOT NULL,
			adoption_pct  INTEGER NOT NULL,
			ten_times_r   INTEGER NOT NULL,
			seed          BIGINT  NOT NULL,
			status        TEXT    NOT NULL,
			error_kind    TEXT    NOT NULL DEFAULT '',
			error_message TEXT    NOT NULL DEFAULT '',
			duration_ms   BIGINT  NOT NULL,
			recorded_at   TEXT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sweep_cells_sweep_idx ON sweep_cells (sweep_id, cell_key)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return core.NewStoreError("migrate_ledger", "sweep_cells", err)
		}
	}
	return nil
}

type cellRow struct {
	SweepID      string `db:"sweep_id"`
	CellKey      string `db:"cell_key"`
	Arm          string `db:"arm"`
	AdoptionPct  int    `db:"adoption_pct"`
	TenTimesR    int    `db:"ten_times_r"`
	Seed         int64  `db:"seed"`
	Status       string `db:"status"`
	ErrorKind    string `db:"error_kind"`
	ErrorMessage string `db:"error_message"`
	DurationMs   int64  `db:"duration_ms"`
	RecordedAt   string `db:"recorded_at"`
}

func toRow(r sweep.CellRecord) cellRow {
	at := r.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return cellRow{
		SweepID:      r.SweepID.String(),
		CellKey:      r.Key(),
		Arm:          r.Point.Arm,
		AdoptionPct:  r.Point.AdoptionPct,
		TenTimesR:    r.Point.TenTimesR,
		Seed:         r.Point.Seed,
		Status:       string(r.Status),
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.Error,
		DurationMs:   r.Duration.Milliseconds(),
		RecordedAt:   at.UTC().Format(time.RFC3339Nano),
	}
}

func (row cellRow) record() (sweep.CellRecord, error) {
	at, err := time.Parse(time.RFC3339Nano, row.RecordedAt)
	if err != nil {
		return sweep.CellRecord{}, fmt.Errorf("recorded_at %q: %w", row.RecordedAt, err)
	}
	return sweep.CellRecord{
		SweepID: core.ID(row.SweepID),
		Point: sweep.GridPoint{
			Arm:         row.Arm,
			AdoptionPct: row.AdoptionPct,
			TenTimesR:   row.TenTimesR,
			Seed:        row.Seed,
		},
		Status:    sweep.CellStatus(row.Status),
		ErrorKind: row.ErrorKind,
		Error:     row.ErrorMessage,
		Duration:  time.Duration(row.DurationMs) * time.Millisecond,
		At:        at,
	}, nil
}

// RecordCell appends one outcome.
func (l *SQLLedger) RecordCell(ctx context.Context, record sweep.CellRecord) error {
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO sweep_cells (
			sweep_id, cell_key, arm, adoption_pct, ten_times_r, seed,
			status, error_kind, error_message, duration_ms, recorded_at
		) VALUES (
			:sweep_id, :cell_key, :arm, :adoption_pct, :ten_times_r, :seed,
			:status, :error_kind, :error_message, :duration_ms, :recorded_at
		)
	`, toRow(record))
	if err != nil {
		return core.NewStoreError("record_cell", record.Key(), err)
	}
	return nil
}

// ListCells returns every outcome recorded for sweepID ordered by key.
func (l *SQLLedger) ListCells(ctx context.Context, sweepID core.ID) ([]sweep.CellRecord, error) {
	return l.selectCells(ctx, "list_cells", `
		SELECT sweep_id, cell_key, arm, adoption_pct, ten_times_r, seed,
		       status, error_kind, error_message, duration_ms, recorded_at
		FROM sweep_cells
		WHERE sweep_id = ?
		ORDER BY cell_key, id
	`, sweepID.String())
}

// ListCellsByStatus filters ListCells by status.
func (l *SQLLedger) ListCellsByStatus(ctx context.Context, sweepID core.ID, status sweep.CellStatus) ([]sweep.CellRecord, error) {
	return l.selectCells(ctx, "list_cells_by_status", `
		SELECT sweep_id, cell_key, arm, adoption_pct, ten_times_r, seed,
		       status, error_kind, error_message, duration_ms, recorded_at
		FROM sweep_cells
		WHERE sweep_id = ? AND status = ?
		ORDER BY cell_key, id
	`, sweepID.String(), string(status))
}

func (l *SQLLedger) selectCells(ctx context.Context, op, query string, args ...interface{}) ([]sweep.CellRecord, error) {
	var rows []cellRow
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return nil, core.NewStoreError(op, fmt.Sprint(args[0]), err)
	}
	out := make([]sweep.CellRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, core.NewStoreError(op, row.CellKey, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close closes the connection.
func (l *SQLLedger) Close() error {
	return l.db.Close()
}
