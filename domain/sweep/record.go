package sweep

import (
	"fmt"
	"time"

	"episweep/domain/core"
)

// CellStatus is the outcome of one cell in one sweep invocation.
type CellStatus string

const (
	CellExecuted CellStatus = "executed"
	CellSkipped  CellStatus = "skipped"
	CellFailed   CellStatus = "failed"
)

// ParseCellStatus validates s as a cell status.
func ParseCellStatus(s string) (CellStatus, error) {
	switch status := CellStatus(s); status {
	case CellExecuted, CellSkipped, CellFailed:
		return status, nil
	default:
		return "", core.NewValidationError("status", fmt.Sprintf("%q is not one of executed, skipped, failed", s))
	}
}

// CellRecord is one line of a sweep report or ledger.
type CellRecord struct {
	SweepID   core.ID       `json:"sweep_id"`
	Point     GridPoint     `json:"point"`
	Status    CellStatus    `json:"status"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// Key is the cell's artifact key.
func (r CellRecord) Key() string {
	return r.Point.Key()
}
