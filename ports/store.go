package ports

import (
	"context"

	"episweep/domain/series"
	"episweep/domain/sweep"
)

// Array names persisted per cell.
const (
	ArrayOverall = "overall"
	ArrayUser    = "user"
)

// OutputStore persists per-cell artifacts under the cell's key. Writes for
// distinct keys never interfere and readers never observe a partially
// written artifact. A cell is complete once MarkComplete has succeeded.
type OutputStore interface {
	// IsComplete reports whether the cell's completion manifest exists.
	IsComplete(ctx context.Context, key string) (bool, error)
	// Manifest returns the completion manifest, or core.ErrArtifactNotFound.
	Manifest(ctx context.Context, key string) (*sweep.CellManifest, error)

	PutTable(ctx context.Context, key string, table *series.ResultSeries) error
	PutArray(ctx context.Context, key, name string, values []float64) error
	// MarkComplete must be the last write for a cell.
	MarkComplete(ctx context.Context, manifest sweep.CellManifest) error

	GetTable(ctx context.Context, key string) (*series.ResultSeries, error)
	GetArray(ctx context.Context, key, name string) ([]float64, error)
	// ListArrays names the arrays stored for key.
	ListArrays(ctx context.Context, key string) ([]string, error)
	// CompleteKeys lists every completed cell, sorted.
	CompleteKeys(ctx context.Context) ([]string, error)
}
