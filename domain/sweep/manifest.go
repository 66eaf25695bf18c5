package sweep

import (
	"crypto/sha256"
	"fmt"

	"episweep/domain/core"
)

// CodeVersion is recorded in every manifest so stale artifacts can be told
// apart from current ones.
const CodeVersion = "v0.3.0"

// CellManifest is written last when a cell's artifacts are in place. Its
// presence is what marks the cell complete.
type CellManifest struct {
	Key          string         `json:"key"`
	Point        GridPoint      `json:"point"`
	SweepID      core.ID        `json:"sweep_id"`
	ConfigHash   core.Hash      `json:"config_hash"`
	DurationDays int            `json:"duration_days"`
	Rows         int            `json:"rows"`
	Channels     []string       `json:"channels"`
	Arrays       []string       `json:"arrays"`
	Vaccinated   bool           `json:"vaccinated"`
	CodeVersion  string         `json:"code_version"`
	Fingerprint  core.Hash      `json:"fingerprint"`
	CreatedAt    core.Timestamp `json:"created_at"`
}

// NewCellManifest records what was run for point and fingerprints it.
func NewCellManifest(sweepID core.ID, point GridPoint, configHash core.Hash, durationDays, rows int,
	channels, arrays []string, vaccinated bool) CellManifest {

	return CellManifest{
		Key:          point.Key(),
		Point:        point,
		SweepID:      sweepID,
		ConfigHash:   configHash,
		DurationDays: durationDays,
		Rows:         rows,
		Channels:     append([]string(nil), channels...),
		Arrays:       append([]string(nil), arrays...),
		Vaccinated:   vaccinated,
		CodeVersion:  CodeVersion,
		Fingerprint:  ComputeCellFingerprint(point, configHash, durationDays, vaccinated),
		CreatedAt:    core.Now(),
	}
}

// ComputeCellFingerprint hashes everything that determines a cell's output.
// Two runs with the same fingerprint are expected to produce the same data.
func ComputeCellFingerprint(point GridPoint, configHash core.Hash, durationDays int, vaccinated bool) core.Hash {
	data := fmt.Sprintf("key:%s|config:%s|seed:%d|duration:%d|vaccinated:%t",
		point.Key(), configHash, point.Seed, durationDays, vaccinated)
	sum := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", sum))
}

// Validate checks if the manifest is complete
func (m CellManifest) Validate() error {
	if m.Key == "" {
		return core.NewValidationError("cell_manifest", "key cannot be empty")
	}
	if m.Key != m.Point.Key() {
		return core.NewValidationError("cell_manifest", fmt.Sprintf("key %s does not match point %s", m.Key, m.Point.Key()))
	}
	if m.ConfigHash.IsEmpty() {
		return core.NewValidationError("cell_manifest", "config_hash cannot be empty")
	}
	if m.Rows != m.DurationDays+1 {
		return core.NewValidationError("cell_manifest", fmt.Sprintf("%d rows for %d days", m.Rows, m.DurationDays))
	}
	if m.Fingerprint != ComputeCellFingerprint(m.Point, m.ConfigHash, m.DurationDays, m.Vaccinated) {
		return fmt.Errorf("%w: cell %s", core.ErrFingerprint, m.Key)
	}
	return nil
}
