// Package fs stores cell artifacts as files in one directory: a CSV table,
// NumPy arrays, and a JSON completion marker per cell.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"episweep/domain/core"
	"episweep/domain/series"
	"episweep/domain/sweep"
	"episweep/ports"
)

const (
	tableSuffix  = "_full.csv"
	arraySuffix  = ".npy"
	markerSuffix = ".done.json"
)

// LocalOutputStore implements ports.OutputStore on the local filesystem.
// Every file is published with a rename so readers see either nothing or
// the complete file.
type LocalOutputStore struct {
	basePath string
}

var _ ports.OutputStore = (*LocalOutputStore)(nil)

// NewLocalOutputStore creates the directory if needed.
func NewLocalOutputStore(basePath string) (*LocalOutputStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, core.NewStoreError("open", basePath, err)
	}
	return &LocalOutputStore{basePath: basePath}, nil
}

// BasePath returns the store directory.
func (s *LocalOutputStore) BasePath() string {
	return s.basePath
}

// TablePath is where key's full table is stored.
func (s *LocalOutputStore) TablePath(key string) string {
	return filepath.Join(s.basePath, key+tableSuffix)
}

// ArrayPath is where key's named array is stored.
func (s *LocalOutputStore) ArrayPath(key, name string) string {
	return filepath.Join(s.basePath, key+"_"+name+arraySuffix)
}

// MarkerPath is where key's completion manifest is stored.
func (s *LocalOutputStore) MarkerPath(key string) string {
	return filepath.Join(s.basePath, key+markerSuffix)
}

// IsComplete reports whether key's marker file exists.
func (s *LocalOutputStore) IsComplete(ctx context.Context, key string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, core.NewStoreError("is_complete", key, err)
	}
	_, err := os.Stat(s.MarkerPath(key))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, core.NewStoreError("is_complete", key, err)
	}
}

// Manifest reads the marker written by MarkComplete.
func (s *LocalOutputStore) Manifest(ctx context.Context, key string) (*sweep.CellManifest, error) {
	data, err := s.read("manifest", key, s.MarkerPath(key))
	if err != nil {
		return nil, err
	}
	var m sweep.CellManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, core.NewStoreError("manifest", key, fmt.Errorf("unmarshaling manifest: %w", err))
	}
	return &m, nil
}

// PutTable writes the full table as <key>_full.csv.
func (s *LocalOutputStore) PutTable(ctx context.Context, key string, table *series.ResultSeries) error {
	if err := checkKey(key); err != nil {
		return core.NewStoreError("put_table", key, err)
	}
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		return core.NewStoreError("put_table", key, err)
	}
	return s.write(ctx, "put_table", key, s.TablePath(key), buf.Bytes())
}

// PutArray writes values as a 1-D float64 <key>_<name>.npy.
func (s *LocalOutputStore) PutArray(ctx context.Context, key, name string, values []float64) error {
	if err := checkKey(key); err != nil {
		return core.NewStoreError("put_array", key, err)
	}
	if err := checkKey(name); err != nil {
		return core.NewStoreError("put_array", key, err)
	}
	return s.write(ctx, "put_array", key, s.ArrayPath(key, name), EncodeNPY(values))
}

// MarkComplete validates the manifest and publishes it as the cell's
// marker. Callers write it after every other artifact.
func (s *LocalOutputStore) MarkComplete(ctx context.Context, manifest sweep.CellManifest) error {
	if err := checkKey(manifest.Key); err != nil {
		return core.NewStoreError("mark_complete", manifest.Key, err)
	}
	if err := manifest.Validate(); err != nil {
		return core.NewStoreError("mark_complete", manifest.Key, err)
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return core.NewStoreError("mark_complete", manifest.Key, fmt.Errorf("marshaling manifest: %w", err))
	}
	return s.write(ctx, "mark_complete", manifest.Key, s.MarkerPath(manifest.Key), data)
}

// GetTable reads key's full table.
func (s *LocalOutputStore) GetTable(ctx context.Context, key string) (*series.ResultSeries, error) {
	data, err := s.read("get_table", key, s.TablePath(key))
	if err != nil {
		return nil, err
	}
	table, err := series.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, core.NewStoreError("get_table", key, err)
	}
	return table, nil
}

// GetArray decodes key's named array.
func (s *LocalOutputStore) GetArray(ctx context.Context, key, name string) ([]float64, error) {
	data, err := s.read("get_array", key, s.ArrayPath(key, name))
	if err != nil {
		return nil, err
	}
	values, err := DecodeNPY(data)
	if err != nil {
		return nil, core.NewStoreError("get_array", key, err)
	}
	return values, nil
}

// ListArrays returns the array names stored for key, sorted.
func (s *LocalOutputStore) ListArrays(ctx context.Context, key string) ([]string, error) {
	if err := checkKey(key); err != nil {
		return nil, core.NewStoreError("list_arrays", key, err)
	}
	matches, err := filepath.Glob(filepath.Join(s.basePath, globEscape(key)+"_*"+arraySuffix))
	if err != nil {
		return nil, core.NewStoreError("list_arrays", key, err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(base, key+"_"), arraySuffix))
	}
	sort.Strings(names)
	return names, nil
}

// CompleteKeys lists keys with a marker, sorted.
func (s *LocalOutputStore) CompleteKeys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, core.NewStoreError("complete_keys", s.basePath, err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), markerSuffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), markerSuffix))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalOutputStore) read(op, key, path string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, core.NewStoreError(op, key, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewStoreError(op, key, fmt.Errorf("%w: %s", core.ErrArtifactNotFound, filepath.Base(path)))
		}
		return nil, core.NewStoreError(op, key, err)
	}
	return data, nil
}

// write publishes data at path via a temp file in the same directory and a
// rename, so a crash leaves either the old file or none.
func (s *LocalOutputStore) write(ctx context.Context, op, key, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return core.NewStoreError(op, key, err)
	}
	tmp, err := os.CreateTemp(s.basePath, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return core.NewStoreError(op, key, fmt.Errorf("creating temp file: %w", err))
	}
	tmpPath := tmp.Name()
	cleanup := func(cause error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return core.NewStoreError(op, key, cause)
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("writing temp file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return core.NewStoreError(op, key, fmt.Errorf("closing temp file: %w", err))
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return core.NewStoreError(op, key, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return core.NewStoreError(op, key, fmt.Errorf("renaming into place: %w", err))
	}
	return nil
}

var errBadKey = errors.New("key must be a non-empty file name")

func checkKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %w %q", core.ErrInvalidArgument, errBadKey, key)
	}
	return nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}
