package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
)

const (
	ChunksFile   = "chunks.json"
	VectorsFile  = "vectors.npy"
	ManifestFile = "manifest.json"
)

// Load reads chunks.json and vectors.npy (both required) and manifest.json
// (optional) from dir.
func Load(dir string) (*Store, error) {
	var chunks []Chunk
	if err := readJSON(filepath.Join(dir, ChunksFile), &chunks); err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	f, err := os.Open(filepath.Join(dir, VectorsFile)) // #nosec G304 -- index dir comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to open vectors: %w", err)
	}
	defer f.Close()

	rows, err := ReadMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	var manifest []ManifestEntry
	err = readJSON(filepath.Join(dir, ManifestFile), &manifest)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	store, err := New(chunks, rows, manifest)
	if err != nil {
		return nil, err
	}
	slog.Info("corpus loaded", "dir", dir, "chunks", store.Len(), "dim", store.Dim(), "documents", len(manifest))
	return store, nil
}

// ReadMatrix decodes a two-dimensional float32 or float64 NumPy array into
// rows of float32.
func ReadMatrix(r io.Reader) ([][]float32, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, err
	}

	shape := npy.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, fmt.Errorf("expected a 2-D array, got shape %v", shape)
	}
	if npy.Header.Descr.Fortran {
		return nil, fmt.Errorf("fortran-ordered arrays are not supported")
	}
	n, dim := shape[0], shape[1]

	var flat []float32
	switch npy.Header.Descr.Type {
	case "<f4", "f4", "float32":
		if err := npy.Read(&flat); err != nil {
			return nil, err
		}
	case "<f8", "f8", "float64":
		var wide []float64
		if err := npy.Read(&wide); err != nil {
			return nil, err
		}
		flat = make([]float32, len(wide))
		for i, v := range wide {
			flat[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %q", npy.Header.Descr.Type)
	}

	if len(flat) != n*dim {
		return nil, fmt.Errorf("array holds %d values, shape %v needs %d", len(flat), shape, n*dim)
	}
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = flat[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return rows, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) // #nosec G304 -- index dir comes from config
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
