package gallery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/vmihailenco/msgpack/v5"
)

// LoadError is returned when a gallery container is missing, corrupt or inconsistent
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load gallery %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Backend is a wholesale gallery container
type Backend interface {
	Load(ctx context.Context) (*Gallery, error)
	Save(ctx context.Context, g *Gallery) error
}

// Container is a Backend that can also be listed and wiped
type Container interface {
	Backend
	Counts(ctx context.Context) ([]LabelCount, error)
	Reset(ctx context.Context) error
}

// fileLayout is the on-disk layout: two parallel sequences
type fileLayout struct {
	Names     []string    `msgpack:"names"`
	Encodings [][]float32 `msgpack:"encodings"`
}

// Load reads a gallery file.
func Load(path string) (*Gallery, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	g, err := Decode(raw)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return g, nil
}

// Decode parses a serialized gallery container.
func Decode(raw []byte) (*Gallery, error) {
	var c fileLayout
	if err := msgpack.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(c.Names) != len(c.Encodings) {
		return nil, fmt.Errorf("%d names but %d encodings", len(c.Names), len(c.Encodings))
	}
	entries := make([]types.GalleryEntry, len(c.Names))
	for i := range c.Names {
		entries[i] = types.GalleryEntry{Label: c.Names[i], Descriptor: c.Encodings[i]}
	}
	return New(entries)
}

// Encode serializes the gallery container.
func Encode(g *Gallery) ([]byte, error) {
	c := fileLayout{Names: g.Labels(), Encodings: make([][]float32, g.Len())}
	for i := range c.Encodings {
		c.Encodings[i] = g.row(i)
	}
	return msgpack.Marshal(&c)
}

// Save writes the gallery to path, replacing any existing file.
// The data goes to a temp file in the same directory first so readers never see a partial file.
func Save(path string, g *Gallery) error {
	raw, err := Encode(g)
	if err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create gallery dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".gallery-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write gallery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write gallery: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace gallery %s: %w", path, err)
	}
	return nil
}

// FileBackend stores the gallery in a single msgpack file
type FileBackend struct {
	Path string
}

func (f *FileBackend) String() string {
	return f.Path
}

func (f *FileBackend) Load(ctx context.Context) (*Gallery, error) {
	return Load(f.Path)
}

func (f *FileBackend) Save(ctx context.Context, g *Gallery) error {
	return Save(f.Path, g)
}

// Reset deletes the gallery file. A missing file is not an error.
func (f *FileBackend) Reset(ctx context.Context) error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Counts loads the gallery and returns its per-label counts
func (f *FileBackend) Counts(ctx context.Context) ([]LabelCount, error) {
	g, err := f.Load(ctx)
	if err != nil {
		return nil, err
	}
	return g.Counts(), nil
}
