package gallery

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/google/renameio"
)

// snapshot is the on-disk layout: two parallel lists.
type snapshot struct {
	Names     []string
	Encodings []types.Embedding
}

// FileStorage keeps the gallery in a single gob file.
type FileStorage struct {
	path string
}

// NewFileStorage returns a storage that reads and writes path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (f *FileStorage) Location() string { return f.path }

func (f *FileStorage) Load(ctx context.Context) ([]types.GalleryEntry, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.StorageError{Op: "read", Path: f.path, Err: err}
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, &types.StorageError{Op: "decode", Path: f.path, Err: err}
	}
	if len(snap.Names) != len(snap.Encodings) {
		err := fmt.Errorf("%d names but %d encodings", len(snap.Names), len(snap.Encodings))
		return nil, &types.StorageError{Op: "decode", Path: f.path, Err: err}
	}

	entries := make([]types.GalleryEntry, len(snap.Names))
	for i := range snap.Names {
		entries[i] = types.GalleryEntry{Name: snap.Names[i], Embedding: snap.Encodings[i]}
	}
	return entries, nil
}

// Save replaces the file atomically so a crash never leaves half a gallery.
func (f *FileStorage) Save(ctx context.Context, entries []types.GalleryEntry) error {
	snap := snapshot{
		Names:     make([]string, len(entries)),
		Encodings: make([]types.Embedding, len(entries)),
	}
	for i, e := range entries {
		snap.Names[i] = e.Name
		snap.Encodings[i] = e.Embedding
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return &types.StorageError{Op: "encode", Path: f.path, Err: err}
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &types.StorageError{Op: "write", Path: f.path, Err: err}
		}
	}
	if err := renameio.WriteFile(f.path, buf.Bytes(), 0644); err != nil {
		return &types.StorageError{Op: "write", Path: f.path, Err: err}
	}
	return nil
}
