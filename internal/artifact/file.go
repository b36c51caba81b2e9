package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FileStore is the sharded-local-filesystem back-end. Writes go to a
// sibling temp file followed by rename so a partial write is never
// observable as a complete object (atomicity, §4.1).
type FileStore struct {
	root  string
	index *Index
}

// NewFileStore roots the store at dir and attaches the shared side-index.
func NewFileStore(dir string, index *Index) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FileStore{root: dir, index: index}, nil
}

func (s *FileStore) objectPath(hash string) string {
	return filepath.Join(s.root, Shard(hash), hash)
}

func (s *FileStore) Put(ctx context.Context, data []byte, kind Kind) (Coordinates, error) {
	hash := Hash(data)

	if existing, ok := s.index.Lookup(hash); ok {
		return existing, nil // deduplication invariant A1
	}
	if _, err := os.Stat(s.objectPath(hash)); err == nil {
		coords := Touch(Coordinates{Hash: hash, Kind: kind, URI: "file://" + s.objectPath(hash), Size: int64(len(data))})
		_ = s.index.Record(coords)
		return coords, nil
	}

	dir := filepath.Join(s.root, Shard(hash))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Coordinates{}, fmt.Errorf("create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return Coordinates{}, fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Coordinates{}, fmt.Errorf("write temp object: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Coordinates{}, fmt.Errorf("fsync temp object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Coordinates{}, fmt.Errorf("close temp object: %w", err)
	}

	dest := s.objectPath(hash)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		// A concurrent writer may have won the race; that is a no-op per A1.
		if _, statErr := os.Stat(dest); statErr == nil {
			coords := Touch(Coordinates{Hash: hash, Kind: kind, URI: "file://" + dest, Size: int64(len(data))})
			_ = s.index.Record(coords)
			return coords, nil
		}
		return Coordinates{}, fmt.Errorf("rename object into place: %w", err)
	}

	coords := Coordinates{Hash: hash, Kind: kind, URI: "file://" + dest, Size: int64(len(data)), CreatedAt: time.Now().UTC()}
	if err := s.index.Record(coords); err != nil {
		return Coordinates{}, fmt.Errorf("record index: %w", err)
	}
	return coords, nil
}

func (s *FileStore) Get(ctx context.Context, hash string) ([]byte, error) {
	f, err := os.Open(s.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *FileStore) Exists(ctx context.Context, hash string) (bool, error) {
	if _, ok := s.index.Lookup(hash); ok {
		return true, nil
	}
	_, err := os.Stat(s.objectPath(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
