package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Index is a Badger-backed side-index from content hash to Coordinates,
// shared by the file and S3 back-ends. It accelerates Exists/metadata
// lookups; a miss always falls through to the authoritative back-end,
// and the entry is written back only by a later Put of the same content.
// Mirrors the idempotent-check-then-write
// pattern used for block existence checks in the pack's key-value store.
type Index struct {
	db *badger.DB
}

// OpenIndex opens (creating if absent) the Badger database at dir.
func OpenIndex(dir string) (*Index, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open artifact index: %w", err)
	}
	return &Index{db: db}, nil
}

// Lookup returns the cached coordinates for hash, or ok=false on a miss.
func (idx *Index) Lookup(hash string) (Coordinates, bool) {
	var coords Coordinates
	found := false
	_ = idx.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &coords); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	return coords, found
}

// Record upserts the coordinates for hash; called by Put, both after a
// new write and when Put finds the object already stored in the back-end.
func (idx *Index) Record(coords Coordinates) error {
	data, err := json.Marshal(coords)
	if err != nil {
		return err
	}
	return idx.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(coords.Hash), data)
	})
}

// Touch stamps CreatedAt with now if it is zero, used by Put when it
// repairs an index entry for an object the back-end already holds.
func Touch(c Coordinates) Coordinates {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return c
}

func (idx *Index) Close() error { return idx.db.Close() }
