// Package artifact implements the content-addressed blob store (§4.1):
// sharded local filesystem and S3 back-ends, sharing a Badger side-index
// that accelerates existence/metadata lookups without being the source
// of truth for the bytes themselves.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Kind is the closed set of artifact kinds.
type Kind string

const (
	KindLog         Kind = "log"
	KindTestOutput  Kind = "test_output"
	KindDiff        Kind = "diff"
	KindModelOutput Kind = "model_output"
	KindPatch       Kind = "patch"
)

// ErrNotFound is returned by Get when the hash is unknown to the store.
var ErrNotFound = errors.New("artifact: not found")

// Coordinates is returned by Put and stored in the side-index.
type Coordinates struct {
	Hash      string    `json:"sha256"`
	Kind      Kind      `json:"kind"`
	URI       string    `json:"uri"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the content-addressed blob store contract.
type Store interface {
	Put(ctx context.Context, data []byte, kind Kind) (Coordinates, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Exists(ctx context.Context, hash string) (bool, error)
}

// Hash computes the SHA-256 content hash used as the artifact's identity.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Shard returns the two-character fan-out directory for hash, satisfying
// sharding invariant A2 (<prefix>/<hash[0:2]>/<hash>).
func Shard(hash string) string {
	if len(hash) < 2 {
		return "00"
	}
	return hash[:2]
}
