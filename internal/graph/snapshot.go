package graph

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes = []byte("nodes")
	bucketEdges = []byte("edges")
	bucketMeta  = []byte("meta")
	keyLastHash = []byte("last_event_hash")
)

// SnapshotStore persists a warm-start snapshot of the graph to an embedded
// bbolt database, bounding process-start replay cost. It is an
// accelerator only: correctness always derives from replaying the
// journal (G1); this store is never the sole record of graph state.
type SnapshotStore struct {
	db *bolt.DB
}

// OpenSnapshotStore opens (creating if absent) the bbolt file at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open graph snapshot store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketNodes, bucketEdges, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SnapshotStore{db: db}, nil
}

// Save writes the full node/edge set and the hash of the last event
// applied, overwriting any prior snapshot.
func (s *SnapshotStore) Save(g *Graph) error {
	g.mu.RLock()
	nodes := make(map[string]*Node, len(g.nodes))
	for k, v := range g.nodes {
		nodes[k] = v
	}
	edges := make(map[string]Edge, len(g.edges))
	for k, v := range g.edges {
		edges[k] = v
	}
	lastHash := g.lastHash
	g.mu.RUnlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		nb := tx.Bucket(bucketNodes)
		if err := nb.ForEach(func(k, _ []byte) error { return nb.Delete(k) }); err != nil {
			return err
		}
		for id, n := range nodes {
			data, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := nb.Put([]byte(id), data); err != nil {
				return err
			}
		}

		eb := tx.Bucket(bucketEdges)
		if err := eb.ForEach(func(k, _ []byte) error { return eb.Delete(k) }); err != nil {
			return err
		}
		for key, e := range edges {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := eb.Put([]byte(key), data); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketMeta).Put(keyLastHash, []byte(lastHash))
	})
}

// LastSnapshotHash returns the hash recorded in the most recent Save, or
// "" if no snapshot has been taken.
func (s *SnapshotStore) LastSnapshotHash() (string, error) {
	var hash string
	err := s.db.View(func(tx *bolt.Tx) error {
		hash = string(tx.Bucket(bucketMeta).Get(keyLastHash))
		return nil
	})
	return hash, err
}

// Load restores a saved snapshot into g, clearing any prior state.
func (s *SnapshotStore) Load(g *Graph) error {
	g.Clear()
	return s.db.View(func(tx *bolt.Tx) error {
		nb := tx.Bucket(bucketNodes)
		if err := nb.ForEach(func(_, v []byte) error {
			var n Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			g.UpsertNode(n.ID, n.Type, n.Properties)
			return nil
		}); err != nil {
			return err
		}

		eb := tx.Bucket(bucketEdges)
		if err := eb.ForEach(func(_, v []byte) error {
			var e Edge
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			g.AddEdge(e.From, e.Type, e.To)
			return nil
		}); err != nil {
			return err
		}

		lastHash := string(tx.Bucket(bucketMeta).Get(keyLastHash))
		g.setLastHash(lastHash)
		return nil
	})
}

func (s *SnapshotStore) Close() error { return s.db.Close() }
