// Package boltstore keeps world maps in a bbolt database, one nested bucket
// per map name. It is the alternative to the JSON map file.
package boltstore

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/crystal-mush/mudmapper/pkg/logging"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

// ErrNoMap is returned by LoadGraph when no map of that name is stored.
var ErrNoMap = errors.New("boltstore: no such map")

// Store wraps a bbolt database holding world maps.
type Store struct {
	bolt *bbolt.DB
	log  *zap.Logger
}

// Open opens or creates a bbolt database file and ensures the maps bucket
// exists.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMaps)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{
		bolt: db,
		log:  logging.OrNop(logger).Named("boltstore"),
	}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// SaveGraph replaces the stored copy of the graph in a single transaction.
// The graph is laid out first if it changed since its last layout.
func (s *Store) SaveGraph(g *worldmap.Graph) error {
	doc := g.Document()
	name := []byte(doc.Name)

	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		maps := tx.Bucket(bucketMaps)
		saves := 0
		if old := maps.Bucket(name); old != nil {
			if meta := old.Bucket(bucketMeta); meta != nil {
				saves = keyToInt(meta.Get(keySaves))
			}
			if err := maps.DeleteBucket(name); err != nil {
				return err
			}
		}
		mb, err := maps.CreateBucket(name)
		if err != nil {
			return err
		}

		meta, err := mb.CreateBucket(bucketMeta)
		if err != nil {
			return err
		}
		if err := meta.Put(keySchema, intToKey(doc.SchemaVersion)); err != nil {
			return err
		}
		if err := meta.Put(keyCurrent, []byte(doc.CurrentRoomID)); err != nil {
			return err
		}
		if err := meta.Put(keySaves, intToKey(saves+1)); err != nil {
			return err
		}

		rooms, err := mb.CreateBucket(bucketRooms)
		if err != nil {
			return err
		}
		for i := range doc.Rooms {
			data, err := encodeRoom(&doc.Rooms[i])
			if err != nil {
				return fmt.Errorf("encode room %s: %w", doc.Rooms[i].ID, err)
			}
			if err := rooms.Put([]byte(doc.Rooms[i].ID), data); err != nil {
				return err
			}
		}

		edges, err := mb.CreateBucket(bucketEdges)
		if err != nil {
			return err
		}
		for i := range doc.Edges {
			data, err := encodeEdge(&doc.Edges[i])
			if err != nil {
				return fmt.Errorf("encode edge %d: %w", i, err)
			}
			if err := edges.Put(intToKey(i), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: save %s: %w", doc.Name, err)
	}
	s.log.Debug("saved map", zap.String("map", doc.Name), zap.Int("rooms", len(doc.Rooms)), zap.Int("edges", len(doc.Edges)))
	return nil
}

// LoadGraph reads the named map. Records are repaired the same way a JSON
// map file is. A missing map returns an error matching ErrNoMap.
func (s *Store) LoadGraph(name string, logger *zap.Logger) (*worldmap.Graph, error) {
	doc := worldmap.Document{Name: name}
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(bucketMaps).Bucket([]byte(name))
		if mb == nil {
			return ErrNoMap
		}
		if meta := mb.Bucket(bucketMeta); meta != nil {
			doc.SchemaVersion = keyToInt(meta.Get(keySchema))
			doc.CurrentRoomID = string(meta.Get(keyCurrent))
		}
		if b := mb.Bucket(bucketRooms); b != nil {
			err := b.ForEach(func(k, v []byte) error {
				r, err := decodeRoom(v)
				if err != nil {
					return fmt.Errorf("decode room %q: %w", string(k), err)
				}
				if r.ID == "" {
					r.ID = string(k)
				}
				doc.Rooms = append(doc.Rooms, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		if b := mb.Bucket(bucketEdges); b != nil {
			return b.ForEach(func(k, v []byte) error {
				e, err := decodeEdge(v)
				if err != nil {
					return fmt.Errorf("decode edge %d: %w", keyToInt(k), err)
				}
				doc.Edges = append(doc.Edges, e)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: load %s: %w", name, err)
	}
	g := worldmap.FromDocument(doc, logger)
	s.log.Info("loaded map", zap.String("map", name), zap.Int("rooms", g.Len()), zap.Int("edges", g.EdgeCount()))
	return g, nil
}

// Maps lists the names of stored maps.
func (s *Store) Maps() ([]string, error) {
	var names []string
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMaps).ForEach(func(k, v []byte) error {
			if v == nil {
				names = append(names, string(k))
			}
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

// SaveCount returns how many times the named map was saved.
func (s *Store) SaveCount(name string) int {
	n := 0
	s.bolt.View(func(tx *bbolt.Tx) error {
		if mb := tx.Bucket(bucketMaps).Bucket([]byte(name)); mb != nil {
			if meta := mb.Bucket(bucketMeta); meta != nil {
				n = keyToInt(meta.Get(keySaves))
			}
		}
		return nil
	})
	return n
}

// DeleteMap removes a stored map.
func (s *Store) DeleteMap(name string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketMaps).DeleteBucket([]byte(name))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		_, err = tx.WriteTo(f)
		if err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		s.log.Info("backup written", zap.String("path", path))
		return nil
	})
}
