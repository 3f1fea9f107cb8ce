package mapper

import (
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/crystal-mush/mudmapper/pkg/boltstore"
	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

// Saver persists a graph.
type Saver interface {
	SaveGraph(g *worldmap.Graph) error
}

// JSONFile saves the graph to a JSON map file.
type JSONFile struct {
	Path string
}

// SaveGraph writes the map file atomically.
func (f JSONFile) SaveGraph(g *worldmap.Graph) error {
	return g.SaveJSON(f.Path)
}

// Load reads the map file; a missing file yields an empty graph named name.
func (f JSONFile) Load(name string, logger *zap.Logger) (*worldmap.Graph, error) {
	g, err := worldmap.LoadJSON(f.Path, logger)
	if errors.Is(err, fs.ErrNotExist) {
		return worldmap.New(name, logger), nil
	}
	return g, err
}

// BoltMap saves the graph into a bbolt store.
type BoltMap struct {
	Store *boltstore.Store
}

// SaveGraph replaces the stored map.
func (b BoltMap) SaveGraph(g *worldmap.Graph) error {
	return b.Store.SaveGraph(g)
}

// Load reads the named map; a missing map yields an empty graph.
func (b BoltMap) Load(name string, logger *zap.Logger) (*worldmap.Graph, error) {
	g, err := b.Store.LoadGraph(name, logger)
	if errors.Is(err, boltstore.ErrNoMap) {
		return worldmap.New(name, logger), nil
	}
	return g, err
}

// Store is a Saver that can also load.
type Store interface {
	Saver
	Load(name string, logger *zap.Logger) (*worldmap.Graph, error)
}

// OpenStore returns the map store for kind "json" or "bolt". The returned
// close function releases the bolt database.
func OpenStore(kind, jsonPath, boltPath string, logger *zap.Logger) (Store, func() error, error) {
	switch kind {
	case "", "json":
		return JSONFile{Path: jsonPath}, func() error { return nil }, nil
	case "bolt":
		s, err := boltstore.Open(boltPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return BoltMap{Store: s}, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("mapper: unknown map store %q", kind)
	}
}
