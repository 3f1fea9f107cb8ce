package boltstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "maps.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleGraph() *worldmap.Graph {
	g := worldmap.New("midgaard", nil)
	g.UpsertRoom("1", worldmap.RoomData{Name: "Temple", Area: "Town", Exits: map[string]string{"south": "2"}})
	g.UpsertRoom("2", worldmap.RoomData{Name: "Square", Area: "Town", Description: "Busy.", Exits: map[string]string{"n": "1", "portal": "3"}})
	g.Tag("2", "start")
	g.SetNotes("1", "healer")
	seen := time.Date(2024, 5, 2, 20, 0, 0, 0, time.UTC)
	g.AddItem("2", worldmap.Item{Name: "fountain", Description: "Water splashes.", LastSeen: seen})
	g.AddNPC("1", worldmap.NPC{Name: "priest", Level: "hard", LastSeen: seen})
	g.SetCurrentRoom("2")
	return g
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openStore(t)
	g := sampleGraph()
	require.NoError(t, s.SaveGraph(g))

	loaded, err := s.LoadGraph("midgaard", nil)
	require.NoError(t, err)

	if diff := cmp.Diff(g.Rooms(), loaded.Rooms()); diff != "" {
		t.Errorf("rooms differ (-saved +loaded):\n%s", diff)
	}
	if diff := cmp.Diff(g.Edges(), loaded.Edges()); diff != "" {
		t.Errorf("edges differ (-saved +loaded):\n%s", diff)
	}
	assert.Equal(t, "2", loaded.CurrentRoom())
	assert.False(t, loaded.LayoutDirty())
}

func TestSaveReplacesPreviousCopy(t *testing.T) {
	s := openStore(t)
	g := sampleGraph()
	require.NoError(t, s.SaveGraph(g))

	g.UpsertRoom("3", worldmap.RoomData{Name: "Tower"})
	require.NoError(t, s.SaveGraph(g))
	assert.Equal(t, 2, s.SaveCount("midgaard"))

	loaded, err := s.LoadGraph("midgaard", nil)
	require.NoError(t, err)
	r, ok := loaded.Room("3")
	require.True(t, ok)
	assert.True(t, r.Explored)
	assert.Equal(t, g.EdgeCount(), loaded.EdgeCount())
}

func TestMapsAndDelete(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.SaveGraph(sampleGraph()))
	require.NoError(t, s.SaveGraph(worldmap.New("dungeon", nil)))

	names, err := s.Maps()
	require.NoError(t, err)
	assert.Equal(t, []string{"dungeon", "midgaard"}, names)

	require.NoError(t, s.DeleteMap("dungeon"))
	require.NoError(t, s.DeleteMap("dungeon"))
	names, err = s.Maps()
	require.NoError(t, err)
	assert.Equal(t, []string{"midgaard"}, names)
}

func TestLoadMissingMap(t *testing.T) {
	s := openStore(t)
	_, err := s.LoadGraph("nowhere", nil)
	assert.True(t, errors.Is(err, ErrNoMap))
}

func TestBackup(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.SaveGraph(sampleGraph()))

	path := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, s.Backup(path))

	b, err := Open(path, nil)
	require.NoError(t, err)
	defer b.Close()
	loaded, err := b.LoadGraph("midgaard", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())
}
