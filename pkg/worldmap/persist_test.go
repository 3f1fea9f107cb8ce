package worldmap

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutIsDeterministic(t *testing.T) {
	build := func() *Graph {
		g := New("test", nil)
		g.UpsertRoom("A", RoomData{Exits: map[string]string{"n": "B", "e": "C", "u": "D"}})
		g.UpsertRoom("B", RoomData{Exits: map[string]string{"e": "E", "s": "A"}})
		g.UpsertRoom("C", RoomData{Exits: map[string]string{"n": "E", "portal": "F"}})
		g.UpsertRoom("X", RoomData{Exits: map[string]string{"w": "Y"}})
		return g
	}
	g1, g2 := build(), build()
	g1.AutoLayout()
	g2.AutoLayout()
	if diff := cmp.Diff(g1.Rooms(), g2.Rooms()); diff != "" {
		t.Fatalf("layout differs between identical graphs:\n%s", diff)
	}

	g1.AutoLayout()
	if diff := cmp.Diff(g2.Rooms(), g1.Rooms()); diff != "" {
		t.Fatalf("relayout changed coordinates:\n%s", diff)
	}
	assert.False(t, g1.LayoutDirty())

	a, _ := g1.Room("A")
	b, _ := g1.Room("B")
	c, _ := g1.Room("C")
	d, _ := g1.Room("D")
	x, _ := g1.Room("X")
	assert.Less(t, b.Y, a.Y, "north is up")
	assert.Greater(t, c.X, a.X, "east is right")
	assert.Greater(t, d.Z, a.Z, "up is +z")
	assert.Greater(t, x.X, c.X+1, "separate components do not overlap")
}

func TestLayoutSeparatesCoincidentRooms(t *testing.T) {
	g := New("test", nil)
	// Both exits point at the same spot.
	g.AddEdge("A", "B", "n")
	g.AddEdge("A", "C", "n")
	g.AddEdge("C", "D", "e")
	g.AddEdge("A", "E", "ne")
	g.AddEdge("B", "E", "e")
	g.AutoLayout()

	rooms := g.Rooms()
	for i := range rooms {
		for j := i + 1; j < len(rooms); j++ {
			a, b := rooms[i], rooms[j]
			if a.Z == b.Z {
				assert.False(t, a.X == b.X && a.Y == b.Y, "%s and %s overlap", a.ID, b.ID)
			}
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	g := New("midgaard", nil)
	g.UpsertRoom("1", RoomData{Name: "Temple", Area: "Town", Environment: "inside", Description: "Quiet.", Exits: map[string]string{"south": "2"}})
	g.UpsertRoom("2", RoomData{Name: "Square", Area: "Town", Exits: map[string]string{"n": "1", "e": "3"}})
	g.Tag("1", "heal")
	g.SetNotes("2", "fountain")
	seen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g.AddItem("2", Item{Name: "copper coin", Quantity: 3, LastSeen: seen})
	g.AddNPC("2", NPC{Name: "cityguard", Level: "hard", LastSeen: seen})
	g.SetCurrentRoom("2")

	path := filepath.Join(t.TempDir(), "maps", "world.json")
	require.NoError(t, g.SaveJSON(path))

	loaded, err := LoadJSON(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "midgaard", loaded.Name())
	assert.Equal(t, "2", loaded.CurrentRoom())
	if diff := cmp.Diff(g.Rooms(), loaded.Rooms()); diff != "" {
		t.Errorf("rooms differ (-saved +loaded):\n%s", diff)
	}
	if diff := cmp.Diff(g.Edges(), loaded.Edges()); diff != "" {
		t.Errorf("edges differ (-saved +loaded):\n%s", diff)
	}
	assert.False(t, loaded.LayoutDirty())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestRoomContents(t *testing.T) {
	g := New("test", nil)
	g.UpsertRoom("A", RoomData{Name: "Gate"})
	seen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, g.AddItem("A", Item{Name: "Torch", LastSeen: seen}))
	assert.False(t, g.AddItem("A", Item{Name: "Torch ", LastSeen: seen}), "same item")
	assert.True(t, g.AddItem("A", Item{Name: "torch", Quantity: 2, LastSeen: seen}))
	assert.False(t, g.AddItem("A", Item{Name: " "}))
	assert.False(t, g.AddItem("missing", Item{Name: "torch"}))
	assert.True(t, g.AddNPC("A", NPC{Name: "rat", Hostile: true, LastSeen: seen}))
	assert.True(t, g.AddNPC("A", NPC{Name: "Rat", Hostile: false, LastSeen: seen}))

	a, _ := g.Room("A")
	assert.Equal(t, []Item{{Name: "torch", Quantity: 2, LastSeen: seen}}, a.Items)
	assert.Equal(t, []NPC{{Name: "Rat", LastSeen: seen}}, a.NPCs)

	// Copies do not share the slices.
	a.Items[0].Quantity = 9
	again, _ := g.Room("A")
	assert.Equal(t, 2, again.Items[0].Quantity)

	rebuilt := FromDocument(g.Document(), nil)
	if diff := cmp.Diff(g.Rooms(), rebuilt.Rooms()); diff != "" {
		t.Errorf("rooms differ (-graph +rebuilt):\n%s", diff)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	g := New("test", nil)
	g.UpsertRoom("A", RoomData{Name: "A"})
	require.NoError(t, g.SaveJSON(path))

	loaded, err := LoadJSON(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadJSON(filepath.Join(t.TempDir(), "none.json"), nil)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("{not json"), nil)
	assert.Error(t, err)
	_, err = Decode([]byte(`{"rooms":42}`), nil)
	assert.Error(t, err)
}

func TestLoadHealsInconsistentFile(t *testing.T) {
	doc := `{
	  "name": "broken",
	  "schema_version": 2,
	  "current_room_id": "gone",
	  "rooms": [
	    {"id":"A","name":"Gate","explored":true,"visit_count":0,"exits":{"north":"B","n":"B","East":"C"},"x":0,"y":0,"z":0},
	    {"id":"B","name":"Hall","visit_count":2,"exits":{"s":"A"},"x":0,"y":-1,"z":0},
	    {"id":"A","name":"Dup","tags":["gate"],"x":0,"y":0,"z":0}
	  ],
	  "edges": [
	    {"from":"A","to":"B","direction":"north","bidirectional":false},
	    {"from":"A","to":"B","direction":"n","bidirectional":true},
	    {"from":"C","to":"A","direction":"w","bidirectional":true}
	  ]
	}`
	g, err := Decode([]byte(doc), nil)
	require.NoError(t, err)

	a, _ := g.Room("A")
	assert.Equal(t, "Gate", a.Name)
	assert.Equal(t, []string{"gate"}, a.Tags)
	assert.Equal(t, map[Direction]string{North: "B", East: "C"}, a.Exits)
	assert.Equal(t, 1, a.VisitCount, "explored rooms have at least one visit")

	b, _ := g.Room("B")
	assert.True(t, b.Explored, "visited rooms are explored")

	c, ok := g.Room("C")
	require.True(t, ok, "exit targets are recreated")
	assert.False(t, c.Explored)

	// A-n->B, C-w->A, A-e->C, B-s->A
	assert.Equal(t, 4, g.EdgeCount())
	for _, e := range g.Edges() {
		want := (e.From == "A" && e.To == "B") || (e.From == "B" && e.To == "A") ||
			(e.From == "A" && e.To == "C") || (e.From == "C" && e.To == "A")
		assert.Equal(t, want, e.Bidirectional, "%+v", e)
	}
	assert.Equal(t, "", g.CurrentRoom(), "unknown current room is dropped")
	assert.True(t, g.LayoutDirty(), "new placeholder needs a position")
}

func TestLoadLegacyFormat(t *testing.T) {
	doc := `{
	  "name": "world",
	  "version": "1.0",
	  "current_room_id": "100",
	  "rooms": {
	    "100": {"room_id":"100","name":"Square","area":"Town","exits":{"north":"101"},"tags":["start"],"visit_count":3,"x":null,"y":null,"z":null},
	    "101": {"room_id":"101","name":"Room 101","exits":{"south":"100"},"visit_count":0}
	  },
	  "edges": [
	    {"from_room":"100","to_room":"101","direction":"north","cost":1.0,"bidirectional":true,"blocked":false,"notes":""}
	  ]
	}`
	g, err := Decode([]byte(doc), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, "100", g.CurrentRoom())

	sq, _ := g.Room("100")
	assert.True(t, sq.Explored)
	assert.Equal(t, 3, sq.VisitCount)
	assert.Equal(t, map[Direction]string{North: "101"}, sq.Exits)

	far, _ := g.Room("101")
	assert.False(t, far.Explored)
	assert.Equal(t, map[Direction]string{South: "100"}, far.Exits)

	assert.Equal(t, 2, g.EdgeCount())
	assert.Equal(t, 2, g.Stats().Bidirectional)
	assert.True(t, g.LayoutDirty())

	// Saving writes the current format.
	path := filepath.Join(t.TempDir(), "legacy.json")
	require.NoError(t, g.SaveJSON(path))
	again, err := LoadJSON(path, nil)
	require.NoError(t, err)
	assert.Equal(t, g.Edges(), again.Edges())
	assert.False(t, again.LayoutDirty())
}
