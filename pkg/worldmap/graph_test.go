package worldmap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want Direction
	}{
		{"north", North},
		{" N ", North},
		{"NorthEast", Northeast},
		{"south-west", Southwest},
		{"up", Up},
		{"in", Enter},
		{"enter", Enter},
		{"out", Out},
		{"NORTH", North},
		{"Climb Tree", "Climb Tree"},
		{"  Climb Tree ", "Climb Tree"},
		{"portal", "portal"},
	}
	for _, tt := range tests {
		if got := Canonicalize(tt.in); got != tt.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReverse(t *testing.T) {
	pairs := [][2]Direction{
		{North, South}, {East, West}, {Northeast, Southwest},
		{Northwest, Southeast}, {Up, Down}, {Enter, Out},
	}
	for _, p := range pairs {
		got, ok := p[0].Reverse()
		require.True(t, ok)
		assert.Equal(t, p[1], got)
		back, _ := got.Reverse()
		assert.Equal(t, p[0], back)
	}
	_, ok := Direction("portal").Reverse()
	assert.False(t, ok)
	assert.Len(t, Standard, 12)
}

func TestParseDirection(t *testing.T) {
	d, ok := ParseDirection("go North")
	assert.True(t, ok)
	assert.Equal(t, North, d)

	_, ok = ParseDirection("look")
	assert.False(t, ok)
	_, ok = ParseDirection("portal")
	assert.False(t, ok)
}

func TestUpsertRoomIsIdempotent(t *testing.T) {
	g := New("test", nil)
	data := RoomData{Name: "Gate", Area: "Town", Exits: map[string]string{"north": "B", "east": "C"}}

	ch := g.UpsertRoom("A", data)
	assert.True(t, ch.Created)
	assert.Equal(t, 2, ch.EdgesAdded)
	assert.Equal(t, 2, ch.Placeholders)

	for i := 0; i < 3; i++ {
		ch = g.UpsertRoom("A", data)
		assert.Zero(t, ch.EdgesAdded)
		assert.Zero(t, ch.Placeholders)
	}
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 2, g.EdgeCount())

	a, _ := g.Room("A")
	assert.Equal(t, 4, a.VisitCount)
}

func TestAliasesCollapseToOneExit(t *testing.T) {
	g := New("test", nil)
	g.UpsertRoom("A", RoomData{Name: "A", Exits: map[string]string{"north": "B", "n": "B"}})

	a, _ := g.Room("A")
	assert.Equal(t, map[Direction]string{North: "B"}, a.Exits)
	assert.Equal(t, 1, g.EdgeCount())
}

func TestConflictingAliases(t *testing.T) {
	tests := []struct {
		name  string
		exits map[string]string
		dir   Direction
		want  string
	}{
		{"canonical key wins", map[string]string{"north": "B", "n": "C"}, North, "C"},
		{"canonical key wins regardless of order", map[string]string{"n": "B", "north": "C"}, North, "B"},
		{"smallest raw key otherwise", map[string]string{"east": "B", "EAST": "C"}, East, "C"},
		{"upper-case alias is not canonical", map[string]string{"N": "B", "n": "C"}, North, "C"},
		{"custom exits keep their case", map[string]string{"Climb Tree": "B"}, "Climb Tree", "B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New("test", nil)
			g.UpsertRoom("A", RoomData{Exits: tt.exits})
			a, _ := g.Room("A")
			assert.Equal(t, map[Direction]string{tt.dir: tt.want}, a.Exits)
			assert.Equal(t, 1, g.EdgeCount())
		})
	}
}

func TestAddEdgeTwice(t *testing.T) {
	g := New("test", nil)
	assert.True(t, g.AddEdge("A", "B", "w"))
	assert.False(t, g.AddEdge("A", "B", "w"))
	assert.False(t, g.AddEdge("A", "B", "west"))
	assert.Equal(t, 1, g.EdgeCount())
	assert.True(t, g.HasEdge("A", "west", "B"))

	// Both endpoints exist as placeholders.
	b, ok := g.Room("B")
	require.True(t, ok)
	assert.False(t, b.Explored)
}

func TestBidirectionalRequiresConfirmedReverse(t *testing.T) {
	g := New("test", nil)
	g.AddEdge("A", "B", "n")
	assert.False(t, g.Edges()[0].Bidirectional)

	// The reverse exit alone is not enough.
	b, _ := g.Room("B")
	assert.Empty(t, b.Exits)

	g.AddEdge("B", "A", "s")
	for _, e := range g.Edges() {
		assert.True(t, e.Bidirectional, "%+v", e)
	}

	g.AddEdge("C", "D", "portal")
	g.AddEdge("D", "C", "portal")
	for _, e := range g.Edges()[2:] {
		assert.False(t, e.Bidirectional, "custom exits have no reverse: %+v", e)
	}
	assert.Equal(t, 2, g.Stats().Bidirectional)
}

func TestPlaceholderPromotion(t *testing.T) {
	g := New("test", nil)
	g.UpsertRoom("A", RoomData{Name: "Gate", Exits: map[string]string{"n": "B"}})

	b, ok := g.Room("B")
	require.True(t, ok)
	assert.Equal(t, "Room B", b.Name)
	assert.False(t, b.Explored)
	assert.Zero(t, b.VisitCount)

	ch := g.UpsertRoom("B", RoomData{Name: "Hall", Description: "A long hall."})
	assert.True(t, ch.Promoted)
	assert.False(t, ch.Created)

	b, _ = g.Room("B")
	assert.Equal(t, "Hall", b.Name)
	assert.True(t, b.Explored)
	assert.Equal(t, 1, b.VisitCount)
	assert.Equal(t, 2, g.Len())
}

func TestRefreshRoomDoesNotCountVisit(t *testing.T) {
	g := New("test", nil)
	g.UpsertRoom("A", RoomData{Name: "Gate"})
	ch := g.RefreshRoom("A", RoomData{Name: "Gate", Exits: map[string]string{"s": "B"}})
	assert.False(t, ch.Visited)
	assert.Equal(t, 1, ch.EdgesAdded)

	a, _ := g.Room("A")
	assert.Equal(t, 1, a.VisitCount)

	// Refreshing a room never seen still makes it explored.
	g.RefreshRoom("C", RoomData{Name: "Cellar"})
	c, _ := g.Room("C")
	assert.True(t, c.Explored)
	assert.Equal(t, 1, c.VisitCount)
}

func TestEmptyFieldsDoNotEraseKnownOnes(t *testing.T) {
	g := New("test", nil)
	g.UpsertRoom("A", RoomData{Name: "Gate", Area: "Town", Description: "Iron gate."})
	g.UpsertRoom("A", RoomData{Name: "Gate"})

	a, _ := g.Room("A")
	assert.Equal(t, "Iron gate.", a.Description)
	assert.Equal(t, "Town", a.Area)
}

func TestExitRetargetKeepsHistory(t *testing.T) {
	g := New("test", nil)
	g.UpsertRoom("A", RoomData{Exits: map[string]string{"n": "B"}})
	g.UpsertRoom("A", RoomData{Exits: map[string]string{"n": "C"}})

	a, _ := g.Room("A")
	assert.Equal(t, "C", a.Exits[North])
	assert.Equal(t, 2, g.EdgeCount())
}

func TestTagsAndNotes(t *testing.T) {
	g := New("test", nil)
	g.UpsertRoom("A", RoomData{Name: "Inn"})

	assert.True(t, g.Tag("A", "inn"))
	assert.False(t, g.Tag("A", "INN"))
	assert.True(t, g.Tag("A", "bank"))
	assert.False(t, g.Tag("missing", "x"))

	a, _ := g.Room("A")
	assert.Equal(t, []string{"bank", "inn"}, a.Tags)

	assert.True(t, g.Untag("A", "Bank"))
	assert.False(t, g.Untag("A", "bank"))
	assert.True(t, g.SetNotes("A", "rest here"))

	a, _ = g.Room("A")
	if diff := cmp.Diff([]string{"inn"}, a.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	assert.Equal(t, "rest here", a.Notes)
}

func TestRoomCopiesAreIsolated(t *testing.T) {
	g := New("test", nil)
	g.UpsertRoom("A", RoomData{Exits: map[string]string{"n": "B"}})
	a, _ := g.Room("A")
	a.Exits[South] = "Z"
	a.Name = "changed"

	again, _ := g.Room("A")
	assert.NotContains(t, again.Exits, South)
	assert.NotEqual(t, "changed", again.Name)
}

func TestCurrentRoomAndVersion(t *testing.T) {
	g := New("", nil)
	assert.Equal(t, "world", g.Name())
	assert.False(t, g.SetCurrentRoom("A"))

	v := g.Version()
	g.UpsertRoom("A", RoomData{})
	assert.Greater(t, g.Version(), v)
	assert.True(t, g.SetCurrentRoom("A"))
	assert.Equal(t, "A", g.CurrentRoom())
}
