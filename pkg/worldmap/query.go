package worldmap

import (
	"sort"
	"strings"
)

// FindRoomsByTag returns rooms carrying tag, ordered by id.
func (g *Graph) FindRoomsByTag(tag string) []Room {
	return g.filter(func(r *Room) bool { return r.HasTag(tag) })
}

// FindRoomsByArea returns rooms in area, ignoring case, ordered by id.
func (g *Graph) FindRoomsByArea(area string) []Room {
	return g.filter(func(r *Room) bool { return strings.EqualFold(r.Area, area) })
}

// FindRoomsByName returns rooms whose name contains name, ignoring case.
func (g *Graph) FindRoomsByName(name string) []Room {
	needle := strings.ToLower(strings.TrimSpace(name))
	return g.filter(func(r *Room) bool { return strings.Contains(strings.ToLower(r.Name), needle) })
}

func (g *Graph) filter(keep func(*Room) bool) []Room {
	var out []Room
	for _, id := range g.sortedIDs() {
		if r := g.rooms[id]; keep(r) {
			out = append(out, r.clone())
		}
	}
	return out
}

// Neighbor is a room reachable through one exit.
type Neighbor struct {
	Direction Direction `json:"direction"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Explored  bool      `json:"explored"`
}

// Adjacent lists the exits of a room in direction order.
func (g *Graph) Adjacent(id string) []Neighbor {
	r, ok := g.rooms[id]
	if !ok {
		return nil
	}
	out := make([]Neighbor, 0, len(r.Exits))
	for _, d := range sortedDirections(r.Exits) {
		n := Neighbor{Direction: d, ID: r.Exits[d]}
		if t, ok := g.rooms[n.ID]; ok {
			n.Name = t.Name
			n.Explored = t.Explored
		}
		out = append(out, n)
	}
	return out
}

// ExitRef names one exit of a room.
type ExitRef struct {
	From      string    `json:"from"`
	Direction Direction `json:"direction"`
	To        string    `json:"to"`
}

// UnexploredExits lists exits that lead to placeholder rooms, ordered by
// room id and direction.
func (g *Graph) UnexploredExits() []ExitRef {
	var out []ExitRef
	for _, id := range g.sortedIDs() {
		r := g.rooms[id]
		for _, d := range sortedDirections(r.Exits) {
			to := r.Exits[d]
			if t, ok := g.rooms[to]; !ok || !t.Explored {
				out = append(out, ExitRef{From: id, Direction: d, To: to})
			}
		}
	}
	return out
}

// Stats summarizes the graph.
type Stats struct {
	Rooms         int            `json:"rooms"`
	Explored      int            `json:"explored"`
	Placeholders  int            `json:"placeholders"`
	Edges         int            `json:"edges"`
	Bidirectional int            `json:"bidirectional_edges"`
	Areas         map[string]int `json:"areas"`
	CurrentRoom   string         `json:"current_room_id,omitempty"`
}

// Stats computes graph statistics. Rooms without an area count under
// "Unknown".
func (g *Graph) Stats() Stats {
	s := Stats{
		Rooms:       len(g.rooms),
		Edges:       len(g.edges),
		Areas:       make(map[string]int),
		CurrentRoom: g.current,
	}
	for _, r := range g.rooms {
		if r.Explored {
			s.Explored++
		} else {
			s.Placeholders++
		}
		area := r.Area
		if area == "" {
			area = "Unknown"
		}
		s.Areas[area]++
	}
	for _, e := range g.edges {
		if e.Bidirectional {
			s.Bidirectional++
		}
	}
	return s
}

// Snapshot is an immutable copy of the graph for readers outside the
// owning goroutine.
type Snapshot struct {
	Name          string `json:"name"`
	Version       uint64 `json:"version"`
	Rooms         []Room `json:"rooms"`
	Edges         []Edge `json:"edges"`
	CurrentRoomID string `json:"current_room_id"`
	Stats         Stats  `json:"stats"`
}

// Snapshot copies the graph.
func (g *Graph) Snapshot() *Snapshot {
	return &Snapshot{
		Name:          g.name,
		Version:       g.version,
		Rooms:         g.Rooms(),
		Edges:         g.Edges(),
		CurrentRoomID: g.current,
		Stats:         g.Stats(),
	}
}

// Room looks a room up by id.
func (s *Snapshot) Room(id string) (Room, bool) {
	i := sort.Search(len(s.Rooms), func(i int) bool { return s.Rooms[i].ID >= id })
	if i < len(s.Rooms) && s.Rooms[i].ID == id {
		return s.Rooms[i], true
	}
	return Room{}, false
}
