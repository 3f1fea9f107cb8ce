// Package worldmap is the persistent world graph: rooms keyed by server id,
// canonical exits, an append-only edge set, pathfinding, layout and JSON
// persistence.
//
// A Graph has a single writer. It is not safe for concurrent use; other
// goroutines read through Snapshot copies.
package worldmap

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/crystal-mush/mudmapper/pkg/logging"
)

// Room is a node in the world graph.
type Room struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Area        string               `json:"area"`
	Environment string               `json:"environment"`
	Description string               `json:"description"`
	Notes       string               `json:"notes,omitempty"`
	Tags        []string             `json:"tags"`
	VisitCount  int                  `json:"visit_count"`
	Explored    bool                 `json:"explored"`
	Exits       map[Direction]string `json:"exits"`
	Items       []Item               `json:"items,omitempty"`
	NPCs        []NPC                `json:"npcs,omitempty"`
	X           float64              `json:"x"`
	Y           float64              `json:"y"`
	Z           float64              `json:"z"`
}

// HasTag reports whether the room carries tag, ignoring case.
func (r *Room) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func (r *Room) clone() Room {
	c := *r
	c.Tags = append([]string{}, r.Tags...)
	c.Items = append([]Item(nil), r.Items...)
	c.NPCs = append([]NPC(nil), r.NPCs...)
	c.Exits = make(map[Direction]string, len(r.Exits))
	for d, id := range r.Exits {
		c.Exits[d] = id
	}
	return c
}

// PlaceholderName is the name given to rooms known only as exit targets.
func PlaceholderName(id string) string {
	return "Room " + id
}

// Edge is a traversal from one room to another. Its identity is
// (From, Direction, To).
type Edge struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	Direction     Direction `json:"direction"`
	Bidirectional bool      `json:"bidirectional"`
}

type edgeKey struct {
	from string
	dir  Direction
	to   string
}

// RoomData is the description of a room as the server reports it.
type RoomData struct {
	Name        string
	Area        string
	Environment string
	Description string
	Exits       map[string]string // raw direction name -> target id
}

// Change summarizes what an upsert did.
type Change struct {
	Created      bool // the room did not exist
	Promoted     bool // a placeholder became explored
	Visited      bool // visit_count was incremented
	Updated      bool // name, area, environment or description changed
	EdgesAdded   int
	Placeholders int // placeholder rooms created for exit targets
}

// Mutated reports whether the graph changed.
func (c Change) Mutated() bool {
	return c.Created || c.Promoted || c.Visited || c.Updated || c.EdgesAdded > 0 || c.Placeholders > 0
}

// Graph is the world map.
type Graph struct {
	name    string
	rooms   map[string]*Room
	edges   []Edge
	index   map[edgeKey]int
	current string
	log     *zap.Logger

	version     uint64 // bumped on every mutation
	layoutDirty bool
}

// New creates an empty graph.
func New(name string, logger *zap.Logger) *Graph {
	if name == "" {
		name = "world"
	}
	return &Graph{
		name:  name,
		rooms: make(map[string]*Room),
		index: make(map[edgeKey]int),
		log:   logging.OrNop(logger).Named("worldmap"),
	}
}

// Name returns the map name.
func (g *Graph) Name() string { return g.name }

// Len returns the number of rooms.
func (g *Graph) Len() int { return len(g.rooms) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Version increases with every mutation.
func (g *Graph) Version() uint64 { return g.version }

// CurrentRoom returns the id of the room the player is in, or "".
func (g *Graph) CurrentRoom() string { return g.current }

// Room returns a copy of the room with the given id.
func (g *Graph) Room(id string) (Room, bool) {
	r, ok := g.rooms[id]
	if !ok {
		return Room{}, false
	}
	return r.clone(), true
}

// Rooms returns copies of all rooms ordered by id.
func (g *Graph) Rooms() []Room {
	out := make([]Room, 0, len(g.rooms))
	for _, id := range g.sortedIDs() {
		out = append(out, g.rooms[id].clone())
	}
	return out
}

// Edges returns a copy of the edge list in insertion order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// HasEdge reports whether the edge (from, dir, to) exists.
func (g *Graph) HasEdge(from string, dir string, to string) bool {
	_, ok := g.index[edgeKey{from, Canonicalize(dir), to}]
	return ok
}

func (g *Graph) touch() {
	g.version++
	g.layoutDirty = true
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetOrCreateRoom returns the room with id, creating a placeholder when it
// does not exist. created reports whether a placeholder was made.
func (g *Graph) GetOrCreateRoom(id string) (room Room, created bool) {
	r, created := g.getOrCreate(id)
	return r.clone(), created
}

func (g *Graph) getOrCreate(id string) (*Room, bool) {
	if r, ok := g.rooms[id]; ok {
		return r, false
	}
	r := &Room{
		ID:    id,
		Name:  PlaceholderName(id),
		Tags:  []string{},
		Exits: make(map[Direction]string),
	}
	g.rooms[id] = r
	g.touch()
	return r, true
}

// UpsertRoom records entering room id with the given description. A new
// room or a placeholder becomes explored with one visit; an explored room
// gets its visit count incremented. Every exit becomes an edge, creating
// placeholders for unknown targets.
func (g *Graph) UpsertRoom(id string, data RoomData) Change {
	return g.upsert(id, data, true)
}

// RefreshRoom applies a repeated description of the room the player is
// already in. It behaves like UpsertRoom but does not count a visit.
func (g *Graph) RefreshRoom(id string, data RoomData) Change {
	return g.upsert(id, data, false)
}

func (g *Graph) upsert(id string, data RoomData, visit bool) Change {
	var ch Change
	if id == "" {
		return ch
	}
	r, created := g.getOrCreate(id)
	ch.Created = created

	switch {
	case !r.Explored:
		r.Explored = true
		r.VisitCount = 1
		ch.Promoted = !created
		ch.Visited = true
	case visit:
		r.VisitCount++
		ch.Visited = true
	}

	ch.Updated = setIfNonEmpty(&r.Name, data.Name)
	ch.Updated = setIfNonEmpty(&r.Area, data.Area) || ch.Updated
	ch.Updated = setIfNonEmpty(&r.Environment, data.Environment) || ch.Updated
	ch.Updated = setIfNonEmpty(&r.Description, data.Description) || ch.Updated

	exits := g.canonicalExits(id, data.Exits)
	dirs := make([]Direction, 0, len(exits))
	for d := range exits {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i] < dirs[j] })
	for _, d := range dirs {
		target := exits[d]
		if _, made := g.getOrCreate(target); made {
			ch.Placeholders++
		}
		if g.addEdge(id, target, d) {
			ch.EdgesAdded++
		}
	}

	if ch.Mutated() {
		g.touch()
	}
	return ch
}

func setIfNonEmpty(dst *string, v string) bool {
	if v == "" || *dst == v {
		return false
	}
	*dst = v
	return true
}

// canonicalExits resolves raw exit names to canonical directions. When
// several raw names resolve to one direction with different targets, the
// raw name that is already canonical wins, else the lexicographically
// smallest raw name.
func (g *Graph) canonicalExits(id string, raw map[string]string) map[Direction]string {
	type candidate struct {
		raw    string
		target string
	}
	groups := make(map[Direction][]candidate)
	for name, target := range raw {
		d := Canonicalize(name)
		if d == "" || target == "" {
			continue
		}
		groups[d] = append(groups[d], candidate{raw: name, target: target})
	}

	out := make(map[Direction]string, len(groups))
	for d, cands := range groups {
		sort.Slice(cands, func(i, j int) bool { return cands[i].raw < cands[j].raw })
		chosen := cands[0]
		conflict := false
		for _, c := range cands[1:] {
			if c.target != chosen.target {
				conflict = true
			}
		}
		if conflict {
			for _, c := range cands {
				if strings.TrimSpace(c.raw) == string(d) {
					chosen = c
					break
				}
			}
			g.log.Warn("conflicting exit targets",
				zap.String("room", id),
				zap.String("direction", string(d)),
				zap.String("chosen", chosen.target),
				zap.String("from_alias", chosen.raw))
		}
		out[d] = chosen.target
	}
	return out
}

// AddEdge records the traversal from -dir-> to. The edge set is
// append-only: adding an existing edge changes nothing. The from room's
// exit for dir points at to afterwards. Both this edge and its reverse
// are marked bidirectional only when the reverse edge already exists.
func (g *Graph) AddEdge(from, to string, dir string) bool {
	d := Canonicalize(dir)
	if from == "" || to == "" || d == "" {
		return false
	}
	g.getOrCreate(from)
	g.getOrCreate(to)
	added := g.addEdge(from, to, d)
	if added {
		g.touch()
	}
	return added
}

func (g *Graph) addEdge(from, to string, d Direction) bool {
	src := g.rooms[from]
	if src.Exits[d] != to {
		src.Exits[d] = to
		g.touch()
	}

	key := edgeKey{from, d, to}
	if _, ok := g.index[key]; ok {
		return false
	}
	e := Edge{From: from, To: to, Direction: d}
	if rev, ok := d.Reverse(); ok {
		if i, ok := g.index[edgeKey{to, rev, from}]; ok {
			e.Bidirectional = true
			g.edges[i].Bidirectional = true
		}
	}
	g.index[key] = len(g.edges)
	g.edges = append(g.edges, e)
	return true
}

// SetCurrentRoom moves the player to an existing room.
func (g *Graph) SetCurrentRoom(id string) bool {
	if _, ok := g.rooms[id]; !ok {
		return false
	}
	if g.current != id {
		g.current = id
		g.version++
	}
	return true
}

// Tag adds tag to a room. Tags are unique ignoring case.
func (g *Graph) Tag(id, tag string) bool {
	r, ok := g.rooms[id]
	tag = strings.TrimSpace(tag)
	if !ok || tag == "" || r.HasTag(tag) {
		return false
	}
	r.Tags = append(r.Tags, tag)
	sort.Strings(r.Tags)
	g.version++
	return true
}

// Untag removes tag from a room.
func (g *Graph) Untag(id, tag string) bool {
	r, ok := g.rooms[id]
	if !ok {
		return false
	}
	for i, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			r.Tags = append(r.Tags[:i], r.Tags[i+1:]...)
			g.version++
			return true
		}
	}
	return false
}

// SetNotes replaces a room's free-text notes.
func (g *Graph) SetNotes(id, notes string) bool {
	r, ok := g.rooms[id]
	if !ok {
		return false
	}
	if r.Notes != notes {
		r.Notes = notes
		g.version++
	}
	return true
}

// String summarizes the graph for logs.
func (g *Graph) String() string {
	return fmt.Sprintf("%s: %d rooms, %d edges", g.name, len(g.rooms), len(g.edges))
}
