package worldmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// SchemaVersion is written to every saved map.
const SchemaVersion = 2

// Document is the persisted form of a graph.
type Document struct {
	Name          string `json:"name"`
	SchemaVersion int    `json:"schema_version"`
	CurrentRoomID string `json:"current_room_id"`
	Rooms         []Room `json:"rooms"`
	Edges         []Edge `json:"edges"`
}

// Document returns the persisted form of the graph, laying it out first
// if it changed since the last layout.
func (g *Graph) Document() Document {
	g.EnsureLayout()
	return Document{
		Name:          g.name,
		SchemaVersion: SchemaVersion,
		CurrentRoomID: g.current,
		Rooms:         g.Rooms(),
		Edges:         g.Edges(),
	}
}

// MarshalJSON encodes the graph as a Document.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Document())
}

// SaveJSON writes the graph to path atomically: the data goes to a
// temporary file in the same directory which is synced and renamed over
// path.
func (g *Graph) SaveJSON(path string) error {
	data, err := json.MarshalIndent(g.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("worldmap: encode %s: %w", path, err)
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return err
	}
	g.log.Debug("saved map", zap.String("path", path), zap.Int("rooms", len(g.rooms)), zap.Int("edges", len(g.edges)))
	return nil
}

// WriteFileAtomic replaces path with data via temp file, fsync and rename.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("worldmap: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("worldmap: create temp for %s: %w", path, err)
	}
	name := tmp.Name()
	cleanup := func() { os.Remove(name) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("worldmap: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("worldmap: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("worldmap: close %s: %w", name, err)
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return fmt.Errorf("worldmap: rename %s: %w", path, err)
	}
	return nil
}

// LoadJSON reads a map file. A missing file returns an error matching
// fs.ErrNotExist.
func LoadJSON(path string, logger *zap.Logger) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("worldmap: load %s: %w", path, err)
	}
	g, err := Decode(data, logger)
	if err != nil {
		return nil, fmt.Errorf("worldmap: load %s: %w", path, err)
	}
	g.log.Info("loaded map", zap.String("path", path), zap.Int("rooms", len(g.rooms)), zap.Int("edges", len(g.edges)))
	return g, nil
}

// rawDocument accepts both the current format and the older one that
// keyed rooms by id and used room_id / from_room / to_room.
type rawDocument struct {
	Name          string          `json:"name"`
	SchemaVersion int             `json:"schema_version"`
	CurrentRoomID *string         `json:"current_room_id"`
	Rooms         json.RawMessage `json:"rooms"`
	Edges         []rawEdge       `json:"edges"`
}

type rawRoom struct {
	ID          string            `json:"id"`
	RoomID      string            `json:"room_id"`
	Name        string            `json:"name"`
	Area        string            `json:"area"`
	Environment string            `json:"environment"`
	Description string            `json:"description"`
	Notes       string            `json:"notes"`
	Tags        []string          `json:"tags"`
	VisitCount  int               `json:"visit_count"`
	Explored    *bool             `json:"explored"`
	Exits       map[string]string `json:"exits"`
	Items       []Item            `json:"items"`
	NPCs        []NPC             `json:"npcs"`
	X           *float64          `json:"x"`
	Y           *float64          `json:"y"`
	Z           *float64          `json:"z"`
}

type rawEdge struct {
	From      string `json:"from"`
	FromRoom  string `json:"from_room"`
	To        string `json:"to"`
	ToRoom    string `json:"to_room"`
	Direction string `json:"direction"`
}

// Decode parses a map document and rebuilds a consistent graph from it.
func Decode(data []byte, logger *zap.Logger) (*Graph, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	rooms, err := decodeRooms(doc.Rooms)
	if err != nil {
		return nil, err
	}
	current := ""
	if doc.CurrentRoomID != nil {
		current = *doc.CurrentRoomID
	}
	return restore(doc.Name, rooms, doc.Edges, current, logger), nil
}

// FromDocument rebuilds a graph from an already decoded document with the
// same repairs as Decode.
func FromDocument(doc Document, logger *zap.Logger) *Graph {
	rooms := make([]rawRoom, 0, len(doc.Rooms))
	for _, r := range doc.Rooms {
		explored := r.Explored
		x, y, z := r.X, r.Y, r.Z
		exits := make(map[string]string, len(r.Exits))
		for d, to := range r.Exits {
			exits[string(d)] = to
		}
		rooms = append(rooms, rawRoom{
			ID:          r.ID,
			Name:        r.Name,
			Area:        r.Area,
			Environment: r.Environment,
			Description: r.Description,
			Notes:       r.Notes,
			Tags:        r.Tags,
			VisitCount:  r.VisitCount,
			Explored:    &explored,
			Exits:       exits,
			Items:       r.Items,
			NPCs:        r.NPCs,
			X:           &x,
			Y:           &y,
			Z:           &z,
		})
	}
	edges := make([]rawEdge, 0, len(doc.Edges))
	for _, e := range doc.Edges {
		edges = append(edges, rawEdge{From: e.From, To: e.To, Direction: string(e.Direction)})
	}
	return restore(doc.Name, rooms, edges, doc.CurrentRoomID, logger)
}

func decodeRooms(raw json.RawMessage) ([]rawRoom, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var byID map[string]rawRoom
		if err := json.Unmarshal(trimmed, &byID); err != nil {
			return nil, fmt.Errorf("decode rooms: %w", err)
		}
		keys := make([]string, 0, len(byID))
		for k := range byID {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]rawRoom, 0, len(keys))
		for _, k := range keys {
			r := byID[k]
			if r.ID == "" && r.RoomID == "" {
				r.ID = k
			}
			out = append(out, r)
		}
		return out, nil
	}
	var list []rawRoom
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return list, nil
}

// restore rebuilds a graph: duplicate rooms and edges merge, exit keys are
// canonicalized, every exit gets an edge and a target room, bidirectional
// flags are recomputed from reverse edges and lifecycle flags repaired.
func restore(name string, rooms []rawRoom, edges []rawEdge, current string, logger *zap.Logger) *Graph {
	g := New(name, logger)
	exits := make(map[string][]map[string]string)
	positioned := true

	for _, rr := range rooms {
		id := rr.ID
		if id == "" {
			id = rr.RoomID
		}
		if id == "" {
			continue
		}
		r, _ := g.getOrCreate(id)
		if rr.Name != "" && (r.Name == PlaceholderName(id) || r.Name == "") {
			r.Name = rr.Name
		}
		setIfEmpty(&r.Area, rr.Area)
		setIfEmpty(&r.Environment, rr.Environment)
		setIfEmpty(&r.Description, rr.Description)
		setIfEmpty(&r.Notes, rr.Notes)
		for _, t := range rr.Tags {
			if t != "" && !r.HasTag(t) {
				r.Tags = append(r.Tags, t)
			}
		}
		sort.Strings(r.Tags)
		for _, it := range rr.Items {
			r.addItem(it)
		}
		for _, n := range rr.NPCs {
			r.addNPC(n)
		}
		if rr.VisitCount > r.VisitCount {
			r.VisitCount = rr.VisitCount
		}
		explored := rr.VisitCount > 0
		if rr.Explored != nil {
			explored = *rr.Explored || explored
		}
		r.Explored = r.Explored || explored
		if rr.X == nil || rr.Y == nil {
			positioned = false
		} else {
			r.X, r.Y = *rr.X, *rr.Y
			if rr.Z != nil {
				r.Z = *rr.Z
			}
		}
		if len(rr.Exits) > 0 {
			exits[id] = append(exits[id], rr.Exits)
		}
	}

	for _, re := range edges {
		from, to := re.From, re.To
		if from == "" {
			from = re.FromRoom
		}
		if to == "" {
			to = re.ToRoom
		}
		if from == "" || to == "" || Canonicalize(re.Direction) == "" {
			continue
		}
		if _, ok := g.rooms[from]; !ok {
			positioned = false
		}
		if _, ok := g.rooms[to]; !ok {
			positioned = false
		}
		g.AddEdge(from, to, re.Direction)
	}

	// Saved exits are the latest view of each room, so they apply last.
	for _, id := range g.sortedIDs() {
		for _, raw := range exits[id] {
			canon := g.canonicalExits(id, raw)
			for _, d := range sortedDirections(canon) {
				if _, ok := g.rooms[canon[d]]; !ok {
					positioned = false
				}
				g.AddEdge(id, canon[d], string(d))
			}
		}
	}

	for _, r := range g.rooms {
		if r.Explored && r.VisitCount < 1 {
			r.VisitCount = 1
		}
		if r.Name == "" {
			r.Name = PlaceholderName(r.ID)
		}
	}

	if _, ok := g.rooms[current]; ok {
		g.current = current
	}
	g.layoutDirty = !positioned
	g.version = 0
	return g
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}
