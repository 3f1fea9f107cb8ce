package worldmap

import (
	"sort"
	"strconv"
	"strings"
)

// PathStatus is the outcome of a path search.
type PathStatus int

const (
	PathNotFound PathStatus = iota
	PathFound
	PathAlreadyThere
)

func (s PathStatus) String() string {
	switch s {
	case PathFound:
		return "found"
	case PathAlreadyThere:
		return "already there"
	default:
		return "not found"
	}
}

// Step is one move along a path.
type Step struct {
	Direction Direction `json:"direction"`
	To        string    `json:"to"`
}

// Path is the result of a search. Steps is empty unless Status is
// PathFound.
type Path struct {
	Status PathStatus `json:"status"`
	Steps  []Step     `json:"steps,omitempty"`
}

// Directions returns the direction of every step.
func (p Path) Directions() []Direction {
	out := make([]Direction, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Direction
	}
	return out
}

// Target returns the room the path ends in, or "" when there is no step.
func (p Path) Target() string {
	if len(p.Steps) == 0 {
		return ""
	}
	return p.Steps[len(p.Steps)-1].To
}

// FindPath returns the shortest path from one room to another over the
// current exits. Ties are broken by expanding directions alphabetically.
func (g *Graph) FindPath(from, to string) Path {
	if _, ok := g.rooms[to]; !ok {
		return Path{Status: PathNotFound}
	}
	_, p, _ := g.search(from, func(r *Room) bool { return r.ID == to })
	return p
}

// FindNearest returns the closest room, in breadth-first discovery order,
// for which match is true. The start room itself is considered first.
func (g *Graph) FindNearest(from string, match func(Room) bool) (Room, Path, bool) {
	id, p, ok := g.search(from, func(r *Room) bool { return match(r.clone()) })
	if !ok {
		return Room{}, p, false
	}
	return g.rooms[id].clone(), p, true
}

// FindNearestByTag returns the closest room carrying tag.
func (g *Graph) FindNearestByTag(from, tag string) (Room, Path, bool) {
	return g.FindNearest(from, func(r Room) bool { return r.HasTag(tag) })
}

// FindNearestByName returns the closest room whose name equals name,
// ignoring case.
func (g *Graph) FindNearestByName(from, name string) (Room, Path, bool) {
	name = strings.TrimSpace(name)
	return g.FindNearest(from, func(r Room) bool { return strings.EqualFold(r.Name, name) })
}

// search runs a breadth-first search from start until match accepts a
// room.
func (g *Graph) search(start string, match func(*Room) bool) (string, Path, bool) {
	root, ok := g.rooms[start]
	if !ok {
		return "", Path{Status: PathNotFound}, false
	}
	if match(root) {
		return start, Path{Status: PathAlreadyThere}, true
	}

	parent := map[string]hop{start: {}}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		room := g.rooms[cur]
		for _, d := range sortedDirections(room.Exits) {
			next := room.Exits[d]
			if _, seen := parent[next]; seen {
				continue
			}
			target, ok := g.rooms[next]
			if !ok {
				continue
			}
			parent[next] = hop{prev: cur, dir: d}
			if match(target) {
				return next, Path{Status: PathFound, Steps: unwind(parent, start, next)}, true
			}
			queue = append(queue, next)
		}
	}
	return "", Path{Status: PathNotFound}, false
}

type hop struct {
	prev string
	dir  Direction
}

func unwind(parent map[string]hop, start, end string) []Step {
	var steps []Step
	for id := end; id != start; {
		h := parent[id]
		steps = append(steps, Step{Direction: h.dir, To: id})
		id = h.prev
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

func sortedDirections(exits map[Direction]string) []Direction {
	dirs := make([]Direction, 0, len(exits))
	for d := range exits {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i] < dirs[j] })
	return dirs
}

// GetRouteCommands returns the path between two rooms as a speedwalk
// string such as "3n;e;enter". The string is empty unless the status is
// PathFound.
func (g *Graph) GetRouteCommands(from, to string) (string, PathStatus) {
	p := g.FindPath(from, to)
	if p.Status != PathFound {
		return "", p.Status
	}
	return CompressRoute(p.Directions()), PathFound
}

// CompressRoute run-length encodes consecutive identical directions and
// joins the tokens with ";".
func CompressRoute(dirs []Direction) string {
	var tokens []string
	for i := 0; i < len(dirs); {
		j := i
		for j < len(dirs) && dirs[j] == dirs[i] {
			j++
		}
		tok := string(dirs[i])
		if n := j - i; n > 1 {
			tok = strconv.Itoa(n) + tok
		}
		tokens = append(tokens, tok)
		i = j
	}
	return strings.Join(tokens, ";")
}

// ExpandRoute turns a speedwalk string back into single steps. Tokens
// with a count prefix repeat ("3n" is n, n, n); others are used as is.
func ExpandRoute(route string) []string {
	var out []string
	for _, tok := range strings.Split(route, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		i := 0
		for i < len(tok) && tok[i] >= '0' && tok[i] <= '9' {
			i++
		}
		n, err := strconv.Atoi(tok[:i])
		if i == 0 || i == len(tok) || err != nil {
			out = append(out, tok)
			continue
		}
		for k := 0; k < n; k++ {
			out = append(out, tok[i:])
		}
	}
	return out
}
