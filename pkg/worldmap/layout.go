package worldmap

import (
	"math"
	"sort"
)

// Layout constants. Seeding places each room one unit from its parent in
// the direction of the exit; relaxation then runs a fixed number of rounds
// of spring and separation forces. The same graph always yields the same
// coordinates.
const (
	// LayoutIterations is the number of relaxation rounds.
	LayoutIterations = 60
	// LayoutSpring scales the pull of an edge toward its ideal offset.
	LayoutSpring = 0.2
	// LayoutSeparation is the minimum distance kept between rooms on the
	// same z level.
	LayoutSeparation = 0.8
	// LayoutRepulsion scales the push between rooms closer than
	// LayoutSeparation.
	LayoutRepulsion = 0.5
	// LayoutComponentGap is the horizontal gap between disconnected parts
	// of the map.
	LayoutComponentGap = 3.0
	// layoutPrecision rounds coordinates to three decimals.
	layoutPrecision = 1000
)

type vec struct{ x, y, z float64 }

func (a vec) add(b vec) vec       { return vec{a.x + b.x, a.y + b.y, a.z + b.z} }
func (a vec) sub(b vec) vec       { return vec{a.x - b.x, a.y - b.y, a.z - b.z} }
func (a vec) scale(k float64) vec { return vec{a.x * k, a.y * k, a.z * k} }

// offsets are screen coordinates: north is -y, up is +z. enter/out and
// custom exits get a small diagonal so they do not sit on their parent.
var offsets = map[Direction]vec{
	North:     {0, -1, 0},
	South:     {0, 1, 0},
	East:      {1, 0, 0},
	West:      {-1, 0, 0},
	Northeast: {1, -1, 0},
	Northwest: {-1, -1, 0},
	Southeast: {1, 1, 0},
	Southwest: {-1, 1, 0},
	Up:        {0, 0, 1},
	Down:      {0, 0, -1},
	Enter:     {0.5, 0.5, 0},
	Out:       {-0.5, -0.5, 0},
}

var customOffset = vec{0.5, 0.5, 0}

func offsetFor(d Direction) vec {
	if o, ok := offsets[d]; ok {
		return o
	}
	return customOffset
}

// LayoutDirty reports whether the graph changed since the last layout.
func (g *Graph) LayoutDirty() bool { return g.layoutDirty }

// EnsureLayout runs AutoLayout when the graph changed since the last one.
func (g *Graph) EnsureLayout() {
	if g.layoutDirty {
		g.AutoLayout()
	}
}

// AutoLayout assigns x, y and z to every room.
func (g *Graph) AutoLayout() {
	ids := g.sortedIDs()
	if len(ids) == 0 {
		g.layoutDirty = false
		return
	}
	pos := g.seed(ids)
	g.relax(ids, pos)

	for _, id := range ids {
		p := pos[id]
		r := g.rooms[id]
		r.X, r.Y, r.Z = round(p.x), round(p.y), round(p.z)
	}
	g.layoutDirty = false
	g.version++
}

// seed places rooms breadth-first from the lowest unplaced id, one
// component at a time, each component to the right of the previous.
func (g *Graph) seed(ids []string) map[string]vec {
	pos := make(map[string]vec, len(ids))
	nextX := 0.0
	for _, root := range ids {
		if _, done := pos[root]; done {
			continue
		}
		component := []string{root}
		pos[root] = vec{}
		for i := 0; i < len(component); i++ {
			cur := component[i]
			r := g.rooms[cur]
			for _, d := range sortedDirections(r.Exits) {
				next := r.Exits[d]
				if _, ok := g.rooms[next]; !ok {
					continue
				}
				if _, done := pos[next]; done {
					continue
				}
				pos[next] = pos[cur].add(offsetFor(d))
				component = append(component, next)
			}
		}

		minX, maxX := math.Inf(1), math.Inf(-1)
		for _, id := range component {
			minX = math.Min(minX, pos[id].x)
			maxX = math.Max(maxX, pos[id].x)
		}
		shift := nextX - minX
		for _, id := range component {
			p := pos[id]
			p.x += shift
			pos[id] = p
		}
		nextX = maxX + shift + LayoutComponentGap
	}
	return pos
}

// relax pulls every edge toward its ideal offset and pushes apart rooms
// that crowd each other on the same level.
func (g *Graph) relax(ids []string, pos map[string]vec) {
	for iter := 0; iter < LayoutIterations; iter++ {
		for _, e := range g.edges {
			if e.From == e.To {
				continue
			}
			from, to := pos[e.From], pos[e.To]
			want := from.add(offsetFor(e.Direction))
			delta := want.sub(to).scale(LayoutSpring / 2)
			pos[e.To] = to.add(delta)
			pos[e.From] = from.sub(delta)
		}
		g.separate(ids, pos)
	}
}

type cell struct{ x, y, z int }

func (g *Graph) separate(ids []string, pos map[string]vec) {
	grid := make(map[cell][]string)
	cellOf := func(p vec) cell {
		return cell{
			int(math.Floor(p.x / LayoutSeparation)),
			int(math.Floor(p.y / LayoutSeparation)),
			int(math.Round(p.z)),
		}
	}
	for _, id := range ids {
		c := cellOf(pos[id])
		grid[c] = append(grid[c], id)
	}

	for i, id := range ids {
		c := cellOf(pos[id])
		var near []string
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				near = append(near, grid[cell{c.x + dx, c.y + dy, c.z}]...)
			}
		}
		sort.Strings(near)
		for _, other := range near {
			if other <= id {
				continue
			}
			a, b := pos[id], pos[other]
			d := b.sub(a)
			d.z = 0
			dist := math.Hypot(d.x, d.y)
			if dist >= LayoutSeparation {
				continue
			}
			var dir vec
			if dist < 1e-9 {
				// Coincident rooms: spread along a fixed angle derived
				// from their order.
				angle := float64(i%8) * math.Pi / 4
				dir = vec{math.Cos(angle), math.Sin(angle), 0}
			} else {
				dir = d.scale(1 / dist)
			}
			push := dir.scale((LayoutSeparation - dist) * LayoutRepulsion / 2)
			pos[id] = a.sub(push)
			pos[other] = b.add(push)
		}
	}
}

func round(v float64) float64 {
	r := math.Round(v*layoutPrecision) / layoutPrecision
	if r == 0 {
		return 0 // no negative zero in output
	}
	return r
}
