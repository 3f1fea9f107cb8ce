package validate

import (
	"fmt"

	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

// DirectionChecker flags exit keys and edge directions that are aliases
// ("north", "in") rather than canonical names.
type DirectionChecker struct{}

func (c *DirectionChecker) Name() string { return "direction" }

func (c *DirectionChecker) Check(doc *worldmap.Document) []Finding {
	var findings []Finding
	for _, r := range doc.Rooms {
		id := r.ID
		for _, d := range sortedExits(r.Exits) {
			canon := worldmap.Canonicalize(string(d))
			if canon == d {
				continue
			}
			from := d
			f := Finding{
				Category:    CatDirection,
				Severity:    SevWarning,
				RoomID:      id,
				Direction:   string(d),
				Description: fmt.Sprintf("room %s exit %q should be %q", id, d, canon),
			}
			if other, ok := r.Exits[canon]; ok && other != r.Exits[d] {
				f.Description += fmt.Sprintf(" but %q already leads to %s", canon, other)
			} else {
				f.Fixable = true
				f.fixFunc = func() { renameExit(doc, id, from, canon) }
			}
			findings = append(findings, f)
		}
	}
	for _, e := range doc.Edges {
		canon := worldmap.Canonicalize(string(e.Direction))
		if canon == e.Direction {
			continue
		}
		e := e
		findings = append(findings, Finding{
			Category:    CatDirection,
			Severity:    SevWarning,
			RoomID:      e.From,
			Direction:   string(e.Direction),
			Description: fmt.Sprintf("edge %s -%s-> %s should use %q", e.From, e.Direction, e.To, canon),
			Fixable:     true,
			fixFunc: func() {
				if x := findEdge(doc, e.From, e.Direction, e.To); x != nil {
					x.Direction = canon
				}
			},
		})
	}
	return findings
}

func renameExit(doc *worldmap.Document, id string, from, to worldmap.Direction) {
	r := findRoom(doc, id)
	if r == nil {
		return
	}
	target, ok := r.Exits[from]
	if !ok {
		return
	}
	delete(r.Exits, from)
	if _, taken := r.Exits[to]; !taken {
		r.Exits[to] = target
	}
}

// EdgeChecker compares room exits with the traversal history.
type EdgeChecker struct{}

func (c *EdgeChecker) Name() string { return "edge" }

type edgeKey struct {
	from string
	dir  worldmap.Direction
	to   string
}

func (c *EdgeChecker) Check(doc *worldmap.Document) []Finding {
	var findings []Finding
	edges := make(map[edgeKey]bool, len(doc.Edges))
	for _, e := range doc.Edges {
		edges[edgeKey{e.From, worldmap.Canonicalize(string(e.Direction)), e.To}] = true
	}

	for _, r := range doc.Rooms {
		from := r.ID
		for _, d := range sortedExits(r.Exits) {
			to := r.Exits[d]
			dir := worldmap.Canonicalize(string(d))
			if edges[edgeKey{from, dir, to}] {
				continue
			}
			findings = append(findings, Finding{
				Category:    CatEdge,
				Severity:    SevInfo,
				RoomID:      from,
				Direction:   string(dir),
				Description: fmt.Sprintf("room %s exit %s to %s has no edge", from, dir, to),
				Fixable:     true,
				fixFunc:     func() { addEdge(doc, worldmap.Edge{From: from, To: to, Direction: dir}) },
			})
		}
	}

	for _, e := range doc.Edges {
		dir := worldmap.Canonicalize(string(e.Direction))
		want := false
		if rev, ok := dir.Reverse(); ok {
			want = edges[edgeKey{e.To, rev, e.From}]
		}
		if e.Bidirectional == want {
			continue
		}
		e := e
		findings = append(findings, Finding{
			Category:    CatEdge,
			Severity:    SevWarning,
			RoomID:      e.From,
			Direction:   string(dir),
			Description: fmt.Sprintf("edge %s -%s-> %s bidirectional is %t, want %t", e.From, dir, e.To, e.Bidirectional, want),
			Fixable:     true,
			fixFunc: func() {
				if x := findEdge(doc, e.From, e.Direction, e.To); x != nil {
					x.Bidirectional = want
				}
			},
		})
	}
	return findings
}

// findEdge matches the direction exactly, so it finds an edge whose
// direction has not been canonicalized yet.
func findEdge(doc *worldmap.Document, from string, dir worldmap.Direction, to string) *worldmap.Edge {
	for i := range doc.Edges {
		x := &doc.Edges[i]
		if x.From == from && x.To == to && (x.Direction == dir || worldmap.Canonicalize(string(x.Direction)) == dir) {
			return x
		}
	}
	return nil
}

func addEdge(doc *worldmap.Document, e worldmap.Edge) {
	for _, x := range doc.Edges {
		if x.From == e.From && x.To == e.To && worldmap.Canonicalize(string(x.Direction)) == e.Direction {
			return
		}
	}
	if rev, ok := e.Direction.Reverse(); ok {
		for i, x := range doc.Edges {
			if x.From == e.To && x.To == e.From && worldmap.Canonicalize(string(x.Direction)) == rev {
				e.Bidirectional = true
				doc.Edges[i].Bidirectional = true
			}
		}
	}
	doc.Edges = append(doc.Edges, e)
}

// LifecycleChecker flags explored rooms that were never visited and
// visited rooms that are not marked explored.
type LifecycleChecker struct{}

func (c *LifecycleChecker) Name() string { return "lifecycle" }

func (c *LifecycleChecker) Check(doc *worldmap.Document) []Finding {
	var findings []Finding
	for _, r := range doc.Rooms {
		id := r.ID
		switch {
		case r.Explored && r.VisitCount < 1:
			findings = append(findings, Finding{
				Category:    CatLifecycle,
				Severity:    SevWarning,
				RoomID:      id,
				Description: fmt.Sprintf("room %s is explored but has %d visits", id, r.VisitCount),
				Fixable:     true,
				fixFunc: func() {
					if r := findRoom(doc, id); r != nil && r.VisitCount < 1 {
						r.VisitCount = 1
					}
				},
			})
		case !r.Explored && r.VisitCount > 0:
			findings = append(findings, Finding{
				Category:    CatLifecycle,
				Severity:    SevWarning,
				RoomID:      id,
				Description: fmt.Sprintf("room %s has %d visits but is not explored", id, r.VisitCount),
				Fixable:     true,
				fixFunc: func() {
					if r := findRoom(doc, id); r != nil {
						r.Explored = true
					}
				},
			})
		case !r.Explored && r.Name != "" && r.Name != worldmap.PlaceholderName(id) && r.Description != "":
			findings = append(findings, Finding{
				Category:    CatLifecycle,
				Severity:    SevInfo,
				RoomID:      id,
				Description: fmt.Sprintf("room %s has details but was never visited", id),
			})
		}
	}
	return findings
}
